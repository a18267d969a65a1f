// Package scoreerr defines the sentinel errors shared across the playback
// and export packages. Each package wraps one of these with context via
// fmt.Errorf("%w: ...", ...) rather than minting its own error type.
package scoreerr

import "errors"

var (
	// ErrOutOfChannels means an instrument could not be given an eligible
	// channel: the non-percussion channels are used up, or channel 9 is
	// already taken by another percussion instrument.
	ErrOutOfChannels = errors.New("no channels available for assignment")

	// ErrTempoOutOfRange means a tempo value can't be represented in the
	// 24-bit microseconds-per-quarter-note tempo meta event.
	ErrTempoOutOfRange = errors.New("tempo out of representable range")

	// ErrUnknownAudioType means a score or instrument names an audio type
	// with no registered dispatch implementation.
	ErrUnknownAudioType = errors.New("unknown audio type")

	// ErrSequencerBeforeSynth means audio context setup tried to wire a
	// sequencer's output before a synth was attached to receive it.
	ErrSequencerBeforeSynth = errors.New("sequencer set up before synth")

	// ErrMarkerNotFound means a playback bound referenced a marker name
	// that isn't in the score.
	ErrMarkerNotFound = errors.New("marker not found")

	// ErrDeviceUnavailable means a device pool couldn't produce a device
	// (pool empty and refill failed, or pool exhausted under the caller's
	// context deadline).
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrIOError wraps failures creating or writing an exported SMF file.
	ErrIOError = errors.New("i/o error")
)
