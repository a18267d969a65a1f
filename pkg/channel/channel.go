// Package channel assigns MIDI channels to the instruments in a score,
// honoring the General MIDI percussion reservation on channel 9.
package channel

import (
	"fmt"

	"github.com/zurustar/scoreplay/pkg/score"
	"github.com/zurustar/scoreplay/pkg/scoreerr"
)

const (
	// PercussionChannel is the GM-reserved percussion channel.
	PercussionChannel = 9
	// NumChannels is the number of addressable MIDI channels.
	NumChannels = 16
)

// Assignment is one instrument's allocated channel and the patch/percussion
// data the Sequence Builder needs to emit program-change messages.
type Assignment struct {
	Channel    int
	Patch      *int
	Percussion bool
}

// Allocate assigns a channel to every instrument returned by
// s.MidiInstrumentIDs (all instruments, whatever their Type), iterating
// instrument ids in the score's deterministic sort order. Percussion
// instruments always receive channel 9; non-percussion instruments receive
// the smallest unused channel other than 9. Returns scoreerr.ErrOutOfChannels
// if an instrument (percussion or not) can't be given an eligible channel.
func Allocate(s *score.Score) (map[string]Assignment, error) {
	available := make(map[int]bool, NumChannels)
	for c := 0; c < NumChannels; c++ {
		available[c] = true
	}

	out := make(map[string]Assignment, len(s.Instruments))

	for _, id := range s.MidiInstrumentIDs() {
		inst := s.Instruments[id]
		cfg := inst.Config

		var chosen int
		found := false

		if cfg.Percussion {
			if available[PercussionChannel] {
				chosen = PercussionChannel
				found = true
			}
		} else {
			for c := 0; c < NumChannels; c++ {
				if c == PercussionChannel {
					continue
				}
				if available[c] {
					chosen = c
					found = true
					break
				}
			}
		}

		if !found {
			return nil, fmt.Errorf("%w: instrument %q (percussion=%v)", scoreerr.ErrOutOfChannels, id, cfg.Percussion)
		}

		available[chosen] = false
		out[id] = Assignment{Channel: chosen, Patch: cfg.Patch, Percussion: cfg.Percussion}
	}

	return out, nil
}
