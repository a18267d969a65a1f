package devicepool

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/zurustar/scoreplay/pkg/fileutil"
)

// SampleRate is the audio sample rate used for synthesis and real-time
// playback.
const SampleRate = 44100

// DefaultSoundFontName is the SoundFont filename looked for when the score
// or caller doesn't specify one explicitly.
const DefaultSoundFontName = "GeneralUser-GS.sf2"

// Synth is a pooled, opened General MIDI software synthesizer.
type Synth struct {
	mu     sync.Mutex
	engine *meltysynth.Synthesizer
}

// ProcessMessage forwards one MIDI channel-voice message's raw bytes to the
// underlying synthesizer. Non channel-voice (meta, sysex) messages are
// ignored; a synthesizer has nothing to do with them.
func (s *Synth) ProcessMessage(data []byte) {
	if len(data) == 0 {
		return
	}
	status := data[0]
	if status < 0x80 || status >= 0xF0 {
		return
	}
	ch := int32(status & 0x0F)
	command := int32(status & 0xF0)
	var d1, d2 int32
	if len(data) > 1 {
		d1 = int32(data[1])
	}
	if len(data) > 2 {
		d2 = int32(data[2])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return
	}
	s.engine.ProcessMidiMessage(ch, command, d1, d2)
}

// Render renders the next block of stereo audio from the synth's current
// voice state into left/right.
func (s *Synth) Render(left, right []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return
	}
	s.engine.Render(left, right)
}

// AllNotesOff sends controller 123 (all notes off) on ch.
func (s *Synth) AllNotesOff(ch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return
	}
	s.engine.ProcessMidiMessage(int32(ch), 0xB0, 123, 0)
}

// AllSoundOff sends controller 120 (all sound off) on ch. Some
// synthesizers honor one of AllNotesOff/AllSoundOff but not the other, so
// stop_playback calls both.
func (s *Synth) AllSoundOff(ch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return
	}
	s.engine.ProcessMidiMessage(int32(ch), 0xB0, 120, 0)
}

// Close releases the synth. meltysynth.Synthesizer holds no OS resources
// that need explicit release; Close exists so Synth satisfies the same
// open/close lifecycle as Sequencer and any future audio-type device.
func (s *Synth) Close() {}

// NewSynthFactory returns a constructor suitable for a Pool[*Synth]: each
// call builds a fresh synthesizer bound to the given SoundFont.
func NewSynthFactory(soundFont *meltysynth.SoundFont) func() (*Synth, error) {
	return func() (*Synth, error) {
		settings := meltysynth.NewSynthesizerSettings(SampleRate)
		engine, err := meltysynth.NewSynthesizer(soundFont, settings)
		if err != nil {
			return nil, fmt.Errorf("devicepool: failed to create synthesizer: %w", err)
		}
		return &Synth{engine: engine}, nil
	}
}

// LoadSoundFont searches dirs, in order, for name (or DefaultSoundFontName
// if name is empty), and parses the first match.
func LoadSoundFont(dirs []string, name string) (*meltysynth.SoundFont, error) {
	if name == "" {
		name = DefaultSoundFontName
	}

	var lastErr error
	for _, dir := range dirs {
		path, err := fileutil.FindFileCaseInsensitive(dir, name)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("devicepool: failed to parse SoundFont %s: %w", path, err)
		}
		return sf, nil
	}

	return nil, fmt.Errorf("devicepool: SoundFont %q not found (last error: %v)", name, lastErr)
}
