// Package audiocontext holds the mutable record coupling a score to its
// acquired devices, allocated channels, and audio-type setup state, and
// implements the MIDI audio-type's set_up/tear_down/stop_playback hooks.
package audiocontext

import (
	"context"
	"fmt"
	"sync"

	"github.com/zurustar/scoreplay/pkg/audiotype"
	"github.com/zurustar/scoreplay/pkg/channel"
	"github.com/zurustar/scoreplay/pkg/devicepool"
	"github.com/zurustar/scoreplay/pkg/logger"
	"github.com/zurustar/scoreplay/pkg/scoreerr"
)

// Context is a mutable record: the set of active audio-type tags, and
// whatever devices/channel assignments/receiver reference have been
// attached. It's written only during setup and teardown (single-writer
// windows) and read during playback, under a mutex rather than an
// ambient global.
type Context struct {
	mu          sync.RWMutex
	activeTags  map[audiotype.Tag]bool
	Synth       *devicepool.Synth
	Sequencer   *devicepool.Sequencer
	Assignments map[string]channel.Assignment
	Receiver    devicepool.Receiver
}

// New returns an empty audio context.
func New() *Context {
	return &Context{activeTags: make(map[audiotype.Tag]bool)}
}

// ActiveTags returns the audio-type tags currently set up on this context.
func (c *Context) ActiveTags() []audiotype.Tag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tags := make([]audiotype.Tag, 0, len(c.activeTags))
	for t := range c.activeTags {
		tags = append(tags, t)
	}
	return tags
}

// IsActive reports whether tag has been set up on this context.
func (c *Context) IsActive(tag audiotype.Tag) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeTags[tag]
}

// SetAssignments records the channel allocation computed for the most
// recently built sequence, so callers can inspect which channel an
// instrument landed on without recomputing the allocation.
func (c *Context) SetAssignments(assignments map[string]channel.Assignment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Assignments = assignments
}

// DeviceRegistry is the subset of *devicepool.Registry the MIDI handler
// needs. Narrowed to an interface so tests can inject a stub registry
// instead of standing up real SoundFont-backed pools (design note:
// "re-architect as an explicit configurable registry... tests inject a
// stub registry").
type DeviceRegistry interface {
	AcquireSynth(ctx context.Context) (*devicepool.Synth, error)
	AcquireSequencer(ctx context.Context) (*devicepool.Sequencer, error)
}

// MIDIHandler implements audiotype.Handler for the MIDI audio type,
// acquiring and wiring devices from a DeviceRegistry. payload must be a
// *Context.
type MIDIHandler struct {
	devices DeviceRegistry
}

// NewMIDIHandler builds the MIDI audio-type handler backed by devices.
func NewMIDIHandler(devices DeviceRegistry) *MIDIHandler {
	return &MIDIHandler{devices: devices}
}

func asContext(payload any) (*Context, error) {
	ac, ok := payload.(*Context)
	if !ok {
		return nil, fmt.Errorf("audiocontext: expected *Context payload, got %T", payload)
	}
	return ac, nil
}

// SetUp acquires a synthesizer (if the context doesn't already have one),
// then acquires and wires a sequencer into it. Synth attachment must
// happen first; wireSequencer enforces that ordering with
// scoreerr.ErrSequencerBeforeSynth.
func (h *MIDIHandler) SetUp(ctx context.Context, payload any) error {
	ac, err := asContext(payload)
	if err != nil {
		return err
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()

	if ac.Synth == nil {
		synth, err := h.devices.AcquireSynth(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", scoreerr.ErrDeviceUnavailable, err)
		}
		ac.Synth = synth
	}

	if err := h.wireSequencer(ctx, ac); err != nil {
		return err
	}

	ac.activeTags[audiotype.MIDI] = true
	return nil
}

// wireSequencer acquires a sequencer and connects its transmitter to the
// synth's receiver. Must be called with ac.mu held.
func (h *MIDIHandler) wireSequencer(ctx context.Context, ac *Context) error {
	if ac.Synth == nil {
		return scoreerr.ErrSequencerBeforeSynth
	}
	if ac.Sequencer != nil {
		return nil
	}

	seq, err := h.devices.AcquireSequencer(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", scoreerr.ErrDeviceUnavailable, err)
	}

	// Defensive: a pooled/default sequencer may carry a stale sequence
	// from a previous score. Close drops it before this context loads
	// its own.
	seq.Close()

	ac.Sequencer = seq
	ac.Receiver = ac.Synth
	return nil
}

// TearDown closes the sequencer then the synth, clears the context's
// device references, and removes the MIDI tag from the active set.
func (h *MIDIHandler) TearDown(payload any) error {
	ac, err := asContext(payload)
	if err != nil {
		return err
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()

	if ac.Sequencer != nil {
		ac.Sequencer.Close()
		ac.Sequencer = nil
	}
	if ac.Synth != nil {
		ac.Synth.Close()
		ac.Synth = nil
	}
	ac.Receiver = nil
	ac.Assignments = nil
	delete(ac.activeTags, audiotype.MIDI)
	return nil
}

// StopPlayback calls allNotesOff and allSoundOff on every channel of the
// synth in parallel and waits for completion. The sequencer transport
// itself is paused by the playback controller (which owns the running
// Play goroutine's stop signal) before this is dispatched; this hook's job
// is guaranteeing silence even if the synth only honors one of the two
// all-off controller messages.
func (h *MIDIHandler) StopPlayback(payload any) error {
	ac, err := asContext(payload)
	if err != nil {
		return err
	}

	ac.mu.RLock()
	synth := ac.Synth
	ac.mu.RUnlock()

	if synth == nil {
		return nil
	}

	var wg sync.WaitGroup
	for ch := 0; ch < channel.NumChannels; ch++ {
		wg.Add(1)
		go func(ch int) {
			defer wg.Done()
			synth.AllNotesOff(ch)
			synth.AllSoundOff(ch)
		}(ch)
	}
	wg.Wait()

	logger.GetLogger().Debug("audiocontext: stop_playback silenced all channels")
	return nil
}
