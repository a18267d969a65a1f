package audiocontext

import (
	"context"
	"errors"
	"testing"

	"github.com/zurustar/scoreplay/pkg/audiotype"
	"github.com/zurustar/scoreplay/pkg/devicepool"
	"github.com/zurustar/scoreplay/pkg/scoreerr"
)

type stubRegistry struct {
	synthErr, seqErr error
	synthCalls       int
	seqCalls         int
}

func (r *stubRegistry) AcquireSynth(ctx context.Context) (*devicepool.Synth, error) {
	r.synthCalls++
	if r.synthErr != nil {
		return nil, r.synthErr
	}
	return &devicepool.Synth{}, nil
}

func (r *stubRegistry) AcquireSequencer(ctx context.Context) (*devicepool.Sequencer, error) {
	r.seqCalls++
	if r.seqErr != nil {
		return nil, r.seqErr
	}
	return &devicepool.Sequencer{}, nil
}

func TestMIDIHandler_SetUp_AcquiresSynthThenSequencer(t *testing.T) {
	reg := &stubRegistry{}
	h := NewMIDIHandler(reg)
	ac := New()

	if err := h.SetUp(context.Background(), ac); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ac.Synth == nil || ac.Sequencer == nil {
		t.Fatal("expected both synth and sequencer to be attached")
	}
	if ac.Receiver != devicepool.Receiver(ac.Synth) {
		t.Errorf("expected sequencer's receiver to be wired to the synth")
	}
	if !ac.IsActive(audiotype.MIDI) {
		t.Error("expected MIDI tag marked active")
	}
	if reg.synthCalls != 1 || reg.seqCalls != 1 {
		t.Errorf("expected one acquire each, got synth=%d seq=%d", reg.synthCalls, reg.seqCalls)
	}
}

func TestMIDIHandler_SetUp_Idempotent(t *testing.T) {
	reg := &stubRegistry{}
	h := NewMIDIHandler(reg)
	ac := New()

	if err := h.SetUp(context.Background(), ac); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.SetUp(context.Background(), ac); err != nil {
		t.Fatalf("unexpected error on second set_up: %v", err)
	}
	if reg.synthCalls != 1 || reg.seqCalls != 1 {
		t.Errorf("expected devices acquired only once, got synth=%d seq=%d", reg.synthCalls, reg.seqCalls)
	}
}

func TestMIDIHandler_WireSequencer_BeforeSynth(t *testing.T) {
	reg := &stubRegistry{}
	h := NewMIDIHandler(reg)
	ac := New()

	err := h.wireSequencer(context.Background(), ac)
	if !errors.Is(err, scoreerr.ErrSequencerBeforeSynth) {
		t.Fatalf("expected ErrSequencerBeforeSynth, got %v", err)
	}
}

func TestMIDIHandler_TearDown_ClearsContext(t *testing.T) {
	reg := &stubRegistry{}
	h := NewMIDIHandler(reg)
	ac := New()

	if err := h.SetUp(context.Background(), ac); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := h.TearDown(ac); err != nil {
		t.Fatalf("teardown: %v", err)
	}

	if ac.Synth != nil || ac.Sequencer != nil || ac.Receiver != nil {
		t.Fatal("expected all device references cleared")
	}
	if ac.IsActive(audiotype.MIDI) {
		t.Error("expected MIDI tag removed from active set")
	}
}

func TestMIDIHandler_StopPlayback_NoSynthIsNoOp(t *testing.T) {
	h := NewMIDIHandler(&stubRegistry{})
	ac := New()
	if err := h.StopPlayback(ac); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMIDIHandler_StopPlayback_SilencesAllChannels(t *testing.T) {
	reg := &stubRegistry{}
	h := NewMIDIHandler(reg)
	ac := New()

	if err := h.SetUp(context.Background(), ac); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := h.StopPlayback(ac); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAsContext_RejectsWrongType(t *testing.T) {
	h := NewMIDIHandler(&stubRegistry{})
	if err := h.SetUp(context.Background(), "not a context"); err == nil {
		t.Fatal("expected error for non-*Context payload")
	}
}
