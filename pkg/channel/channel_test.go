package channel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/zurustar/scoreplay/pkg/score"
	"github.com/zurustar/scoreplay/pkg/scoreerr"
)

func patch(n int) *int { return &n }

func scoreWithInstruments(instruments map[string]score.Instrument) *score.Score {
	return &score.Score{Instruments: instruments, Tempo: score.TempoMap{0: 120}}
}

// Percussion instruments are reserved channel 9.
func TestAllocate_PercussionReservation(t *testing.T) {
	s := scoreWithInstruments(map[string]score.Instrument{
		"perc":  {Config: score.InstrumentConfig{Percussion: true}},
		"piano": {Config: score.InstrumentConfig{Patch: patch(1)}},
	})

	got, err := Allocate(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["perc"].Channel != PercussionChannel {
		t.Errorf("perc channel = %d, want %d", got["perc"].Channel, PercussionChannel)
	}
	if got["piano"].Channel != 0 {
		t.Errorf("piano channel = %d, want 0", got["piano"].Channel)
	}
}

// More non-percussion instruments than available channels is an error.
func TestAllocate_Exhaustion(t *testing.T) {
	instruments := make(map[string]score.Instrument, 17)
	for i := 0; i < 17; i++ {
		instruments[fmt.Sprintf("inst%02d", i)] = score.Instrument{Config: score.InstrumentConfig{Patch: patch(1)}}
	}
	s := scoreWithInstruments(instruments)

	_, err := Allocate(s)
	if !errors.Is(err, scoreerr.ErrOutOfChannels) {
		t.Fatalf("expected ErrOutOfChannels, got %v", err)
	}
}

func TestAllocate_PercussionExhaustion(t *testing.T) {
	s := scoreWithInstruments(map[string]score.Instrument{
		"perc1": {Config: score.InstrumentConfig{Percussion: true}},
		"perc2": {Config: score.InstrumentConfig{Percussion: true}},
	})

	_, err := Allocate(s)
	if !errors.Is(err, scoreerr.ErrOutOfChannels) {
		t.Fatalf("expected ErrOutOfChannels for second percussion instrument, got %v", err)
	}
}

func TestAllocate_Empty(t *testing.T) {
	s := scoreWithInstruments(map[string]score.Instrument{})
	got, err := Allocate(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no assignments, got %v", got)
	}
}

// Every MIDI instrument gets exactly one
// channel, no two share a channel, and percussion iff channel 9.
func TestAllocate_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("unique channels, percussion reserved to 9", prop.ForAll(
		func(ids []string, percFlags []bool) bool {
			n := len(ids)
			if n > len(percFlags) {
				n = len(percFlags)
			}
			instruments := make(map[string]score.Instrument, n)
			for i := 0; i < n; i++ {
				name := fmt.Sprintf("%s-%d", ids[i], i)
				instruments[name] = score.Instrument{Config: score.InstrumentConfig{
					Patch:      patch(1),
					Percussion: percFlags[i],
				}}
			}
			s := scoreWithInstruments(instruments)

			assignments, err := Allocate(s)
			if err != nil {
				return errors.Is(err, scoreerr.ErrOutOfChannels)
			}

			seen := make(map[int]bool, len(assignments))
			for id, a := range assignments {
				if seen[a.Channel] {
					return false
				}
				seen[a.Channel] = true

				isPerc := instruments[id].Config.Percussion
				if isPerc != (a.Channel == PercussionChannel) {
					return false
				}
			}
			return len(assignments) == n
		},
		gen.SliceOfN(20, gen.AlphaString()),
		gen.SliceOfN(20, gen.Bool()),
	))

	properties.TestingRun(t)
}
