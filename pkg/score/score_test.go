package score

import "testing"

func patch(n int) *int { return &n }

func validScore() Score {
	return Score{
		Instruments: map[string]Instrument{
			"piano": {Config: InstrumentConfig{Type: "midi-instrument", Patch: patch(0)}},
			"drums": {Config: InstrumentConfig{Type: "midi-percussion", Percussion: true}},
		},
		Events: []Event{
			{OffsetMs: 0, InstrumentID: "piano", DurationMs: 500, MidiNote: 60, Volume: 1, TrackVolume: 1, Panning: 0.5},
		},
		Tempo:   TempoMap{0: 120},
		Markers: Markers{"verse": 0},
	}
}

func TestValidate_OK(t *testing.T) {
	s := validScore()
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingZeroTempo(t *testing.T) {
	s := validScore()
	s.Tempo = TempoMap{100: 120}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for missing offset-0 tempo entry")
	}
}

func TestValidate_NegativeTempoOffset(t *testing.T) {
	s := validScore()
	s.Tempo = TempoMap{0: 120, -1: 90}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for negative tempo offset")
	}
}

func TestValidate_NonPositiveTempo(t *testing.T) {
	s := validScore()
	s.Tempo = TempoMap{0: 0}
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for non-positive tempo")
	}
}

func TestValidate_UnknownInstrument(t *testing.T) {
	s := validScore()
	s.Events = append(s.Events, Event{OffsetMs: 10, InstrumentID: "ghost", MidiNote: 64, Volume: 1, TrackVolume: 1})
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for event referencing unknown instrument")
	}
}

func TestMidiInstrumentIDs_Sorted(t *testing.T) {
	s := validScore()
	ids := s.MidiInstrumentIDs()
	if len(ids) != 2 || ids[0] != "drums" || ids[1] != "piano" {
		t.Fatalf("expected sorted [drums piano], got %v", ids)
	}
}
