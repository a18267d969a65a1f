// Package tempo builds a tempo itinerary from a score's tempo map and
// converts millisecond offsets to MIDI tick positions under it.
package tempo

import (
	"fmt"
	"sort"

	"github.com/zurustar/scoreplay/pkg/score"
)

// Division selects how ticks relate to wall-clock time.
type Division int

const (
	// DivisionPPQ ticks at a rate that depends on the current tempo
	// (pulses per quarter note). This is the default and the only
	// division path exercised by the Sequence Builder.
	DivisionPPQ Division = iota
	// DivisionSMPTE ticks at a fixed fraction of real time, independent
	// of tempo. Kept as a secondary path; not used by default playback
	// or export.
	DivisionSMPTE
)

// DefaultResolution is the PPQ resolution (ticks per quarter note) used
// unless a caller asks for a different one.
const DefaultResolution = 128

// Entry is one point in a tempo itinerary.
type Entry struct {
	Ms    int
	BPM   float64
	Ticks float64
}

// Itinerary is the immutable, ms-ascending tempo timeline for a score at a
// given resolution.
type Itinerary struct {
	entries    []Entry
	resolution int
	division   Division
	// framesPerSecond is only meaningful under DivisionSMPTE.
	framesPerSecond float64
}

// BuildPPQ folds the score's tempo map left-to-right into a PPQ itinerary at
// the given resolution (ticks per quarter note). The map must contain an
// entry at offset 0; score.Validate should be called first.
func BuildPPQ(s *score.Score, resolution int) (*Itinerary, error) {
	if resolution <= 0 {
		resolution = DefaultResolution
	}

	offsets := make([]int, 0, len(s.Tempo))
	for ms := range s.Tempo {
		offsets = append(offsets, ms)
	}
	sort.Ints(offsets)

	if len(offsets) == 0 || offsets[0] != 0 {
		return nil, fmt.Errorf("tempo: tempo map has no entry at offset 0")
	}

	entries := make([]Entry, 0, len(offsets))
	prevMs := 0
	prevBPM := s.Tempo[0]
	prevTicks := 0.0

	for i, ms := range offsets {
		bpm := s.Tempo[ms]
		var ticks float64
		if i == 0 {
			ticks = 0
		} else {
			msPerTick := 60_000 / (prevBPM * float64(resolution))
			deltaTicks := float64(ms-prevMs) / msPerTick
			ticks = prevTicks + deltaTicks
		}
		entries = append(entries, Entry{Ms: ms, BPM: bpm, Ticks: ticks})
		prevMs, prevBPM, prevTicks = ms, bpm, ticks
	}

	return &Itinerary{entries: entries, resolution: resolution, division: DivisionPPQ}, nil
}

// NewSMPTE builds an itinerary under SMPTE division: tempo-agnostic, ticking
// at framesPerSecond*resolution ticks per second.
func NewSMPTE(framesPerSecond float64, resolution int) *Itinerary {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Itinerary{resolution: resolution, division: DivisionSMPTE, framesPerSecond: framesPerSecond}
}

// Resolution returns the itinerary's PPQ/SMPTE resolution.
func (it *Itinerary) Resolution() int { return it.resolution }

// Division returns which division type this itinerary was built under.
func (it *Itinerary) Division() Division { return it.division }

// Entries returns the itinerary's tempo-change points, ms-ascending.
// Only meaningful for DivisionPPQ.
func (it *Itinerary) Entries() []Entry {
	out := make([]Entry, len(it.entries))
	copy(out, it.entries)
	return out
}

// TicksAt converts an absolute millisecond offset to an integer tick
// position, rounded to the nearest tick.
func (it *Itinerary) TicksAt(offsetMs int) int {
	if it.division == DivisionSMPTE {
		ticks := float64(offsetMs) / 1000 * (it.framesPerSecond * float64(it.resolution))
		return round(ticks)
	}

	if offsetMs == 0 {
		return 0
	}

	entry := it.entries[0]
	for _, e := range it.entries {
		if e.Ms <= offsetMs {
			entry = e
		} else {
			break
		}
	}

	msPerTick := 60_000 / (entry.BPM * float64(it.resolution))
	ticks := entry.Ticks + float64(offsetMs-entry.Ms)/msPerTick
	return round(ticks)
}

func round(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}
