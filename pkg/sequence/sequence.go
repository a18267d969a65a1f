// Package sequence materializes a score's channel assignments, tempo
// itinerary, and note events into a single-track Standard MIDI File
// sequence.
package sequence

import (
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/zurustar/scoreplay/pkg/channel"
	"github.com/zurustar/scoreplay/pkg/score"
	"github.com/zurustar/scoreplay/pkg/scoreerr"
	"github.com/zurustar/scoreplay/pkg/tempo"
)

// maxTempoMicros is 2^24-1, the largest value that fits the MIDI set-tempo
// meta event's 3-byte microseconds-per-quarter-note field.
const maxTempoMicros = 1<<24 - 1

// ordering priority for events that share a tick: program change and
// set-tempo first, then controller changes, then note-on. note-off is
// placed first so a note ending exactly when another begins at the same
// tick doesn't choke the new one.
const (
	priorityNoteOff = iota
	priorityProgramChange
	priorityTempo
	priorityControlChange
	priorityNoteOn
)

type timedEvent struct {
	tick     int
	priority int
	seq      int
	message  smf.Message
}

// Build constructs a PPQ, resolution-128 single-track sequence from events
// (already windowed/shifted by the caller) using the channel
// assignments and tempo itinerary already computed for the score.
func Build(assignments map[string]channel.Assignment, events []score.Event, itinerary *tempo.Itinerary) (*smf.SMF, error) {
	out := smf.NewSMF0()
	out.TimeFormat = smf.MetricTicks(tempo.DefaultResolution)

	var items []timedEvent
	seq := 0
	add := func(tick, priority int, msg smf.Message) {
		items = append(items, timedEvent{tick: tick, priority: priority, seq: seq, message: msg})
		seq++
	}

	for _, id := range programChangeOrder(assignments) {
		a := assignments[id]
		if a.Patch == nil {
			continue
		}
		add(0, priorityProgramChange, smf.Message(midi.ProgramChange(uint8(a.Channel), uint8(*a.Patch-1))))
	}

	for _, entry := range itinerary.Entries() {
		usq := int(60_000_000 / entry.BPM)
		if usq > maxTempoMicros {
			return nil, fmt.Errorf("%w: %g BPM needs %d us/quarter", scoreerr.ErrTempoOutOfRange, entry.BPM, usq)
		}
		tick := itinerary.TicksAt(entry.Ms)
		add(tick, priorityTempo, smf.Message(smf.MetaTempo(entry.BPM)))
	}

	for _, ev := range events {
		if ev.Function != nil {
			continue
		}
		a, ok := assignments[ev.InstrumentID]
		if !ok {
			continue
		}

		onTick := itinerary.TicksAt(ev.OffsetMs)
		offTick := itinerary.TicksAt(ev.OffsetMs + ev.DurationMs)

		ch := uint8(a.Channel)
		note := uint8(ev.MidiNote)
		velocity := uint8(clampVelocity(ev.Volume))

		add(onTick, priorityControlChange, smf.Message(midi.ControlChange(ch, 7, uint8(clampVelocity(ev.TrackVolume)))))
		add(onTick, priorityControlChange, smf.Message(midi.ControlChange(ch, 10, uint8(clampVelocity(ev.Panning)))))
		add(onTick, priorityNoteOn, smf.Message(midi.NoteOn(ch, note, velocity)))
		add(offTick, priorityNoteOff, smf.Message(midi.NoteOffVelocity(ch, note, velocity)))
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].tick != items[j].tick {
			return items[i].tick < items[j].tick
		}
		if items[i].priority != items[j].priority {
			return items[i].priority < items[j].priority
		}
		return items[i].seq < items[j].seq
	})

	var track smf.Track
	lastTick := 0
	for _, item := range items {
		delta := item.tick - lastTick
		if delta < 0 {
			delta = 0
		}
		track.Add(uint32(delta), item.message)
		lastTick = item.tick
	}
	track.Close(0)

	out.Add(track)
	return out, nil
}

// programChangeOrder returns all assigned instrument ids in deterministic
// (sorted) order, so the emitted program-change events don't vary between
// builds of the same score. Ids without a patch are skipped by the caller.
func programChangeOrder(assignments map[string]channel.Assignment) []string {
	ids := make([]string, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// clampVelocity maps a [0,1] value to a [0,127] MIDI byte, clamping
// out-of-range inputs rather than rejecting them.
func clampVelocity(v float64) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return int(v*127 + 0.5)
}
