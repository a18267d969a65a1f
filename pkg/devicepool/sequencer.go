package devicepool

import (
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"
)

// Receiver accepts raw MIDI channel-voice message bytes. *Synth implements
// this; the Sequencer's transmitter is wired to a Synth's receiver by the
// audio context during set_up.
type Receiver interface {
	ProcessMessage(data []byte)
}

type timedMessage struct {
	absTick int
	message smf.Message
}

// Sequencer is a pooled, opened MIDI sequencer: it holds a loaded sequence
// and, once started, walks it in tick order, pacing delivery to a Receiver
// against wall-clock time using the sequence's own tempo meta events.
type Sequencer struct {
	mu       sync.Mutex
	loaded   *smf.SMF
	ppq      int
	timeline []timedMessage
}

// Close clears the loaded sequence. A Sequencer carries no OS resource
// beyond its in-memory state.
func (sq *Sequencer) Close() {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	sq.loaded = nil
	sq.timeline = nil
}

// Load installs seq as the sequence to play and resets tick position to 0.
func (sq *Sequencer) Load(seq *smf.SMF) {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	ppq := tempo128
	if mt, ok := seq.TimeFormat.(smf.MetricTicks); ok {
		ppq = int(mt)
	}

	sq.loaded = seq
	sq.ppq = ppq
	sq.timeline = buildTimeline(seq)
}

const tempo128 = 128

// buildTimeline flattens every track into one absolute-tick-ordered list.
func buildTimeline(seq *smf.SMF) []timedMessage {
	var timeline []timedMessage
	for _, track := range seq.Tracks {
		absTick := 0
		for _, ev := range track {
			absTick += int(ev.Delta)
			timeline = append(timeline, timedMessage{absTick: absTick, message: ev.Message})
		}
	}
	for i := 1; i < len(timeline); i++ {
		for j := i; j > 0 && timeline[j].absTick < timeline[j-1].absTick; j-- {
			timeline[j], timeline[j-1] = timeline[j-1], timeline[j]
		}
	}
	return timeline
}

// Play walks the loaded sequence, delivering channel-voice messages to recv
// paced to wall-clock time by the sequence's embedded tempo. It returns a
// channel closed when playback reaches end-of-track, and stops early if
// stop is closed. Play is a no-op (the returned channel closes right away,
// with no messages delivered) if nothing is loaded.
func (sq *Sequencer) Play(recv Receiver, stop <-chan struct{}) <-chan struct{} {
	sq.mu.Lock()
	timeline := sq.timeline
	ppq := sq.ppq
	sq.mu.Unlock()

	done := make(chan struct{})

	go func() {
		defer close(done)

		lastTick := 0
		microsPerBeat := 500_000.0 // 120 BPM until a set-tempo event says otherwise

		for _, tm := range timeline {
			tickDelta := tm.absTick - lastTick
			if tickDelta > 0 {
				wait := time.Duration(float64(tickDelta) * (microsPerBeat / float64(ppq)) * float64(time.Microsecond))
				select {
				case <-stop:
					return
				case <-time.After(wait):
				}
			}
			lastTick = tm.absTick

			if tm.message.Type() == smf.MetaTempoMsg {
				var bpm float64
				if tm.message.GetMetaTempo(&bpm) {
					microsPerBeat = 60_000_000 / bpm
				}
			}

			if tm.message.IsPlayable() {
				recv.ProcessMessage(tm.message.Bytes())
			}
		}
	}()

	return done
}

// NewSequencerFactory returns a constructor suitable for a Pool[*Sequencer].
// Opening a sequencer carries no dependency on any particular synth; wiring
// happens later, in the audio context's set_up.
func NewSequencerFactory() func() (*Sequencer, error) {
	return func() (*Sequencer, error) {
		return &Sequencer{}, nil
	}
}
