// Package playback implements the orchestration layer gluing the channel
// allocator, tempo converter, sequence builder, audio context, and
// audio-type dispatch into a play/export API.
package playback

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/zurustar/scoreplay/pkg/audiocontext"
	"github.com/zurustar/scoreplay/pkg/audiotype"
	"github.com/zurustar/scoreplay/pkg/channel"
	"github.com/zurustar/scoreplay/pkg/logger"
	"github.com/zurustar/scoreplay/pkg/score"
	"github.com/zurustar/scoreplay/pkg/scoreerr"
	"github.com/zurustar/scoreplay/pkg/sequence"
	"github.com/zurustar/scoreplay/pkg/tempo"
)

// Options configures play/export/create_sequence.
type Options struct {
	// From is the start position: nil (score beginning), a marker name
	// (string), or a literal offset in ms (int).
	From any
	// To is the end position: nil (score end), a marker name, or an
	// offset in ms.
	To any
	// OneOff tears down the audio context when playback ends or is
	// stopped.
	OneOff bool
	// Async, for Play, returns immediately instead of blocking on
	// completion.
	Async bool
}

// Controller is the playback/export orchestrator. It owns one audio
// context per score it has touched and the audio-type dispatch registry
// used to set them up.
type Controller struct {
	dispatch *audiotype.Registry

	mu       sync.Mutex
	contexts map[*score.Score]*audiocontext.Context
}

// NewController builds a controller whose MIDI audio-type is backed by
// devices. Callers inject a stub audiocontext.DeviceRegistry in tests.
func NewController(devices audiocontext.DeviceRegistry) *Controller {
	dispatch := audiotype.NewRegistry()
	dispatch.Register(audiotype.MIDI, audiocontext.NewMIDIHandler(devices))

	return &Controller{
		dispatch: dispatch,
		contexts: make(map[*score.Score]*audiocontext.Context),
	}
}

// Handle is returned by Play: a reference to the score being played, plus
// controls over the running playback.
type Handle struct {
	Score *score.Score

	controller *Controller
	oneOff     bool
	stopOnce   sync.Once
	stopCh     chan struct{}
	doneCh     <-chan struct{}
	stream     *audiocontext.Stream
	player     *audio.Player
}

// Stop dispatches tear_down when the handle is one-off, else
// stop_playback. It's synchronous and best-effort immediate: it signals
// the sequencer's transport to pause but does not wait for in-flight
// synthesizer audio to drain beyond the all-notes-off fan-out.
func (h *Handle) Stop() error {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.player != nil {
			h.player.Pause()
		}
		if h.stream != nil {
			h.stream.Stop()
		}
	})

	if h.oneOff {
		return h.controller.TearDown(h.Score)
	}
	return h.controller.stopPlayback(h.Score)
}

// Wait blocks until the completion signal is fulfilled. It may be called
// multiple times; every call blocks until fulfillment and returns nil.
func (h *Handle) Wait() error {
	<-h.doneCh
	return nil
}

func (c *Controller) ensureContext(s *score.Score) *audiocontext.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	ac, ok := c.contexts[s]
	if !ok {
		ac = audiocontext.New()
		c.contexts[s] = ac
	}
	return ac
}

func (c *Controller) contextFor(s *score.Score) (*audiocontext.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ac, ok := c.contexts[s]
	return ac, ok
}

// audioTypesFor derives the set of audio-type tags present among s's
// instruments. Instrument config types containing "midi" map to
// audiotype.MIDI; anything else is passed through verbatim as its own tag,
// so an unrecognized type dispatches to audiotype.Registry's logged no-op
// rather than aborting the whole score.
func audioTypesFor(s *score.Score) []audiotype.Tag {
	seen := make(map[audiotype.Tag]bool)
	for _, inst := range s.Instruments {
		tag := audiotype.Tag(inst.Config.Type)
		if containsMIDI(inst.Config.Type) {
			tag = audiotype.MIDI
		}
		seen[tag] = true
	}
	tags := make([]audiotype.Tag, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	return tags
}

func containsMIDI(typ string) bool {
	for i := 0; i+4 <= len(typ); i++ {
		if typ[i] == 'm' && typ[i+1] == 'i' && typ[i+2] == 'd' && typ[i+3] == 'i' {
			return true
		}
	}
	return false
}

// SetUp runs set_up for every audio-type present in score's instruments.
// Unknown audio types are logged and skipped, not fatal.
func (c *Controller) SetUp(ctx context.Context, s *score.Score) error {
	ac := c.ensureContext(s)
	for _, tag := range audioTypesFor(s) {
		if err := c.dispatch.SetUp(ctx, tag, ac); err != nil {
			if tag != audiotype.MIDI {
				continue // unknown audio type: already logged by the registry
			}
			return err
		}
	}
	return nil
}

// TearDown runs tear_down for every active audio-type on score's context.
func (c *Controller) TearDown(s *score.Score) error {
	ac, ok := c.contextFor(s)
	if !ok {
		return nil
	}
	for _, tag := range ac.ActiveTags() {
		if err := c.dispatch.TearDown(tag, ac); err != nil && tag == audiotype.MIDI {
			return err
		}
	}
	c.mu.Lock()
	delete(c.contexts, s)
	c.mu.Unlock()
	return nil
}

func (c *Controller) stopPlayback(s *score.Score) error {
	ac, ok := c.contextFor(s)
	if !ok {
		return nil
	}
	for _, tag := range ac.ActiveTags() {
		if err := c.dispatch.StopPlayback(tag, ac); err != nil && tag == audiotype.MIDI {
			return err
		}
	}
	return nil
}

// resolveOffset resolves a from/to bound: nil means "unset", an int is a
// literal ms offset, a string is a marker name looked up in s.Markers.
func resolveOffset(s *score.Score, ref any) (*int, error) {
	switch v := ref.(type) {
	case nil:
		return nil, nil
	case int:
		return &v, nil
	case string:
		ms, ok := s.Markers[v]
		if !ok {
			return nil, fmt.Errorf("%w: %s", scoreerr.ErrMarkerNotFound, v)
		}
		return &ms, nil
	default:
		return nil, fmt.Errorf("playback: unsupported offset reference type %T", ref)
	}
}

// windowAndShift resolves the effective start, shifts events by it, drops
// events outside [0, to-start), and sorts the result ascending. It returns
// the shifted events and the effective start so the caller can build a
// matching tempo itinerary.
func windowAndShift(s *score.Score, events []score.Event, opts Options) ([]score.Event, int, *int, error) {
	from, err := resolveOffset(s, opts.From)
	if err != nil {
		return nil, 0, nil, err
	}
	to, err := resolveOffset(s, opts.To)
	if err != nil {
		return nil, 0, nil, err
	}

	source := events
	if source == nil {
		source = s.Events
	}

	var effectiveStart int
	switch {
	case from != nil:
		effectiveStart = *from
	case events != nil && len(events) > 0:
		min := events[0].OffsetMs
		for _, ev := range events[1:] {
			if ev.OffsetMs < min {
				min = ev.OffsetMs
			}
		}
		if min < 0 {
			min = 0
		}
		effectiveStart = min
	default:
		effectiveStart = 0
	}

	var windowLen *int
	if to != nil {
		l := *to - effectiveStart
		windowLen = &l
	}

	shifted := make([]score.Event, 0, len(source))
	for _, ev := range source {
		offset := ev.OffsetMs - effectiveStart
		if offset < 0 {
			continue
		}
		if windowLen != nil && offset >= *windowLen {
			continue
		}
		shifted = append(shifted, shiftEvent(ev, offset))
	}

	sort.SliceStable(shifted, func(i, j int) bool { return shifted[i].OffsetMs < shifted[j].OffsetMs })

	return shifted, effectiveStart, to, nil
}

func shiftEvent(ev score.Event, newOffset int) score.Event {
	ev.OffsetMs = newOffset
	return ev
}

// windowedTempoMap reslices the score's tempo map so that offset 0 in the
// result corresponds to effectiveStart in the original: the tempo in
// effect at effectiveStart becomes the new entry at 0, and later entries
// are shifted to match.
func windowedTempoMap(t score.TempoMap, effectiveStart int) score.TempoMap {
	offsets := make([]int, 0, len(t))
	for ms := range t {
		offsets = append(offsets, ms)
	}
	sort.Ints(offsets)

	out := make(score.TempoMap, len(t))
	activeBPM := t[offsets[0]]
	for _, ms := range offsets {
		if ms <= effectiveStart {
			activeBPM = t[ms]
			continue
		}
		out[ms-effectiveStart] = t[ms]
	}
	out[0] = activeBPM
	return out
}

// createSequence ensures an audio context, runs set_up, resolves and
// applies the playback window, builds the sequence, and loads it into the
// context's sequencer.
func (c *Controller) createSequence(ctx context.Context, s *score.Score, events []score.Event, opts Options) (*smf.SMF, error) {
	if err := c.SetUp(ctx, s); err != nil {
		return nil, err
	}

	shifted, effectiveStart, _, err := windowAndShift(s, events, opts)
	if err != nil {
		return nil, err
	}

	windowedTempo := windowedTempoMap(s.Tempo, effectiveStart)
	windowedScore := *s
	windowedScore.Tempo = windowedTempo

	assignments, err := channel.Allocate(s)
	if err != nil {
		return nil, err
	}

	itinerary, err := tempo.BuildPPQ(&windowedScore, tempo.DefaultResolution)
	if err != nil {
		return nil, err
	}

	seq, err := sequence.Build(assignments, shifted, itinerary)
	if err != nil {
		return nil, err
	}

	ac := c.ensureContext(s)
	if ac.Sequencer == nil {
		return nil, fmt.Errorf("%w: no MIDI audio-type set up for this score", scoreerr.ErrDeviceUnavailable)
	}
	ac.Sequencer.Load(seq)
	ac.SetAssignments(assignments)

	return seq, nil
}

// Play builds and starts the sequence for s. See Options' doc for the
// one_off/async combination semantics.
func (c *Controller) Play(ctx context.Context, s *score.Score, events []score.Event, opts Options) (*Handle, error) {
	ac := c.ensureContext(s)

	if _, err := c.createSequence(ctx, s, events, opts); err != nil {
		return nil, err
	}

	stopCh := make(chan struct{})
	doneCh := ac.Sequencer.Play(ac.Receiver, stopCh)

	// Real-time (non-export) playback renders the synth's voice state to
	// the process audio output through an ebiten player fed by a Stream.
	var stream *audiocontext.Stream
	var player *audio.Player
	if ac.Synth != nil {
		stream = audiocontext.NewStream(ac.Synth)
		p, err := audiocontext.SharedAudioContext().NewPlayer(stream)
		if err != nil {
			return nil, fmt.Errorf("playback: failed to create audio player: %w", err)
		}
		player = p
		player.Play()
	}

	handle := &Handle{
		Score:      s,
		controller: c,
		oneOff:     opts.OneOff,
		stopCh:     stopCh,
		doneCh:     doneCh,
		stream:     stream,
		player:     player,
	}

	stopAudio := func() {
		if player != nil {
			player.Pause()
		}
		if stream != nil {
			stream.Stop()
		}
	}

	switch {
	case opts.OneOff && opts.Async:
		go func() {
			<-doneCh
			stopAudio()
			if err := c.TearDown(s); err != nil {
				logger.GetLogger().Error("playback: tear_down after async one-off playback failed", "error", err)
			}
		}()
	case opts.OneOff && !opts.Async:
		<-doneCh
		stopAudio()
		if err := c.TearDown(s); err != nil {
			return handle, err
		}
	case !opts.OneOff && opts.Async:
		// start and return immediately
	default: // !OneOff && !Async
		<-doneCh
	}

	return handle, nil
}

// Export builds the full (unwindowed by default, but opts may still
// window it) sequence for s and writes it to path as a Type-0 Standard
// MIDI File.
func (c *Controller) Export(ctx context.Context, s *score.Score, path string, opts Options) error {
	seq, err := c.createSequence(ctx, s, nil, opts)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", scoreerr.ErrIOError, err)
	}
	defer f.Close()

	if _, err := seq.WriteTo(f); err != nil {
		return fmt.Errorf("%w: %v", scoreerr.ErrIOError, err)
	}
	return nil
}
