package devicepool

import (
	"context"

	"github.com/sinshu/go-meltysynth/meltysynth"
)

// TargetPoolSize is the number of pre-warmed devices each pool tries to
// keep on hand.
const TargetPoolSize = 4

// Registry is the explicit, injectable home for a process's synth and
// sequencer pools. The playback controller holds one rather than reaching
// for ambient globals, so tests can inject a stub registry (design note:
// "re-architect as an explicit configurable registry").
type Registry struct {
	synths     *Pool[*Synth]
	sequencers *Pool[*Sequencer]
}

// NewRegistry builds a registry whose synth pool is backed by soundFont.
func NewRegistry(soundFont *meltysynth.SoundFont) *Registry {
	return &Registry{
		synths:     NewPool(TargetPoolSize, NewSynthFactory(soundFont), func(*Synth) {}),
		sequencers: NewPool(TargetPoolSize, NewSequencerFactory(), func(*Sequencer) {}),
	}
}

// AcquireSynth returns the default synth if one is set, else a pooled one.
func (r *Registry) AcquireSynth(ctx context.Context) (*Synth, error) {
	return r.synths.Acquire(ctx)
}

// AcquireSequencer returns the default sequencer if one is set, else a
// pooled one.
func (r *Registry) AcquireSequencer(ctx context.Context) (*Sequencer, error) {
	return r.sequencers.Acquire(ctx)
}

// SetDefaultSynth installs a process-wide synth singleton, bypassing the pool.
func (r *Registry) SetDefaultSynth(s *Synth) { r.synths.SetDefault(s) }

// SetDefaultSequencer installs a process-wide sequencer singleton, bypassing
// the pool.
func (r *Registry) SetDefaultSequencer(sq *Sequencer) { r.sequencers.SetDefault(sq) }
