// Package devicepool maintains pre-warmed pools of scarce, slow-to-open
// audio devices (synthesizers and sequencers) so that ad-hoc playback
// doesn't pay device-open latency on every call.
package devicepool

import (
	"context"
	"sync"

	"github.com/zurustar/scoreplay/pkg/logger"
)

// Pool is a bounded queue of open devices of type T, topped up in the
// background as it's drained. Once a default device is installed via
// SetDefault, Acquire always returns it and the queue is left untouched.
type Pool[T any] struct {
	mu        sync.Mutex
	target    int
	items     chan T
	newFn     func() (T, error)
	closeFn   func(T)
	def       *T
	refilling bool
}

// NewPool creates a pool that keeps up to target open devices on hand,
// built with newFn and released with closeFn.
func NewPool[T any](target int, newFn func() (T, error), closeFn func(T)) *Pool[T] {
	return &Pool[T]{
		target:  target,
		items:   make(chan T, target),
		newFn:   newFn,
		closeFn: closeFn,
	}
}

// SetDefault installs a process-wide singleton device. Once set, Acquire
// always returns it without touching the pool queue; the installed device
// is read-only for the remainder of the process.
func (p *Pool[T]) SetDefault(device T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.def = &device
}

// Acquire returns the default device if one is set; otherwise it kicks a
// background top-up and blocks on the queue until a device is available or
// ctx is done.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	p.mu.Lock()
	if p.def != nil {
		d := *p.def
		p.mu.Unlock()
		return d, nil
	}
	p.kickRefill()
	p.mu.Unlock()

	var zero T
	select {
	case d := <-p.items:
		return d, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// kickRefill starts a background fill-to-target worker if one isn't
// already running. Must be called with p.mu held.
func (p *Pool[T]) kickRefill() {
	if p.refilling {
		return
	}
	p.refilling = true
	go p.refill()
}

func (p *Pool[T]) refill() {
	defer func() {
		p.mu.Lock()
		p.refilling = false
		p.mu.Unlock()
	}()

	for {
		p.mu.Lock()
		have := len(p.items)
		target := p.target
		hasDefault := p.def != nil
		p.mu.Unlock()

		if hasDefault || have >= target {
			return
		}

		device, err := p.newFn()
		if err != nil {
			logger.GetLogger().Error("devicepool: refill failed", "error", err)
			return
		}

		select {
		case p.items <- device:
		default:
			// Queue filled or trimmed while we were building; this
			// instance is surplus, close it.
			p.closeFn(device)
			return
		}
	}
}

// Len reports how many devices are currently sitting in the queue, mainly
// for tests.
func (p *Pool[T]) Len() int {
	return len(p.items)
}
