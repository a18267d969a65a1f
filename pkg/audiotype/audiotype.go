// Package audiotype provides the polymorphic audio-type dispatch the
// playback controller uses to set up, tear down, and stop playback for
// whatever audio-type tags are present in a score. MIDI is the only
// built-in variant; new back-ends plug in by registering a Handler.
package audiotype

import (
	"context"
	"fmt"

	"github.com/zurustar/scoreplay/pkg/logger"
	"github.com/zurustar/scoreplay/pkg/scoreerr"
)

// Tag identifies an audio-type variant.
type Tag string

// MIDI is the only built-in audio-type tag.
const MIDI Tag = "midi"

// Handler implements the three lifecycle hooks for one audio-type variant.
// payload is the audio context the handler operates on; it's typed as any
// here so this package doesn't need to depend on the concrete context type
// (avoiding an import cycle with pkg/audiocontext, which depends on this
// package to register its MIDI handler).
type Handler interface {
	SetUp(ctx context.Context, payload any) error
	TearDown(payload any) error
	StopPlayback(payload any) error
}

// Registry maps audio-type tags to their handler. Unknown tags are logged
// and treated as a no-op at every dispatch point, so a score mixing a
// known and an unimplemented audio-type still plays the parts it can.
type Registry struct {
	handlers map[Tag]Handler
}

// NewRegistry returns an empty dispatch registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Tag]Handler)}
}

// Register installs the handler for tag, replacing any previous one.
func (r *Registry) Register(tag Tag, h Handler) {
	r.handlers[tag] = h
}

// SetUp dispatches set_up for tag against payload.
func (r *Registry) SetUp(ctx context.Context, tag Tag, payload any) error {
	h, ok := r.handlers[tag]
	if !ok {
		return r.unknown(tag)
	}
	return h.SetUp(ctx, payload)
}

// TearDown dispatches tear_down for tag against payload.
func (r *Registry) TearDown(tag Tag, payload any) error {
	h, ok := r.handlers[tag]
	if !ok {
		return r.unknown(tag)
	}
	return h.TearDown(payload)
}

// StopPlayback dispatches stop_playback for tag against payload.
func (r *Registry) StopPlayback(tag Tag, payload any) error {
	h, ok := r.handlers[tag]
	if !ok {
		return r.unknown(tag)
	}
	return h.StopPlayback(payload)
}

// unknown logs a dispatch for a tag with no registered handler and no-ops.
// It still returns the sentinel error so callers that want to distinguish
// "ran" from "skipped" can, but it is not fatal; callers iterating a set of
// tags should not abort on it.
func (r *Registry) unknown(tag Tag) error {
	err := fmt.Errorf("%w: %s", scoreerr.ErrUnknownAudioType, tag)
	logger.GetLogger().Error("audiotype: dispatch skipped", "tag", tag, "error", err)
	return err
}
