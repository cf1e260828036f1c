// Package playbacktest provides a scripted media loader for playback tests.
package playbacktest

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/domain/episode"
)

// Loader records every Load call and hands out scriptable resources.
type Loader struct {
	mu        sync.Mutex
	resources []*Resource

	// LoadErr, when set, makes Load fail synchronously.
	LoadErr error
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load implements playback.Loader.
func (l *Loader) Load(ctx context.Context, ref episode.Ref, emit playback.Emitter) (playback.Resource, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.LoadErr != nil {
		return nil, l.LoadErr
	}

	r := &Resource{Ref: ref, ctx: ctx, emit: emit}
	l.resources = append(l.resources, r)
	return r, nil
}

// Resources returns every resource loaded so far, oldest first.
func (l *Loader) Resources() []*Resource {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]*Resource, len(l.resources))
	copy(result, l.resources)
	return result
}

// Last returns the most recently loaded resource, or nil.
func (l *Loader) Last() *Resource {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.resources) == 0 {
		return nil
	}
	return l.resources[len(l.resources)-1]
}

// Resource is a media resource driven by the test.
type Resource struct {
	Ref  episode.Ref
	ctx  context.Context
	emit playback.Emitter

	mu       sync.Mutex
	playing  bool
	closed   bool
	position time.Duration
	calls    []string

	// FailPlay, when set, is returned by Play.
	FailPlay error
}

// Play implements playback.Resource.
func (r *Resource) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, "play")
	if r.FailPlay != nil {
		return r.FailPlay
	}
	if r.closed {
		return errors.New("resource closed")
	}
	r.playing = true
	return nil
}

// Pause implements playback.Resource.
func (r *Resource) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, "pause")
	r.playing = false
	return nil
}

// Seek implements playback.Resource.
func (r *Resource) Seek(position time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, "seek")
	r.position = position
	return nil
}

// Close implements playback.Resource.
func (r *Resource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, "close")
	r.closed = true
	r.playing = false
	return nil
}

// Playing reports whether the store last asked the resource to play.
func (r *Resource) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// Closed reports whether the store released the resource.
func (r *Resource) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Cancelled reports whether the load context was cancelled.
func (r *Resource) Cancelled() bool {
	return r.ctx.Err() != nil
}

// Position returns the last position requested through Seek.
func (r *Resource) Position() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

// Calls returns the resource methods invoked so far, in order.
func (r *Resource) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]string, len(r.calls))
	copy(result, r.calls)
	return result
}

// Ready emits EventReady with the given duration.
func (r *Resource) Ready(duration time.Duration) {
	r.emit(playback.Event{Type: playback.EventReady, Duration: duration})
}

// DurationKnown emits EventDuration.
func (r *Resource) DurationKnown(duration time.Duration) {
	r.emit(playback.Event{Type: playback.EventDuration, Duration: duration})
}

// Progress emits EventProgress.
func (r *Resource) Progress(position time.Duration) {
	r.emit(playback.Event{Type: playback.EventProgress, Position: position})
}

// End emits EventEnded.
func (r *Resource) End() {
	r.emit(playback.Event{Type: playback.EventEnded})
}

// Fail emits EventFailed.
func (r *Resource) Fail(err error) {
	r.emit(playback.Event{Type: playback.EventFailed, Err: err})
}

// Recorder collects the states a store notifies.
type Recorder struct {
	mu     sync.Mutex
	states []playback.State
}

// Record is a playback.Listener.
func (r *Recorder) Record(state playback.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

// States returns every recorded state.
func (r *Recorder) States() []playback.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]playback.State, len(r.states))
	copy(result, r.states)
	return result
}

// Statuses returns the status of every recorded state.
func (r *Recorder) Statuses() []playback.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]playback.Status, 0, len(r.states))
	for _, s := range r.states {
		result = append(result, s.Status)
	}
	return result
}

// Reset forgets the recorded states.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = nil
}
