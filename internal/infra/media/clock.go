// Package media provides playback.Loader implementations. Audio is rendered by
// the listener's browser; the server keeps a wall-clock model of each resource
// so that position, progress and end of stream are known to every client.
package media

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/domain/episode"
)

// ErrResourceClosed is returned when a closed resource is used.
var ErrResourceClosed = errors.New("media resource closed")

// DefaultTick is how often a playing resource reports progress.
const DefaultTick = 250 * time.Millisecond

// clockResource is a resource whose position advances with the wall clock
// while playing.
type clockResource struct {
	mu sync.Mutex

	emit     playback.Emitter
	tick     time.Duration
	duration time.Duration

	position  time.Duration // Position when the clock was last (re)started
	startedAt time.Time     // Wall time of the last (re)start, zero when paused
	stop      context.CancelFunc
	closed    bool
}

func newClockResource(emit playback.Emitter, duration, tick time.Duration) *clockResource {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &clockResource{
		emit:     emit,
		tick:     tick,
		duration: duration,
	}
}

// Play starts advancing the clock.
func (r *clockResource) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrResourceClosed
	}
	if r.stop != nil {
		return nil
	}
	if r.duration > 0 && r.position >= r.duration {
		r.position = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.stop = cancel
	r.startedAt = toWallTime(time.Now())
	go r.run(ctx)
	return nil
}

// Pause freezes the clock at the current position.
func (r *clockResource) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrResourceClosed
	}
	r.haltLocked()
	return nil
}

// Seek moves the clock. A playing clock keeps playing from the new position.
func (r *clockResource) Seek(position time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrResourceClosed
	}
	r.position = position
	if r.stop != nil {
		r.startedAt = toWallTime(time.Now())
	}
	return nil
}

// Close stops the clock for good. It does not wait for the ticker goroutine.
func (r *clockResource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.haltLocked()
	r.closed = true
	return nil
}

// haltLocked stops the ticker and folds the elapsed time into position.
// Must be called with lock held.
func (r *clockResource) haltLocked() {
	if r.stop == nil {
		return
	}
	r.position = r.positionLocked()
	r.stop()
	r.stop = nil
	r.startedAt = time.Time{}
}

func (r *clockResource) positionLocked() time.Duration {
	position := r.position
	if r.stop != nil {
		position += toWallTime(time.Now()).Sub(r.startedAt)
	}
	if r.duration > 0 && position > r.duration {
		position = r.duration
	}
	return position
}

// run reports progress on every tick until the clock is halted or reaches the
// end. Events are emitted without holding the lock: the store calls back into
// the resource while holding its own lock.
func (r *clockResource) run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		if ctx.Err() != nil {
			r.mu.Unlock()
			return
		}
		position := r.positionLocked()
		ended := r.duration > 0 && position >= r.duration
		if ended {
			r.haltLocked()
		}
		r.mu.Unlock()

		r.emit(playback.Event{Type: playback.EventProgress, Position: position})
		if ended {
			r.emit(playback.Event{Type: playback.EventEnded})
			return
		}
	}
}

// toWallTime returns the time with monotonic clock stripped.
// This ensures that time differences are calculated using wall clock time.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

// ClockLoader opens resources of a fixed duration without touching the network.
// It backs demos and tests where the audio source is not reachable.
type ClockLoader struct {
	Duration time.Duration
	Tick     time.Duration
}

// Load returns a resource that becomes ready right after Load returns.
func (l *ClockLoader) Load(ctx context.Context, ref episode.Ref, emit playback.Emitter) (playback.Resource, error) {
	resource := newClockResource(emit, l.Duration, l.Tick)

	gate := make(chan struct{})
	defer close(gate)

	go func() {
		<-gate
		if ctx.Err() != nil {
			return
		}
		emit(playback.Event{Type: playback.EventReady, Duration: l.Duration})
	}()

	return resource, nil
}
