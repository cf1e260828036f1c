package playback

import (
	"context"
	"time"

	"github.com/cesium/periferico/internal/domain/episode"
)

// EventType represents a media resource event type.
type EventType int

const (
	EventReady    EventType = iota // Resource can start playing
	EventDuration                  // Resource duration became known
	EventProgress                  // Playback position advanced
	EventEnded                     // Resource reached the end of the stream
	EventFailed                    // Resource failed to load or play
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventDuration:
		return "duration"
	case EventProgress:
		return "progress"
	case EventEnded:
		return "ended"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is emitted by a media resource.
type Event struct {
	Type     EventType
	Position time.Duration // Position (EventProgress)
	Duration time.Duration // Duration (EventReady, EventDuration; 0 if unknown)
	Err      error         // Failure cause (EventFailed)
}

// Emitter receives the events of one resource.
type Emitter func(Event)

// Resource is a single media handle. Implementations must not block on event
// delivery while executing these methods.
type Resource interface {
	Play() error
	Pause() error
	Seek(position time.Duration) error
	Close() error
}

// Loader opens media resources. Load starts loading asynchronously and returns
// immediately; the resource reports readiness and failures through emit.
// emit must not be called before Load returns, and ctx is cancelled once the
// store detaches from the resource.
type Loader interface {
	Load(ctx context.Context, ref episode.Ref, emit Emitter) (Resource, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, ref episode.Ref, emit Emitter) (Resource, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, ref episode.Ref, emit Emitter) (Resource, error) {
	return f(ctx, ref, emit)
}
