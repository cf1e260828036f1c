// Package playback provides the shared playback store and per-episode bindings.
package playback

import (
	"time"

	"github.com/cesium/periferico/internal/domain/episode"
)

// Status represents the playback status of a store.
type Status int

const (
	StatusIdle    Status = iota // Nothing loaded
	StatusLoading               // Resource requested, not ready yet
	StatusPlaying               // Resource is playing
	StatusPaused                // Resource is paused
	StatusEnded                 // Resource reached the end of the stream
	StatusError                 // Resource failed to load or play
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusEnded:
		return "ended"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseStatus returns the status named by s, or StatusIdle when s is unknown.
func ParseStatus(s string) Status {
	for st := StatusIdle; st <= StatusError; st++ {
		if st.String() == s {
			return st
		}
	}
	return StatusIdle
}

// State is the store's playback record. Values handed out by the store are
// copies; Current must be treated as read-only.
type State struct {
	Current     *episode.Ref  // Episode currently loaded (nil when idle)
	Status      Status        // Playback status
	CurrentTime time.Duration // Position, 0 when nothing is loaded
	Duration    time.Duration // Length, 0 until known
	Err         string        // Last resource failure (only with StatusError)
}

// IsPlaying reports whether the episode identified by id is the one playing in state.
func IsPlaying(state State, id string) bool {
	return state.Current != nil && state.Current.ID == id && state.Status == StatusPlaying
}

// IsCurrent reports whether the episode identified by id is loaded in state.
func IsCurrent(state State, id string) bool {
	return state.Current != nil && state.Current.ID == id
}

// clone returns a copy of the state that shares nothing mutable with s.
func (s State) clone() State {
	if s.Current != nil {
		ref := *s.Current
		s.Current = &ref
	}
	return s
}

// clamp bounds position to [0, duration] when the duration is known.
func clamp(position, duration time.Duration) time.Duration {
	if position < 0 {
		return 0
	}
	if duration > 0 && position > duration {
		return duration
	}
	return position
}
