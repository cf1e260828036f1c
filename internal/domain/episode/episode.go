// Package episode provides the Episode domain entity.
package episode

import (
	"time"
)

// Audio describes the playable enclosure of an episode.
type Audio struct {
	Src  string // Audio URL
	Type string // MIME type, e.g. audio/mpeg
}

// Episode represents a podcast entry as produced by the feed adapter.
type Episode struct {
	ID          string        // Decimal id, highest for the most recent episode
	Title       string        // Episode title
	Description string        // First line of the plain-text summary
	Content     string        // Rich show notes (HTML or markdown), may be empty
	Published   time.Time     // Publication time
	Audio       Audio         // Audio enclosure
	Duration    time.Duration // Duration hint from the feed (0 if unknown)
}

// Ref is the identity and playable metadata needed to start playback.
// A Ref is an immutable value; two refs are equal when their IDs match.
type Ref struct {
	ID          string
	Title       string
	AudioSource string
	AudioType   string
	Link        string
}

// Ref returns the playable reference for the episode.
func (e Episode) Ref() Ref {
	return Ref{
		ID:          e.ID,
		Title:       e.Title,
		AudioSource: e.Audio.Src,
		AudioType:   e.Audio.Type,
		Link:        Link(e.ID),
	}
}

// Link returns the site path of the episode detail page.
func Link(id string) string {
	return "/" + id
}

// Equal reports whether both refs identify the same episode.
func (r Ref) Equal(other Ref) bool {
	return r.ID == other.ID
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r.ID == ""
}
