// Package listener provides the listener session domain entity.
package listener

import "time"

// Client identifies how a listener reaches the site.
type Client string

const (
	ClientWeb Client = "web" // Browser with a session cookie
	ClientRPC Client = "rpc" // PlayerService caller
)

// Session represents one listener of the site.
type Session struct {
	ID       string    // UUID
	Client   Client    // Client that opened the session
	JoinedAt time.Time // Open time
	LastSeen time.Time // Last request time
	Requests int       // Number of requests seen
}

// NewSession creates a new listener session.
func NewSession(id string, client Client, now time.Time) *Session {
	return &Session{
		ID:       id,
		Client:   client,
		JoinedAt: now,
		LastSeen: now,
	}
}

// Touch records a request at now.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastSeen) {
		s.LastSeen = now
	}
	s.Requests++
}

// IdleFor returns how long the session has been unused at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	if now.Before(s.LastSeen) {
		return 0
	}
	return now.Sub(s.LastSeen)
}

// Expired reports whether the session has been idle longer than timeout.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && s.IdleFor(now) > timeout
}
