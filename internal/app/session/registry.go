// Package session keeps one playback store per listener session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/cesium/periferico/internal/app/notification"
	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/domain/listener"
)

// ErrUnknownSession is returned for ids the registry does not know.
var ErrUnknownSession = errors.New("unknown session")

// Session is one listener's playback context.
type Session struct {
	ID            string
	Store         *playback.Store
	Notifications *notification.Manager

	listener *listener.Session // guarded by the registry lock
	done     chan struct{}
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) close() {
	s.Notifications.Close()
	s.Store.Close()
	close(s.done)
}

// Registry manages listener sessions with thread-safe access.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	loader        playback.Loader
	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	closed        bool
}

// NewRegistry creates a registry whose sessions load media through loader.
func NewRegistry(loader playback.Loader, idleTimeout, sweepInterval time.Duration) *Registry {
	return &Registry{
		sessions:      make(map[string]*Session),
		loader:        loader,
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		now:           time.Now,
	}
}

// Open creates a new session with an idle store.
func (r *Registry) Open(client listener.Client) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("session registry closed")
	}

	id := uuid.New().String()
	store := playback.NewStore(r.loader)
	notifications := notification.NewManager()
	notifications.Watch(store)

	session := &Session{
		ID:            id,
		Store:         store,
		Notifications: notifications,
		listener:      listener.NewSession(id, client, r.now()),
		done:          make(chan struct{}),
	}
	r.sessions[id] = session

	zlog.Info().Msgf("session: opened: id=%s client=%s sessions=%d", id, client, len(r.sessions))
	return session, nil
}

// Get retrieves a session by ID and records the use.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	session.listener.Touch(r.now())
	return session, nil
}

// Resolve returns the session with the given ID, opening a new one when the ID
// is empty or unknown (expired cookies included).
func (r *Registry) Resolve(id string, client listener.Client) (*Session, bool, error) {
	if id != "" {
		if session, err := r.Get(id); err == nil {
			return session, false, nil
		}
	}
	session, err := r.Open(client)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// Validate checks if a session exists.
func (r *Registry) Validate(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrUnknownSession
	}
	return nil
}

// Sweep closes every session idle longer than the idle timeout, unloading its
// store. Sessions with live subscribers are kept. It returns the number of
// closed sessions.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []*Session
	for id, session := range r.sessions {
		if !session.listener.Expired(now, r.idleTimeout) {
			continue
		}
		if session.Notifications.SubscriberCount() > 0 {
			session.listener.Touch(now)
			continue
		}
		expired = append(expired, session)
		delete(r.sessions, id)
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	// Closing unloads the store, which notifies outside the registry lock.
	for _, session := range expired {
		session.close()
		zlog.Info().Msgf("session: expired: id=%s", session.ID)
	}
	if len(expired) > 0 {
		zlog.Debug().Msgf("session: sweep done: expired=%d remaining=%d", len(expired), remaining)
	}
	return len(expired)
}

// Run sweeps idle sessions periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.sweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// Count returns the number of sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close closes all sessions. Later Open calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.sessions = make(map[string]*Session)
	r.closed = true
	r.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}
	zlog.Info().Msgf("session: registry closed: sessions=%d", len(sessions))
}
