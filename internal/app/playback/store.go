package playback

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/cesium/periferico/internal/domain/episode"
)

// ErrNothingLoaded is returned by Seek when no episode is loaded.
var ErrNothingLoaded = errors.New("no episode loaded")

// Listener receives the latest state after every change.
type Listener func(State)

type subscriber struct {
	id     uint64
	fn     Listener
	active atomic.Bool
}

// Store is the single source of truth for one session's playback. It owns at
// most one media resource and is the only writer of State.
type Store struct {
	mu sync.Mutex

	loader Loader

	// Playback state
	state State

	// Current resource
	resource   Resource
	generation uint64             // Identifies the resource events belong to
	loadCancel context.CancelFunc // Cancels the current load context

	// Subscriptions
	subscribers []*subscriber
	nextID      uint64

	// Notification rounds waiting to be delivered, in mutation order
	pending     []State
	dispatching bool

	closed bool
}

// NewStore creates an idle store that opens resources through loader.
func NewStore(loader Loader) *Store {
	return &Store{
		loader: loader,
		state:  State{Status: StatusIdle},
	}
}

// Toggle is the single entry point for play/pause requests.
//
// A ref different from the current one (or any ref after an error) replaces the
// current episode and starts loading it. For the current episode, Playing
// pauses and Paused/Ended resumes. A toggle of the episode that is still
// loading is ignored.
func (s *Store) Toggle(ref episode.Ref) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	switch {
	case s.state.Current == nil || !s.state.Current.Equal(ref) || s.state.Status == StatusError:
		s.loadLocked(ref)
	case s.state.Status == StatusPlaying:
		s.pauseLocked()
	case s.state.Status == StatusPaused:
		s.resumeLocked(false)
	case s.state.Status == StatusEnded:
		s.resumeLocked(true)
	default:
		zlog.Debug().Msgf("playback: toggle ignored while loading: episode=%s", ref.ID)
	}
	s.mu.Unlock()

	s.dispatch()
}

// Seek moves the playback position of the current episode. The position is
// clamped to [0, duration]; the status is left unchanged.
func (s *Store) Seek(position time.Duration) error {
	s.mu.Lock()
	if s.state.Current == nil {
		s.mu.Unlock()
		return ErrNothingLoaded
	}

	position = clamp(position, s.state.Duration)
	if s.state.Duration == 0 {
		position = 0
	}

	if s.resource != nil {
		if err := s.resource.Seek(position); err != nil {
			s.failLocked(errors.Wrap(err, "seek failed"))
			s.mu.Unlock()
			s.dispatch()
			return nil
		}
	}

	if position != s.state.CurrentTime {
		s.state.CurrentTime = position
		s.publishLocked()
	}
	s.mu.Unlock()

	s.dispatch()
	return nil
}

// Unload detaches the current resource and returns the store to Idle.
func (s *Store) Unload() {
	s.mu.Lock()
	if s.state.Current != nil {
		s.detachLocked()
		s.state = State{Status: StatusIdle}
		s.publishLocked()
	}
	s.mu.Unlock()

	s.dispatch()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to be called with the latest state on every change.
// Listeners are called in registration order, outside the store lock, so they
// may call back into the store. The returned function removes the listener.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := &subscriber{id: s.nextID, fn: fn}
	sub.active.Store(true)
	s.subscribers = append(s.subscribers, sub)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(sub.id) })
	}
}

func (s *Store) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub.id == id {
			sub.active.Store(false)
			s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of registered listeners.
func (s *Store) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Close unloads the store and drops every listener. Further toggles are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.detachLocked()
	s.state = State{Status: StatusIdle}
	for _, sub := range s.subscribers {
		sub.active.Store(false)
	}
	s.subscribers = nil
	s.pending = nil
	s.mu.Unlock()
}

// loadLocked replaces the current episode with ref and starts loading it.
// Must be called with lock held.
func (s *Store) loadLocked(ref episode.Ref) {
	s.detachLocked()

	s.generation++
	gen := s.generation

	current := ref
	s.state = State{
		Current: &current,
		Status:  StatusLoading,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.loadCancel = cancel

	zlog.Debug().Msgf("playback: loading episode: episode=%s generation=%d src=%s", ref.ID, gen, ref.AudioSource)

	resource, err := s.loader.Load(ctx, ref, func(e Event) {
		s.handleEvent(gen, e)
	})
	if err != nil {
		s.failLocked(errors.Wrapf(err, "failed to load episode %s", ref.ID))
		return
	}
	s.resource = resource
	s.publishLocked()
}

// detachLocked stops interest in the current resource so none of its future
// events are applied. Must be called with lock held.
func (s *Store) detachLocked() {
	// Any event still in flight carries an older generation from here on.
	s.generation++

	if s.loadCancel != nil {
		s.loadCancel()
		s.loadCancel = nil
	}
	if s.resource != nil {
		if err := s.resource.Close(); err != nil {
			zlog.Warn().Err(err).Msg("playback: failed to close resource")
		}
		s.resource = nil
	}
}

func (s *Store) pauseLocked() {
	if err := s.resource.Pause(); err != nil {
		s.failLocked(errors.Wrap(err, "pause failed"))
		return
	}
	s.state.Status = StatusPaused
	s.publishLocked()
}

// resumeLocked resumes the current resource. After the end of the stream the
// episode restarts from the beginning.
func (s *Store) resumeLocked(restart bool) {
	if restart {
		if err := s.resource.Seek(0); err != nil {
			s.failLocked(errors.Wrap(err, "rewind failed"))
			return
		}
		s.state.CurrentTime = 0
	}
	if err := s.resource.Play(); err != nil {
		s.failLocked(errors.Wrap(err, "play failed"))
		return
	}
	s.state.Status = StatusPlaying
	s.publishLocked()
}

// failLocked moves the store to Error and releases the resource; a later
// toggle performs a fresh load. Must be called with lock held.
func (s *Store) failLocked(err error) {
	zlog.Warn().Msgf("playback: resource failed: episode=%s err=%v", s.currentID(), err)

	s.detachLocked()
	s.state.Status = StatusError
	s.state.Err = err.Error()
	s.publishLocked()
}

// handleEvent applies a resource event if it belongs to the current generation.
func (s *Store) handleEvent(gen uint64, e Event) {
	s.mu.Lock()
	if gen != s.generation || s.closed {
		zlog.Debug().Msgf("playback: dropping stale event: type=%s generation=%d current=%d", e.Type, gen, s.generation)
		s.mu.Unlock()
		return
	}

	switch e.Type {
	case EventReady:
		if e.Duration > 0 {
			s.state.Duration = e.Duration
		}
		if s.state.Status != StatusLoading {
			break
		}
		if err := s.resource.Play(); err != nil {
			s.failLocked(errors.Wrap(err, "play failed"))
			break
		}
		s.state.Status = StatusPlaying
		s.state.CurrentTime = clamp(s.state.CurrentTime, s.state.Duration)
		s.publishLocked()

	case EventDuration:
		if e.Duration == s.state.Duration {
			break
		}
		s.state.Duration = e.Duration
		s.state.CurrentTime = clamp(s.state.CurrentTime, s.state.Duration)
		s.publishLocked()

	case EventProgress:
		position := clamp(e.Position, s.state.Duration)
		if position == s.state.CurrentTime {
			break
		}
		s.state.CurrentTime = position
		s.publishLocked()

	case EventEnded:
		if s.state.Status == StatusEnded {
			break
		}
		s.state.Status = StatusEnded
		if s.state.Duration > 0 {
			s.state.CurrentTime = s.state.Duration
		}
		s.publishLocked()

	case EventFailed:
		err := e.Err
		if err == nil {
			err = errors.New("unknown media error")
		}
		s.failLocked(err)
	}
	s.mu.Unlock()

	s.dispatch()
}

func (s *Store) currentID() string {
	if s.state.Current == nil {
		return ""
	}
	return s.state.Current.ID
}

// publishLocked queues one notification round with the current state.
// Must be called with lock held.
func (s *Store) publishLocked() {
	s.pending = append(s.pending, s.state.clone())
}

// dispatch delivers queued notification rounds in order. Only one goroutine
// delivers at a time; rounds queued meanwhile, including those caused by
// listeners, are delivered by that goroutine after the current round.
func (s *Store) dispatch() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true

	for len(s.pending) > 0 {
		state := s.pending[0]
		s.pending = s.pending[1:]
		subs := make([]*subscriber, len(s.subscribers))
		copy(subs, s.subscribers)
		s.mu.Unlock()

		for _, sub := range subs {
			if sub.active.Load() {
				sub.fn(state.clone())
			}
		}

		s.mu.Lock()
	}

	s.dispatching = false
	s.mu.Unlock()
}
