package playback

import (
	"sync"

	"github.com/cesium/periferico/internal/domain/episode"
)

// Binding adapts a Store to the point of view of one episode. It holds no
// playback state of its own; Playing is derived from the store on every call.
type Binding struct {
	store *Store
	ref   episode.Ref

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// Bind creates a binding of ref to store.
func Bind(store *Store, ref episode.Ref) *Binding {
	return &Binding{
		store: store,
		ref:   ref,
	}
}

// Ref returns the bound episode.
func (b *Binding) Ref() episode.Ref {
	return b.ref
}

// Playing reports whether the bound episode is the one playing.
func (b *Binding) Playing() bool {
	return IsPlaying(b.store.Snapshot(), b.ref.ID)
}

// Toggle forwards a play/pause request for the bound episode to the store.
func (b *Binding) Toggle() {
	b.store.Toggle(b.ref)
}

// Watch calls fn with the bound episode's playing value after every store
// notification. The returned function stops the watch; Close stops all of them.
func (b *Binding) Watch(fn func(playing bool)) (stop func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.ref.ID
	unsub := b.store.Subscribe(func(state State) {
		fn(IsPlaying(state, id))
	})
	b.unsubs = append(b.unsubs, unsub)
	return unsub
}

// Close releases every subscription made through Watch.
func (b *Binding) Close() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.closed = true
	b.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
