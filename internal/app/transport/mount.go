package transport

import (
	"sync"
	"time"

	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/domain/episode"
)

// PlayButton is a mounted play/pause control for one episode. It re-renders on
// every store notification.
type PlayButton struct {
	store   *playback.Store
	binding *playback.Binding
	render  func(ButtonView)

	mu    sync.Mutex
	unsub func()
}

// NewPlayButton creates a button for ref that draws through render.
func NewPlayButton(store *playback.Store, ref episode.Ref, render func(ButtonView)) *PlayButton {
	return &PlayButton{
		store:   store,
		binding: playback.Bind(store, ref),
		render:  render,
	}
}

// Mount draws the button from the current state and starts following the store.
func (b *PlayButton) Mount() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unsub != nil {
		return
	}
	ref := b.binding.Ref()
	b.unsub = b.store.Subscribe(func(state playback.State) {
		b.render(RenderButton(state, ref))
	})
	b.render(RenderButton(b.store.Snapshot(), ref))
}

// Activate handles a click on the button.
func (b *PlayButton) Activate() {
	b.binding.Toggle()
}

// Playing reports the bound episode's playing value.
func (b *PlayButton) Playing() bool {
	return b.binding.Playing()
}

// Unmount stops following the store.
func (b *PlayButton) Unmount() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
	b.binding.Close()
}

// MiniPlayer is the mounted persistent playback bar.
type MiniPlayer struct {
	store  *playback.Store
	render func(MiniPlayerView)

	mu    sync.Mutex
	unsub func()
}

// NewMiniPlayer creates a mini-player that draws through render.
func NewMiniPlayer(store *playback.Store, render func(MiniPlayerView)) *MiniPlayer {
	return &MiniPlayer{
		store:  store,
		render: render,
	}
}

// Mount draws the bar from the current state and starts following the store.
func (p *MiniPlayer) Mount() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unsub != nil {
		return
	}
	p.unsub = p.store.Subscribe(func(state playback.State) {
		p.render(RenderMiniPlayer(state))
	})
	p.render(RenderMiniPlayer(p.store.Snapshot()))
}

// Unmount stops following the store.
func (p *MiniPlayer) Unmount() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
}

// Toggle plays or pauses the loaded episode. It does nothing when idle.
func (p *MiniPlayer) Toggle() {
	state := p.store.Snapshot()
	if state.Current == nil {
		return
	}
	p.store.Toggle(*state.Current)
}

// SeekTo moves the loaded episode to position.
func (p *MiniPlayer) SeekTo(position time.Duration) error {
	return p.store.Seek(position)
}

// ScrubTo moves the loaded episode to fraction of its duration.
func (p *MiniPlayer) ScrubTo(fraction float64) error {
	state := p.store.Snapshot()
	return p.store.Seek(PositionAt(fraction, state.Duration))
}
