package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/app/playback/playbacktest"
	"github.com/cesium/periferico/internal/domain/episode"
)

type recordingStream struct {
	mu       sync.Mutex
	received []Notification
	err      error
	block    chan struct{}
}

func (s *recordingStream) Send(n Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, n)
	return s.err
}

func (s *recordingStream) Received() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Notification, len(s.received))
	copy(result, s.received)
	return result
}

func TestManager_SubscribeUnsubscribe(t *testing.T) {
	m := NewManager()

	id1 := m.Subscribe(&recordingStream{})
	id2 := m.Subscribe(&recordingStream{})
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, m.SubscriberCount())

	m.Unsubscribe(id1)
	assert.Equal(t, 1, m.SubscriberCount())

	m.Close()
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestManager_BroadcastSequence(t *testing.T) {
	m := NewManager()
	a := &recordingStream{}
	b := &recordingStream{}
	m.Subscribe(a)
	m.Subscribe(b)

	initial := m.NextSequenceNo()
	m.Broadcast(Notification{Type: TypeStateChanged, State: playback.State{Status: playback.StatusIdle}})
	m.Broadcast(Notification{Type: TypeStateChanged, State: playback.State{Status: playback.StatusIdle}})

	for _, s := range []*recordingStream{a, b} {
		got := s.Received()
		require.Len(t, got, 2)
		assert.Equal(t, initial+1, got[0].SequenceNo)
		assert.Equal(t, initial+2, got[1].SequenceNo)
	}
}

func TestManager_BroadcastSurvivesFailingAndSlowStreams(t *testing.T) {
	m := NewManager()
	m.sendTimeout = 20 * time.Millisecond

	failing := &recordingStream{err: errors.New("stream closed")}
	slow := &recordingStream{block: make(chan struct{})}
	healthy := &recordingStream{}
	m.Subscribe(failing)
	m.Subscribe(slow)
	m.Subscribe(healthy)

	done := make(chan struct{})
	go func() {
		m.Broadcast(Notification{Type: TypeStateChanged})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow stream")
	}
	close(slow.block)

	assert.Len(t, healthy.Received(), 1)
}

func TestManager_Send(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	id := m.Subscribe(s)

	require.NoError(t, m.Send(id, Notification{Type: TypeInitialState, SequenceNo: 7}))
	require.NoError(t, m.Send("missing", Notification{}))

	got := s.Received()
	require.Len(t, got, 1)
	assert.Equal(t, TypeInitialState, got[0].Type)
	assert.Equal(t, uint64(7), got[0].SequenceNo)
}

func TestManager_WatchStore(t *testing.T) {
	loader := playbacktest.NewLoader()
	store := playback.NewStore(loader)
	defer store.Close()

	m := NewManager()
	m.Watch(store)
	s := &recordingStream{}
	m.Subscribe(s)

	store.Toggle(episode.Ref{ID: "1", Title: "One"})
	loader.Last().Ready(time.Minute)

	got := s.Received()
	require.Len(t, got, 2)
	assert.Equal(t, playback.StatusLoading, got[0].State.Status)
	assert.Equal(t, playback.StatusPlaying, got[1].State.Status)
	assert.Less(t, got[0].SequenceNo, got[1].SequenceNo)

	m.Close()
	assert.Equal(t, 0, store.SubscriberCount())
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "initial_state", TypeInitialState.String())
	assert.Equal(t, "state_changed", TypeStateChanged.String())
	assert.Equal(t, "unknown", Type(42).String())
}
