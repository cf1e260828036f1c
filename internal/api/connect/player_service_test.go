package connect

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cesium/periferico/internal/app/catalog"
	"github.com/cesium/periferico/internal/app/notification"
	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/app/playback/playbacktest"
	"github.com/cesium/periferico/internal/app/session"
	"github.com/cesium/periferico/internal/domain/episode"
)

type staticSource []episode.Episode

func (s staticSource) Fetch(ctx context.Context) ([]episode.Episode, error) {
	return s, nil
}

type fixture struct {
	client   *PlayerServiceClient
	loader   *playbacktest.Loader
	sessions *session.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cat := catalog.New(staticSource{
		{ID: "2", Title: "Episódio 2", Audio: episode.Audio{Src: "https://cdn.example.com/ep2.mp3", Type: "audio/mpeg"}},
		{ID: "1", Title: "Episódio 1", Audio: episode.Audio{Src: "https://cdn.example.com/ep1.mp3", Type: "audio/mpeg"}},
	}, 0)
	require.NoError(t, cat.Refresh(context.Background()))

	loader := playbacktest.NewLoader()
	sessions := session.NewRegistry(loader, time.Hour, time.Minute)

	done := make(chan struct{})
	svc := NewPlayerService(cat, sessions, done)
	path, handler := NewPlayerServiceHandler(svc, connect.WithInterceptors(NewSessionInterceptor(sessions)))

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		close(done)
		server.Close()
		sessions.Close()
	})

	return &fixture{
		client:   NewPlayerServiceClient(server.Client(), server.URL),
		loader:   loader,
		sessions: sessions,
	}
}

func withSession[T any](msg *T, id string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set(SessionHeader, id)
	return req
}

func (f *fixture) open(t *testing.T) string {
	t.Helper()
	resp, err := f.client.OpenSession(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Msg.GetValue())
	assert.Equal(t, resp.Msg.GetValue(), resp.Header().Get(SessionHeader))
	return resp.Msg.GetValue()
}

func decodeState(t *testing.T, msg *structpb.Struct) playback.State {
	t.Helper()
	state, err := DecodeState(msg)
	require.NoError(t, err)
	return state
}

func TestPlayerService_ListEpisodes(t *testing.T) {
	f := newFixture(t)

	resp, err := f.client.ListEpisodes(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	require.Len(t, resp.Msg.GetValues(), 2)

	ep, err := DecodeEpisode(resp.Msg.GetValues()[0].GetStructValue())
	require.NoError(t, err)
	assert.Equal(t, "2", ep.ID)
	assert.Equal(t, "Episódio 2", ep.Title)
}

func TestPlayerService_RequiresSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.GetState(ctx, connect.NewRequest(&emptypb.Empty{}))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = f.client.Toggle(ctx, withSession(wrapperspb.String("1"), "not-a-session"))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	stream, err := f.client.Subscribe(ctx, connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	defer stream.Close()
	assert.False(t, stream.Receive())
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(stream.Err()))
}

func TestPlayerService_ToggleSeekUnload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)

	_, err := f.client.Seek(ctx, withSession(wrapperspb.Double(10), id))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err), "nothing loaded")

	_, err = f.client.Toggle(ctx, withSession(wrapperspb.String("42"), id))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	resp, err := f.client.Toggle(ctx, withSession(wrapperspb.String("2"), id))
	require.NoError(t, err)
	state := decodeState(t, resp.Msg)
	assert.Equal(t, playback.StatusLoading, state.Status)
	require.NotNil(t, state.Current)
	assert.Equal(t, "2", state.Current.ID)
	assert.Equal(t, "/2", state.Current.Link)

	f.loader.Last().Ready(2 * time.Minute)

	resp, err = f.client.Seek(ctx, withSession(wrapperspb.Double(30), id))
	require.NoError(t, err)
	state = decodeState(t, resp.Msg)
	assert.Equal(t, playback.StatusPlaying, state.Status)
	assert.Equal(t, 30*time.Second, state.CurrentTime)
	assert.Equal(t, 2*time.Minute, state.Duration)

	resp, err = f.client.Unload(ctx, withSession(&emptypb.Empty{}, id))
	require.NoError(t, err)
	state = decodeState(t, resp.Msg)
	assert.Equal(t, playback.StatusIdle, state.Status)
	assert.Nil(t, state.Current)

	resp, err = f.client.GetState(ctx, withSession(&emptypb.Empty{}, id))
	require.NoError(t, err)
	assert.Equal(t, playback.StatusIdle, decodeState(t, resp.Msg).Status)
}

func TestPlayerService_Subscribe(t *testing.T) {
	f := newFixture(t)
	id := f.open(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := f.client.Subscribe(ctx, withSession(&emptypb.Empty{}, id))
	require.NoError(t, err)
	defer stream.Close()

	received := make(chan notification.Notification, 16)
	go func() {
		defer close(received)
		for stream.Receive() {
			n, err := DecodeNotification(stream.Msg())
			if err != nil {
				return
			}
			received <- n
		}
	}()

	next := func() notification.Notification {
		select {
		case n, ok := <-received:
			require.True(t, ok, "stream ended")
			return n
		case <-time.After(2 * time.Second):
			t.Fatal("no notification received")
			return notification.Notification{}
		}
	}

	initial := next()
	assert.Equal(t, notification.TypeInitialState, initial.Type)
	assert.Equal(t, uint64(1), initial.SequenceNo)
	assert.Equal(t, playback.StatusIdle, initial.State.Status)

	sess, err := f.sessions.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sess.Notifications.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	_, err = f.client.Toggle(context.Background(), withSession(wrapperspb.String("1"), id))
	require.NoError(t, err)

	changed := next()
	assert.Equal(t, notification.TypeStateChanged, changed.Type)
	assert.Equal(t, uint64(2), changed.SequenceNo)
	assert.Equal(t, playback.StatusLoading, changed.State.Status)

	f.loader.Last().Ready(time.Minute)
	playing := next()
	assert.Equal(t, uint64(3), playing.SequenceNo)
	assert.Equal(t, playback.StatusPlaying, playing.State.Status)

	cancel()
	require.Eventually(t, func() bool {
		return sess.Notifications.SubscriberCount() == 0
	}, time.Second, 5*time.Millisecond, "cancelled streams unsubscribe")
}

func TestPlayerService_SeekOutOfRange(t *testing.T) {
	tests := []struct {
		name     string
		seconds  float64
		expected time.Duration
	}{
		{name: "past the end", seconds: 500, expected: 2 * time.Minute},
		{name: "far past the end", seconds: 1e11, expected: 2 * time.Minute},
		{name: "positive infinity", seconds: math.Inf(1), expected: 2 * time.Minute},
		{name: "negative infinity", seconds: math.Inf(-1), expected: 0},
		{name: "not a number", seconds: math.NaN(), expected: 0},
	}

	f := newFixture(t)
	ctx := context.Background()
	id := f.open(t)

	_, err := f.client.Toggle(ctx, withSession(wrapperspb.String("2"), id))
	require.NoError(t, err)
	f.loader.Last().Ready(2 * time.Minute)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.client.Seek(ctx, withSession(wrapperspb.Double(60), id))
			require.NoError(t, err)

			resp, err := f.client.Seek(ctx, withSession(wrapperspb.Double(tt.seconds), id))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, decodeState(t, resp.Msg).CurrentTime)
		})
	}
}

// gatedSender blocks its first send until released.
type gatedSender struct {
	entered chan struct{}
	release chan struct{}

	mu       sync.Mutex
	messages []*structpb.Struct
}

func newGatedSender() *gatedSender {
	return &gatedSender{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSender) Send(msg *structpb.Struct) error {
	g.mu.Lock()
	first := len(g.messages) == 0
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = append(g.messages, msg)
	return nil
}

func (g *gatedSender) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.messages)
}

func (g *gatedSender) received(t *testing.T) []notification.Notification {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]notification.Notification, 0, len(g.messages))
	for _, msg := range g.messages {
		n, err := DecodeNotification(msg)
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func TestAttach_DeliversChangesDuringInitialSend(t *testing.T) {
	loader := playbacktest.NewLoader()
	store := playback.NewStore(loader)
	notifications := notification.NewManager()
	notifications.Watch(store)
	t.Cleanup(func() {
		notifications.Close()
		store.Close()
	})

	sender := newGatedSender()
	adapter := &notificationStreamAdapter{stream: sender}

	attached := make(chan error, 1)
	go func() {
		_, err := attach(notifications, store, adapter)
		attached <- err
	}()

	// The initial state is on its way; the store changes before it arrives.
	<-sender.entered
	go store.Toggle(episode.Ref{ID: "1", Title: "Episódio 1", AudioSource: "https://cdn.example.com/ep1.mp3"})
	require.Eventually(t, func() bool {
		return store.Snapshot().Status == playback.StatusLoading
	}, time.Second, 5*time.Millisecond)
	close(sender.release)
	require.NoError(t, <-attached)

	require.Eventually(t, func() bool {
		return sender.count() == 2
	}, 2*time.Second, 5*time.Millisecond, "the change is delivered after the initial state")

	got := sender.received(t)
	assert.Equal(t, notification.TypeInitialState, got[0].Type)
	assert.Equal(t, playback.StatusIdle, got[0].State.Status)
	assert.Equal(t, notification.TypeStateChanged, got[1].Type)
	assert.Equal(t, playback.StatusLoading, got[1].State.Status)
	assert.Greater(t, got[1].SequenceNo, got[0].SequenceNo)
}

func TestNotificationStreamAdapter_SkipsOlderSequences(t *testing.T) {
	sender := newGatedSender()
	close(sender.release)
	adapter := &notificationStreamAdapter{stream: sender}

	require.NoError(t, adapter.Send(notification.Notification{Type: notification.TypeInitialState, SequenceNo: 3}))
	require.NoError(t, adapter.Send(notification.Notification{Type: notification.TypeStateChanged, SequenceNo: 2}))
	require.NoError(t, adapter.Send(notification.Notification{Type: notification.TypeStateChanged, SequenceNo: 4}))

	got := sender.received(t)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].SequenceNo)
	assert.Equal(t, uint64(4), got[1].SequenceNo)

	adapter.close()
	assert.Error(t, adapter.Send(notification.Notification{SequenceNo: 5}))
}
