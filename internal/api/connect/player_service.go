// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cesium/periferico/internal/app/catalog"
	"github.com/cesium/periferico/internal/app/notification"
	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/app/session"
	"github.com/cesium/periferico/internal/app/transport"
	"github.com/cesium/periferico/internal/domain/listener"
)

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	catalog  *catalog.Catalog
	sessions *session.Registry
	done     <-chan struct{}
}

// NewPlayerService creates a new PlayerService. Subscriptions end when done is
// closed.
func NewPlayerService(cat *catalog.Catalog, sessions *session.Registry, done <-chan struct{}) *PlayerService {
	return &PlayerService{
		catalog:  cat,
		sessions: sessions,
		done:     done,
	}
}

// Ensure PlayerService implements the interface.
var _ PlayerServiceHandler = (*PlayerService)(nil)

// OpenSession starts a new player session and returns its id.
func (s *PlayerService) OpenSession(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[wrapperspb.StringValue], error) {
	sess, err := s.sessions.Open(listener.ClientRPC)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}

	resp := connect.NewResponse(wrapperspb.String(sess.ID))
	resp.Header().Set(SessionHeader, sess.ID)
	return resp, nil
}

// ListEpisodes returns the catalog, most recent first.
func (s *PlayerService) ListEpisodes(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.ListValue], error) {
	episodes := s.catalog.Episodes()
	values := make([]*structpb.Value, 0, len(episodes))
	for _, ep := range episodes {
		encoded, err := EncodeEpisode(ep)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		values = append(values, structpb.NewStructValue(encoded))
	}
	return connect.NewResponse(&structpb.ListValue{Values: values}), nil
}

// Toggle plays or pauses an episode in the caller's session.
func (s *PlayerService) Toggle(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	ep, err := s.catalog.Find(req.Msg.GetValue())
	if err != nil {
		if errors.Is(err, catalog.ErrEpisodeNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	playback.Bind(sess.Store, ep.Ref()).Toggle()
	zlog.Debug().Msgf("rpc: toggled: session=%s episode=%s", sess.ID, ep.ID)
	return stateResponse(sess.Store.Snapshot())
}

// Seek moves the loaded episode to the requested second.
func (s *PlayerService) Seek(
	ctx context.Context,
	req *connect.Request[wrapperspb.DoubleValue],
) (*connect.Response[structpb.Struct], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	if err := sess.Store.Seek(transport.SecondsToPosition(req.Msg.GetValue())); err != nil {
		if errors.Is(err, playback.ErrNothingLoaded) {
			return nil, connect.NewError(connect.CodeFailedPrecondition, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return stateResponse(sess.Store.Snapshot())
}

// Unload stops playback and clears the current episode.
func (s *PlayerService) Unload(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	sess.Store.Unload()
	return stateResponse(sess.Store.Snapshot())
}

// GetState returns the caller's playback state.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	return stateResponse(sess.Store.Snapshot())
}

// Subscribe streams the caller's playback state: the current state first, then
// every change.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	sess, err := s.session(ctx)
	if err != nil {
		return err
	}

	adapter := &notificationStreamAdapter{stream: stream}
	subscriptionID, err := attach(sess.Notifications, sess.Store, adapter)
	if err != nil {
		return err
	}
	defer func() {
		sess.Notifications.Unsubscribe(subscriptionID)
		adapter.close()
	}()

	zlog.Debug().Msgf("rpc: subscribed: session=%s subscription=%s", sess.ID, subscriptionID)

	// Wait for context cancellation, session expiry or server shutdown
	select {
	case <-ctx.Done():
	case <-sess.Done():
	case <-s.done:
	}
	return nil
}

func (s *PlayerService) session(ctx context.Context) (*session.Session, error) {
	sess, ok := sessionFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, ErrNoSession)
	}
	return sess, nil
}

func stateResponse(state playback.State) (*connect.Response[structpb.Struct], error) {
	encoded, err := EncodeState(state)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(encoded), nil
}

// attach subscribes adapter and then sends the current state as the initial
// notification. Subscribing first means no change is lost in between; a round
// stamped before the initial state is dropped by the adapter.
func attach(notifications *notification.Manager, store *playback.Store, adapter *notificationStreamAdapter) (string, error) {
	subscriptionID := notifications.Subscribe(adapter)

	initial := notification.Notification{
		Type:       notification.TypeInitialState,
		SequenceNo: notifications.NextSequenceNo(),
		State:      store.Snapshot(),
	}
	if err := adapter.Send(initial); err != nil {
		notifications.Unsubscribe(subscriptionID)
		return "", err
	}
	return subscriptionID, nil
}

type messageSender interface {
	Send(*structpb.Struct) error
}

// notificationStreamAdapter adapts a server stream to notification.Stream.
// A send that outlived its timeout may still be running when the next
// broadcast starts, so sends are serialized, and notifications older than the
// last one sent are skipped.
type notificationStreamAdapter struct {
	mu      sync.Mutex
	stream  messageSender
	lastSeq uint64
	closed  bool
}

func (a *notificationStreamAdapter) Send(n notification.Notification) error {
	msg, err := EncodeNotification(n)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("stream closed")
	}
	if n.SequenceNo <= a.lastSeq {
		return nil
	}
	if err := a.stream.Send(msg); err != nil {
		return err
	}
	a.lastSeq = n.SequenceNo
	return nil
}

// close stops further sends once the handler has returned.
func (a *notificationStreamAdapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
