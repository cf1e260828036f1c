package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/cesium/periferico/internal/app/session"
)

const (
	// SessionHeader is the header name carrying the player session id.
	SessionHeader = "X-Session-Id"
)

// ErrNoSession is returned to callers that do not send a known session id.
var ErrNoSession = errors.New("missing or unknown session")

type sessionKey struct{}

// sessionFree lists the procedures callable without a session.
var sessionFree = map[string]bool{
	PlayerServiceOpenSessionProcedure:  true,
	PlayerServiceListEpisodesProcedure: true,
}

// SessionInterceptor resolves the session named by the request metadata for
// PlayerService methods and rejects unknown ones.
type SessionInterceptor struct {
	sessions *session.Registry
}

// NewSessionInterceptor creates an interceptor backed by sessions.
func NewSessionInterceptor(sessions *session.Registry) *SessionInterceptor {
	return &SessionInterceptor{sessions: sessions}
}

var _ connect.Interceptor = (*SessionInterceptor)(nil)

// WrapUnary implements connect.Interceptor.
func (i *SessionInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient || sessionFree[req.Spec().Procedure] {
			return next(ctx, req)
		}
		ctx, err := i.resolve(ctx, req.Header().Get(SessionHeader))
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *SessionInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *SessionInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.resolve(ctx, conn.RequestHeader().Get(SessionHeader))
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *SessionInterceptor) resolve(ctx context.Context, id string) (context.Context, error) {
	if id == "" {
		return ctx, connect.NewError(connect.CodeUnauthenticated, ErrNoSession)
	}
	sess, err := i.sessions.Get(id)
	if err != nil {
		return ctx, connect.NewError(connect.CodeUnauthenticated, ErrNoSession)
	}
	return context.WithValue(ctx, sessionKey{}, sess), nil
}

func sessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*session.Session)
	return sess, ok
}
