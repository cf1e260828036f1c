package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// PlayerServiceName is the fully-qualified name of the PlayerService service.
const PlayerServiceName = "periferico.v1.PlayerService"

// Fully-qualified procedure names of the PlayerService RPCs.
const (
	PlayerServiceOpenSessionProcedure  = "/periferico.v1.PlayerService/OpenSession"
	PlayerServiceListEpisodesProcedure = "/periferico.v1.PlayerService/ListEpisodes"
	PlayerServiceToggleProcedure       = "/periferico.v1.PlayerService/Toggle"
	PlayerServiceSeekProcedure         = "/periferico.v1.PlayerService/Seek"
	PlayerServiceUnloadProcedure       = "/periferico.v1.PlayerService/Unload"
	PlayerServiceGetStateProcedure     = "/periferico.v1.PlayerService/GetState"
	PlayerServiceSubscribeProcedure    = "/periferico.v1.PlayerService/Subscribe"
)

// PlayerServiceHandler is implemented by the PlayerService server.
type PlayerServiceHandler interface {
	OpenSession(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[wrapperspb.StringValue], error)
	ListEpisodes(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.ListValue], error)
	Toggle(context.Context, *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error)
	Seek(context.Context, *connect.Request[wrapperspb.DoubleValue]) (*connect.Response[structpb.Struct], error)
	Unload(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	GetState(context.Context, *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error)
	Subscribe(context.Context, *connect.Request[emptypb.Empty], *connect.ServerStream[structpb.Struct]) error
}

// NewPlayerServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewPlayerServiceHandler(svc PlayerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	handlers := map[string]http.Handler{
		PlayerServiceOpenSessionProcedure:  connect.NewUnaryHandler(PlayerServiceOpenSessionProcedure, svc.OpenSession, opts...),
		PlayerServiceListEpisodesProcedure: connect.NewUnaryHandler(PlayerServiceListEpisodesProcedure, svc.ListEpisodes, opts...),
		PlayerServiceToggleProcedure:       connect.NewUnaryHandler(PlayerServiceToggleProcedure, svc.Toggle, opts...),
		PlayerServiceSeekProcedure:         connect.NewUnaryHandler(PlayerServiceSeekProcedure, svc.Seek, opts...),
		PlayerServiceUnloadProcedure:       connect.NewUnaryHandler(PlayerServiceUnloadProcedure, svc.Unload, opts...),
		PlayerServiceGetStateProcedure:     connect.NewUnaryHandler(PlayerServiceGetStateProcedure, svc.GetState, opts...),
		PlayerServiceSubscribeProcedure:    connect.NewServerStreamHandler(PlayerServiceSubscribeProcedure, svc.Subscribe, opts...),
	}

	return "/" + PlayerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// PlayerServiceClient is a client for the PlayerService service.
type PlayerServiceClient struct {
	openSession  *connect.Client[emptypb.Empty, wrapperspb.StringValue]
	listEpisodes *connect.Client[emptypb.Empty, structpb.ListValue]
	toggle       *connect.Client[wrapperspb.StringValue, structpb.Struct]
	seek         *connect.Client[wrapperspb.DoubleValue, structpb.Struct]
	unload       *connect.Client[emptypb.Empty, structpb.Struct]
	getState     *connect.Client[emptypb.Empty, structpb.Struct]
	subscribe    *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewPlayerServiceClient constructs a client for the PlayerService service at baseURL.
func NewPlayerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlayerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &PlayerServiceClient{
		openSession:  connect.NewClient[emptypb.Empty, wrapperspb.StringValue](httpClient, baseURL+PlayerServiceOpenSessionProcedure, opts...),
		listEpisodes: connect.NewClient[emptypb.Empty, structpb.ListValue](httpClient, baseURL+PlayerServiceListEpisodesProcedure, opts...),
		toggle:       connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+PlayerServiceToggleProcedure, opts...),
		seek:         connect.NewClient[wrapperspb.DoubleValue, structpb.Struct](httpClient, baseURL+PlayerServiceSeekProcedure, opts...),
		unload:       connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceUnloadProcedure, opts...),
		getState:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceGetStateProcedure, opts...),
		subscribe:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PlayerServiceSubscribeProcedure, opts...),
	}
}

// OpenSession calls periferico.v1.PlayerService.OpenSession.
func (c *PlayerServiceClient) OpenSession(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[wrapperspb.StringValue], error) {
	return c.openSession.CallUnary(ctx, req)
}

// ListEpisodes calls periferico.v1.PlayerService.ListEpisodes.
func (c *PlayerServiceClient) ListEpisodes(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.ListValue], error) {
	return c.listEpisodes.CallUnary(ctx, req)
}

// Toggle calls periferico.v1.PlayerService.Toggle.
func (c *PlayerServiceClient) Toggle(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	return c.toggle.CallUnary(ctx, req)
}

// Seek calls periferico.v1.PlayerService.Seek.
func (c *PlayerServiceClient) Seek(ctx context.Context, req *connect.Request[wrapperspb.DoubleValue]) (*connect.Response[structpb.Struct], error) {
	return c.seek.CallUnary(ctx, req)
}

// Unload calls periferico.v1.PlayerService.Unload.
func (c *PlayerServiceClient) Unload(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return c.unload.CallUnary(ctx, req)
}

// GetState calls periferico.v1.PlayerService.GetState.
func (c *PlayerServiceClient) GetState(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return c.getState.CallUnary(ctx, req)
}

// Subscribe calls periferico.v1.PlayerService.Subscribe.
func (c *PlayerServiceClient) Subscribe(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.ServerStreamForClient[structpb.Struct], error) {
	return c.subscribe.CallServerStream(ctx, req)
}
