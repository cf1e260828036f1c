// Package main provides the listener CLI for driving a player session over RPC.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apiconnect "github.com/cesium/periferico/internal/api/connect"
	"github.com/cesium/periferico/internal/domain/episode"
)

var (
	app       = kingpin.New("periferico-listencli", "Periférico player client")
	server    = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	sessionID = app.Flag("session", "Player session ID").Envar("PERIFERICO_SESSION").String()

	// open command
	openCmd = app.Command("open", "Open a player session")

	// episodes command
	episodesCmd = app.Command("episodes", "List episodes")

	// toggle command
	toggleCmd     = app.Command("toggle", "Play or pause an episode")
	toggleEpisode = toggleCmd.Arg("episode", "Episode ID or title").Required().String()

	// seek command
	seekCmd     = app.Command("seek", "Seek the loaded episode")
	seekSeconds = seekCmd.Arg("seconds", "Position in seconds").Required().Float64()

	// unload command
	unloadCmd = app.Command("unload", "Stop and clear the loaded episode")

	// status command
	statusCmd = app.Command("status", "Show the playback state")

	// watch command
	watchCmd = app.Command("watch", "Follow playback state changes")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := apiconnect.NewPlayerServiceClient(
		http.DefaultClient,
		*server,
	)

	ctx := context.Background()

	// Execute command
	var err error
	switch command {
	case openCmd.FullCommand():
		err = open(ctx, client)
	case episodesCmd.FullCommand():
		err = listEpisodes(ctx, client)
	case toggleCmd.FullCommand():
		err = toggle(ctx, client, *toggleEpisode)
	case seekCmd.FullCommand():
		err = printState(client.Seek(ctx, withSession(wrapperspb.Double(*seekSeconds))))
	case unloadCmd.FullCommand():
		err = printState(client.Unload(ctx, withSession(&emptypb.Empty{})))
	case statusCmd.FullCommand():
		err = printState(client.GetState(ctx, withSession(&emptypb.Empty{})))
	case watchCmd.FullCommand():
		err = watch(ctx, client)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func withSession[T any](msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set(apiconnect.SessionHeader, *sessionID)
	return req
}

func open(ctx context.Context, client *apiconnect.PlayerServiceClient) error {
	resp, err := client.OpenSession(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return err
	}

	fmt.Printf("Session opened! Your session ID: %s\n", resp.Msg.GetValue())
	fmt.Printf("  export PERIFERICO_SESSION=%s\n", resp.Msg.GetValue())
	return nil
}

func fetchEpisodes(ctx context.Context, client *apiconnect.PlayerServiceClient) ([]episode.Episode, error) {
	resp, err := client.ListEpisodes(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}

	episodes := make([]episode.Episode, 0, len(resp.Msg.GetValues()))
	for _, v := range resp.Msg.GetValues() {
		ep, err := apiconnect.DecodeEpisode(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, nil
}

func listEpisodes(ctx context.Context, client *apiconnect.PlayerServiceClient) error {
	episodes, err := fetchEpisodes(ctx, client)
	if err != nil {
		return err
	}
	fmt.Println(renderEpisodes(episodes))
	return nil
}

func toggle(ctx context.Context, client *apiconnect.PlayerServiceClient, arg string) error {
	episodes, err := fetchEpisodes(ctx, client)
	if err != nil {
		return err
	}
	ep, err := resolveEpisode(arg, episodes)
	if err != nil {
		return err
	}
	return printState(client.Toggle(ctx, withSession(wrapperspb.String(ep.ID))))
}

func printState(resp *connect.Response[structpb.Struct], err error) error {
	if err != nil {
		return err
	}
	state, err := apiconnect.DecodeState(resp.Msg)
	if err != nil {
		return err
	}
	fmt.Println(formatState(state))
	return nil
}

func watch(ctx context.Context, client *apiconnect.PlayerServiceClient) error {
	stream, err := client.Subscribe(ctx, withSession(&emptypb.Empty{}))
	if err != nil {
		return err
	}

	fmt.Println("Watching playback. Press Ctrl+C to exit.")

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		os.Exit(0)
	}()

	// Receive notifications
	for stream.Receive() {
		n, err := apiconnect.DecodeNotification(stream.Msg())
		if err != nil {
			fmt.Printf("Bad notification: %v\n", err)
			continue
		}
		fmt.Printf("[Sequence: %d] %s\n", n.SequenceNo, formatState(n.State))
	}

	return stream.Err()
}
