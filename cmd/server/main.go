// Package main provides the site server entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/cesium/periferico/internal/api/connect"
	"github.com/cesium/periferico/internal/api/web"
	"github.com/cesium/periferico/internal/app/catalog"
	"github.com/cesium/periferico/internal/app/session"
	"github.com/cesium/periferico/internal/infra/config"
	"github.com/cesium/periferico/internal/infra/feed"
	"github.com/cesium/periferico/internal/infra/feedcache"
	"github.com/cesium/periferico/internal/infra/logger"
	"github.com/cesium/periferico/internal/infra/media"
	"github.com/cesium/periferico/internal/infra/notes"
)

const (
	feedAttempts    = 5
	feedRetryDelay  = time.Second
	shutdownTimeout = 10 * time.Second
)

var (
	app        = kingpin.New("periferico-server", "Periférico podcast site server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	startCmd     = app.Command("start", "Serve the site (default)").Default()
	checkFeedCmd = app.Command("check-feed", "Fetch the feed, print its episodes and exit")
)

func main() {
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	logConfig := logger.Config{Output: "stdout", Level: "info"}
	if *verbose {
		logConfig.Level = "debug"
	}
	if *logfile != "" {
		logConfig.Output = "file"
		logConfig.File = *logfile
	}
	if err := logger.Init(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	switch command {
	case checkFeedCmd.FullCommand():
		err = checkFeed(cfg)
	case startCmd.FullCommand():
		err = run(cfg)
	}
	if err != nil {
		zlog.Error().Msgf("%s failed: %v", command, err)
		os.Exit(1)
	}
}

// site holds everything the server wires together.
type site struct {
	catalog  *catalog.Catalog
	sessions *session.Registry
	handler  http.Handler
	cache    *feedcache.Cache
	stopping chan struct{}
}

func (s *site) close() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			zlog.Warn().Msgf("Failed to close feed cache: %v", err)
		}
	}
}

func newSite(cfg *config.Config) (*site, error) {
	feedClient, err := feed.New(feed.Config{URL: cfg.Feed.URL, Timeout: cfg.Feed.Timeout()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create feed client")
	}

	s := &site{stopping: make(chan struct{})}

	var opts []catalog.Option
	if cfg.Feed.CachePath != "" {
		s.cache, err = feedcache.Open(cfg.Feed.CachePath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open feed cache")
		}
		opts = append(opts, catalog.WithCache(s.cache))
	}
	s.catalog = catalog.New(feedClient, cfg.Feed.RevalidateInterval(), opts...)

	loader, err := media.NewLoader(cfg.Media)
	if err != nil {
		s.close()
		return nil, errors.Wrap(err, "failed to create media loader")
	}
	s.sessions = session.NewRegistry(loader, cfg.Session.IdleTimeout(), cfg.Session.SweepInterval())

	pages, err := web.New(web.Config{
		Site:       cfg.Site,
		FeedURL:    cfg.Feed.URL,
		CookieName: cfg.Session.CookieName,
	}, s.catalog, s.sessions, notes.NewRenderer())
	if err != nil {
		s.close()
		return nil, errors.Wrap(err, "failed to create site handler")
	}

	rpcPath, rpcHandler := apiconnect.NewPlayerServiceHandler(
		apiconnect.NewPlayerService(s.catalog, s.sessions, s.stopping),
		connect.WithInterceptors(apiconnect.NewSessionInterceptor(s.sessions)),
	)

	mux := http.NewServeMux()
	mux.Handle(rpcPath, rpcHandler)
	mux.Handle("/", pages)
	s.handler = h2c.NewHandler(mux, &http2.Server{})

	return s, nil
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := newSite(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	if err := loadCatalog(ctx, s.catalog); err != nil {
		zlog.Warn().Msgf("Feed unavailable at startup: %v", err)
		if cfg.Feed.CachePath != "" {
			if err := s.catalog.Restore(); err != nil {
				zlog.Warn().Msgf("No cached feed snapshot, starting without episodes: %v", err)
			}
		}
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", cfg.Server.Addr)
	}
	server := &http.Server{Handler: s.handler}

	go s.catalog.Run(ctx)
	go s.sessions.Run(ctx)

	serveErr := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Serving: addr=%s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("Received %s, shutting down", sig)
	case err := <-serveErr:
		runErr = errors.Wrap(err, "server error")
	}

	// Streams block Shutdown until they end, so sessions go first.
	close(s.stopping)
	s.sessions.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")
	return runErr
}

// loadCatalog fetches the feed once, backing off between failed attempts.
func loadCatalog(ctx context.Context, cat *catalog.Catalog) error {
	var err error
	delay := feedRetryDelay
	for attempt := 1; attempt <= feedAttempts; attempt++ {
		if err = cat.Refresh(ctx); err == nil {
			zlog.Info().Msgf("Feed loaded: episodes=%d", len(cat.Episodes()))
			return nil
		}
		zlog.Warn().Msgf("Feed fetch failed: attempt=%d/%d err=%v", attempt, feedAttempts, err)
		if attempt == feedAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return errors.Wrapf(err, "feed unavailable after %d attempts", feedAttempts)
}

// checkFeed prints the episodes the site would list.
func checkFeed(cfg *config.Config) error {
	client, err := feed.New(feed.Config{URL: cfg.Feed.URL, Timeout: cfg.Feed.Timeout()})
	if err != nil {
		return err
	}
	episodes, err := client.Fetch(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Feed: %s (%d episodes)\n", cfg.Feed.URL, len(episodes))
	for _, ep := range episodes {
		fmt.Printf("  %4s  %s  %-50s  %s\n", ep.ID, ep.Published.Format("2006-01-02"), ep.Title, ep.Audio.Type)
	}
	return nil
}

// executeHooks runs each hook through sh -c, logging failures.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}
	zlog.Info().Msgf("Running %s hooks: count=%d", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Debug().Msgf("Running hook: %s", hook)
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Hook failed: %s", hook)
		}
	}
}
