package media

import (
	"context"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/cesium/periferico/internal/app/playback"
	"github.com/cesium/periferico/internal/domain/episode"
)

// Load failures reported by HTTPLoader.
var (
	ErrNoSource        = errors.New("episode has no audio source")
	ErrUnreachable     = errors.New("audio source unreachable")
	ErrBadStatus       = errors.New("audio source returned an error status")
	ErrUnsupportedType = errors.New("unsupported audio content type")
)

// HTTPLoader probes the audio source of an episode before playing it. The probe
// learns whether the source is playable and estimates its duration from the
// content length and the configured bitrate.
type HTTPLoader struct {
	client  *http.Client
	bitrate int // kbit/s
	tick    time.Duration
}

// NewHTTPLoader creates a loader that probes with client.
func NewHTTPLoader(client *http.Client, bitrateKbps int, tick time.Duration) *HTTPLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLoader{
		client:  client,
		bitrate: bitrateKbps,
		tick:    tick,
	}
}

// Load starts probing ref's audio source and returns immediately.
func (l *HTTPLoader) Load(ctx context.Context, ref episode.Ref, emit playback.Emitter) (playback.Resource, error) {
	if ref.AudioSource == "" {
		return nil, errors.Wrapf(ErrNoSource, "episode %s", ref.ID)
	}

	resource := newClockResource(emit, 0, l.tick)

	gate := make(chan struct{})
	defer close(gate)

	go func() {
		<-gate
		duration, err := l.probe(ctx, ref)
		if ctx.Err() != nil {
			// Detached while probing; nobody is listening anymore.
			return
		}
		if err != nil {
			emit(playback.Event{Type: playback.EventFailed, Err: err})
			return
		}

		resource.mu.Lock()
		resource.duration = duration
		resource.mu.Unlock()

		zlog.Debug().Msgf("media: source ready: episode=%s duration=%s", ref.ID, duration)
		emit(playback.Event{Type: playback.EventReady, Duration: duration})
	}()

	return resource, nil
}

// probe issues a HEAD request for ref's source and returns the estimated duration.
func (l *HTTPLoader) probe(ctx context.Context, ref episode.Ref) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, ref.AudioSource, nil)
	if err != nil {
		return 0, errors.Wrapf(ErrUnreachable, "invalid source %q: %v", ref.AudioSource, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(ErrUnreachable, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, errors.Wrapf(ErrBadStatus, "status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = ref.AudioType
	}
	if !playable(contentType) {
		return 0, errors.Wrapf(ErrUnsupportedType, "%q", contentType)
	}

	return EstimateDuration(resp.ContentLength, l.bitrate), nil
}

// playable reports whether contentType can be rendered by an audio element.
func playable(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "audio/") || mediaType == "application/octet-stream"
}

// EstimateDuration returns the playing time of size bytes at a constant
// bitrate, or 0 when either is unknown.
func EstimateDuration(size int64, bitrateKbps int) time.Duration {
	if size <= 0 || bitrateKbps <= 0 {
		return 0
	}
	seconds := float64(size*8) / float64(bitrateKbps*1000)
	return time.Duration(seconds * float64(time.Second)).Round(time.Second)
}
