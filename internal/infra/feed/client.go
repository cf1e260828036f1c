// Package feed provides the podcast feed adapter: it fetches the RSS feed and
// turns its items into ordered episodes.
package feed

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mmcdole/gofeed"
	zlog "github.com/rs/zerolog/log"

	"github.com/cesium/periferico/internal/domain/episode"
)

// ErrNoFeedURL is returned when the client has no feed to fetch.
var ErrNoFeedURL = errors.New("feed URL is required")

// Config represents feed client configuration.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client fetches a podcast feed.
type Client struct {
	url    string
	parser *gofeed.Parser
}

// New creates a new feed client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, ErrNoFeedURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "periferico/1.0"

	return &Client{
		url:    cfg.URL,
		parser: parser,
	}, nil
}

// Fetch downloads and parses the feed.
func (c *Client) Fetch(ctx context.Context) ([]episode.Episode, error) {
	f, err := c.parser.ParseURLWithContext(c.url, ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch feed %s", c.url)
	}

	episodes := Episodes(f)
	zlog.Debug().Msgf("feed: fetched: url=%s items=%d episodes=%d", c.url, len(f.Items), len(episodes))
	return episodes, nil
}

// Episodes maps feed items to episodes. Items are expected newest first; the
// id of an item is its reverse position, so the newest item gets the highest
// id. Items without an enclosure are skipped without shifting other ids.
func Episodes(f *gofeed.Feed) []episode.Episode {
	total := len(f.Items)
	episodes := make([]episode.Episode, 0, total)

	for index, item := range f.Items {
		id := strconv.Itoa(total - index)

		audio, ok := enclosure(item)
		if !ok {
			zlog.Warn().Msgf("feed: skipping item without audio: id=%s title=%q", id, item.Title)
			continue
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		content := item.Content
		if content == "" {
			content = item.Description
		}

		ep := episode.Episode{
			ID:          id,
			Title:       strings.TrimSpace(item.Title),
			Description: FirstLine(Snippet(summary)),
			Content:     content,
			Audio:       audio,
		}
		if item.PublishedParsed != nil {
			ep.Published = *item.PublishedParsed
		}
		if item.ITunesExt != nil {
			ep.Duration = ParseDuration(item.ITunesExt.Duration)
		}
		episodes = append(episodes, ep)
	}

	return episodes
}

func enclosure(item *gofeed.Item) (episode.Audio, bool) {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		return episode.Audio{Src: enc.URL, Type: enc.Type}, true
	}
	return episode.Audio{}, false
}

// FirstLine returns the first non-blank line of s.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// ParseDuration parses an itunes:duration value: seconds, MM:SS or HH:MM:SS.
// It returns 0 for values it cannot read.
func ParseDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}

	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
