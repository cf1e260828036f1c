// Package catalog keeps the latest episode list of the podcast feed.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/cesium/periferico/internal/domain/episode"
)

// ErrEpisodeNotFound is returned when no episode has the requested id.
var ErrEpisodeNotFound = errors.New("episode not found")

// Source fetches the full episode list.
type Source interface {
	Fetch(ctx context.Context) ([]episode.Episode, error)
}

// Cache keeps the last good snapshot across restarts.
type Cache interface {
	Save(episodes []episode.Episode) error
	Load() ([]episode.Episode, time.Time, error)
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache saves every refreshed snapshot to cache.
func WithCache(cache Cache) Option {
	return func(c *Catalog) {
		c.cache = cache
	}
}

// Catalog is a periodically revalidated snapshot of the feed. A failed refresh
// keeps serving the previous snapshot.
type Catalog struct {
	source   Source
	interval time.Duration
	cache    Cache

	mu        sync.RWMutex
	episodes  []episode.Episode
	index     map[string]int
	updatedAt time.Time
}

// New creates an empty catalog that refreshes from source every interval.
func New(source Source, interval time.Duration, opts ...Option) *Catalog {
	c := &Catalog{
		source:   source,
		interval: interval,
		index:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh fetches the feed once and replaces the snapshot on success.
func (c *Catalog) Refresh(ctx context.Context) error {
	episodes, err := c.source.Fetch(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to refresh catalog")
	}

	changed := c.replace(episodes, time.Now())

	if changed && c.cache != nil {
		if err := c.cache.Save(episodes); err != nil {
			zlog.Warn().Msgf("catalog: failed to save snapshot: err=%v", err)
		}
	}

	if changed {
		zlog.Info().Msgf("catalog: refreshed: episodes=%d", len(episodes))
	} else {
		zlog.Debug().Msgf("catalog: refreshed: episodes=%d", len(episodes))
	}
	return nil
}

// Restore loads the cached snapshot when the catalog is still empty. It is
// meant for startup, when the first refresh failed.
func (c *Catalog) Restore() error {
	if c.cache == nil {
		return errors.New("catalog has no cache")
	}

	c.mu.RLock()
	empty := len(c.episodes) == 0
	c.mu.RUnlock()
	if !empty {
		return nil
	}

	episodes, savedAt, err := c.cache.Load()
	if err != nil {
		return errors.Wrap(err, "failed to restore catalog")
	}
	c.replace(episodes, savedAt)

	zlog.Info().Msgf("catalog: restored from cache: episodes=%d saved_at=%s", len(episodes), savedAt.Format(time.RFC3339))
	return nil
}

// replace swaps the snapshot and reports whether its content changed.
func (c *Catalog) replace(episodes []episode.Episode, at time.Time) bool {
	index := make(map[string]int, len(episodes))
	for i, ep := range episodes {
		index[ep.ID] = i
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	changed := !sameEpisodes(episodes, c.episodes)
	c.episodes = episodes
	c.index = index
	c.updatedAt = at
	return changed
}

// Run refreshes the catalog every interval until ctx is done.
func (c *Catalog) Run(ctx context.Context) {
	if c.interval <= 0 {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				zlog.Warn().Msgf("catalog: keeping previous snapshot: err=%v", err)
			}
		}
	}
}

// Episodes returns the episodes in feed order, most recent first.
func (c *Catalog) Episodes() []episode.Episode {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]episode.Episode, len(c.episodes))
	copy(result, c.episodes)
	return result
}

// Find returns the episode with the given id.
func (c *Catalog) Find(id string) (episode.Episode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[id]
	if !ok {
		return episode.Episode{}, errors.Wrapf(ErrEpisodeNotFound, "id %q", id)
	}
	return c.episodes[i], nil
}

// UpdatedAt returns when the snapshot was last replaced.
func (c *Catalog) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

func sameEpisodes(a, b []episode.Episode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Title != y.Title || x.Description != y.Description ||
			x.Content != y.Content || x.Audio != y.Audio || x.Duration != y.Duration ||
			!x.Published.Equal(y.Published) {
			return false
		}
	}
	return true
}
