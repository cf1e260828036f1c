// Package feedcache persists the last good feed snapshot, so the site can list
// episodes right after a restart even when the feed is unreachable.
package feedcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/cesium/periferico/internal/domain/episode"
)

// ErrEmpty is returned by Load when nothing was saved yet.
var ErrEmpty = errors.New("feed cache is empty")

var (
	bucketFeed  = []byte("feed")
	keyEpisodes = []byte("episodes")
	keySavedAt  = []byte("saved_at")
)

// Cache is a BoltDB file holding one feed snapshot.
type Cache struct {
	db *bolt.DB
}

// Open opens or creates the cache file at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache directory for %s", path)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open feed cache %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFeed)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create feed bucket")
	}

	return &Cache{db: db}, nil
}

// Save replaces the stored snapshot.
func (c *Cache) Save(episodes []episode.Episode) error {
	data, err := json.Marshal(episodes)
	if err != nil {
		return errors.Wrap(err, "failed to encode episodes")
	}
	savedAt, err := time.Now().UTC().MarshalText()
	if err != nil {
		return errors.Wrap(err, "failed to encode save time")
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFeed)
		if err := b.Put(keyEpisodes, data); err != nil {
			return err
		}
		return b.Put(keySavedAt, savedAt)
	})
	return errors.Wrap(err, "failed to save feed snapshot")
}

// Load returns the stored snapshot and when it was saved.
func (c *Cache) Load() ([]episode.Episode, time.Time, error) {
	var data, savedAt []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFeed)
		if v := b.Get(keyEpisodes); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		if v := b.Get(keySavedAt); v != nil {
			savedAt = make([]byte, len(v))
			copy(savedAt, v)
		}
		return nil
	})
	if err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to read feed snapshot")
	}
	if data == nil {
		return nil, time.Time{}, ErrEmpty
	}

	var episodes []episode.Episode
	if err := json.Unmarshal(data, &episodes); err != nil {
		return nil, time.Time{}, errors.Wrap(err, "failed to decode episodes")
	}

	var at time.Time
	if savedAt != nil {
		if err := at.UnmarshalText(savedAt); err != nil {
			return nil, time.Time{}, errors.Wrap(err, "failed to decode save time")
		}
	}
	return episodes, at, nil
}

// Close closes the cache file.
func (c *Cache) Close() error {
	return c.db.Close()
}
