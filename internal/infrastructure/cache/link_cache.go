// Package cache provides the link redirect cache backed by BadgerDB.
//
// Entries are keyed by the case-normalized "domain:key" string produced
// by links.CacheKey; the deletion pipeline invalidates with the same
// normalization the redirect write path uses.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"linkpress/internal/domain/deletion"
	"linkpress/pkg/logger"
)

// Config holds cache configuration.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// DefaultTTL applies to Set calls with a zero ttl.
	DefaultTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		DefaultTTL: 24 * time.Hour,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		DefaultTTL: 24 * time.Hour,
	}
}

var _ deletion.Cache = (*LinkCache)(nil)

// LinkCache is the embedded key-value cache for link lookups.
type LinkCache struct {
	db         *badger.DB
	defaultTTL time.Duration
}

// Open creates and opens the cache with the given configuration.
func Open(cfg Config, log *logger.Logger) (*LinkCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(badgerLogger{log.WithComponent("cache")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &LinkCache{db: db, defaultTTL: cfg.DefaultTTL}, nil
}

// Close flushes and closes the underlying database.
func (c *LinkCache) Close() error {
	return c.db.Close()
}

// Set stores a cached link payload under a normalized key.
func (c *LinkCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), payload).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Get returns the cached payload for key, and whether it was present.
func (c *LinkCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return payload, true, nil
}

// DeleteKeys removes entries in one batched write. Deleting an absent
// key is a no-op, so repeated invalidation passes are safe.
func (c *LinkCache) DeleteKeys(_ context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		if err := wb.Delete([]byte(key)); err != nil {
			return fmt.Errorf("cache delete %s: %w", key, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("cache delete flush: %w", err)
	}
	return nil
}

// badgerLogger adapts our logger to BadgerDB's Logger interface.
type badgerLogger struct {
	log *logger.Logger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.log.Debugf(format, args...) }
