// Package cache memoizes feature vectors by audio content on top of an embedded badger store.
package cache

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/farcloser/tocsin/internal/features"
	"github.com/farcloser/tocsin/internal/types"
)

// Options configures the cache.
type Options struct {
	// Dir holds the badger files. Required unless InMemory.
	Dir string
	// InMemory keeps everything in memory, for tests.
	InMemory bool
}

// Cache maps (audio content, feature layout) to a feature vector. It is safe for concurrent use.
type Cache struct {
	db     *badger.DB
	layout features.Layout
	prefix []byte
}

type entry struct {
	Layout features.Layout `msgpack:"layout"`
	Vector []float64       `msgpack:"vector"`
}

// Open opens or creates the cache for one layout. Entries written under other layouts are invisible.
func Open(opts Options, layout features.Layout) (*Cache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("cache: Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(slogLogger{})
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(slogLogger{})
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("cache: opening %q: %w", opts.Dir, err)
	}

	fingerprint, err := msgpack.Marshal(layout)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	sum := sha256.Sum256(fingerprint)

	return &Cache{db: db, layout: layout, prefix: sum[:8]}, nil
}

func (c *Cache) key(content []byte) []byte {
	sum := sha256.Sum256(content)

	return append(append([]byte{}, c.prefix...), sum[:]...)
}

// Get returns the cached vector for content.
func (c *Cache) Get(content []byte) (types.FeatureVector, bool, error) {
	var raw []byte

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(content))
		if err != nil {
			return err
		}

		raw, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	var cached entry
	if err = msgpack.Unmarshal(raw, &cached); err != nil {
		return nil, false, fmt.Errorf("cache: decoding entry: %w", err)
	}

	if cached.Layout != c.layout || len(cached.Vector) != c.layout.Features {
		return nil, false, nil
	}

	return cached.Vector, true, nil
}

// Put stores the vector computed for content.
func (c *Cache) Put(content []byte, vector types.FeatureVector) error {
	raw, err := msgpack.Marshal(entry{Layout: c.layout, Vector: vector})
	if err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.key(content), raw)
	})
}

// Close flushes and closes the store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// slogLogger routes badger warnings and errors to slog and drops its chatter.
type slogLogger struct{}

func (slogLogger) Errorf(format string, args ...any) {
	slog.Error("badger", "message", fmt.Sprintf(format, args...))
}

func (slogLogger) Warningf(format string, args ...any) {
	slog.Warn("badger", "message", fmt.Sprintf(format, args...))
}

func (slogLogger) Infof(string, ...any)  {}
func (slogLogger) Debugf(string, ...any) {}
