// ABOUTME: BadgerDB cache of alias oracle answers keyed by nixpkgs source path
// ABOUTME: Entries expire after a TTL so renamed aliases are picked up again

package aliascache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "alias:"

// StoreConfig holds configuration for the BadgerDB store.
type StoreConfig struct {
	// Path to the database directory. Required unless InMemory is true.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites enables synchronous writes.
	SyncWrites bool

	// Logger for BadgerDB operations.
	Logger badger.Logger
}

// Entry is a cached oracle answer.
type Entry struct {
	Known     bool      `json:"known"`
	Evaluated bool      `json:"evaluated"`
	Failed    bool      `json:"failed"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Cache stores oracle answers.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens the cache.
func Open(cfg StoreConfig, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	if cfg.SyncWrites {
		opts = opts.WithSyncWrites(true)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger)
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}

	return &Cache{
		db:  db,
		ttl: ttl,
	}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Key returns the storage key for attr under a nixpkgs source path.
func Key(nixpkgsPath, attr string) string {
	return keyPrefix + nixpkgsPath + ":" + attr
}

// Put stores an entry with the cache TTL.
func (c *Cache) Put(_ context.Context, nixpkgsPath, attr string, entry Entry) error {
	if entry.CheckedAt.IsZero() {
		entry.CheckedAt = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(Key(nixpkgsPath, attr)), data)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Get returns (entry, true, nil) when cached and (zero, false, nil) when not.
func (c *Cache) Get(_ context.Context, nixpkgsPath, attr string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(Key(nixpkgsPath, attr)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting cache entry: %w", err)
		}

		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry: %w", err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return Entry{}, false, err
	}

	return entry, found, nil
}

// Clear removes all cached answers.
func (c *Cache) Clear(_ context.Context) error {
	return c.db.DropPrefix([]byte(keyPrefix))
}

// Count returns the number of cached answers.
func (c *Cache) Count(_ context.Context) (int64, error) {
	var count int64

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})

	return count, err
}

// TTL returns the cache TTL.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
