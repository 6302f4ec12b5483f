// Package cache is the process-wide fast KV store backing extraction job
// state, Tier-C result entries, API keys, retry counters, and the job
// queues. It is backed by an embedded badger database; one long-lived Store
// per process, safe for concurrent use.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned by Get when no value exists under the key.
var ErrKeyNotFound = errors.New("cache: key not found")

// Store wraps a badger database.
type Store struct {
	db *badger.DB
}

// New opens (or creates) a cache at path.
func New(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: opening badger at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// NewInMemory opens an ephemeral cache. Used by tests and by the CLI when no
// cache path is configured.
func NewInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: opening in-memory badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set stores value under key with no expiry.
func (s *Store) Set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// SetWithTTL stores value under key, expiring after ttl. A non-positive ttl
// stores without expiry.
func (s *Store) SetWithTTL(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Set(key, value)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(ttl))
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Exists reports whether key is present.
func (s *Store) Exists(key string) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ping verifies the store is usable.
func (s *Store) Ping() error {
	if s.db.IsClosed() {
		return errors.New("cache: store closed")
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
