package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ErrQueueEmpty is returned by Pop when the timeout elapses with no entry
// available.
var ErrQueueEmpty = errors.New("cache: queue empty")

// pollInterval is how often a blocking Pop re-checks the queue.
const pollInterval = 50 * time.Millisecond

func queueItemPrefix(queue string) []byte {
	return []byte(queue + ":item:")
}

func queueItemKey(queue string) []byte {
	return fmt.Appendf(nil, "%s:item:%020d:%s", queue, time.Now().UnixNano(), uuid.NewString())
}

// Push appends value to the tail of queue.
func (s *Store) Push(queue string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(queueItemKey(queue), value)
	})
}

// Pop removes and returns the oldest entry of queue, blocking up to timeout.
// Returns ErrQueueEmpty when the timeout elapses, or the context error when
// ctx is cancelled first.
func (s *Store) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		value, ok, err := s.tryPop(queue)
		if errors.Is(err, badger.ErrConflict) {
			// Another popper won the race; treat as empty and re-poll.
			ok, err = false, nil
		}
		if err != nil {
			return nil, err
		}
		if ok {
			return value, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrQueueEmpty
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// tryPop takes the first (oldest) member under the queue prefix.
func (s *Store) tryPop(queue string) ([]byte, bool, error) {
	var value []byte
	found := false
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := queueItemPrefix(queue)
		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(item.KeyCopy(nil)); err != nil {
			return err
		}
		value = v
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// QueueDepth counts the entries currently in queue.
func (s *Store) QueueDepth(queue string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := queueItemPrefix(queue)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PeekQueue returns up to limit entries without removing them, newest first.
// Used to inspect the DLQ.
func (s *Store) PeekQueue(queue string, limit int) ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := queueItemPrefix(queue)
		// Reverse iteration starts from the key just past the prefix range.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
