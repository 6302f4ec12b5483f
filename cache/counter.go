package cache

import (
	"errors"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

// IncrRetryCount atomically increments the retry counter for jobID and
// returns the post-increment value.
func (s *Store) IncrRetryCount(jobID string) (int, error) {
	key := []byte(RetryCountKey(jobID))
	count := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			count = 0
		case err != nil:
			return err
		default:
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			count, _ = strconv.Atoi(string(v))
		}
		count++
		return txn.Set(key, []byte(strconv.Itoa(count)))
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetRetryCount returns the retry counter for jobID, 0 when absent.
func (s *Store) GetRetryCount(jobID string) (int, error) {
	v, err := s.Get(RetryCountKey(jobID))
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// ClearRetryCount deletes the retry counter for jobID.
func (s *Store) ClearRetryCount(jobID string) error {
	return s.Delete(RetryCountKey(jobID))
}
