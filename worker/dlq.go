// Package worker consumes the extraction queue in the background: it pops
// document envelopes, drives them through the extractor, re-queues transient
// failures with exponential backoff and dead-letters envelopes whose retry
// budget is exhausted.
package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmagar/taboot/cache"
)

// DefaultMaxRetries bounds worker-level re-queues before an envelope is
// dead-lettered.
const DefaultMaxRetries = 3

// DefaultBaseDelay is the backoff unit: delay = base * 2^(n-1).
const DefaultBaseDelay = 2 * time.Second

// DLQ manages the dead-letter queue and the per-job retry counters behind
// the worker's retry policy.
type DLQ struct {
	cache      *cache.Store
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQ returns a DLQ over store. maxRetries <= 0 and baseDelay <= 0 fall
// back to the defaults.
func NewDLQ(store *cache.Store, maxRetries int, baseDelay time.Duration) *DLQ {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &DLQ{cache: store, maxRetries: maxRetries, baseDelay: baseDelay}
}

// SendToDLQ pushes the original envelope onto queue:dlq annotated with the
// failure reason and a UTC timestamp. Envelopes that are not JSON objects
// are preserved verbatim under a "raw" field.
func (d *DLQ) SendToDLQ(jobData []byte, cause error) error {
	entry := map[string]any{}
	if err := json.Unmarshal(jobData, &entry); err != nil {
		entry = map[string]any{"raw": string(jobData)}
	}
	entry["error"] = cause.Error()
	entry["failed_at"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("worker: encoding dlq entry: %w", err)
	}
	return d.cache.Push(cache.QueueDLQ, data)
}

// IncrementRetryCount bumps the counter for jobID and returns the new value.
func (d *DLQ) IncrementRetryCount(jobID string) (int, error) {
	return d.cache.IncrRetryCount(jobID)
}

// GetRetryCount returns the counter for jobID, zero when absent.
func (d *DLQ) GetRetryCount(jobID string) (int, error) {
	return d.cache.GetRetryCount(jobID)
}

// ShouldRetry reports whether jobID still has retry budget left.
func (d *DLQ) ShouldRetry(jobID string) (bool, error) {
	n, err := d.cache.GetRetryCount(jobID)
	if err != nil {
		return false, err
	}
	return n < d.maxRetries, nil
}

// BackoffDelay returns the wait before re-queueing after the n-th failure:
// base * 2^(n-1). Counts below one get the base delay.
func (d *DLQ) BackoffDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		return d.baseDelay
	}
	return d.baseDelay * (1 << (retryCount - 1))
}

// ClearRetryCount removes the counter for jobID. Called on success.
func (d *DLQ) ClearRetryCount(jobID string) error {
	return d.cache.ClearRetryCount(jobID)
}
