package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/docstore"
	"github.com/jmagar/taboot/extraction"
)

// DefaultPollTimeout is the blocking-pop timeout on the extraction queue.
const DefaultPollTimeout = 5 * time.Second

// Extractor runs one document to a terminal job state. Satisfied by the
// root Orchestrator and Pipeline.
type Extractor interface {
	ProcessDocument(ctx context.Context, docID uuid.UUID, content string) (*extraction.Job, error)
}

// Envelope is the queue item format on queue:extraction.
type Envelope struct {
	DocID string `json:"doc_id"`
}

// Metrics holds the worker's monotonic counters. Read via Snapshot.
type Metrics struct {
	Processed    atomic.Int64
	Succeeded    atomic.Int64
	Failed       atomic.Int64
	Discarded    atomic.Int64
	Requeued     atomic.Int64
	DeadLettered atomic.Int64
}

// Snapshot returns the counters as a map for status endpoints.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"processed":     m.Processed.Load(),
		"succeeded":     m.Succeeded.Load(),
		"failed":        m.Failed.Load(),
		"discarded":     m.Discarded.Load(),
		"requeued":      m.Requeued.Load(),
		"dead_lettered": m.DeadLettered.Load(),
	}
}

// Worker consumes queue:extraction and drives each document through the
// extractor. One Worker per process; Run owns the loop.
type Worker struct {
	cache       *cache.Store
	docs        docstore.Store
	extractor   Extractor
	dlq         *DLQ
	pollTimeout time.Duration
	log         *slog.Logger
	metrics     Metrics
	stopped     atomic.Bool
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithPollTimeout overrides the queue pop timeout.
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

// WithWorkerLogger sets the worker's logger.
func WithWorkerLogger(log *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if log != nil {
			w.log = log
		}
	}
}

// New returns a Worker over the shared cache, document store and extractor.
func New(store *cache.Store, docs docstore.Store, ext Extractor, dlq *DLQ, opts ...WorkerOption) *Worker {
	w := &Worker{
		cache:       store,
		docs:        docs,
		extractor:   ext,
		dlq:         dlq,
		pollTimeout: DefaultPollTimeout,
		log:         slog.Default().With("component", "worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Metrics exposes the worker counters.
func (w *Worker) Metrics() *Metrics { return &w.metrics }

// Enqueue pushes a {doc_id} envelope onto the extraction queue.
func Enqueue(store *cache.Store, docID uuid.UUID) error {
	data, err := json.Marshal(Envelope{DocID: docID.String()})
	if err != nil {
		return fmt.Errorf("worker: encoding envelope: %w", err)
	}
	return store.Push(cache.QueueExtraction, data)
}

// Stop makes Run exit after the current pop. In-flight documents complete.
func (w *Worker) Stop() { w.stopped.Store(true) }

// Run polls the extraction queue until ctx is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started", "poll_timeout", w.pollTimeout)
	for {
		if w.stopped.Load() {
			w.log.Info("worker stopping")
			return
		}
		item, err := w.cache.Pop(ctx, cache.QueueExtraction, w.pollTimeout)
		if errors.Is(err, cache.ErrQueueEmpty) {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			w.log.Info("worker stopping", "reason", ctx.Err())
			return
		}
		if err != nil {
			w.log.Error("queue pop failed", "error", err)
			continue
		}
		w.processItem(ctx, item)
	}
}

// processItem handles one queue entry end to end, including retry
// accounting for failures the orchestrator cannot absorb.
func (w *Worker) processItem(ctx context.Context, item []byte) {
	var env Envelope
	if err := json.Unmarshal(item, &env); err != nil {
		w.metrics.Discarded.Add(1)
		w.log.Warn("discarding malformed queue item", "error", err)
		return
	}
	docID, err := uuid.Parse(env.DocID)
	if err != nil {
		w.metrics.Discarded.Add(1)
		w.log.Warn("discarding queue item with invalid doc_id", "doc_id", env.DocID)
		return
	}

	w.metrics.Processed.Add(1)
	if err := w.handle(ctx, docID); err != nil {
		w.fail(env, item, err)
		return
	}
	if err := w.dlq.ClearRetryCount(env.DocID); err != nil {
		w.log.Warn("clearing retry count failed", "doc_id", env.DocID, "error", err)
	}
}

// handle fetches the document, extracts it and writes the terminal state
// back. A recovered panic becomes an ordinary error so one poisoned
// document cannot take the loop down.
func (w *Worker) handle(ctx context.Context, docID uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: panic processing %s: %v", docID, r)
		}
	}()

	doc, err := w.docs.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("worker: fetching document %s: %w", docID, err)
	}

	job, err := w.extractor.ProcessDocument(ctx, doc.DocID, doc.Content)
	if err != nil {
		return err
	}

	doc.ExtractionState = job.State
	if err := w.docs.UpdateDocument(ctx, *doc); err != nil {
		return fmt.Errorf("worker: updating document %s: %w", docID, err)
	}

	if job.State == extraction.StateFailed {
		// Terminal by the orchestrator's own retry policy; recorded on the
		// job, not dead-lettered.
		w.metrics.Failed.Add(1)
		w.log.Warn("document failed extraction", "doc_id", docID, "job_id", job.JobID)
		return nil
	}
	w.metrics.Succeeded.Add(1)
	return nil
}

// fail re-queues the envelope after a backoff delay, or dead-letters it
// once the retry budget is spent.
func (w *Worker) fail(env Envelope, item []byte, cause error) {
	w.metrics.Failed.Add(1)
	n, err := w.dlq.IncrementRetryCount(env.DocID)
	if err != nil {
		w.log.Error("retry accounting failed, dead-lettering", "doc_id", env.DocID, "error", err)
		w.deadLetter(env, item, cause)
		return
	}

	retry, err := w.dlq.ShouldRetry(env.DocID)
	if err != nil || !retry {
		w.deadLetter(env, item, cause)
		return
	}

	delay := w.dlq.BackoffDelay(n)
	w.metrics.Requeued.Add(1)
	w.log.Warn("re-queueing after failure",
		"doc_id", env.DocID, "attempt", n, "delay", delay, "error", cause)
	time.AfterFunc(delay, func() {
		if err := w.cache.Push(cache.QueueExtraction, item); err != nil {
			w.log.Error("re-queue push failed", "doc_id", env.DocID, "error", err)
		}
	})
}

func (w *Worker) deadLetter(env Envelope, item []byte, cause error) {
	w.metrics.DeadLettered.Add(1)
	w.log.Error("dead-lettering envelope", "doc_id", env.DocID, "error", cause)
	if err := w.dlq.SendToDLQ(item, cause); err != nil {
		w.log.Error("dlq push failed", "doc_id", env.DocID, "error", err)
	}
	if err := w.dlq.ClearRetryCount(env.DocID); err != nil {
		w.log.Warn("clearing retry count failed", "doc_id", env.DocID, "error", err)
	}
}
