package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/docstore"
	"github.com/jmagar/taboot/extraction"
)

type fakeExtractor struct {
	calls   atomic.Int64
	process func(docID uuid.UUID, content string) (*extraction.Job, error)
}

func (f *fakeExtractor) ProcessDocument(ctx context.Context, docID uuid.UUID, content string) (*extraction.Job, error) {
	f.calls.Add(1)
	return f.process(docID, content)
}

func terminalJob(docID uuid.UUID, state extraction.State) *extraction.Job {
	job := extraction.NewJob(docID)
	job.State = state
	return job
}

func newTestWorker(t *testing.T, ext Extractor) (*Worker, *cache.Store, *docstore.MemoryStore) {
	t.Helper()
	store, err := cache.NewInMemory()
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	docs := docstore.NewMemoryStore()
	dlq := NewDLQ(store, 3, time.Millisecond)
	w := New(store, docs, ext, dlq, WithPollTimeout(20*time.Millisecond))
	return w, store, docs
}

func seedDocument(t *testing.T, docs *docstore.MemoryStore, content string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	doc := docstore.Document{
		DocID:           id,
		SourceURL:       "test://" + id.String(),
		SourceType:      docstore.SourceFile,
		Content:         content,
		IngestedAt:      time.Now().UTC(),
		ExtractionState: extraction.StatePending,
	}
	if err := docs.UpdateDocument(context.Background(), doc); err != nil {
		t.Fatalf("seeding document: %v", err)
	}
	return id
}

// eventually polls cond until it returns true or the deadline passes.
func eventually(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestWorkerProcessesEnvelope(t *testing.T) {
	ext := &fakeExtractor{process: func(docID uuid.UUID, content string) (*extraction.Job, error) {
		return terminalJob(docID, extraction.StateCompleted), nil
	}}
	w, store, docs := newTestWorker(t, ext)
	id := seedDocument(t, docs, "api-service depends on postgres")

	if err := Enqueue(store, id); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	if !eventually(t, 2*time.Second, func() bool { return w.Metrics().Succeeded.Load() == 1 }) {
		t.Fatal("worker never succeeded")
	}
	w.Stop()
	cancel()
	<-done

	doc, err := docs.GetDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.ExtractionState != extraction.StateCompleted {
		t.Errorf("doc state = %s, want COMPLETED", doc.ExtractionState)
	}
	n, err := store.GetRetryCount(id.String())
	if err != nil {
		t.Fatalf("GetRetryCount: %v", err)
	}
	if n != 0 {
		t.Errorf("retry count after success = %d, want 0", n)
	}
}

func TestWorkerDiscardsMalformedItems(t *testing.T) {
	ext := &fakeExtractor{process: func(docID uuid.UUID, content string) (*extraction.Job, error) {
		return terminalJob(docID, extraction.StateCompleted), nil
	}}
	w, store, _ := newTestWorker(t, ext)

	if err := store.Push(cache.QueueExtraction, []byte("{broken")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := store.Push(cache.QueueExtraction, []byte(`{"doc_id":"not-a-uuid"}`)); err != nil {
		t.Fatalf("Push: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	if !eventually(t, 2*time.Second, func() bool { return w.Metrics().Discarded.Load() == 2 }) {
		t.Fatal("worker never discarded both malformed items")
	}
	w.Stop()
	cancel()
	<-done

	if got := ext.calls.Load(); got != 0 {
		t.Errorf("extractor called %d times for malformed items, want 0", got)
	}
	depth, err := store.QueueDepth(cache.QueueDLQ)
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	if depth != 0 {
		t.Errorf("malformed items reached the DLQ: depth = %d, want 0", depth)
	}
}

func TestWorkerFailedJobIsTerminalNotDeadLettered(t *testing.T) {
	ext := &fakeExtractor{process: func(docID uuid.UUID, content string) (*extraction.Job, error) {
		return terminalJob(docID, extraction.StateFailed), nil
	}}
	w, store, docs := newTestWorker(t, ext)
	id := seedDocument(t, docs, "content")

	if err := Enqueue(store, id); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	if !eventually(t, 2*time.Second, func() bool { return w.Metrics().Failed.Load() == 1 }) {
		t.Fatal("worker never recorded the failure")
	}
	w.Stop()
	cancel()
	<-done

	doc, err := docs.GetDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.ExtractionState != extraction.StateFailed {
		t.Errorf("doc state = %s, want FAILED", doc.ExtractionState)
	}
	depth, err := store.QueueDepth(cache.QueueDLQ)
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	if depth != 0 {
		t.Errorf("orchestrator-FAILED job was dead-lettered: depth = %d, want 0", depth)
	}
}

func TestWorkerRequeuesThenDeadLetters(t *testing.T) {
	ext := &fakeExtractor{process: func(docID uuid.UUID, content string) (*extraction.Job, error) {
		return nil, errors.New("transient store outage")
	}}
	w, store, docs := newTestWorker(t, ext)
	id := seedDocument(t, docs, "content")

	if err := Enqueue(store, id); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	// 3 attempts: two re-queues with backoff, then the DLQ.
	if !eventually(t, 5*time.Second, func() bool { return w.Metrics().DeadLettered.Load() == 1 }) {
		t.Fatal("envelope never reached the DLQ")
	}
	w.Stop()
	cancel()
	<-done

	if got := w.Metrics().Requeued.Load(); got != 2 {
		t.Errorf("requeued = %d, want 2", got)
	}
	if got := ext.calls.Load(); got != 3 {
		t.Errorf("extractor called %d times, want 3", got)
	}
	items, err := store.PeekQueue(cache.QueueDLQ, 0)
	if err != nil {
		t.Fatalf("PeekQueue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("dlq has %d items, want 1", len(items))
	}
	// Counter is cleared when the envelope dead-letters.
	n, err := store.GetRetryCount(id.String())
	if err != nil {
		t.Fatalf("GetRetryCount: %v", err)
	}
	if n != 0 {
		t.Errorf("retry count after dead-letter = %d, want 0", n)
	}
}

func TestWorkerRecoversPanics(t *testing.T) {
	ext := &fakeExtractor{process: func(docID uuid.UUID, content string) (*extraction.Job, error) {
		panic("extractor bug")
	}}
	w, store, docs := newTestWorker(t, ext)
	id := seedDocument(t, docs, "content")

	if err := Enqueue(store, id); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	if !eventually(t, 5*time.Second, func() bool { return w.Metrics().DeadLettered.Load() == 1 }) {
		t.Fatal("panicking envelope never reached the DLQ")
	}
	w.Stop()
	cancel()
	<-done
}

func TestSweeperEnqueuesPendingOnce(t *testing.T) {
	store, err := cache.NewInMemory()
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	docs := docstore.NewMemoryStore()

	a := seedDocument(t, docs, "doc a")
	seedDocument(t, docs, "doc b")
	// One document is already queued; the sweep must not duplicate it.
	if err := Enqueue(store, a); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	s, err := NewSweeper(store, docs, "@every 1m")
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("sweep enqueued %d, want 1", n)
	}
	depth, err := store.QueueDepth(cache.QueueExtraction)
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	if depth != 2 {
		t.Errorf("queue depth = %d, want 2", depth)
	}

	// A second sweep with nothing new is a no-op.
	n, err = s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep enqueued %d, want 0", n)
	}
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	store, err := cache.NewInMemory()
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if _, err := NewSweeper(store, docstore.NewMemoryStore(), "not a schedule"); err == nil {
		t.Error("NewSweeper accepted an invalid schedule")
	}
}
