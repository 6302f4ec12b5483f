package taboot

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/extraction"
	"github.com/jmagar/taboot/llm"
	"github.com/jmagar/taboot/match"
	"github.com/jmagar/taboot/window"
)

// stubProvider returns fixed content, or an error, counting calls.
type stubProvider struct {
	calls   atomic.Int64
	content string
	err     error
}

func (p *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ChatResponse{Content: p.content, FinishReason: "stop"}, nil
}

func newTestOrchestrator(t *testing.T, p llm.Provider, opts ...OrchestratorOption) (*Orchestrator, *cache.Store) {
	t.Helper()
	store, err := cache.NewInMemory()
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m := match.New()
	m.AddPatterns("service", []string{"api-service", "postgres"})
	tierC := extraction.NewClient(p, store)
	o := NewOrchestrator(m, window.New(512), tierC, store, opts...)
	return o, store
}

func TestProcessDocumentHappyPath(t *testing.T) {
	p := &stubProvider{content: `{"triples": [{"subject": "api-service", "predicate": "depends_on", "object": "postgres", "confidence": 0.9}]}`}
	o, store := newTestOrchestrator(t, p)

	docID := uuid.New()
	job, err := o.ProcessDocument(context.Background(), docID, "api-service depends on postgres for storage.")
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}

	if job.State != extraction.StateCompleted {
		t.Errorf("state = %s, want COMPLETED", job.State)
	}
	if job.DocID != docID {
		t.Errorf("doc_id = %s, want %s", job.DocID, docID)
	}
	if job.TierATriples < 1 {
		t.Errorf("tier_a_triples = %d, want >= 1", job.TierATriples)
	}
	if job.TierBWindows < 1 {
		t.Errorf("tier_b_windows = %d, want >= 1", job.TierBWindows)
	}
	if job.TierCTriples < 1 {
		t.Errorf("tier_c_triples = %d, want >= 1", job.TierCTriples)
	}
	if job.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if job.RetryCount != 0 {
		t.Errorf("retry_count = %d, want 0", job.RetryCount)
	}

	// The cache copy is the source of truth; it must match the returned job.
	data, err := store.Get(cache.JobKey(job.JobID.String()))
	if err != nil {
		t.Fatalf("job record not in cache: %v", err)
	}
	var cached extraction.Job
	if err := json.Unmarshal(data, &cached); err != nil {
		t.Fatalf("decoding cached job: %v", err)
	}
	if cached.State != extraction.StateCompleted {
		t.Errorf("cached state = %s, want COMPLETED", cached.State)
	}
	if cached.TierCTriples != job.TierCTriples {
		t.Errorf("cached tier_c_triples = %d, want %d", cached.TierCTriples, job.TierCTriples)
	}
}

func TestProcessDocumentRetryExhaustion(t *testing.T) {
	p := &stubProvider{err: errors.New("llm unreachable")}
	o, store := newTestOrchestrator(t, p)

	job, err := o.ProcessDocument(context.Background(), uuid.New(), "api-service depends on postgres.")
	if err != nil {
		t.Fatalf("retry exhaustion must not surface as an error, got %v", err)
	}

	if job.State != extraction.StateFailed {
		t.Errorf("state = %s, want FAILED", job.State)
	}
	if job.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", job.RetryCount)
	}
	if job.Errors == nil {
		t.Fatal("errors not recorded")
	}
	if job.Errors.RetryCount != 3 {
		t.Errorf("errors.retry_count = %d, want 3", job.Errors.RetryCount)
	}
	if job.Errors.Message == "" {
		t.Error("errors.message empty")
	}
	if job.Errors.FailedAt.IsZero() {
		t.Error("errors.failed_at not set")
	}
	if job.CompletedAt == nil {
		t.Error("completed_at not set on FAILED job")
	}
	// 1 initial attempt + 3 retries, one LLM call each (single window).
	if got := p.calls.Load(); got != 4 {
		t.Errorf("llm calls = %d, want 4", got)
	}

	data, err := store.Get(cache.JobKey(job.JobID.String()))
	if err != nil {
		t.Fatalf("job record not in cache: %v", err)
	}
	var cached extraction.Job
	if err := json.Unmarshal(data, &cached); err != nil {
		t.Fatalf("decoding cached job: %v", err)
	}
	if cached.State != extraction.StateFailed {
		t.Errorf("cached state = %s, want FAILED", cached.State)
	}
}

func TestProcessDocumentEmptyContent(t *testing.T) {
	p := &stubProvider{content: `{"triples": []}`}
	o, _ := newTestOrchestrator(t, p)

	job, err := o.ProcessDocument(context.Background(), uuid.New(), "")
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	if job.State != extraction.StateCompleted {
		t.Errorf("state = %s, want COMPLETED", job.State)
	}
	if job.TierATriples != 0 || job.TierBWindows != 0 || job.TierCTriples != 0 {
		t.Errorf("counters = (%d, %d, %d), want all zero",
			job.TierATriples, job.TierBWindows, job.TierCTriples)
	}
	if got := p.calls.Load(); got != 0 {
		t.Errorf("llm calls for empty content = %d, want 0", got)
	}
}

func TestProcessDocumentRetrySucceedsAfterTransientFailure(t *testing.T) {
	// Fail the first attempt, then recover.
	fail := atomic.Bool{}
	fail.Store(true)
	p := &flakyProvider{fail: &fail, content: `{"triples": [{"subject": "a", "predicate": "b", "object": "c", "confidence": 1}]}`}
	o, _ := newTestOrchestrator(t, p)

	job, err := o.ProcessDocument(context.Background(), uuid.New(), "api-service depends on postgres.")
	if err != nil {
		t.Fatalf("ProcessDocument failed: %v", err)
	}
	if job.State != extraction.StateCompleted {
		t.Errorf("state = %s, want COMPLETED", job.State)
	}
	if job.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", job.RetryCount)
	}
}

type flakyProvider struct {
	fail    *atomic.Bool
	content string
}

func (p *flakyProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.fail.Swap(false) {
		return nil, errors.New("transient")
	}
	return &llm.ChatResponse{Content: p.content, FinishReason: "stop"}, nil
}

func TestStateTransitionGuards(t *testing.T) {
	tests := []struct {
		from, to extraction.State
		ok       bool
	}{
		{extraction.StatePending, extraction.StateTierADone, true},
		{extraction.StateTierADone, extraction.StateTierBDone, true},
		{extraction.StateTierBDone, extraction.StateTierCDone, true},
		{extraction.StateTierCDone, extraction.StateCompleted, true},
		{extraction.StatePending, extraction.StateFailed, true},
		{extraction.StateTierBDone, extraction.StateFailed, true},
		{extraction.StatePending, extraction.StateTierBDone, false},
		{extraction.StateTierBDone, extraction.StateTierADone, false},
		{extraction.StateCompleted, extraction.StateFailed, false},
		{extraction.StateFailed, extraction.StatePending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}
