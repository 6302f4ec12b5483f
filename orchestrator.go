package taboot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/extraction"
	"github.com/jmagar/taboot/match"
	"github.com/jmagar/taboot/textparse"
	"github.com/jmagar/taboot/window"
)

// DefaultMaxRetries is the orchestrator retry budget: a document gets up to
// 1 + DefaultMaxRetries attempts before the job is FAILED.
const DefaultMaxRetries = 3

// Orchestrator runs one document through the three extraction tiers as a
// typed state machine. Every transition persists the full job record to the
// cache; the cache copy is the source of truth across retries.
type Orchestrator struct {
	matcher    *match.Matcher
	windower   *window.Selector
	tierC      *extraction.Client
	cache      *cache.Store
	maxRetries int
	log        *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithOrchestratorLogger sets the orchestrator's logger.
func WithOrchestratorLogger(log *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// NewOrchestrator wires the tier components together. The matcher and
// windower are process-wide singletons, immutable once handed over.
func NewOrchestrator(m *match.Matcher, w *window.Selector, tierC *extraction.Client, store *cache.Store, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		matcher:    m,
		windower:   w,
		tierC:      tierC,
		cache:      store,
		maxRetries: DefaultMaxRetries,
		log:        slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessDocument runs Tiers A, B and C over content and returns the job in
// a terminal state: COMPLETED on success, FAILED after retry exhaustion.
// Retry exhaustion is not an error; only a failure to persist the job record
// itself surfaces as one. The orchestrator never touches the document store.
func (o *Orchestrator) ProcessDocument(ctx context.Context, docID uuid.UUID, content string) (*extraction.Job, error) {
	job := extraction.NewJob(docID)
	if err := o.persist(job); err != nil {
		return nil, err
	}
	o.log.Info("job started", "job_id", job.JobID, "doc_id", docID)

	for {
		err := o.runTiers(ctx, job, content)
		if err == nil {
			now := time.Now().UTC()
			job.CompletedAt = &now
			if err := o.transition(job, extraction.StateCompleted); err != nil {
				return nil, err
			}
			o.log.Info("job completed", "job_id", job.JobID,
				"tier_a", job.TierATriples, "tier_b", job.TierBWindows, "tier_c", job.TierCTriples)
			return job, nil
		}

		if job.RetryCount >= o.maxRetries {
			now := time.Now().UTC()
			job.Errors = &extraction.JobError{
				Message:    err.Error(),
				FailedAt:   now,
				RetryCount: job.RetryCount,
			}
			job.CompletedAt = &now
			if perr := o.transition(job, extraction.StateFailed); perr != nil {
				return nil, perr
			}
			o.log.Error("job failed: retries exhausted",
				"job_id", job.JobID, "retries", job.RetryCount, "error", err)
			return job, nil
		}

		job.RetryCount++
		o.log.Warn("attempt failed, restarting pipeline",
			"job_id", job.JobID, "retry", job.RetryCount, "error", err)
		// Partial tier progress is discarded; intermediate state writes are
		// not rolled back, the next transitions simply overwrite them.
		job.Reset()
	}
}

// runTiers executes one full attempt: Tier A, then B, then C, persisting on
// every transition.
func (o *Orchestrator) runTiers(ctx context.Context, job *extraction.Job, content string) error {
	// Tier A: deterministic parsing and pattern matching.
	blocks := textparse.CodeBlocks(content)
	tables := textparse.Tables(content)
	matches := o.matcher.FindMatches(content)
	job.TierATriples = len(matches)
	if err := o.transition(job, extraction.StateTierADone); err != nil {
		return err
	}
	o.log.Debug("tier A done", "job_id", job.JobID,
		"matches", len(matches), "code_blocks", len(blocks), "tables", len(tables))

	// Tier B: window selection.
	windows := o.windower.Select(content)
	job.TierBWindows = len(windows)
	if err := o.transition(job, extraction.StateTierBDone); err != nil {
		return err
	}

	// Tier C: batched LLM extraction over the window contents.
	contents := make([]string, len(windows))
	for i, w := range windows {
		contents[i] = w.Content
	}
	results, err := o.tierC.BatchExtract(ctx, contents)
	if err != nil {
		return err
	}
	total := 0
	for _, res := range results {
		total += len(res.Triples)
	}
	job.TierCTriples = total
	return o.transition(job, extraction.StateTierCDone)
}

// transition moves the job to next and persists the full record as one
// atomic put.
func (o *Orchestrator) transition(job *extraction.Job, next extraction.State) error {
	if !job.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, job.State, next)
	}
	job.State = next
	return o.persist(job)
}

func (o *Orchestrator) persist(job *extraction.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("taboot: encoding job %s: %w", job.JobID, err)
	}
	if err := o.cache.Set(cache.JobKey(job.JobID.String()), data); err != nil {
		return fmt.Errorf("taboot: persisting job %s: %w", job.JobID, err)
	}
	return nil
}
