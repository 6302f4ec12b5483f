// Package taboot is a knowledge-extraction platform core: a three-tier
// pipeline (deterministic parsing, window selection, LLM triple extraction)
// over documents, with durable job state in an embedded cache, a background
// worker with retry and dead-lettering, and batched idempotent writes of
// typed entities into a property graph.
package taboot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jmagar/taboot/cache"
	"github.com/jmagar/taboot/docstore"
	"github.com/jmagar/taboot/extraction"
	"github.com/jmagar/taboot/graph"
	"github.com/jmagar/taboot/llm"
	"github.com/jmagar/taboot/match"
	"github.com/jmagar/taboot/window"
)

// Pipeline is the composition root: every long-lived component is built once
// here and shared immutably. One Pipeline per process.
type Pipeline struct {
	cfg      Config
	cache    *cache.Store
	docs     docstore.Store
	provider llm.Provider
	tierC    *extraction.Client
	matcher  *match.Matcher
	windower *window.Selector
	orch     *Orchestrator
	graph    graph.Store
	writer   *graph.Writer
	keys     *cache.APIKeyStore
	log      *slog.Logger
}

// Option overrides a Pipeline collaborator, mainly for tests.
type Option func(*Pipeline)

// WithDocStore substitutes the document store.
func WithDocStore(s docstore.Store) Option {
	return func(p *Pipeline) { p.docs = s }
}

// WithGraphStore substitutes the graph store.
func WithGraphStore(s graph.Store) Option {
	return func(p *Pipeline) { p.graph = s }
}

// WithProvider substitutes the Tier-C LLM provider.
func WithProvider(prov llm.Provider) Option {
	return func(p *Pipeline) { p.provider = prov }
}

// New builds a Pipeline from configuration.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, log: slog.Default().With("component", "pipeline")}
	for _, opt := range opts {
		opt(p)
	}

	var err error
	if cfg.CachePath == "" {
		p.cache, err = cache.NewInMemory()
	} else {
		p.cache, err = cache.New(cfg.CachePath)
	}
	if err != nil {
		return nil, err
	}

	if p.docs == nil {
		if cfg.DocStorePath == "" {
			p.docs = docstore.NewMemoryStore()
		} else {
			p.docs, err = docstore.NewSQLiteStore(cfg.DocStorePath)
			if err != nil {
				p.cache.Close()
				return nil, err
			}
		}
	}

	if p.provider == nil {
		p.provider, err = llm.NewProvider(cfg.LLM)
		if err != nil {
			p.close()
			return nil, fmt.Errorf("taboot: creating llm provider: %w", err)
		}
	}

	if p.graph == nil && cfg.Graph.URI != "" {
		p.graph, err = graph.NewNeo4jStore(cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			p.close()
			return nil, err
		}
	}
	if p.graph != nil {
		p.writer = graph.NewWriter(p.graph, graph.WithWriteBatchSize(cfg.WriteBatchSize))
	}

	p.matcher = match.New()
	for entityType, patterns := range cfg.Patterns {
		p.matcher.AddPatterns(entityType, patterns)
	}
	p.windower = window.New(cfg.MaxWindowTokens)

	p.tierC = extraction.NewClient(p.provider, p.cache,
		extraction.WithBatchSize(cfg.TierCBatchSize),
		extraction.WithResultTTL(cfg.ResultTTL()))

	p.orch = NewOrchestrator(p.matcher, p.windower, p.tierC, p.cache,
		WithMaxRetries(cfg.MaxRetries))

	p.keys = cache.NewAPIKeyStore(p.cache)
	return p, nil
}

// ProcessDocument runs one document through the tiers. See
// Orchestrator.ProcessDocument.
func (p *Pipeline) ProcessDocument(ctx context.Context, docID uuid.UUID, content string) (*extraction.Job, error) {
	return p.orch.ProcessDocument(ctx, docID, content)
}

// BatchResult summarises one ProcessPending run.
type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ProcessPending extracts every PENDING document (up to limit when > 0) and
// writes each terminal state back to the document store. Per-document
// failures are counted, not propagated, so one poisoned document cannot
// starve the batch.
func (p *Pipeline) ProcessPending(ctx context.Context, limit int) (BatchResult, error) {
	var res BatchResult
	pending, err := p.docs.QueryPending(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("taboot: querying pending documents: %w", err)
	}

	for _, doc := range pending {
		res.Processed++
		job, err := p.orch.ProcessDocument(ctx, doc.DocID, doc.Content)
		if err != nil {
			p.log.Error("document processing errored", "doc_id", doc.DocID, "error", err)
			res.Failed++
			continue
		}
		doc.ExtractionState = job.State
		if err := p.docs.UpdateDocument(ctx, doc); err != nil {
			p.log.Error("persisting terminal document state failed",
				"doc_id", doc.DocID, "state", job.State, "error", err)
			res.Failed++
			continue
		}
		if job.State == extraction.StateCompleted {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

// Cache returns the process-wide KV store.
func (p *Pipeline) Cache() *cache.Store { return p.cache }

// Docs returns the document store.
func (p *Pipeline) Docs() docstore.Store { return p.docs }

// Writer returns the batched graph writer, or nil when no graph store is
// configured.
func (p *Pipeline) Writer() *graph.Writer { return p.writer }

// APIKeys returns the API key store backing request authentication.
func (p *Pipeline) APIKeys() *cache.APIKeyStore { return p.keys }

// Orchestrator returns the per-document state machine.
func (p *Pipeline) Orchestrator() *Orchestrator { return p.orch }

// Health reports per-collaborator reachability.
func (p *Pipeline) Health(ctx context.Context) map[string]string {
	out := map[string]string{"cache": "ok", "docstore": "ok", "graph": "unconfigured", "llm": p.cfg.LLM.Provider}
	if err := p.cache.Ping(); err != nil {
		out["cache"] = err.Error()
	}
	if _, err := p.docs.QueryPending(ctx, 1); err != nil {
		out["docstore"] = err.Error()
	}
	if p.graph != nil {
		out["graph"] = "ok"
		if err := p.graph.Ping(ctx); err != nil {
			out["graph"] = err.Error()
		}
	}
	return out
}

// Close shuts the pipeline down. Safe to call once.
func (p *Pipeline) Close() error {
	return p.close()
}

func (p *Pipeline) close() error {
	var firstErr error
	if p.graph != nil {
		if err := p.graph.Close(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.docs != nil {
		if err := p.docs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.cache != nil {
		if err := p.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
