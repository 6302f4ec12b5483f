// Package docstore persists documents awaiting and finishing extraction.
// Two implementations: an in-memory store for tests and CLIs, and a SQLite
// store for the daemon.
package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jmagar/taboot/extraction"
)

// ErrNotFound is returned when no document exists under the requested id.
var ErrNotFound = errors.New("docstore: document not found")

// SourceType classifies where a document came from.
type SourceType string

const (
	SourceWeb     SourceType = "web"
	SourceFile    SourceType = "file"
	SourceAPI     SourceType = "api"
	SourceMail    SourceType = "mail"
	SourceCompose SourceType = "compose"
)

// Document is one unit of extractable content. ExtractionState shares the
// job state enum; readers create documents PENDING, and only the use-case
// layer moves them to a terminal state. Documents are never destroyed.
type Document struct {
	DocID           uuid.UUID        `json:"doc_id"`
	SourceURL       string           `json:"source_url"`
	SourceType      SourceType       `json:"source_type"`
	ContentHash     string           `json:"content_hash"`
	Content         string           `json:"content"`
	IngestedAt      time.Time        `json:"ingested_at"`
	ExtractionState extraction.State `json:"extraction_state"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Store is the document persistence contract consumed by the core.
type Store interface {
	// QueryPending returns documents whose extraction state is PENDING,
	// oldest first, capped at limit when limit > 0.
	QueryPending(ctx context.Context, limit int) ([]Document, error)
	// GetDocument returns the document with the given id, or ErrNotFound.
	GetDocument(ctx context.Context, docID uuid.UUID) (*Document, error)
	// GetContent returns the content of the document with the given id, or
	// ErrNotFound.
	GetContent(ctx context.Context, docID uuid.UUID) (string, error)
	// FindByContentHash returns the document with the given sha-256 content
	// hash, or ErrNotFound. Backs re-ingestion dedup.
	FindByContentHash(ctx context.Context, hash string) (*Document, error)
	// UpdateDocument upserts by doc_id.
	UpdateDocument(ctx context.Context, doc Document) error
	Close() error
}
