package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jmagar/taboot/extraction"
)

// SQLiteStore is the relational Store used by the daemon.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the document database at dbPath and runs
// pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("docstore: creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("docstore: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore: pinging database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore: running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) QueryPending(ctx context.Context, limit int) ([]Document, error) {
	query := `
		SELECT doc_id, source_url, source_type, content_hash, content,
		       ingested_at, extraction_state, updated_at
		FROM documents
		WHERE extraction_state = ?
		ORDER BY ingested_at ASC`
	args := []any{string(extraction.StatePending)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: querying pending: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetDocument(ctx context.Context, docID uuid.UUID) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, source_url, source_type, content_hash, content,
		       ingested_at, extraction_state, updated_at
		FROM documents WHERE doc_id = ?`, docID.String())
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLiteStore) GetContent(ctx context.Context, docID uuid.UUID) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM documents WHERE doc_id = ?", docID.String()).Scan(&content)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("docstore: reading content: %w", err)
	}
	return content, nil
}

func (s *SQLiteStore) UpdateDocument(ctx context.Context, doc Document) error {
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id, source_url, source_type, content_hash,
		                       content, ingested_at, extraction_state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(doc_id) DO UPDATE SET
			source_url = excluded.source_url,
			source_type = excluded.source_type,
			content_hash = excluded.content_hash,
			content = excluded.content,
			extraction_state = excluded.extraction_state,
			updated_at = CURRENT_TIMESTAMP`,
		doc.DocID.String(), doc.SourceURL, string(doc.SourceType), doc.ContentHash,
		doc.Content, doc.IngestedAt.UTC().Format(time.RFC3339), string(doc.ExtractionState))
	if err != nil {
		return fmt.Errorf("docstore: upserting document %s: %w", doc.DocID, err)
	}
	return nil
}

// FindByContentHash returns the document with the given content hash, or
// ErrNotFound. Backs re-ingestion dedup.
func (s *SQLiteStore) FindByContentHash(ctx context.Context, hash string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, source_url, source_type, content_hash, content,
		       ingested_at, extraction_state, updated_at
		FROM documents WHERE content_hash = ?`, hash)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc              Document
		id, srcType      string
		ingested, updated string
		state            string
	)
	if err := row.Scan(&id, &doc.SourceURL, &srcType, &doc.ContentHash,
		&doc.Content, &ingested, &state, &updated); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("docstore: malformed doc_id %q: %w", id, err)
	}
	doc.DocID = parsed
	doc.SourceType = SourceType(srcType)
	doc.ExtractionState = extraction.State(state)
	doc.IngestedAt = parseDBTime(ingested)
	doc.UpdatedAt = parseDBTime(updated)
	return &doc, nil
}

// parseDBTime accepts both RFC 3339 (our writes) and SQLite's
// CURRENT_TIMESTAMP format.
func parseDBTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
