package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmagar/taboot/extraction"
)

// MemoryStore is an in-memory Store for tests and one-shot CLI runs.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[uuid.UUID]Document)}
}

func (m *MemoryStore) QueryPending(ctx context.Context, limit int) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Document
	for _, doc := range m.docs {
		if doc.ExtractionState == extraction.StatePending {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestedAt.Before(out[j].IngestedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetDocument(ctx context.Context, docID uuid.UUID) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (m *MemoryStore) GetContent(ctx context.Context, docID uuid.UUID) (string, error) {
	doc, err := m.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

func (m *MemoryStore) FindByContentHash(ctx context.Context, hash string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, doc := range m.docs {
		if doc.ContentHash == hash {
			return &doc, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateDocument(ctx context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc.UpdatedAt = time.Now().UTC()
	m.docs[doc.DocID] = doc
	return nil
}

func (m *MemoryStore) Close() error { return nil }
