package cache

import (
	"context"
	"sync"

	"github.com/johnquangdev/clinical-scribe/internal/domain/entities"
)

// MemoryIndex is an in-process suggestion index. It is used in development
// and tests and loses everything on restart.
type MemoryIndex struct {
	mu       sync.RWMutex
	docs     map[string]entities.SuggestionDocument
	postings map[string]map[string]struct{}
}

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		docs:     make(map[string]entities.SuggestionDocument),
		postings: make(map[string]map[string]struct{}),
	}
}

// Upsert stores doc under sessionID, replacing any previous version
func (m *MemoryIndex) Upsert(_ context.Context, sessionID string, doc entities.SuggestionDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.docs[sessionID]; ok {
		for _, term := range old.Terms {
			delete(m.postings[term], sessionID)
		}
	}

	m.docs[sessionID] = doc
	for _, term := range doc.Terms {
		ids, ok := m.postings[term]
		if !ok {
			ids = make(map[string]struct{})
			m.postings[term] = ids
		}
		ids[sessionID] = struct{}{}
	}
	return nil
}

// Query returns the metadata of up to k documents sharing the most terms
// with text
func (m *MemoryIndex) Query(_ context.Context, text string, k int) ([]entities.SuggestionMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make(map[string]int)
	for _, term := range entities.SuggestionTerms(text) {
		for id := range m.postings[term] {
			hits[id]++
		}
	}

	ids := rankHits(hits, k)
	out := make([]entities.SuggestionMetadata, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.docs[id].Metadata)
	}
	return out, nil
}

// Len returns the number of indexed documents
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}
