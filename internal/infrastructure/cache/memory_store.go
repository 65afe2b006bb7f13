package cache

import (
	"context"
	"sync"

	"ArticleHarvester/internal/domain"
	"ArticleHarvester/internal/ports"
)

// MemoryStore is a process-local dedup store used when Redis is not
// configured. Entries live for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[string]domain.Article
}

var _ ports.DedupStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{articles: map[string]domain.Article{}}
}

func (m *MemoryStore) Exists(_ context.Context, normalizedTitle string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.articles[normalizedTitle]
	return ok, nil
}

func (m *MemoryStore) RecordBatch(_ context.Context, articles []domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range articles {
		m.articles[a.DedupKey()] = a
	}
	return nil
}

// Len returns the number of recorded titles.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.articles)
}
