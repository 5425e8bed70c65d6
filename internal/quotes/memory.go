package quotes

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps quotes in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewMemoryRepository builds an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{quotes: make(map[string]Quote)}
}

func (m *MemoryRepository) Create(ctx context.Context, q Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[q.ID] = q
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (*Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (m *MemoryRepository) Update(ctx context.Context, q Quote, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(q.ID, from); err != nil {
		return err
	}
	m.quotes[q.ID] = q
	return nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id string, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(id, from); err != nil {
		return err
	}
	delete(m.quotes, id)
	return nil
}

func (m *MemoryRepository) check(id string, from Status) error {
	stored, ok := m.quotes[id]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != from {
		return ErrStale
	}
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Quote, 0, len(m.quotes))
	for _, q := range m.quotes {
		if filter.Matches(q) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
