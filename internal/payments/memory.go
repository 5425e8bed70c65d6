package payments

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps payments in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	payments []Payment
}

// NewMemoryRepository builds an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Create(ctx context.Context, p Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, p)
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Payment, 0, len(m.payments))
	for _, p := range m.payments {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}
