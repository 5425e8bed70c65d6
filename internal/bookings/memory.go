package bookings

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps bookings in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	bookings map[string]Booking
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bookings: make(map[string]Booking)}
}

func (m *MemoryRepository) Create(ctx context.Context, b Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryRepository) Update(ctx context.Context, b Booking, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != from {
		return ErrStale
	}
	m.bookings[b.ID] = b
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		if filter.Matches(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}
