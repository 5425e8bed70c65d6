package clients

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryRepository keeps clients in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewMemoryRepository builds an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{clients: make(map[string]Client)}
}

func (m *MemoryRepository) Create(ctx context.Context, client Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.ID] = client.Clone()
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := c.Clone()
	return &out, nil
}

func (m *MemoryRepository) Update(ctx context.Context, client Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; !ok {
		return ErrNotFound
	}
	m.clients[client.ID] = client.Clone()
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		if filter.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni == nj {
			return out[i].ID < out[j].ID
		}
		return ni < nj
	})
	return out, nil
}

func (m *MemoryRepository) AddLifetimeValue(ctx context.Context, id string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return ErrNotFound
	}
	c.LifetimeValue = c.LifetimeValue.Add(amount)
	m.clients[id] = c
	return nil
}
