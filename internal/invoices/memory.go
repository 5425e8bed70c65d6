package invoices

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/brightnest/cleanops/internal/shared"
)

// MemoryRepository keeps invoices and pending jobs in process memory.
type MemoryRepository struct {
	mu          sync.RWMutex
	invoices    map[string]Invoice
	pending     []PendingJob
	attachments map[string][]Attachment
}

// NewMemoryRepository builds an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		invoices:    make(map[string]Invoice),
		attachments: make(map[string][]Attachment),
	}
}

// WithTx runs fn against the same store; memory writes are not rolled back.
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *MemoryRepository) Create(ctx context.Context, inv Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return fmt.Errorf("invoice number %s: %w", inv.InvoiceNumber, shared.ErrDuplicate)
		}
	}
	m.invoices[inv.ID] = inv.Clone()
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := inv.Clone()
	return &out, nil
}

func (m *MemoryRepository) Update(ctx context.Context, inv Invoice, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.invoices[inv.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != from {
		return ErrStale
	}
	m.invoices[inv.ID] = inv.Clone()
	return nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(m.invoices, id)
	delete(m.attachments, id)
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		if filter.Matches(inv) {
			out = append(out, inv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssueDate.Equal(out[j].IssueDate) {
			return out[i].InvoiceNumber > out[j].InvoiceNumber
		}
		return out[i].IssueDate.After(out[j].IssueDate)
	})
	return out, nil
}

func (m *MemoryRepository) Numbers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.invoices))
	for _, inv := range m.invoices {
		out = append(out, inv.InvoiceNumber)
	}
	return out, nil
}

func (m *MemoryRepository) AddPendingJob(ctx context.Context, job PendingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, job)
	return nil
}

func (m *MemoryRepository) PendingJobs(ctx context.Context) ([]PendingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]PendingJob(nil), m.pending...), nil
}

// ClaimPendingJobs returns the queue. Callers serialise batch runs, so no
// row locking is needed in memory.
func (m *MemoryRepository) ClaimPendingJobs(ctx context.Context) ([]PendingJob, error) {
	return m.PendingJobs(ctx)
}

func (m *MemoryRepository) RemovePendingJobs(ctx context.Context, ids []string) (int, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.pending[:0]
	removed := 0
	for _, job := range m.pending {
		if _, ok := drop[job.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, job)
	}
	m.pending = kept
	return removed, nil
}

func (m *MemoryRepository) AddAttachment(ctx context.Context, att Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[att.InvoiceID]; !ok {
		return ErrNotFound
	}
	m.attachments[att.InvoiceID] = append(m.attachments[att.InvoiceID], att)
	return nil
}

func (m *MemoryRepository) Attachments(ctx context.Context, invoiceID string) ([]Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Attachment{}, m.attachments[invoiceID]...), nil
}
