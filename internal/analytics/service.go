package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/brightnest/cleanops/internal/invoices"
	"github.com/brightnest/cleanops/internal/payments"
	"github.com/brightnest/cleanops/internal/shared"
	"github.com/brightnest/cleanops/internal/timeparse"
)

// InvoiceLister reads the invoice ledger.
type InvoiceLister interface {
	List(ctx context.Context, filter invoices.ListFilter) ([]invoices.Invoice, error)
}

// PaymentLister reads recorded payments.
type PaymentLister interface {
	List(ctx context.Context, filter payments.ListFilter) ([]payments.Payment, error)
}

// StatusTotal aggregates invoices sharing a status.
type StatusTotal struct {
	Status invoices.Status `json:"status"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary is the revenue overview of the ledger on a given day.
type Summary struct {
	AsOf               time.Time       `json:"as_of"`
	ByStatus           []StatusTotal   `json:"by_status"`
	Outstanding        decimal.Decimal `json:"outstanding"`
	OutstandingCount   int             `json:"outstanding_count"`
	CollectedThisMonth decimal.Decimal `json:"collected_this_month"`
	PaymentsThisMonth  int             `json:"payments_this_month"`
	InvoiceCount       int             `json:"invoice_count"`
}

var statusOrder = []invoices.Status{
	invoices.StatusDraft, invoices.StatusPending, invoices.StatusOverdue, invoices.StatusPaid,
}

// Service computes cached ledger summaries.
type Service struct {
	invoices InvoiceLister
	payments PaymentLister
	cache    *Cache
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService wires the ledger readers with a Cache helper. cache may be nil.
func NewService(inv InvoiceLister, pay PaymentLister, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: inv, payments: pay, cache: cache, logger: logger}
}

// Summary returns the ledger summary for the day of asOf.
func (s *Service) Summary(ctx context.Context, asOf time.Time) (*Summary, error) {
	day := timeparse.Day(asOf)
	key := s.cache.BuildKey(ctx, "cleanops", "analytics", "summary", day.Format(time.DateOnly))
	result, err, collapsed := s.group.Do(key, func() (any, error) {
		var out Summary
		if err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.compute(ctx, day)
		}); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	if collapsed {
		s.logger.Debug("analytics summary shared", slog.String("key", key))
	}
	summary := *result.(*Summary)
	return &summary, nil
}

func (s *Service) compute(ctx context.Context, day time.Time) (*Summary, error) {
	ledger, err := s.invoices.List(ctx, invoices.ListFilter{})
	if err != nil {
		return nil, err
	}
	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	received, err := s.payments.List(ctx, payments.ListFilter{From: monthStart, To: monthStart.AddDate(0, 1, 0)})
	if err != nil {
		return nil, err
	}

	totals := make(map[invoices.Status]*StatusTotal, len(statusOrder))
	for _, st := range statusOrder {
		totals[st] = &StatusTotal{Status: st, Amount: decimal.Zero}
	}
	out := &Summary{AsOf: day, Outstanding: decimal.Zero, CollectedThisMonth: decimal.Zero, InvoiceCount: len(ledger)}
	for _, inv := range ledger {
		t, ok := totals[inv.Status]
		if !ok {
			continue
		}
		t.Count++
		t.Amount = t.Amount.Add(inv.Amount)
		if inv.Outstanding() {
			out.OutstandingCount++
			out.Outstanding = out.Outstanding.Add(inv.Amount)
		}
	}
	for _, st := range statusOrder {
		t := totals[st]
		t.Amount = shared.Round2(t.Amount)
		out.ByStatus = append(out.ByStatus, *t)
	}
	for _, p := range received {
		out.CollectedThisMonth = out.CollectedThisMonth.Add(p.Amount)
	}
	out.PaymentsThisMonth = len(received)
	out.Outstanding = shared.Round2(out.Outstanding)
	out.CollectedThisMonth = shared.Round2(out.CollectedThisMonth)
	return out, nil
}
