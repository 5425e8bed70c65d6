package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/invoices"
	"github.com/brightnest/cleanops/internal/observability"
	"github.com/brightnest/cleanops/internal/shared"
)

// Repository persists payment records. Records are never updated.
type Repository interface {
	Create(ctx context.Context, p Payment) error
	List(ctx context.Context, filter ListFilter) ([]Payment, error)
}

// Ledger is the slice of the invoice ledger payments depend on.
type Ledger interface {
	Get(ctx context.Context, id string) (*invoices.Invoice, error)
	Settle(ctx context.Context, id string, at time.Time, accept func(invoices.Invoice) error) (*invoices.Invoice, error)
	Reopen(ctx context.Context, prev invoices.Invoice) error
}

// LifetimeValues accumulates collected revenue per client.
type LifetimeValues interface {
	AddLifetimeValue(ctx context.Context, clientID string, amount decimal.Decimal) error
}

// Service records payments against invoices.
type Service struct {
	repo    Repository
	ledger  Ledger
	clients LifetimeValues
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService builds the payment recorder. metrics may be nil.
func NewService(repo Repository, ledger Ledger, clients LifetimeValues, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		ledger:  ledger,
		clients: clients,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record stores a payment and settles the invoice.
//
// A payment below the invoice amount needs ConfirmPartial. Once recorded the
// invoice is marked paid even when the payment was partial; Balance exposes
// what is still owed.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*Payment, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}
	amount := shared.Round2(req.Amount)
	now := s.now()
	received := now
	if req.ReceivedAt != nil && !req.ReceivedAt.IsZero() {
		received = req.ReceivedAt.UTC()
	}

	// The invoice is settled first; only the caller that wins the status
	// change gets to store a payment.
	var (
		before  invoices.Invoice
		partial bool
	)
	_, err := s.ledger.Settle(ctx, req.InvoiceID, received, func(inv invoices.Invoice) error {
		before = inv
		partial = amount.LessThan(inv.Amount)
		if partial && !req.ConfirmPartial {
			return ErrPartialNotConfirmed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	inv := before

	payment := Payment{
		ID:         uuid.NewString(),
		InvoiceID:  inv.ID,
		Amount:     amount,
		Method:     req.Method,
		Reference:  req.Reference,
		Notes:      req.Notes,
		ReceivedBy: req.ReceivedBy,
		ReceivedAt: received,
		Partial:    partial,
		CreatedAt:  now,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		if reopenErr := s.ledger.Reopen(ctx, before); reopenErr != nil {
			s.logger.Error("invoice left paid without a payment record",
				slog.String("invoice_number", inv.InvoiceNumber), slog.Any("error", reopenErr))
		}
		return nil, fmt.Errorf("record payment: %w", err)
	}
	if err := s.clients.AddLifetimeValue(ctx, inv.ClientID, amount); err != nil {
		s.logger.Warn("lifetime value not updated",
			slog.String("client_id", inv.ClientID), slog.Any("error", err))
	}

	f, _ := amount.Float64()
	s.metrics.PaymentRecorded(partial, f)
	s.logger.Info("payment recorded",
		slog.String("invoice_number", inv.InvoiceNumber),
		slog.String("amount", amount.StringFixed(2)),
		slog.Bool("partial", partial))
	return &payment, nil
}

// ListForInvoice returns payments for one invoice, oldest first.
func (s *Service) ListForInvoice(ctx context.Context, invoiceID string) ([]Payment, error) {
	if invoiceID == "" {
		return nil, ErrNoInvoice
	}
	return s.repo.List(ctx, ListFilter{InvoiceID: invoiceID})
}

// List returns payments matching the filter, oldest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Payment, error) {
	return s.repo.List(ctx, filter)
}

// Balance reports the invoice amount minus everything received against it.
func (s *Service) Balance(ctx context.Context, invoiceID string) (*Balance, error) {
	inv, err := s.ledger.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.List(ctx, ListFilter{InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	return &Balance{
		InvoiceID:     inv.ID,
		InvoiceAmount: inv.Amount,
		Paid:          paid,
		Outstanding:   inv.Amount.Sub(paid),
	}, nil
}
