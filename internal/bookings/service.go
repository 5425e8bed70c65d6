package bookings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/invoices"
	"github.com/brightnest/cleanops/internal/quotes"
	"github.com/brightnest/cleanops/internal/shared"
	"github.com/brightnest/cleanops/internal/timeparse"
)

// Repository persists bookings.
type Repository interface {
	Create(ctx context.Context, b Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	// Update stores b only while the stored status is still from and returns
	// ErrStale otherwise.
	Update(ctx context.Context, b Booking, from Status) error
	List(ctx context.Context, filter ListFilter) ([]Booking, error)
}

// ClientLookup resolves booking clients.
type ClientLookup interface {
	Get(ctx context.Context, id string) (*clients.Client, error)
}

// QuoteLookup resolves quotes for booking.
type QuoteLookup interface {
	Get(ctx context.Context, id string) (*quotes.Quote, error)
}

// Billing is the part of the invoice ledger completion feeds.
type Billing interface {
	CreateForJob(ctx context.Context, job invoices.JobInvoice) (*invoices.Invoice, error)
	QueueJob(ctx context.Context, job invoices.PendingJob) (*invoices.PendingJob, error)
	PendingJobs(ctx context.Context) ([]invoices.PendingJob, error)
}

// Service manages bookings.
type Service struct {
	repo    Repository
	clients ClientLookup
	quotes  QuoteLookup
	billing Billing
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds the booking service.
func NewService(repo Repository, clientLookup ClientLookup, quoteLookup QuoteLookup, billing Billing, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		clients: clientLookup,
		quotes:  quoteLookup,
		billing: billing,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create schedules a booking for an existing client.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	req.normalize()
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	date, err := timeparse.ParseDate(req.Date)
	if err != nil {
		return nil, shared.FieldError("date", err.Error())
	}
	hours, err := timeparse.ParseHours(req.Duration)
	if err != nil {
		return nil, shared.FieldError("duration", err.Error())
	}
	client, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	frequency := req.Frequency
	if frequency == "" {
		frequency = shared.FrequencyOneTime
	}
	now := s.now()
	booking := Booking{
		ID:        uuid.NewString(),
		ClientID:  client.ID,
		Service:   req.Service,
		Date:      date,
		Duration:  req.Duration,
		Hours:     hours,
		Frequency: frequency,
		Status:    StatusScheduled,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return &booking, nil
}

// CreateFromQuote books the work described by an accepted quote.
func (s *Service) CreateFromQuote(ctx context.Context, quoteID string, req FromQuoteRequest) (*Booking, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	quote, err := s.quotes.Get(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status != quotes.StatusAccepted {
		return nil, ErrQuoteNotAccepted
	}
	booking, err := s.Create(ctx, CreateRequest{
		ClientID:  quote.ClientID,
		Service:   quote.Service,
		Date:      req.Date,
		Duration:  quote.EstimatedHours.String() + "h",
		Frequency: quote.Frequency,
		Notes:     req.Notes,
	})
	if err != nil {
		return nil, err
	}
	booking.QuoteID = quote.ID
	if err := s.repo.Update(ctx, *booking, StatusScheduled); err != nil {
		return nil, fmt.Errorf("link booking to quote: %w", err)
	}
	return booking, nil
}

// Get returns a booking by id.
func (s *Service) Get(ctx context.Context, id string) (*Booking, error) {
	return s.repo.Get(ctx, id)
}

// List returns bookings ordered by date.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Booking, error) {
	return s.repo.List(ctx, filter)
}

// Cancel calls off a scheduled booking.
func (s *Service) Cancel(ctx context.Context, id string) (*Booking, error) {
	booking, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(booking.Status, StatusCancelled); err != nil {
		return nil, err
	}
	from := booking.Status
	booking.Status = StatusCancelled
	booking.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, *booking, from); err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	return booking, nil
}

// Complete marks the job done and bills it according to the client's billing
// frequency: per-job clients get a pending invoice straight away, weekly and
// monthly clients get the job queued for the next batch.
//
// The booking is claimed as completed before billing so concurrent calls bill
// once. If billing fails the booking goes back to scheduled and can be
// completed again.
func (s *Service) Complete(ctx context.Context, id string) (*Completion, error) {
	booking, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(booking.Status, StatusCompleted); err != nil {
		return nil, err
	}
	client, err := s.clients.Get(ctx, booking.ClientID)
	if err != nil {
		return nil, err
	}

	scheduled := *booking
	now := s.now()
	booking.Status = StatusCompleted
	booking.CompletedAt = &now
	booking.UpdatedAt = now
	if err := s.repo.Update(ctx, *booking, StatusScheduled); err != nil {
		return nil, fmt.Errorf("complete booking: %w", err)
	}

	result := &Completion{Booking: *booking}
	billing := client.InvoicePreferences.BillingFrequency
	if err := s.bill(ctx, client, booking, result); err != nil {
		if revertErr := s.repo.Update(ctx, scheduled, StatusCompleted); revertErr != nil {
			s.logger.Error("completed booking left unbilled",
				slog.String("booking_id", booking.ID), slog.Any("error", revertErr))
		}
		return nil, fmt.Errorf("bill booking %s: %w", booking.ID, err)
	}
	s.logger.Info("booking completed",
		slog.String("booking_id", booking.ID), slog.String("billing", string(billing)))
	return result, nil
}

func (s *Service) bill(ctx context.Context, client *clients.Client, booking *Booking, result *Completion) error {
	billing := client.InvoicePreferences.BillingFrequency
	if billing.Batched() {
		job, err := s.billing.QueueJob(ctx, invoices.PendingJob{
			ClientID:  client.ID,
			BookingID: booking.ID,
			Service:   booking.Service,
			Duration:  booking.Duration,
			Date:      booking.Date,
			Frequency: billing,
		})
		if err != nil {
			return err
		}
		result.PendingJob = job
		return nil
	}
	inv, err := s.billing.CreateForJob(ctx, invoices.JobInvoice{
		ClientID:  client.ID,
		BookingID: booking.ID,
		Service:   booking.Service,
		Hours:     booking.Hours,
		Date:      booking.Date,
	})
	if err != nil {
		return err
	}
	result.Invoice = inv
	return nil
}

// Pending lists completed jobs waiting for batch invoicing.
func (s *Service) Pending(ctx context.Context) ([]invoices.PendingJob, error) {
	return s.billing.PendingJobs(ctx)
}
