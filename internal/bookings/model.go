package bookings

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/invoices"
	"github.com/brightnest/cleanops/internal/shared"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	ErrNotFound         = fmt.Errorf("booking %w", shared.ErrNotFound)
	ErrQuoteNotAccepted = fmt.Errorf("%w: only accepted quotes can be booked", shared.ErrInvalidTransition)
	ErrStale            = fmt.Errorf("booking %w", shared.ErrStaleStatus)
)

func checkTransition(from, to Status) error {
	if from == StatusScheduled && (to == StatusCompleted || to == StatusCancelled) {
		return nil
	}
	return fmt.Errorf("%w: booking %s -> %s", shared.ErrInvalidTransition, from, to)
}

// Booking is a scheduled cleaning job.
type Booking struct {
	ID          string           `json:"id"`
	ClientID    string           `json:"client_id"`
	QuoteID     string           `json:"quote_id,omitempty"`
	Service     string           `json:"service"`
	Date        time.Time        `json:"date"`
	Duration    string           `json:"duration"`
	Hours       decimal.Decimal  `json:"hours"`
	Frequency   shared.Frequency `json:"frequency"`
	Status      Status           `json:"status"`
	Notes       string           `json:"notes,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Completion is the billing outcome of completing a booking. Exactly one of
// Invoice and PendingJob is set.
type Completion struct {
	Booking    Booking              `json:"booking"`
	Invoice    *invoices.Invoice    `json:"invoice,omitempty"`
	PendingJob *invoices.PendingJob `json:"pending_job,omitempty"`
}

// ListFilter narrows booking listings.
type ListFilter struct {
	Status   Status
	ClientID string
	From, To time.Time
	Search   string
}

// Matches reports whether b is visible under the filter.
func (f ListFilter) Matches(b Booking) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.ClientID != "" && b.ClientID != f.ClientID {
		return false
	}
	if !f.From.IsZero() && b.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && b.Date.After(f.To) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" && !strings.Contains(strings.ToLower(b.Service), q) {
		return false
	}
	return true
}

// CreateRequest schedules a booking.
type CreateRequest struct {
	ClientID  string           `json:"client_id" validate:"required"`
	Service   string           `json:"service" validate:"required,max=200"`
	Date      string           `json:"date" validate:"required"`
	Duration  string           `json:"duration" validate:"required,max=50"`
	Frequency shared.Frequency `json:"frequency" validate:"omitempty,oneof=one-time weekly biweekly monthly"`
	Notes     string           `json:"notes"`
}

func (r *CreateRequest) normalize() {
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.Service = strings.TrimSpace(r.Service)
	r.Date = strings.TrimSpace(r.Date)
	r.Duration = strings.TrimSpace(r.Duration)
}

// FromQuoteRequest books an accepted quote.
type FromQuoteRequest struct {
	Date  string `json:"date" validate:"required"`
	Notes string `json:"notes"`
}
