package quotes

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/shared"
)

// Status is the lifecycle state of a quote.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
)

// DefaultValidity is how long a sent quote stays open.
const DefaultValidity = 14 * 24 * time.Hour

var (
	ErrNotFound     = fmt.Errorf("quote %w", shared.ErrNotFound)
	ErrNotEditable  = fmt.Errorf("%w: only draft quotes can be edited", shared.ErrInvalidTransition)
	ErrNotDeletable = fmt.Errorf("%w: accepted quotes cannot be deleted", shared.ErrInvalidTransition)
	ErrQuoteExpired = fmt.Errorf("%w: quote has expired", shared.ErrInvalidTransition)
	ErrStale        = fmt.Errorf("quote %w", shared.ErrStaleStatus)
)

var transitions = map[Status][]Status{
	StatusDraft: {StatusSent},
	StatusSent:  {StatusSent, StatusAccepted, StatusDeclined, StatusExpired},
}

// CanTransition reports whether from -> to is a legal quote transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: quote %s -> %s", shared.ErrInvalidTransition, from, to)
}

// Quote is a price estimate offered to a client.
type Quote struct {
	ID             string           `json:"id"`
	ClientID       string           `json:"client_id"`
	ClientName     string           `json:"client_name"`
	ClientEmail    string           `json:"client_email"`
	ClientPhone    string           `json:"client_phone"`
	Service        string           `json:"service"`
	Frequency      shared.Frequency `json:"frequency"`
	EstimatedHours decimal.Decimal  `json:"estimated_hours"`
	HourlyRate     decimal.Decimal  `json:"hourly_rate"`
	TotalEstimate  decimal.Decimal  `json:"total_estimate"`
	Status         Status           `json:"status"`
	Notes          string           `json:"notes,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	SentAt         *time.Time       `json:"sent_at,omitempty"`
	AcceptedAt     *time.Time       `json:"accepted_at,omitempty"`
	DeclinedAt     *time.Time       `json:"declined_at,omitempty"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
}

func (q *Quote) recompute() {
	q.TotalEstimate = shared.LineAmount(q.EstimatedHours, q.HourlyRate)
}

// ExpiredAt reports whether a sent quote's validity ran out before now.
func (q Quote) ExpiredAt(now time.Time) bool {
	return q.Status == StatusSent && q.ExpiresAt != nil && q.ExpiresAt.Before(now)
}

// ListFilter narrows quote listings.
type ListFilter struct {
	Status   Status
	ClientID string
	Search   string
}

// Matches reports whether q is visible under the filter.
func (f ListFilter) Matches(q Quote) bool {
	if f.Status != "" && q.Status != f.Status {
		return false
	}
	if f.ClientID != "" && q.ClientID != f.ClientID {
		return false
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		if !strings.Contains(strings.ToLower(q.ClientName+" "+q.Service), s) {
			return false
		}
	}
	return true
}
