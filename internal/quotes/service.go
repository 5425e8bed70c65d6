package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/observability"
	"github.com/brightnest/cleanops/internal/shared"
)

// Repository persists quotes.
type Repository interface {
	Create(ctx context.Context, quote Quote) error
	Get(ctx context.Context, id string) (*Quote, error)
	// Update and Delete apply only while the stored status is still from and
	// return ErrStale otherwise.
	Update(ctx context.Context, quote Quote, from Status) error
	Delete(ctx context.Context, id string, from Status) error
	List(ctx context.Context, filter ListFilter) ([]Quote, error)
}

// ClientLookup resolves the client a quote is addressed to.
type ClientLookup interface {
	Get(ctx context.Context, id string) (*clients.Client, error)
}

// Notifier delivers a sent quote to the client.
type Notifier interface {
	QuoteSent(ctx context.Context, quote Quote) error
}

// ServiceConfig tunes the quote workflow.
type ServiceConfig struct {
	Validity time.Duration
	Metrics  *observability.Metrics
}

// Service drives the quote state machine.
type Service struct {
	repo     Repository
	clients  ClientLookup
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	validity time.Duration
	now      func() time.Time
}

// NewService builds the quote workflow. notifier may be nil.
func NewService(repo Repository, clientLookup ClientLookup, notifier Notifier, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	validity := cfg.Validity
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Service{
		repo:     repo,
		clients:  clientLookup,
		notifier: notifier,
		logger:   logger,
		metrics:  cfg.Metrics,
		validity: validity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create drafts a quote priced at the client's rate unless overridden.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Quote, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}
	client, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	rate := client.HourlyRate
	if req.HourlyRate != nil && !req.HourlyRate.IsZero() {
		rate = shared.Round2(*req.HourlyRate)
	}
	frequency := req.Frequency
	if frequency == "" {
		frequency = shared.FrequencyOneTime
	}

	now := s.now()
	quote := Quote{
		ID:             uuid.NewString(),
		ClientID:       client.ID,
		ClientName:     client.Name,
		ClientEmail:    client.Email,
		ClientPhone:    client.Phone,
		Service:        req.Service,
		Frequency:      frequency,
		EstimatedHours: req.EstimatedHours,
		HourlyRate:     rate,
		Status:         StatusDraft,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	quote.recompute()

	if err := s.repo.Create(ctx, quote); err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}
	return &quote, nil
}

// Update edits a draft quote and recomputes its total.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Quote, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if quote.Status != StatusDraft {
		return nil, ErrNotEditable
	}

	if req.Service != nil {
		quote.Service = *req.Service
	}
	if req.Frequency != nil {
		quote.Frequency = *req.Frequency
	}
	if req.EstimatedHours != nil {
		quote.EstimatedHours = *req.EstimatedHours
	}
	if req.HourlyRate != nil {
		quote.HourlyRate = shared.Round2(*req.HourlyRate)
	}
	if req.Notes != nil {
		quote.Notes = *req.Notes
	}
	quote.recompute()
	quote.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, *quote, StatusDraft); err != nil {
		return nil, fmt.Errorf("update quote: %w", err)
	}
	return quote, nil
}

// Get returns a quote by id.
func (s *Service) Get(ctx context.Context, id string) (*Quote, error) {
	return s.repo.Get(ctx, id)
}

// List returns quotes newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quote, error) {
	return s.repo.List(ctx, filter)
}

// Send issues (or re-issues) a quote and restarts its validity window.
func (s *Service) Send(ctx context.Context, id string) (*Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(quote.Status, StatusSent); err != nil {
		return nil, err
	}

	from := quote.Status
	now := s.now()
	expires := now.Add(s.validity)
	quote.Status = StatusSent
	quote.SentAt = &now
	quote.ExpiresAt = &expires
	quote.UpdatedAt = now
	if err := s.repo.Update(ctx, *quote, from); err != nil {
		return nil, fmt.Errorf("send quote: %w", err)
	}
	s.metrics.QuoteTransitioned(string(StatusSent))

	if s.notifier != nil {
		if err := s.notifier.QuoteSent(ctx, *quote); err != nil {
			s.logger.Warn("quote notification failed", slog.String("quote_id", quote.ID), slog.Any("error", err))
		}
	}
	s.logger.Info("quote sent", slog.String("quote_id", quote.ID), slog.Time("expires_at", expires))
	return quote, nil
}

// Accept records the client's acceptance. A quote past its expiry is moved
// to expired instead and ErrQuoteExpired is returned.
func (s *Service) Accept(ctx context.Context, id string) (*Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if quote.ExpiredAt(now) {
		if err := s.expire(ctx, quote, now); err != nil {
			return nil, err
		}
		return quote, ErrQuoteExpired
	}
	if err := checkTransition(quote.Status, StatusAccepted); err != nil {
		return nil, err
	}
	quote.Status = StatusAccepted
	quote.AcceptedAt = &now
	quote.UpdatedAt = now
	if err := s.repo.Update(ctx, *quote, StatusSent); err != nil {
		return nil, fmt.Errorf("accept quote: %w", err)
	}
	s.metrics.QuoteTransitioned(string(StatusAccepted))
	return quote, nil
}

// Decline records the client's refusal.
func (s *Service) Decline(ctx context.Context, id string) (*Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(quote.Status, StatusDeclined); err != nil {
		return nil, err
	}
	now := s.now()
	quote.Status = StatusDeclined
	quote.DeclinedAt = &now
	quote.UpdatedAt = now
	if err := s.repo.Update(ctx, *quote, StatusSent); err != nil {
		return nil, fmt.Errorf("decline quote: %w", err)
	}
	s.metrics.QuoteTransitioned(string(StatusDeclined))
	return quote, nil
}

// Delete removes a quote unless it has been accepted.
func (s *Service) Delete(ctx context.Context, id string) error {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if quote.Status == StatusAccepted {
		return ErrNotDeletable
	}
	return s.repo.Delete(ctx, id, quote.Status)
}

// ExpireDue moves every sent quote whose validity ended before now to expired
// and returns how many were changed.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	sent, err := s.repo.List(ctx, ListFilter{Status: StatusSent})
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range sent {
		q := &sent[i]
		if !q.ExpiredAt(now) {
			continue
		}
		err := s.expire(ctx, q, now)
		if errors.Is(err, ErrStale) || errors.Is(err, ErrNotFound) {
			s.logger.Info("expiry sweep: quote changed, skipping", slog.String("quote_id", q.ID))
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("quotes expired", slog.Int("count", expired))
	}
	return expired, nil
}

func (s *Service) expire(ctx context.Context, quote *Quote, now time.Time) error {
	if err := checkTransition(quote.Status, StatusExpired); err != nil {
		return err
	}
	from := quote.Status
	quote.Status = StatusExpired
	quote.UpdatedAt = now
	if err := s.repo.Update(ctx, *quote, from); err != nil {
		return fmt.Errorf("expire quote %s: %w", quote.ID, err)
	}
	s.metrics.QuoteTransitioned(string(StatusExpired))
	return nil
}
