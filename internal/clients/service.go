package clients

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/shared"
)

// Repository persists client records.
type Repository interface {
	Create(ctx context.Context, client Client) error
	Get(ctx context.Context, id string) (*Client, error)
	Update(ctx context.Context, client Client) error
	List(ctx context.Context, filter ListFilter) ([]Client, error)
	AddLifetimeValue(ctx context.Context, id string, amount decimal.Decimal) error
}

// ServiceConfig tunes registry defaults.
type ServiceConfig struct {
	DefaultHourlyRate decimal.Decimal
}

// Service is the client registry.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	defaultRate decimal.Decimal
	now         func() time.Time
}

// NewService builds the registry.
func NewService(repo Repository, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	rate := cfg.DefaultHourlyRate
	if !rate.IsPositive() {
		rate = DefaultHourlyRate
	}
	return &Service{
		repo:        repo,
		logger:      logger,
		defaultRate: rate,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and registers a client.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Client, error) {
	req.normalize()
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	rate, err := s.resolveRate(req.HourlyRate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	client := Client{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Email:              req.Email,
		Phone:              req.Phone,
		Address:            req.Address,
		ContactPreference:  req.ContactPreference,
		HourlyRate:         rate,
		InvoicePreferences: preferencesFromInput(req.InvoicePreferences),
		Tags:               MergeTags(nil, req.Tags...),
		LifetimeValue:      decimal.Zero,
		Status:             req.Status,
		Notes:              req.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if client.ContactPreference == "" {
		client.ContactPreference = ContactEmail
	}
	if client.Status == "" {
		client.Status = StatusActive
	}

	if err := s.repo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	s.logger.Info("client registered", slog.String("client_id", client.ID), slog.String("billing", string(client.InvoicePreferences.BillingFrequency)))
	return &client, nil
}

// Update applies a patch to an existing client.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Client, error) {
	req.normalize()
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	client, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		client.Name = *req.Name
	}
	if req.Email != nil {
		client.Email = *req.Email
	}
	if req.Phone != nil {
		client.Phone = *req.Phone
	}
	if req.Address != nil {
		client.Address = *req.Address
	}
	if req.ContactPreference != nil {
		client.ContactPreference = *req.ContactPreference
	}
	if req.HourlyRate != nil {
		rate, err := s.resolveRate(req.HourlyRate)
		if err != nil {
			return nil, err
		}
		client.HourlyRate = rate
	}
	if req.InvoicePreferences != nil {
		client.InvoicePreferences = preferencesFromInput(*req.InvoicePreferences)
	}
	if req.Status != nil {
		client.Status = *req.Status
	}
	if req.Notes != nil {
		client.Notes = *req.Notes
	}
	client.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, *client); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	return client, nil
}

// Get returns a client by id.
func (s *Service) Get(ctx context.Context, id string) (*Client, error) {
	return s.repo.Get(ctx, id)
}

// List returns clients visible under the filter, ordered by name.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Client, error) {
	return s.repo.List(ctx, filter)
}

// Archive marks a client inactive. Clients are never hard deleted so invoice
// history keeps resolving.
func (s *Service) Archive(ctx context.Context, id string) (*Client, error) {
	status := StatusInactive
	return s.Update(ctx, id, UpdateRequest{Status: &status})
}

// AddTags merges tags into the client's tag set.
func (s *Service) AddTags(ctx context.Context, id string, req TagsRequest) (*Client, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	client, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	client.Tags = MergeTags(client.Tags, req.Tags...)
	client.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, *client); err != nil {
		return nil, fmt.Errorf("add tags: %w", err)
	}
	return client, nil
}

// RemoveTag drops a tag; removing an absent tag is a no-op.
func (s *Service) RemoveTag(ctx context.Context, id, tag string) (*Client, error) {
	client, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	client.Tags = WithoutTag(client.Tags, tag)
	client.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, *client); err != nil {
		return nil, fmt.Errorf("remove tag: %w", err)
	}
	return client, nil
}

// AddLifetimeValue accumulates collected revenue on the client.
func (s *Service) AddLifetimeValue(ctx context.Context, id string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.FieldError("amount", "must be >= 0")
	}
	return s.repo.AddLifetimeValue(ctx, id, shared.Round2(amount))
}

func (s *Service) resolveRate(rate *decimal.Decimal) (decimal.Decimal, error) {
	if rate == nil || rate.IsZero() {
		return s.defaultRate, nil
	}
	if rate.IsNegative() {
		return decimal.Zero, shared.FieldError("hourly_rate", "must be >= 0")
	}
	return shared.Round2(*rate), nil
}

func preferencesFromInput(in InvoicePreferencesInput) InvoicePreferences {
	prefs := InvoicePreferences{
		BillingFrequency: in.BillingFrequency,
		AutoSend:         in.AutoSend,
		SendChannels:     append([]Channel(nil), in.SendChannels...),
		NetDays:          in.NetDays,
	}
	if prefs.BillingFrequency == "" {
		prefs.BillingFrequency = BillingPerJob
	}
	if prefs.SendChannels == nil {
		prefs.SendChannels = []Channel{}
	}
	return prefs
}
