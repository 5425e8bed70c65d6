package quotes

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/shared"
)

// CreateRequest drafts a quote for a client.
type CreateRequest struct {
	ClientID       string           `json:"client_id" validate:"required"`
	Service        string           `json:"service" validate:"required,max=200"`
	Frequency      shared.Frequency `json:"frequency" validate:"omitempty,oneof=one-time weekly biweekly monthly"`
	EstimatedHours decimal.Decimal  `json:"estimated_hours"`
	HourlyRate     *decimal.Decimal `json:"hourly_rate,omitempty"`
	Notes          string           `json:"notes"`
}

func (r *CreateRequest) normalize() {
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.Service = strings.TrimSpace(r.Service)
}

func (r CreateRequest) validate() error {
	if err := shared.ValidateStruct(r); err != nil {
		return err
	}
	return validateAmounts(&r.EstimatedHours, r.HourlyRate)
}

// UpdateRequest patches a draft quote.
type UpdateRequest struct {
	Service        *string           `json:"service,omitempty" validate:"omitempty,min=1,max=200"`
	Frequency      *shared.Frequency `json:"frequency,omitempty" validate:"omitempty,oneof=one-time weekly biweekly monthly"`
	EstimatedHours *decimal.Decimal  `json:"estimated_hours,omitempty"`
	HourlyRate     *decimal.Decimal  `json:"hourly_rate,omitempty"`
	Notes          *string           `json:"notes,omitempty"`
}

func (r *UpdateRequest) normalize() {
	if r.Service != nil {
		trimmed := strings.TrimSpace(*r.Service)
		r.Service = &trimmed
	}
}

func (r UpdateRequest) validate() error {
	if err := shared.ValidateStruct(r); err != nil {
		return err
	}
	return validateAmounts(r.EstimatedHours, r.HourlyRate)
}

func validateAmounts(hours, rate *decimal.Decimal) error {
	if hours != nil && !hours.IsPositive() {
		return shared.FieldError("estimated_hours", "must be > 0")
	}
	if rate != nil && rate.IsNegative() {
		return shared.FieldError("hourly_rate", "must be >= 0")
	}
	return nil
}
