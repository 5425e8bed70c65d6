package clients

import (
	"strings"

	"github.com/shopspring/decimal"
)

// InvoicePreferencesInput is the editable form of InvoicePreferences.
type InvoicePreferencesInput struct {
	BillingFrequency BillingFrequency `json:"billing_frequency" validate:"omitempty,oneof=per-job weekly monthly"`
	AutoSend         bool             `json:"auto_send"`
	SendChannels     []Channel        `json:"send_channels" validate:"omitempty,dive,oneof=email sms"`
	NetDays          int              `json:"net_days" validate:"gte=0,lte=365"`
}

// CreateRequest registers a new client.
type CreateRequest struct {
	Name               string                  `json:"name" validate:"required,max=200"`
	Email              string                  `json:"email" validate:"required,email"`
	Phone              string                  `json:"phone" validate:"required,max=50"`
	Address            string                  `json:"address" validate:"max=300"`
	ContactPreference  ContactPreference       `json:"contact_preference" validate:"omitempty,oneof=email phone sms"`
	HourlyRate         *decimal.Decimal        `json:"hourly_rate,omitempty"`
	InvoicePreferences InvoicePreferencesInput `json:"invoice_preferences"`
	Tags               []string                `json:"tags"`
	Status             Status                  `json:"status" validate:"omitempty,oneof=active inactive pending"`
	Notes              string                  `json:"notes"`
}

func (r *CreateRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
}

// UpdateRequest patches a client. A zero hourly rate resets it to the default.
type UpdateRequest struct {
	Name               *string                  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email              *string                  `json:"email,omitempty" validate:"omitempty,email"`
	Phone              *string                  `json:"phone,omitempty" validate:"omitempty,min=1,max=50"`
	Address            *string                  `json:"address,omitempty" validate:"omitempty,max=300"`
	ContactPreference  *ContactPreference       `json:"contact_preference,omitempty" validate:"omitempty,oneof=email phone sms"`
	HourlyRate         *decimal.Decimal         `json:"hourly_rate,omitempty"`
	InvoicePreferences *InvoicePreferencesInput `json:"invoice_preferences,omitempty"`
	Status             *Status                  `json:"status,omitempty" validate:"omitempty,oneof=active inactive pending"`
	Notes              *string                  `json:"notes,omitempty"`
}

func (r *UpdateRequest) normalize() {
	for _, p := range []*string{r.Name, r.Email, r.Phone, r.Address} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
}

// TagsRequest adds tags to a client.
type TagsRequest struct {
	Tags []string `json:"tags" validate:"required,min=1"`
}
