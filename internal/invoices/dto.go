package invoices

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/shared"
)

// LineItemInput is a line as submitted by the caller. A missing rate falls
// back to the client's hourly rate.
type LineItemInput struct {
	Description string           `json:"description" validate:"required,max=300"`
	Hours       decimal.Decimal  `json:"hours"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
}

// CreateRequest issues an invoice for a client.
type CreateRequest struct {
	ClientID  string          `json:"client_id"`
	LineItems []LineItemInput `json:"line_items" validate:"required,min=1,dive"`
	IssueDate string          `json:"issue_date"`
	NetDays   *int            `json:"net_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	Status    Status          `json:"status" validate:"omitempty,oneof=draft pending"`
	Notes     string          `json:"notes"`
}

func (r *CreateRequest) normalize() {
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.IssueDate = strings.TrimSpace(r.IssueDate)
	for i := range r.LineItems {
		r.LineItems[i].Description = strings.TrimSpace(r.LineItems[i].Description)
	}
}

func (r CreateRequest) validate() error {
	if r.ClientID == "" {
		return ErrNoClient
	}
	if err := shared.ValidateStruct(r); err != nil {
		return err
	}
	return validateLines(r.LineItems)
}

// UpdateRequest patches an invoice. Content fields require a draft invoice;
// Status moves through the invoice state machine.
type UpdateRequest struct {
	LineItems []LineItemInput `json:"line_items,omitempty" validate:"omitempty,min=1,dive"`
	IssueDate *string         `json:"issue_date,omitempty"`
	NetDays   *int            `json:"net_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	Notes     *string         `json:"notes,omitempty"`
	Status    *Status         `json:"status,omitempty" validate:"omitempty,oneof=draft pending paid overdue"`
}

func (r UpdateRequest) touchesContent() bool {
	return r.LineItems != nil || r.IssueDate != nil || r.NetDays != nil || r.Notes != nil
}

func (r *UpdateRequest) normalize() {
	for i := range r.LineItems {
		r.LineItems[i].Description = strings.TrimSpace(r.LineItems[i].Description)
	}
}

func (r UpdateRequest) validate() error {
	if err := shared.ValidateStruct(r); err != nil {
		return err
	}
	return validateLines(r.LineItems)
}

func validateLines(lines []LineItemInput) error {
	fields := map[string]string{}
	for i, line := range lines {
		prefix := "line_items[" + strconv.Itoa(i) + "]."
		if line.Hours.IsNegative() {
			fields[prefix+"hours"] = "must be >= 0"
		}
		if line.Rate != nil && line.Rate.IsNegative() {
			fields[prefix+"rate"] = "must be >= 0"
		}
	}
	if len(fields) > 0 {
		return &shared.ValidationError{Fields: fields}
	}
	return nil
}
