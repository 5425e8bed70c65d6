package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/shared"
)

// Method is how a payment was received.
type Method string

const (
	MethodCash         Method = "cash"
	MethodCheck        Method = "check"
	MethodBankTransfer Method = "bank-transfer"
)

var (
	// ErrNoInvoice is returned when a payment names no invoice.
	ErrNoInvoice = shared.FieldError("invoice_id", "an invoice must be selected")
	// ErrPartialNotConfirmed guards against recording less than the invoice
	// amount by accident.
	ErrPartialNotConfirmed = fmt.Errorf("%w: payment is less than the invoice amount; confirm the partial payment", shared.ErrPrecondition)
)

// Payment is an immutable record of money received against an invoice.
type Payment struct {
	ID         string          `json:"id"`
	InvoiceID  string          `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     Method          `json:"method"`
	Reference  string          `json:"reference,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	ReceivedBy string          `json:"received_by,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Partial    bool            `json:"partial"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RecordRequest captures a payment entry.
type RecordRequest struct {
	InvoiceID      string          `json:"invoice_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         Method          `json:"method" validate:"required,oneof=cash check bank-transfer"`
	Reference      string          `json:"reference" validate:"max=100"`
	Notes          string          `json:"notes"`
	ReceivedBy     string          `json:"received_by" validate:"max=100"`
	ReceivedAt     *time.Time      `json:"received_at,omitempty"`
	ConfirmPartial bool            `json:"confirm_partial"`
}

func (r *RecordRequest) normalize() {
	r.InvoiceID = strings.TrimSpace(r.InvoiceID)
	r.Reference = strings.TrimSpace(r.Reference)
	r.ReceivedBy = strings.TrimSpace(r.ReceivedBy)
}

func (r RecordRequest) validate() error {
	if r.InvoiceID == "" {
		return ErrNoInvoice
	}
	if !r.Amount.IsPositive() {
		return shared.FieldError("amount", "must be > 0")
	}
	return shared.ValidateStruct(r)
}

// Balance is what remains owed on an invoice.
type Balance struct {
	InvoiceID     string          `json:"invoice_id"`
	InvoiceAmount decimal.Decimal `json:"invoice_amount"`
	Paid          decimal.Decimal `json:"paid"`
	Outstanding   decimal.Decimal `json:"outstanding"`
}

// ListFilter narrows payment listings.
type ListFilter struct {
	InvoiceID string
	Method    Method
	From, To  time.Time
}

// Matches reports whether p is visible under the filter.
func (f ListFilter) Matches(p Payment) bool {
	if f.InvoiceID != "" && p.InvoiceID != f.InvoiceID {
		return false
	}
	if f.Method != "" && p.Method != f.Method {
		return false
	}
	if !f.From.IsZero() && p.ReceivedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !p.ReceivedAt.Before(f.To) {
		return false
	}
	return true
}
