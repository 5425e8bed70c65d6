package invoices

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/shared"
)

// Status is the payment state of an invoice.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// DefaultNetDays is the payment term used when neither the request nor the
// client sets one.
const DefaultNetDays = 30

const numberPrefix = "INV-"

var (
	ErrNotFound    = fmt.Errorf("invoice %w", shared.ErrNotFound)
	ErrNoClient    = shared.FieldError("client_id", "a client must be selected")
	ErrNotEditable = fmt.Errorf("%w: only draft invoices can be edited", shared.ErrInvalidTransition)
	ErrStale       = fmt.Errorf("invoice %w", shared.ErrStaleStatus)
	ErrJobsClaimed = fmt.Errorf("%w: pending jobs were billed by another run", shared.ErrStaleStatus)
)

var transitions = map[Status][]Status{
	StatusDraft:   {StatusDraft, StatusPending, StatusPaid},
	StatusPending: {StatusPaid, StatusOverdue},
	StatusOverdue: {StatusPaid},
}

// CanTransition reports whether from -> to is a legal invoice transition.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Transition validates from -> to and returns ErrInvalidTransition otherwise.
func Transition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: invoice %s -> %s", shared.ErrInvalidTransition, from, to)
}

// LineItem is one billed service on an invoice.
type LineItem struct {
	Description string          `json:"description"`
	Hours       decimal.Decimal `json:"hours"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is a bill issued to a client.
type Invoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      string          `json:"client_id"`
	ClientName    string          `json:"client_name"`
	Amount        decimal.Decimal `json:"amount"`
	Status        Status          `json:"status"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	LineItems     []LineItem      `json:"line_items"`
	Services      []string        `json:"services"`
	Notes         string          `json:"notes,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Clone returns a deep copy safe to hand out of a store.
func (inv Invoice) Clone() Invoice {
	inv.LineItems = slices.Clone(inv.LineItems)
	inv.Services = slices.Clone(inv.Services)
	return inv
}

// SetLineItems replaces the lines, pricing each and recomputing Amount and Services.
func (inv *Invoice) SetLineItems(lines []LineItem) {
	inv.LineItems = make([]LineItem, len(lines))
	inv.Services = make([]string, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		line.Amount = shared.LineAmount(line.Hours, line.Rate)
		inv.LineItems[i] = line
		inv.Services[i] = line.Description
		total = total.Add(line.Amount)
	}
	inv.Amount = shared.Round2(total)
}

// Outstanding reports whether the invoice still awaits payment.
func (inv Invoice) Outstanding() bool {
	return inv.Status == StatusPending || inv.Status == StatusOverdue
}

// PendingJob is a completed job waiting to be folded into a batch invoice.
type PendingJob struct {
	ID        string                   `json:"id"`
	ClientID  string                   `json:"client_id"`
	BookingID string                   `json:"booking_id"`
	Service   string                   `json:"service"`
	Duration  string                   `json:"duration"`
	Date      time.Time                `json:"date"`
	Frequency clients.BillingFrequency `json:"frequency"`
	CreatedAt time.Time                `json:"created_at"`
}

// Attachment is a receipt or document stored against an invoice.
type Attachment struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	MIMEType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status   Status
	ClientID string
	Search   string
}

// Matches reports whether inv is visible under the filter.
func (f ListFilter) Matches(inv Invoice) bool {
	if f.Status != "" && inv.Status != f.Status {
		return false
	}
	if f.ClientID != "" && inv.ClientID != f.ClientID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		haystack := strings.ToLower(inv.InvoiceNumber + " " + inv.ClientName + " " + strings.Join(inv.Services, " "))
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}

// FormatNumber renders the n-th invoice number.
func FormatNumber(n int) string {
	return fmt.Sprintf("%s%04d", numberPrefix, n)
}

// ParseNumber extracts the numeric suffix of an invoice number.
func ParseNumber(number string) (int, bool) {
	digits, ok := strings.CutPrefix(strings.TrimSpace(number), numberPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NextNumber returns the number following the highest numeric suffix in use.
// Numbers that do not follow the INV-#### pattern are ignored.
func NextNumber(existing []string) string {
	highest := 0
	for _, number := range existing {
		if n, ok := ParseNumber(number); ok && n > highest {
			highest = n
		}
	}
	return FormatNumber(highest + 1)
}
