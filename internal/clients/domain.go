package clients

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/shared"
)

// ContactPreference is the channel a client prefers to be reached on.
type ContactPreference string

const (
	ContactEmail ContactPreference = "email"
	ContactPhone ContactPreference = "phone"
	ContactSMS   ContactPreference = "sms"
)

// BillingFrequency controls whether completed jobs are invoiced immediately or batched.
type BillingFrequency string

const (
	BillingPerJob  BillingFrequency = "per-job"
	BillingWeekly  BillingFrequency = "weekly"
	BillingMonthly BillingFrequency = "monthly"
)

// Batched reports whether jobs wait for batch invoice generation.
func (f BillingFrequency) Batched() bool {
	return f == BillingWeekly || f == BillingMonthly
}

// Channel is an invoice delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Status enumerates client lifecycle states.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPending  Status = "pending"
)

// DefaultHourlyRate applies when a client is saved without a rate.
var DefaultHourlyRate = decimal.NewFromInt(50)

// ErrNotFound is returned when a client id is unknown.
var ErrNotFound = fmt.Errorf("client %w", shared.ErrNotFound)

// InvoicePreferences describes how a client is billed.
type InvoicePreferences struct {
	BillingFrequency BillingFrequency `json:"billing_frequency"`
	AutoSend         bool             `json:"auto_send"`
	SendChannels     []Channel        `json:"send_channels"`
	NetDays          int              `json:"net_days"`
}

// Client is a customer of the cleaning business.
type Client struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	Phone              string             `json:"phone"`
	Address            string             `json:"address,omitempty"`
	ContactPreference  ContactPreference  `json:"contact_preference"`
	HourlyRate         decimal.Decimal    `json:"hourly_rate"`
	InvoicePreferences InvoicePreferences `json:"invoice_preferences"`
	Tags               []string           `json:"tags"`
	LifetimeValue      decimal.Decimal    `json:"lifetime_value"`
	Status             Status             `json:"status"`
	Notes              string             `json:"notes,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Clone returns a deep copy safe to hand out of a store.
func (c Client) Clone() Client {
	c.Tags = slices.Clone(c.Tags)
	c.InvoicePreferences.SendChannels = slices.Clone(c.InvoicePreferences.SendChannels)
	return c
}

// HasTag reports whether the normalised tag is present.
func (c Client) HasTag(tag string) bool {
	_, found := slices.BinarySearch(c.Tags, normalizeTag(tag))
	return found
}

// MergeTags returns the sorted, de-duplicated union of existing and added tags.
// Blank tags are dropped.
func MergeTags(existing []string, add ...string) []string {
	set := make(map[string]struct{}, len(existing)+len(add))
	for _, t := range existing {
		if t = normalizeTag(t); t != "" {
			set[t] = struct{}{}
		}
	}
	for _, t := range add {
		if t = normalizeTag(t); t != "" {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// WithoutTag returns tags minus the given tag.
func WithoutTag(tags []string, tag string) []string {
	tag = normalizeTag(tag)
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// ListFilter narrows client listings.
type ListFilter struct {
	Status           Status
	Tag              string
	Search           string
	BillingFrequency BillingFrequency
}

// Matches reports whether c is visible under the filter.
func (f ListFilter) Matches(c Client) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.BillingFrequency != "" && c.InvoicePreferences.BillingFrequency != f.BillingFrequency {
		return false
	}
	if f.Tag != "" && !c.HasTag(f.Tag) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		haystack := strings.ToLower(c.Name + " " + c.Email + " " + c.Phone)
		if !strings.Contains(haystack, q) {
			return false
		}
	}
	return true
}
