package clients

import (
	"strconv"
	"strings"
	"time"

	"github.com/brightnest/cleanops/internal/export"
)

// ExportColumns are the selectable client CSV columns.
var ExportColumns = []export.Column[Client]{
	{Key: "id", Value: func(c Client) string { return c.ID }},
	{Key: "name", Value: func(c Client) string { return c.Name }},
	{Key: "email", Value: func(c Client) string { return c.Email }},
	{Key: "phone", Value: func(c Client) string { return c.Phone }},
	{Key: "address", Value: func(c Client) string { return c.Address }},
	{Key: "contact_preference", Value: func(c Client) string { return string(c.ContactPreference) }},
	{Key: "hourly_rate", Value: func(c Client) string { return c.HourlyRate.StringFixed(2) }},
	{Key: "billing_frequency", Value: func(c Client) string { return string(c.InvoicePreferences.BillingFrequency) }},
	{Key: "auto_send", Value: func(c Client) string { return strconv.FormatBool(c.InvoicePreferences.AutoSend) }},
	{Key: "tags", Value: func(c Client) string { return strings.Join(c.Tags, ";") }},
	{Key: "lifetime_value", Value: func(c Client) string { return c.LifetimeValue.StringFixed(2) }},
	{Key: "status", Value: func(c Client) string { return string(c.Status) }},
	{Key: "created_at", Value: func(c Client) string { return c.CreatedAt.Format(time.RFC3339) }},
}
