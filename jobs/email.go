package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/invoices"
	jobmetrics "github.com/brightnest/cleanops/internal/jobs"
	"github.com/brightnest/cleanops/internal/quotes"
	"github.com/brightnest/cleanops/internal/shared"
)

// InvoiceReader loads invoices for delivery.
type InvoiceReader interface {
	Get(ctx context.Context, id string) (*invoices.Invoice, error)
}

// QuoteReader loads quotes for delivery.
type QuoteReader interface {
	Get(ctx context.Context, id string) (*quotes.Quote, error)
}

// ClientReader loads invoice recipients.
type ClientReader interface {
	Get(ctx context.Context, id string) (*clients.Client, error)
}

// EmailJob renders and delivers invoice and quote emails.
type EmailJob struct {
	Invoices     InvoiceReader
	Quotes       QuoteReader
	Clients      ClientReader
	Mailer       Mailer
	BusinessName string
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
}

// HandleInvoice processes TaskInvoiceEmail tasks.
func (j *EmailJob) HandleInvoice(ctx context.Context, t *asynq.Task) (resultErr error) {
	var payload InvoiceEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.InvoiceID == "" {
		return fmt.Errorf("invoice email payload: %w", asynq.SkipRetry)
	}
	tracker := j.metrics().Track(TaskInvoiceEmail)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := j.logger().With(slog.String("invoice_id", payload.InvoiceID))
	inv, err := j.Invoices.Get(ctx, payload.InvoiceID)
	if err != nil {
		return skipIfMissing(err)
	}
	client, err := j.Clients.Get(ctx, inv.ClientID)
	if err != nil {
		return skipIfMissing(err)
	}
	if slices.Contains(payload.Channels, string(clients.ChannelSMS)) {
		logger.Warn("sms delivery not configured, skipping channel")
	}
	if len(payload.Channels) > 0 && !slices.Contains(payload.Channels, string(clients.ChannelEmail)) {
		return nil
	}
	if err := j.Mailer.Send(ctx, invoiceMessage(j.BusinessName, *inv, client.Email)); err != nil {
		return err
	}
	logger.Info("invoice emailed", slog.String("to", client.Email), slog.String("number", inv.InvoiceNumber))
	return nil
}

// HandleQuote processes TaskQuoteEmail tasks.
func (j *EmailJob) HandleQuote(ctx context.Context, t *asynq.Task) (resultErr error) {
	var payload QuoteEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.QuoteID == "" {
		return fmt.Errorf("quote email payload: %w", asynq.SkipRetry)
	}
	tracker := j.metrics().Track(TaskQuoteEmail)
	defer func() { resultErr = tracker.End(resultErr) }()

	quote, err := j.Quotes.Get(ctx, payload.QuoteID)
	if err != nil {
		return skipIfMissing(err)
	}
	if err := j.Mailer.Send(ctx, quoteMessage(j.BusinessName, *quote)); err != nil {
		return err
	}
	j.logger().Info("quote emailed", slog.String("quote_id", quote.ID), slog.String("to", quote.ClientEmail))
	return nil
}

// Records deleted after enqueueing will never appear, so retrying is pointless.
func skipIfMissing(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func invoiceMessage(business string, inv invoices.Invoice, to string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", inv.ClientName)
	fmt.Fprintf(&b, "Please find invoice %s from %s below.\n\n", inv.InvoiceNumber, business)
	for _, line := range inv.LineItems {
		fmt.Fprintf(&b, "  %s: %s h x %s = %s\n", line.Description, line.Hours.String(),
			shared.FormatMoney(line.Rate), shared.FormatMoney(line.Amount))
	}
	fmt.Fprintf(&b, "\nTotal due: %s\n", shared.FormatMoney(inv.Amount))
	fmt.Fprintf(&b, "Due date: %s\n", inv.DueDate.Format("January 2, 2006"))
	if inv.Notes != "" {
		fmt.Fprintf(&b, "\n%s\n", inv.Notes)
	}
	fmt.Fprintf(&b, "\nThank you,\n%s\n", business)
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Invoice %s from %s", inv.InvoiceNumber, business),
		Body:    b.String(),
	}
}

func quoteMessage(business string, q quotes.Quote) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", q.ClientName)
	fmt.Fprintf(&b, "Here is your quote for %s (%s).\n\n", q.Service, q.Frequency)
	fmt.Fprintf(&b, "Estimated hours: %s\n", q.EstimatedHours.String())
	fmt.Fprintf(&b, "Hourly rate: %s\n", shared.FormatMoney(q.HourlyRate))
	fmt.Fprintf(&b, "Estimated total: %s\n", shared.FormatMoney(q.TotalEstimate))
	if q.ExpiresAt != nil {
		fmt.Fprintf(&b, "\nThis quote is valid until %s.\n", q.ExpiresAt.Format("January 2, 2006"))
	}
	fmt.Fprintf(&b, "\nThank you,\n%s\n", business)
	return Message{
		To:      q.ClientEmail,
		Subject: fmt.Sprintf("Your quote from %s", business),
		Body:    b.String(),
	}
}

func (j *EmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", "email"))
	}
	return slog.Default().With(slog.String("job", "email"))
}

func (j *EmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
