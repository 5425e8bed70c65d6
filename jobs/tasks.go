package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	TaskQuotesExpire    = "quotes:expire"
	TaskInvoicesOverdue = "invoices:overdue"
	TaskInvoiceEmail    = "mail:invoice"
	TaskQuoteEmail      = "mail:quote"
)

// InvoiceEmailPayload names an invoice to deliver and the channels to use.
type InvoiceEmailPayload struct {
	InvoiceID string   `json:"invoice_id"`
	Channels  []string `json:"channels"`
}

// QuoteEmailPayload names a sent quote to deliver to its client.
type QuoteEmailPayload struct {
	QuoteID string `json:"quote_id"`
}

// NewInvoiceEmailTask constructs an invoice delivery task.
func NewInvoiceEmailTask(payload InvoiceEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceEmail, data, asynq.MaxRetry(5)), nil
}

// NewQuoteEmailTask constructs a quote delivery task.
func NewQuoteEmailTask(payload QuoteEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteEmail, data, asynq.MaxRetry(5)), nil
}

// NewQuotesExpireTask builds the periodic quote expiry sweep.
func NewQuotesExpireTask() *asynq.Task {
	return asynq.NewTask(TaskQuotesExpire, nil)
}

// NewInvoicesOverdueTask builds the periodic overdue sweep.
func NewInvoicesOverdueTask() *asynq.Task {
	return asynq.NewTask(TaskInvoicesOverdue, nil)
}
