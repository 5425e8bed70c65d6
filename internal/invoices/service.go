package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/observability"
	"github.com/brightnest/cleanops/internal/shared"
	"github.com/brightnest/cleanops/internal/timeparse"
	"github.com/brightnest/cleanops/internal/uploads"
)

// Repository persists invoices and the pending billable job queue.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, inv Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	// Update stores inv only while the stored status is still from, and
	// returns ErrStale otherwise.
	Update(ctx context.Context, inv Invoice, from Status) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
	Numbers(ctx context.Context) ([]string, error)

	AddPendingJob(ctx context.Context, job PendingJob) error
	PendingJobs(ctx context.Context) ([]PendingJob, error)
	// ClaimPendingJobs reads the queue and keeps the rows locked until the
	// surrounding transaction ends.
	ClaimPendingJobs(ctx context.Context) ([]PendingJob, error)
	// RemovePendingJobs deletes the given jobs and reports how many existed.
	RemovePendingJobs(ctx context.Context, ids []string) (int, error)

	AddAttachment(ctx context.Context, att Attachment) error
	Attachments(ctx context.Context, invoiceID string) ([]Attachment, error)
}

// ClientDirectory resolves clients for pricing and snapshots.
type ClientDirectory interface {
	Get(ctx context.Context, id string) (*clients.Client, error)
}

// Sender delivers an invoice to a client over the given channels.
type Sender interface {
	SendInvoice(ctx context.Context, inv Invoice, channels []clients.Channel) error
}

// ChangeNotifier is told whenever ledger totals may have changed.
type ChangeNotifier interface {
	Bump(ctx context.Context) error
}

// ServiceConfig tunes the ledger.
type ServiceConfig struct {
	NetDays int
	Metrics *observability.Metrics
	Changes ChangeNotifier
}

// Service is the invoice ledger.
type Service struct {
	repo    Repository
	clients ClientDirectory
	sender  Sender
	logger  *slog.Logger
	metrics *observability.Metrics
	changes ChangeNotifier
	netDays int
	now     func() time.Time

	// mu serialises invoice number allocation and batch runs.
	mu sync.Mutex
}

// NewService builds the ledger. sender may be nil when delivery is disabled.
func NewService(repo Repository, directory ClientDirectory, sender Sender, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	netDays := cfg.NetDays
	if netDays <= 0 {
		netDays = DefaultNetDays
	}
	return &Service{
		repo:    repo,
		clients: directory,
		sender:  sender,
		logger:  logger,
		metrics: cfg.Metrics,
		changes: cfg.Changes,
		netDays: netDays,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create issues an invoice from explicit line items.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Invoice, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}
	client, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	issue := timeparse.Day(s.now())
	if req.IssueDate != "" {
		if issue, err = timeparse.ParseDate(req.IssueDate); err != nil {
			return nil, shared.FieldError("issue_date", err.Error())
		}
	}
	netDays := s.clientNetDays(client)
	if req.NetDays != nil {
		netDays = *req.NetDays
	}
	status := req.Status
	if status == "" {
		status = StatusDraft
	}

	inv := s.newInvoice(client, issue, netDays, status, req.Notes)
	inv.SetLineItems(priceLines(req.LineItems, client.HourlyRate))

	if err := s.insert(ctx, &inv); err != nil {
		return nil, err
	}
	s.metrics.InvoiceCreated("manual")
	s.afterChange(ctx)
	if inv.Status == StatusPending {
		s.autoSend(ctx, inv, client)
	}
	return &inv, nil
}

// JobInvoice describes a single completed job billed on its own.
type JobInvoice struct {
	ClientID  string
	BookingID string
	Service   string
	Hours     decimal.Decimal
	Date      time.Time
}

// CreateForJob issues a pending invoice for one completed job at the client's rate.
func (s *Service) CreateForJob(ctx context.Context, job JobInvoice) (*Invoice, error) {
	if job.ClientID == "" {
		return nil, ErrNoClient
	}
	client, err := s.clients.Get(ctx, job.ClientID)
	if err != nil {
		return nil, err
	}
	issue := timeparse.Day(s.now())
	inv := s.newInvoice(client, issue, s.clientNetDays(client), StatusPending,
		fmt.Sprintf("Invoice for completed job %s", job.BookingID))
	inv.SetLineItems([]LineItem{{
		Description: jobDescription(job.Service, job.Date),
		Hours:       job.Hours,
		Rate:        client.HourlyRate,
	}})

	if err := s.insert(ctx, &inv); err != nil {
		return nil, err
	}
	s.metrics.InvoiceCreated("job")
	s.afterChange(ctx)
	s.autoSend(ctx, inv, client)
	return &inv, nil
}

// QueueJob parks a completed job until the next batch run.
func (s *Service) QueueJob(ctx context.Context, job PendingJob) (*PendingJob, error) {
	if job.ClientID == "" {
		return nil, ErrNoClient
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	if err := s.repo.AddPendingJob(ctx, job); err != nil {
		return nil, fmt.Errorf("queue job: %w", err)
	}
	return &job, nil
}

// PendingJobs lists jobs awaiting batch invoicing in arrival order.
func (s *Service) PendingJobs(ctx context.Context) ([]PendingJob, error) {
	return s.repo.PendingJobs(ctx)
}

// Update patches an invoice.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Invoice, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := inv.Status

	if req.touchesContent() {
		if inv.Status != StatusDraft {
			return nil, ErrNotEditable
		}
		if err := s.applyContent(ctx, inv, req); err != nil {
			return nil, err
		}
	}
	if req.Status != nil {
		if err := Transition(inv.Status, *req.Status); err != nil {
			return nil, err
		}
		inv.Status = *req.Status
		if inv.Status == StatusPaid {
			paidAt := s.now()
			inv.PaidAt = &paidAt
		}
	}
	inv.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, *inv, previous); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	s.afterChange(ctx)

	if previous == StatusDraft && inv.Status == StatusPending {
		if client, err := s.clients.Get(ctx, inv.ClientID); err == nil {
			s.autoSend(ctx, *inv, client)
		}
	}
	return inv, nil
}

func (s *Service) applyContent(ctx context.Context, inv *Invoice, req UpdateRequest) error {
	term := int(inv.DueDate.Sub(inv.IssueDate).Hours() / 24)
	if req.IssueDate != nil {
		issue, err := timeparse.ParseDate(*req.IssueDate)
		if err != nil {
			return shared.FieldError("issue_date", err.Error())
		}
		inv.IssueDate = issue
	}
	if req.NetDays != nil {
		term = *req.NetDays
	}
	inv.DueDate = inv.IssueDate.AddDate(0, 0, term)
	if req.Notes != nil {
		inv.Notes = *req.Notes
	}
	if req.LineItems != nil {
		rate := decimal.Zero
		if needsClientRate(req.LineItems) {
			client, err := s.clients.Get(ctx, inv.ClientID)
			if err != nil {
				return err
			}
			rate = client.HourlyRate
		}
		inv.SetLineItems(priceLines(req.LineItems, rate))
	}
	return nil
}

// MarkPaid moves an invoice to paid through the state machine.
func (s *Service) MarkPaid(ctx context.Context, id string, at time.Time) (*Invoice, error) {
	return s.Settle(ctx, id, at, nil)
}

// Settle marks an invoice paid. accept sees the invoice as stored just before
// the change and may veto it. The change lands only if no other writer moved
// the invoice in between; otherwise ErrStale is returned.
func (s *Service) Settle(ctx context.Context, id string, at time.Time, accept func(Invoice) error) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if accept != nil {
		if err := accept(inv.Clone()); err != nil {
			return nil, err
		}
	}
	if err := Transition(inv.Status, StatusPaid); err != nil {
		return nil, err
	}
	from := inv.Status
	inv.Status = StatusPaid
	inv.PaidAt = &at
	inv.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, *inv, from); err != nil {
		return nil, fmt.Errorf("settle invoice %s: %w", inv.InvoiceNumber, err)
	}
	s.afterChange(ctx)
	return inv, nil
}

// Reopen restores prev over a settlement whose payment could not be stored.
// It only applies while the invoice is still paid.
func (s *Service) Reopen(ctx context.Context, prev Invoice) error {
	prev.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, prev, StatusPaid); err != nil {
		return fmt.Errorf("reopen invoice %s: %w", prev.InvoiceNumber, err)
	}
	s.afterChange(ctx)
	return nil
}

// Delete removes an invoice. Payments and pending jobs are left untouched.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.afterChange(ctx)
	return nil
}

// Get returns an invoice by id.
func (s *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// List returns invoices newest issue date first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	return s.repo.List(ctx, filter)
}

// MarkOverdue flags pending invoices whose due date is before asOf's day.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	pending, err := s.repo.List(ctx, ListFilter{Status: StatusPending})
	if err != nil {
		return 0, err
	}
	today := timeparse.Day(asOf)
	changed := 0
	for i := range pending {
		inv := pending[i]
		if !inv.DueDate.Before(today) {
			continue
		}
		inv.Status = StatusOverdue
		inv.UpdatedAt = s.now()
		err := s.repo.Update(ctx, inv, StatusPending)
		if errors.Is(err, ErrStale) || errors.Is(err, ErrNotFound) {
			s.logger.Info("overdue sweep: invoice changed, skipping", slog.String("invoice_number", inv.InvoiceNumber))
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("mark overdue %s: %w", inv.InvoiceNumber, err)
		}
		changed++
	}
	if changed > 0 {
		s.logger.Info("invoices overdue", slog.Int("count", changed))
		s.afterChange(ctx)
	}
	return changed, nil
}

// Send delivers an invoice now. Draft invoices are issued (moved to pending) first.
func (s *Service) Send(ctx context.Context, id string) (*Invoice, error) {
	if s.sender == nil {
		return nil, fmt.Errorf("%w: invoice delivery is not configured", shared.ErrPrecondition)
	}
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	client, err := s.clients.Get(ctx, inv.ClientID)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusDraft {
		inv.Status = StatusPending
		inv.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, *inv, StatusDraft); err != nil {
			return nil, fmt.Errorf("issue invoice: %w", err)
		}
		s.afterChange(ctx)
	}
	if err := s.sender.SendInvoice(ctx, *inv, channelsFor(client)); err != nil {
		return nil, fmt.Errorf("send invoice %s: %w", inv.InvoiceNumber, err)
	}
	return inv, nil
}

// AddAttachment records a stored file against an invoice.
func (s *Service) AddAttachment(ctx context.Context, invoiceID string, file uploads.Attachment) (*Attachment, error) {
	inv, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	att := Attachment{
		ID:        uuid.NewString(),
		InvoiceID: inv.ID,
		Name:      file.Name,
		Path:      file.Path,
		MIMEType:  file.MIMEType,
		Size:      file.Size,
		CreatedAt: s.now(),
	}
	if err := s.repo.AddAttachment(ctx, att); err != nil {
		return nil, fmt.Errorf("record attachment: %w", err)
	}
	s.logger.Info("invoice attachment stored",
		slog.String("invoice_number", inv.InvoiceNumber), slog.String("mime", att.MIMEType))
	return &att, nil
}

// Attachments lists the files stored against an invoice, oldest first.
func (s *Service) Attachments(ctx context.Context, invoiceID string) ([]Attachment, error) {
	if _, err := s.repo.Get(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.Attachments(ctx, invoiceID)
}

func (s *Service) newInvoice(client *clients.Client, issue time.Time, netDays int, status Status, notes string) Invoice {
	now := s.now()
	return Invoice{
		ID:         uuid.NewString(),
		ClientID:   client.ID,
		ClientName: client.Name,
		Status:     status,
		IssueDate:  issue,
		DueDate:    issue.AddDate(0, 0, netDays),
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// insert allocates the next number and stores the invoice.
func (s *Service) insert(ctx context.Context, inv *Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	numbers, err := s.repo.Numbers(ctx)
	if err != nil {
		return fmt.Errorf("load invoice numbers: %w", err)
	}
	inv.InvoiceNumber = NextNumber(numbers)
	if err := s.repo.Create(ctx, *inv); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	s.logger.Info("invoice created",
		slog.String("invoice_number", inv.InvoiceNumber),
		slog.String("client_id", inv.ClientID),
		slog.String("amount", inv.Amount.StringFixed(2)))
	return nil
}

func (s *Service) clientNetDays(client *clients.Client) int {
	if client.InvoicePreferences.NetDays > 0 {
		return client.InvoicePreferences.NetDays
	}
	return s.netDays
}

func (s *Service) autoSend(ctx context.Context, inv Invoice, client *clients.Client) {
	if s.sender == nil || !client.InvoicePreferences.AutoSend {
		return
	}
	if err := s.sender.SendInvoice(ctx, inv, channelsFor(client)); err != nil {
		s.logger.Warn("auto-send failed", slog.String("invoice_number", inv.InvoiceNumber), slog.Any("error", err))
	}
}

func (s *Service) afterChange(ctx context.Context) {
	if s.changes == nil {
		return
	}
	if err := s.changes.Bump(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("analytics cache bump failed", slog.Any("error", err))
	}
}

func channelsFor(client *clients.Client) []clients.Channel {
	if len(client.InvoicePreferences.SendChannels) == 0 {
		return []clients.Channel{clients.ChannelEmail}
	}
	return client.InvoicePreferences.SendChannels
}

func priceLines(in []LineItemInput, defaultRate decimal.Decimal) []LineItem {
	out := make([]LineItem, len(in))
	for i, line := range in {
		rate := defaultRate
		if line.Rate != nil {
			rate = *line.Rate
		}
		out[i] = LineItem{Description: line.Description, Hours: line.Hours, Rate: rate}
	}
	return out
}

func needsClientRate(in []LineItemInput) bool {
	for _, line := range in {
		if line.Rate == nil {
			return true
		}
	}
	return false
}

func jobDescription(service string, date time.Time) string {
	if date.IsZero() {
		return service
	}
	return fmt.Sprintf("%s (%s)", service, date.Format("2006-01-02"))
}
