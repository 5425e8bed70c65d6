package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/shared"
	"github.com/brightnest/cleanops/internal/timeparse"
)

// SkippedClient is a client whose pending jobs could not be invoiced.
type SkippedClient struct {
	ClientID string   `json:"client_id"`
	JobIDs   []string `json:"job_ids"`
	Reason   string   `json:"reason"`
}

// SkippedJob is a pending job left in the queue because it could not be priced.
type SkippedJob struct {
	JobID    string `json:"job_id"`
	ClientID string `json:"client_id"`
	Duration string `json:"duration"`
	Reason   string `json:"reason"`
}

// BatchResult summarises a batch run.
type BatchResult struct {
	Invoices          []Invoice       `json:"invoices"`
	InvoicesGenerated int             `json:"invoices_generated"`
	JobsProcessed     int             `json:"jobs_processed"`
	SkippedClients    []SkippedClient `json:"skipped_clients"`
	SkippedJobs       []SkippedJob    `json:"skipped_jobs"`
}

type jobGroup struct {
	clientID string
	jobs     []PendingJob
}

// groupByClient groups jobs by client preserving first-seen client order.
func groupByClient(jobs []PendingJob) []jobGroup {
	index := make(map[string]int)
	var groups []jobGroup
	for _, job := range jobs {
		i, ok := index[job.ClientID]
		if !ok {
			i = len(groups)
			index[job.ClientID] = i
			groups = append(groups, jobGroup{clientID: job.ClientID})
		}
		groups[i].jobs = append(groups[i].jobs, job)
	}
	return groups
}

type batchDraft struct {
	invoice Invoice
	client  *clients.Client
	jobIDs  []string
}

// GenerateBatch folds every pending job into one pending invoice per client.
// Clients that no longer exist and jobs with unreadable durations are skipped,
// logged and reported; their jobs stay queued. Runs are serialised and each
// job is consumed by exactly one invoice.
func (s *Service) GenerateBatch(ctx context.Context, issueDate time.Time) (*BatchResult, error) {
	if issueDate.IsZero() {
		issueDate = s.now()
	}
	issueDate = timeparse.Day(issueDate)

	var (
		result *BatchResult
		drafts []batchDraft
	)
	s.mu.Lock()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		result = &BatchResult{Invoices: []Invoice{}, SkippedClients: []SkippedClient{}, SkippedJobs: []SkippedJob{}}
		drafts = nil

		jobs, err := tx.ClaimPendingJobs(ctx)
		if err != nil {
			return fmt.Errorf("load pending jobs: %w", err)
		}
		for _, group := range groupByClient(jobs) {
			draft, ok, err := s.draftForGroup(ctx, group, issueDate, result)
			if err != nil {
				return err
			}
			if ok {
				drafts = append(drafts, draft)
			}
		}
		if len(drafts) == 0 {
			return nil
		}

		working, err := tx.Numbers(ctx)
		if err != nil {
			return fmt.Errorf("load invoice numbers: %w", err)
		}
		for i := range drafts {
			d := &drafts[i]
			removed, err := tx.RemovePendingJobs(ctx, d.jobIDs)
			if err != nil {
				return fmt.Errorf("clear pending jobs for %s: %w", d.invoice.ClientID, err)
			}
			if removed != len(d.jobIDs) {
				return fmt.Errorf("clear pending jobs for %s: %w", d.invoice.ClientID, ErrJobsClaimed)
			}
			d.invoice.InvoiceNumber = NextNumber(working)
			working = append(working, d.invoice.InvoiceNumber)
			if err := tx.Create(ctx, d.invoice); err != nil {
				return fmt.Errorf("create batch invoice for %s: %w", d.invoice.ClientID, err)
			}
		}
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, d := range drafts {
		result.Invoices = append(result.Invoices, d.invoice)
		result.JobsProcessed += len(d.jobIDs)
		s.autoSend(ctx, d.invoice, d.client)
	}
	result.InvoicesGenerated = len(result.Invoices)

	s.metrics.BatchGenerated(result.InvoicesGenerated, len(result.SkippedClients), len(result.SkippedJobs))
	if result.InvoicesGenerated > 0 {
		s.afterChange(ctx)
	}
	s.logger.Info("batch invoices generated",
		slog.Int("invoices", result.InvoicesGenerated),
		slog.Int("jobs", result.JobsProcessed),
		slog.Int("skipped_clients", len(result.SkippedClients)),
		slog.Int("skipped_jobs", len(result.SkippedJobs)))
	return result, nil
}

func (s *Service) draftForGroup(ctx context.Context, group jobGroup, issueDate time.Time, result *BatchResult) (batchDraft, bool, error) {
	client, err := s.clients.Get(ctx, group.clientID)
	if errors.Is(err, shared.ErrNotFound) {
		ids := make([]string, len(group.jobs))
		for i, job := range group.jobs {
			ids[i] = job.ID
		}
		s.logger.Warn("batch: client not found, skipping",
			slog.String("client_id", group.clientID), slog.Int("jobs", len(ids)))
		result.SkippedClients = append(result.SkippedClients, SkippedClient{
			ClientID: group.clientID,
			JobIDs:   ids,
			Reason:   "client not found",
		})
		return batchDraft{}, false, nil
	}
	if err != nil {
		return batchDraft{}, false, fmt.Errorf("batch: load client %s: %w", group.clientID, err)
	}

	var (
		lines []LineItem
		ids   []string
	)
	for _, job := range group.jobs {
		hours, err := timeparse.ParseHours(job.Duration)
		if err != nil {
			s.logger.Warn("batch: unreadable job duration, skipping",
				slog.String("job_id", job.ID), slog.String("duration", job.Duration))
			result.SkippedJobs = append(result.SkippedJobs, SkippedJob{
				JobID:    job.ID,
				ClientID: job.ClientID,
				Duration: job.Duration,
				Reason:   err.Error(),
			})
			continue
		}
		lines = append(lines, LineItem{
			Description: jobDescription(job.Service, job.Date),
			Hours:       hours,
			Rate:        client.HourlyRate,
		})
		ids = append(ids, job.ID)
	}
	if len(lines) == 0 {
		return batchDraft{}, false, nil
	}

	frequency := group.jobs[0].Frequency
	if frequency == "" {
		frequency = client.InvoicePreferences.BillingFrequency
	}
	inv := s.newInvoice(client, issueDate, s.clientNetDays(client), StatusPending,
		fmt.Sprintf("Batch invoice for %d job(s) (%s billing)", len(lines), frequency))
	inv.SetLineItems(lines)
	return batchDraft{invoice: inv, client: client, jobIDs: ids}, true, nil
}
