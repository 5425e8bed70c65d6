package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/clients"
	"github.com/brightnest/cleanops/internal/platform/db"
	"github.com/brightnest/cleanops/internal/shared"
)

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed ledger repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const invoiceColumns = `id, invoice_number, client_id, client_name, amount::text, status, issue_date, due_date,
	line_items::text, services, notes, paid_at, created_at, updated_at`

func (r *repository) Create(ctx context.Context, inv Invoice) error {
	lines, err := json.Marshal(inv.LineItems)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO invoices (id, invoice_number, client_id, client_name, amount, status, issue_date, due_date,
			line_items, services, notes, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8, $9::text::jsonb, $10, $11, $12, $13, $14)`,
		inv.ID, inv.InvoiceNumber, inv.ClientID, inv.ClientName, inv.Amount.String(), string(inv.Status),
		inv.IssueDate, inv.DueDate, string(lines), nonNil(inv.Services), inv.Notes, inv.PaidAt,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("invoice number %s: %w", inv.InvoiceNumber, shared.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *repository) Update(ctx context.Context, inv Invoice, from Status) error {
	lines, err := json.Marshal(inv.LineItems)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET amount = $2::text::numeric, status = $3, issue_date = $4, due_date = $5,
			line_items = $6::text::jsonb, services = $7, notes = $8, paid_at = $9, updated_at = $10
		WHERE id = $1 AND status = $11`,
		inv.ID, inv.Amount.String(), string(inv.Status), inv.IssueDate, inv.DueDate, string(lines),
		nonNil(inv.Services), inv.Notes, inv.PaidAt, inv.UpdatedAt, string(from),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.UpdateMiss(ctx, r.db, "invoices", inv.ID, ErrNotFound, ErrStale)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(filter.Status))
		argPos++
	}
	if filter.ClientID != "" {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, filter.ClientID)
		argPos++
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(invoice_number ILIKE $%d OR client_name ILIKE $%d OR array_to_string(services, ' ') ILIKE $%d)",
			argPos, argPos, argPos))
		args = append(args, "%"+q+"%")
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY issue_date DESC, invoice_number DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *repository) Numbers(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT invoice_number FROM invoices`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *repository) AddPendingJob(ctx context.Context, job PendingJob) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pending_billable_jobs (id, client_id, booking_id, service, duration, performed_on, frequency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.ClientID, job.BookingID, job.Service, job.Duration, job.Date, string(job.Frequency), job.CreatedAt,
	)
	return err
}

const pendingJobColumns = `id, client_id, booking_id, service, duration, performed_on, frequency, created_at`

func (r *repository) PendingJobs(ctx context.Context) ([]PendingJob, error) {
	return r.queryPendingJobs(ctx, `SELECT `+pendingJobColumns+` FROM pending_billable_jobs ORDER BY created_at, id`)
}

// ClaimPendingJobs locks the queued rows for the caller's transaction. Rows
// already held by a concurrent run are skipped rather than waited on.
func (r *repository) ClaimPendingJobs(ctx context.Context) ([]PendingJob, error) {
	return r.queryPendingJobs(ctx, `SELECT `+pendingJobColumns+` FROM pending_billable_jobs
		ORDER BY created_at, id FOR UPDATE SKIP LOCKED`)
}

func (r *repository) queryPendingJobs(ctx context.Context, query string) ([]PendingJob, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingJob
	for rows.Next() {
		var (
			job       PendingJob
			frequency string
		)
		if err := rows.Scan(&job.ID, &job.ClientID, &job.BookingID, &job.Service, &job.Duration,
			&job.Date, &frequency, &job.CreatedAt); err != nil {
			return nil, err
		}
		job.Frequency = clients.BillingFrequency(frequency)
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *repository) RemovePendingJobs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM pending_billable_jobs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repository) AddAttachment(ctx context.Context, att Attachment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO invoice_attachments (id, invoice_id, name, path, mime_type, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		att.ID, att.InvoiceID, att.Name, att.Path, att.MIMEType, att.Size, att.CreatedAt,
	)
	return err
}

func (r *repository) Attachments(ctx context.Context, invoiceID string) ([]Attachment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, name, path, mime_type, size_bytes, created_at
		FROM invoice_attachments WHERE invoice_id = $1 ORDER BY created_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Attachment{}
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.ID, &att.InvoiceID, &att.Name, &att.Path, &att.MIMEType, &att.Size, &att.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, rows.Err()
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv            Invoice
		amount, status string
		lines          string
		paidAt         *time.Time
	)
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.ClientID, &inv.ClientName, &amount, &status,
		&inv.IssueDate, &inv.DueDate, &lines, &inv.Services, &inv.Notes, &paidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, err
	}
	inv.Status = Status(status)
	inv.PaidAt = paidAt
	if inv.Amount, err = decimal.NewFromString(amount); err != nil {
		return Invoice{}, fmt.Errorf("scan invoice amount: %w", err)
	}
	if err := json.Unmarshal([]byte(lines), &inv.LineItems); err != nil {
		return Invoice{}, fmt.Errorf("scan invoice lines: %w", err)
	}
	inv.Services = nonNil(inv.Services)
	return inv, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
