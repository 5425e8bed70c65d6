package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/platform/db"
	"github.com/brightnest/cleanops/internal/shared"
)

type pgRepository struct {
	db db.DBTX
}

// NewRepository returns a PostgreSQL backed quote repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{db: pool}
}

const quoteColumns = `id, client_id, client_name, client_email, client_phone, service, frequency,
	estimated_hours::text, hourly_rate::text, total_estimate::text, status, notes,
	sent_at, accepted_at, declined_at, expires_at, created_at, updated_at`

func (r *pgRepository) Create(ctx context.Context, q Quote) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO quotes (id, client_id, client_name, client_email, client_phone, service, frequency,
			estimated_hours, hourly_rate, total_estimate, status, notes,
			sent_at, accepted_at, declined_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9::text::numeric, $10::text::numeric,
			$11, $12, $13, $14, $15, $16, $17, $18)`,
		q.ID, q.ClientID, q.ClientName, q.ClientEmail, q.ClientPhone, q.Service, string(q.Frequency),
		q.EstimatedHours.String(), q.HourlyRate.String(), q.TotalEstimate.String(), string(q.Status), q.Notes,
		q.SentAt, q.AcceptedAt, q.DeclinedAt, q.ExpiresAt, q.CreatedAt, q.UpdatedAt,
	)
	if err != nil && db.IsUniqueViolation(err) {
		return fmt.Errorf("quote %s: %w", q.ID, shared.ErrDuplicate)
	}
	return err
}

func (r *pgRepository) Get(ctx context.Context, id string) (*Quote, error) {
	q, err := scanQuote(r.db.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *pgRepository) Update(ctx context.Context, q Quote, from Status) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotes SET service = $2, frequency = $3, estimated_hours = $4::text::numeric,
			hourly_rate = $5::text::numeric, total_estimate = $6::text::numeric, status = $7, notes = $8,
			sent_at = $9, accepted_at = $10, declined_at = $11, expires_at = $12, updated_at = $13
		WHERE id = $1 AND status = $14`,
		q.ID, q.Service, string(q.Frequency), q.EstimatedHours.String(), q.HourlyRate.String(),
		q.TotalEstimate.String(), string(q.Status), q.Notes,
		q.SentAt, q.AcceptedAt, q.DeclinedAt, q.ExpiresAt, q.UpdatedAt, string(from),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.UpdateMiss(ctx, r.db, "quotes", q.ID, ErrNotFound, ErrStale)
	}
	return nil
}

func (r *pgRepository) Delete(ctx context.Context, id string, from Status) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM quotes WHERE id = $1 AND status = $2`, id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.UpdateMiss(ctx, r.db, "quotes", id, ErrNotFound, ErrStale)
	}
	return nil
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Quote, error) {
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
	if s := strings.TrimSpace(filter.Search); s != "" {
		conditions = append(conditions, fmt.Sprintf("(client_name ILIKE $%d OR service ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+s+"%")
	}

	query := `SELECT ` + quoteColumns + ` FROM quotes`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuote(row pgx.Row) (Quote, error) {
	var (
		q                  Quote
		frequency, status  string
		hours, rate, total string
		sent, accepted     *time.Time
		declined, expires  *time.Time
	)
	err := row.Scan(&q.ID, &q.ClientID, &q.ClientName, &q.ClientEmail, &q.ClientPhone, &q.Service, &frequency,
		&hours, &rate, &total, &status, &q.Notes, &sent, &accepted, &declined, &expires, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return Quote{}, err
	}
	q.Frequency = shared.Frequency(frequency)
	q.Status = Status(status)
	q.SentAt, q.AcceptedAt, q.DeclinedAt, q.ExpiresAt = sent, accepted, declined, expires
	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{{&q.EstimatedHours, hours}, {&q.HourlyRate, rate}, {&q.TotalEstimate, total}} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return Quote{}, fmt.Errorf("scan quote amounts: %w", err)
		}
	}
	return q, nil
}
