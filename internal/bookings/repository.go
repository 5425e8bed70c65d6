package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightnest/cleanops/internal/platform/db"
	"github.com/brightnest/cleanops/internal/shared"
	"github.com/brightnest/cleanops/internal/timeparse"
)

type pgRepository struct {
	db db.DBTX
}

// NewRepository returns a PostgreSQL backed booking repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{db: pool}
}

const bookingColumns = `id, client_id, COALESCE(quote_id, ''), service, scheduled_on, duration, frequency,
	status, notes, completed_at, created_at, updated_at`

func (r *pgRepository) Create(ctx context.Context, b Booking) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bookings (id, client_id, quote_id, service, scheduled_on, duration, frequency,
			status, notes, completed_at, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.ClientID, b.QuoteID, b.Service, b.Date, b.Duration, string(b.Frequency),
		string(b.Status), b.Notes, b.CompletedAt, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil && db.IsUniqueViolation(err) {
		return fmt.Errorf("booking %s: %w", b.ID, shared.ErrDuplicate)
	}
	return err
}

func (r *pgRepository) Get(ctx context.Context, id string) (*Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *pgRepository) Update(ctx context.Context, b Booking, from Status) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings SET quote_id = NULLIF($2, ''), service = $3, scheduled_on = $4, duration = $5,
			frequency = $6, status = $7, notes = $8, completed_at = $9, updated_at = $10
		WHERE id = $1 AND status = $11`,
		b.ID, b.QuoteID, b.Service, b.Date, b.Duration, string(b.Frequency), string(b.Status),
		b.Notes, b.CompletedAt, b.UpdatedAt, string(from),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.UpdateMiss(ctx, r.db, "bookings", b.ID, ErrNotFound, ErrStale)
	}
	return nil
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Booking, error) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.ClientID != "" {
		add("client_id = $%d", filter.ClientID)
	}
	if !filter.From.IsZero() {
		add("scheduled_on >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("scheduled_on <= $%d", filter.To)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add("service ILIKE $%d", "%"+s+"%")
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY scheduled_on, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (Booking, error) {
	var (
		b                 Booking
		frequency, status string
	)
	err := row.Scan(&b.ID, &b.ClientID, &b.QuoteID, &b.Service, &b.Date, &b.Duration, &frequency,
		&status, &b.Notes, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Booking{}, err
	}
	b.Frequency = shared.Frequency(frequency)
	b.Status = Status(status)
	if b.Hours, err = timeparse.ParseHours(b.Duration); err != nil {
		return Booking{}, fmt.Errorf("scan booking %s: %w", b.ID, err)
	}
	return b, nil
}
