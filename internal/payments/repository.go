package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/platform/db"
)

type pgRepository struct {
	db db.DBTX
}

// NewRepository returns a PostgreSQL backed payment repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{db: pool}
}

func (r *pgRepository) Create(ctx context.Context, p Payment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (id, invoice_id, amount, method, reference, notes, received_by, received_at, partial, created_at)
		VALUES ($1, $2, $3::text::numeric, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.InvoiceID, p.Amount.String(), string(p.Method), p.Reference, p.Notes, p.ReceivedBy,
		p.ReceivedAt, p.Partial, p.CreatedAt,
	)
	return err
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Payment, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.InvoiceID != "" {
		conditions = append(conditions, fmt.Sprintf("invoice_id = $%d", argPos))
		args = append(args, filter.InvoiceID)
		argPos++
	}
	if filter.Method != "" {
		conditions = append(conditions, fmt.Sprintf("method = $%d", argPos))
		args = append(args, string(filter.Method))
		argPos++
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("received_at >= $%d", argPos))
		args = append(args, filter.From)
		argPos++
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("received_at < $%d", argPos))
		args = append(args, filter.To)
	}

	query := `SELECT id, invoice_id, amount::text, method, reference, notes, received_by, received_at, partial, created_at
		FROM payments`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY received_at, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var (
			p              Payment
			amount, method string
		)
		if err := rows.Scan(&p.ID, &p.InvoiceID, &amount, &method, &p.Reference, &p.Notes, &p.ReceivedBy,
			&p.ReceivedAt, &p.Partial, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Method = Method(method)
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("scan payment amount: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
