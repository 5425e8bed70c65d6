package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brightnest/cleanops/internal/platform/db"
	"github.com/brightnest/cleanops/internal/shared"
)

type pgRepository struct {
	db db.DBTX
}

// NewRepository returns a PostgreSQL backed client repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{db: pool}
}

const clientColumns = `id, name, email, phone, address, contact_preference, hourly_rate::text,
	billing_frequency, auto_send, send_channels, net_days, tags, lifetime_value::text,
	status, notes, created_at, updated_at`

func (r *pgRepository) Create(ctx context.Context, c Client) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO clients (id, name, email, phone, address, contact_preference, hourly_rate,
			billing_frequency, auto_send, send_channels, net_days, tags, lifetime_value,
			status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8, $9, $10, $11, $12,
			$13::text::numeric, $14, $15, $16, $17)`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, string(c.ContactPreference), c.HourlyRate.String(),
		string(c.InvoicePreferences.BillingFrequency), c.InvoicePreferences.AutoSend,
		channelStrings(c.InvoicePreferences.SendChannels), c.InvoicePreferences.NetDays, nonNil(c.Tags),
		c.LifetimeValue.String(), string(c.Status), c.Notes, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("client %s: %w", c.ID, shared.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (r *pgRepository) Get(ctx context.Context, id string) (*Client, error) {
	row := r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *pgRepository) Update(ctx context.Context, c Client) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE clients SET name = $2, email = $3, phone = $4, address = $5, contact_preference = $6,
			hourly_rate = $7::text::numeric, billing_frequency = $8, auto_send = $9, send_channels = $10,
			net_days = $11, tags = $12, status = $13, notes = $14, updated_at = $15
		WHERE id = $1`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, string(c.ContactPreference), c.HourlyRate.String(),
		string(c.InvoicePreferences.BillingFrequency), c.InvoicePreferences.AutoSend,
		channelStrings(c.InvoicePreferences.SendChannels), c.InvoicePreferences.NetDays, nonNil(c.Tags),
		string(c.Status), c.Notes, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Client, error) {
	var conditions []string
	var args []any
	argPos := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(filter.Status))
		argPos++
	}
	if filter.BillingFrequency != "" {
		conditions = append(conditions, fmt.Sprintf("billing_frequency = $%d", argPos))
		args = append(args, string(filter.BillingFrequency))
		argPos++
	}
	if tag := normalizeTag(filter.Tag); tag != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", argPos))
		args = append(args, tag)
		argPos++
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+q+"%")
	}

	query := `SELECT ` + clientColumns + ` FROM clients`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY lower(name), id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *pgRepository) AddLifetimeValue(ctx context.Context, id string, amount decimal.Decimal) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients SET lifetime_value = lifetime_value + $2::text::numeric, updated_at = NOW() WHERE id = $1`,
		id, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanClient(row pgx.Row) (Client, error) {
	var (
		c                        Client
		contact, billing, status string
		rate, lifetime           string
		channels, tags           []string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &contact, &rate,
		&billing, &c.InvoicePreferences.AutoSend, &channels, &c.InvoicePreferences.NetDays, &tags, &lifetime,
		&status, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Client{}, err
	}
	c.ContactPreference = ContactPreference(contact)
	c.InvoicePreferences.BillingFrequency = BillingFrequency(billing)
	c.Status = Status(status)
	c.Tags = nonNil(tags)
	c.InvoicePreferences.SendChannels = make([]Channel, 0, len(channels))
	for _, ch := range channels {
		c.InvoicePreferences.SendChannels = append(c.InvoicePreferences.SendChannels, Channel(ch))
	}
	if c.HourlyRate, err = decimal.NewFromString(rate); err != nil {
		return Client{}, fmt.Errorf("scan hourly_rate: %w", err)
	}
	if c.LifetimeValue, err = decimal.NewFromString(lifetime); err != nil {
		return Client{}, fmt.Errorf("scan lifetime_value: %w", err)
	}
	return c, nil
}

func channelStrings(in []Channel) []string {
	out := make([]string, 0, len(in))
	for _, ch := range in {
		out = append(out, string(ch))
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
