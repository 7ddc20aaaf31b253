package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const listingColumns = `id, provider_id, name, category, description, base_price, currency,
	duration_minutes, active, created_at, updated_at`

func scanListing(row pgx.Row) (*Listing, error) {
	var l Listing
	err := row.Scan(
		&l.ID,
		&l.ProviderID,
		&l.Name,
		&l.Category,
		&l.Description,
		&l.BasePrice,
		&l.Currency,
		&l.DurationMinutes,
		&l.Active,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *PgRepository) Create(ctx context.Context, l *Listing) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (`+listingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, l.ID, l.ProviderID, l.Name, l.Category, l.Description, l.BasePrice, l.Currency,
		l.DurationMinutes, l.Active, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Listing, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM services WHERE id = $1`, id)
	return scanListing(row)
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Listing, error) {
	var (
		where []string
		args  []any
	)
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		where = append(where, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "active")
	}

	q := `SELECT ` + listingColumns + ` FROM services`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var result []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) Update(ctx context.Context, l *Listing) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE services
		SET name = $2, category = $3, description = $4, base_price = $5,
		    duration_minutes = $6, active = $7, updated_at = $8
		WHERE id = $1
	`, l.ID, l.Name, l.Category, l.Description, l.BasePrice, l.DurationMinutes, l.Active, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}
