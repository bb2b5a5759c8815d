package coverage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) SetCoverage(ctx context.Context, c *Coverage) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO store_zip_coverage (id, store_id, zip, delivery_fee, min_order_value, sla_minutes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (store_id, zip)
		DO UPDATE SET delivery_fee = EXCLUDED.delivery_fee,
			min_order_value = EXCLUDED.min_order_value,
			sla_minutes = EXCLUDED.sla_minutes,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		c.ID, c.StoreID, c.Zip, c.DeliveryFee, c.MinOrderValue, c.SLAMinutes, c.Active, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to upsert coverage: %w", err)
	}
	return nil
}

func (r *postgresRepository) Deactivate(ctx context.Context, storeID uuid.UUID, zip string) error {
	query := `UPDATE store_zip_coverage SET active = false, updated_at = $1 WHERE store_id = $2 AND zip = $3`
	cmdTag, err := r.db.Exec(ctx, query, time.Now().UTC(), storeID, zip)
	if err != nil {
		return fmt.Errorf("repository: failed to deactivate coverage: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCoverageNotFound
	}
	return nil
}

func (r *postgresRepository) ActiveByZip(ctx context.Context, zip string) ([]Coverage, error) {
	query := `
		SELECT id, store_id, zip, delivery_fee, min_order_value, sla_minutes, active, created_at, updated_at
		FROM store_zip_coverage
		WHERE zip = $1 AND active = true
	`
	rows, err := r.db.Query(ctx, query, zip)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query coverage for zip %s: %w", zip, err)
	}
	defer rows.Close()

	coverages := make([]Coverage, 0)
	for rows.Next() {
		var c Coverage
		if err := rows.Scan(&c.ID, &c.StoreID, &c.Zip, &c.DeliveryFee, &c.MinOrderValue, &c.SLAMinutes, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan coverage row: %w", err)
		}
		coverages = append(coverages, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating coverage rows: %w", err)
	}
	return coverages, nil
}

func (r *postgresRepository) ActiveByStoreZip(ctx context.Context, storeID uuid.UUID, zip string) (*Coverage, error) {
	query := `
		SELECT id, store_id, zip, delivery_fee, min_order_value, sla_minutes, active, created_at, updated_at
		FROM store_zip_coverage
		WHERE store_id = $1 AND zip = $2 AND active = true
	`
	var c Coverage
	err := r.db.QueryRow(ctx, query, storeID, zip).Scan(
		&c.ID, &c.StoreID, &c.Zip, &c.DeliveryFee, &c.MinOrderValue, &c.SLAMinutes, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCoverageNotFound
		}
		return nil, fmt.Errorf("repository: failed to select coverage for store %s zip %s: %w", storeID, zip, err)
	}
	return &c, nil
}
