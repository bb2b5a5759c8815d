package slot

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

func (r *postgresRepository) Create(ctx context.Context, s *Slot) error {
	s.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO delivery_slots (id, store_id, zip, window_start, window_end, capacity, booked_count, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, s.ID, s.StoreID, s.Zip, s.WindowStart, s.WindowEnd, s.Capacity, s.Active, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert slot: %w", err)
	}
	return nil
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (*Slot, error) {
	query := `
		SELECT id, store_id, zip, window_start, window_end, capacity, booked_count, active, created_at
		FROM delivery_slots
		WHERE id = $1
	`
	var s Slot
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.StoreID, &s.Zip, &s.WindowStart, &s.WindowEnd,
		&s.Capacity, &s.BookedCount, &s.Active, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("repository: failed to select slot %s: %w", id, err)
	}
	return &s, nil
}

func (r *postgresRepository) ListOpen(ctx context.Context, storeID uuid.UUID, zip string, after time.Time) ([]Slot, error) {
	query := `
		SELECT id, store_id, zip, window_start, window_end, capacity, booked_count, active, created_at
		FROM delivery_slots
		WHERE store_id = $1 AND zip = $2 AND active = true
		  AND window_start > $3 AND booked_count < capacity
		ORDER BY window_start
	`
	rows, err := r.db.Query(ctx, query, storeID, zip, after)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query open slots: %w", err)
	}
	defer rows.Close()

	slots := make([]Slot, 0)
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.StoreID, &s.Zip, &s.WindowStart, &s.WindowEnd,
			&s.Capacity, &s.BookedCount, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating slots: %w", err)
	}
	return slots, nil
}

// Book relies on a conditional single-statement update so two concurrent
// bookings of the last seat cannot both succeed.
func (r *postgresRepository) Book(ctx context.Context, id uuid.UUID) (*Slot, error) {
	query := `
		UPDATE delivery_slots
		SET booked_count = booked_count + 1
		WHERE id = $1 AND active = true AND booked_count < capacity
		RETURNING id, store_id, zip, window_start, window_end, capacity, booked_count, active, created_at
	`
	var s Slot
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.StoreID, &s.Zip, &s.WindowStart, &s.WindowEnd,
		&s.Capacity, &s.BookedCount, &s.Active, &s.CreatedAt)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("repository: failed to book slot %s: %w", id, err)
	}

	// Disambiguate: missing, inactive, or full.
	existing, getErr := r.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if !existing.Active {
		return nil, ErrSlotClosed
	}
	return nil, ErrSlotFull
}

func (r *postgresRepository) Release(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE delivery_slots
		SET booked_count = booked_count - 1
		WHERE id = $1 AND booked_count > 0
	`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("repository: failed to release slot %s: %w", id, err)
	}
	return nil
}

func (r *postgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.Exec(ctx, `UPDATE delivery_slots SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("repository: failed to update slot %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}
