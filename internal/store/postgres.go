package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateStore(ctx context.Context, s *Store) error {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	query := `
		INSERT INTO stores (id, code, name, owner_id, description, phone, email,
			delivery_fee, min_order_value, free_delivery_threshold, is_24_hours,
			force_closed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID, s.Code, s.Name, s.OwnerID, s.Description, s.Phone, s.Email,
		s.DeliveryFee, s.MinOrderValue, s.FreeDeliveryThreshold, s.Is24Hours,
		s.ForceClosed, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrStoreCodeTaken
		}
		return fmt.Errorf("repository: failed to insert store: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetStore(ctx context.Context, id uuid.UUID) (*Store, error) {
	query := `
		SELECT id, code, name, owner_id, description, phone, email,
			delivery_fee, min_order_value, free_delivery_threshold, is_24_hours,
			force_closed, created_at, updated_at
		FROM stores
		WHERE id = $1
	`
	var s Store
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Code, &s.Name, &s.OwnerID, &s.Description, &s.Phone, &s.Email,
		&s.DeliveryFee, &s.MinOrderValue, &s.FreeDeliveryThreshold, &s.Is24Hours,
		&s.ForceClosed, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("repository: failed to select store %s: %w", id, err)
	}
	return &s, nil
}

func (r *postgresRepository) ListStores(ctx context.Context) ([]Store, error) {
	query := `
		SELECT id, code, name, owner_id, description, phone, email,
			delivery_fee, min_order_value, free_delivery_threshold, is_24_hours,
			force_closed, created_at, updated_at
		FROM stores
		ORDER BY code
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query stores: %w", err)
	}
	defer rows.Close()

	stores := make([]Store, 0)
	for rows.Next() {
		var s Store
		if err := rows.Scan(
			&s.ID, &s.Code, &s.Name, &s.OwnerID, &s.Description, &s.Phone, &s.Email,
			&s.DeliveryFee, &s.MinOrderValue, &s.FreeDeliveryThreshold, &s.Is24Hours,
			&s.ForceClosed, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("repository: failed to scan store: %w", err)
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating stores: %w", err)
	}
	return stores, nil
}

func (r *postgresRepository) SetForceClosed(ctx context.Context, id uuid.UUID, closed bool) error {
	query := `UPDATE stores SET force_closed = $1, updated_at = $2 WHERE id = $3`
	cmdTag, err := r.db.Exec(ctx, query, closed, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository: failed to set force_closed for store %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (r *postgresRepository) HoursByStore(ctx context.Context, storeID uuid.UUID) ([]Hours, error) {
	query := `
		SELECT store_id, weekday, opens_at, closes_at, closed
		FROM store_hours
		WHERE store_id = $1
		ORDER BY weekday
	`
	rows, err := r.db.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query hours for store %s: %w", storeID, err)
	}
	defer rows.Close()

	hours := make([]Hours, 0, 7)
	for rows.Next() {
		var h Hours
		var weekday int
		if err := rows.Scan(&h.StoreID, &weekday, &h.OpensAt, &h.ClosesAt, &h.Closed); err != nil {
			return nil, fmt.Errorf("repository: failed to scan hours row: %w", err)
		}
		h.Weekday = time.Weekday(weekday)
		hours = append(hours, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating hours: %w", err)
	}
	return hours, nil
}

func (r *postgresRepository) UpsertHours(ctx context.Context, h Hours) error {
	query := `
		INSERT INTO store_hours (store_id, weekday, opens_at, closes_at, closed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (store_id, weekday)
		DO UPDATE SET opens_at = EXCLUDED.opens_at, closes_at = EXCLUDED.closes_at, closed = EXCLUDED.closed
	`
	_, err := r.db.Exec(ctx, query, h.StoreID, int(h.Weekday), h.OpensAt, h.ClosesAt, h.Closed)
	if err != nil {
		return fmt.Errorf("repository: failed to upsert hours: %w", err)
	}
	return nil
}

func (r *postgresRepository) CreateClosureRequest(ctx context.Context, req *ClosureRequest) error {
	req.CreatedAt = time.Now().UTC()

	// A partial unique index on (store_id) WHERE status = 'PENDING' enforces
	// the one-pending-request-per-store invariant under concurrency.
	query := `
		INSERT INTO store_closure_requests (id, store_id, requested_by, reason, requested_until, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		req.ID, req.StoreID, req.RequestedBy, req.Reason, req.RequestedUntil, string(req.Status), req.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrRequestAlreadyPending
		}
		return fmt.Errorf("repository: failed to insert closure request: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetClosureRequest(ctx context.Context, id uuid.UUID) (*ClosureRequest, error) {
	query := `
		SELECT id, store_id, requested_by, reason, requested_until, status, decided_by, decided_at, lifted_at, created_at
		FROM store_closure_requests
		WHERE id = $1
	`
	var req ClosureRequest
	var status string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.StoreID, &req.RequestedBy, &req.Reason, &req.RequestedUntil,
		&status, &req.DecidedBy, &req.DecidedAt, &req.LiftedAt, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("repository: failed to select closure request %s: %w", id, err)
	}
	req.Status = ClosureStatus(status)
	return &req, nil
}

func (r *postgresRepository) DecideClosureRequest(ctx context.Context, id uuid.UUID, decision ClosureStatus, adminID uuid.UUID, at time.Time) error {
	// The status guard makes the decision write-once: a second decide loses
	// the race and reports the conflict instead of overwriting the audit.
	query := `
		UPDATE store_closure_requests
		SET status = $1, decided_by = $2, decided_at = $3
		WHERE id = $4 AND status = $5
	`
	cmdTag, err := r.db.Exec(ctx, query, string(decision), adminID, at, id, string(ClosurePending))
	if err != nil {
		return fmt.Errorf("repository: failed to decide closure request %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetClosureRequest(ctx, id); err != nil {
			return err
		}
		return ErrRequestAlreadyDecided
	}
	return nil
}

func (r *postgresRepository) ActiveApprovedClosure(ctx context.Context, storeID uuid.UUID, at time.Time) (*ClosureRequest, error) {
	query := `
		SELECT id, store_id, requested_by, reason, requested_until, status, decided_by, decided_at, lifted_at, created_at
		FROM store_closure_requests
		WHERE store_id = $1 AND status = $2 AND requested_until > $3 AND (lifted_at IS NULL OR lifted_at > $3)
		ORDER BY decided_at DESC
		LIMIT 1
	`
	var req ClosureRequest
	var status string
	err := r.db.QueryRow(ctx, query, storeID, string(ClosureApproved), at).Scan(
		&req.ID, &req.StoreID, &req.RequestedBy, &req.Reason, &req.RequestedUntil,
		&status, &req.DecidedBy, &req.DecidedAt, &req.LiftedAt, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: failed to select approved closure for store %s: %w", storeID, err)
	}
	req.Status = ClosureStatus(status)
	return &req, nil
}

func (r *postgresRepository) PendingClosure(ctx context.Context, storeID uuid.UUID) (*ClosureRequest, error) {
	query := `
		SELECT id, store_id, requested_by, reason, requested_until, status, decided_by, decided_at, lifted_at, created_at
		FROM store_closure_requests
		WHERE store_id = $1 AND status = $2
	`
	var req ClosureRequest
	var status string
	err := r.db.QueryRow(ctx, query, storeID, string(ClosurePending)).Scan(
		&req.ID, &req.StoreID, &req.RequestedBy, &req.Reason, &req.RequestedUntil,
		&status, &req.DecidedBy, &req.DecidedAt, &req.LiftedAt, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: failed to select pending closure for store %s: %w", storeID, err)
	}
	req.Status = ClosureStatus(status)
	return &req, nil
}

func (r *postgresRepository) LiftClosure(ctx context.Context, requestID uuid.UUID, at time.Time) error {
	query := `
		UPDATE store_closure_requests
		SET lifted_at = $1
		WHERE id = $2 AND status = $3 AND lifted_at IS NULL
	`
	cmdTag, err := r.db.Exec(ctx, query, at, requestID, string(ClosureApproved))
	if err != nil {
		return fmt.Errorf("repository: failed to lift closure %s: %w", requestID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}
