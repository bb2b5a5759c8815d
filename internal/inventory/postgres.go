package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresRepository keeps the per-key critical sections in SQL: conditional
// updates guarded on available stock, with row locks on the reservation for
// the commit/release/expiry races.
type postgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) UpsertItem(ctx context.Context, item *Item) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var reserved int
	var frozen bool
	err = tx.QueryRow(ctx,
		`SELECT reserved_qty, frozen FROM inventory_items WHERE store_id = $1 AND product_id = $2 FOR UPDATE`,
		item.StoreID, item.ProductID,
	).Scan(&reserved, &frozen)

	now := time.Now().UTC()
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO inventory_items (store_id, product_id, stock_qty, reserved_qty, low_stock_threshold, max_per_order, frozen, updated_at)
			VALUES ($1, $2, $3, 0, $4, $5, false, $6)`,
			item.StoreID, item.ProductID, item.StockQty, item.LowStockThreshold, item.MaxPerOrder, now,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert inventory item: %w", err)
		}
	case err != nil:
		return fmt.Errorf("repository: failed to lock inventory item: %w", err)
	default:
		if frozen {
			return ErrItemFrozen
		}
		if item.StockQty < reserved {
			return ErrStockBelowReserved
		}
		_, err = tx.Exec(ctx, `
			UPDATE inventory_items
			SET stock_qty = $1, low_stock_threshold = $2, max_per_order = $3, updated_at = $4
			WHERE store_id = $5 AND product_id = $6`,
			item.StockQty, item.LowStockThreshold, item.MaxPerOrder, now, item.StoreID, item.ProductID,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to update inventory item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetItem(ctx context.Context, storeID, productID uuid.UUID) (*Item, error) {
	return getItem(ctx, r.db, storeID, productID)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getItem(ctx context.Context, q rowQuerier, storeID, productID uuid.UUID) (*Item, error) {
	var item Item
	err := q.QueryRow(ctx, `
		SELECT store_id, product_id, stock_qty, reserved_qty, low_stock_threshold, max_per_order, frozen, updated_at
		FROM inventory_items
		WHERE store_id = $1 AND product_id = $2`,
		storeID, productID,
	).Scan(&item.StoreID, &item.ProductID, &item.StockQty, &item.ReservedQty,
		&item.LowStockThreshold, &item.MaxPerOrder, &item.Frozen, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select inventory item: %w", err)
	}
	return &item, nil
}

func (r *postgresRepository) Reserve(ctx context.Context, res *Reservation) (*Item, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The availability guard and the increment are a single statement, so
	// two racing reserves can never both pass the check.
	var item Item
	err = tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET reserved_qty = reserved_qty + $1, updated_at = $2
		WHERE store_id = $3 AND product_id = $4
			AND frozen = false
			AND stock_qty - reserved_qty >= $1
		RETURNING store_id, product_id, stock_qty, reserved_qty, low_stock_threshold, max_per_order, frozen, updated_at`,
		res.Qty, time.Now().UTC(), res.StoreID, res.ProductID,
	).Scan(&item.StoreID, &item.ProductID, &item.StockQty, &item.ReservedQty,
		&item.LowStockThreshold, &item.MaxPerOrder, &item.Frozen, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, lookupErr := getItem(ctx, tx, res.StoreID, res.ProductID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing.Frozen {
				return nil, ErrItemFrozen
			}
			return nil, ErrInsufficientStock
		}
		return nil, fmt.Errorf("repository: failed to apply reservation hold: %w", err)
	}

	res.CreatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO stock_reservations (id, store_id, product_id, qty, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.ID, res.StoreID, res.ProductID, res.Qty, string(res.Status), res.ExpiresAt, res.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return &item, nil
}

func (r *postgresRepository) Commit(ctx context.Context, reservationID uuid.UUID) (*Reservation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case ReservationCommitted:
		// Idempotent: the decrement already happened.
		return res, tx.Commit(ctx)
	case ReservationReleased:
		return nil, ErrReservationExpired
	}

	var stock, reserved int
	err = tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET stock_qty = stock_qty - $1, reserved_qty = reserved_qty - $1, updated_at = $2
		WHERE store_id = $3 AND product_id = $4
		RETURNING stock_qty, reserved_qty`,
		res.Qty, time.Now().UTC(), res.StoreID, res.ProductID,
	).Scan(&stock, &reserved)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to apply commit decrement: %w", err)
	}

	if stock < 0 || reserved < 0 {
		// Should never happen while the reserve guard holds. Freeze the key
		// and persist the quarantine even though the commit itself fails.
		if _, err := tx.Exec(ctx,
			`UPDATE inventory_items SET frozen = true WHERE store_id = $1 AND product_id = $2`,
			res.StoreID, res.ProductID,
		); err != nil {
			return nil, fmt.Errorf("repository: failed to freeze inventory item: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("repository: failed to commit quarantine: %w", err)
		}
		return nil, &InvariantViolationError{
			StoreID:   res.StoreID,
			ProductID: res.ProductID,
			Detail:    fmt.Sprintf("negative ledger state after commit: stock=%d reserved=%d", stock, reserved),
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE stock_reservations SET status = $1 WHERE id = $2`,
		string(ReservationCommitted), reservationID,
	); err != nil {
		return nil, fmt.Errorf("repository: failed to mark reservation committed: %w", err)
	}
	res.Status = ReservationCommitted

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return res, nil
}

func (r *postgresRepository) Release(ctx context.Context, reservationID uuid.UUID) (*Reservation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != ReservationActive {
		// Release after commit (or a double release) is a no-op.
		return res, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE inventory_items
		SET reserved_qty = reserved_qty - $1, updated_at = $2
		WHERE store_id = $3 AND product_id = $4`,
		res.Qty, time.Now().UTC(), res.StoreID, res.ProductID,
	); err != nil {
		return nil, fmt.Errorf("repository: failed to return hold to stock: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE stock_reservations SET status = $1 WHERE id = $2`,
		string(ReservationReleased), reservationID,
	); err != nil {
		return nil, fmt.Errorf("repository: failed to mark reservation released: %w", err)
	}
	res.Status = ReservationReleased

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return res, nil
}

func (r *postgresRepository) GetReservation(ctx context.Context, reservationID uuid.UUID) (*Reservation, error) {
	var res Reservation
	var status string
	err := r.db.QueryRow(ctx, `
		SELECT id, store_id, product_id, qty, status, expires_at, created_at
		FROM stock_reservations
		WHERE id = $1`,
		reservationID,
	).Scan(&res.ID, &res.StoreID, &res.ProductID, &res.Qty, &status, &res.ExpiresAt, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("repository: failed to select reservation %s: %w", reservationID, err)
	}
	res.Status = ReservationStatus(status)
	return &res, nil
}

func (r *postgresRepository) ExpireDue(ctx context.Context, now time.Time) ([]Reservation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE stock_reservations
		SET status = $1
		WHERE status = $2 AND expires_at <= $3
		RETURNING id, store_id, product_id, qty, status, expires_at, created_at`,
		string(ReservationReleased), string(ReservationActive), now,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to expire reservations: %w", err)
	}

	expired := make([]Reservation, 0)
	for rows.Next() {
		var res Reservation
		var status string
		if err := rows.Scan(&res.ID, &res.StoreID, &res.ProductID, &res.Qty, &status, &res.ExpiresAt, &res.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("repository: failed to scan expired reservation: %w", err)
		}
		res.Status = ReservationStatus(status)
		expired = append(expired, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating expired reservations: %w", err)
	}

	for _, res := range expired {
		if _, err := tx.Exec(ctx, `
			UPDATE inventory_items
			SET reserved_qty = reserved_qty - $1, updated_at = $2
			WHERE store_id = $3 AND product_id = $4`,
			res.Qty, now, res.StoreID, res.ProductID,
		); err != nil {
			return nil, fmt.Errorf("repository: failed to return expired hold to stock: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return expired, nil
}

func lockReservation(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID) (*Reservation, error) {
	var res Reservation
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id, store_id, product_id, qty, status, expires_at, created_at
		FROM stock_reservations
		WHERE id = $1
		FOR UPDATE`,
		reservationID,
	).Scan(&res.ID, &res.StoreID, &res.ProductID, &res.Qty, &status, &res.ExpiresAt, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock reservation %s: %w", reservationID, err)
	}
	res.Status = ReservationStatus(status)
	return &res, nil
}
