package order

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

const orderColumns = `id, number, customer_id, store_id, zip, slot_id, agent_id, status, address,
	drop_lat, drop_lng, subtotal, delivery_fee, tax, discount, total, payment_token,
	cancel_reason, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &o.StoreID, &o.Zip, &o.SlotID, &o.AgentID,
		&o.Status, &o.Address, &o.DropLat, &o.DropLng, &o.Subtotal, &o.DeliveryFee, &o.Tax,
		&o.Discount, &o.Total, &o.PaymentToken, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to scan order: %w", err)
	}
	return &o, nil
}

func (r *postgresRepository) Create(ctx context.Context, o *Order, items []Item) error {
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertOrder := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = tx.Exec(ctx, insertOrder, o.ID, o.Number, o.CustomerID, o.StoreID, o.Zip, o.SlotID,
		o.AgentID, o.Status, o.Address, o.DropLat, o.DropLng, o.Subtotal, o.DeliveryFee, o.Tax,
		o.Discount, o.Total, o.PaymentToken, o.CancelReason, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	insertItem := `
		INSERT INTO order_items (id, order_id, store_product_id, product_id, name, qty, unit_price, reservation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, it := range items {
		if _, err := tx.Exec(ctx, insertItem, it.ID, it.OrderID, it.StoreProductID, it.ProductID,
			it.Name, it.Qty, it.UnitPrice, it.ReservationID); err != nil {
			return fmt.Errorf("repository: failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit order: %w", err)
	}
	return nil
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.db.QueryRow(ctx, query, id))
}

func (r *postgresRepository) Items(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	query := `
		SELECT id, order_id, store_product_id, product_id, name, qty, unit_price, reservation_id
		FROM order_items
		WHERE order_id = $1
	`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.StoreProductID, &it.ProductID, &it.Name,
			&it.Qty, &it.UnitPrice, &it.ReservationID); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}
	return orders, nil
}

func (r *postgresRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`
	return r.queryOrders(ctx, query, customerID)
}

func (r *postgresRepository) ListByStore(ctx context.Context, storeID uuid.UUID, status *Status) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + ` FROM orders
		WHERE store_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
	`
	return r.queryOrders(ctx, query, storeID, status)
}

// UpdateStatus is a conditional write: the stored status must still be the
// one the caller observed, otherwise nothing changes and the transition is
// reported invalid.
func (r *postgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, reason *string) error {
	query := `
		UPDATE orders
		SET status = $1, cancel_reason = COALESCE($2, cancel_reason), updated_at = $3
		WHERE id = $4 AND status = $5
	`
	result, err := r.db.Exec(ctx, query, to, reason, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s status: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *postgresRepository) SetAgent(ctx context.Context, id uuid.UUID, agentID *uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`UPDATE orders SET agent_id = $1, updated_at = $2 WHERE id = $3`,
		agentID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository: failed to set order %s agent: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) AppendHistory(ctx context.Context, h *HistoryEntry) error {
	query := `
		INSERT INTO order_status_history (id, order_id, from_status, to_status, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, h.ID, h.OrderID, h.FromStatus, h.ToStatus, h.Actor, h.Reason, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert history entry: %w", err)
	}
	return nil
}

func (r *postgresRepository) History(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error) {
	query := `
		SELECT id, order_id, from_status, to_status, actor, reason, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.Actor, &h.Reason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan history entry: %w", err)
		}
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating history: %w", err)
	}
	return entries, nil
}
