package cart

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

func (r *postgresRepository) ActiveCart(ctx context.Context, customerID, storeID uuid.UUID) (*Cart, error) {
	query := `
		SELECT id, customer_id, store_id, zip, active, created_at, updated_at
		FROM carts
		WHERE customer_id = $1 AND store_id = $2 AND active = true
	`
	var c Cart
	err := r.db.QueryRow(ctx, query, customerID, storeID).Scan(&c.ID, &c.CustomerID, &c.StoreID, &c.Zip, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("repository: failed to select active cart: %w", err)
	}
	return &c, nil
}

func (r *postgresRepository) GetCart(ctx context.Context, id uuid.UUID) (*Cart, error) {
	query := `
		SELECT id, customer_id, store_id, zip, active, created_at, updated_at
		FROM carts
		WHERE id = $1
	`
	var c Cart
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.CustomerID, &c.StoreID, &c.Zip, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart %s: %w", id, err)
	}
	return &c, nil
}

func (r *postgresRepository) CreateCart(ctx context.Context, c *Cart) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	query := `
		INSERT INTO carts (id, customer_id, store_id, zip, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, c.ID, c.CustomerID, c.StoreID, c.Zip, c.Active, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert cart: %w", err)
	}
	return nil
}

func (r *postgresRepository) DeactivateCart(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `UPDATE carts SET active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository: failed to deactivate cart %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *postgresRepository) Items(ctx context.Context, cartID uuid.UUID) ([]Item, error) {
	query := `
		SELECT id, cart_id, store_product_id, product_id, qty, unit_price, added_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY added_at
	`
	rows, err := r.db.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CartID, &it.StoreProductID, &it.ProductID, &it.Qty, &it.UnitPrice, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart items: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) ItemByProduct(ctx context.Context, cartID, storeProductID uuid.UUID) (*Item, error) {
	query := `
		SELECT id, cart_id, store_product_id, product_id, qty, unit_price, added_at
		FROM cart_items
		WHERE cart_id = $1 AND store_product_id = $2
	`
	var it Item
	err := r.db.QueryRow(ctx, query, cartID, storeProductID).Scan(&it.ID, &it.CartID, &it.StoreProductID, &it.ProductID, &it.Qty, &it.UnitPrice, &it.AddedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart item: %w", err)
	}
	return &it, nil
}

func (r *postgresRepository) AddItem(ctx context.Context, it *Item) error {
	query := `
		INSERT INTO cart_items (id, cart_id, store_product_id, product_id, qty, unit_price, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, it.ID, it.CartID, it.StoreProductID, it.ProductID, it.Qty, it.UnitPrice, it.AddedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert cart item: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpdateItemQty(ctx context.Context, itemID uuid.UUID, qty int) error {
	result, err := r.db.Exec(ctx, `UPDATE cart_items SET qty = $1 WHERE id = $2`, qty, itemID)
	if err != nil {
		return fmt.Errorf("repository: failed to update cart item %s: %w", itemID, err)
	}
	if result.RowsAffected() == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *postgresRepository) RemoveItem(ctx context.Context, itemID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart item %s: %w", itemID, err)
	}
	if result.RowsAffected() == 0 {
		return ErrCartItemNotFound
	}
	return nil
}
