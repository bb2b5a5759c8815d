package catalog

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

func (r *postgresRepository) CreateCategory(ctx context.Context, c *Category) error {
	c.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO categories (id, name, slug, display_order, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, c.ID, c.Name, c.Slug, c.DisplayOrder, c.Active, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert category: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListCategories(ctx context.Context) ([]Category, error) {
	query := `
		SELECT id, name, slug, display_order, active, created_at
		FROM categories
		WHERE active = true
		ORDER BY display_order, name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.DisplayOrder, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating categories: %w", err)
	}
	return categories, nil
}

func (r *postgresRepository) CreateProduct(ctx context.Context, p *Product) error {
	p.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO products (id, category_id, name, sku, approved, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.CategoryID, p.Name, p.SKU, p.Approved, p.Active, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert product: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `
		SELECT id, category_id, name, sku, approved, active, created_at
		FROM products
		WHERE id = $1
	`
	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.CategoryID, &p.Name, &p.SKU, &p.Approved, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product %s: %w", id, err)
	}
	return &p, nil
}

func (r *postgresRepository) UpsertStoreProduct(ctx context.Context, sp *StoreProduct) error {
	now := time.Now().UTC()
	sp.CreatedAt = now
	sp.UpdatedAt = now
	query := `
		INSERT INTO store_products (id, store_id, product_id, price, hidden, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (store_id, product_id)
		DO UPDATE SET price = EXCLUDED.price, hidden = EXCLUDED.hidden, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query, sp.ID, sp.StoreID, sp.ProductID, sp.Price, sp.Hidden, sp.CreatedAt, sp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to upsert store product: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetStoreProduct(ctx context.Context, id uuid.UUID) (*StoreProduct, error) {
	query := `
		SELECT id, store_id, product_id, price, hidden, created_at, updated_at
		FROM store_products
		WHERE id = $1
	`
	var sp StoreProduct
	err := r.db.QueryRow(ctx, query, id).Scan(&sp.ID, &sp.StoreID, &sp.ProductID, &sp.Price, &sp.Hidden, &sp.CreatedAt, &sp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStoreProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select store product %s: %w", id, err)
	}
	return &sp, nil
}

func (r *postgresRepository) listByStore(ctx context.Context, storeID uuid.UUID) ([]listedProduct, error) {
	query := `
		SELECT sp.id, sp.store_id, sp.product_id, p.name, c.id, c.name, c.display_order, sp.price, sp.hidden, p.approved
		FROM store_products sp
		JOIN products p ON p.id = sp.product_id AND p.active = true
		JOIN categories c ON c.id = p.category_id AND c.active = true
		WHERE sp.store_id = $1
		ORDER BY c.display_order, p.name, p.id
	`
	rows, err := r.db.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query store listing: %w", err)
	}
	defer rows.Close()

	listed := make([]listedProduct, 0)
	for rows.Next() {
		var lp listedProduct
		if err := rows.Scan(&lp.StoreProductID, &lp.StoreID, &lp.ProductID, &lp.Name,
			&lp.CategoryID, &lp.CategoryName, &lp.CategoryOrder, &lp.Price, &lp.Hidden, &lp.Approved); err != nil {
			return nil, fmt.Errorf("repository: failed to scan listing row: %w", err)
		}
		listed = append(listed, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating listing rows: %w", err)
	}
	return listed, nil
}
