package catalog

import (
	"context"

	"github.com/gofrs/uuid"
)

type Repository interface {
	CreateCategory(ctx context.Context, c *Category) error
	ListCategories(ctx context.Context) ([]Category, error)

	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)

	UpsertStoreProduct(ctx context.Context, sp *StoreProduct) error
	GetStoreProduct(ctx context.Context, id uuid.UUID) (*StoreProduct, error)

	// listByStore returns the store's listing joined with product and
	// category data, ordered by category display order, then product name,
	// then product ID. This is the stable ordering the resolver exposes.
	listByStore(ctx context.Context, storeID uuid.UUID) ([]listedProduct, error)
}
