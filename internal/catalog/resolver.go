package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/coverage"
)

// StoreResolver narrows a ZIP to the effectively-open stores covering it;
// implemented by coverage.Index.
type StoreResolver interface {
	ResolveStores(ctx context.Context, zip string) ([]coverage.ResolvedStore, error)
}

// StockReader reports purchasable quantity; implemented by inventory.Ledger.
type StockReader interface {
	Available(ctx context.Context, storeID, productID uuid.UUID) (int, error)
}

// ResolverConfig holds the listing policy knobs.
type ResolverConfig struct {
	// ShowOutOfStock lists sold-out items flagged as unavailable instead of
	// dropping them.
	ShowOutOfStock bool
	// Moderation excludes products that have not passed catalog approval.
	Moderation bool
}

// Resolver composes coverage, store availability and the inventory ledger
// into the purchasable product list for a (ZIP, store) pair. It holds no
// state of its own: every call reflects the inputs at that instant.
type Resolver struct {
	repo   Repository
	stores StoreResolver
	stock  StockReader
	cfg    ResolverConfig
}

func NewResolver(repo Repository, stores StoreResolver, stock StockReader, cfg ResolverConfig) *Resolver {
	return &Resolver{repo: repo, stores: stores, stock: stock, cfg: cfg}
}

// List returns the purchasable products for the ZIP, across all serving
// stores or scoped to one. Propagates coverage.ErrUnsupportedZip; a store
// that does not serve the ZIP (or is effectively closed) yields
// ErrStoreNotServing.
func (r *Resolver) List(ctx context.Context, zip string, storeID *uuid.UUID) ([]ProductView, error) {
	stores, err := r.stores.ResolveStores(ctx, zip)
	if err != nil {
		return nil, err
	}

	if storeID != nil {
		found := false
		for _, s := range stores {
			if s.StoreID == *storeID {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrStoreNotServing
		}
		stores = []coverage.ResolvedStore{{StoreID: *storeID}}
	}

	views := make([]ProductView, 0)
	for _, s := range stores {
		rows, err := r.repo.listByStore(ctx, s.StoreID)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to list products for store %s: %w", s.StoreID, err)
		}
		for _, row := range rows {
			if row.Hidden {
				continue
			}
			if r.cfg.Moderation && !row.Approved {
				continue
			}

			available, err := r.stock.Available(ctx, row.StoreID, row.ProductID)
			if err != nil {
				// A product listed without a ledger entry is not
				// purchasable; skip rather than fail the whole page.
				log.Debug().Err(err).Stringer("store_product_id", row.StoreProductID).Msg("catalog: no ledger entry for listed product")
				continue
			}
			if available <= 0 && !r.cfg.ShowOutOfStock {
				continue
			}

			views = append(views, ProductView{
				StoreProductID: row.StoreProductID,
				StoreID:        row.StoreID,
				ProductID:      row.ProductID,
				Name:           row.Name,
				CategoryID:     row.CategoryID,
				CategoryName:   row.CategoryName,
				Price:          row.Price,
				InStock:        available > 0,
				AvailableQty:   available,
			})
		}
	}
	return views, nil
}

// CreateCategory registers a new category; the set is open-ended by design.
func (r *Resolver) CreateCategory(ctx context.Context, c *Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return errors.New("catalog: category name is required")
	}
	if c.Slug == "" {
		c.Slug = slugify(c.Name)
	}
	if c.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("catalog: failed to generate category ID: %w", err)
		}
		c.ID = id
	}
	c.Active = true
	if err := r.repo.CreateCategory(ctx, c); err != nil {
		return fmt.Errorf("catalog: failed to create category: %w", err)
	}
	return nil
}

func (r *Resolver) ListCategories(ctx context.Context) ([]Category, error) {
	return r.repo.ListCategories(ctx)
}

func (r *Resolver) CreateProduct(ctx context.Context, p *Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.New("catalog: product name is required")
	}
	if p.CategoryID == uuid.Nil {
		return errors.New("catalog: category is required")
	}
	if p.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("catalog: failed to generate product ID: %w", err)
		}
		p.ID = id
	}
	p.Active = true
	if err := r.repo.CreateProduct(ctx, p); err != nil {
		return fmt.Errorf("catalog: failed to create product: %w", err)
	}
	return nil
}

// UpsertStoreProduct is the store-staff listing mutation.
func (r *Resolver) UpsertStoreProduct(ctx context.Context, sp *StoreProduct) error {
	if sp.Price < 0 {
		return errors.New("catalog: price must be non-negative")
	}
	if _, err := r.repo.GetProduct(ctx, sp.ProductID); err != nil {
		return err
	}
	if sp.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("catalog: failed to generate store product ID: %w", err)
		}
		sp.ID = id
	}
	if err := r.repo.UpsertStoreProduct(ctx, sp); err != nil {
		return fmt.Errorf("catalog: failed to upsert store product: %w", err)
	}
	return nil
}

func (r *Resolver) GetStoreProduct(ctx context.Context, id uuid.UUID) (*StoreProduct, error) {
	return r.repo.GetStoreProduct(ctx, id)
}

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, s)
	return strings.Trim(s, "-")
}
