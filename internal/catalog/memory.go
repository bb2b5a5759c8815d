package catalog

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

type storeProductKey struct {
	storeID   uuid.UUID
	productID uuid.UUID
}

type memoryRepository struct {
	mu            sync.RWMutex
	categories    map[uuid.UUID]*Category
	products      map[uuid.UUID]*Product
	storeProducts map[uuid.UUID]*StoreProduct
	byPair        map[storeProductKey]uuid.UUID
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		categories:    make(map[uuid.UUID]*Category),
		products:      make(map[uuid.UUID]*Product),
		storeProducts: make(map[uuid.UUID]*StoreProduct),
		byPair:        make(map[storeProductKey]uuid.UUID),
	}
}

func (r *memoryRepository) CreateCategory(_ context.Context, c *Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.CreatedAt = time.Now().UTC()
	cp := *c
	r.categories[c.ID] = &cp
	return nil
}

func (r *memoryRepository) ListCategories(_ context.Context) ([]Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Category, 0, len(r.categories))
	for _, c := range r.categories {
		if c.Active {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *memoryRepository) CreateProduct(_ context.Context, p *Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.CreatedAt = time.Now().UTC()
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *memoryRepository) GetProduct(_ context.Context, id uuid.UUID) (*Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepository) UpsertStoreProduct(_ context.Context, sp *StoreProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := storeProductKey{sp.StoreID, sp.ProductID}
	now := time.Now().UTC()
	if existingID, ok := r.byPair[key]; ok {
		existing := r.storeProducts[existingID]
		existing.Price = sp.Price
		existing.Hidden = sp.Hidden
		existing.UpdatedAt = now
		*sp = *existing
		return nil
	}

	sp.CreatedAt = now
	sp.UpdatedAt = now
	cp := *sp
	r.storeProducts[sp.ID] = &cp
	r.byPair[key] = sp.ID
	return nil
}

func (r *memoryRepository) GetStoreProduct(_ context.Context, id uuid.UUID) (*StoreProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.storeProducts[id]
	if !ok {
		return nil, ErrStoreProductNotFound
	}
	cp := *sp
	return &cp, nil
}

func (r *memoryRepository) listByStore(_ context.Context, storeID uuid.UUID) ([]listedProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listed := make([]listedProduct, 0)
	for _, sp := range r.storeProducts {
		if sp.StoreID != storeID {
			continue
		}
		p, ok := r.products[sp.ProductID]
		if !ok || !p.Active {
			continue
		}
		c, ok := r.categories[p.CategoryID]
		if !ok || !c.Active {
			continue
		}
		listed = append(listed, listedProduct{
			StoreProductID: sp.ID,
			StoreID:        sp.StoreID,
			ProductID:      sp.ProductID,
			Name:           p.Name,
			CategoryID:     c.ID,
			CategoryName:   c.Name,
			CategoryOrder:  c.DisplayOrder,
			Price:          sp.Price,
			Hidden:         sp.Hidden,
			Approved:       p.Approved,
		})
	}
	sort.Slice(listed, func(i, j int) bool {
		a, b := listed[i], listed[j]
		if a.CategoryOrder != b.CategoryOrder {
			return a.CategoryOrder < b.CategoryOrder
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return bytes.Compare(a.ProductID.Bytes(), b.ProductID.Bytes()) < 0
	})
	return listed, nil
}
