package cart

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

type memoryRepository struct {
	mu    sync.RWMutex
	carts map[uuid.UUID]*Cart
	items map[uuid.UUID]*Item
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		carts: make(map[uuid.UUID]*Cart),
		items: make(map[uuid.UUID]*Item),
	}
}

func (r *memoryRepository) ActiveCart(_ context.Context, customerID, storeID uuid.UUID) (*Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.carts {
		if c.CustomerID == customerID && c.StoreID == storeID && c.Active {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrCartNotFound
}

func (r *memoryRepository) GetCart(_ context.Context, id uuid.UUID) (*Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[id]
	if !ok {
		return nil, ErrCartNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memoryRepository) CreateCart(_ context.Context, c *Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	r.carts[c.ID] = &cp
	return nil
}

func (r *memoryRepository) DeactivateCart(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[id]
	if !ok {
		return ErrCartNotFound
	}
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepository) Items(_ context.Context, cartID uuid.UUID) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Item, 0)
	for _, it := range r.items {
		if it.CartID == cartID {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (r *memoryRepository) ItemByProduct(_ context.Context, cartID, storeProductID uuid.UUID) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, it := range r.items {
		if it.CartID == cartID && it.StoreProductID == storeProductID {
			cp := *it
			return &cp, nil
		}
	}
	return nil, ErrCartItemNotFound
}

func (r *memoryRepository) AddItem(_ context.Context, it *Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *it
	r.items[it.ID] = &cp
	return nil
}

func (r *memoryRepository) UpdateItemQty(_ context.Context, itemID uuid.UUID, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[itemID]
	if !ok {
		return ErrCartItemNotFound
	}
	it.Qty = qty
	return nil
}

func (r *memoryRepository) RemoveItem(_ context.Context, itemID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[itemID]; !ok {
		return ErrCartItemNotFound
	}
	delete(r.items, itemID)
	return nil
}
