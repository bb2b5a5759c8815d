package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

type memoryRepository struct {
	mu      sync.RWMutex
	orders  map[uuid.UUID]*Order
	items   map[uuid.UUID][]Item
	history map[uuid.UUID][]HistoryEntry
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		orders:  make(map[uuid.UUID]*Order),
		items:   make(map[uuid.UUID][]Item),
		history: make(map[uuid.UUID][]HistoryEntry),
	}
}

func (r *memoryRepository) Create(_ context.Context, o *Order, items []Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	cp := *o
	r.orders[o.ID] = &cp
	r.items[o.ID] = append([]Item(nil), items...)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memoryRepository) Items(_ context.Context, orderID uuid.UUID) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.orders[orderID]; !ok {
		return nil, ErrOrderNotFound
	}
	return append([]Item(nil), r.items[orderID]...), nil
}

func (r *memoryRepository) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) ListByStore(_ context.Context, storeID uuid.UUID, status *Status) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range r.orders {
		if o.StoreID != storeID {
			continue
		}
		if status != nil && o.Status != *status {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != from {
		return ErrInvalidTransition
	}
	o.Status = to
	if reason != nil {
		o.CancelReason = reason
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepository) SetAgent(_ context.Context, id uuid.UUID, agentID *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.AgentID = agentID
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepository) AppendHistory(_ context.Context, h *HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[h.OrderID] = append(r.history[h.OrderID], *h)
	return nil
}

func (r *memoryRepository) History(_ context.Context, orderID uuid.UUID) ([]HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]HistoryEntry(nil), r.history[orderID]...), nil
}
