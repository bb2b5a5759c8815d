package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

type itemKey struct {
	storeID   uuid.UUID
	productID uuid.UUID
}

// memItem carries its own lock: every mutation of the item or of one of its
// reservations runs under it, which is the in-memory equivalent of the SQL
// single-statement guards.
type memItem struct {
	mu   sync.Mutex
	item Item
	// reservations of this item, keyed by reservation ID; entries are
	// mutated only while mu is held.
	reservations map[uuid.UUID]*Reservation
}

type memoryRepository struct {
	mu    sync.RWMutex
	items map[itemKey]*memItem
	// reservation ID → owning item, for lookups without scanning.
	index map[uuid.UUID]*memItem
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		items: make(map[itemKey]*memItem),
		index: make(map[uuid.UUID]*memItem),
	}
}

func (r *memoryRepository) UpsertItem(_ context.Context, item *Item) error {
	r.mu.Lock()
	entry, ok := r.items[itemKey{item.StoreID, item.ProductID}]
	if !ok {
		entry = &memItem{reservations: make(map[uuid.UUID]*Reservation)}
		entry.item = Item{StoreID: item.StoreID, ProductID: item.ProductID}
		r.items[itemKey{item.StoreID, item.ProductID}] = entry
	}
	r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.item.Frozen {
		return ErrItemFrozen
	}
	if item.StockQty < entry.item.ReservedQty {
		return ErrStockBelowReserved
	}
	entry.item.StockQty = item.StockQty
	entry.item.LowStockThreshold = item.LowStockThreshold
	entry.item.MaxPerOrder = item.MaxPerOrder
	entry.item.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepository) GetItem(_ context.Context, storeID, productID uuid.UUID) (*Item, error) {
	entry, err := r.lookupItem(storeID, productID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	cp := entry.item
	return &cp, nil
}

func (r *memoryRepository) Reserve(_ context.Context, res *Reservation) (*Item, error) {
	entry, err := r.lookupItem(res.StoreID, res.ProductID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.item.Frozen {
		return nil, ErrItemFrozen
	}
	if entry.item.Available() < res.Qty {
		return nil, ErrInsufficientStock
	}

	entry.item.ReservedQty += res.Qty
	entry.item.UpdatedAt = time.Now().UTC()
	res.CreatedAt = time.Now().UTC()

	cp := *res
	entry.reservations[res.ID] = &cp

	r.mu.Lock()
	r.index[res.ID] = entry
	r.mu.Unlock()

	after := entry.item
	return &after, nil
}

func (r *memoryRepository) Commit(_ context.Context, reservationID uuid.UUID) (*Reservation, error) {
	entry, err := r.lookupReservation(reservationID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	res := entry.reservations[reservationID]
	switch res.Status {
	case ReservationCommitted:
		cp := *res
		return &cp, nil
	case ReservationReleased:
		return nil, ErrReservationExpired
	}

	entry.item.StockQty -= res.Qty
	entry.item.ReservedQty -= res.Qty
	entry.item.UpdatedAt = time.Now().UTC()

	if entry.item.StockQty < 0 || entry.item.ReservedQty < 0 {
		entry.item.Frozen = true
		return nil, &InvariantViolationError{
			StoreID:   res.StoreID,
			ProductID: res.ProductID,
			Detail: fmt.Sprintf("negative ledger state after commit: stock=%d reserved=%d",
				entry.item.StockQty, entry.item.ReservedQty),
		}
	}

	res.Status = ReservationCommitted
	cp := *res
	return &cp, nil
}

func (r *memoryRepository) Release(_ context.Context, reservationID uuid.UUID) (*Reservation, error) {
	entry, err := r.lookupReservation(reservationID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	res := entry.reservations[reservationID]
	if res.Status != ReservationActive {
		cp := *res
		return &cp, nil
	}

	entry.item.ReservedQty -= res.Qty
	entry.item.UpdatedAt = time.Now().UTC()
	res.Status = ReservationReleased
	cp := *res
	return &cp, nil
}

func (r *memoryRepository) GetReservation(_ context.Context, reservationID uuid.UUID) (*Reservation, error) {
	entry, err := r.lookupReservation(reservationID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	cp := *entry.reservations[reservationID]
	return &cp, nil
}

func (r *memoryRepository) ExpireDue(_ context.Context, now time.Time) ([]Reservation, error) {
	r.mu.RLock()
	entries := make([]*memItem, 0, len(r.items))
	for _, entry := range r.items {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	expired := make([]Reservation, 0)
	for _, entry := range entries {
		entry.mu.Lock()
		for _, res := range entry.reservations {
			if res.Status == ReservationActive && !res.ExpiresAt.After(now) {
				entry.item.ReservedQty -= res.Qty
				entry.item.UpdatedAt = now
				res.Status = ReservationReleased
				expired = append(expired, *res)
			}
		}
		entry.mu.Unlock()
	}
	return expired, nil
}

func (r *memoryRepository) lookupItem(storeID, productID uuid.UUID) (*memItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.items[itemKey{storeID, productID}]
	if !ok {
		return nil, ErrItemNotFound
	}
	return entry, nil
}

func (r *memoryRepository) lookupReservation(reservationID uuid.UUID) (*memItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.index[reservationID]
	if !ok {
		return nil, ErrReservationNotFound
	}
	return entry, nil
}
