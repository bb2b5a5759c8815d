package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrItemNotFound        = errors.New("inventory item not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrItemFrozen          = errors.New("inventory item is frozen pending reconciliation")
	ErrMaxPerOrderExceeded = errors.New("quantity exceeds per-order maximum")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationExpired  = errors.New("reservation already released")
	ErrStockBelowReserved  = errors.New("stock cannot be set below reserved quantity")
)

// InvariantViolationError means the ledger observed a state that must never
// occur (negative stock). The affected (store, product) key is frozen against
// further mutation until manual reconciliation.
type InvariantViolationError struct {
	StoreID   uuid.UUID
	ProductID uuid.UUID
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("inventory invariant violation for store %s product %s: %s", e.StoreID, e.ProductID, e.Detail)
}

// Item is the per-(store, product) ledger entry. StockQty is on-hand stock;
// ReservedQty is the sum of active holds. Available stock is the difference
// and must never be driven negative.
type Item struct {
	StoreID           uuid.UUID `json:"store_id" db:"store_id"`
	ProductID         uuid.UUID `json:"product_id" db:"product_id"`
	StockQty          int       `json:"stock_qty" db:"stock_qty"`
	ReservedQty       int       `json:"reserved_qty" db:"reserved_qty"`
	LowStockThreshold int       `json:"low_stock_threshold" db:"low_stock_threshold"`
	MaxPerOrder       *int      `json:"max_per_order,omitempty" db:"max_per_order"`
	Frozen            bool      `json:"frozen" db:"frozen"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

func (i *Item) Available() int {
	return i.StockQty - i.ReservedQty
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation is a bounded-TTL hold on stock. Active converts to a permanent
// decrement on Commit or returns to stock on Release/expiry.
type Reservation struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	StoreID   uuid.UUID         `json:"store_id" db:"store_id"`
	ProductID uuid.UUID         `json:"product_id" db:"product_id"`
	Qty       int               `json:"qty" db:"qty"`
	Status    ReservationStatus `json:"status" db:"status"`
	ExpiresAt time.Time         `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}
