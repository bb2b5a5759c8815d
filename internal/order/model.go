package order

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrInvalidTransition        = errors.New("invalid order status transition")
	ErrCancellationWindowClosed = errors.New("order can no longer be cancelled")
	ErrProofRequired            = errors.New("proof of delivery is required")
	ErrAgentNotAssigned         = errors.New("order has no assigned delivery agent")
)

type Status string

const (
	StatusPlaced         Status = "PLACED"
	StatusAccepted       Status = "ACCEPTED"
	StatusPacked         Status = "PACKED"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// allowedTransitions is the single source of truth for the lifecycle graph.
// Delivered and Cancelled are terminal.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPlaced: {
		StatusAccepted:  true,
		StatusCancelled: true,
	},
	StatusAccepted: {
		StatusPacked:    true,
		StatusCancelled: true,
	},
	StatusPacked: {
		StatusOutForDelivery: true,
		StatusCancelled:      true,
	},
	StatusOutForDelivery: {
		StatusDelivered: true,
	},
}

// CanTransition reports whether the graph permits from → to.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

type Order struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Number       string     `json:"number" db:"number"`
	CustomerID   uuid.UUID  `json:"customer_id" db:"customer_id"`
	StoreID      uuid.UUID  `json:"store_id" db:"store_id"`
	Zip          string     `json:"zip" db:"zip"`
	SlotID       *uuid.UUID `json:"slot_id,omitempty" db:"slot_id"`
	AgentID      *uuid.UUID `json:"agent_id,omitempty" db:"agent_id"`
	Status       Status     `json:"status" db:"status"`
	Address      string     `json:"address" db:"address"`
	DropLat      *float64   `json:"drop_lat,omitempty" db:"drop_lat"`
	DropLng      *float64   `json:"drop_lng,omitempty" db:"drop_lng"`
	Subtotal     float64    `json:"subtotal" db:"subtotal"`
	DeliveryFee  float64    `json:"delivery_fee" db:"delivery_fee"`
	Tax          float64    `json:"tax" db:"tax"`
	Discount     float64    `json:"discount" db:"discount"`
	Total        float64    `json:"total" db:"total"`
	PaymentToken string     `json:"-" db:"payment_token"`
	CancelReason *string    `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Item is a frozen order line. ReservationID ties the line to its stock
// reservation for commit and release.
type Item struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrderID        uuid.UUID `json:"order_id" db:"order_id"`
	StoreProductID uuid.UUID `json:"store_product_id" db:"store_product_id"`
	ProductID      uuid.UUID `json:"product_id" db:"product_id"`
	Name           string    `json:"name" db:"name"`
	Qty            int       `json:"qty" db:"qty"`
	UnitPrice      float64   `json:"unit_price" db:"unit_price"`
	ReservationID  uuid.UUID `json:"reservation_id" db:"reservation_id"`
}

// HistoryEntry is one append-only audit row of the order's status trail.
type HistoryEntry struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OrderID    uuid.UUID `json:"order_id" db:"order_id"`
	FromStatus Status    `json:"from_status" db:"from_status"`
	ToStatus   Status    `json:"to_status" db:"to_status"`
	Actor      string    `json:"actor" db:"actor"`
	Reason     string    `json:"reason,omitempty" db:"reason"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
