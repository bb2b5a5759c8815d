package cart

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrPriceChanged     = errors.New("price changed since item was added")
	ErrOutOfStock       = errors.New("insufficient stock for cart item")
	ErrBelowMinOrder    = errors.New("cart subtotal is below the store minimum")
)

// Cart is the single active basket a customer holds against one store. A
// checkout deactivates it; the next AddItem starts a fresh one.
type Cart struct {
	ID         uuid.UUID `json:"id" db:"id"`
	CustomerID uuid.UUID `json:"customer_id" db:"customer_id"`
	StoreID    uuid.UUID `json:"store_id" db:"store_id"`
	Zip        string    `json:"zip" db:"zip"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Item snapshots the unit price at add time. Checkout compares the snapshot
// against the live listing and refuses silently drifted prices.
type Item struct {
	ID             uuid.UUID `json:"id" db:"id"`
	CartID         uuid.UUID `json:"cart_id" db:"cart_id"`
	StoreProductID uuid.UUID `json:"store_product_id" db:"store_product_id"`
	ProductID      uuid.UUID `json:"product_id" db:"product_id"`
	Qty            int       `json:"qty" db:"qty"`
	UnitPrice      float64   `json:"unit_price" db:"unit_price"`
	AddedAt        time.Time `json:"added_at" db:"added_at"`
}

// IssueReason classifies why a cart line fails checkout validation.
type IssueReason string

const (
	IssuePriceChanged IssueReason = "price_changed"
	IssueOutOfStock   IssueReason = "out_of_stock"
)

// LineIssue reports one failing line of a checkout validation pass.
type LineIssue struct {
	StoreProductID uuid.UUID   `json:"store_product_id"`
	Reason         IssueReason `json:"reason"`
	CurrentPrice   float64     `json:"current_price,omitempty"`
	AvailableQty   int         `json:"available_qty,omitempty"`
}

// Quote is the priced view of a cart at validation time.
type Quote struct {
	Subtotal    float64     `json:"subtotal"`
	DeliveryFee float64     `json:"delivery_fee"`
	Total       float64     `json:"total"`
	MinOrder    float64     `json:"min_order"`
	Issues      []LineIssue `json:"issues,omitempty"`
}
