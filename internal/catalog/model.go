package catalog

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrCategoryNotFound     = errors.New("category not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrStoreProductNotFound = errors.New("store product not found")
	ErrStoreNotServing      = errors.New("store does not serve this zip or is closed")
)

// Category is an open-ended, admin-extensible grouping: adding one is a data
// change, never a code change.
type Category struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Slug         string    `json:"slug" db:"slug"`
	DisplayOrder int       `json:"display_order" db:"display_order"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Product is the global catalog entry. Approved covers catalog moderation of
// store-added products; products created by admins are approved on creation.
type Product struct {
	ID         uuid.UUID `json:"id" db:"id"`
	CategoryID uuid.UUID `json:"category_id" db:"category_id"`
	Name       string    `json:"name" db:"name"`
	SKU        string    `json:"sku" db:"sku"`
	Approved   bool      `json:"approved" db:"approved"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// StoreProduct binds a product to a store with its price and listing flags.
// Stock lives in the inventory ledger, not here.
type StoreProduct struct {
	ID        uuid.UUID `json:"id" db:"id"`
	StoreID   uuid.UUID `json:"store_id" db:"store_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Price     float64   `json:"price" db:"price"`
	Hidden    bool      `json:"hidden" db:"hidden"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProductView is one purchasable row of the customer-facing listing.
type ProductView struct {
	StoreProductID uuid.UUID `json:"store_product_id"`
	StoreID        uuid.UUID `json:"store_id"`
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	CategoryID     uuid.UUID `json:"category_id"`
	CategoryName   string    `json:"category_name"`
	Price          float64   `json:"price"`
	InStock        bool      `json:"in_stock"`
	AvailableQty   int       `json:"available_qty"`
}

// listedProduct is the repository's joined row before stock filtering.
type listedProduct struct {
	StoreProductID uuid.UUID
	StoreID        uuid.UUID
	ProductID      uuid.UUID
	Name           string
	CategoryID     uuid.UUID
	CategoryName   string
	CategoryOrder  int
	Price          float64
	Hidden         bool
	Approved       bool
}
