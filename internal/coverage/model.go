package coverage

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrUnsupportedZip   = errors.New("no store covers this zip")
	ErrCoverageNotFound = errors.New("coverage not found")
)

// Coverage declares that a store delivers to a ZIP, with optional per-ZIP
// overrides. Nil overrides fall back to the store's defaults at read time.
// At most one active row exists per (store, zip).
type Coverage struct {
	ID            uuid.UUID `json:"id" db:"id"`
	StoreID       uuid.UUID `json:"store_id" db:"store_id"`
	Zip           string    `json:"zip" db:"zip"`
	DeliveryFee   *float64  `json:"delivery_fee,omitempty" db:"delivery_fee"`
	MinOrderValue *float64  `json:"min_order_value,omitempty" db:"min_order_value"`
	SLAMinutes    int       `json:"sla_minutes" db:"sla_minutes"`
	Active        bool      `json:"active" db:"active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// ResolvedStore is one entry of the landing-page store list: coverage with
// the per-ZIP overrides already collapsed against store defaults.
type ResolvedStore struct {
	StoreID               uuid.UUID `json:"store_id"`
	StoreCode             string    `json:"store_code"`
	StoreName             string    `json:"store_name"`
	DeliveryFee           float64   `json:"delivery_fee"`
	MinOrderValue         float64   `json:"min_order_value"`
	SLAMinutes            int       `json:"sla_minutes"`
	FreeDeliveryThreshold *float64  `json:"free_delivery_threshold,omitempty"`
}
