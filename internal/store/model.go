package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrStoreNotFound         = errors.New("store not found")
	ErrStoreCodeTaken        = errors.New("store code already taken")
	ErrRequestNotFound       = errors.New("closure request not found")
	ErrRequestAlreadyPending = errors.New("store already has a pending closure request")
	ErrRequestAlreadyDecided = errors.New("closure request already decided")
)

// AvailabilityStatus is the customer-visible store state. ClosurePending is an
// internal workflow state only: a pending request never changes what customers
// see, so EffectiveStatus never returns it.
type AvailabilityStatus string

const (
	StatusOpen             AvailabilityStatus = "OPEN"
	StatusClosedByHours    AvailabilityStatus = "CLOSED_BY_HOURS"
	StatusClosurePending   AvailabilityStatus = "CLOSURE_PENDING"
	StatusClosedApproved   AvailabilityStatus = "CLOSED_APPROVED"
	StatusForceClosedAdmin AvailabilityStatus = "FORCE_CLOSED_ADMIN"
)

func (s AvailabilityStatus) String() string {
	return string(s)
}

type Store struct {
	ID                    uuid.UUID `json:"id" db:"id"`
	Code                  string    `json:"code" db:"code"`
	Name                  string    `json:"name" db:"name"`
	OwnerID               uuid.UUID `json:"owner_id" db:"owner_id"`
	Description           string    `json:"description,omitempty" db:"description"`
	Phone                 string    `json:"phone,omitempty" db:"phone"`
	Email                 string    `json:"email,omitempty" db:"email"`
	DeliveryFee           float64   `json:"delivery_fee" db:"delivery_fee"`
	MinOrderValue         float64   `json:"min_order_value" db:"min_order_value"`
	FreeDeliveryThreshold *float64  `json:"free_delivery_threshold,omitempty" db:"free_delivery_threshold"`
	Is24Hours             bool      `json:"is_24_hours" db:"is_24_hours"`
	ForceClosed           bool      `json:"force_closed" db:"force_closed"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

// Hours is one weekday's operating window. Times are "15:04" clock strings;
// a window where ClosesAt is before OpensAt spans midnight.
type Hours struct {
	StoreID  uuid.UUID    `json:"store_id" db:"store_id"`
	Weekday  time.Weekday `json:"weekday" db:"weekday"`
	OpensAt  string       `json:"opens_at" db:"opens_at"`
	ClosesAt string       `json:"closes_at" db:"closes_at"`
	Closed   bool         `json:"closed" db:"closed"`
}

type ClosureStatus string

const (
	ClosurePending  ClosureStatus = "PENDING"
	ClosureApproved ClosureStatus = "APPROVED"
	ClosureRejected ClosureStatus = "REJECTED"
)

// ClosureRequest is a store-initiated request to close until RequestedUntil.
// The decision fields are written once by DecideClosure and never mutated
// afterwards; LiftedAt is set when an admin reopens the store early.
type ClosureRequest struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	StoreID        uuid.UUID     `json:"store_id" db:"store_id"`
	RequestedBy    uuid.UUID     `json:"requested_by" db:"requested_by"`
	Reason         string        `json:"reason" db:"reason"`
	RequestedUntil time.Time     `json:"requested_until" db:"requested_until"`
	Status         ClosureStatus `json:"status" db:"status"`
	DecidedBy      *uuid.UUID    `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt      *time.Time    `json:"decided_at,omitempty" db:"decided_at"`
	LiftedAt       *time.Time    `json:"lifted_at,omitempty" db:"lifted_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// InEffect reports whether an approved closure still hides the store at the
// given instant.
func (c *ClosureRequest) InEffect(now time.Time) bool {
	if c == nil || c.Status != ClosureApproved {
		return false
	}
	if c.LiftedAt != nil && !now.Before(*c.LiftedAt) {
		return false
	}
	return now.Before(c.RequestedUntil)
}
