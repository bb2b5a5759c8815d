package inventory

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

// Repository is the atomicity boundary of the ledger: Reserve, Commit and
// Release are serialized per (store, product) key, by conditional SQL
// updates in the postgres implementation and by per-item locks in the
// in-memory one. No two concurrent reservations may together exceed
// available stock.
type Repository interface {
	UpsertItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, storeID, productID uuid.UUID) (*Item, error)

	// Reserve places a hold of qty until expiresAt. Returns the reservation
	// and the item state after the hold, or ErrInsufficientStock.
	Reserve(ctx context.Context, res *Reservation) (*Item, error)
	// Commit converts an active hold to a permanent decrement. Committing a
	// committed reservation is a no-op; committing a released one returns
	// ErrReservationExpired.
	Commit(ctx context.Context, reservationID uuid.UUID) (*Reservation, error)
	// Release returns an active hold to stock. Releasing a committed or
	// already-released reservation is a no-op.
	Release(ctx context.Context, reservationID uuid.UUID) (*Reservation, error)
	GetReservation(ctx context.Context, reservationID uuid.UUID) (*Reservation, error)
	// ExpireDue releases all active reservations whose TTL elapsed before
	// now and returns them.
	ExpireDue(ctx context.Context, now time.Time) ([]Reservation, error)
}
