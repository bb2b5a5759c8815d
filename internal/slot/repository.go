package slot

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Slot) error
	Get(ctx context.Context, id uuid.UUID) (*Slot, error)

	// ListOpen returns the active slots for the store and ZIP whose windows
	// start after the given time and that still have free capacity, ordered
	// by window start.
	ListOpen(ctx context.Context, storeID uuid.UUID, zip string, after time.Time) ([]Slot, error)

	// Book increments the slot's booked count. It must fail with ErrSlotFull
	// when the slot is at capacity, atomically with respect to concurrent
	// bookings.
	Book(ctx context.Context, id uuid.UUID) (*Slot, error)

	// Release decrements the slot's booked count, flooring at zero.
	Release(ctx context.Context, id uuid.UUID) error

	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
