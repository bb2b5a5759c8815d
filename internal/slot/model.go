package slot

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrSlotNotFound = errors.New("delivery slot not found")
	ErrSlotFull     = errors.New("delivery slot is full")
	ErrSlotClosed   = errors.New("delivery slot is closed")
	ErrSlotInPast   = errors.New("delivery slot window has passed")
)

// Slot is a bookable delivery window for a store within a ZIP. BookedCount
// never exceeds Capacity; the repository enforces that under concurrency.
type Slot struct {
	ID          uuid.UUID `json:"id" db:"id"`
	StoreID     uuid.UUID `json:"store_id" db:"store_id"`
	Zip         string    `json:"zip" db:"zip"`
	WindowStart time.Time `json:"window_start" db:"window_start"`
	WindowEnd   time.Time `json:"window_end" db:"window_end"`
	Capacity    int       `json:"capacity" db:"capacity"`
	BookedCount int       `json:"booked_count" db:"booked_count"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Open reports whether the slot can still accept a booking at the given time.
func (s *Slot) Open(now time.Time) bool {
	return s.Active && s.BookedCount < s.Capacity && now.Before(s.WindowStart)
}
