package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// Service manages delivery windows. Booking is deliberately deferred to
// order acceptance: a placed order holds no seat until the store commits
// to fulfilling it.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, sl *Slot) error {
	if sl.StoreID == uuid.Nil {
		return errors.New("slot: store is required")
	}
	if sl.Zip == "" {
		return errors.New("slot: zip is required")
	}
	if sl.Capacity <= 0 {
		return errors.New("slot: capacity must be positive")
	}
	if !sl.WindowEnd.After(sl.WindowStart) {
		return errors.New("slot: window end must be after window start")
	}
	if sl.WindowStart.Before(time.Now().UTC()) {
		return ErrSlotInPast
	}
	if sl.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("slot: failed to generate slot ID: %w", err)
		}
		sl.ID = id
	}
	sl.Active = true
	if err := s.repo.Create(ctx, sl); err != nil {
		return fmt.Errorf("slot: failed to create slot: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.repo.Get(ctx, id)
}

// ListOpen returns bookable windows for the store and ZIP from now on.
func (s *Service) ListOpen(ctx context.Context, storeID uuid.UUID, zip string) ([]Slot, error) {
	slots, err := s.repo.ListOpen(ctx, storeID, zip, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("slot: failed to list open slots: %w", err)
	}
	return slots, nil
}

// Book consumes one seat in the window. Booking a window that has already
// started is refused even if seats remain.
func (s *Service) Book(ctx context.Context, id uuid.UUID) (*Slot, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !time.Now().UTC().Before(existing.WindowStart) {
		return nil, ErrSlotInPast
	}
	booked, err := s.repo.Book(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Debug().Stringer("slot_id", id).Int("booked", booked.BookedCount).Int("capacity", booked.Capacity).Msg("slot booked")
	return booked, nil
}

// Release frees a previously consumed seat, e.g. when an accepted order is
// cancelled. Releasing an unknown or empty slot is a no-op.
func (s *Service) Release(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Release(ctx, id); err != nil {
		return fmt.Errorf("slot: failed to release slot: %w", err)
	}
	return nil
}

func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}
