package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

// EffectiveStatus computes the customer-visible availability of a store as a
// pure function of its inputs at the given instant. Precedence: admin force
// close dominates everything, then an approved closure still in effect, then
// the hours-derived open/closed state. A pending closure request has no
// effect here.
func EffectiveStatus(s *Store, hours []Hours, approved *ClosureRequest, now time.Time) AvailabilityStatus {
	if s.ForceClosed {
		return StatusForceClosedAdmin
	}
	if approved.InEffect(now) {
		return StatusClosedApproved
	}
	if withinOperatingHours(s, hours, now) {
		return StatusOpen
	}
	return StatusClosedByHours
}

func withinOperatingHours(s *Store, hours []Hours, now time.Time) bool {
	if s.Is24Hours {
		return true
	}

	minute := now.Hour()*60 + now.Minute()
	for _, h := range hours {
		if h.Closed {
			continue
		}
		opens, err1 := parseClock(h.OpensAt)
		closes, err2 := parseClock(h.ClosesAt)
		if err1 != nil || err2 != nil {
			continue
		}
		switch {
		case opens <= closes:
			if h.Weekday == now.Weekday() && minute >= opens && minute < closes {
				return true
			}
		default:
			// Overnight window: today after opening, or the tail of
			// yesterday's window before it closes.
			if h.Weekday == now.Weekday() && minute >= opens {
				return true
			}
			if h.Weekday == previousWeekday(now.Weekday()) && minute < closes {
				return true
			}
		}
	}
	return false
}

func previousWeekday(d time.Weekday) time.Weekday {
	return (d + 6) % 7
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("store: invalid clock value %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ValidateClock is used when staff configure hours, so malformed windows are
// rejected at write time rather than silently skipped at read time.
func ValidateClock(v string) error {
	_, err := parseClock(v)
	return err
}

// AvailabilityService resolves the effective status of stores for the
// catalog and coverage read paths.
type AvailabilityService struct {
	repo Repository
}

func NewAvailabilityService(repo Repository) *AvailabilityService {
	return &AvailabilityService{repo: repo}
}

// EffectiveStatus loads a store's hours and any approved closure and reduces
// them to the customer-visible state. Nothing is cached: status is always a
// function of the current inputs, so an approved closure or an admin force
// close is reflected on the very next read.
func (s *AvailabilityService) EffectiveStatus(ctx context.Context, storeID uuid.UUID, at time.Time) (AvailabilityStatus, error) {
	st, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return "", fmt.Errorf("store: failed to get store %s: %w", storeID, err)
	}

	hours, err := s.repo.HoursByStore(ctx, storeID)
	if err != nil {
		return "", fmt.Errorf("store: failed to get hours for store %s: %w", storeID, err)
	}

	closure, err := s.repo.ActiveApprovedClosure(ctx, storeID, at)
	if err != nil {
		return "", fmt.Errorf("store: failed to get approved closure for store %s: %w", storeID, err)
	}

	return EffectiveStatus(st, hours, closure, at), nil
}

// IsOpen is the coverage/catalog-facing predicate.
func (s *AvailabilityService) IsOpen(ctx context.Context, storeID uuid.UUID, at time.Time) (bool, error) {
	status, err := s.EffectiveStatus(ctx, storeID, at)
	if err != nil {
		return false, err
	}
	return status == StatusOpen, nil
}

// InternalState is the staff/admin view: unlike EffectiveStatus it surfaces
// ClosurePending when an undecided request exists.
func (s *AvailabilityService) InternalState(ctx context.Context, storeID uuid.UUID, at time.Time) (AvailabilityStatus, error) {
	pending, err := s.repo.PendingClosure(ctx, storeID)
	if err != nil {
		return "", fmt.Errorf("store: failed to get pending closure for store %s: %w", storeID, err)
	}
	if pending != nil {
		return StatusClosurePending, nil
	}
	return s.EffectiveStatus(ctx, storeID, at)
}
