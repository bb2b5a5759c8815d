package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/notify"
)

// Service owns store records and mediates the closure approval workflow.
// Store staff may only request a closure; the transition into ClosedApproved
// happens exclusively through DecideClosure, and admin force close/reopen is
// the dominant override.
type Service struct {
	repo     Repository
	notifier notify.Notifier
}

func NewService(repo Repository, notifier notify.Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

func (s *Service) CreateStore(ctx context.Context, st *Store) (*Store, error) {
	st.Code = strings.TrimSpace(st.Code)
	if st.Code == "" {
		return nil, errors.New("store: code is required")
	}
	if st.Name == "" {
		return nil, errors.New("store: name is required")
	}
	if st.MinOrderValue < 0 || st.DeliveryFee < 0 {
		return nil, errors.New("store: min order value and delivery fee must be non-negative")
	}

	if st.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("store: failed to generate store ID: %w", err)
		}
		st.ID = id
	}

	if err := s.repo.CreateStore(ctx, st); err != nil {
		if errors.Is(err, ErrStoreCodeTaken) {
			return nil, ErrStoreCodeTaken
		}
		log.Error().Err(err).Str("code", st.Code).Msg("store: failed to create store")
		return nil, fmt.Errorf("store: failed to create store: %w", err)
	}

	log.Info().Stringer("store_id", st.ID).Str("code", st.Code).Msg("store created")
	return st, nil
}

func (s *Service) GetStore(ctx context.Context, id uuid.UUID) (*Store, error) {
	return s.repo.GetStore(ctx, id)
}

func (s *Service) ListStores(ctx context.Context) ([]Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) SetHours(ctx context.Context, h Hours) error {
	if !h.Closed {
		if err := ValidateClock(h.OpensAt); err != nil {
			return err
		}
		if err := ValidateClock(h.ClosesAt); err != nil {
			return err
		}
	}
	if err := s.repo.UpsertHours(ctx, h); err != nil {
		return fmt.Errorf("store: failed to upsert hours for store %s: %w", h.StoreID, err)
	}
	return nil
}

// RequestClosure files a store-initiated closure request. The store keeps its
// prior customer-visible availability until an admin approves.
func (s *Service) RequestClosure(ctx context.Context, storeID, requestedBy uuid.UUID, reason string, until time.Time) (*ClosureRequest, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errors.New("store: closure reason is required")
	}
	if !until.After(time.Now()) {
		return nil, errors.New("store: closure end must be in the future")
	}
	if _, err := s.repo.GetStore(ctx, storeID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("store: failed to generate request ID: %w", err)
	}

	req := &ClosureRequest{
		ID:             id,
		StoreID:        storeID,
		RequestedBy:    requestedBy,
		Reason:         reason,
		RequestedUntil: until,
		Status:         ClosurePending,
	}

	if err := s.repo.CreateClosureRequest(ctx, req); err != nil {
		if errors.Is(err, ErrRequestAlreadyPending) {
			return nil, ErrRequestAlreadyPending
		}
		log.Error().Err(err).Stringer("store_id", storeID).Msg("store: failed to create closure request")
		return nil, fmt.Errorf("store: failed to create closure request: %w", err)
	}

	log.Info().Stringer("store_id", storeID).Stringer("request_id", req.ID).Msg("closure requested")
	return req, nil
}

// DecideClosure is the only path out of ClosurePending. The decision record
// (who, when, what) is written once and is immutable afterwards.
func (s *Service) DecideClosure(ctx context.Context, requestID uuid.UUID, approve bool, adminID uuid.UUID) (*ClosureRequest, error) {
	decision := ClosureRejected
	if approve {
		decision = ClosureApproved
	}

	now := time.Now().UTC()
	if err := s.repo.DecideClosureRequest(ctx, requestID, decision, adminID, now); err != nil {
		if errors.Is(err, ErrRequestNotFound) || errors.Is(err, ErrRequestAlreadyDecided) {
			return nil, err
		}
		log.Error().Err(err).Stringer("request_id", requestID).Msg("store: failed to decide closure request")
		return nil, fmt.Errorf("store: failed to decide closure request: %w", err)
	}

	req, err := s.repo.GetClosureRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to reload closure request %s: %w", requestID, err)
	}

	eventType := notify.EventClosureRejected
	if approve {
		eventType = notify.EventClosureApproved
	}
	s.notifier.Publish(ctx, notify.NewEvent(eventType, map[string]any{
		"store_id":   req.StoreID.String(),
		"request_id": req.ID.String(),
		"decided_by": adminID.String(),
	}))

	log.Info().
		Stringer("request_id", requestID).
		Stringer("store_id", req.StoreID).
		Str("decision", string(decision)).
		Stringer("admin_id", adminID).
		Msg("closure request decided")
	return req, nil
}

// LiftClosure is the admin early-reopen: the approved closure stops hiding
// the store immediately instead of at requested_until.
func (s *Service) LiftClosure(ctx context.Context, requestID, adminID uuid.UUID) error {
	now := time.Now().UTC()
	if err := s.repo.LiftClosure(ctx, requestID, now); err != nil {
		return fmt.Errorf("store: failed to lift closure %s: %w", requestID, err)
	}
	log.Info().Stringer("request_id", requestID).Stringer("admin_id", adminID).Msg("approved closure lifted early")
	return nil
}

// ForceClose puts the store into the dominant admin-closed state.
func (s *Service) ForceClose(ctx context.Context, storeID, adminID uuid.UUID) error {
	if err := s.repo.SetForceClosed(ctx, storeID, true); err != nil {
		return fmt.Errorf("store: failed to force close store %s: %w", storeID, err)
	}
	log.Warn().Stringer("store_id", storeID).Stringer("admin_id", adminID).Msg("store force closed by admin")
	return nil
}

// ForceReopen clears the admin override. Any approved closure still in its
// window resumes hiding the store; that is intentional precedence, not a bug.
func (s *Service) ForceReopen(ctx context.Context, storeID, adminID uuid.UUID) error {
	if err := s.repo.SetForceClosed(ctx, storeID, false); err != nil {
		return fmt.Errorf("store: failed to reopen store %s: %w", storeID, err)
	}
	log.Info().Stringer("store_id", storeID).Stringer("admin_id", adminID).Msg("admin force close cleared")
	return nil
}

func (s *Service) PendingClosure(ctx context.Context, storeID uuid.UUID) (*ClosureRequest, error) {
	return s.repo.PendingClosure(ctx, storeID)
}
