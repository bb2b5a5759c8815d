package store

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

type Repository interface {
	CreateStore(ctx context.Context, s *Store) error
	GetStore(ctx context.Context, id uuid.UUID) (*Store, error)
	ListStores(ctx context.Context) ([]Store, error)
	SetForceClosed(ctx context.Context, id uuid.UUID, closed bool) error

	HoursByStore(ctx context.Context, storeID uuid.UUID) ([]Hours, error)
	UpsertHours(ctx context.Context, h Hours) error

	CreateClosureRequest(ctx context.Context, r *ClosureRequest) error
	GetClosureRequest(ctx context.Context, id uuid.UUID) (*ClosureRequest, error)
	DecideClosureRequest(ctx context.Context, id uuid.UUID, decision ClosureStatus, adminID uuid.UUID, at time.Time) error
	// ActiveApprovedClosure returns the approved closure still in effect at
	// the given instant, or nil when the store has none.
	ActiveApprovedClosure(ctx context.Context, storeID uuid.UUID, at time.Time) (*ClosureRequest, error)
	// PendingClosure returns the store's undecided request, or nil.
	PendingClosure(ctx context.Context, storeID uuid.UUID) (*ClosureRequest, error)
	LiftClosure(ctx context.Context, requestID uuid.UUID, at time.Time) error
}
