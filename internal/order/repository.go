package order

import (
	"context"

	"github.com/gofrs/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Order, items []Item) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	Items(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, status *Status) ([]Order, error)

	// UpdateStatus moves the order from one status to another with a
	// conditional write: it fails with ErrInvalidTransition when the stored
	// status no longer matches from, so a stale caller cannot clobber a
	// concurrent transition.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, reason *string) error

	// SetAgent records or clears the assigned delivery agent.
	SetAgent(ctx context.Context, id uuid.UUID, agentID *uuid.UUID) error

	AppendHistory(ctx context.Context, h *HistoryEntry) error
	History(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error)
}
