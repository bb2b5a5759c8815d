package coverage

import (
	"context"

	"github.com/gofrs/uuid"
)

type Repository interface {
	// SetCoverage activates or updates the (store, zip) row; the uniqueness
	// of active rows per pair is the repository's responsibility.
	SetCoverage(ctx context.Context, c *Coverage) error
	Deactivate(ctx context.Context, storeID uuid.UUID, zip string) error
	ActiveByZip(ctx context.Context, zip string) ([]Coverage, error)
	ActiveByStoreZip(ctx context.Context, storeID uuid.UUID, zip string) (*Coverage, error)
}
