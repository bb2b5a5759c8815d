package coverage

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

type coverageKey struct {
	storeID uuid.UUID
	zip     string
}

type memoryRepository struct {
	mu   sync.RWMutex
	rows map[coverageKey]*Coverage
}

func NewMemoryRepository() Repository {
	return &memoryRepository{rows: make(map[coverageKey]*Coverage)}
}

func (r *memoryRepository) SetCoverage(_ context.Context, c *Coverage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	r.rows[coverageKey{c.StoreID, c.Zip}] = &cp
	return nil
}

func (r *memoryRepository) Deactivate(_ context.Context, storeID uuid.UUID, zip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[coverageKey{storeID, zip}]
	if !ok {
		return ErrCoverageNotFound
	}
	row.Active = false
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepository) ActiveByZip(_ context.Context, zip string) ([]Coverage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Coverage, 0)
	for key, row := range r.rows {
		if key.zip == zip && row.Active {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memoryRepository) ActiveByStoreZip(_ context.Context, storeID uuid.UUID, zip string) (*Coverage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[coverageKey{storeID, zip}]
	if !ok || !row.Active {
		return nil, ErrCoverageNotFound
	}
	cp := *row
	return &cp, nil
}
