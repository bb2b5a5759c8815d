package slot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

type memoryRepository struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*Slot
}

func NewMemoryRepository() Repository {
	return &memoryRepository{slots: make(map[uuid.UUID]*Slot)}
}

func (r *memoryRepository) Create(_ context.Context, s *Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.CreatedAt = time.Now().UTC()
	s.BookedCount = 0
	cp := *s
	r.slots[s.ID] = &cp
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memoryRepository) ListOpen(_ context.Context, storeID uuid.UUID, zip string, after time.Time) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Slot, 0)
	for _, s := range r.slots {
		if s.StoreID != storeID || s.Zip != zip {
			continue
		}
		if !s.Active || s.BookedCount >= s.Capacity || !s.WindowStart.After(after) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowStart.Before(out[j].WindowStart) })
	return out, nil
}

func (r *memoryRepository) Book(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if !s.Active {
		return nil, ErrSlotClosed
	}
	if s.BookedCount >= s.Capacity {
		return nil, ErrSlotFull
	}
	s.BookedCount++
	cp := *s
	return &cp, nil
}

func (r *memoryRepository) Release(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil
	}
	if s.BookedCount > 0 {
		s.BookedCount--
	}
	return nil
}

func (r *memoryRepository) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	s.Active = active
	return nil
}
