package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// memoryRepository keeps the same guard semantics as the SQL implementation
// (unique code, one pending closure per store, write-once decisions) behind a
// mutex. Used by tests and the in-memory storage mode.
type memoryRepository struct {
	mu       sync.RWMutex
	stores   map[uuid.UUID]*Store
	codes    map[string]uuid.UUID
	hours    map[uuid.UUID]map[time.Weekday]Hours
	closures map[uuid.UUID]*ClosureRequest
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		stores:   make(map[uuid.UUID]*Store),
		codes:    make(map[string]uuid.UUID),
		hours:    make(map[uuid.UUID]map[time.Weekday]Hours),
		closures: make(map[uuid.UUID]*ClosureRequest),
	}
}

func (r *memoryRepository) CreateStore(_ context.Context, s *Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.codes[s.Code]; taken {
		return ErrStoreCodeTaken
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	cp := *s
	r.stores[s.ID] = &cp
	r.codes[s.Code] = s.ID
	return nil
}

func (r *memoryRepository) GetStore(_ context.Context, id uuid.UUID) (*Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stores[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memoryRepository) ListStores(_ context.Context) ([]Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stores := make([]Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, *s)
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].Code < stores[j].Code })
	return stores, nil
}

func (r *memoryRepository) SetForceClosed(_ context.Context, id uuid.UUID, closed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stores[id]
	if !ok {
		return ErrStoreNotFound
	}
	s.ForceClosed = closed
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepository) HoursByStore(_ context.Context, storeID uuid.UUID) ([]Hours, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byDay := r.hours[storeID]
	hours := make([]Hours, 0, len(byDay))
	for _, h := range byDay {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Weekday < hours[j].Weekday })
	return hours, nil
}

func (r *memoryRepository) UpsertHours(_ context.Context, h Hours) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byDay, ok := r.hours[h.StoreID]
	if !ok {
		byDay = make(map[time.Weekday]Hours)
		r.hours[h.StoreID] = byDay
	}
	byDay[h.Weekday] = h
	return nil
}

func (r *memoryRepository) CreateClosureRequest(_ context.Context, req *ClosureRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.closures {
		if existing.StoreID == req.StoreID && existing.Status == ClosurePending {
			return ErrRequestAlreadyPending
		}
	}
	req.CreatedAt = time.Now().UTC()
	cp := *req
	r.closures[req.ID] = &cp
	return nil
}

func (r *memoryRepository) GetClosureRequest(_ context.Context, id uuid.UUID) (*ClosureRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.closures[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *memoryRepository) DecideClosureRequest(_ context.Context, id uuid.UUID, decision ClosureStatus, adminID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.closures[id]
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != ClosurePending {
		return ErrRequestAlreadyDecided
	}
	req.Status = decision
	admin := adminID
	decidedAt := at
	req.DecidedBy = &admin
	req.DecidedAt = &decidedAt
	return nil
}

func (r *memoryRepository) ActiveApprovedClosure(_ context.Context, storeID uuid.UUID, at time.Time) (*ClosureRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *ClosureRequest
	for _, req := range r.closures {
		if req.StoreID != storeID || !req.InEffect(at) {
			continue
		}
		if latest == nil || (req.DecidedAt != nil && latest.DecidedAt != nil && req.DecidedAt.After(*latest.DecidedAt)) {
			latest = req
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *memoryRepository) PendingClosure(_ context.Context, storeID uuid.UUID) (*ClosureRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, req := range r.closures {
		if req.StoreID == storeID && req.Status == ClosurePending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryRepository) LiftClosure(_ context.Context, requestID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.closures[requestID]
	if !ok || req.Status != ClosureApproved || req.LiftedAt != nil {
		return ErrRequestNotFound
	}
	lifted := at
	req.LiftedAt = &lifted
	return nil
}
