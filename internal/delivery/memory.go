package delivery

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

type memoryRepository struct {
	mu          sync.Mutex
	agents      map[uuid.UUID]*Agent
	assignments map[uuid.UUID]*Assignment
	pings       map[uuid.UUID][]Ping
	proofs      map[uuid.UUID]*Proof
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		agents:      make(map[uuid.UUID]*Agent),
		assignments: make(map[uuid.UUID]*Assignment),
		pings:       make(map[uuid.UUID][]Ping),
		proofs:      make(map[uuid.UUID]*Proof),
	}
}

func (r *memoryRepository) CreateAgent(_ context.Context, a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.CreatedAt = time.Now().UTC()
	cp := *a
	r.agents[a.ID] = &cp
	return nil
}

func (r *memoryRepository) GetAgent(_ context.Context, id uuid.UUID) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepository) ListAgents(_ context.Context, storeID uuid.UUID, status *AgentStatus) ([]Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Agent, 0)
	for _, a := range r.agents {
		if a.StoreID != storeID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID.Bytes(), out[j].ID.Bytes()) < 0
	})
	return out, nil
}

func (r *memoryRepository) SetAgentStatus(_ context.Context, id uuid.UUID, status AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	a.Status = status
	return nil
}

func (r *memoryRepository) UpdateAgentLocation(_ context.Context, id uuid.UUID, lat, lng float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	a.Lat = &lat
	a.Lng = &lng
	a.LocationAt = &at
	return nil
}

func (r *memoryRepository) ClaimAgent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if a.Status != AgentIdle {
		return ErrAgentNotIdle
	}
	a.Status = AgentAssigned
	a.Load++
	return nil
}

func (r *memoryRepository) UnassignAgent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}
	if a.Load > 0 {
		a.Load--
	}
	if a.Load == 0 && a.Status == AgentAssigned {
		a.Status = AgentIdle
	}
	return nil
}

func (r *memoryRepository) CreateAssignment(_ context.Context, a *Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.assignments[a.ID] = &cp
	return nil
}

func (r *memoryRepository) ActiveAssignmentByOrder(_ context.Context, orderID uuid.UUID) (*Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.OrderID == orderID && a.Status == AssignmentActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAssignmentNotFound
}

func (r *memoryRepository) ActiveAssignmentByAgent(_ context.Context, agentID uuid.UUID) (*Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *Assignment
	for _, a := range r.assignments {
		if a.AgentID != agentID || a.Status != AssignmentActive {
			continue
		}
		if latest == nil || a.AssignedAt.After(latest.AssignedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, ErrAssignmentNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *memoryRepository) FinishAssignment(_ context.Context, id uuid.UUID, status AssignmentStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok || a.Status != AssignmentActive {
		return ErrAssignmentNotFound
	}
	a.Status = status
	a.CompletedAt = &at
	return nil
}

func (r *memoryRepository) SetAssignmentETA(_ context.Context, id uuid.UUID, minutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok {
		return ErrAssignmentNotFound
	}
	a.ETAMinutes = &minutes
	return nil
}

func (r *memoryRepository) AppendPing(_ context.Context, p *Ping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[p.AssignmentID]
	if !ok || a.Status != AssignmentActive {
		return ErrAssignmentNotFound
	}
	if a.LastPingAt != nil && !p.Timestamp.After(*a.LastPingAt) {
		return ErrStalePing
	}
	ts := p.Timestamp
	a.LastPingAt = &ts
	r.pings[p.AssignmentID] = append(r.pings[p.AssignmentID], *p)
	return nil
}

func (r *memoryRepository) LatestPing(_ context.Context, assignmentID uuid.UUID) (*Ping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pings := r.pings[assignmentID]
	if len(pings) == 0 {
		return nil, nil
	}
	cp := pings[len(pings)-1]
	return &cp, nil
}

func (r *memoryRepository) SaveProof(_ context.Context, p *Proof) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.proofs[p.OrderID] = &cp
	return nil
}

func (r *memoryRepository) ProofByOrder(_ context.Context, orderID uuid.UUID) (*Proof, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proofs[orderID]
	if !ok {
		return nil, ErrProofNotFound
	}
	cp := *p
	return &cp, nil
}
