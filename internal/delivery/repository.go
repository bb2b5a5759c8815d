package delivery

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

type Repository interface {
	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error)
	// ListAgents returns the store's agents, optionally filtered by status,
	// ordered by agent ID for deterministic candidate iteration.
	ListAgents(ctx context.Context, storeID uuid.UUID, status *AgentStatus) ([]Agent, error)
	SetAgentStatus(ctx context.Context, id uuid.UUID, status AgentStatus) error
	UpdateAgentLocation(ctx context.Context, id uuid.UUID, lat, lng float64, at time.Time) error

	// ClaimAgent atomically moves an Idle agent to Assigned and increments
	// its load. ErrAgentNotIdle when another claim or a status change won
	// the race.
	ClaimAgent(ctx context.Context, id uuid.UUID) error
	// UnassignAgent decrements the agent's load, flooring at zero, and
	// returns the agent to Idle when no assignments remain.
	UnassignAgent(ctx context.Context, id uuid.UUID) error

	CreateAssignment(ctx context.Context, a *Assignment) error
	ActiveAssignmentByOrder(ctx context.Context, orderID uuid.UUID) (*Assignment, error)
	ActiveAssignmentByAgent(ctx context.Context, agentID uuid.UUID) (*Assignment, error)
	// FinishAssignment moves an active assignment to the given terminal
	// status. ErrAssignmentNotFound when it is not active anymore.
	FinishAssignment(ctx context.Context, id uuid.UUID, status AssignmentStatus, at time.Time) error
	SetAssignmentETA(ctx context.Context, id uuid.UUID, minutes int) error

	// AppendPing stores the ping and advances the assignment's last ping
	// timestamp. ErrStalePing when the ping is not strictly newer, applied
	// atomically per assignment.
	AppendPing(ctx context.Context, p *Ping) error
	// LatestPing returns nil when the assignment has no pings yet.
	LatestPing(ctx context.Context, assignmentID uuid.UUID) (*Ping, error)

	SaveProof(ctx context.Context, p *Proof) error
	ProofByOrder(ctx context.Context, orderID uuid.UUID) (*Proof, error)
}
