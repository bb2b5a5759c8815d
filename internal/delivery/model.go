package delivery

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrAgentNotFound      = errors.New("delivery agent not found")
	ErrNoAgentAvailable   = errors.New("no idle delivery agent available")
	ErrAgentNotIdle       = errors.New("delivery agent is not idle")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrStalePing          = errors.New("tracking ping is older than the last accepted one")
	ErrProofNotFound      = errors.New("proof of delivery not found")
)

type AgentStatus string

const (
	AgentIdle     AgentStatus = "IDLE"
	AgentAssigned AgentStatus = "ASSIGNED"
	AgentOffline  AgentStatus = "OFFLINE"
)

// Agent is a store-scoped courier. Load counts active assignments; the
// repository keeps it consistent with status under concurrent claims.
type Agent struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	StoreID    uuid.UUID   `json:"store_id" db:"store_id"`
	Name       string      `json:"name" db:"name"`
	Phone      string      `json:"phone" db:"phone"`
	Status     AgentStatus `json:"status" db:"status"`
	Load       int         `json:"load" db:"load"`
	Lat        *float64    `json:"lat,omitempty" db:"lat"`
	Lng        *float64    `json:"lng,omitempty" db:"lng"`
	LocationAt *time.Time  `json:"location_at,omitempty" db:"location_at"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "ACTIVE"
	AssignmentCompleted AssignmentStatus = "COMPLETED"
	AssignmentCancelled AssignmentStatus = "CANCELLED"
)

// Assignment binds one order to one agent. At most one active assignment
// exists per order; LastPingAt anchors the monotonic tracking guard.
type Assignment struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	OrderID     uuid.UUID        `json:"order_id" db:"order_id"`
	AgentID     uuid.UUID        `json:"agent_id" db:"agent_id"`
	Status      AssignmentStatus `json:"status" db:"status"`
	ETAMinutes  *int             `json:"eta_minutes,omitempty" db:"eta_minutes"`
	LastPingAt  *time.Time       `json:"last_ping_at,omitempty" db:"last_ping_at"`
	AssignedAt  time.Time        `json:"assigned_at" db:"assigned_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
}

// Ping is one append-only tracking event for an assignment.
type Ping struct {
	ID           uuid.UUID `json:"id" db:"id"`
	AssignmentID uuid.UUID `json:"assignment_id" db:"assignment_id"`
	AgentID      uuid.UUID `json:"agent_id" db:"agent_id"`
	Lat          float64   `json:"lat" db:"lat"`
	Lng          float64   `json:"lng" db:"lng"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

type ProofKind string

const (
	ProofPhoto ProofKind = "PHOTO"
	ProofOTP   ProofKind = "OTP"
)

// Proof is the delivery artifact an agent captures at handover. An order
// cannot reach Delivered without one.
type Proof struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OrderID    uuid.UUID `json:"order_id" db:"order_id"`
	AgentID    uuid.UUID `json:"agent_id" db:"agent_id"`
	Kind       ProofKind `json:"kind" db:"kind"`
	PhotoRef   string    `json:"photo_ref,omitempty" db:"photo_ref"`
	OTPCode    string    `json:"otp_code,omitempty" db:"otp_code"`
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`
}
