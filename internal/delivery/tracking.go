package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/geo"
)

// DropLocator resolves the order's drop-off coordinates for ETA recompute;
// implemented by the order service.
type DropLocator interface {
	DropLocation(ctx context.Context, orderID uuid.UUID) (*geo.Location, error)
}

// TrackingStream ingests agent location pings for active assignments and
// exposes the latest position with a recomputed ETA.
type TrackingStream struct {
	repo   Repository
	oracle geo.ETAOracle
	drops  DropLocator
}

func NewTrackingStream(repo Repository, oracle geo.ETAOracle, drops DropLocator) *TrackingStream {
	return &TrackingStream{repo: repo, oracle: oracle, drops: drops}
}

// Ingest records one (lat, lng, timestamp) event from the agent's active
// assignment. Events at or before the last accepted timestamp fail with
// ErrStalePing and change nothing. The oracle recompute runs after the
// append, never inside the monotonic guard.
func (t *TrackingStream) Ingest(ctx context.Context, agentID uuid.UUID, lat, lng float64, ts time.Time) error {
	asg, err := t.repo.ActiveAssignmentByAgent(ctx, agentID)
	if err != nil {
		return err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("delivery: failed to generate ping ID: %w", err)
	}
	ping := &Ping{
		ID:           id,
		AssignmentID: asg.ID,
		AgentID:      agentID,
		Lat:          lat,
		Lng:          lng,
		Timestamp:    ts,
	}
	if err := t.repo.AppendPing(ctx, ping); err != nil {
		return err
	}
	if err := t.repo.UpdateAgentLocation(ctx, agentID, lat, lng, ts); err != nil {
		log.Error().Err(err).Stringer("agent_id", agentID).Msg("delivery: failed to update agent location")
	}

	dest, err := t.drops.DropLocation(ctx, asg.OrderID)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", asg.OrderID).Msg("delivery: failed to resolve drop location")
		return nil
	}
	if dest == nil {
		return nil
	}
	minutes, err := t.oracle.ETA(ctx, geo.Location{Lat: lat, Lng: lng}, *dest)
	if err != nil {
		log.Warn().Err(err).Stringer("assignment_id", asg.ID).Msg("delivery: eta oracle failed on ping")
		return nil
	}
	if err := t.repo.SetAssignmentETA(ctx, asg.ID, minutes); err != nil {
		log.Error().Err(err).Stringer("assignment_id", asg.ID).Msg("delivery: failed to store recomputed eta")
	}
	return nil
}

// Position is the customer-facing tracking view of an order.
type Position struct {
	AgentID    uuid.UUID  `json:"agent_id"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	Timestamp  time.Time  `json:"timestamp"`
	ETAMinutes *int       `json:"eta_minutes,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	LastPingAt *time.Time `json:"last_ping_at,omitempty"`
}

// Latest returns the most recent position and ETA for the order's active
// assignment. ErrAssignmentNotFound when the order is not out with an agent.
func (t *TrackingStream) Latest(ctx context.Context, orderID uuid.UUID) (*Position, error) {
	asg, err := t.repo.ActiveAssignmentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	pos := &Position{
		AgentID:    asg.AgentID,
		ETAMinutes: asg.ETAMinutes,
		AssignedAt: asg.AssignedAt,
		LastPingAt: asg.LastPingAt,
	}
	ping, err := t.repo.LatestPing(ctx, asg.ID)
	if err != nil {
		return nil, err
	}
	if ping != nil {
		pos.Lat = ping.Lat
		pos.Lng = ping.Lng
		pos.Timestamp = ping.Timestamp
	}
	return pos, nil
}
