package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/geo"
	"github.com/vasiliy-maslov/fulfillment-core/internal/notify"
)

// Strategy orders the auto-assignment composite. LoadFirst is the default:
// prefer the least busy agent, use travel time only to split equal loads.
type Strategy string

const (
	StrategyLoadFirst     Strategy = "load_first"
	StrategyDistanceFirst Strategy = "distance_first"
)

// Engine assigns orders to agents and owns the agent load accounting.
type Engine struct {
	repo     Repository
	oracle   geo.ETAOracle
	notifier notify.Notifier
	strategy Strategy
}

func NewEngine(repo Repository, oracle geo.ETAOracle, notifier notify.Notifier, strategy Strategy) *Engine {
	if strategy == "" {
		strategy = StrategyLoadFirst
	}
	return &Engine{repo: repo, oracle: oracle, notifier: notifier, strategy: strategy}
}

func (e *Engine) RegisterAgent(ctx context.Context, a *Agent) error {
	if a.StoreID == uuid.Nil {
		return errors.New("delivery: store is required")
	}
	if a.Name == "" {
		return errors.New("delivery: agent name is required")
	}
	if a.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("delivery: failed to generate agent ID: %w", err)
		}
		a.ID = id
	}
	a.Status = AgentOffline
	if err := e.repo.CreateAgent(ctx, a); err != nil {
		return fmt.Errorf("delivery: failed to register agent: %w", err)
	}
	return nil
}

func (e *Engine) Agent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	return e.repo.GetAgent(ctx, id)
}

func (e *Engine) Agents(ctx context.Context, storeID uuid.UUID) ([]Agent, error) {
	return e.repo.ListAgents(ctx, storeID, nil)
}

// SetAgentStatus is the agent's own online/offline toggle. An agent with
// active assignments cannot go straight to Idle.
func (e *Engine) SetAgentStatus(ctx context.Context, id uuid.UUID, status AgentStatus) error {
	a, err := e.repo.GetAgent(ctx, id)
	if err != nil {
		return err
	}
	if status == AgentIdle && a.Load > 0 {
		return ErrAgentNotIdle
	}
	return e.repo.SetAgentStatus(ctx, id, status)
}

type candidate struct {
	agent Agent
	eta   int
}

// AssignAuto picks the best Idle agent of the store for the order. The
// candidate snapshot and the oracle calls run without holding anything;
// the claim itself is the atomic step, so a losing race just moves on to
// the next candidate.
func (e *Engine) AssignAuto(ctx context.Context, orderID, storeID uuid.UUID, dest *geo.Location) (*Assignment, error) {
	idle := AgentIdle
	agents, err := e.repo.ListAgents(ctx, storeID, &idle)
	if err != nil {
		return nil, fmt.Errorf("delivery: failed to list idle agents: %w", err)
	}
	if len(agents) == 0 {
		return nil, ErrNoAgentAvailable
	}

	candidates := make([]candidate, 0, len(agents))
	for _, a := range agents {
		eta := 0
		if dest != nil && a.Lat != nil && a.Lng != nil {
			minutes, err := e.oracle.ETA(ctx, geo.Location{Lat: *a.Lat, Lng: *a.Lng}, *dest)
			if err != nil {
				log.Warn().Err(err).Stringer("agent_id", a.ID).Msg("delivery: eta oracle failed, treating agent as nearest")
			} else {
				eta = minutes
			}
		}
		candidates = append(candidates, candidate{agent: a, eta: eta})
	}
	sort.Slice(candidates, func(i, j int) bool { return e.less(candidates[i], candidates[j]) })

	for _, c := range candidates {
		if err := e.repo.ClaimAgent(ctx, c.agent.ID); err != nil {
			if errors.Is(err, ErrAgentNotIdle) {
				continue
			}
			return nil, fmt.Errorf("delivery: failed to claim agent %s: %w", c.agent.ID, err)
		}
		asg, err := e.createAssignment(ctx, orderID, c.agent.ID, c.eta)
		if err != nil {
			if unErr := e.repo.UnassignAgent(ctx, c.agent.ID); unErr != nil {
				log.Error().Err(unErr).Stringer("agent_id", c.agent.ID).Msg("delivery: failed to unclaim agent after assignment failure")
			}
			return nil, err
		}
		e.notifier.Publish(ctx, notify.NewEvent(notify.EventAgentAssigned, map[string]any{
			"order_id": orderID.String(),
			"agent_id": c.agent.ID.String(),
		}))
		return asg, nil
	}
	return nil, ErrNoAgentAvailable
}

func (e *Engine) less(a, b candidate) bool {
	if e.strategy == StrategyDistanceFirst {
		if a.eta != b.eta {
			return a.eta < b.eta
		}
		if a.agent.Load != b.agent.Load {
			return a.agent.Load < b.agent.Load
		}
	} else {
		if a.agent.Load != b.agent.Load {
			return a.agent.Load < b.agent.Load
		}
		if a.eta != b.eta {
			return a.eta < b.eta
		}
	}
	return bytes.Compare(a.agent.ID.Bytes(), b.agent.ID.Bytes()) < 0
}

func (e *Engine) createAssignment(ctx context.Context, orderID, agentID uuid.UUID, eta int) (*Assignment, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("delivery: failed to generate assignment ID: %w", err)
	}
	asg := &Assignment{
		ID:         id,
		OrderID:    orderID,
		AgentID:    agentID,
		Status:     AssignmentActive,
		AssignedAt: time.Now().UTC(),
	}
	if eta > 0 {
		asg.ETAMinutes = &eta
	}
	if err := e.repo.CreateAssignment(ctx, asg); err != nil {
		return nil, fmt.Errorf("delivery: failed to create assignment: %w", err)
	}
	return asg, nil
}

// ManualAssign replaces the order's assignment with the given agent. The new
// agent is claimed first; only then is the previous assignment cancelled and
// its agent's load corrected, so the order is never left uncovered.
func (e *Engine) ManualAssign(ctx context.Context, orderID, agentID uuid.UUID) (*Assignment, error) {
	if err := e.repo.ClaimAgent(ctx, agentID); err != nil {
		return nil, err
	}

	previous, err := e.repo.ActiveAssignmentByOrder(ctx, orderID)
	if err != nil && !errors.Is(err, ErrAssignmentNotFound) {
		if unErr := e.repo.UnassignAgent(ctx, agentID); unErr != nil {
			log.Error().Err(unErr).Stringer("agent_id", agentID).Msg("delivery: failed to unclaim agent after lookup failure")
		}
		return nil, err
	}
	if previous != nil {
		if err := e.repo.FinishAssignment(ctx, previous.ID, AssignmentCancelled, time.Now().UTC()); err != nil {
			log.Error().Err(err).Stringer("assignment_id", previous.ID).Msg("delivery: failed to cancel previous assignment")
		} else if err := e.repo.UnassignAgent(ctx, previous.AgentID); err != nil {
			log.Error().Err(err).Stringer("agent_id", previous.AgentID).Msg("delivery: failed to release previous agent")
		}
	}

	asg, err := e.createAssignment(ctx, orderID, agentID, 0)
	if err != nil {
		if unErr := e.repo.UnassignAgent(ctx, agentID); unErr != nil {
			log.Error().Err(unErr).Stringer("agent_id", agentID).Msg("delivery: failed to unclaim agent after assignment failure")
		}
		return nil, err
	}
	e.notifier.Publish(ctx, notify.NewEvent(notify.EventAgentAssigned, map[string]any{
		"order_id": orderID.String(),
		"agent_id": agentID.String(),
		"manual":   true,
	}))
	return asg, nil
}

// Unassign cancels the order's active assignment, if any, and releases its
// agent.
func (e *Engine) Unassign(ctx context.Context, orderID uuid.UUID) error {
	asg, err := e.repo.ActiveAssignmentByOrder(ctx, orderID)
	if errors.Is(err, ErrAssignmentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := e.repo.FinishAssignment(ctx, asg.ID, AssignmentCancelled, time.Now().UTC()); err != nil {
		return err
	}
	return e.repo.UnassignAgent(ctx, asg.AgentID)
}

// Complete closes the order's active assignment after delivery and returns
// the agent's capacity.
func (e *Engine) Complete(ctx context.Context, orderID uuid.UUID) error {
	asg, err := e.repo.ActiveAssignmentByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := e.repo.FinishAssignment(ctx, asg.ID, AssignmentCompleted, time.Now().UTC()); err != nil {
		return err
	}
	return e.repo.UnassignAgent(ctx, asg.AgentID)
}

// RecordProof stores the delivery artifact the agent captured. The artifact
// must carry a photo reference or an OTP code matching its kind.
func (e *Engine) RecordProof(ctx context.Context, p *Proof) error {
	switch p.Kind {
	case ProofPhoto:
		if p.PhotoRef == "" {
			return errors.New("delivery: photo proof requires a photo reference")
		}
	case ProofOTP:
		if p.OTPCode == "" {
			return errors.New("delivery: otp proof requires a code")
		}
	default:
		return fmt.Errorf("delivery: unknown proof kind %q", p.Kind)
	}
	asg, err := e.repo.ActiveAssignmentByOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if asg.AgentID != p.AgentID {
		return ErrAssignmentNotFound
	}
	if p.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("delivery: failed to generate proof ID: %w", err)
		}
		p.ID = id
	}
	p.CapturedAt = time.Now().UTC()
	if err := e.repo.SaveProof(ctx, p); err != nil {
		return fmt.Errorf("delivery: failed to save proof: %w", err)
	}
	return nil
}

// HasProof reports whether a delivery artifact exists for the order.
func (e *Engine) HasProof(ctx context.Context, orderID uuid.UUID) (bool, error) {
	_, err := e.repo.ProofByOrder(ctx, orderID)
	if errors.Is(err, ErrProofNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
