package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateAgent(ctx context.Context, a *Agent) error {
	a.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO delivery_agents (id, store_id, name, phone, status, load, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
	`
	_, err := r.db.Exec(ctx, query, a.ID, a.StoreID, a.Name, a.Phone, a.Status, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert agent: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	query := `
		SELECT id, store_id, name, phone, status, load, lat, lng, location_at, created_at
		FROM delivery_agents
		WHERE id = $1
	`
	var a Agent
	err := r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.StoreID, &a.Name, &a.Phone, &a.Status,
		&a.Load, &a.Lat, &a.Lng, &a.LocationAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select agent %s: %w", id, err)
	}
	return &a, nil
}

func (r *postgresRepository) ListAgents(ctx context.Context, storeID uuid.UUID, status *AgentStatus) ([]Agent, error) {
	query := `
		SELECT id, store_id, name, phone, status, load, lat, lng, location_at, created_at
		FROM delivery_agents
		WHERE store_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, storeID, status)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query agents: %w", err)
	}
	defer rows.Close()

	agents := make([]Agent, 0)
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.StoreID, &a.Name, &a.Phone, &a.Status,
			&a.Load, &a.Lat, &a.Lng, &a.LocationAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating agents: %w", err)
	}
	return agents, nil
}

func (r *postgresRepository) SetAgentStatus(ctx context.Context, id uuid.UUID, status AgentStatus) error {
	result, err := r.db.Exec(ctx, `UPDATE delivery_agents SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("repository: failed to update agent %s status: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (r *postgresRepository) UpdateAgentLocation(ctx context.Context, id uuid.UUID, lat, lng float64, at time.Time) error {
	result, err := r.db.Exec(ctx,
		`UPDATE delivery_agents SET lat = $1, lng = $2, location_at = $3 WHERE id = $4`,
		lat, lng, at, id)
	if err != nil {
		return fmt.Errorf("repository: failed to update agent %s location: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// ClaimAgent wins or loses in a single conditional statement, so two
// concurrent claims of the same agent can never both succeed.
func (r *postgresRepository) ClaimAgent(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE delivery_agents
		SET status = $1, load = load + 1
		WHERE id = $2 AND status = $3
	`
	result, err := r.db.Exec(ctx, query, AgentAssigned, id, AgentIdle)
	if err != nil {
		return fmt.Errorf("repository: failed to claim agent %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		if _, getErr := r.GetAgent(ctx, id); getErr != nil {
			return getErr
		}
		return ErrAgentNotIdle
	}
	return nil
}

func (r *postgresRepository) UnassignAgent(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE delivery_agents
		SET load = GREATEST(load - 1, 0),
		    status = CASE WHEN load <= 1 AND status = $1 THEN $2 ELSE status END
		WHERE id = $3
	`
	result, err := r.db.Exec(ctx, query, AgentAssigned, AgentIdle, id)
	if err != nil {
		return fmt.Errorf("repository: failed to unassign agent %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (r *postgresRepository) CreateAssignment(ctx context.Context, a *Assignment) error {
	query := `
		INSERT INTO delivery_assignments (id, order_id, agent_id, status, eta_minutes, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, a.ID, a.OrderID, a.AgentID, a.Status, a.ETAMinutes, a.AssignedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert assignment: %w", err)
	}
	return nil
}

func (r *postgresRepository) scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.OrderID, &a.AgentID, &a.Status, &a.ETAMinutes, &a.LastPingAt, &a.AssignedAt, &a.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("repository: failed to scan assignment: %w", err)
	}
	return &a, nil
}

func (r *postgresRepository) ActiveAssignmentByOrder(ctx context.Context, orderID uuid.UUID) (*Assignment, error) {
	query := `
		SELECT id, order_id, agent_id, status, eta_minutes, last_ping_at, assigned_at, completed_at
		FROM delivery_assignments
		WHERE order_id = $1 AND status = $2
	`
	return r.scanAssignment(r.db.QueryRow(ctx, query, orderID, AssignmentActive))
}

func (r *postgresRepository) ActiveAssignmentByAgent(ctx context.Context, agentID uuid.UUID) (*Assignment, error) {
	query := `
		SELECT id, order_id, agent_id, status, eta_minutes, last_ping_at, assigned_at, completed_at
		FROM delivery_assignments
		WHERE agent_id = $1 AND status = $2
		ORDER BY assigned_at DESC
		LIMIT 1
	`
	return r.scanAssignment(r.db.QueryRow(ctx, query, agentID, AssignmentActive))
}

func (r *postgresRepository) FinishAssignment(ctx context.Context, id uuid.UUID, status AssignmentStatus, at time.Time) error {
	query := `
		UPDATE delivery_assignments
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.Exec(ctx, query, status, at, id, AssignmentActive)
	if err != nil {
		return fmt.Errorf("repository: failed to finish assignment %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (r *postgresRepository) SetAssignmentETA(ctx context.Context, id uuid.UUID, minutes int) error {
	result, err := r.db.Exec(ctx, `UPDATE delivery_assignments SET eta_minutes = $1 WHERE id = $2`, minutes, id)
	if err != nil {
		return fmt.Errorf("repository: failed to update assignment %s eta: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// AppendPing advances the assignment's last ping timestamp with a conditional
// update; only a strictly newer ping passes, then the tracking row is written
// in the same transaction.
func (r *postgresRepository) AppendPing(ctx context.Context, p *Ping) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	guard := `
		UPDATE delivery_assignments
		SET last_ping_at = $1
		WHERE id = $2 AND status = $3 AND (last_ping_at IS NULL OR last_ping_at < $1)
	`
	result, err := tx.Exec(ctx, guard, p.Timestamp, p.AssignmentID, AssignmentActive)
	if err != nil {
		return fmt.Errorf("repository: failed to advance ping watermark: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrStalePing
	}

	insert := `
		INSERT INTO delivery_tracking (id, assignment_id, agent_id, lat, lng, ping_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, insert, p.ID, p.AssignmentID, p.AgentID, p.Lat, p.Lng, p.Timestamp); err != nil {
		return fmt.Errorf("repository: failed to insert tracking ping: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit ping: %w", err)
	}
	return nil
}

func (r *postgresRepository) LatestPing(ctx context.Context, assignmentID uuid.UUID) (*Ping, error) {
	query := `
		SELECT id, assignment_id, agent_id, lat, lng, ping_at
		FROM delivery_tracking
		WHERE assignment_id = $1
		ORDER BY ping_at DESC
		LIMIT 1
	`
	var p Ping
	err := r.db.QueryRow(ctx, query, assignmentID).Scan(&p.ID, &p.AssignmentID, &p.AgentID, &p.Lat, &p.Lng, &p.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: failed to select latest ping: %w", err)
	}
	return &p, nil
}

func (r *postgresRepository) SaveProof(ctx context.Context, p *Proof) error {
	query := `
		INSERT INTO proof_of_delivery (id, order_id, agent_id, kind, photo_ref, otp_code, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id)
		DO UPDATE SET agent_id = EXCLUDED.agent_id, kind = EXCLUDED.kind,
		              photo_ref = EXCLUDED.photo_ref, otp_code = EXCLUDED.otp_code,
		              captured_at = EXCLUDED.captured_at
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.OrderID, p.AgentID, p.Kind, p.PhotoRef, p.OTPCode, p.CapturedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to save proof: %w", err)
	}
	return nil
}

func (r *postgresRepository) ProofByOrder(ctx context.Context, orderID uuid.UUID) (*Proof, error) {
	query := `
		SELECT id, order_id, agent_id, kind, photo_ref, otp_code, captured_at
		FROM proof_of_delivery
		WHERE order_id = $1
	`
	var p Proof
	err := r.db.QueryRow(ctx, query, orderID).Scan(&p.ID, &p.OrderID, &p.AgentID, &p.Kind, &p.PhotoRef, &p.OTPCode, &p.CapturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProofNotFound
		}
		return nil, fmt.Errorf("repository: failed to select proof: %w", err)
	}
	return &p, nil
}
