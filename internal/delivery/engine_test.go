package delivery_test

import (
	"context"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/fulfillment-core/internal/delivery"
	"github.com/vasiliy-maslov/fulfillment-core/internal/geo"
	"github.com/vasiliy-maslov/fulfillment-core/internal/notify"
)

type oracleFunc func(ctx context.Context, from, to geo.Location) (int, error)

func (f oracleFunc) ETA(ctx context.Context, from, to geo.Location) (int, error) {
	return f(ctx, from, to)
}

var flatOracle = oracleFunc(func(_ context.Context, _, _ geo.Location) (int, error) {
	return 1, nil
})

type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *eventRecorder) Publish(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func newTestEngine(t *testing.T, strategy delivery.Strategy) (*delivery.Engine, delivery.Repository) {
	t.Helper()
	repo := delivery.NewMemoryRepository()
	return delivery.NewEngine(repo, flatOracle, &eventRecorder{}, strategy), repo
}

// idleAgent registers an agent with a fixed ID and flips it online. IDs are
// fixed so that ordering assertions are deterministic.
func idleAgent(t *testing.T, engine *delivery.Engine, storeID uuid.UUID, idSuffix string, loc *geo.Location) *delivery.Agent {
	t.Helper()
	a := &delivery.Agent{
		ID:      uuid.Must(uuid.FromString("660e8400-e29b-41d4-a716-4466554400" + idSuffix)),
		StoreID: storeID,
		Name:    "Agent " + idSuffix,
	}
	if loc != nil {
		a.Lat = &loc.Lat
		a.Lng = &loc.Lng
	}
	require.NoError(t, engine.RegisterAgent(context.Background(), a))
	require.NoError(t, engine.SetAgentStatus(context.Background(), a.ID, delivery.AgentIdle))
	return a
}

func TestEngine_RegisterAgent(t *testing.T) {
	engine, _ := newTestEngine(t, "")
	storeID := uuid.Must(uuid.NewV4())

	a := &delivery.Agent{StoreID: storeID, Name: "Pavel"}
	require.NoError(t, engine.RegisterAgent(context.Background(), a))

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, delivery.AgentOffline, a.Status, "a fresh agent starts offline")

	err := engine.RegisterAgent(context.Background(), &delivery.Agent{StoreID: storeID})
	assert.EqualError(t, err, "delivery: agent name is required")

	err = engine.RegisterAgent(context.Background(), &delivery.Agent{Name: "Nobody"})
	assert.EqualError(t, err, "delivery: store is required")
}

func TestEngine_AssignAuto_NoIdleAgents(t *testing.T) {
	engine, _ := newTestEngine(t, "")
	storeID := uuid.Must(uuid.NewV4())

	// One agent exists but is offline.
	a := &delivery.Agent{StoreID: storeID, Name: "Offline"}
	require.NoError(t, engine.RegisterAgent(context.Background(), a))

	_, err := engine.AssignAuto(context.Background(), uuid.Must(uuid.NewV4()), storeID, nil)
	assert.ErrorIs(t, err, delivery.ErrNoAgentAvailable)
}

func TestEngine_AssignAuto_TieBreaksByAgentID(t *testing.T) {
	engine, _ := newTestEngine(t, "")
	storeID := uuid.Must(uuid.NewV4())

	// Registration order is reversed on purpose; the lower ID must still win.
	second := idleAgent(t, engine, storeID, "02", nil)
	first := idleAgent(t, engine, storeID, "01", nil)
	_ = second

	asg, err := engine.AssignAuto(context.Background(), uuid.Must(uuid.NewV4()), storeID, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, asg.AgentID)
}

func TestEngine_AssignAuto_LoadFirstPrefersLeastBusy(t *testing.T) {
	engine, _ := newTestEngine(t, delivery.StrategyLoadFirst)
	storeID := uuid.Must(uuid.NewV4())

	busy := idleAgent(t, engine, storeID, "01", nil)
	free := idleAgent(t, engine, storeID, "02", nil)

	// First order goes to the lower ID.
	asg, err := engine.AssignAuto(context.Background(), uuid.Must(uuid.NewV4()), storeID, nil)
	require.NoError(t, err)
	require.Equal(t, busy.ID, asg.AgentID)

	// The claimed agent is out of the idle pool, so the next order lands on
	// the other one even though its ID sorts higher.
	asg, err = engine.AssignAuto(context.Background(), uuid.Must(uuid.NewV4()), storeID, nil)
	require.NoError(t, err)
	assert.Equal(t, free.ID, asg.AgentID)
}

func TestEngine_AssignAuto_DistanceFirstPrefersNearest(t *testing.T) {
	repo := delivery.NewMemoryRepository()
	// The stub encodes the ETA in the latitude the test seeds.
	oracle := oracleFunc(func(_ context.Context, from, _ geo.Location) (int, error) {
		return int(from.Lat), nil
	})
	engine := delivery.NewEngine(repo, oracle, &eventRecorder{}, delivery.StrategyDistanceFirst)
	storeID := uuid.Must(uuid.NewV4())
	dest := &geo.Location{Lat: 55.75, Lng: 37.61}

	idleAgent(t, engine, storeID, "01", &geo.Location{Lat: 30, Lng: 0})
	near := idleAgent(t, engine, storeID, "02", &geo.Location{Lat: 5, Lng: 0})

	asg, err := engine.AssignAuto(context.Background(), uuid.Must(uuid.NewV4()), storeID, dest)
	require.NoError(t, err)
	assert.Equal(t, near.ID, asg.AgentID, "distance_first must pick the nearest agent despite its higher ID")
}

func TestEngine_AssignAuto_LoadFirstSplitsEqualLoadByETA(t *testing.T) {
	repo := delivery.NewMemoryRepository()
	oracle := oracleFunc(func(_ context.Context, from, _ geo.Location) (int, error) {
		return int(from.Lat), nil
	})
	engine := delivery.NewEngine(repo, oracle, &eventRecorder{}, delivery.StrategyLoadFirst)
	storeID := uuid.Must(uuid.NewV4())
	dest := &geo.Location{Lat: 55.75, Lng: 37.61}

	far := idleAgent(t, engine, storeID, "01", &geo.Location{Lat: 30, Lng: 0})
	idleAgent(t, engine, storeID, "02", &geo.Location{Lat: 5, Lng: 0})

	// Equal load everywhere, so ETA is the deciding key under load_first too,
	// but only after load; with equal loads the nearer agent wins regardless
	// of ID order.
	asg, err := engine.AssignAuto(context.Background(), uuid.Must(uuid.NewV4()), storeID, dest)
	require.NoError(t, err)
	assert.NotEqual(t, far.ID, asg.AgentID)
}

func TestEngine_AssignAuto_OracleFailureDegradesToLoad(t *testing.T) {
	repo := delivery.NewMemoryRepository()
	oracle := oracleFunc(func(_ context.Context, _, _ geo.Location) (int, error) {
		return 0, context.DeadlineExceeded
	})
	engine := delivery.NewEngine(repo, oracle, &eventRecorder{}, "")
	storeID := uuid.Must(uuid.NewV4())

	a := idleAgent(t, engine, storeID, "01", &geo.Location{Lat: 1, Lng: 1})

	asg, err := engine.AssignAuto(context.Background(), uuid.Must(uuid.NewV4()), storeID, &geo.Location{Lat: 2, Lng: 2})
	require.NoError(t, err, "a broken oracle must not block assignment")
	assert.Equal(t, a.ID, asg.AgentID)
	assert.Nil(t, asg.ETAMinutes)
}

// Two orders racing for the single idle agent: one wins the claim, the other
// walks its candidate list to the end and reports no capacity.
func TestEngine_AssignAuto_ConcurrentClaimsSingleAgent(t *testing.T) {
	engine, _ := newTestEngine(t, "")
	storeID := uuid.Must(uuid.NewV4())
	idleAgent(t, engine, storeID, "01", nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.AssignAuto(context.Background(), uuid.Must(uuid.NewV4()), storeID, nil)
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, delivery.ErrNoAgentAvailable)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestEngine_ManualAssign_ReplacesExistingAssignment(t *testing.T) {
	engine, _ := newTestEngine(t, "")
	storeID := uuid.Must(uuid.NewV4())
	orderID := uuid.Must(uuid.NewV4())

	first := idleAgent(t, engine, storeID, "01", nil)
	second := idleAgent(t, engine, storeID, "02", nil)

	asg, err := engine.AssignAuto(context.Background(), orderID, storeID, nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, asg.AgentID)

	replacement, err := engine.ManualAssign(context.Background(), orderID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, replacement.AgentID)

	// The displaced agent gets its capacity back.
	a, err := engine.Agent(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Load)
	assert.Equal(t, delivery.AgentIdle, a.Status)

	b, err := engine.Agent(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Load)
	assert.Equal(t, delivery.AgentAssigned, b.Status)
}

func TestEngine_ManualAssign_BusyAgent(t *testing.T) {
	engine, _ := newTestEngine(t, "")
	storeID := uuid.Must(uuid.NewV4())

	agent := idleAgent(t, engine, storeID, "01", nil)
	_, err := engine.ManualAssign(context.Background(), uuid.Must(uuid.NewV4()), agent.ID)
	require.NoError(t, err)

	_, err = engine.ManualAssign(context.Background(), uuid.Must(uuid.NewV4()), agent.ID)
	assert.ErrorIs(t, err, delivery.ErrAgentNotIdle)
}

func TestEngine_Complete_ReleasesAgent(t *testing.T) {
	engine, _ := newTestEngine(t, "")
	storeID := uuid.Must(uuid.NewV4())
	orderID := uuid.Must(uuid.NewV4())
	agent := idleAgent(t, engine, storeID, "01", nil)

	_, err := engine.AssignAuto(context.Background(), orderID, storeID, nil)
	require.NoError(t, err)

	require.NoError(t, engine.Complete(context.Background(), orderID))

	a, err := engine.Agent(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Load)
	assert.Equal(t, delivery.AgentIdle, a.Status)

	// Completing twice: the assignment is no longer active.
	err = engine.Complete(context.Background(), orderID)
	assert.ErrorIs(t, err, delivery.ErrAssignmentNotFound)
}

func TestEngine_Unassign_NoActiveAssignment(t *testing.T) {
	engine, _ := newTestEngine(t, "")

	assert.NoError(t, engine.Unassign(context.Background(), uuid.Must(uuid.NewV4())),
		"unassigning an order without an assignment is a no-op")
}

func TestEngine_SetAgentStatus_BusyAgentCannotGoIdle(t *testing.T) {
	engine, _ := newTestEngine(t, "")
	storeID := uuid.Must(uuid.NewV4())
	agent := idleAgent(t, engine, storeID, "01", nil)

	_, err := engine.ManualAssign(context.Background(), uuid.Must(uuid.NewV4()), agent.ID)
	require.NoError(t, err)

	err = engine.SetAgentStatus(context.Background(), agent.ID, delivery.AgentIdle)
	assert.ErrorIs(t, err, delivery.ErrAgentNotIdle)
}

func TestEngine_RecordProof(t *testing.T) {
	tests := []struct {
		name       string
		proof      delivery.Proof
		wantErrMsg string
	}{
		{
			name:  "photo proof",
			proof: delivery.Proof{Kind: delivery.ProofPhoto, PhotoRef: "s3://pod/abc.jpg"},
		},
		{
			name:  "otp proof",
			proof: delivery.Proof{Kind: delivery.ProofOTP, OTPCode: "4821"},
		},
		{
			name:       "photo proof without reference",
			proof:      delivery.Proof{Kind: delivery.ProofPhoto},
			wantErrMsg: "delivery: photo proof requires a photo reference",
		},
		{
			name:       "otp proof without code",
			proof:      delivery.Proof{Kind: delivery.ProofOTP},
			wantErrMsg: "delivery: otp proof requires a code",
		},
		{
			name:       "unknown kind",
			proof:      delivery.Proof{Kind: "SIGNATURE"},
			wantErrMsg: `delivery: unknown proof kind "SIGNATURE"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t, "")
			storeID := uuid.Must(uuid.NewV4())
			orderID := uuid.Must(uuid.NewV4())
			agent := idleAgent(t, engine, storeID, "01", nil)
			_, err := engine.AssignAuto(context.Background(), orderID, storeID, nil)
			require.NoError(t, err)

			p := tt.proof
			p.OrderID = orderID
			p.AgentID = agent.ID

			err = engine.RecordProof(context.Background(), &p)
			if tt.wantErrMsg != "" {
				assert.EqualError(t, err, tt.wantErrMsg)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, p.ID)
			assert.False(t, p.CapturedAt.IsZero())

			ok, err := engine.HasProof(context.Background(), orderID)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestEngine_RecordProof_WrongAgent(t *testing.T) {
	engine, _ := newTestEngine(t, "")
	storeID := uuid.Must(uuid.NewV4())
	orderID := uuid.Must(uuid.NewV4())
	idleAgent(t, engine, storeID, "01", nil)
	intruder := idleAgent(t, engine, storeID, "02", nil)

	_, err := engine.AssignAuto(context.Background(), orderID, storeID, nil)
	require.NoError(t, err)

	err = engine.RecordProof(context.Background(), &delivery.Proof{
		OrderID: orderID,
		AgentID: intruder.ID,
		Kind:    delivery.ProofOTP,
		OTPCode: "4821",
	})
	assert.ErrorIs(t, err, delivery.ErrAssignmentNotFound)
}

func TestEngine_HasProof_None(t *testing.T) {
	engine, _ := newTestEngine(t, "")

	ok, err := engine.HasProof(context.Background(), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	assert.False(t, ok)
}
