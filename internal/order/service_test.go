package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/fulfillment-core/internal/delivery"
	"github.com/vasiliy-maslov/fulfillment-core/internal/geo"
	"github.com/vasiliy-maslov/fulfillment-core/internal/notify"
	"github.com/vasiliy-maslov/fulfillment-core/internal/order"
	"github.com/vasiliy-maslov/fulfillment-core/internal/slot"
)

type mockStockCommitter struct {
	commitFunc  func(ctx context.Context, reservationID uuid.UUID) error
	releaseFunc func(ctx context.Context, reservationID uuid.UUID) error
}

func (m *mockStockCommitter) Commit(ctx context.Context, reservationID uuid.UUID) error {
	if m.commitFunc != nil {
		return m.commitFunc(ctx, reservationID)
	}
	return nil
}

func (m *mockStockCommitter) Release(ctx context.Context, reservationID uuid.UUID) error {
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, reservationID)
	}
	return nil
}

type mockSlotBooker struct {
	bookFunc    func(ctx context.Context, id uuid.UUID) (*slot.Slot, error)
	releaseFunc func(ctx context.Context, id uuid.UUID) error
}

func (m *mockSlotBooker) Book(ctx context.Context, id uuid.UUID) (*slot.Slot, error) {
	if m.bookFunc != nil {
		return m.bookFunc(ctx, id)
	}
	return &slot.Slot{ID: id}, nil
}

func (m *mockSlotBooker) Release(ctx context.Context, id uuid.UUID) error {
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, id)
	}
	return nil
}

type mockDispatcher struct {
	assignAutoFunc func(ctx context.Context, orderID, storeID uuid.UUID, dest *geo.Location) (*delivery.Assignment, error)
	unassignFunc   func(ctx context.Context, orderID uuid.UUID) error
	completeFunc   func(ctx context.Context, orderID uuid.UUID) error
	hasProofFunc   func(ctx context.Context, orderID uuid.UUID) (bool, error)
}

func (m *mockDispatcher) AssignAuto(ctx context.Context, orderID, storeID uuid.UUID, dest *geo.Location) (*delivery.Assignment, error) {
	if m.assignAutoFunc != nil {
		return m.assignAutoFunc(ctx, orderID, storeID, dest)
	}
	return &delivery.Assignment{OrderID: orderID}, nil
}

func (m *mockDispatcher) Unassign(ctx context.Context, orderID uuid.UUID) error {
	if m.unassignFunc != nil {
		return m.unassignFunc(ctx, orderID)
	}
	return nil
}

func (m *mockDispatcher) Complete(ctx context.Context, orderID uuid.UUID) error {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, orderID)
	}
	return nil
}

func (m *mockDispatcher) HasProof(ctx context.Context, orderID uuid.UUID) (bool, error) {
	if m.hasProofFunc != nil {
		return m.hasProofFunc(ctx, orderID)
	}
	return true, nil
}

type mockGateway struct {
	authorizeFunc func(ctx context.Context, amount float64) (string, error)
	captureFunc   func(ctx context.Context, token string) error
}

func (m *mockGateway) Authorize(ctx context.Context, amount float64) (string, error) {
	if m.authorizeFunc != nil {
		return m.authorizeFunc(ctx, amount)
	}
	return "auth-test", nil
}

func (m *mockGateway) Capture(ctx context.Context, token string) error {
	if m.captureFunc != nil {
		return m.captureFunc(ctx, token)
	}
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *eventRecorder) Publish(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *eventRecorder) types() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	repo     order.Repository
	stock    *mockStockCommitter
	slots    *mockSlotBooker
	dispatch *mockDispatcher
	gateway  *mockGateway
	notifier *eventRecorder
	service  *order.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     order.NewMemoryRepository(),
		stock:    &mockStockCommitter{},
		slots:    &mockSlotBooker{},
		dispatch: &mockDispatcher{},
		gateway:  &mockGateway{},
		notifier: &eventRecorder{},
	}
	f.service = order.NewService(f.repo, f.stock, f.slots, f.dispatch, f.gateway, f.notifier)
	return f
}

// seedOrder writes an order with one item straight into the repository, in
// whatever status the test needs as a starting point.
func (f *fixture) seedOrder(t *testing.T, status order.Status, mutate func(o *order.Order)) *order.Order {
	t.Helper()
	o := &order.Order{
		ID:           uuid.Must(uuid.NewV4()),
		Number:       "ORD-20260829-TEST",
		CustomerID:   uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000")),
		StoreID:      uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440001")),
		Zip:          "100001",
		Status:       status,
		Address:      "12 Market Lane",
		Subtotal:     42,
		Total:        45,
		PaymentToken: "auth-seed",
	}
	if mutate != nil {
		mutate(o)
	}
	items := []order.Item{
		{
			ID:            uuid.Must(uuid.NewV4()),
			OrderID:       o.ID,
			ProductID:     uuid.Must(uuid.NewV4()),
			Name:          "Whole milk 1L",
			Qty:           2,
			UnitPrice:     21,
			ReservationID: uuid.Must(uuid.NewV4()),
		},
	}
	require.NoError(t, f.repo.Create(context.Background(), o, items))
	return o
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from order.Status
		to   order.Status
		want bool
	}{
		{order.StatusPlaced, order.StatusAccepted, true},
		{order.StatusPlaced, order.StatusCancelled, true},
		{order.StatusPlaced, order.StatusPacked, false},
		{order.StatusPlaced, order.StatusDelivered, false},
		{order.StatusAccepted, order.StatusPacked, true},
		{order.StatusAccepted, order.StatusCancelled, true},
		{order.StatusAccepted, order.StatusOutForDelivery, false},
		{order.StatusPacked, order.StatusOutForDelivery, true},
		{order.StatusPacked, order.StatusCancelled, true},
		{order.StatusPacked, order.StatusDelivered, false},
		{order.StatusOutForDelivery, order.StatusDelivered, true},
		{order.StatusOutForDelivery, order.StatusCancelled, false},
		{order.StatusDelivered, order.StatusCancelled, false},
		{order.StatusCancelled, order.StatusPlaced, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, order.CanTransition(tt.from, tt.to))
		})
	}
}

func TestService_Place(t *testing.T) {
	f := newFixture(t)

	o := &order.Order{
		CustomerID: uuid.Must(uuid.NewV4()),
		StoreID:    uuid.Must(uuid.NewV4()),
		Zip:        "100001",
		Total:      99.5,
	}
	items := []order.Item{{ProductID: uuid.Must(uuid.NewV4()), Qty: 1, UnitPrice: 99.5, ReservationID: uuid.Must(uuid.NewV4())}}

	placed, err := f.service.Place(context.Background(), o, items)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, placed.ID)
	assert.Equal(t, order.StatusPlaced, placed.Status)
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{8}$`, placed.Number)

	history, err := f.service.History(context.Background(), placed.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, order.StatusPlaced, history[0].ToStatus)
	assert.Equal(t, "customer", history[0].Actor)

	assert.Equal(t, []notify.EventType{notify.EventOrderPlaced}, f.notifier.types())
}

func TestService_Place_NoItems(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Place(context.Background(), &order.Order{}, nil)
	assert.EqualError(t, err, "order: at least one item is required")
}

func TestService_Accept(t *testing.T) {
	f := newFixture(t)
	slotID := uuid.Must(uuid.NewV4())
	o := f.seedOrder(t, order.StatusPlaced, func(o *order.Order) { o.SlotID = &slotID })

	var booked, committed, captured []uuid.UUID
	var capturedToken string
	f.slots.bookFunc = func(_ context.Context, id uuid.UUID) (*slot.Slot, error) {
		booked = append(booked, id)
		return &slot.Slot{ID: id}, nil
	}
	f.stock.commitFunc = func(_ context.Context, reservationID uuid.UUID) error {
		committed = append(committed, reservationID)
		return nil
	}
	f.gateway.captureFunc = func(_ context.Context, token string) error {
		capturedToken = token
		captured = append(captured, o.ID)
		return nil
	}

	require.NoError(t, f.service.Accept(context.Background(), o.ID, "store-staff"))

	got, err := f.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAccepted, got.Status)
	assert.Equal(t, []uuid.UUID{slotID}, booked)
	assert.Len(t, committed, 1)
	assert.Len(t, captured, 1)
	assert.Equal(t, "auth-seed", capturedToken)
}

func TestService_Accept_CommitFailureReleasesSlot(t *testing.T) {
	f := newFixture(t)
	slotID := uuid.Must(uuid.NewV4())
	o := f.seedOrder(t, order.StatusPlaced, func(o *order.Order) { o.SlotID = &slotID })

	var released []uuid.UUID
	f.stock.commitFunc = func(_ context.Context, _ uuid.UUID) error {
		return inventoryFailure
	}
	f.slots.releaseFunc = func(_ context.Context, id uuid.UUID) error {
		released = append(released, id)
		return nil
	}

	err := f.service.Accept(context.Background(), o.ID, "store-staff")
	require.Error(t, err)
	assert.ErrorIs(t, err, inventoryFailure)

	got, getErr := f.service.Get(context.Background(), o.ID)
	require.NoError(t, getErr)
	assert.Equal(t, order.StatusPlaced, got.Status, "order must stay Placed after a failed accept")
	assert.Equal(t, []uuid.UUID{slotID}, released, "the booked seat must be returned")
}

var inventoryFailure = errors.New("reservation already released")

func TestService_Accept_SlotFull(t *testing.T) {
	f := newFixture(t)
	slotID := uuid.Must(uuid.NewV4())
	o := f.seedOrder(t, order.StatusPlaced, func(o *order.Order) { o.SlotID = &slotID })

	var commits int
	f.slots.bookFunc = func(_ context.Context, _ uuid.UUID) (*slot.Slot, error) {
		return nil, slot.ErrSlotFull
	}
	f.stock.commitFunc = func(_ context.Context, _ uuid.UUID) error {
		commits++
		return nil
	}

	err := f.service.Accept(context.Background(), o.ID, "store-staff")
	assert.ErrorIs(t, err, slot.ErrSlotFull)
	assert.Zero(t, commits, "stock must not be committed when the slot is full")

	got, getErr := f.service.Get(context.Background(), o.ID)
	require.NoError(t, getErr)
	assert.Equal(t, order.StatusPlaced, got.Status)
}

func TestService_Accept_InvalidStatus(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, order.StatusPacked, nil)

	err := f.service.Accept(context.Background(), o.ID, "store-staff")
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestService_MarkPacked(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, order.StatusAccepted, nil)

	require.NoError(t, f.service.MarkPacked(context.Background(), o.ID, "store-staff"))

	got, err := f.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPacked, got.Status)
}

func TestService_Dispatch_AutoAssignsAgent(t *testing.T) {
	f := newFixture(t)
	lat, lng := 55.75, 37.61
	o := f.seedOrder(t, order.StatusPacked, func(o *order.Order) {
		o.DropLat = &lat
		o.DropLng = &lng
	})

	agentID := uuid.Must(uuid.NewV4())
	var gotDest *geo.Location
	f.dispatch.assignAutoFunc = func(_ context.Context, orderID, storeID uuid.UUID, dest *geo.Location) (*delivery.Assignment, error) {
		gotDest = dest
		return &delivery.Assignment{OrderID: orderID, AgentID: agentID}, nil
	}

	require.NoError(t, f.service.Dispatch(context.Background(), o.ID, "store-staff"))

	got, err := f.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusOutForDelivery, got.Status)
	require.NotNil(t, got.AgentID)
	assert.Equal(t, agentID, *got.AgentID)
	require.NotNil(t, gotDest)
	assert.Equal(t, lat, gotDest.Lat)
	assert.Equal(t, lng, gotDest.Lng)
}

func TestService_Dispatch_NoAgentAvailable(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, order.StatusPacked, nil)

	f.dispatch.assignAutoFunc = func(_ context.Context, _, _ uuid.UUID, _ *geo.Location) (*delivery.Assignment, error) {
		return nil, delivery.ErrNoAgentAvailable
	}

	err := f.service.Dispatch(context.Background(), o.ID, "store-staff")
	assert.ErrorIs(t, err, delivery.ErrNoAgentAvailable)

	got, getErr := f.service.Get(context.Background(), o.ID)
	require.NoError(t, getErr)
	assert.Equal(t, order.StatusPacked, got.Status, "order must stay Packed for a retry or manual assignment")
}

func TestService_Dispatch_KeepsManuallyAssignedAgent(t *testing.T) {
	f := newFixture(t)
	agentID := uuid.Must(uuid.NewV4())
	o := f.seedOrder(t, order.StatusPacked, func(o *order.Order) { o.AgentID = &agentID })

	f.dispatch.assignAutoFunc = func(_ context.Context, _, _ uuid.UUID, _ *geo.Location) (*delivery.Assignment, error) {
		t.Fatal("auto-assignment must not run for an already assigned order")
		return nil, nil
	}

	require.NoError(t, f.service.Dispatch(context.Background(), o.ID, "store-staff"))

	got, err := f.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusOutForDelivery, got.Status)
	require.NotNil(t, got.AgentID)
	assert.Equal(t, agentID, *got.AgentID)
}

func TestService_Deliver(t *testing.T) {
	agentID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name       string
		status     order.Status
		agentID    *uuid.UUID
		hasProof   bool
		wantErrIs  error
		wantStatus order.Status
	}{
		{
			name:       "success",
			status:     order.StatusOutForDelivery,
			agentID:    &agentID,
			hasProof:   true,
			wantStatus: order.StatusDelivered,
		},
		{
			name:       "missing proof",
			status:     order.StatusOutForDelivery,
			agentID:    &agentID,
			hasProof:   false,
			wantErrIs:  order.ErrProofRequired,
			wantStatus: order.StatusOutForDelivery,
		},
		{
			name:       "no agent assigned",
			status:     order.StatusOutForDelivery,
			agentID:    nil,
			hasProof:   true,
			wantErrIs:  order.ErrAgentNotAssigned,
			wantStatus: order.StatusOutForDelivery,
		},
		{
			name:       "not out for delivery",
			status:     order.StatusPacked,
			agentID:    &agentID,
			hasProof:   true,
			wantErrIs:  order.ErrInvalidTransition,
			wantStatus: order.StatusPacked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.seedOrder(t, tt.status, func(o *order.Order) { o.AgentID = tt.agentID })

			var completed int
			f.dispatch.hasProofFunc = func(_ context.Context, _ uuid.UUID) (bool, error) {
				return tt.hasProof, nil
			}
			f.dispatch.completeFunc = func(_ context.Context, _ uuid.UUID) error {
				completed++
				return nil
			}

			err := f.service.Deliver(context.Background(), o.ID, "agent")

			got, getErr := f.service.Get(context.Background(), o.ID)
			require.NoError(t, getErr)
			assert.Equal(t, tt.wantStatus, got.Status)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				assert.Zero(t, completed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, completed)
			assert.Contains(t, f.notifier.types(), notify.EventOrderDelivered)
		})
	}
}

func TestService_Cancel(t *testing.T) {
	slotID := uuid.Must(uuid.NewV4())
	agentID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name          string
		status        order.Status
		slotID        *uuid.UUID
		agentID       *uuid.UUID
		wantErrIs     error
		wantSlotFreed bool
		wantUnassign  bool
	}{
		{
			name:   "from placed, seat never consumed",
			status: order.StatusPlaced,
			slotID: &slotID,
		},
		{
			name:          "from accepted, seat returned",
			status:        order.StatusAccepted,
			slotID:        &slotID,
			wantSlotFreed: true,
		},
		{
			name:          "from packed with assigned agent",
			status:        order.StatusPacked,
			slotID:        &slotID,
			agentID:       &agentID,
			wantSlotFreed: true,
			wantUnassign:  true,
		},
		{
			name:      "out for delivery is too late",
			status:    order.StatusOutForDelivery,
			wantErrIs: order.ErrCancellationWindowClosed,
		},
		{
			name:      "delivered is terminal",
			status:    order.StatusDelivered,
			wantErrIs: order.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.seedOrder(t, tt.status, func(o *order.Order) {
				o.SlotID = tt.slotID
				o.AgentID = tt.agentID
			})

			var released, slotFreed, unassigned int
			f.stock.releaseFunc = func(_ context.Context, _ uuid.UUID) error {
				released++
				return nil
			}
			f.slots.releaseFunc = func(_ context.Context, id uuid.UUID) error {
				assert.Equal(t, slotID, id)
				slotFreed++
				return nil
			}
			f.dispatch.unassignFunc = func(_ context.Context, _ uuid.UUID) error {
				unassigned++
				return nil
			}

			err := f.service.Cancel(context.Background(), o.ID, "customer", "changed my mind")

			got, getErr := f.service.Get(context.Background(), o.ID)
			require.NoError(t, getErr)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				assert.Equal(t, tt.status, got.Status)
				assert.Zero(t, released)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, order.StatusCancelled, got.Status)
			require.NotNil(t, got.CancelReason)
			assert.Equal(t, "changed my mind", *got.CancelReason)
			assert.Equal(t, 1, released)
			if tt.wantSlotFreed {
				assert.Equal(t, 1, slotFreed)
			} else {
				assert.Zero(t, slotFreed)
			}
			if tt.wantUnassign {
				assert.Equal(t, 1, unassigned)
				assert.Nil(t, got.AgentID)
			} else {
				assert.Zero(t, unassigned)
			}
			assert.Contains(t, f.notifier.types(), notify.EventOrderCancelled)
		})
	}
}

func TestService_Get_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Get(context.Background(), uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestService_DropLocation(t *testing.T) {
	f := newFixture(t)
	lat, lng := 55.75, 37.61
	withCoords := f.seedOrder(t, order.StatusPlaced, func(o *order.Order) {
		o.DropLat = &lat
		o.DropLng = &lng
	})
	withoutCoords := f.seedOrder(t, order.StatusPlaced, nil)

	loc, err := f.service.DropLocation(context.Background(), withCoords.ID)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, geo.Location{Lat: lat, Lng: lng}, *loc)

	loc, err = f.service.DropLocation(context.Background(), withoutCoords.ID)
	require.NoError(t, err)
	assert.Nil(t, loc)
}
