package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/fulfillment-core/internal/inventory"
	"github.com/vasiliy-maslov/fulfillment-core/internal/notify"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) byType(t notify.EventType) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestLedger(t *testing.T, ttl time.Duration) (*inventory.Ledger, inventory.Repository, *recordingNotifier) {
	t.Helper()
	repo := inventory.NewMemoryRepository()
	notifier := &recordingNotifier{}
	return inventory.NewLedger(repo, notifier, ttl), repo, notifier
}

func seedItem(t *testing.T, ledger *inventory.Ledger, stock, threshold int, maxPerOrder *int) (uuid.UUID, uuid.UUID) {
	t.Helper()
	storeID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))
	productID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440001"))
	err := ledger.SetStock(context.Background(), &inventory.Item{
		StoreID:           storeID,
		ProductID:         productID,
		StockQty:          stock,
		LowStockThreshold: threshold,
		MaxPerOrder:       maxPerOrder,
	})
	require.NoError(t, err)
	return storeID, productID
}

func TestLedger_Reserve(t *testing.T) {
	maxTwo := 2

	tests := []struct {
		name        string
		stock       int
		maxPerOrder *int
		qty         int
		wantErrIs   error
		wantErrMsg  string
	}{
		{
			name:  "success",
			stock: 5,
			qty:   3,
		},
		{
			name:      "insufficient stock",
			stock:     2,
			qty:       3,
			wantErrIs: inventory.ErrInsufficientStock,
		},
		{
			name:       "non-positive quantity",
			stock:      5,
			qty:        0,
			wantErrMsg: "inventory: reserve quantity must be positive",
		},
		{
			name:        "exceeds per-order maximum",
			stock:       5,
			maxPerOrder: &maxTwo,
			qty:         3,
			wantErrIs:   inventory.ErrMaxPerOrderExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _, _ := newTestLedger(t, time.Minute)
			storeID, productID := seedItem(t, ledger, tt.stock, 0, tt.maxPerOrder)

			res, err := ledger.Reserve(context.Background(), storeID, productID, tt.qty)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				assert.Nil(t, res)
				return
			}
			if tt.wantErrMsg != "" {
				assert.EqualError(t, err, tt.wantErrMsg)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Equal(t, inventory.ReservationActive, res.Status)
			assert.Equal(t, tt.qty, res.Qty)

			available, err := ledger.Available(context.Background(), storeID, productID)
			require.NoError(t, err)
			assert.Equal(t, tt.stock-tt.qty, available)
		})
	}
}

func TestLedger_Reserve_UnknownItem(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Minute)
	storeID := uuid.Must(uuid.NewV4())
	productID := uuid.Must(uuid.NewV4())

	_, err := ledger.Reserve(context.Background(), storeID, productID, 1)
	assert.ErrorIs(t, err, inventory.ErrItemNotFound)
}

// Two buyers racing for the last units: stock 5, two holds of 3 each. Exactly
// one wins, and the loser's failure must not leak a partial hold.
func TestLedger_Reserve_ConcurrentNeverOversells(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Minute)
	storeID, productID := seedItem(t, ledger, 5, 0, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Reserve(context.Background(), storeID, productID, 3)
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
			failed++
		}
	}
	assert.Equal(t, 1, failed, "exactly one of the two holds must lose")

	available, err := ledger.Available(context.Background(), storeID, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
}

func TestLedger_Commit_Idempotent(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Minute)
	storeID, productID := seedItem(t, ledger, 5, 0, nil)

	res, err := ledger.Reserve(context.Background(), storeID, productID, 2)
	require.NoError(t, err)

	require.NoError(t, ledger.Commit(context.Background(), res.ID))
	require.NoError(t, ledger.Commit(context.Background(), res.ID), "second commit must be a no-op")

	item, err := ledger.Item(context.Background(), storeID, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, item.StockQty, "stock must be decremented exactly once")
	assert.Equal(t, 0, item.ReservedQty)
	assert.Equal(t, 3, item.Available())
}

func TestLedger_Commit_UnknownReservation(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Minute)

	err := ledger.Commit(context.Background(), uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, inventory.ErrReservationNotFound)
}

func TestLedger_Commit_AfterRelease(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Minute)
	storeID, productID := seedItem(t, ledger, 5, 0, nil)

	res, err := ledger.Reserve(context.Background(), storeID, productID, 2)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(context.Background(), res.ID))

	err = ledger.Commit(context.Background(), res.ID)
	assert.ErrorIs(t, err, inventory.ErrReservationExpired)
}

func TestLedger_Release_AfterCommit_NoOp(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Minute)
	storeID, productID := seedItem(t, ledger, 5, 0, nil)

	res, err := ledger.Reserve(context.Background(), storeID, productID, 2)
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(context.Background(), res.ID))

	require.NoError(t, ledger.Release(context.Background(), res.ID))

	item, err := ledger.Item(context.Background(), storeID, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, item.StockQty, "release after commit must not restore stock")
	assert.Equal(t, 0, item.ReservedQty)
}

func TestLedger_Release_Twice_NoOp(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Minute)
	storeID, productID := seedItem(t, ledger, 5, 0, nil)

	res, err := ledger.Reserve(context.Background(), storeID, productID, 2)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(context.Background(), res.ID))
	require.NoError(t, ledger.Release(context.Background(), res.ID))

	available, err := ledger.Available(context.Background(), storeID, productID)
	require.NoError(t, err)
	assert.Equal(t, 5, available, "double release must not inflate stock")
}

func TestLedger_SetStock_BelowReserved(t *testing.T) {
	ledger, _, _ := newTestLedger(t, time.Minute)
	storeID, productID := seedItem(t, ledger, 5, 0, nil)

	_, err := ledger.Reserve(context.Background(), storeID, productID, 4)
	require.NoError(t, err)

	err = ledger.SetStock(context.Background(), &inventory.Item{
		StoreID:   storeID,
		ProductID: productID,
		StockQty:  3,
	})
	assert.ErrorIs(t, err, inventory.ErrStockBelowReserved)
}

func TestLedger_Reserve_LowStockEventOnThresholdCrossing(t *testing.T) {
	ledger, _, notifier := newTestLedger(t, time.Minute)
	storeID, productID := seedItem(t, ledger, 5, 3, nil)

	// 5 -> 2 crosses the threshold of 3.
	_, err := ledger.Reserve(context.Background(), storeID, productID, 3)
	require.NoError(t, err)
	assert.Len(t, notifier.byType(notify.EventLowStock), 1)

	// 2 -> 1 stays below the threshold; no repeat alert.
	_, err = ledger.Reserve(context.Background(), storeID, productID, 1)
	require.NoError(t, err)
	assert.Len(t, notifier.byType(notify.EventLowStock), 1)
}

func TestSweeper_ReleasesExpiredHolds(t *testing.T) {
	repo := inventory.NewMemoryRepository()
	ledger := inventory.NewLedger(repo, &recordingNotifier{}, time.Nanosecond)
	storeID, productID := seedItem(t, ledger, 5, 0, nil)

	res, err := ledger.Reserve(context.Background(), storeID, productID, 3)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	sweeper := inventory.NewSweeper(repo, time.Minute)
	assert.Equal(t, 1, sweeper.SweepOnce(context.Background()))

	available, err := ledger.Available(context.Background(), storeID, productID)
	require.NoError(t, err)
	assert.Equal(t, 5, available)

	got, err := ledger.Reservation(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.ReservationReleased, got.Status)
}

// A checkout confirmation racing the sweeper: once the commit lands, the
// sweep must skip the reservation even though its TTL already elapsed.
func TestSweeper_SkipsCommittedHolds(t *testing.T) {
	repo := inventory.NewMemoryRepository()
	ledger := inventory.NewLedger(repo, &recordingNotifier{}, time.Nanosecond)
	storeID, productID := seedItem(t, ledger, 5, 0, nil)

	res, err := ledger.Reserve(context.Background(), storeID, productID, 3)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	require.NoError(t, ledger.Commit(context.Background(), res.ID))

	sweeper := inventory.NewSweeper(repo, time.Minute)
	assert.Equal(t, 0, sweeper.SweepOnce(context.Background()))

	item, err := ledger.Item(context.Background(), storeID, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, item.StockQty)
	assert.Equal(t, 0, item.ReservedQty)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	sweeper := inventory.NewSweeper(inventory.NewMemoryRepository(), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}

func TestLedger_SetStock_Validation(t *testing.T) {
	zero := 0

	tests := []struct {
		name       string
		item       *inventory.Item
		wantErrMsg string
	}{
		{
			name:       "negative stock",
			item:       &inventory.Item{StockQty: -1},
			wantErrMsg: "inventory: stock quantity must be non-negative",
		},
		{
			name:       "negative threshold",
			item:       &inventory.Item{StockQty: 1, LowStockThreshold: -1},
			wantErrMsg: "inventory: low stock threshold must be non-negative",
		},
		{
			name:       "non-positive max per order",
			item:       &inventory.Item{StockQty: 1, MaxPerOrder: &zero},
			wantErrMsg: "inventory: max per order must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _, _ := newTestLedger(t, time.Minute)
			err := ledger.SetStock(context.Background(), tt.item)
			require.Error(t, err)
			assert.EqualError(t, err, tt.wantErrMsg)
			assert.False(t, errors.Is(err, inventory.ErrItemNotFound))
		})
	}
}
