package slot_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/fulfillment-core/internal/slot"
)

func newService(t *testing.T) *slot.Service {
	t.Helper()
	return slot.NewService(slot.NewMemoryRepository())
}

func createSlot(t *testing.T, svc *slot.Service, storeID uuid.UUID, capacity int, start time.Time) *slot.Slot {
	t.Helper()
	s := &slot.Slot{
		StoreID:     storeID,
		Zip:         "100001",
		WindowStart: start,
		WindowEnd:   start.Add(2 * time.Hour),
		Capacity:    capacity,
	}
	require.NoError(t, svc.Create(context.Background(), s))
	return s
}

func TestService_Create(t *testing.T) {
	storeID := uuid.Must(uuid.NewV4())
	future := time.Now().UTC().Add(24 * time.Hour)

	tests := []struct {
		name       string
		slot       *slot.Slot
		wantErrIs  error
		wantErrMsg string
	}{
		{
			name: "success",
			slot: &slot.Slot{StoreID: storeID, Zip: "100001", WindowStart: future, WindowEnd: future.Add(time.Hour), Capacity: 10},
		},
		{
			name:       "missing store",
			slot:       &slot.Slot{Zip: "100001", WindowStart: future, WindowEnd: future.Add(time.Hour), Capacity: 10},
			wantErrMsg: "slot: store is required",
		},
		{
			name:       "missing zip",
			slot:       &slot.Slot{StoreID: storeID, WindowStart: future, WindowEnd: future.Add(time.Hour), Capacity: 10},
			wantErrMsg: "slot: zip is required",
		},
		{
			name:       "non-positive capacity",
			slot:       &slot.Slot{StoreID: storeID, Zip: "100001", WindowStart: future, WindowEnd: future.Add(time.Hour)},
			wantErrMsg: "slot: capacity must be positive",
		},
		{
			name:       "inverted window",
			slot:       &slot.Slot{StoreID: storeID, Zip: "100001", WindowStart: future, WindowEnd: future.Add(-time.Hour), Capacity: 10},
			wantErrMsg: "slot: window end must be after window start",
		},
		{
			name:      "window in the past",
			slot:      &slot.Slot{StoreID: storeID, Zip: "100001", WindowStart: future.Add(-48 * time.Hour), WindowEnd: future, Capacity: 10},
			wantErrIs: slot.ErrSlotInPast,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t)
			err := svc.Create(context.Background(), tt.slot)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
				return
			}
			if tt.wantErrMsg != "" {
				assert.EqualError(t, err, tt.wantErrMsg)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, tt.slot.ID)
			assert.True(t, tt.slot.Active)
		})
	}
}

func TestService_Book(t *testing.T) {
	svc := newService(t)
	storeID := uuid.Must(uuid.NewV4())
	s := createSlot(t, svc, storeID, 2, time.Now().UTC().Add(24*time.Hour))

	booked, err := svc.Book(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, booked.BookedCount)

	booked, err = svc.Book(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, booked.BookedCount)

	_, err = svc.Book(context.Background(), s.ID)
	assert.ErrorIs(t, err, slot.ErrSlotFull)
}

func TestService_Book_UnknownSlot(t *testing.T) {
	svc := newService(t)

	_, err := svc.Book(context.Background(), uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, slot.ErrSlotNotFound)
}

func TestService_Book_DeactivatedSlot(t *testing.T) {
	svc := newService(t)
	storeID := uuid.Must(uuid.NewV4())
	s := createSlot(t, svc, storeID, 5, time.Now().UTC().Add(24*time.Hour))

	require.NoError(t, svc.SetActive(context.Background(), s.ID, false))

	_, err := svc.Book(context.Background(), s.ID)
	assert.ErrorIs(t, err, slot.ErrSlotClosed)
}

// Capacity 3, five concurrent bookings: exactly three seats are handed out
// and the count never exceeds capacity.
func TestService_Book_ConcurrentNeverOverbooks(t *testing.T) {
	svc := newService(t)
	storeID := uuid.Must(uuid.NewV4())
	s := createSlot(t, svc, storeID, 3, time.Now().UTC().Add(24*time.Hour))

	const attempts = 5
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), s.ID)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, slot.ErrSlotFull)
			lost++
		}
	}
	assert.Equal(t, 3, won)
	assert.Equal(t, 2, lost)

	got, err := svc.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.BookedCount)
}

func TestService_Release(t *testing.T) {
	svc := newService(t)
	storeID := uuid.Must(uuid.NewV4())
	s := createSlot(t, svc, storeID, 1, time.Now().UTC().Add(24*time.Hour))

	_, err := svc.Book(context.Background(), s.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Release(context.Background(), s.ID))

	got, err := svc.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedCount)

	// Releasing an empty or unknown slot changes nothing and does not fail.
	require.NoError(t, svc.Release(context.Background(), s.ID))
	require.NoError(t, svc.Release(context.Background(), uuid.Must(uuid.NewV4())))

	got, err = svc.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedCount, "booked count must never go negative")
}

func TestService_ListOpen(t *testing.T) {
	svc := newService(t)
	storeID := uuid.Must(uuid.NewV4())
	now := time.Now().UTC()

	later := createSlot(t, svc, storeID, 1, now.Add(48*time.Hour))
	sooner := createSlot(t, svc, storeID, 1, now.Add(24*time.Hour))
	full := createSlot(t, svc, storeID, 1, now.Add(36*time.Hour))
	_, err := svc.Book(context.Background(), full.ID)
	require.NoError(t, err)

	// A different ZIP must not show up.
	other := &slot.Slot{StoreID: storeID, Zip: "200002", WindowStart: now.Add(24 * time.Hour), WindowEnd: now.Add(26 * time.Hour), Capacity: 1}
	require.NoError(t, svc.Create(context.Background(), other))

	open, err := svc.ListOpen(context.Background(), storeID, "100001")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, sooner.ID, open[0].ID, "windows are ordered by start time")
	assert.Equal(t, later.ID, open[1].ID)
}
