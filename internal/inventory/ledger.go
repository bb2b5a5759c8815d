package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/notify"
)

// Ledger wraps the repository with validation, low-stock signalling and TTL
// defaults. The reservation TTL covers the checkout-plus-payment window.
type Ledger struct {
	repo           Repository
	notifier       notify.Notifier
	reservationTTL time.Duration
}

func NewLedger(repo Repository, notifier notify.Notifier, reservationTTL time.Duration) *Ledger {
	if reservationTTL <= 0 {
		reservationTTL = 10 * time.Minute
	}
	return &Ledger{repo: repo, notifier: notifier, reservationTTL: reservationTTL}
}

// SetStock is the store-staff mutation path. Stock may not be set below the
// currently reserved quantity, which keeps the reserve guard sound.
func (l *Ledger) SetStock(ctx context.Context, item *Item) error {
	if item.StockQty < 0 {
		return errors.New("inventory: stock quantity must be non-negative")
	}
	if item.LowStockThreshold < 0 {
		return errors.New("inventory: low stock threshold must be non-negative")
	}
	if item.MaxPerOrder != nil && *item.MaxPerOrder <= 0 {
		return errors.New("inventory: max per order must be positive")
	}
	if err := l.repo.UpsertItem(ctx, item); err != nil {
		if errors.Is(err, ErrStockBelowReserved) || errors.Is(err, ErrItemFrozen) {
			return err
		}
		log.Error().Err(err).Stringer("store_id", item.StoreID).Stringer("product_id", item.ProductID).Msg("inventory: failed to upsert item")
		return fmt.Errorf("inventory: failed to upsert item: %w", err)
	}
	return nil
}

func (l *Ledger) Item(ctx context.Context, storeID, productID uuid.UUID) (*Item, error) {
	return l.repo.GetItem(ctx, storeID, productID)
}

// Available returns purchasable stock (on hand minus active holds).
func (l *Ledger) Available(ctx context.Context, storeID, productID uuid.UUID) (int, error) {
	item, err := l.repo.GetItem(ctx, storeID, productID)
	if err != nil {
		return 0, err
	}
	return item.Available(), nil
}

// Reserve places a TTL-bounded hold of qty on (store, product). Fails with
// ErrInsufficientStock when concurrent holds have consumed the stock first.
func (l *Ledger) Reserve(ctx context.Context, storeID, productID uuid.UUID, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, errors.New("inventory: reserve quantity must be positive")
	}

	item, err := l.repo.GetItem(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	if item.Frozen {
		return nil, ErrItemFrozen
	}
	if item.MaxPerOrder != nil && qty > *item.MaxPerOrder {
		return nil, ErrMaxPerOrderExceeded
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("inventory: failed to generate reservation ID: %w", err)
	}
	res := &Reservation{
		ID:        id,
		StoreID:   storeID,
		ProductID: productID,
		Qty:       qty,
		Status:    ReservationActive,
		ExpiresAt: time.Now().UTC().Add(l.reservationTTL),
	}

	after, err := l.repo.Reserve(ctx, res)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrItemFrozen) || errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
		log.Error().Err(err).Stringer("store_id", storeID).Stringer("product_id", productID).Int("qty", qty).Msg("inventory: reserve failed")
		return nil, fmt.Errorf("inventory: failed to reserve: %w", err)
	}

	// The hold itself is what moves availability, so the threshold can only
	// be crossed here, never at commit time.
	available := after.Available()
	if available <= after.LowStockThreshold && available+qty > after.LowStockThreshold {
		l.notifier.Publish(ctx, notify.NewEvent(notify.EventLowStock, map[string]any{
			"store_id":   storeID.String(),
			"product_id": productID.String(),
			"available":  available,
			"threshold":  after.LowStockThreshold,
		}))
	}

	log.Debug().
		Stringer("reservation_id", res.ID).
		Stringer("store_id", storeID).
		Stringer("product_id", productID).
		Int("qty", qty).
		Int("available_after", available).
		Msg("stock reserved")
	return res, nil
}

// Commit converts the hold into a permanent decrement. Idempotent: a second
// commit of the same reservation is a no-op, never a double decrement.
func (l *Ledger) Commit(ctx context.Context, reservationID uuid.UUID) error {
	_, err := l.repo.Commit(ctx, reservationID)
	if err != nil {
		var inv *InvariantViolationError
		if errors.As(err, &inv) {
			log.Error().
				Stringer("store_id", inv.StoreID).
				Stringer("product_id", inv.ProductID).
				Str("detail", inv.Detail).
				Msg("INVARIANT VIOLATION: inventory item frozen pending reconciliation")
			return err
		}
		if errors.Is(err, ErrReservationNotFound) || errors.Is(err, ErrReservationExpired) {
			return err
		}
		return fmt.Errorf("inventory: failed to commit reservation %s: %w", reservationID, err)
	}
	return nil
}

// Release returns the hold to available stock. Releasing after commit or
// after a previous release is a no-op, which makes the TTL sweeper race-safe
// against checkout confirmation.
func (l *Ledger) Release(ctx context.Context, reservationID uuid.UUID) error {
	_, err := l.repo.Release(ctx, reservationID)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return err
		}
		return fmt.Errorf("inventory: failed to release reservation %s: %w", reservationID, err)
	}
	return nil
}

func (l *Ledger) Reservation(ctx context.Context, reservationID uuid.UUID) (*Reservation, error) {
	return l.repo.GetReservation(ctx, reservationID)
}

// Sweeper releases expired reservations in the background. It never runs on
// the request path.
type Sweeper struct {
	repo     Repository
	interval time.Duration
}

func NewSweeper(repo Repository, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{repo: repo, interval: interval}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reservation sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce releases everything past its TTL. Racing against Commit is safe:
// a reservation the sweep loses to Commit is already terminal and skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	expired, err := s.repo.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("inventory: reservation sweep failed")
		return 0
	}
	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("expired reservations released")
	}
	return len(expired)
}
