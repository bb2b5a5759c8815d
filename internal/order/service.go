package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/delivery"
	"github.com/vasiliy-maslov/fulfillment-core/internal/geo"
	"github.com/vasiliy-maslov/fulfillment-core/internal/notify"
	"github.com/vasiliy-maslov/fulfillment-core/internal/payment"
	"github.com/vasiliy-maslov/fulfillment-core/internal/slot"
)

// StockCommitter is the slice of the inventory ledger the lifecycle needs.
// Commit is idempotent; Release after Commit is a no-op, which is what makes
// cancellation side effects safe to repeat.
type StockCommitter interface {
	Commit(ctx context.Context, reservationID uuid.UUID) error
	Release(ctx context.Context, reservationID uuid.UUID) error
}

// SlotBooker consumes and frees delivery window seats; implemented by
// slot.Service.
type SlotBooker interface {
	Book(ctx context.Context, id uuid.UUID) (*slot.Slot, error)
	Release(ctx context.Context, id uuid.UUID) error
}

// Dispatcher is the slice of the delivery engine the lifecycle needs.
type Dispatcher interface {
	AssignAuto(ctx context.Context, orderID, storeID uuid.UUID, dest *geo.Location) (*delivery.Assignment, error)
	Unassign(ctx context.Context, orderID uuid.UUID) error
	Complete(ctx context.Context, orderID uuid.UUID) error
	HasProof(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// Service drives the order status machine. Every transition runs under the
// order's keyed mutex; external I/O (payment capture, notifications) happens
// after the lock is dropped.
type Service struct {
	repo     Repository
	stock    StockCommitter
	slots    SlotBooker
	dispatch Dispatcher
	gateway  payment.Gateway
	notifier notify.Notifier
	locks    *keyedMutex
}

func NewService(repo Repository, stock StockCommitter, slots SlotBooker, dispatch Dispatcher, gateway payment.Gateway, notifier notify.Notifier) *Service {
	return &Service{
		repo:     repo,
		stock:    stock,
		slots:    slots,
		dispatch: dispatch,
		gateway:  gateway,
		notifier: notifier,
		locks:    newKeyedMutex(),
	}
}

// Place persists the order in Placed with its frozen items. Stock is already
// reserved and payment authorized by the caller; this step only records.
func (s *Service) Place(ctx context.Context, o *Order, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, errors.New("order: at least one item is required")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("order: failed to generate order ID: %w", err)
	}
	o.ID = id
	o.Number = newOrderNumber(id)
	o.Status = StatusPlaced

	for i := range items {
		itemID, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("order: failed to generate item ID: %w", err)
		}
		items[i].ID = itemID
		items[i].OrderID = o.ID
	}

	if err := s.repo.Create(ctx, o, items); err != nil {
		return nil, fmt.Errorf("order: failed to create order: %w", err)
	}
	s.appendHistory(ctx, o.ID, "", StatusPlaced, "customer", "")
	s.notifier.Publish(ctx, notify.NewEvent(notify.EventOrderPlaced, map[string]any{
		"order_id":     o.ID.String(),
		"order_number": o.Number,
		"store_id":     o.StoreID.String(),
		"total":        o.Total,
	}))
	return o, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ItemsOf(ctx context.Context, id uuid.UUID) ([]Item, error) {
	return s.repo.Items(ctx, id)
}

func (s *Service) History(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	return s.repo.History(ctx, id)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

func (s *Service) ListByStore(ctx context.Context, storeID uuid.UUID, status *Status) ([]Order, error) {
	return s.repo.ListByStore(ctx, storeID, status)
}

// DropLocation exposes the order's drop-off coordinates to the tracking
// stream.
func (s *Service) DropLocation(ctx context.Context, orderID uuid.UUID) (*geo.Location, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.DropLat == nil || o.DropLng == nil {
		return nil, nil
	}
	return &geo.Location{Lat: *o.DropLat, Lng: *o.DropLng}, nil
}

// Accept commits the store to the order: book the slot, commit every stock
// reservation, then flip the status. A commit failure releases the slot seat
// so the two resources never diverge. Payment capture runs after the lock is
// dropped.
func (s *Service) Accept(ctx context.Context, orderID uuid.UUID, actor string) error {
	var token string

	err := s.withLock(orderID, func() error {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusAccepted) {
			return ErrInvalidTransition
		}

		slotBooked := false
		if o.SlotID != nil {
			if _, err := s.slots.Book(ctx, *o.SlotID); err != nil {
				return err
			}
			slotBooked = true
		}

		items, err := s.repo.Items(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := s.stock.Commit(ctx, it.ReservationID); err != nil {
				if slotBooked {
					if relErr := s.slots.Release(ctx, *o.SlotID); relErr != nil {
						log.Error().Err(relErr).Stringer("slot_id", *o.SlotID).Msg("order: failed to release slot after commit failure")
					}
				}
				return fmt.Errorf("order: failed to commit reservation %s: %w", it.ReservationID, err)
			}
		}

		if err := s.repo.UpdateStatus(ctx, orderID, StatusPlaced, StatusAccepted, nil); err != nil {
			return err
		}
		s.appendHistory(ctx, orderID, StatusPlaced, StatusAccepted, actor, "")
		token = o.PaymentToken
		return nil
	})
	if err != nil {
		return err
	}

	if token != "" {
		if err := s.gateway.Capture(ctx, token); err != nil {
			// Settlement retries live outside this engine; the order stays
			// Accepted either way.
			log.Error().Err(err).Stringer("order_id", orderID).Msg("order: payment capture failed")
		}
	}
	return nil
}

// MarkPacked records that the store finished picking. Audit only.
func (s *Service) MarkPacked(ctx context.Context, orderID uuid.UUID, actor string) error {
	return s.withLock(orderID, func() error {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusPacked) {
			return ErrInvalidTransition
		}
		if err := s.repo.UpdateStatus(ctx, orderID, o.Status, StatusPacked, nil); err != nil {
			return err
		}
		s.appendHistory(ctx, orderID, o.Status, StatusPacked, actor, "")
		return nil
	})
}

// Dispatch hands the order to a courier. An unassigned order triggers
// auto-assignment first; ErrNoAgentAvailable leaves the order Packed for a
// later retry or a manual assignment.
func (s *Service) Dispatch(ctx context.Context, orderID uuid.UUID, actor string) error {
	return s.withLock(orderID, func() error {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusOutForDelivery) {
			return ErrInvalidTransition
		}

		if o.AgentID == nil {
			var dest *geo.Location
			if o.DropLat != nil && o.DropLng != nil {
				dest = &geo.Location{Lat: *o.DropLat, Lng: *o.DropLng}
			}
			asg, err := s.dispatch.AssignAuto(ctx, orderID, o.StoreID, dest)
			if err != nil {
				return err
			}
			if err := s.repo.SetAgent(ctx, orderID, &asg.AgentID); err != nil {
				return err
			}
		}

		if err := s.repo.UpdateStatus(ctx, orderID, o.Status, StatusOutForDelivery, nil); err != nil {
			return err
		}
		s.appendHistory(ctx, orderID, o.Status, StatusOutForDelivery, actor, "")
		return nil
	})
}

// SetAgent records a manual assignment made through the delivery engine.
func (s *Service) SetAgent(ctx context.Context, orderID, agentID uuid.UUID) error {
	return s.withLock(orderID, func() error {
		return s.repo.SetAgent(ctx, orderID, &agentID)
	})
}

// Deliver closes the order. Refused without a recorded proof of delivery.
func (s *Service) Deliver(ctx context.Context, orderID uuid.UUID, actor string) error {
	err := s.withLock(orderID, func() error {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusDelivered) {
			return ErrInvalidTransition
		}
		if o.AgentID == nil {
			return ErrAgentNotAssigned
		}
		ok, err := s.dispatch.HasProof(ctx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrProofRequired
		}
		if err := s.repo.UpdateStatus(ctx, orderID, o.Status, StatusDelivered, nil); err != nil {
			return err
		}
		s.appendHistory(ctx, orderID, o.Status, StatusDelivered, actor, "")
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.dispatch.Complete(ctx, orderID); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("order: failed to complete assignment after delivery")
	}
	s.notifier.Publish(ctx, notify.NewEvent(notify.EventOrderDelivered, map[string]any{
		"order_id": orderID.String(),
	}))
	return nil
}

// Cancel aborts the order while it is still in the store's hands. Once out
// for delivery the window is closed. Reservations are released (a no-op for
// lines already committed) and the slot seat is returned.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, actor, reason string) error {
	err := s.withLock(orderID, func() error {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusCancelled) {
			if o.Status == StatusOutForDelivery {
				return ErrCancellationWindowClosed
			}
			return ErrInvalidTransition
		}

		items, err := s.repo.Items(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := s.stock.Release(ctx, it.ReservationID); err != nil {
				log.Error().Err(err).Stringer("reservation_id", it.ReservationID).Msg("order: failed to release reservation on cancel")
			}
		}
		if o.SlotID != nil && o.Status != StatusPlaced {
			if err := s.slots.Release(ctx, *o.SlotID); err != nil {
				log.Error().Err(err).Stringer("slot_id", *o.SlotID).Msg("order: failed to release slot on cancel")
			}
		}
		if o.AgentID != nil {
			if err := s.dispatch.Unassign(ctx, orderID); err != nil {
				log.Error().Err(err).Stringer("order_id", orderID).Msg("order: failed to unassign agent on cancel")
			}
			if err := s.repo.SetAgent(ctx, orderID, nil); err != nil {
				log.Error().Err(err).Stringer("order_id", orderID).Msg("order: failed to clear agent on cancel")
			}
		}

		var reasonPtr *string
		if reason != "" {
			reasonPtr = &reason
		}
		if err := s.repo.UpdateStatus(ctx, orderID, o.Status, StatusCancelled, reasonPtr); err != nil {
			return err
		}
		s.appendHistory(ctx, orderID, o.Status, StatusCancelled, actor, reason)
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.Publish(ctx, notify.NewEvent(notify.EventOrderCancelled, map[string]any{
		"order_id": orderID.String(),
		"reason":   reason,
	}))
	return nil
}

func (s *Service) withLock(orderID uuid.UUID, fn func() error) error {
	unlock := s.locks.lock(orderID)
	defer unlock()
	return fn()
}

func (s *Service) appendHistory(ctx context.Context, orderID uuid.UUID, from, to Status, actor, reason string) {
	id, err := uuid.NewV4()
	if err != nil {
		log.Error().Err(err).Msg("order: failed to generate history ID")
		return
	}
	h := &HistoryEntry{
		ID:         id,
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.AppendHistory(ctx, h); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("order: failed to append status history")
	}
}

func newOrderNumber(id uuid.UUID) string {
	return fmt.Sprintf("ORD-%s-%X", time.Now().UTC().Format("20060102"), id.Bytes()[:4])
}
