package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/fulfillment-core/internal/catalog"
	"github.com/vasiliy-maslov/fulfillment-core/internal/coverage"
	"github.com/vasiliy-maslov/fulfillment-core/internal/inventory"
	"github.com/vasiliy-maslov/fulfillment-core/internal/order"
	"github.com/vasiliy-maslov/fulfillment-core/internal/payment"
)

// ListingReader resolves store products for price snapshots; implemented by
// catalog.Resolver.
type ListingReader interface {
	GetStoreProduct(ctx context.Context, id uuid.UUID) (*catalog.StoreProduct, error)
}

// StockKeeper is the slice of the inventory ledger checkout needs.
type StockKeeper interface {
	Available(ctx context.Context, storeID, productID uuid.UUID) (int, error)
	Reserve(ctx context.Context, storeID, productID uuid.UUID, qty int) (*inventory.Reservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) error
}

// StoreResolver confirms the store serves the cart's ZIP and yields the
// effective fee and minimum; implemented by coverage.Index.
type StoreResolver interface {
	ResolveStore(ctx context.Context, storeID uuid.UUID, zip string) (*coverage.ResolvedStore, error)
}

// OrderPlacer creates the order once stock is reserved and payment is
// authorized; implemented by order.Service.
type OrderPlacer interface {
	Place(ctx context.Context, o *order.Order, items []order.Item) (*order.Order, error)
}

type Service struct {
	repo    Repository
	listing ListingReader
	stock   StockKeeper
	stores  StoreResolver
	orders  OrderPlacer
	gateway payment.Gateway
}

func NewService(repo Repository, listing ListingReader, stock StockKeeper, stores StoreResolver, orders OrderPlacer, gateway payment.Gateway) *Service {
	return &Service{repo: repo, listing: listing, stock: stock, stores: stores, orders: orders, gateway: gateway}
}

// AddItem puts qty units of the store product into the customer's active cart
// for that store, creating the cart if needed. Adding an already carted
// product merges quantities; the price snapshot from the first add is kept.
func (s *Service) AddItem(ctx context.Context, customerID uuid.UUID, zip string, storeProductID uuid.UUID, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, errors.New("cart: quantity must be positive")
	}
	sp, err := s.listing.GetStoreProduct(ctx, storeProductID)
	if err != nil {
		return nil, err
	}
	if sp.Hidden {
		return nil, catalog.ErrStoreProductNotFound
	}

	c, err := s.repo.ActiveCart(ctx, customerID, sp.StoreID)
	if errors.Is(err, ErrCartNotFound) {
		c = &Cart{CustomerID: customerID, StoreID: sp.StoreID, Zip: zip, Active: true}
		id, genErr := uuid.NewV4()
		if genErr != nil {
			return nil, fmt.Errorf("cart: failed to generate cart ID: %w", genErr)
		}
		c.ID = id
		if err := s.repo.CreateCart(ctx, c); err != nil {
			return nil, fmt.Errorf("cart: failed to create cart: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("cart: failed to load active cart: %w", err)
	}

	existing, err := s.repo.ItemByProduct(ctx, c.ID, storeProductID)
	if err == nil {
		if err := s.repo.UpdateItemQty(ctx, existing.ID, existing.Qty+qty); err != nil {
			return nil, fmt.Errorf("cart: failed to merge item quantity: %w", err)
		}
		return c, nil
	}
	if !errors.Is(err, ErrCartItemNotFound) {
		return nil, fmt.Errorf("cart: failed to look up cart item: %w", err)
	}

	itemID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("cart: failed to generate item ID: %w", err)
	}
	it := &Item{
		ID:             itemID,
		CartID:         c.ID,
		StoreProductID: sp.ID,
		ProductID:      sp.ProductID,
		Qty:            qty,
		UnitPrice:      sp.Price,
		AddedAt:        time.Now().UTC(),
	}
	if err := s.repo.AddItem(ctx, it); err != nil {
		return nil, fmt.Errorf("cart: failed to add item: %w", err)
	}
	return c, nil
}

func (s *Service) UpdateQty(ctx context.Context, cartID, itemID uuid.UUID, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, cartID, itemID)
	}
	if err := s.repo.UpdateItemQty(ctx, itemID, qty); err != nil {
		return err
	}
	return nil
}

func (s *Service) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	return s.repo.RemoveItem(ctx, itemID)
}

func (s *Service) Get(ctx context.Context, cartID uuid.UUID) (*Cart, []Item, error) {
	c, err := s.repo.GetCart(ctx, cartID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.Items(ctx, cartID)
	if err != nil {
		return nil, nil, fmt.Errorf("cart: failed to load items: %w", err)
	}
	return c, items, nil
}

// ValidateForCheckout prices the cart against the live listing without
// mutating anything. The returned quote carries per-line issues; min-order
// violation surfaces as ErrBelowMinOrder alongside the quote.
func (s *Service) ValidateForCheckout(ctx context.Context, cartID uuid.UUID) (*Quote, error) {
	c, items, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, ErrCartNotFound
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	resolved, err := s.stores.ResolveStore(ctx, c.StoreID, c.Zip)
	if err != nil {
		return nil, err
	}

	quote := &Quote{MinOrder: resolved.MinOrderValue}
	for _, it := range items {
		sp, err := s.listing.GetStoreProduct(ctx, it.StoreProductID)
		if err != nil {
			return nil, err
		}
		if sp.Price != it.UnitPrice {
			quote.Issues = append(quote.Issues, LineIssue{
				StoreProductID: it.StoreProductID,
				Reason:         IssuePriceChanged,
				CurrentPrice:   sp.Price,
			})
			continue
		}
		available, err := s.stock.Available(ctx, c.StoreID, it.ProductID)
		if err != nil {
			return nil, err
		}
		if sp.Hidden || available < it.Qty {
			quote.Issues = append(quote.Issues, LineIssue{
				StoreProductID: it.StoreProductID,
				Reason:         IssueOutOfStock,
				AvailableQty:   available,
			})
			continue
		}
		quote.Subtotal += it.UnitPrice * float64(it.Qty)
	}

	quote.DeliveryFee = resolved.DeliveryFee
	if resolved.FreeDeliveryThreshold != nil && quote.Subtotal >= *resolved.FreeDeliveryThreshold {
		quote.DeliveryFee = 0
	}
	quote.Total = quote.Subtotal + quote.DeliveryFee

	if len(quote.Issues) == 0 && quote.Subtotal < resolved.MinOrderValue {
		return quote, ErrBelowMinOrder
	}
	return quote, nil
}

// CheckoutInput carries the delivery details a customer confirms at checkout.
// The drop coordinates are optional; without them agent assignment falls back
// to load only.
type CheckoutInput struct {
	CartID  uuid.UUID
	SlotID  *uuid.UUID
	Address string
	DropLat *float64
	DropLng *float64
}

// Checkout turns the cart into a placed order: validate, reserve every line,
// authorize payment, create the order, deactivate the cart. Reservations made
// before any failure are released, so a failed checkout holds no stock.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*order.Order, error) {
	cartID := in.CartID
	c, items, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	quote, err := s.ValidateForCheckout(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(quote.Issues) > 0 {
		switch quote.Issues[0].Reason {
		case IssuePriceChanged:
			return nil, ErrPriceChanged
		default:
			return nil, ErrOutOfStock
		}
	}

	reserved := make([]uuid.UUID, 0, len(items))
	releaseAll := func() {
		for _, id := range reserved {
			if relErr := s.stock.Release(ctx, id); relErr != nil {
				log.Error().Err(relErr).Stringer("reservation_id", id).Msg("cart: failed to release reservation during checkout rollback")
			}
		}
	}

	orderItems := make([]order.Item, 0, len(items))
	for _, it := range items {
		res, err := s.stock.Reserve(ctx, c.StoreID, it.ProductID, it.Qty)
		if err != nil {
			releaseAll()
			if errors.Is(err, inventory.ErrInsufficientStock) || errors.Is(err, inventory.ErrItemFrozen) {
				return nil, ErrOutOfStock
			}
			return nil, err
		}
		reserved = append(reserved, res.ID)
		orderItems = append(orderItems, order.Item{
			StoreProductID: it.StoreProductID,
			ProductID:      it.ProductID,
			Qty:            it.Qty,
			UnitPrice:      it.UnitPrice,
			ReservationID:  res.ID,
		})
	}

	// Payment runs after reservations and outside any lock. The reservations
	// keep the stock safe for the TTL while the gateway round-trips.
	token, err := s.gateway.Authorize(ctx, quote.Total)
	if err != nil {
		releaseAll()
		return nil, fmt.Errorf("cart: payment authorization failed: %w", err)
	}

	o := &order.Order{
		CustomerID:   c.CustomerID,
		StoreID:      c.StoreID,
		Zip:          c.Zip,
		SlotID:       in.SlotID,
		Address:      in.Address,
		DropLat:      in.DropLat,
		DropLng:      in.DropLng,
		Subtotal:     quote.Subtotal,
		DeliveryFee:  quote.DeliveryFee,
		Total:        quote.Total,
		PaymentToken: token,
	}
	placed, err := s.orders.Place(ctx, o, orderItems)
	if err != nil {
		releaseAll()
		return nil, err
	}

	if err := s.repo.DeactivateCart(ctx, c.ID); err != nil {
		log.Error().Err(err).Stringer("cart_id", c.ID).Msg("cart: failed to deactivate cart after checkout")
	}
	return placed, nil
}
