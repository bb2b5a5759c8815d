package cart

import (
	"context"

	"github.com/gofrs/uuid"
)

type Repository interface {
	// ActiveCart returns the customer's active cart for the store, or
	// ErrCartNotFound when none exists.
	ActiveCart(ctx context.Context, customerID, storeID uuid.UUID) (*Cart, error)
	GetCart(ctx context.Context, id uuid.UUID) (*Cart, error)
	CreateCart(ctx context.Context, c *Cart) error
	DeactivateCart(ctx context.Context, id uuid.UUID) error

	Items(ctx context.Context, cartID uuid.UUID) ([]Item, error)
	// ItemByProduct returns the cart's line for the store product, or
	// ErrCartItemNotFound.
	ItemByProduct(ctx context.Context, cartID, storeProductID uuid.UUID) (*Item, error)
	AddItem(ctx context.Context, it *Item) error
	UpdateItemQty(ctx context.Context, itemID uuid.UUID, qty int) error
	RemoveItem(ctx context.Context, itemID uuid.UUID) error
}
