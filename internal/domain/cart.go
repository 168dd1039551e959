package domain

import (
	"context"
	"time"
)

// Cart-related domain errors.
var (
	ErrCartNotFound     = &Error{Code: ENOTFOUND, Message: "Cart not found"}
	ErrCartItemNotFound = &Error{Code: ENOTFOUND, Message: "Cart item not found"}
	ErrProductNotFound  = &Error{Code: ENOTFOUND, Message: "Product not found"}
	ErrInvalidQuantity  = &Error{Code: EINVALID, Message: "Quantity must be greater than 0"}
)

// CartSnapshot is a point-in-time copy of a cart's contents and total,
// consumed exactly once when an order is created. Read-only to the
// order/payment core.
type CartSnapshot struct {
	SessionID   string
	Items       []CartItem
	TotalAmount int64
	Currency    string
}

// CartItem is a cart line with product details frozen at add time.
type CartItem struct {
	ID              string
	ProductID       string
	ProductName     string
	ProductImageURL string
	UnitPrice       int64
	Quantity        int32
	LineTotal       int64
	CreatedAt       time.Time
}

// CartService provides shopping cart operations. The order/payment core
// consumes it only through GetOrCreate.
type CartService interface {
	// GetOrCreate retrieves the cart for a session, creating a new session
	// and empty cart when sessionID is blank or unknown.
	GetOrCreate(ctx context.Context, sessionID string) (*CartSnapshot, error)

	// AddItem adds a product to the cart or increments its quantity.
	AddItem(ctx context.Context, sessionID, productID string, quantity int32) (*CartSnapshot, error)

	// UpdateItemQuantity sets the quantity of a cart item. Zero removes it.
	UpdateItemQuantity(ctx context.Context, sessionID, itemID string, quantity int32) (*CartSnapshot, error)

	// RemoveItem removes a cart item.
	RemoveItem(ctx context.Context, sessionID, itemID string) (*CartSnapshot, error)

	// Clear removes all items from the cart.
	Clear(ctx context.Context, sessionID string) error
}
