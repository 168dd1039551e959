package domain

import (
	"context"
	"time"
)

// Order-related domain errors.
var (
	ErrOrderNotFound     = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrEmptyCart         = &Error{Code: EINVALID, Message: "Cart is empty"}
	ErrInvalidOrderState = &Error{Code: EINVALID, Message: "Order is not in a valid state for this operation"}
	ErrTotalMismatch     = &Error{Code: EINVALID, Message: "Order total does not equal the sum of line totals"}
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// CanTransition reports whether an order may move from its current status
// to next. The table is deliberately strict: refunding a never-paid order or
// cancelling a refunded one must be rejected, not silently coerced.
//
//	pending   -> paid | cancelled
//	paid      -> refunded | cancelled
//	cancelled -> (terminal)
//	refunded  -> (terminal)
//
// Setting a status to itself is a legal no-op so that webhook redelivery
// reaches the same terminal state without error.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case OrderStatusPending:
		return next == OrderStatusPaid || next == OrderStatusCancelled
	case OrderStatusPaid:
		return next == OrderStatusRefunded || next == OrderStatusCancelled
	}
	return false
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// Order is the immutable record of a placed order. Customer contact fields
// and monetary amounts are captured at creation and never recomputed; status
// and the processor reference fields change only through ApplyPaymentUpdate.
type Order struct {
	ID              string
	OrderCode       string
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	ContactNumber   string
	TotalAmount     int64
	Currency        string
	Status          OrderStatus

	// Processor references, attached as the payment attempt progresses.
	PaymentIntentID *string
	ChargeID        *string
	ReceiptURL      *string

	Lines     []OrderLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderLine is a line item snapshotted from the cart at order creation.
// Later catalog edits never retroactively change a placed order.
type OrderLine struct {
	ID              string
	ProductName     string
	ProductImageURL string
	UnitPrice       int64
	Quantity        int32
	LineTotal       int64
}

// CreateOrderParams carries the customer contact fields captured at checkout.
type CreateOrderParams struct {
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	ContactNumber   string
}

// PaymentUpdate is a partial patch applied to an order's payment-coupled
// fields. Only non-nil fields change. This is the sole mutation surface for
// order status and processor references.
type PaymentUpdate struct {
	Status          *OrderStatus
	PaymentIntentID *string
	ChargeID        *string
	ReceiptURL      *string
}

// OrderService owns Order and OrderLine records.
type OrderService interface {
	// CreateFromSnapshot converts a cart snapshot into an immutable order.
	// Fails with ErrEmptyCart if the snapshot has no line items and with
	// ErrTotalMismatch if the snapshot total does not equal the sum of its
	// line totals. The new order starts in OrderStatusPending with all
	// processor references unset.
	CreateFromSnapshot(ctx context.Context, snapshot CartSnapshot, params CreateOrderParams) (*Order, error)

	// GetByCode retrieves an order with its lines by order code.
	GetByCode(ctx context.Context, orderCode string) (*Order, error)

	// ApplyPaymentUpdate merges a partial payment patch into the order.
	// Status changes are validated against the transition table; illegal
	// transitions fail with ErrInvalidOrderState. Fails with
	// ErrOrderNotFound if the code is unknown.
	ApplyPaymentUpdate(ctx context.Context, orderCode string, update PaymentUpdate) (*Order, error)
}
