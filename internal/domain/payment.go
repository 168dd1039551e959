package domain

import (
	"context"
	"time"
)

// Payment-related domain errors.
var (
	ErrPaymentNotFound = &Error{Code: ENOTFOUND, Message: "Payment not found"}
)

// PaymentStatus is the local view of a processor payment-intent attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment tracks one processor payment-intent attempt. It references its
// order by code rather than owning it: an order survives even if a payment
// attempt is superseded or purged. Rows are created once per intent-creation
// call and mutated only by the orchestrator and reconciler.
type Payment struct {
	ID              string
	OrderCode       string
	PaymentIntentID string
	ChargeID        *string
	ReceiptURL      *string
	Status          PaymentStatus
	Amount          int64
	Currency        string
	Metadata        map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentStatusUpdate carries the optional processor references attached
// alongside a payment status change.
type PaymentStatusUpdate struct {
	ChargeID   *string
	ReceiptURL *string
}

// PaymentStore persists Payment rows. It is a dumb persistence boundary:
// transition legality is enforced by the orchestrator, not here.
type PaymentStore interface {
	// Create persists a new payment attempt in PaymentStatusPending.
	// Amount and currency are copied from the processor's acknowledgment,
	// which is authoritative.
	Create(ctx context.Context, params CreatePaymentParams) (*Payment, error)

	// GetByIntentID returns the payment for a processor intent reference,
	// or ErrPaymentNotFound.
	GetByIntentID(ctx context.Context, paymentIntentID string) (*Payment, error)

	// ListByOrderCode returns all payment attempts for an order, newest first.
	ListByOrderCode(ctx context.Context, orderCode string) ([]Payment, error)

	// List returns all payments, newest first.
	List(ctx context.Context) ([]Payment, error)

	// UpdateStatus re-reads and mutates the row within one statement so two
	// concurrent writers cannot produce a lost update.
	UpdateStatus(ctx context.Context, paymentIntentID string, status PaymentStatus, update PaymentStatusUpdate) (*Payment, error)
}

// CreatePaymentParams contains parameters for persisting a payment attempt.
type CreatePaymentParams struct {
	OrderCode       string
	PaymentIntentID string
	Amount          int64
	Currency        string
	Metadata        map[string]string
}

// PaymentService is the orchestrator tying orders, payments, and the payment
// processor into one consistent lifecycle.
type PaymentService interface {
	// CreateIntent creates a processor payment intent for the order's total
	// and persists a new pending payment attempt. Safe to call repeatedly
	// for the same order; each call creates a fresh attempt and the order's
	// intent reference points at the latest one.
	CreateIntent(ctx context.Context, orderCode string) (*IntentResult, error)

	// ConfirmFromWebhook reconciles a verified payment_intent.succeeded
	// event. Unknown intent references are a no-op, not an error. Idempotent
	// under redelivery.
	ConfirmFromWebhook(ctx context.Context, paymentIntentID string) (*Payment, error)

	// RecordFailure reconciles a failed or abandoned intent into the local
	// payment row. The order stays pending so checkout can retry.
	RecordFailure(ctx context.Context, paymentIntentID string, status PaymentStatus) (*Payment, error)

	// Cancel voids the order's current intent at the processor and marks
	// order and payment cancelled.
	Cancel(ctx context.Context, orderCode string) error

	// Refund refunds the order's charge, fully when amount is zero.
	// Returns the processor refund id.
	Refund(ctx context.Context, orderCode string, amount int64) (string, error)

	// FindPayments lists payments for an order, or all payments when
	// orderCode is empty. Pure read.
	FindPayments(ctx context.Context, orderCode string) ([]Payment, error)
}

// IntentResult is returned to the checkout frontend after intent creation.
type IntentResult struct {
	ClientSecret string
	Order        *Order
}
