package billing

import (
	"context"
	"time"
)

// Provider defines the interface over the external payment processor.
// Implementations can use Stripe, PayPal, Square, etc.
type Provider interface {
	// CreatePaymentIntent creates a payment intent for a one-time charge.
	// Returns the intent with client_secret for frontend confirmation.
	CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error)

	// GetPaymentIntent retrieves an existing payment intent. The processor
	// response is authoritative; reconciliation always re-fetches rather
	// than trusting webhook payload fields beyond the intent id.
	GetPaymentIntent(ctx context.Context, params GetPaymentIntentParams) (*PaymentIntent, error)

	// CancelPaymentIntent cancels an intent that has not been captured.
	// Returns ErrIntentNotCancelable if the intent is already finalized.
	CancelPaymentIntent(ctx context.Context, paymentIntentID string) error

	// CreateRefund refunds a succeeded intent. A zero amount refunds the
	// full charge.
	CreateRefund(ctx context.Context, params RefundParams) (*Refund, error)

	// VerifyWebhookSignature verifies that a webhook request is authentic.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error
}

// CreatePaymentIntentParams contains parameters for creating a payment intent.
type CreatePaymentIntentParams struct {
	// Amount in the smallest currency unit.
	Amount int64

	// Currency code (ISO 4217 lowercase), e.g. "krw", "usd".
	Currency string

	// Metadata for reconciliation and reporting (always includes order_code).
	Metadata map[string]string

	// IdempotencyKey prevents duplicate intents on client retries.
	IdempotencyKey string
}

// GetPaymentIntentParams contains parameters for retrieving a payment intent.
type GetPaymentIntentParams struct {
	PaymentIntentID string

	// ExpandLatestCharge includes the charge and receipt in the response.
	ExpandLatestCharge bool
}

// PaymentIntent represents a processor payment intent.
type PaymentIntent struct {
	// ID is the processor intent id (pi_...).
	ID string

	// ClientSecret is used by the frontend to confirm payment.
	ClientSecret string

	Amount   int64
	Currency string

	// Status: requires_payment_method, requires_confirmation, succeeded, etc.
	Status string

	// LatestCharge is populated when requested via ExpandLatestCharge and a
	// charge exists.
	LatestCharge *Charge

	Metadata  map[string]string
	CreatedAt time.Time
}

// Charge represents the processor-side money movement for a succeeded intent.
type Charge struct {
	ID         string
	ReceiptURL string
}

// RefundParams contains parameters for creating a refund.
type RefundParams struct {
	PaymentIntentID string

	// Amount in the smallest currency unit. Zero refunds the full charge.
	Amount int64
}

// Refund represents a processor refund.
type Refund struct {
	ID        string
	Amount    int64
	Status    string // succeeded, pending, failed
	CreatedAt time.Time
}
