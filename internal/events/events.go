package events

import (
	"context"
	"time"
)

// Subjects for order lifecycle events.
const (
	SubjectOrderPaid      = "orders.paid"
	SubjectOrderCancelled = "orders.cancelled"
	SubjectOrderRefunded  = "orders.refunded"
)

// OrderEvent is the JSON payload published on order lifecycle subjects.
// Consumers (fulfillment, email, analytics) subscribe out of process.
type OrderEvent struct {
	OrderCode       string    `json:"order_code"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	ChargeID        string    `json:"charge_id,omitempty"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Publisher emits order lifecycle events. Publishing happens exactly once
// per status transition; redelivered webhooks that resolve to a no-op
// transition must not publish again.
type Publisher interface {
	Publish(ctx context.Context, subject string, event OrderEvent) error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(ctx context.Context, subject string, event OrderEvent) error {
	return nil
}
