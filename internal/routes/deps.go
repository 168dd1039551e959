package routes

import (
	"net/http"

	"github.com/dukerupert/vanir/internal/handler/api"
)

// APIDeps contains dependencies for the JSON API routes
type APIDeps struct {
	// Orders
	OrderHandler *api.OrderHandler

	// Payments
	PaymentHandler *api.PaymentHandler

	// Carts
	CartHandler *api.CartHandler
}

// WebhookDeps contains dependencies for webhook routes
type WebhookDeps struct {
	StripeHandler http.HandlerFunc
}
