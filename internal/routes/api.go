package routes

import (
	"github.com/dukerupert/vanir/internal/router"
)

// RegisterAPIRoutes registers the JSON API routes consumed by the checkout
// frontend.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	// Orders
	r.Post("/api/orders", deps.OrderHandler.Create)
	r.Get("/api/orders/{code}", deps.OrderHandler.Get)

	// Payments
	r.Get("/api/payments", deps.PaymentHandler.List)
	r.Post("/api/payments/intent", deps.PaymentHandler.CreateIntent)
	r.Post("/api/payments/refund", deps.PaymentHandler.Refund)
	r.Post("/api/payments/cancel", deps.PaymentHandler.Cancel)

	// Carts
	r.Post("/api/carts", deps.CartHandler.Create)
	r.Get("/api/carts/{session}", deps.CartHandler.GetOrCreate)
	r.Post("/api/carts/{session}/items", deps.CartHandler.AddItem)
	r.Put("/api/carts/{session}/items/{item}", deps.CartHandler.UpdateItem)
	r.Delete("/api/carts/{session}/items/{item}", deps.CartHandler.RemoveItem)
}
