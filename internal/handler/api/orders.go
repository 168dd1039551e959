// Package api contains the JSON API handlers consumed by the checkout
// frontend.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/handler"
	"github.com/dukerupert/vanir/internal/middleware"
	"github.com/dukerupert/vanir/internal/telemetry"
	"github.com/go-playground/validator/v10"
)

// OrderHandler handles order creation and lookup
type OrderHandler struct {
	orders   domain.OrderService
	carts    domain.CartService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders domain.OrderService, carts domain.CartService, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{
		orders:   orders,
		carts:    carts,
		validate: validator.New(),
		logger:   logger,
	}
}

type createOrderRequest struct {
	CartID          string `json:"cartId" validate:"required"`
	CustomerName    string `json:"customerName" validate:"required"`
	CustomerEmail   string `json:"customerEmail" validate:"required,email"`
	ShippingAddress string `json:"shippingAddress" validate:"required"`
	ContactNumber   string `json:"contactNumber"`
}

// orderResponse is the wire shape for an order.
type orderResponse struct {
	ID              string              `json:"id"`
	OrderCode       string              `json:"orderCode"`
	CustomerName    string              `json:"customerName"`
	CustomerEmail   string              `json:"customerEmail"`
	ShippingAddress string              `json:"shippingAddress"`
	ContactNumber   string              `json:"contactNumber"`
	TotalAmount     int64               `json:"totalAmount"`
	Currency        string              `json:"currency"`
	Status          string              `json:"status"`
	PaymentIntentID *string             `json:"paymentIntentId"`
	ChargeID        *string             `json:"stripeChargeId"`
	ReceiptURL      *string             `json:"receiptUrl"`
	Lines           []orderLineResponse `json:"items"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

type orderLineResponse struct {
	ProductName     string `json:"productName"`
	ProductImageURL string `json:"productImageUrl"`
	UnitPrice       int64  `json:"unitPrice"`
	Quantity        int32  `json:"quantity"`
	LineTotal       int64  `json:"lineTotal"`
}

func newOrderResponse(order *domain.Order) orderResponse {
	resp := orderResponse{
		ID:              order.ID,
		OrderCode:       order.OrderCode,
		CustomerName:    order.CustomerName,
		CustomerEmail:   order.CustomerEmail,
		ShippingAddress: order.ShippingAddress,
		ContactNumber:   order.ContactNumber,
		TotalAmount:     order.TotalAmount,
		Currency:        order.Currency,
		Status:          string(order.Status),
		PaymentIntentID: order.PaymentIntentID,
		ChargeID:        order.ChargeID,
		ReceiptURL:      order.ReceiptURL,
		Lines:           []orderLineResponse{},
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ProductName:     line.ProductName,
			ProductImageURL: line.ProductImageURL,
			UnitPrice:       line.UnitPrice,
			Quantity:        line.Quantity,
			LineTotal:       line.LineTotal,
		})
	}
	return resp
}

// Create handles POST /api/orders. It snapshots the cart identified by
// cartId and freezes it into an immutable pending order.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("order.create", "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("order.create", err.Error()))
		return
	}

	cart, err := h.carts.GetOrCreate(r.Context(), req.CartID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.CreateFromSnapshot(r.Context(), *cart, domain.CreateOrderParams{
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		ShippingAddress: req.ShippingAddress,
		ContactNumber:   req.ContactNumber,
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	if telemetry.Business != nil {
		telemetry.Business.OrdersCreated.WithLabelValues(order.Currency).Inc()
		telemetry.Business.OrderValue.WithLabelValues(order.Currency).Observe(float64(order.TotalAmount))
	}

	// The cart is consumed once the order exists.
	if err := h.carts.Clear(r.Context(), cart.SessionID); err != nil {
		logger.Warn("failed to clear cart after order creation",
			"order_code", order.OrderCode, "error", err)
	}

	logger.Info("order created",
		"order_code", order.OrderCode,
		"total_amount", order.TotalAmount,
		"currency", order.Currency,
	)

	handler.RespondJSON(w, http.StatusCreated, newOrderResponse(order))
}

// Get handles GET /api/orders/{code}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		handler.ErrorResponse(w, r, domain.Invalid("order.get", "order code is required"))
		return
	}

	order, err := h.orders.GetByCode(r.Context(), code)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.RespondJSON(w, http.StatusOK, newOrderResponse(order))
}
