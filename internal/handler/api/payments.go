package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/handler"
	"github.com/dukerupert/vanir/internal/middleware"
	"github.com/go-playground/validator/v10"
)

// PaymentHandler handles payment intent creation, refunds, cancellation,
// and payment listing
type PaymentHandler struct {
	payments domain.PaymentService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments domain.PaymentService, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{
		payments: payments,
		validate: validator.New(),
		logger:   logger,
	}
}

type createIntentRequest struct {
	OrderCode string `json:"orderCode" validate:"required"`
}

type refundRequest struct {
	OrderCode string `json:"orderCode" validate:"required"`
	// Amount in minor units; zero or omitted means a full refund.
	Amount int64 `json:"amount" validate:"gte=0"`
}

type cancelRequest struct {
	OrderCode string `json:"orderCode" validate:"required"`
}

type paymentResponse struct {
	ID              string            `json:"id"`
	OrderCode       string            `json:"orderCode"`
	PaymentIntentID string            `json:"paymentIntentId"`
	ChargeID        *string           `json:"stripeChargeId"`
	ReceiptURL      *string           `json:"receiptUrl"`
	Status          string            `json:"status"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func newPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		OrderCode:       p.OrderCode,
		PaymentIntentID: p.PaymentIntentID,
		ChargeID:        p.ChargeID,
		ReceiptURL:      p.ReceiptURL,
		Status:          string(p.Status),
		Amount:          p.Amount,
		Currency:        p.Currency,
		Metadata:        p.Metadata,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// CreateIntent handles POST /api/payments/intent. The client secret in the
// response is what the checkout frontend hands to Stripe.js.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("payment.create_intent", "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("payment.create_intent", err.Error()))
		return
	}

	result, err := h.payments.CreateIntent(r.Context(), req.OrderCode)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	logger.Info("payment intent created", "order_code", req.OrderCode)

	handler.RespondJSON(w, http.StatusCreated, map[string]any{
		"clientSecret": result.ClientSecret,
		"orderCode":    result.Order.OrderCode,
		"amount":       result.Order.TotalAmount,
		"currency":     result.Order.Currency,
	})
}

// Refund handles POST /api/payments/refund
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("payment.refund", "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("payment.refund", err.Error()))
		return
	}

	refundID, err := h.payments.Refund(r.Context(), req.OrderCode, req.Amount)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	logger.Info("refund issued", "order_code", req.OrderCode, "refund_id", refundID)

	handler.RespondJSON(w, http.StatusOK, map[string]any{
		"refundId":  refundID,
		"orderCode": req.OrderCode,
	})
}

// Cancel handles POST /api/payments/cancel
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("payment.cancel", "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("payment.cancel", err.Error()))
		return
	}

	if err := h.payments.Cancel(r.Context(), req.OrderCode); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	logger.Info("payment cancelled", "order_code", req.OrderCode)

	handler.RespondJSON(w, http.StatusOK, map[string]any{
		"orderCode": req.OrderCode,
		"status":    string(domain.OrderStatusCancelled),
	})
}

// List handles GET /api/payments[?orderCode=]
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.FindPayments(r.Context(), r.URL.Query().Get("orderCode"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, newPaymentResponse(p))
	}

	handler.RespondJSON(w, http.StatusOK, resp)
}
