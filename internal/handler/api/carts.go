package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/handler"
	"github.com/go-playground/validator/v10"
)

// CartHandler handles cart session operations
type CartHandler struct {
	carts    domain.CartService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts domain.CartService, logger *slog.Logger) *CartHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartHandler{
		carts:    carts,
		validate: validator.New(),
		logger:   logger,
	}
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int32  `json:"quantity" validate:"required,gt=0"`
}

type updateItemRequest struct {
	Quantity int32 `json:"quantity" validate:"gte=0"`
}

type cartResponse struct {
	SessionID   string             `json:"sessionId"`
	Items       []cartItemResponse `json:"items"`
	TotalAmount int64              `json:"totalAmount"`
	Currency    string             `json:"currency"`
}

type cartItemResponse struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"productId"`
	ProductName     string    `json:"productName"`
	ProductImageURL string    `json:"productImageUrl"`
	UnitPrice       int64     `json:"unitPrice"`
	Quantity        int32     `json:"quantity"`
	LineTotal       int64     `json:"lineTotal"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newCartResponse(cart *domain.CartSnapshot) cartResponse {
	resp := cartResponse{
		SessionID:   cart.SessionID,
		Items:       []cartItemResponse{},
		TotalAmount: cart.TotalAmount,
		Currency:    cart.Currency,
	}
	for _, item := range cart.Items {
		resp.Items = append(resp.Items, cartItemResponse{
			ID:              item.ID,
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			ProductImageURL: item.ProductImageURL,
			UnitPrice:       item.UnitPrice,
			Quantity:        item.Quantity,
			LineTotal:       item.LineTotal,
			CreatedAt:       item.CreatedAt,
		})
	}
	return resp
}

// GetOrCreate handles GET /api/carts/{session}. A blank or unknown session
// yields a fresh empty cart with a new session id.
func (h *CartHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetOrCreate(r.Context(), r.PathValue("session"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, newCartResponse(cart))
}

// Create handles POST /api/carts
func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetOrCreate(r.Context(), "")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, newCartResponse(cart))
}

// AddItem handles POST /api/carts/{session}/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("cart.add_item", "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("cart.add_item", err.Error()))
		return
	}

	cart, err := h.carts.AddItem(r.Context(), r.PathValue("session"), req.ProductID, req.Quantity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, newCartResponse(cart))
}

// UpdateItem handles PUT /api/carts/{session}/items/{item}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("cart.update_item", "invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("cart.update_item", err.Error()))
		return
	}

	cart, err := h.carts.UpdateItemQuantity(r.Context(), r.PathValue("session"), r.PathValue("item"), req.Quantity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, newCartResponse(cart))
}

// RemoveItem handles DELETE /api/carts/{session}/items/{item}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.RemoveItem(r.Context(), r.PathValue("session"), r.PathValue("item"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, newCartResponse(cart))
}
