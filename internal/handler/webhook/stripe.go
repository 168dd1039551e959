// Package webhook contains handlers for incoming payment processor events.
package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/vanir/internal/billing"
	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/handler"
	"github.com/dukerupert/vanir/internal/telemetry"
	"github.com/stripe/stripe-go/v82"
)

// maxBodyBytes caps webhook payloads, per Stripe's recommendation.
const maxBodyBytes = int64(65536)

// StripeHandler handles Stripe webhook events
type StripeHandler struct {
	provider billing.Provider
	payments domain.PaymentService
	config   StripeWebhookConfig
	logger   *slog.Logger
}

// StripeWebhookConfig contains configuration for Stripe webhook handling
type StripeWebhookConfig struct {
	// WebhookSecret is the webhook signing secret from the Stripe dashboard
	WebhookSecret string
}

// NewStripeHandler creates a new Stripe webhook handler
func NewStripeHandler(provider billing.Provider, payments domain.PaymentService, config StripeWebhookConfig, logger *slog.Logger) *StripeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeHandler{
		provider: provider,
		payments: payments,
		config:   config,
		logger:   logger,
	}
}

// HandleWebhook processes incoming Stripe webhook events.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger payment_intent.succeeded
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook payload", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		h.logger.Warn("webhook rejected: missing Stripe-Signature header")
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Missing signature"))
		return
	}

	if err := h.provider.VerifyWebhookSignature(payload, signature, h.config.WebhookSecret); err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "webhook.stripe", "Invalid signature"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("failed to parse webhook JSON", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Invalid JSON"))
		return
	}

	h.logger.Info("stripe webhook received", "event_type", event.Type, "event_id", event.ID)

	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues(string(event.Type)).Inc()
	}
	defer func() {
		if telemetry.Business != nil {
			telemetry.Business.WebhookLatency.WithLabelValues(string(event.Type)).Observe(time.Since(startTime).Seconds())
		}
	}()

	switch event.Type {
	case "payment_intent.succeeded":
		h.handlePaymentIntentSucceeded(r, event)

	case "payment_intent.payment_failed":
		h.handlePaymentIntentFailed(r, event)

	case "payment_intent.canceled":
		h.handlePaymentIntentCanceled(r, event)

	case "payment_intent.created":
		// No action needed - just for monitoring
		h.logger.Debug("payment intent created", "event_id", event.ID)

	default:
		// Log unhandled event types for future implementation
		h.logger.Info("unhandled event type", "event_type", event.Type)
	}

	// Always return 200 to acknowledge receipt once the signature checks out.
	// Stripe retries on any error status, and a handler failure here must not
	// trigger a redelivery storm.
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received": true}`))
}

// handlePaymentIntentSucceeded reconciles a successful payment into the
// order and payment records.
func (h *StripeHandler) handlePaymentIntentSucceeded(r *http.Request, event stripe.Event) {
	paymentIntent, ok := h.parseIntent(event)
	if !ok {
		return
	}

	h.logger.Info("payment succeeded",
		"payment_intent_id", paymentIntent.ID,
		"amount", paymentIntent.Amount,
		"currency", paymentIntent.Currency,
	)

	payment, err := h.payments.ConfirmFromWebhook(r.Context(), paymentIntent.ID)
	if err != nil {
		h.logger.Error("failed to reconcile successful payment",
			"payment_intent_id", paymentIntent.ID, "error", err)
		if telemetry.Business != nil {
			telemetry.Business.WebhookFailed.WithLabelValues(string(event.Type), "reconcile_failed").Inc()
		}
		return
	}
	if payment == nil {
		// Intent from another system or environment sharing the endpoint.
		h.logger.Info("ignoring unknown payment intent", "payment_intent_id", paymentIntent.ID)
		return
	}

	if telemetry.Business != nil {
		telemetry.Business.WebhookProcessed.WithLabelValues(string(event.Type)).Inc()
	}

	h.logger.Info("order reconciled as paid",
		"order_code", payment.OrderCode,
		"payment_intent_id", paymentIntent.ID,
	)
}

// handlePaymentIntentFailed records a failed attempt. The order stays
// pending so checkout can retry with a fresh intent.
func (h *StripeHandler) handlePaymentIntentFailed(r *http.Request, event stripe.Event) {
	paymentIntent, ok := h.parseIntent(event)
	if !ok {
		return
	}

	failureReason := "unknown"
	if paymentIntent.LastPaymentError != nil {
		failureReason = string(paymentIntent.LastPaymentError.Code)
	}
	h.logger.Info("payment failed",
		"payment_intent_id", paymentIntent.ID,
		"reason", failureReason,
	)

	payment, err := h.payments.RecordFailure(r.Context(), paymentIntent.ID, domain.PaymentStatusFailed)
	if err != nil {
		h.logger.Error("failed to record payment failure",
			"payment_intent_id", paymentIntent.ID, "error", err)
		if telemetry.Business != nil {
			telemetry.Business.WebhookFailed.WithLabelValues(string(event.Type), "record_failed").Inc()
		}
		return
	}
	if payment == nil {
		h.logger.Info("ignoring unknown payment intent", "payment_intent_id", paymentIntent.ID)
		return
	}

	if telemetry.Business != nil {
		telemetry.Business.PaymentFailed.WithLabelValues(failureReason).Inc()
		telemetry.Business.WebhookProcessed.WithLabelValues(string(event.Type)).Inc()
	}
}

// handlePaymentIntentCanceled records an abandoned or voided attempt.
func (h *StripeHandler) handlePaymentIntentCanceled(r *http.Request, event stripe.Event) {
	paymentIntent, ok := h.parseIntent(event)
	if !ok {
		return
	}

	h.logger.Info("payment intent canceled", "payment_intent_id", paymentIntent.ID)

	payment, err := h.payments.RecordFailure(r.Context(), paymentIntent.ID, domain.PaymentStatusCancelled)
	if err != nil {
		h.logger.Error("failed to record payment cancellation",
			"payment_intent_id", paymentIntent.ID, "error", err)
		if telemetry.Business != nil {
			telemetry.Business.WebhookFailed.WithLabelValues(string(event.Type), "record_failed").Inc()
		}
		return
	}
	if payment == nil {
		h.logger.Info("ignoring unknown payment intent", "payment_intent_id", paymentIntent.ID)
		return
	}

	if telemetry.Business != nil {
		telemetry.Business.PaymentCancelled.WithLabelValues("webhook").Inc()
		telemetry.Business.WebhookProcessed.WithLabelValues(string(event.Type)).Inc()
	}
}

func (h *StripeHandler) parseIntent(event stripe.Event) (*stripe.PaymentIntent, bool) {
	var paymentIntent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &paymentIntent); err != nil {
		h.logger.Error("failed to parse payment intent from webhook", "error", err)
		if telemetry.Business != nil {
			telemetry.Business.WebhookFailed.WithLabelValues(string(event.Type), "parse_failed").Inc()
		}
		return nil, false
	}
	return &paymentIntent, true
}
