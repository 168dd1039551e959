package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/vanir/internal/billing"
	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/events"
	"github.com/dukerupert/vanir/internal/telemetry"
)

// paymentService implements domain.PaymentService. It is the only component
// that talks to the billing provider and the only writer of payment status;
// order status flows exclusively through the ledger's ApplyPaymentUpdate.
type paymentService struct {
	orders    domain.OrderService
	payments  domain.PaymentStore
	provider  billing.Provider
	publisher events.Publisher
	logger    *slog.Logger
	locks     *orderLocks
}

// Compile-time check that paymentService implements domain.PaymentService.
var _ domain.PaymentService = (*paymentService)(nil)

// NewPaymentService creates the payment orchestrator.
func NewPaymentService(
	orders domain.OrderService,
	payments domain.PaymentStore,
	provider billing.Provider,
	publisher events.Publisher,
	logger *slog.Logger,
) domain.PaymentService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &paymentService{
		orders:    orders,
		payments:  payments,
		provider:  provider,
		publisher: publisher,
		logger:    logger,
		locks:     newOrderLocks(),
	}
}

// CreateIntent creates a processor payment intent for the order total and
// records a new pending payment attempt. Repeated calls are allowed: each
// creates a fresh attempt, prior still-pending attempts are marked cancelled
// locally, and the order's intent reference tracks the latest call.
func (s *paymentService) CreateIntent(ctx context.Context, orderCode string) (*domain.IntentResult, error) {
	unlock := s.locks.Lock(orderCode)
	defer unlock()

	order, err := s.orders.GetByCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}

	// Supersede earlier attempts that never reached a terminal state. The
	// remote intent is left alone; the processor expires it on its own.
	prior, err := s.payments.ListByOrderCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	for _, p := range prior {
		if p.Status != domain.PaymentStatusPending {
			continue
		}
		if _, err := s.payments.UpdateStatus(ctx, p.PaymentIntentID, domain.PaymentStatusCancelled, domain.PaymentStatusUpdate{}); err != nil {
			return nil, err
		}
		s.logger.Info("superseded pending payment attempt",
			"order_code", orderCode,
			"payment_intent_id", p.PaymentIntentID,
		)
	}

	intent, err := s.provider.CreatePaymentIntent(ctx, billing.CreatePaymentIntentParams{
		Amount:   order.TotalAmount,
		Currency: strings.ToLower(order.Currency),
		Metadata: map[string]string{
			"order_code": order.OrderCode,
		},
	})
	if err != nil {
		return nil, domain.Gateway(err, "payment.create_intent", "failed to create payment intent")
	}

	// Amount and currency come from the processor's acknowledgment, which is
	// authoritative for money movement.
	if _, err := s.payments.Create(ctx, domain.CreatePaymentParams{
		OrderCode:       order.OrderCode,
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		Currency:        strings.ToUpper(intent.Currency),
		Metadata:        intent.Metadata,
	}); err != nil {
		return nil, err
	}

	// Attaching the reference does not itself mean payment succeeded; the
	// order status is deliberately left untouched.
	updated, err := s.orders.ApplyPaymentUpdate(ctx, order.OrderCode, domain.PaymentUpdate{
		PaymentIntentID: &intent.ID,
	})
	if err != nil {
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.PaymentAttempts.WithLabelValues(updated.Currency).Inc()
	}

	s.logger.Info("payment intent created",
		"order_code", order.OrderCode,
		"payment_intent_id", intent.ID,
		"amount", intent.Amount,
		"currency", intent.Currency,
	)

	return &domain.IntentResult{
		ClientSecret: intent.ClientSecret,
		Order:        updated,
	}, nil
}

// ConfirmFromWebhook reconciles a verified payment_intent.succeeded event.
//
// Webhooks are at-least-once and may reference intents this system never
// recorded (test events, stale rows after a data reset), so an unknown
// intent is a no-op rather than an error. Charge reference and receipt are
// taken from a fresh retrieve of the intent, never from the webhook payload.
// Invoking this twice for the same intent reaches the same terminal state
// without error and without publishing a second order-paid event.
func (s *paymentService) ConfirmFromWebhook(ctx context.Context, paymentIntentID string) (*domain.Payment, error) {
	payment, err := s.payments.GetByIntentID(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			s.logger.Info("webhook for unknown payment intent, nothing to reconcile",
				"payment_intent_id", paymentIntentID,
			)
			return nil, nil
		}
		return nil, err
	}

	unlock := s.locks.Lock(payment.OrderCode)
	defer unlock()

	// Re-read under the lock; a duplicate delivery may have won the race.
	payment, err = s.payments.GetByIntentID(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}
	alreadySucceeded := payment.Status == domain.PaymentStatusSucceeded

	intent, err := s.provider.GetPaymentIntent(ctx, billing.GetPaymentIntentParams{
		PaymentIntentID:    paymentIntentID,
		ExpandLatestCharge: true,
	})
	if err != nil {
		return nil, domain.Gateway(err, "payment.confirm", "failed to retrieve payment intent")
	}

	var chargeID, receiptURL *string
	if intent.LatestCharge != nil {
		chargeID = &intent.LatestCharge.ID
		if intent.LatestCharge.ReceiptURL != "" {
			receiptURL = &intent.LatestCharge.ReceiptURL
		}
	}

	payment, err = s.payments.UpdateStatus(ctx, paymentIntentID, domain.PaymentStatusSucceeded, domain.PaymentStatusUpdate{
		ChargeID:   chargeID,
		ReceiptURL: receiptURL,
	})
	if err != nil {
		return nil, err
	}

	paid := domain.OrderStatusPaid
	order, err := s.orders.ApplyPaymentUpdate(ctx, payment.OrderCode, domain.PaymentUpdate{
		Status:          &paid,
		PaymentIntentID: &paymentIntentID,
		ChargeID:        chargeID,
		ReceiptURL:      receiptURL,
	})
	if err != nil {
		return nil, err
	}

	if !alreadySucceeded {
		s.publishEvent(ctx, events.SubjectOrderPaid, order, payment)
		if telemetry.Business != nil {
			telemetry.Business.PaymentSucceeded.WithLabelValues(order.Currency).Inc()
		}
		s.logger.Info("payment confirmed",
			"order_code", order.OrderCode,
			"payment_intent_id", paymentIntentID,
			"charge_id", orEmpty(chargeID),
		)
	} else {
		s.logger.Info("duplicate webhook delivery, already reconciled",
			"order_code", order.OrderCode,
			"payment_intent_id", paymentIntentID,
		)
	}

	return payment, nil
}

// RecordFailure reconciles payment_intent.payment_failed and
// payment_intent.canceled events. Only the payment row changes; the order
// stays pending so checkout can retry with a fresh intent.
func (s *paymentService) RecordFailure(ctx context.Context, paymentIntentID string, status domain.PaymentStatus) (*domain.Payment, error) {
	if status != domain.PaymentStatusFailed && status != domain.PaymentStatusCancelled {
		return nil, domain.Invalid("payment.record_failure", "status must be failed or cancelled")
	}

	payment, err := s.payments.GetByIntentID(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, nil
		}
		return nil, err
	}

	unlock := s.locks.Lock(payment.OrderCode)
	defer unlock()

	payment, err = s.payments.GetByIntentID(ctx, paymentIntentID)
	if err != nil {
		return nil, err
	}

	// A late failure event must not clobber a reconciled success.
	if payment.Status == domain.PaymentStatusSucceeded || payment.Status == domain.PaymentStatusRefunded {
		return payment, nil
	}

	payment, err = s.payments.UpdateStatus(ctx, paymentIntentID, status, domain.PaymentStatusUpdate{})
	if err != nil {
		return nil, err
	}

	if telemetry.Business != nil && status == domain.PaymentStatusFailed {
		telemetry.Business.PaymentFailed.WithLabelValues("processor").Inc()
	}

	s.logger.Info("payment attempt closed without capture",
		"order_code", payment.OrderCode,
		"payment_intent_id", paymentIntentID,
		"status", string(status),
	)

	return payment, nil
}

// Cancel voids the order's current intent at the processor, then marks the
// order and payment cancelled. Local state is untouched when the remote
// cancel fails; an intent that already succeeded surfaces as an invalid
// order state so the caller can distinguish "already paid" from a transport
// error.
func (s *paymentService) Cancel(ctx context.Context, orderCode string) error {
	unlock := s.locks.Lock(orderCode)
	defer unlock()

	order, err := s.orders.GetByCode(ctx, orderCode)
	if err != nil {
		return err
	}
	if order.PaymentIntentID == nil {
		return domain.ErrPaymentNotFound
	}

	payment, err := s.payments.GetByIntentID(ctx, *order.PaymentIntentID)
	if err != nil {
		return err
	}

	if err := s.provider.CancelPaymentIntent(ctx, payment.PaymentIntentID); err != nil {
		if errors.Is(err, billing.ErrIntentNotCancelable) {
			return domain.ErrInvalidOrderState
		}
		return domain.Gateway(err, "payment.cancel", "failed to cancel payment intent")
	}

	cancelled := domain.OrderStatusCancelled
	order, err = s.orders.ApplyPaymentUpdate(ctx, orderCode, domain.PaymentUpdate{Status: &cancelled})
	if err != nil {
		return err
	}

	payment, err = s.payments.UpdateStatus(ctx, payment.PaymentIntentID, domain.PaymentStatusCancelled, domain.PaymentStatusUpdate{})
	if err != nil {
		return err
	}

	s.publishEvent(ctx, events.SubjectOrderCancelled, order, payment)
	if telemetry.Business != nil {
		telemetry.Business.PaymentCancelled.WithLabelValues("admin").Inc()
	}

	s.logger.Info("order cancelled",
		"order_code", orderCode,
		"payment_intent_id", payment.PaymentIntentID,
	)

	return nil
}

// Refund refunds the order's charge, fully when amount is zero. The amount
// is validated locally before any gateway round trip.
func (s *paymentService) Refund(ctx context.Context, orderCode string, amount int64) (string, error) {
	unlock := s.locks.Lock(orderCode)
	defer unlock()

	order, err := s.orders.GetByCode(ctx, orderCode)
	if err != nil {
		return "", err
	}
	if order.PaymentIntentID == nil {
		return "", domain.ErrPaymentNotFound
	}

	payment, err := s.payments.GetByIntentID(ctx, *order.PaymentIntentID)
	if err != nil {
		return "", err
	}

	if amount < 0 {
		return "", domain.Invalid("payment.refund", "refund amount must be positive")
	}
	if amount > payment.Amount {
		return "", domain.Invalid("payment.refund", "refund amount exceeds the original charge")
	}

	// Only a paid order can be refunded; refunding a pending, cancelled, or
	// already-refunded order is rejected before touching the processor.
	if order.Status != domain.OrderStatusPaid {
		return "", domain.ErrInvalidOrderState
	}

	r, err := s.provider.CreateRefund(ctx, billing.RefundParams{
		PaymentIntentID: payment.PaymentIntentID,
		Amount:          amount,
	})
	if err != nil {
		return "", domain.Gateway(err, "payment.refund", "failed to create refund")
	}

	payment, err = s.payments.UpdateStatus(ctx, payment.PaymentIntentID, domain.PaymentStatusRefunded, domain.PaymentStatusUpdate{})
	if err != nil {
		return "", err
	}

	refunded := domain.OrderStatusRefunded
	order, err = s.orders.ApplyPaymentUpdate(ctx, orderCode, domain.PaymentUpdate{
		Status:     &refunded,
		ReceiptURL: payment.ReceiptURL,
	})
	if err != nil {
		return "", err
	}

	s.publishEvent(ctx, events.SubjectOrderRefunded, order, payment)
	if telemetry.Business != nil {
		telemetry.Business.RefundsIssued.WithLabelValues(order.Currency).Inc()
		refundedAmount := amount
		if refundedAmount == 0 {
			refundedAmount = payment.Amount
		}
		telemetry.Business.RefundAmount.WithLabelValues(order.Currency).Add(float64(refundedAmount))
	}

	s.logger.Info("refund created",
		"order_code", orderCode,
		"payment_intent_id", payment.PaymentIntentID,
		"refund_id", r.ID,
		"amount", amount,
	)

	return r.ID, nil
}

// FindPayments lists payments for an order, or every payment when orderCode
// is empty. Pure read, no side effects.
func (s *paymentService) FindPayments(ctx context.Context, orderCode string) ([]domain.Payment, error) {
	if orderCode != "" {
		return s.payments.ListByOrderCode(ctx, orderCode)
	}
	return s.payments.List(ctx)
}

func (s *paymentService) publishEvent(ctx context.Context, subject string, order *domain.Order, payment *domain.Payment) {
	event := events.OrderEvent{
		OrderCode:       order.OrderCode,
		PaymentIntentID: payment.PaymentIntentID,
		ChargeID:        orEmpty(payment.ChargeID),
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		OccurredAt:      time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, subject, event); err != nil {
		// Event delivery is best effort; the order/payment rows are already
		// consistent and consumers reconcile from them.
		s.logger.Error("failed to publish order event",
			"subject", subject,
			"order_code", order.OrderCode,
			"error", err,
		)
	}
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
