package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Business is the process-wide metrics instance. Nil until InitBusiness is
// called, so call sites must nil-check (tests run without metrics).
var Business *BusinessMetrics

// BusinessMetrics holds Prometheus metrics for payment-funnel observability.
type BusinessMetrics struct {
	// Orders
	OrdersCreated *prometheus.CounterVec
	OrderValue    *prometheus.HistogramVec

	// Payments
	PaymentAttempts  *prometheus.CounterVec
	PaymentSucceeded *prometheus.CounterVec
	PaymentFailed    *prometheus.CounterVec
	PaymentCancelled *prometheus.CounterVec

	// Refunds
	RefundsIssued *prometheus.CounterVec
	RefundAmount  *prometheus.CounterVec

	// Webhooks
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec
}

// InitBusiness creates and registers all business metrics and installs them
// as the package-wide instance.
func InitBusiness(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(namespace)
	return Business
}

// NewBusinessMetrics creates and registers all business metrics.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "vanir"
	}
	subsystem := "business"

	return &BusinessMetrics{
		OrdersCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orders_created_total",
			Help:      "Orders created from cart snapshots",
		}, []string{"currency"}),
		OrderValue: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "order_value",
			Help:      "Order totals in the smallest currency unit",
			Buckets:   prometheus.ExponentialBuckets(1000, 4, 10),
		}, []string{"currency"}),
		PaymentAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payment_attempts_total",
			Help:      "Payment intents created",
		}, []string{"currency"}),
		PaymentSucceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payment_succeeded_total",
			Help:      "Payments confirmed via webhook reconciliation",
		}, []string{"currency"}),
		PaymentFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payment_failed_total",
			Help:      "Payment attempts that failed at the processor",
		}, []string{"reason"}),
		PaymentCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payment_cancelled_total",
			Help:      "Payment intents cancelled before capture",
		}, []string{"source"}),
		RefundsIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "refunds_issued_total",
			Help:      "Refunds created at the processor",
		}, []string{"currency"}),
		RefundAmount: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "refund_amount_total",
			Help:      "Refunded amounts in the smallest currency unit",
		}, []string{"currency"}),
		WebhookReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "webhook_received_total",
			Help:      "Webhook events received, by type",
		}, []string{"event_type"}),
		WebhookProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "webhook_processed_total",
			Help:      "Webhook events handled to completion",
		}, []string{"event_type"}),
		WebhookFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "webhook_failed_total",
			Help:      "Webhook events whose reconciliation failed",
		}, []string{"event_type", "reason"}),
		WebhookLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "webhook_latency_seconds",
			Help:      "Webhook handling duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
}
