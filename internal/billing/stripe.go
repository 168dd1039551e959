package billing

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider using the Stripe Go SDK.
type StripeProvider struct {
	config StripeConfig
}

// Compile-time check that StripeProvider implements Provider.
var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a new Stripe billing provider. The SDK uses a
// package-level API key, so only one Stripe account per process.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	stripe.Key = config.APIKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(int64(config.MaxRetries)),
	}))

	return &StripeProvider{config: config}, nil
}

// CreatePaymentIntent creates a Stripe payment intent with automatic payment
// methods enabled, tagged with the caller's metadata.
func (s *StripeProvider) CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams) (*PaymentIntent, error) {
	piParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.Amount),
		Currency: stripe.String(params.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	piParams.Context = ctx
	for k, v := range params.Metadata {
		piParams.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		piParams.IdempotencyKey = stripe.String(params.IdempotencyKey)
	}

	pi, err := paymentintent.New(piParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return convertPaymentIntent(pi), nil
}

// GetPaymentIntent retrieves a payment intent, optionally expanding the
// latest charge so the charge id and receipt URL are available.
func (s *StripeProvider) GetPaymentIntent(ctx context.Context, params GetPaymentIntentParams) (*PaymentIntent, error) {
	piParams := &stripe.PaymentIntentParams{}
	piParams.Context = ctx
	if params.ExpandLatestCharge {
		piParams.AddExpand("latest_charge")
	}

	pi, err := paymentintent.Get(params.PaymentIntentID, piParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return convertPaymentIntent(pi), nil
}

// CancelPaymentIntent cancels an intent that has not been captured.
func (s *StripeProvider) CancelPaymentIntent(ctx context.Context, paymentIntentID string) error {
	cancelParams := &stripe.PaymentIntentCancelParams{}
	cancelParams.Context = ctx

	if _, err := paymentintent.Cancel(paymentIntentID, cancelParams); err != nil {
		return wrapStripeError(err)
	}
	return nil
}

// CreateRefund refunds a succeeded intent, fully when Amount is zero.
func (s *StripeProvider) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	refundParams := &stripe.RefundParams{
		PaymentIntent: stripe.String(params.PaymentIntentID),
	}
	refundParams.Context = ctx
	if params.Amount > 0 {
		refundParams.Amount = stripe.Int64(params.Amount)
	}

	r, err := refund.New(refundParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return &Refund{
		ID:        r.ID,
		Amount:    r.Amount,
		Status:    string(r.Status),
		CreatedAt: time.Unix(r.Created, 0),
	}, nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if _, err := webhook.ConstructEvent(payload, signature, secret); err != nil {
		return errors.Join(ErrInvalidWebhookSignature, err)
	}
	return nil
}

// convertPaymentIntent maps the SDK type to the provider-neutral type.
func convertPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
		CreatedAt:    time.Unix(pi.Created, 0),
	}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		out.LatestCharge = &Charge{
			ID:         pi.LatestCharge.ID,
			ReceiptURL: pi.LatestCharge.ReceiptURL,
		}
	}
	return out
}

// wrapStripeError converts an SDK error into a StripeError, mapping the
// handful of codes the orchestrator branches on to sentinel errors.
func wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &StripeError{Message: err.Error(), OriginalError: err}
	}

	wrapped := &StripeError{
		Message:       stripeErr.Msg,
		Code:          string(stripeErr.Code),
		DeclineCode:   string(stripeErr.DeclineCode),
		RequestID:     stripeErr.RequestID,
		OriginalError: err,
	}

	switch stripeErr.Code {
	case stripe.ErrorCodePaymentIntentUnexpectedState:
		return errors.Join(ErrIntentNotCancelable, wrapped)
	case stripe.ErrorCodeResourceMissing:
		return errors.Join(ErrPaymentIntentNotFound, wrapped)
	}
	return wrapped
}
