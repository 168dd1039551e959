package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/vanir/internal/billing"
	"github.com/dukerupert/vanir/internal/domain"
	"github.com/dukerupert/vanir/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memOrders is a stateful in-memory domain.OrderService. It enforces the
// same transition rules as the real store so the orchestrator tests exercise
// genuine lifecycle behavior.
type memOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*domain.Order)}
}

func (m *memOrders) add(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.OrderCode] = order
}

func (m *memOrders) CreateFromSnapshot(ctx context.Context, snapshot domain.CartSnapshot, params domain.CreateOrderParams) (*domain.Order, error) {
	if len(snapshot.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	var sum int64
	for _, item := range snapshot.Items {
		sum += item.LineTotal
	}
	if sum != snapshot.TotalAmount {
		return nil, domain.ErrTotalMismatch
	}

	order := &domain.Order{
		ID:              "ord-id-" + params.CustomerEmail,
		OrderCode:       "ORD-" + params.CustomerEmail,
		CustomerName:    params.CustomerName,
		CustomerEmail:   params.CustomerEmail,
		ShippingAddress: params.ShippingAddress,
		ContactNumber:   params.ContactNumber,
		TotalAmount:     snapshot.TotalAmount,
		Currency:        snapshot.Currency,
		Status:          domain.OrderStatusPending,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	m.add(order)
	return order, nil
}

func (m *memOrders) GetByCode(ctx context.Context, orderCode string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderCode]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *memOrders) ApplyPaymentUpdate(ctx context.Context, orderCode string, update domain.PaymentUpdate) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderCode]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if update.Status != nil {
		if !update.Status.Valid() || !order.Status.CanTransition(*update.Status) {
			return nil, domain.ErrInvalidOrderState
		}
		order.Status = *update.Status
	}
	if update.PaymentIntentID != nil {
		order.PaymentIntentID = update.PaymentIntentID
	}
	if update.ChargeID != nil {
		order.ChargeID = update.ChargeID
	}
	if update.ReceiptURL != nil {
		order.ReceiptURL = update.ReceiptURL
	}
	order.UpdatedAt = time.Now()
	copied := *order
	return &copied, nil
}

// memPayments is a stateful in-memory domain.PaymentStore.
type memPayments struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
	seq      int
}

func newMemPayments() *memPayments {
	return &memPayments{payments: make(map[string]*domain.Payment)}
}

func (m *memPayments) Create(ctx context.Context, params domain.CreatePaymentParams) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	payment := &domain.Payment{
		ID:              params.PaymentIntentID + "-row",
		OrderCode:       params.OrderCode,
		PaymentIntentID: params.PaymentIntentID,
		Status:          domain.PaymentStatusPending,
		Amount:          params.Amount,
		Currency:        params.Currency,
		Metadata:        params.Metadata,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	m.payments[params.PaymentIntentID] = payment
	return payment, nil
}

func (m *memPayments) GetByIntentID(ctx context.Context, paymentIntentID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[paymentIntentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	copied := *payment
	return &copied, nil
}

func (m *memPayments) ListByOrderCode(ctx context.Context, orderCode string) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		if p.OrderCode == orderCode {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPayments) List(ctx context.Context) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memPayments) UpdateStatus(ctx context.Context, paymentIntentID string, status domain.PaymentStatus, update domain.PaymentStatusUpdate) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment, ok := m.payments[paymentIntentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	payment.Status = status
	if update.ChargeID != nil {
		payment.ChargeID = update.ChargeID
	}
	if update.ReceiptURL != nil {
		payment.ReceiptURL = update.ReceiptURL
	}
	payment.UpdatedAt = time.Now()
	copied := *payment
	return &copied, nil
}

// memPublisher records published events for assertions.
type memPublisher struct {
	mu        sync.Mutex
	published []publishedEvent
}

type publishedEvent struct {
	subject string
	event   events.OrderEvent
}

func (m *memPublisher) Publish(ctx context.Context, subject string, event events.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedEvent{subject: subject, event: event})
	return nil
}

func (m *memPublisher) events() []publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedEvent(nil), m.published...)
}

// fixture wires the orchestrator against in-memory collaborators with one
// pending KRW 54000 order already placed.
type fixture struct {
	orders    *memOrders
	payments  *memPayments
	provider  *billing.MockProvider
	publisher *memPublisher
	service   domain.PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		orders:    newMemOrders(),
		payments:  newMemPayments(),
		provider:  billing.NewMockProvider(),
		publisher: &memPublisher{},
	}
	f.service = NewPaymentService(f.orders, f.payments, f.provider, f.publisher, nil)

	f.orders.add(&domain.Order{
		ID:            "ord-1",
		OrderCode:     "ORD-a1b2c3d4",
		CustomerName:  "Kim Minji",
		CustomerEmail: "minji@example.com",
		TotalAmount:   54000,
		Currency:      "KRW",
		Status:        domain.OrderStatusPending,
	})
	return f
}

// confirm walks the happy path: create an intent, then reconcile its
// succeeded webhook with charge details attached.
func (f *fixture) confirm(t *testing.T, orderCode string) *domain.Payment {
	t.Helper()
	ctx := context.Background()

	result, err := f.service.CreateIntent(ctx, orderCode)
	require.NoError(t, err)

	intentID := *result.Order.PaymentIntentID
	f.provider.GetPaymentIntentFunc = func(ctx context.Context, params billing.GetPaymentIntentParams) (*billing.PaymentIntent, error) {
		pi := *f.provider.PaymentIntents[params.PaymentIntentID]
		pi.Status = "succeeded"
		pi.LatestCharge = &billing.Charge{
			ID:         "ch_1",
			ReceiptURL: "https://pay.stripe.com/receipts/ch_1",
		}
		return &pi, nil
	}

	payment, err := f.service.ConfirmFromWebhook(ctx, intentID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	return payment
}

func TestCreateIntent(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending attempt and attaches reference", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.service.CreateIntent(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		assert.NotEmpty(t, result.ClientSecret)

		// Order status must not change; only the intent reference attaches.
		assert.Equal(t, domain.OrderStatusPending, result.Order.Status)
		require.NotNil(t, result.Order.PaymentIntentID)

		payment, err := f.payments.GetByIntentID(ctx, *result.Order.PaymentIntentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusPending, payment.Status)
		assert.Equal(t, int64(54000), payment.Amount)
		assert.Equal(t, "KRW", payment.Currency)
		assert.Equal(t, "ORD-a1b2c3d4", payment.Metadata["order_code"])
	})

	t.Run("supersedes earlier pending attempts", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.service.CreateIntent(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		second, err := f.service.CreateIntent(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)

		firstID := *first.Order.PaymentIntentID
		secondID := *second.Order.PaymentIntentID
		require.NotEqual(t, firstID, secondID)

		superseded, err := f.payments.GetByIntentID(ctx, firstID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCancelled, superseded.Status)

		latest, err := f.payments.GetByIntentID(ctx, secondID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusPending, latest.Status)

		// The order references the latest attempt.
		order, err := f.orders.GetByCode(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, secondID, *order.PaymentIntentID)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.CreateIntent(ctx, "ORD-missing")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("gateway failure leaves no payment row", func(t *testing.T) {
		f := newFixture(t)
		f.provider.CreatePaymentIntentFunc = func(ctx context.Context, params billing.CreatePaymentIntentParams) (*billing.PaymentIntent, error) {
			return nil, &billing.StripeError{Message: "api down"}
		}

		_, err := f.service.CreateIntent(ctx, "ORD-a1b2c3d4")
		require.Error(t, err)
		assert.Equal(t, domain.EGATEWAY, domain.ErrorCode(err))

		payments, err := f.payments.ListByOrderCode(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		assert.Empty(t, payments)
	})
}

func TestConfirmFromWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("reconciles order to paid with charge details", func(t *testing.T) {
		f := newFixture(t)
		payment := f.confirm(t, "ORD-a1b2c3d4")

		assert.Equal(t, domain.PaymentStatusSucceeded, payment.Status)
		require.NotNil(t, payment.ChargeID)
		assert.Equal(t, "ch_1", *payment.ChargeID)

		order, err := f.orders.GetByCode(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPaid, order.Status)
		require.NotNil(t, order.ChargeID)
		assert.Equal(t, "ch_1", *order.ChargeID)
		require.NotNil(t, order.ReceiptURL)
		assert.Equal(t, "https://pay.stripe.com/receipts/ch_1", *order.ReceiptURL)

		published := f.publisher.events()
		require.Len(t, published, 1)
		assert.Equal(t, events.SubjectOrderPaid, published[0].subject)
		assert.Equal(t, "ORD-a1b2c3d4", published[0].event.OrderCode)
		assert.Equal(t, int64(54000), published[0].event.Amount)
	})

	t.Run("redelivery is a fixed point", func(t *testing.T) {
		f := newFixture(t)
		payment := f.confirm(t, "ORD-a1b2c3d4")

		// Same event again: no error, same state, no second publish.
		again, err := f.service.ConfirmFromWebhook(ctx, payment.PaymentIntentID)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, domain.PaymentStatusSucceeded, again.Status)

		order, err := f.orders.GetByCode(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPaid, order.Status)

		assert.Len(t, f.publisher.events(), 1)
	})

	t.Run("unknown intent is a no-op", func(t *testing.T) {
		f := newFixture(t)

		payment, err := f.service.ConfirmFromWebhook(ctx, "pi_unknown")
		require.NoError(t, err)
		assert.Nil(t, payment)
		assert.Empty(t, f.publisher.events())
	})

	t.Run("success webhook after cancellation keeps processor truth", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.service.CreateIntent(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		intentID := *result.Order.PaymentIntentID

		require.NoError(t, f.service.Cancel(ctx, "ORD-a1b2c3d4"))

		// Stripe races the cancel and reports the capture after all.
		f.provider.GetPaymentIntentFunc = func(ctx context.Context, params billing.GetPaymentIntentParams) (*billing.PaymentIntent, error) {
			pi := *f.provider.PaymentIntents[params.PaymentIntentID]
			pi.Status = "succeeded"
			pi.LatestCharge = &billing.Charge{ID: "ch_race"}
			return &pi, nil
		}

		_, err = f.service.ConfirmFromWebhook(ctx, intentID)
		require.ErrorIs(t, err, domain.ErrInvalidOrderState)

		// The payment row records what the processor says happened; the
		// cancelled order never transitions, and no paid event goes out.
		payment, err := f.payments.GetByIntentID(ctx, intentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusSucceeded, payment.Status)
		require.NotNil(t, payment.ChargeID)
		assert.Equal(t, "ch_race", *payment.ChargeID)

		order, err := f.orders.GetByCode(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCancelled, order.Status)

		published := f.publisher.events()
		require.Len(t, published, 1)
		assert.Equal(t, events.SubjectOrderCancelled, published[0].subject)
	})
}

func TestRecordFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("marks payment failed, order stays pending", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.service.CreateIntent(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		intentID := *result.Order.PaymentIntentID

		payment, err := f.service.RecordFailure(ctx, intentID, domain.PaymentStatusFailed)
		require.NoError(t, err)
		require.NotNil(t, payment)
		assert.Equal(t, domain.PaymentStatusFailed, payment.Status)

		order, err := f.orders.GetByCode(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPending, order.Status)
	})

	t.Run("does not clobber a reconciled success", func(t *testing.T) {
		f := newFixture(t)
		payment := f.confirm(t, "ORD-a1b2c3d4")

		late, err := f.service.RecordFailure(ctx, payment.PaymentIntentID, domain.PaymentStatusFailed)
		require.NoError(t, err)
		require.NotNil(t, late)
		assert.Equal(t, domain.PaymentStatusSucceeded, late.Status)
	})

	t.Run("unknown intent is a no-op", func(t *testing.T) {
		f := newFixture(t)

		payment, err := f.service.RecordFailure(ctx, "pi_unknown", domain.PaymentStatusCancelled)
		require.NoError(t, err)
		assert.Nil(t, payment)
	})

	t.Run("rejects statuses other than failed or cancelled", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.RecordFailure(ctx, "pi_any", domain.PaymentStatusSucceeded)
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels a pending order", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.service.CreateIntent(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		intentID := *result.Order.PaymentIntentID

		require.NoError(t, f.service.Cancel(ctx, "ORD-a1b2c3d4"))

		order, err := f.orders.GetByCode(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCancelled, order.Status)

		payment, err := f.payments.GetByIntentID(ctx, intentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCancelled, payment.Status)

		published := f.publisher.events()
		require.Len(t, published, 1)
		assert.Equal(t, events.SubjectOrderCancelled, published[0].subject)
	})

	t.Run("no intent yet", func(t *testing.T) {
		f := newFixture(t)

		err := f.service.Cancel(ctx, "ORD-a1b2c3d4")
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})

	t.Run("succeeded intent is not cancelable at the processor", func(t *testing.T) {
		f := newFixture(t)
		f.confirm(t, "ORD-a1b2c3d4")

		// Mock marks the remote intent succeeded once confirmed.
		f.provider.CancelPaymentIntentFunc = func(ctx context.Context, paymentIntentID string) error {
			return billing.ErrIntentNotCancelable
		}

		err := f.service.Cancel(ctx, "ORD-a1b2c3d4")
		assert.ErrorIs(t, err, domain.ErrInvalidOrderState)
	})
}

func TestRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("full refund of a paid order", func(t *testing.T) {
		f := newFixture(t)
		payment := f.confirm(t, "ORD-a1b2c3d4")

		refundID, err := f.service.Refund(ctx, "ORD-a1b2c3d4", 0)
		require.NoError(t, err)
		assert.NotEmpty(t, refundID)

		order, err := f.orders.GetByCode(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusRefunded, order.Status)

		refunded, err := f.payments.GetByIntentID(ctx, payment.PaymentIntentID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusRefunded, refunded.Status)

		published := f.publisher.events()
		require.Len(t, published, 2)
		assert.Equal(t, events.SubjectOrderRefunded, published[1].subject)
	})

	t.Run("partial refund", func(t *testing.T) {
		f := newFixture(t)
		f.confirm(t, "ORD-a1b2c3d4")

		_, err := f.service.Refund(ctx, "ORD-a1b2c3d4", 15000)
		require.NoError(t, err)
	})

	t.Run("amount exceeding the charge is rejected locally", func(t *testing.T) {
		f := newFixture(t)
		f.confirm(t, "ORD-a1b2c3d4")
		callsBefore := len(f.provider.CallLog)

		_, err := f.service.Refund(ctx, "ORD-a1b2c3d4", 54001)
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

		// No gateway round trip for an invalid amount.
		assert.Len(t, f.provider.CallLog, callsBefore)
	})

	t.Run("refund of a pending order is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateIntent(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)

		_, err = f.service.Refund(ctx, "ORD-a1b2c3d4", 0)
		assert.ErrorIs(t, err, domain.ErrInvalidOrderState)
	})

	t.Run("refund after cancellation is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateIntent(ctx, "ORD-a1b2c3d4")
		require.NoError(t, err)
		require.NoError(t, f.service.Cancel(ctx, "ORD-a1b2c3d4"))

		_, err = f.service.Refund(ctx, "ORD-a1b2c3d4", 0)
		assert.ErrorIs(t, err, domain.ErrInvalidOrderState)
	})
}

func TestFindPayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.orders.add(&domain.Order{
		OrderCode:   "ORD-other",
		TotalAmount: 15000,
		Currency:    "KRW",
		Status:      domain.OrderStatusPending,
	})

	_, err := f.service.CreateIntent(ctx, "ORD-a1b2c3d4")
	require.NoError(t, err)
	_, err = f.service.CreateIntent(ctx, "ORD-other")
	require.NoError(t, err)

	scoped, err := f.service.FindPayments(ctx, "ORD-other")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, int64(15000), scoped[0].Amount)

	all, err := f.service.FindPayments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
