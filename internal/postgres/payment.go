package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentStore implements domain.PaymentStore using PostgreSQL. It is a
// plain persistence boundary; transition legality lives in the orchestrator.
type PaymentStore struct {
	db *pgxpool.Pool
}

// Compile-time check that PaymentStore implements domain.PaymentStore.
var _ domain.PaymentStore = (*PaymentStore)(nil)

// NewPaymentStore creates a new PostgreSQL-backed payment store.
func NewPaymentStore(db *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{db: db}
}

// Create persists a new payment attempt in pending status.
func (s *PaymentStore) Create(ctx context.Context, params domain.CreatePaymentParams) (*domain.Payment, error) {
	payment := &domain.Payment{
		OrderCode:       params.OrderCode,
		PaymentIntentID: params.PaymentIntentID,
		Status:          domain.PaymentStatusPending,
		Amount:          params.Amount,
		Currency:        params.Currency,
		Metadata:        params.Metadata,
	}

	var metadata []byte
	if params.Metadata != nil {
		var err error
		metadata, err = json.Marshal(params.Metadata)
		if err != nil {
			return nil, domain.Internal(err, "payment.create", "failed to encode metadata")
		}
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO payments (order_code, payment_intent_id, status, amount, currency, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		payment.OrderCode, payment.PaymentIntentID, string(payment.Status),
		payment.Amount, payment.Currency, metadata,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return nil, domain.Internal(err, "payment.create", "failed to insert payment")
	}

	return payment, nil
}

// GetByIntentID returns the payment for a processor intent reference.
func (s *PaymentStore) GetByIntentID(ctx context.Context, paymentIntentID string) (*domain.Payment, error) {
	payment, err := scanPayment(s.db.QueryRow(ctx, selectPaymentSQL+` WHERE payment_intent_id = $1`, paymentIntentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, domain.Internal(err, "payment.get", "failed to get payment")
	}
	return payment, nil
}

// ListByOrderCode returns all payment attempts for an order, newest first.
func (s *PaymentStore) ListByOrderCode(ctx context.Context, orderCode string) ([]domain.Payment, error) {
	return s.list(ctx, selectPaymentSQL+` WHERE order_code = $1 ORDER BY created_at DESC, id DESC`, orderCode)
}

// List returns all payments, newest first.
func (s *PaymentStore) List(ctx context.Context) ([]domain.Payment, error) {
	return s.list(ctx, selectPaymentSQL+` ORDER BY created_at DESC, id DESC`)
}

// UpdateStatus sets the payment status and attaches optional processor
// references. The merge happens in one statement against the current row so
// two concurrent writers cannot produce a lost update.
func (s *PaymentStore) UpdateStatus(ctx context.Context, paymentIntentID string, status domain.PaymentStatus, update domain.PaymentStatusUpdate) (*domain.Payment, error) {
	payment, err := scanPayment(s.db.QueryRow(ctx, `
		UPDATE payments
		SET status = $2,
		    charge_id = COALESCE($3, charge_id),
		    receipt_url = COALESCE($4, receipt_url),
		    updated_at = now()
		WHERE payment_intent_id = $1
		RETURNING id, order_code, payment_intent_id, charge_id, receipt_url, status, amount, currency, metadata, created_at, updated_at`,
		paymentIntentID, string(status), update.ChargeID, update.ReceiptURL,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, domain.Internal(err, "payment.update_status", "failed to update payment")
	}
	return payment, nil
}

const selectPaymentSQL = `
	SELECT id, order_code, payment_intent_id, charge_id, receipt_url, status, amount, currency, metadata, created_at, updated_at
	FROM payments`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		payment  domain.Payment
		status   string
		metadata []byte
	)
	err := row.Scan(
		&payment.ID, &payment.OrderCode, &payment.PaymentIntentID, &payment.ChargeID,
		&payment.ReceiptURL, &status, &payment.Amount, &payment.Currency, &metadata,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	payment.Status = domain.PaymentStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &payment.Metadata); err != nil {
			return nil, err
		}
	}
	return &payment, nil
}

func (s *PaymentStore) list(ctx context.Context, sql string, args ...any) ([]domain.Payment, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.Internal(err, "payment.list", "failed to list payments")
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, domain.Internal(err, "payment.list", "failed to scan payment")
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "payment.list", "failed to read payments")
	}

	return payments, nil
}
