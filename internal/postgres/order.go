package postgres

import (
	"context"
	"errors"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderService implements domain.OrderService using PostgreSQL.
type OrderService struct {
	db *pgxpool.Pool
}

// Compile-time check that OrderService implements domain.OrderService.
var _ domain.OrderService = (*OrderService)(nil)

// NewOrderService creates a new PostgreSQL-backed order ledger.
func NewOrderService(db *pgxpool.Pool) *OrderService {
	return &OrderService{db: db}
}

// CreateFromSnapshot converts a cart snapshot into an immutable order. The
// snapshot's lines, total, and currency are frozen into the order so later
// catalog edits never retroactively change what the customer bought.
func (s *OrderService) CreateFromSnapshot(ctx context.Context, snapshot domain.CartSnapshot, params domain.CreateOrderParams) (*domain.Order, error) {
	if len(snapshot.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	var lineSum int64
	for _, item := range snapshot.Items {
		lineSum += item.LineTotal
	}
	if lineSum != snapshot.TotalAmount {
		return nil, domain.ErrTotalMismatch
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, domain.Internal(err, "order.create", "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	order := &domain.Order{
		OrderCode:       generateOrderCode(),
		CustomerName:    params.CustomerName,
		CustomerEmail:   params.CustomerEmail,
		ShippingAddress: params.ShippingAddress,
		ContactNumber:   params.ContactNumber,
		TotalAmount:     snapshot.TotalAmount,
		Currency:        snapshot.Currency,
		Status:          domain.OrderStatusPending,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (order_code, customer_name, customer_email, shipping_address, contact_number, total_amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		order.OrderCode, order.CustomerName, order.CustomerEmail, order.ShippingAddress,
		order.ContactNumber, order.TotalAmount, order.Currency, string(order.Status),
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, domain.Internal(err, "order.create", "failed to insert order")
	}

	order.Lines = make([]domain.OrderLine, len(snapshot.Items))
	for i, item := range snapshot.Items {
		line := domain.OrderLine{
			ProductName:     item.ProductName,
			ProductImageURL: item.ProductImageURL,
			UnitPrice:       item.UnitPrice,
			Quantity:        item.Quantity,
			LineTotal:       item.LineTotal,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO order_lines (order_id, product_name, product_image_url, unit_price, quantity, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			order.ID, line.ProductName, line.ProductImageURL, line.UnitPrice, line.Quantity, line.LineTotal,
		).Scan(&line.ID)
		if err != nil {
			return nil, domain.Internal(err, "order.create", "failed to insert order line")
		}
		order.Lines[i] = line
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Internal(err, "order.create", "failed to commit order")
	}

	return order, nil
}

// GetByCode retrieves an order with its lines by order code.
func (s *OrderService) GetByCode(ctx context.Context, orderCode string) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRow(ctx, selectOrderSQL+` WHERE order_code = $1`, orderCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.Internal(err, "order.get", "failed to get order")
	}

	order.Lines, err = s.loadLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return order, nil
}

// ApplyPaymentUpdate merges a partial payment patch into the order. This is
// the single authoritative write path for order status and processor
// references. The row is locked for the duration of the check-then-write so
// concurrent transitions serialize; illegal transitions are rejected, never
// coerced.
func (s *OrderService) ApplyPaymentUpdate(ctx context.Context, orderCode string, update domain.PaymentUpdate) (*domain.Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, domain.Internal(err, "order.apply_payment_update", "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	order, err := scanOrder(tx.QueryRow(ctx, selectOrderSQL+` WHERE order_code = $1 FOR UPDATE`, orderCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.Internal(err, "order.apply_payment_update", "failed to lock order")
	}

	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, domain.Invalid("order.apply_payment_update", "unknown order status")
		}
		if !order.Status.CanTransition(*update.Status) {
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

	err = tx.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, payment_intent_id = $3, charge_id = $4, receipt_url = $5, updated_at = now()
		WHERE order_code = $1
		RETURNING updated_at`,
		orderCode, string(order.Status), order.PaymentIntentID, order.ChargeID, order.ReceiptURL,
	).Scan(&order.UpdatedAt)
	if err != nil {
		return nil, domain.Internal(err, "order.apply_payment_update", "failed to update order")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Internal(err, "order.apply_payment_update", "failed to commit update")
	}

	order.Lines, err = s.loadLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return order, nil
}

const selectOrderSQL = `
	SELECT id, order_code, customer_name, customer_email, shipping_address, contact_number,
	       total_amount, currency, status, payment_intent_id, charge_id, receipt_url,
	       created_at, updated_at
	FROM orders`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	err := row.Scan(
		&order.ID, &order.OrderCode, &order.CustomerName, &order.CustomerEmail,
		&order.ShippingAddress, &order.ContactNumber, &order.TotalAmount, &order.Currency,
		&status, &order.PaymentIntentID, &order.ChargeID, &order.ReceiptURL,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatus(status)
	return &order, nil
}

func (s *OrderService) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, product_name, product_image_url, unit_price, quantity, line_total
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, domain.Internal(err, "order.load_lines", "failed to load order lines")
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.ProductName, &line.ProductImageURL, &line.UnitPrice, &line.Quantity, &line.LineTotal); err != nil {
			return nil, domain.Internal(err, "order.load_lines", "failed to scan order line")
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "order.load_lines", "failed to read order lines")
	}

	return lines, nil
}
