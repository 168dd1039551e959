package postgres

import (
	"context"
	"errors"

	"github.com/dukerupert/vanir/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CartService implements domain.CartService using PostgreSQL. Product details
// are frozen onto cart items at add time so a later price change never
// silently alters an open cart.
type CartService struct {
	db       *pgxpool.Pool
	currency string
}

// Compile-time check that CartService implements domain.CartService.
var _ domain.CartService = (*CartService)(nil)

// NewCartService creates a new PostgreSQL-backed cart service. New carts are
// opened in the given currency; blank falls back to KRW.
func NewCartService(db *pgxpool.Pool, currency string) *CartService {
	if currency == "" {
		currency = "KRW"
	}
	return &CartService{db: db, currency: currency}
}

// GetOrCreate retrieves the cart for a session, creating a new session and
// empty cart when sessionID is blank or unknown.
func (s *CartService) GetOrCreate(ctx context.Context, sessionID string) (*domain.CartSnapshot, error) {
	if sessionID != "" {
		cart, err := s.getBySessionID(ctx, sessionID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, domain.ErrCartNotFound) {
			return nil, err
		}
	}
	return s.create(ctx)
}

// AddItem adds a product to the cart or increments its quantity.
func (s *CartService) AddItem(ctx context.Context, sessionID, productID string, quantity int32) (*domain.CartSnapshot, error) {
	const op = "cart.add_item"

	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	cartID, currency, err := s.cartID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var (
		name     string
		imageURL string
		price    int64
	)
	err = s.db.QueryRow(ctx,
		`SELECT name, image_url, price FROM products WHERE id = $1 AND active`,
		productID,
	).Scan(&name, &imageURL, &price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, domain.Internal(err, op, "failed to get product")
	}

	// One row per product per cart; a repeat add bumps the quantity.
	_, err = s.db.Exec(ctx, `
		INSERT INTO cart_items (cart_id, product_id, product_name, product_image_url, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		cartID, productID, name, imageURL, price, quantity,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to add cart item")
	}

	return s.snapshot(ctx, cartID, sessionID, currency)
}

// UpdateItemQuantity sets the quantity of a cart item. Zero removes it.
func (s *CartService) UpdateItemQuantity(ctx context.Context, sessionID, itemID string, quantity int32) (*domain.CartSnapshot, error) {
	const op = "cart.update_item"

	if quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	cartID, currency, err := s.cartID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var tag int64
	if quantity == 0 {
		ct, err := s.db.Exec(ctx,
			`DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to remove cart item")
		}
		tag = ct.RowsAffected()
	} else {
		ct, err := s.db.Exec(ctx,
			`UPDATE cart_items SET quantity = $3 WHERE id = $1 AND cart_id = $2`,
			itemID, cartID, quantity)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to update cart item")
		}
		tag = ct.RowsAffected()
	}
	if tag == 0 {
		return nil, domain.ErrCartItemNotFound
	}

	return s.snapshot(ctx, cartID, sessionID, currency)
}

// RemoveItem removes a cart item.
func (s *CartService) RemoveItem(ctx context.Context, sessionID, itemID string) (*domain.CartSnapshot, error) {
	return s.UpdateItemQuantity(ctx, sessionID, itemID, 0)
}

// Clear removes all items from the cart.
func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	cartID, _, err := s.cartID(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return domain.Internal(err, "cart.clear", "failed to clear cart")
	}
	return nil
}

func (s *CartService) create(ctx context.Context) (*domain.CartSnapshot, error) {
	sessionID := generateSessionID()

	var currency string
	err := s.db.QueryRow(ctx, `
		INSERT INTO carts (session_id, currency) VALUES ($1, $2)
		RETURNING currency`, sessionID, s.currency,
	).Scan(&currency)
	if err != nil {
		return nil, domain.Internal(err, "cart.create", "failed to create cart")
	}

	return &domain.CartSnapshot{SessionID: sessionID, Currency: currency}, nil
}

func (s *CartService) getBySessionID(ctx context.Context, sessionID string) (*domain.CartSnapshot, error) {
	var (
		cartID   string
		currency string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, currency FROM carts WHERE session_id = $1`, sessionID,
	).Scan(&cartID, &currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCartNotFound
		}
		return nil, domain.Internal(err, "cart.get", "failed to get cart")
	}
	return s.snapshot(ctx, cartID, sessionID, currency)
}

func (s *CartService) cartID(ctx context.Context, sessionID string) (id, currency string, err error) {
	err = s.db.QueryRow(ctx,
		`SELECT id, currency FROM carts WHERE session_id = $1`, sessionID,
	).Scan(&id, &currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", domain.ErrCartNotFound
		}
		return "", "", domain.Internal(err, "cart.get", "failed to get cart")
	}
	return id, currency, nil
}

// snapshot materializes the cart's items and total. Line totals are computed
// here, not stored, so quantity updates can never desynchronize them.
func (s *CartService) snapshot(ctx context.Context, cartID, sessionID, currency string) (*domain.CartSnapshot, error) {
	const op = "cart.snapshot"

	rows, err := s.db.Query(ctx, `
		SELECT id, product_id, product_name, product_image_url, unit_price, quantity, created_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at, id`, cartID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list cart items")
	}
	defer rows.Close()

	snapshot := &domain.CartSnapshot{SessionID: sessionID, Currency: currency}
	for rows.Next() {
		var item domain.CartItem
		err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName,
			&item.ProductImageURL, &item.UnitPrice, &item.Quantity, &item.CreatedAt)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to scan cart item")
		}
		item.LineTotal = item.UnitPrice * int64(item.Quantity)
		snapshot.TotalAmount += item.LineTotal
		snapshot.Items = append(snapshot.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read cart items")
	}

	return snapshot, nil
}
