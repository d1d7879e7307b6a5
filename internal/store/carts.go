package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetCart returns the owner's cart or ErrNotFound.
func (q *Queries) GetCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	var cart models.Cart
	var err error
	if owner.UserID != nil {
		err = sqlx.GetContext(ctx, q.q, &cart, "SELECT * FROM carts WHERE user_id = $1", *owner.UserID)
	} else {
		err = sqlx.GetContext(ctx, q.q, &cart, "SELECT * FROM carts WHERE session_key = $1", owner.SessionKey)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart for %s: %w", owner.Key(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

// GetOrCreateCart lazily creates the owner's cart. Concurrent callers converge on one row.
func (q *Queries) GetOrCreateCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	if owner.IsZero() {
		return nil, errors.New("cart owner is empty")
	}

	var err error
	if owner.UserID != nil {
		_, err = q.q.ExecContext(ctx,
			"INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) WHERE user_id IS NOT NULL DO NOTHING",
			*owner.UserID)
	} else {
		_, err = q.q.ExecContext(ctx,
			"INSERT INTO carts (session_key) VALUES ($1) ON CONFLICT (session_key) WHERE session_key IS NOT NULL DO NOTHING",
			owner.SessionKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return q.GetCart(ctx, owner)
}

// GetCartItem returns the item only if it belongs to cartID.
func (q *Queries) GetCartItem(ctx context.Context, cartID, itemID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := sqlx.GetContext(ctx, q.q, &item,
		"SELECT * FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart item %d: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

func (q *Queries) FindCartItem(ctx context.Context, cartID, productID int64, variantID *int64) (*models.CartItem, error) {
	var item models.CartItem
	err := sqlx.GetContext(ctx, q.q, &item, `
		SELECT * FROM cart_items
		WHERE cart_id = $1 AND product_id = $2 AND variant_id IS NOT DISTINCT FROM $3`,
		cartID, productID, variantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart line for product %d: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find cart item: %w", err)
	}
	return &item, nil
}

// UpsertCartItem inserts the (product, variant) line or adds qty to the existing one.
func (q *Queries) UpsertCartItem(ctx context.Context, cartID, productID int64, variantID *int64, qty int) (*models.CartItem, error) {
	var item models.CartItem
	err := sqlx.GetContext(ctx, q.q, &item, `
		INSERT INTO cart_items (cart_id, product_id, variant_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT uniq_cart_line
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING *`,
		cartID, productID, variantID, qty)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	if _, err := q.q.ExecContext(ctx, "UPDATE carts SET updated_at = NOW() WHERE id = $1", cartID); err != nil {
		return nil, fmt.Errorf("failed to touch cart: %w", err)
	}
	return &item, nil
}

func (q *Queries) UpdateCartItemQuantity(ctx context.Context, itemID int64, qty int) error {
	_, err := q.q.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2", qty, itemID)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return nil
}

func (q *Queries) DeleteCartItem(ctx context.Context, itemID int64) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", itemID); err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return nil
}

// ListCartLines joins each item with the current product and variant prices.
func (q *Queries) ListCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	lines := []models.CartLine{}
	err := sqlx.SelectContext(ctx, q.q, &lines, `
		SELECT ci.*,
			p.name AS product_name, p.slug AS product_slug, p.sku AS product_sku,
			p.image AS product_image, p.price AS product_price, p.status AS product_status,
			v.sku AS variant_sku, v.name AS variant_name, v.price AS variant_price
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		LEFT JOIN product_variants v ON v.id = ci.variant_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at, ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart lines: %w", err)
	}
	return lines, nil
}

// ClearCart removes every line but keeps the cart row.
func (q *Queries) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
