package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder creates a new order
func (q *Queries) CreateOrder(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (order_number, user_id, status, payment_status,
			subtotal, tax_amount, shipping_amount, discount_amount, total_amount,
			coupon_code, idempotency_key,
			billing_first_name, billing_last_name, billing_email, billing_phone,
			billing_address_line1, billing_address_line2, billing_city, billing_state,
			billing_zip_code, billing_country,
			shipping_first_name, shipping_last_name, shipping_address_line1, shipping_address_line2,
			shipping_city, shipping_state, shipping_zip_code, shipping_country, notes)
		VALUES (:order_number, :user_id, :status, :payment_status,
			:subtotal, :tax_amount, :shipping_amount, :discount_amount, :total_amount,
			:coupon_code, :idempotency_key,
			:billing_first_name, :billing_last_name, :billing_email, :billing_phone,
			:billing_address_line1, :billing_address_line2, :billing_city, :billing_state,
			:billing_zip_code, :billing_country,
			:shipping_first_name, :shipping_last_name, :shipping_address_line1, :shipping_address_line2,
			:shipping_city, :shipping_state, :shipping_zip_code, :shipping_country, :notes)
		RETURNING id, created_at, updated_at`

	named, args, err := q.q.BindNamed(query, o)
	if err != nil {
		return fmt.Errorf("failed to bind order: %w", err)
	}
	err = sqlx.GetContext(ctx, q.q, o, named, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("order %q: %w", o.OrderNumber, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// CreateOrderItem creates a new order item
func (q *Queries) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, variant_id, product_name, product_sku,
			quantity, unit_price, total_price, stock_taken, variant_stock_taken)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	if err := sqlx.GetContext(ctx, q.q, &item.ID, query,
		item.OrderID, item.ProductID, item.VariantID, item.ProductName, item.ProductSKU,
		item.Quantity, item.UnitPrice, item.TotalPrice, item.StockTaken, item.VariantStockTaken); err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

// GetOrderByNumber retrieves an order by its public number
func (q *Queries) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.q, &order, "SELECT * FROM orders WHERE order_number = $1", orderNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %q: %w", orderNumber, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey returns nil without error when the key is unused.
func (q *Queries) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.q, &order,
		"SELECT * FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order by idempotency key: %w", err)
	}
	return &order, nil
}

// ListOrdersByUser retrieves orders for a user, newest first
func (q *Queries) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := sqlx.SelectContext(ctx, q.q, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (q *Queries) ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := sqlx.SelectContext(ctx, q.q, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	return items, nil
}

// UpdateOrderStatus updates order and payment status
func (q *Queries) UpdateOrderStatus(ctx context.Context, orderID int64, status, paymentStatus string) error {
	_, err := q.q.ExecContext(ctx,
		"UPDATE orders SET status = $1, payment_status = $2, updated_at = NOW() WHERE id = $3",
		status, paymentStatus, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// DecrementStock takes qty units from a product and returns how many were
// actually taken off the shelf: qty, or less when a backorder drains stock to
// zero, or 0 for untracked products. ok is false, changing nothing, when stock
// is short and backorders are disallowed.
func (q *Queries) DecrementStock(ctx context.Context, productID int64, qty int) (int, bool, error) {
	var taken int
	err := sqlx.GetContext(ctx, q.q, &taken, `
		UPDATE products p
		SET stock = CASE WHEN p.track_inventory THEN GREATEST(p.stock - $2, 0) ELSE p.stock END,
			updated_at = NOW()
		FROM (SELECT id, stock FROM products WHERE id = $1 FOR UPDATE) old
		WHERE p.id = old.id AND (NOT p.track_inventory OR p.allow_backorders OR p.stock >= $2)
		RETURNING CASE WHEN p.track_inventory THEN LEAST($2::int, old.stock) ELSE 0 END`,
		productID, qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return taken, true, nil
}

// DecrementVariantStock applies the parent product's inventory policy to the variant's stock.
func (q *Queries) DecrementVariantStock(ctx context.Context, variantID int64, qty int) (int, bool, error) {
	var taken int
	err := sqlx.GetContext(ctx, q.q, &taken, `
		UPDATE product_variants v
		SET stock = CASE WHEN p.track_inventory THEN GREATEST(v.stock - $2, 0) ELSE v.stock END
		FROM products p, (SELECT id, stock FROM product_variants WHERE id = $1 FOR UPDATE) old
		WHERE v.id = old.id AND p.id = v.product_id
			AND (NOT p.track_inventory OR p.allow_backorders OR v.stock >= $2)
		RETURNING CASE WHEN p.track_inventory THEN LEAST($2::int, old.stock) ELSE 0 END`,
		variantID, qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to decrement variant stock: %w", err)
	}
	return taken, true, nil
}

// RestoreStock returns units taken at checkout to a tracked product.
func (q *Queries) RestoreStock(ctx context.Context, productID int64, qty int) error {
	_, err := q.q.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2 AND track_inventory",
		qty, productID)
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	return nil
}

func (q *Queries) RestoreVariantStock(ctx context.Context, variantID int64, qty int) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE product_variants v SET stock = v.stock + $1
		FROM products p
		WHERE v.id = $2 AND p.id = v.product_id AND p.track_inventory`,
		qty, variantID)
	if err != nil {
		return fmt.Errorf("failed to restore variant stock: %w", err)
	}
	return nil
}

// IsEventProcessed checks if an event has been processed
func (q *Queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.q, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (q *Queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
