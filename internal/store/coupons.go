package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetCouponByCode looks a coupon up case-insensitively; codes are stored upper-case.
func (q *Queries) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := sqlx.GetContext(ctx, q.q, &c, "SELECT * FROM coupons WHERE code = $1", strings.ToUpper(code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("coupon %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

func (q *Queries) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	query := `
		INSERT INTO coupons (code, description, discount_type, discount_value, minimum_amount,
			usage_limit, used_count, is_active, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`
	err := sqlx.GetContext(ctx, q.q, c, query,
		c.Code, c.Description, c.DiscountType, c.DiscountValue, c.MinimumAmount,
		c.UsageLimit, c.UsedCount, c.IsActive, c.ValidFrom, c.ValidUntil)
	if isUniqueViolation(err) {
		return fmt.Errorf("coupon %q: %w", c.Code, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

// IncrementCouponUsage consumes one use, reporting false when the limit is already reached.
func (q *Queries) IncrementCouponUsage(ctx context.Context, couponID int64) (bool, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`, couponID)
	if err != nil {
		return false, fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseCouponUsage gives back one use of a coupon, never going below zero.
func (q *Queries) ReleaseCouponUsage(ctx context.Context, code string) error {
	_, err := q.q.ExecContext(ctx,
		"UPDATE coupons SET used_count = GREATEST(used_count - 1, 0) WHERE code = $1",
		strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return fmt.Errorf("failed to release coupon usage: %w", err)
	}
	return nil
}
