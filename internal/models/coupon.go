package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Discount types
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

type Coupon struct {
	ID            int64               `db:"id"`
	Code          string              `db:"code"`
	Description   string              `db:"description"`
	DiscountType  string              `db:"discount_type"`
	DiscountValue decimal.Decimal     `db:"discount_value"`
	MinimumAmount decimal.NullDecimal `db:"minimum_amount"`
	UsageLimit    *int                `db:"usage_limit"`
	UsedCount     int                 `db:"used_count"`
	IsActive      bool                `db:"is_active"`
	ValidFrom     time.Time           `db:"valid_from"`
	ValidUntil    time.Time           `db:"valid_until"`
	CreatedAt     time.Time           `db:"created_at"`
}

// IsValid checks the active flag, the validity window and the usage limit.
func (c *Coupon) IsValid(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return false
	}
	return c.UsageLimit == nil || c.UsedCount < *c.UsageLimit
}

func (c *Coupon) MeetsMinimum(total decimal.Decimal) bool {
	return !c.MinimumAmount.Valid || total.GreaterThanOrEqual(c.MinimumAmount.Decimal)
}

// DiscountFor computes the discount on total, clamped to [0, total].
func (c *Coupon) DiscountFor(total decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = total.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
	default:
		discount = c.DiscountValue
	}
	if discount.GreaterThan(total) {
		discount = total
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return RoundMoney(discount)
}
