package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Cart belongs to either a user or an anonymous session key.
type Cart struct {
	ID         int64     `db:"id"`
	UserID     *int64    `db:"user_id"`
	SessionKey *string   `db:"session_key"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type CartItem struct {
	ID        int64     `db:"id"`
	CartID    int64     `db:"cart_id"`
	ProductID int64     `db:"product_id"`
	VariantID *int64    `db:"variant_id"`
	Quantity  int       `db:"quantity"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CartLine is a cart item joined with the live catalog state it prices from.
type CartLine struct {
	CartItem

	ProductName   string              `db:"product_name"`
	ProductSlug   string              `db:"product_slug"`
	ProductSKU    string              `db:"product_sku"`
	ProductImage  string              `db:"product_image"`
	ProductPrice  decimal.Decimal     `db:"product_price"`
	ProductStatus string              `db:"product_status"`
	VariantSKU    *string             `db:"variant_sku"`
	VariantName   *string             `db:"variant_name"`
	VariantPrice  decimal.NullDecimal `db:"variant_price"`
}

// UnitPrice is the variant override when present, else the product price.
func (l *CartLine) UnitPrice() decimal.Decimal {
	if l.VariantID != nil && l.VariantPrice.Valid {
		return l.VariantPrice.Decimal
	}
	return l.ProductPrice
}

func (l *CartLine) TotalPrice() decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartTotals sums quantities and line totals.
func CartTotals(lines []CartLine) (int, decimal.Decimal) {
	items := 0
	amount := decimal.Zero
	for i := range lines {
		items += lines[i].Quantity
		amount = amount.Add(lines[i].TotalPrice())
	}
	return items, RoundMoney(amount)
}

// CartOwner identifies whose cart a request operates on. Exactly one field is set.
type CartOwner struct {
	UserID     *int64
	SessionKey string
}

func (o CartOwner) IsZero() bool {
	return o.UserID == nil && o.SessionKey == ""
}

// Key is a stable string form used for locks.
func (o CartOwner) Key() string {
	if o.UserID != nil {
		return "user:" + strconv.FormatInt(*o.UserID, 10)
	}
	return "session:" + o.SessionKey
}
