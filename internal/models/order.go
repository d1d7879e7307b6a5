package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Payment statuses
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

var orderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Address is the set of fields captured for billing or shipping.
type Address struct {
	FirstName    string `json:"first_name" validate:"required,max=100"`
	LastName     string `json:"last_name" validate:"required,max=100"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	Phone        string `json:"phone,omitempty" validate:"max=20"`
	AddressLine1 string `json:"address_line1" validate:"required,max=200"`
	AddressLine2 string `json:"address_line2,omitempty" validate:"max=200"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,max=100"`
	ZipCode      string `json:"zip_code" validate:"required,max=20"`
	Country      string `json:"country" validate:"required,max=100"`
}

// Order is the price-locked snapshot of a cart at checkout.
type Order struct {
	ID             int64           `db:"id"`
	OrderNumber    string          `db:"order_number"`
	UserID         int64           `db:"user_id"`
	Status         string          `db:"status"`
	PaymentStatus  string          `db:"payment_status"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	TaxAmount      decimal.Decimal `db:"tax_amount"`
	ShippingAmount decimal.Decimal `db:"shipping_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	TotalAmount    decimal.Decimal `db:"total_amount"`
	CouponCode     *string         `db:"coupon_code"`
	IdempotencyKey *string         `db:"idempotency_key"`

	BillingFirstName    string `db:"billing_first_name"`
	BillingLastName     string `db:"billing_last_name"`
	BillingEmail        string `db:"billing_email"`
	BillingPhone        string `db:"billing_phone"`
	BillingAddressLine1 string `db:"billing_address_line1"`
	BillingAddressLine2 string `db:"billing_address_line2"`
	BillingCity         string `db:"billing_city"`
	BillingState        string `db:"billing_state"`
	BillingZipCode      string `db:"billing_zip_code"`
	BillingCountry      string `db:"billing_country"`

	ShippingFirstName    string `db:"shipping_first_name"`
	ShippingLastName     string `db:"shipping_last_name"`
	ShippingAddressLine1 string `db:"shipping_address_line1"`
	ShippingAddressLine2 string `db:"shipping_address_line2"`
	ShippingCity         string `db:"shipping_city"`
	ShippingState        string `db:"shipping_state"`
	ShippingZipCode      string `db:"shipping_zip_code"`
	ShippingCountry      string `db:"shipping_country"`

	Notes     string    `db:"notes"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	Items []OrderItem `db:"-"`
}

// SetBilling copies a billing address onto the order.
func (o *Order) SetBilling(a Address) {
	o.BillingFirstName = a.FirstName
	o.BillingLastName = a.LastName
	o.BillingEmail = a.Email
	o.BillingPhone = a.Phone
	o.BillingAddressLine1 = a.AddressLine1
	o.BillingAddressLine2 = a.AddressLine2
	o.BillingCity = a.City
	o.BillingState = a.State
	o.BillingZipCode = a.ZipCode
	o.BillingCountry = a.Country
}

// SetShipping copies a shipping address onto the order.
func (o *Order) SetShipping(a Address) {
	o.ShippingFirstName = a.FirstName
	o.ShippingLastName = a.LastName
	o.ShippingAddressLine1 = a.AddressLine1
	o.ShippingAddressLine2 = a.AddressLine2
	o.ShippingCity = a.City
	o.ShippingState = a.State
	o.ShippingZipCode = a.ZipCode
	o.ShippingCountry = a.Country
}

// OrderItem keeps the unit and line price as they were at checkout.
type OrderItem struct {
	ID          int64           `db:"id"`
	OrderID     int64           `db:"order_id"`
	ProductID   int64           `db:"product_id"`
	VariantID   *int64          `db:"variant_id"`
	ProductName string          `db:"product_name"`
	ProductSKU  string          `db:"product_sku"`
	Quantity    int             `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	TotalPrice  decimal.Decimal `db:"total_price"`

	// Units actually removed from product and variant stock at checkout.
	// Less than Quantity when a backorder drained stock to zero.
	StockTaken        int `db:"stock_taken"`
	VariantStockTaken int `db:"variant_stock_taken"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
