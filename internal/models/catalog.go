package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product statuses
const (
	ProductStatusDraft        = "draft"
	ProductStatusActive       = "active"
	ProductStatusInactive     = "inactive"
	ProductStatusDiscontinued = "discontinued"
)

// Category groups products; categories may nest through ParentID.
type Category struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Slug            string    `db:"slug" json:"slug"`
	Description     string    `db:"description" json:"description"`
	ParentID        *int64    `db:"parent_id" json:"parent_id"`
	Image           string    `db:"image" json:"image"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	SortOrder       int       `db:"sort_order" json:"sort_order"`
	MetaTitle       string    `db:"meta_title" json:"meta_title"`
	MetaDescription string    `db:"meta_description" json:"meta_description"`
	ProductCount    int       `db:"product_count" json:"product_count"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type Brand struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	Description string    `db:"description" json:"description"`
	Logo        string    `db:"logo" json:"logo"`
	Website     string    `db:"website" json:"website"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Product is a catalog entry. The rating and category/brand columns are
// filled by the store's product projection, not stored on the row.
type Product struct {
	ID                int64               `db:"id"`
	Name              string              `db:"name"`
	Slug              string              `db:"slug"`
	SKU               string              `db:"sku"`
	Description       string              `db:"description"`
	ShortDescription  string              `db:"short_description"`
	CategoryID        int64               `db:"category_id"`
	BrandID           *int64              `db:"brand_id"`
	Price             decimal.Decimal     `db:"price"`
	CompareAtPrice    decimal.NullDecimal `db:"compare_at_price"`
	CostPrice         decimal.NullDecimal `db:"cost_price"`
	Stock             int                 `db:"stock"`
	LowStockThreshold int                 `db:"low_stock_threshold"`
	TrackInventory    bool                `db:"track_inventory"`
	AllowBackorders   bool                `db:"allow_backorders"`
	Status            string              `db:"status"`
	IsFeatured        bool                `db:"is_featured"`
	Image             string              `db:"image"`
	Weight            decimal.NullDecimal `db:"weight"`
	Dimensions        string              `db:"dimensions"`
	TaxClass          string              `db:"tax_class"`
	MetaTitle         string              `db:"meta_title"`
	MetaDescription   string              `db:"meta_description"`
	CreatedAt         time.Time           `db:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at"`

	CategoryName  string  `db:"category_name"`
	CategorySlug  string  `db:"category_slug"`
	BrandName     string  `db:"brand_name"`
	BrandSlug     string  `db:"brand_slug"`
	AverageRating float64 `db:"average_rating"`
	ReviewCount   int     `db:"review_count"`
}

// Available reports whether the product can currently be sold.
func (p *Product) Available() bool {
	if p.Status != ProductStatusActive {
		return false
	}
	return p.Stock > 0 || p.AllowBackorders || !p.TrackInventory
}

// IsOnSale is true only when the compare-at price is strictly above the price.
func (p *Product) IsOnSale() bool {
	return p.CompareAtPrice.Valid && p.CompareAtPrice.Decimal.GreaterThan(p.Price)
}

// DiscountPercentage is the whole-number markdown against the compare-at price.
func (p *Product) DiscountPercentage() int {
	if !p.IsOnSale() {
		return 0
	}
	cmp := p.CompareAtPrice.Decimal
	pct := cmp.Sub(p.Price).Div(cmp).Mul(decimal.NewFromInt(100)).Round(0)
	return int(pct.IntPart())
}

func (p *Product) IsLowStock() bool {
	return p.TrackInventory && p.Stock <= p.LowStockThreshold
}

// CanFulfill reports whether qty units can be sold from the product's own stock.
func (p *Product) CanFulfill(qty int) bool {
	return !p.TrackInventory || p.AllowBackorders || qty <= p.Stock
}

type ProductImage struct {
	ID        int64  `db:"id" json:"id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Image     string `db:"image" json:"image"`
	AltText   string `db:"alt_text" json:"alt_text"`
	SortOrder int    `db:"sort_order" json:"sort_order"`
	IsPrimary bool   `db:"is_primary" json:"is_primary"`
}

// ProductAttribute is a dimension such as "Color" or "Size".
type ProductAttribute struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Slug string `db:"slug" json:"slug"`
}

type ProductAttributeValue struct {
	ID            int64  `db:"id" json:"id"`
	AttributeID   int64  `db:"attribute_id" json:"attribute_id"`
	AttributeName string `db:"attribute_name" json:"attribute"`
	Value         string `db:"value" json:"value"`
	Slug          string `db:"slug" json:"slug"`
}

// ProductVariant overrides price and stock for one combination of attribute values.
type ProductVariant struct {
	ID        int64               `db:"id"`
	ProductID int64               `db:"product_id"`
	SKU       string              `db:"sku"`
	Name      string              `db:"name"`
	Price     decimal.NullDecimal `db:"price"`
	Stock     int                 `db:"stock"`
	IsActive  bool                `db:"is_active"`
	Image     string              `db:"image"`
	CreatedAt time.Time           `db:"created_at"`

	Values []ProductAttributeValue `db:"-"`
}

// EffectivePrice resolves the variant override first, else the parent price.
func (v *ProductVariant) EffectivePrice(parent *Product) decimal.Decimal {
	if v.Price.Valid {
		return v.Price.Decimal
	}
	return parent.Price
}

// CanFulfill applies the parent's inventory policy to the variant's own stock.
func (v *ProductVariant) CanFulfill(parent *Product, qty int) bool {
	return !parent.TrackInventory || parent.AllowBackorders || qty <= v.Stock
}

type ProductReview struct {
	ID                 int64     `db:"id" json:"id"`
	ProductID          int64     `db:"product_id" json:"product_id"`
	UserID             int64     `db:"user_id" json:"user_id"`
	Username           string    `db:"username" json:"user"`
	Rating             int       `db:"rating" json:"rating"`
	Title              string    `db:"title" json:"title"`
	Comment            string    `db:"comment" json:"comment"`
	IsVerifiedPurchase bool      `db:"is_verified_purchase" json:"is_verified_purchase"`
	IsApproved         bool      `db:"is_approved" json:"is_approved"`
	HelpfulVotes       int       `db:"helpful_votes" json:"helpful_votes"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// ProductDetail bundles a product with its related rows for the detail view.
type ProductDetail struct {
	Product  Product
	Images   []ProductImage
	Variants []ProductVariant
	Reviews  []ProductReview
}
