package api

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"storefront/internal/models"
	"storefront/internal/service"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullMoney(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := money(d.Decimal)
	return &s
}

type productResponse struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Slug               string  `json:"slug"`
	SKU                string  `json:"sku"`
	ShortDescription   string  `json:"short_description"`
	Price              string  `json:"price"`
	PriceDisplay       string  `json:"price_display"`
	CompareAtPrice     *string `json:"compare_at_price"`
	IsOnSale           bool    `json:"is_on_sale"`
	DiscountPercentage int     `json:"discount_percentage"`
	Image              string  `json:"image"`
	Category           string  `json:"category"`
	CategorySlug       string  `json:"category_slug"`
	Brand              string  `json:"brand,omitempty"`
	BrandSlug          string  `json:"brand_slug,omitempty"`
	Stock              int     `json:"stock"`
	IsAvailable        bool    `json:"is_available"`
	IsLowStock         bool    `json:"is_low_stock"`
	IsFeatured         bool    `json:"is_featured"`
	AverageRating      float64 `json:"average_rating"`
	ReviewCount        int     `json:"review_count"`
}

func newProductResponse(p *models.Product) productResponse {
	return productResponse{
		ID:                 p.ID,
		Name:               p.Name,
		Slug:               p.Slug,
		SKU:                p.SKU,
		ShortDescription:   p.ShortDescription,
		Price:              money(p.Price),
		PriceDisplay:       models.FormatMoney(p.Price),
		CompareAtPrice:     nullMoney(p.CompareAtPrice),
		IsOnSale:           p.IsOnSale(),
		DiscountPercentage: p.DiscountPercentage(),
		Image:              p.Image,
		Category:           p.CategoryName,
		CategorySlug:       p.CategorySlug,
		Brand:              p.BrandName,
		BrandSlug:          p.BrandSlug,
		Stock:              p.Stock,
		IsAvailable:        p.Available(),
		IsLowStock:         p.IsLowStock(),
		IsFeatured:         p.IsFeatured,
		AverageRating:      p.AverageRating,
		ReviewCount:        p.ReviewCount,
	}
}

func newProductList(products []models.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for i := range products {
		out = append(out, newProductResponse(&products[i]))
	}
	return out
}

type variantResponse struct {
	ID         int64                          `json:"id"`
	SKU        string                         `json:"sku"`
	Name       string                         `json:"name"`
	Price      string                         `json:"price"`
	Stock      int                            `json:"stock"`
	IsActive   bool                           `json:"is_active"`
	Image      string                         `json:"image"`
	Attributes []models.ProductAttributeValue `json:"attributes"`
}

func newVariantResponse(v *models.ProductVariant, parent *models.Product) variantResponse {
	values := v.Values
	if values == nil {
		values = []models.ProductAttributeValue{}
	}
	return variantResponse{
		ID:         v.ID,
		SKU:        v.SKU,
		Name:       v.Name,
		Price:      money(v.EffectivePrice(parent)),
		Stock:      v.Stock,
		IsActive:   v.IsActive,
		Image:      v.Image,
		Attributes: values,
	}
}

type productDetailResponse struct {
	productResponse
	Description     string                 `json:"description"`
	MetaTitle       string                 `json:"meta_title"`
	MetaDescription string                 `json:"meta_description"`
	Images          []models.ProductImage  `json:"images"`
	Variants        []variantResponse      `json:"variants"`
	Reviews         []models.ProductReview `json:"reviews"`
}

func newProductDetail(d *models.ProductDetail) productDetailResponse {
	variants := make([]variantResponse, 0, len(d.Variants))
	for i := range d.Variants {
		variants = append(variants, newVariantResponse(&d.Variants[i], &d.Product))
	}
	images := d.Images
	if images == nil {
		images = []models.ProductImage{}
	}
	reviews := d.Reviews
	if reviews == nil {
		reviews = []models.ProductReview{}
	}
	return productDetailResponse{
		productResponse: newProductResponse(&d.Product),
		Description:     d.Product.Description,
		MetaTitle:       d.Product.MetaTitle,
		MetaDescription: d.Product.MetaDescription,
		Images:          images,
		Variants:        variants,
		Reviews:         reviews,
	}
}

// paginated builds the list envelope with absolute next/previous links.
func paginated(c *gin.Context, page *service.ProductPage) gin.H {
	link := func(n int) *string {
		if n < 1 || n > page.TotalPages {
			return nil
		}
		u := url.URL{Scheme: scheme(c), Host: c.Request.Host, Path: c.Request.URL.Path}
		q := c.Request.URL.Query()
		q.Set("page", strconv.Itoa(n))
		u.RawQuery = q.Encode()
		s := u.String()
		return &s
	}
	return gin.H{
		"count":        page.Count,
		"next":         link(page.Page + 1),
		"previous":     link(page.Page - 1),
		"current_page": page.Page,
		"total_pages":  page.TotalPages,
		"results":      newProductList(page.Products),
	}
}

func scheme(c *gin.Context) string {
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		return "https"
	}
	return "http"
}

type cartItemResponse struct {
	ID                int64   `json:"id"`
	ProductID         int64   `json:"product_id"`
	ProductName       string  `json:"product_name"`
	ProductSlug       string  `json:"product_slug"`
	ProductImage      string  `json:"product_image"`
	VariantID         *int64  `json:"variant_id"`
	VariantName       *string `json:"variant_name"`
	VariantSKU        *string `json:"variant_sku"`
	Quantity          int     `json:"quantity"`
	UnitPrice         string  `json:"unit_price"`
	UnitPriceDisplay  string  `json:"unit_price_display"`
	TotalPrice        string  `json:"total_price"`
	TotalPriceDisplay string  `json:"total_price_display"`
}

type cartResponse struct {
	ID                 int64              `json:"id"`
	Items              []cartItemResponse `json:"items"`
	TotalItems         int                `json:"total_items"`
	TotalAmount        string             `json:"total_amount"`
	TotalAmountDisplay string             `json:"total_amount_display"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func newCartResponse(v *service.CartView) cartResponse {
	items := make([]cartItemResponse, 0, len(v.Lines))
	for i := range v.Lines {
		l := &v.Lines[i]
		items = append(items, cartItemResponse{
			ID:                l.ID,
			ProductID:         l.ProductID,
			ProductName:       l.ProductName,
			ProductSlug:       l.ProductSlug,
			ProductImage:      l.ProductImage,
			VariantID:         l.VariantID,
			VariantName:       l.VariantName,
			VariantSKU:        l.VariantSKU,
			Quantity:          l.Quantity,
			UnitPrice:         money(l.UnitPrice()),
			UnitPriceDisplay:  models.FormatMoney(l.UnitPrice()),
			TotalPrice:        money(l.TotalPrice()),
			TotalPriceDisplay: models.FormatMoney(l.TotalPrice()),
		})
	}
	return cartResponse{
		ID:                 v.Cart.ID,
		Items:              items,
		TotalItems:         v.TotalItems,
		TotalAmount:        money(v.TotalAmount),
		TotalAmountDisplay: models.FormatMoney(v.TotalAmount),
		UpdatedAt:          v.Cart.UpdatedAt,
	}
}

type orderItemResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	VariantID   *int64 `json:"variant_id"`
	ProductName string `json:"product_name"`
	ProductSKU  string `json:"product_sku"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	TotalPrice  string `json:"total_price"`
}

type orderResponse struct {
	OrderNumber          string              `json:"order_number"`
	Status               string              `json:"status"`
	PaymentStatus        string              `json:"payment_status"`
	Subtotal             string              `json:"subtotal"`
	TaxAmount            string              `json:"tax_amount"`
	ShippingAmount       string              `json:"shipping_amount"`
	DiscountAmount       string              `json:"discount_amount"`
	TotalAmount          string              `json:"total_amount"`
	TotalAmountDisplay   string              `json:"total_amount_display"`
	CouponCode           *string             `json:"coupon_code"`
	Billing              models.Address      `json:"billing"`
	Shipping             models.Address      `json:"shipping"`
	Notes                string              `json:"notes"`
	Items                []orderItemResponse `json:"items,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

func newOrderResponse(o *models.Order) orderResponse {
	var items []orderItemResponse
	if o.Items != nil {
		items = make([]orderItemResponse, 0, len(o.Items))
		for _, it := range o.Items {
			items = append(items, orderItemResponse{
				ID:          it.ID,
				ProductID:   it.ProductID,
				VariantID:   it.VariantID,
				ProductName: it.ProductName,
				ProductSKU:  it.ProductSKU,
				Quantity:    it.Quantity,
				UnitPrice:   money(it.UnitPrice),
				TotalPrice:  money(it.TotalPrice),
			})
		}
	}
	return orderResponse{
		OrderNumber:        o.OrderNumber,
		Status:             o.Status,
		PaymentStatus:      o.PaymentStatus,
		Subtotal:           money(o.Subtotal),
		TaxAmount:          money(o.TaxAmount),
		ShippingAmount:     money(o.ShippingAmount),
		DiscountAmount:     money(o.DiscountAmount),
		TotalAmount:        money(o.TotalAmount),
		TotalAmountDisplay: models.FormatMoney(o.TotalAmount),
		CouponCode:         o.CouponCode,
		Billing: models.Address{
			FirstName: o.BillingFirstName, LastName: o.BillingLastName, Email: o.BillingEmail,
			Phone: o.BillingPhone, AddressLine1: o.BillingAddressLine1, AddressLine2: o.BillingAddressLine2,
			City: o.BillingCity, State: o.BillingState, ZipCode: o.BillingZipCode, Country: o.BillingCountry,
		},
		Shipping: models.Address{
			FirstName: o.ShippingFirstName, LastName: o.ShippingLastName,
			AddressLine1: o.ShippingAddressLine1, AddressLine2: o.ShippingAddressLine2,
			City: o.ShippingCity, State: o.ShippingState, ZipCode: o.ShippingZipCode, Country: o.ShippingCountry,
		},
		Notes:     o.Notes,
		Items:     items,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type userResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsStaff   bool   `json:"is_staff"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, IsStaff: u.IsStaff}
}

type profileResponse struct {
	Phone                string  `json:"phone"`
	BirthDate            *string `json:"birth_date"`
	NewsletterSubscribed bool    `json:"newsletter_subscribed"`
	DefaultAddressLine1  string  `json:"default_address_line1"`
	DefaultAddressLine2  string  `json:"default_address_line2"`
	DefaultCity          string  `json:"default_city"`
	DefaultState         string  `json:"default_state"`
	DefaultZipCode       string  `json:"default_zip_code"`
	DefaultCountry       string  `json:"default_country"`
}

func newProfileResponse(p *models.UserProfile) profileResponse {
	r := profileResponse{
		Phone:                p.Phone,
		NewsletterSubscribed: p.NewsletterSubscribed,
		DefaultAddressLine1:  p.DefaultAddressLine1,
		DefaultAddressLine2:  p.DefaultAddressLine2,
		DefaultCity:          p.DefaultCity,
		DefaultState:         p.DefaultState,
		DefaultZipCode:       p.DefaultZipCode,
		DefaultCountry:       p.DefaultCountry,
	}
	if p.BirthDate != nil {
		s := p.BirthDate.Format("2006-01-02")
		r.BirthDate = &s
	}
	return r
}

func couponQuoteResponse(q *service.CouponQuote) gin.H {
	return gin.H{
		"valid":            true,
		"code":             q.Coupon.Code,
		"discount_type":    q.Coupon.DiscountType,
		"discount_amount":  money(q.Discount),
		"discount_display": models.FormatMoney(q.Discount),
		"new_total":        money(q.NewTotal),
		"new_total_display": models.FormatMoney(q.NewTotal),
		"message":          fmt.Sprintf("Coupon %s applied", q.Coupon.Code),
	}
}
