package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a unique constraint.
	ErrConflict = errors.New("already exists")
)

// ProductFilter narrows and orders a product listing. Only active products are listed.
type ProductFilter struct {
	CategorySlug string
	BrandSlug    string
	MinPrice     decimal.NullDecimal
	MaxPrice     decimal.NullDecimal
	Search       string
	InStock      bool
	Featured     bool
	MinRating    *float64
	Ordering     string
	Limit        int
	Offset       int
}

// Repository is the data access surface used by the services. It is satisfied
// both by the pooled store and by a store bound to a transaction.
type Repository interface {
	// catalog
	ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*models.Product, error)
	ListProductImages(ctx context.Context, productID int64) ([]models.ProductImage, error)
	ListProductVariants(ctx context.Context, productID int64) ([]models.ProductVariant, error)
	GetVariant(ctx context.Context, id int64) (*models.ProductVariant, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*models.Category, error)
	ListBrands(ctx context.Context) ([]models.Brand, error)
	Exists(ctx context.Context, table, column, value string) (bool, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	CreateBrand(ctx context.Context, b *models.Brand) error
	CreateProduct(ctx context.Context, p *models.Product) error
	CreateProductImage(ctx context.Context, img *models.ProductImage) error
	CreateVariant(ctx context.Context, v *models.ProductVariant, valueIDs []int64) error
	EnsureAttribute(ctx context.Context, name, slug string) (*models.ProductAttribute, error)
	EnsureAttributeValue(ctx context.Context, attributeID int64, value, slug string) (*models.ProductAttributeValue, error)

	// carts
	GetCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error)
	GetOrCreateCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error)
	GetCartItem(ctx context.Context, cartID, itemID int64) (*models.CartItem, error)
	FindCartItem(ctx context.Context, cartID, productID int64, variantID *int64) (*models.CartItem, error)
	UpsertCartItem(ctx context.Context, cartID, productID int64, variantID *int64, qty int) (*models.CartItem, error)
	UpdateCartItemQuantity(ctx context.Context, itemID int64, qty int) error
	DeleteCartItem(ctx context.Context, itemID int64) error
	ListCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error)
	ClearCart(ctx context.Context, cartID int64) error

	// orders
	CreateOrder(ctx context.Context, o *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status, paymentStatus string) error
	DecrementStock(ctx context.Context, productID int64, qty int) (int, bool, error)
	DecrementVariantStock(ctx context.Context, variantID int64, qty int) (int, bool, error)
	RestoreStock(ctx context.Context, productID int64, qty int) error
	RestoreVariantStock(ctx context.Context, variantID int64, qty int) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error

	// coupons
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	CreateCoupon(ctx context.Context, c *models.Coupon) error
	IncrementCouponUsage(ctx context.Context, couponID int64) (bool, error)
	ReleaseCouponUsage(ctx context.Context, code string) error

	// accounts
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateToken(ctx context.Context, t *models.AuthToken) error
	GetUserByToken(ctx context.Context, key string) (*models.User, error)
	DeleteToken(ctx context.Context, key string) error
	GetProfile(ctx context.Context, userID int64) (*models.UserProfile, error)
	UpsertProfile(ctx context.Context, p *models.UserProfile) error
	AddToWishlist(ctx context.Context, userID, productID int64) error
	RemoveFromWishlist(ctx context.Context, userID, productID int64) (bool, error)
	ListWishlist(ctx context.Context, userID int64) ([]models.Product, error)
	ListReviews(ctx context.Context, productID int64) ([]models.ProductReview, error)
	CreateReview(ctx context.Context, r *models.ProductReview) error
	HasPurchased(ctx context.Context, userID, productID int64) (bool, error)
}

// DB is a Repository that can also run a function inside one transaction.
type DB interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// Queries implements Repository over a pool or a transaction.
type Queries struct {
	q sqlx.ExtContext
}

type Store struct {
	*Queries
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{Queries: &Queries{q: db}, db: db}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity for the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction, rolling back on any error.
func (s *Store) WithTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// existsColumns whitelists the identifier columns Exists may query.
var existsColumns = map[string]map[string]bool{
	"products":                 {"slug": true, "sku": true},
	"product_variants":         {"sku": true},
	"categories":               {"slug": true},
	"brands":                   {"slug": true},
	"product_attributes":       {"slug": true},
	"product_attribute_values": {"slug": true},
	"orders":                   {"order_number": true},
}

// Exists reports whether a row with column = value exists in table.
func (q *Queries) Exists(ctx context.Context, table, column, value string) (bool, error) {
	if !existsColumns[table][column] {
		return false, fmt.Errorf("exists check not allowed on %s.%s", table, column)
	}
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)", table, column)
	if err := sqlx.GetContext(ctx, q.q, &exists, query, value); err != nil {
		return false, fmt.Errorf("failed to check %s.%s: %w", table, column, err)
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
