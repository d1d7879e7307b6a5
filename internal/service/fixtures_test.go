package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storefront/config"
	"storefront/internal/models"
	"storefront/internal/store/storetest"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testBusinessConfig() config.BusinessConfig {
	return config.BusinessConfig{
		TaxRate:               decimal.Zero,
		ShippingFlat:          decimal.Zero,
		FreeShippingThreshold: decimal.Zero,
		DefaultPageSize:       20,
		MaxPageSize:           100,
		CatalogCacheTTL:       time.Minute,
		CheckoutLockTTL:       30 * time.Second,
		IdempotencyTTL:        time.Hour,
	}
}

type fixture struct {
	db       *storetest.Memory
	category *models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.New()
	c := &models.Category{Name: "Shirts", Slug: "shirts", IsActive: true}
	require.NoError(t, db.CreateCategory(context.Background(), c))
	return &fixture{db: db, category: c}
}

// product inserts an active, inventory-tracked product.
func (f *fixture) product(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:              name,
		Slug:              Slugify(name),
		SKU:               NewSKU(),
		CategoryID:        f.category.ID,
		Price:             dec(price),
		Stock:             stock,
		LowStockThreshold: 2,
		TrackInventory:    true,
		Status:            models.ProductStatusActive,
	}
	require.NoError(t, f.db.CreateProduct(context.Background(), p))
	return p
}

func (f *fixture) variant(t *testing.T, parent *models.Product, price string, stock int) *models.ProductVariant {
	t.Helper()
	v := &models.ProductVariant{
		ProductID: parent.ID,
		SKU:       NewVariantSKU(parent.SKU),
		Name:      "Large",
		Stock:     stock,
		IsActive:  true,
	}
	if price != "" {
		v.Price = decimal.NewNullDecimal(dec(price))
	}
	require.NoError(t, f.db.CreateVariant(context.Background(), v, nil))
	return v
}

func (f *fixture) user(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", IsActive: true}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) coupon(t *testing.T, code, kind, value string, limit *int) *models.Coupon {
	t.Helper()
	c := &models.Coupon{
		Code:          code,
		DiscountType:  kind,
		DiscountValue: dec(value),
		UsageLimit:    limit,
		IsActive:      true,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidUntil:    time.Now().Add(time.Hour),
	}
	require.NoError(t, f.db.CreateCoupon(context.Background(), c))
	return c
}

func userOwner(u *models.User) models.CartOwner {
	return models.CartOwner{UserID: &u.ID}
}

func validAddress() models.Address {
	return models.Address{
		FirstName:    "Ana",
		LastName:     "Souza",
		Email:        "ana@example.com",
		AddressLine1: "Rua A, 10",
		City:         "Curitiba",
		State:        "PR",
		ZipCode:      "80000-000",
		Country:      "BR",
	}
}

// memoryCache is a CatalogCache that stores JSON in a map.
type memoryCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) GetCatalog(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryCache) SetCatalog(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) InvalidateCatalog(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string][]byte{}
	c.invalidated++
	return nil
}

// memoryLocker is a Locker over a map; held keys refuse a second acquire.
type memoryLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: map[string]string{}}
}

func (l *memoryLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.held[key] = "token-" + key
	return l.held[key], true, nil
}

func (l *memoryLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type memoryIdempotency struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{values: map[string]string{}}
}

func (m *memoryIdempotency) SetIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryIdempotency) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	placed  []*models.OrderPlacedEvent
	changed []*models.OrderStatusChangedEvent
}

func (p *recordingPublisher) PublishOrderPlaced(ctx context.Context, e *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, e)
	return nil
}

func (p *recordingPublisher) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
