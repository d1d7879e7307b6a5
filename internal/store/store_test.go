package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// newTestStore starts a throwaway PostgreSQL and applies the schema.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Integration test - requires docker")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("storefront_test"),
		postgres.WithUsername("app"),
		postgres.WithPassword("secret"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Integration test - postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func seedProduct(t *testing.T, s *Store, slug string, price string, stock int) *models.Product {
	t.Helper()
	ctx := context.Background()

	cat := &models.Category{Name: "Cat " + slug, Slug: "cat-" + slug, IsActive: true}
	require.NoError(t, s.CreateCategory(ctx, cat))

	p := &models.Product{
		Name:              "Product " + slug,
		Slug:              slug,
		SKU:               "SKU-" + slug,
		CategoryID:        cat.ID,
		Price:             decimal.RequireFromString(price),
		Stock:             stock,
		LowStockThreshold: 2,
		TrackInventory:    true,
		Status:            models.ProductStatusActive,
		TaxClass:          "standard",
	}
	require.NoError(t, s.CreateProduct(ctx, p))
	return p
}

func TestUpsertCartItemAccumulates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "mug", "35.00", 10)

	cart, err := s.GetOrCreateCart(ctx, models.CartOwner{SessionKey: "sess-1"})
	require.NoError(t, err)

	_, err = s.UpsertCartItem(ctx, cart.ID, p.ID, nil, 1)
	require.NoError(t, err)
	item, err := s.UpsertCartItem(ctx, cart.ID, p.ID, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)

	lines, err := s.ListCartLines(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].UnitPrice().Equal(decimal.RequireFromString("35")))

	again, err := s.GetOrCreateCart(ctx, models.CartOwner{SessionKey: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)
}

func TestConcurrentDecrementNeverOversells(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "lamp", "10.00", 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(r Repository) error {
				_, ok, err := r.DecrementStock(ctx, p.ID, 1)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("insufficient stock")
				}
				return nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestWithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "desk", "99.00", 3)

	err := s.WithTx(ctx, func(r Repository) error {
		_, ok, err := r.DecrementStock(ctx, p.ID, 2)
		require.NoError(t, err)
		require.True(t, ok)
		return errors.New("forced failure")
	})
	require.Error(t, err)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)
}

func TestDecrementStockReportsUnitsTaken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, "kettle", "30.00", 1)
	_, err := s.db.ExecContext(ctx, "UPDATE products SET allow_backorders = TRUE WHERE id = $1", p.ID)
	require.NoError(t, err)

	taken, ok, err := s.DecrementStock(ctx, p.ID, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, taken)

	taken, ok, err = s.DecrementStock(ctx, p.ID, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, taken)

	require.NoError(t, s.RestoreStock(ctx, p.ID, 1))
	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)
}

func TestIncrementCouponUsageRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	limit := 1
	c := &models.Coupon{
		Code:          "ONCE",
		DiscountType:  models.DiscountFixed,
		DiscountValue: decimal.NewFromInt(5),
		UsageLimit:    &limit,
		IsActive:      true,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidUntil:    time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateCoupon(ctx, c))

	ok, err := s.IncrementCouponUsage(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IncrementCouponUsage(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetCouponByCode(ctx, "once")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedCount)
}

func TestListProductsFiltersAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, s, "cheap-pen", "2.00", 10)
	seedProduct(t, s, "fancy-pen", "80.00", 0)

	products, count, err := s.ListProducts(ctx, ProductFilter{Search: "PEN", Ordering: "price", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, products, 2)
	assert.Equal(t, "cheap-pen", products[0].Slug)

	_, count, err = s.ListProducts(ctx, ProductFilter{InStock: true, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListProductsSearchIsLiteral(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, s, "pen", "2.00", 10)
	seedProduct(t, s, "pencil", "1.00", 10)

	_, count, err := s.ListProducts(ctx, ProductFilter{Search: "%", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, count, err = s.ListProducts(ctx, ProductFilter{Search: "pe_", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestLikeEscaper(t *testing.T) {
	assert.Equal(t, `50\% off\_now \\`, likeEscaper.Replace(`50% off_now \`))
}

func TestCreateUserConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &models.User{Username: "ana", PasswordHash: "x", IsActive: true}))
	err := s.CreateUser(ctx, &models.User{Username: "ana", PasswordHash: "y", IsActive: true})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestExistsRejectsUnknownColumn(t *testing.T) {
	q := &Queries{}
	_, err := q.Exists(context.Background(), "users", "password_hash", "x")
	assert.Error(t, err)
}
