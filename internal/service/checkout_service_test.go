package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/config"
	"storefront/internal/apperr"
	"storefront/internal/models"
)

type checkoutEnv struct {
	*fixture
	cart      *CartService
	checkout  *CheckoutService
	publisher *recordingPublisher
	locker    *memoryLocker
	idem      *memoryIdempotency
	cache     *memoryCache
	user      *models.User
}

func newCheckoutEnv(t *testing.T, cfg config.BusinessConfig) *checkoutEnv {
	t.Helper()
	f := newFixture(t)
	env := &checkoutEnv{
		fixture:   f,
		cart:      NewCartService(f.db),
		publisher: &recordingPublisher{},
		locker:    newMemoryLocker(),
		idem:      newMemoryIdempotency(),
		cache:     newMemoryCache(),
	}
	env.checkout = NewCheckoutService(f.db, env.locker, env.idem, env.publisher, env.cache, cfg)
	env.user = f.user(t, "buyer")
	return env
}

func (e *checkoutEnv) add(t *testing.T, p *models.Product, qty int) {
	t.Helper()
	_, err := e.cart.Add(context.Background(), userOwner(e.user), AddItemInput{ProductID: p.ID, Quantity: qty})
	require.NoError(t, err)
}

func (e *checkoutEnv) input() CheckoutInput {
	return CheckoutInput{Billing: validAddress(), SameAsBilling: true}
}

func TestComputeTotals(t *testing.T) {
	cfg := testBusinessConfig()
	cfg.TaxRate = dec("0.10")
	cfg.ShippingFlat = dec("15.00")
	cfg.FreeShippingThreshold = dec("200.00")

	tests := []struct {
		name                       string
		subtotal, discount         string
		tax, shipping, total, disc string
	}{
		{"flat shipping", "95.00", "0", "9.5", "15", "119.5", "0"},
		{"free shipping at threshold", "200.00", "0", "20", "0", "220", "0"},
		{"discount applied", "100.00", "10.00", "10", "15", "115", "10"},
		{"total never negative", "10.00", "50.00", "1", "15", "0", "50"},
		{"rounded", "33.333", "0", "3.33", "15", "51.66", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(cfg, dec(tt.subtotal), dec(tt.discount))
			assert.Equal(t, tt.tax, got.Tax.String())
			assert.Equal(t, tt.shipping, got.Shipping.String())
			assert.Equal(t, tt.disc, got.Discount.String())
			assert.Equal(t, tt.total, got.Total.String())
		})
	}
}

func TestCheckoutCreatesPriceLockedOrder(t *testing.T) {
	cfg := testBusinessConfig()
	cfg.TaxRate = dec("0.10")
	cfg.ShippingFlat = dec("15.00")
	env := newCheckoutEnv(t, cfg)
	shirt := env.product(t, "Shirt", "35.00", 10)
	mug := env.product(t, "Mug", "25.00", 5)
	env.add(t, shirt, 2)
	env.add(t, mug, 1)
	ctx := context.Background()

	res, err := env.checkout.Checkout(ctx, env.user, env.input())
	require.NoError(t, err)
	order := res.Order

	assert.False(t, res.Replayed)
	assert.Regexp(t, `^ORD-[0-9A-Z]{10}$`, order.OrderNumber)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "95", order.Subtotal.String())
	assert.Equal(t, "9.5", order.TaxAmount.String())
	assert.Equal(t, "15", order.ShippingAmount.String())
	assert.Equal(t, "119.5", order.TotalAmount.String())
	assert.Equal(t, "Curitiba", order.ShippingCity)
	assert.Equal(t, "ana@example.com", order.BillingEmail)
	require.Len(t, order.Items, 2)

	assert.Equal(t, 8, env.db.ProductStock(shirt.ID))
	assert.Equal(t, 4, env.db.ProductStock(mug.ID))

	cart, err := env.cart.Get(ctx, userOwner(env.user))
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	env.db.SetProductPrice(shirt.ID, "99.00")
	stored, err := NewOrderService(env.db, nil, nil).GetOrder(ctx, env.user, order.OrderNumber)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "35", stored.Items[0].UnitPrice.String())
	assert.Equal(t, "70", stored.Items[0].TotalPrice.String())
	assert.Equal(t, "119.5", stored.TotalAmount.String())

	require.Len(t, env.publisher.placed, 1)
	assert.Equal(t, order.OrderNumber, env.publisher.placed[0].OrderNumber)
	assert.Equal(t, 1, env.cache.invalidated)
	assert.Empty(t, env.locker.held)
}

func TestCheckoutVariantLineDecrementsBothStocks(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	shirt := env.product(t, "Shirt", "35.00", 10)
	large := env.variant(t, shirt, "40.00", 4)
	_, err := env.cart.Add(context.Background(), userOwner(env.user), AddItemInput{
		ProductID: shirt.ID, VariantID: &large.ID, Quantity: 3,
	})
	require.NoError(t, err)

	res, err := env.checkout.Checkout(context.Background(), env.user, env.input())
	require.NoError(t, err)

	assert.Equal(t, "120", res.Order.TotalAmount.String())
	assert.Equal(t, large.SKU, res.Order.Items[0].ProductSKU)
	assert.Equal(t, "Shirt - Large", res.Order.Items[0].ProductName)
	assert.Equal(t, 7, env.db.ProductStock(shirt.ID))
	assert.Equal(t, 1, env.db.VariantStock(large.ID))
}

func TestCheckoutRejectsBeforeMutating(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	shirt := env.product(t, "Shirt", "35.00", 10)
	ctx := context.Background()

	_, err := env.checkout.Checkout(ctx, env.user, env.input())
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "cart is empty")

	env.add(t, shirt, 1)

	noEmail := env.input()
	noEmail.Billing.Email = ""
	_, err = env.checkout.Checkout(ctx, env.user, noEmail)
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Contains(t, e.Details, "billing.email")

	noCity := env.input()
	noCity.Billing.City = ""
	_, err = env.checkout.Checkout(ctx, env.user, noCity)
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Details, "billing.city")

	noShipping := env.input()
	noShipping.SameAsBilling = false
	_, err = env.checkout.Checkout(ctx, env.user, noShipping)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	badShipping := env.input()
	badShipping.SameAsBilling = false
	badShipping.Shipping = &models.Address{FirstName: "Ana"}
	_, err = env.checkout.Checkout(ctx, env.user, badShipping)
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Details, "shipping.zip_code")

	assert.Equal(t, 0, env.db.OrderCount())
	assert.Equal(t, 10, env.db.ProductStock(shirt.ID))
}

func TestCheckoutRollsBackOnMidCommitFailure(t *testing.T) {
	for _, method := range []string{"CreateOrderItem", "DecrementStock", "ClearCart"} {
		t.Run(method, func(t *testing.T) {
			env := newCheckoutEnv(t, testBusinessConfig())
			shirt := env.product(t, "Shirt", "35.00", 10)
			mug := env.product(t, "Mug", "25.00", 5)
			env.add(t, shirt, 2)
			env.add(t, mug, 1)

			onCall := 2
			if method == "ClearCart" {
				onCall = 1
			}
			env.db.FailOn(method, onCall, errors.New("disk full"))

			_, err := env.checkout.Checkout(context.Background(), env.user, env.input())
			require.Error(t, err)
			assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

			assert.Equal(t, 0, env.db.OrderCount())
			assert.Equal(t, 10, env.db.ProductStock(shirt.ID))
			assert.Equal(t, 5, env.db.ProductStock(mug.ID))

			cart, err := env.cart.Get(context.Background(), userOwner(env.user))
			require.NoError(t, err)
			assert.Equal(t, 3, cart.TotalItems)
			assert.Empty(t, env.publisher.placed)
			assert.Empty(t, env.locker.held)
		})
	}
}

func TestCheckoutInsufficientStockAbortsWholeOrder(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	shirt := env.product(t, "Shirt", "35.00", 10)
	mug := env.product(t, "Mug", "25.00", 5)
	env.add(t, shirt, 2)
	env.add(t, mug, 5)

	// another buyer takes the mugs between add and checkout
	_, ok, err := env.db.DecrementStock(context.Background(), mug.ID, 3)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.checkout.Checkout(context.Background(), env.user, env.input())
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.Equal(t, 10, env.db.ProductStock(shirt.ID))
	assert.Equal(t, 2, env.db.ProductStock(mug.ID))
	assert.Equal(t, 0, env.db.OrderCount())
}

func TestCheckoutBackorderFloorsStockAtZero(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	kettle := env.product(t, "Kettle", "30.00", 2)
	env.db.SetInventoryPolicy(kettle.ID, true, true)
	env.add(t, kettle, 5)

	res, err := env.checkout.Checkout(context.Background(), env.user, env.input())
	require.NoError(t, err)
	assert.Equal(t, 0, env.db.ProductStock(kettle.ID))
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, 5, res.Order.Items[0].Quantity)
	assert.Equal(t, 2, res.Order.Items[0].StockTaken)
	assert.Equal(t, "150", res.Order.Subtotal.String())
}

func TestCheckoutBackorderedVariantFloorsBothStocks(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	shirt := env.product(t, "Shirt", "35.00", 2)
	env.db.SetInventoryPolicy(shirt.ID, true, true)
	large := env.variant(t, shirt, "40.00", 1)
	_, err := env.cart.Add(context.Background(), userOwner(env.user), AddItemInput{ProductID: shirt.ID, VariantID: &large.ID, Quantity: 3})
	require.NoError(t, err)

	res, err := env.checkout.Checkout(context.Background(), env.user, env.input())
	require.NoError(t, err)
	assert.Equal(t, 0, env.db.ProductStock(shirt.ID))
	assert.Equal(t, 0, env.db.VariantStock(large.ID))
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, 2, res.Order.Items[0].StockTaken)
	assert.Equal(t, 1, res.Order.Items[0].VariantStockTaken)
}

func TestCheckoutUntrackedProductKeepsStock(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	ebook := env.product(t, "Ebook", "9.90", 3)
	env.db.SetInventoryPolicy(ebook.ID, false, false)
	env.add(t, ebook, 7)

	res, err := env.checkout.Checkout(context.Background(), env.user, env.input())
	require.NoError(t, err)
	assert.Equal(t, 3, env.db.ProductStock(ebook.ID))
	require.Len(t, res.Order.Items, 1)
	assert.Equal(t, 0, res.Order.Items[0].StockTaken)
}

func TestCheckoutRejectsDeactivatedProduct(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	shirt := env.product(t, "Shirt", "35.00", 10)
	env.add(t, shirt, 1)
	env.db.SetProductStatus(shirt.ID, models.ProductStatusDiscontinued)

	_, err := env.checkout.Checkout(context.Background(), env.user, env.input())
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
}

func TestCheckoutWithCoupon(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	shirt := env.product(t, "Shirt", "50.00", 10)
	limit := 1
	env.coupon(t, "SAVE10", models.DiscountPercentage, "10", &limit)
	env.add(t, shirt, 2)

	in := env.input()
	in.CouponCode = "save10"
	res, err := env.checkout.Checkout(context.Background(), env.user, in)
	require.NoError(t, err)

	assert.Equal(t, "10", res.Order.DiscountAmount.String())
	assert.Equal(t, "90", res.Order.TotalAmount.String())
	require.NotNil(t, res.Order.CouponCode)
	assert.Equal(t, "SAVE10", *res.Order.CouponCode)
	assert.Equal(t, 1, env.db.CouponUsedCount("SAVE10"))

	env.add(t, shirt, 1)
	_, err = env.checkout.Checkout(context.Background(), env.user, in)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 1, env.db.CouponUsedCount("SAVE10"))
	assert.Equal(t, 1, env.db.OrderCount())
}

func TestCheckoutUnknownCouponLeavesCartIntact(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	shirt := env.product(t, "Shirt", "50.00", 10)
	env.add(t, shirt, 1)

	in := env.input()
	in.CouponCode = "NOPE"
	_, err := env.checkout.Checkout(context.Background(), env.user, in)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, 10, env.db.ProductStock(shirt.ID))
}

func TestCheckoutIdempotencyKeyReplaysFirstOrder(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	shirt := env.product(t, "Shirt", "35.00", 10)
	env.add(t, shirt, 1)
	ctx := context.Background()

	in := env.input()
	in.IdempotencyKey = "req-1"
	first, err := env.checkout.Checkout(ctx, env.user, in)
	require.NoError(t, err)

	env.add(t, shirt, 1)
	second, err := env.checkout.Checkout(ctx, env.user, in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)
	assert.Len(t, second.Order.Items, 1)
	assert.Equal(t, 1, env.db.OrderCount())
	assert.Equal(t, 9, env.db.ProductStock(shirt.ID))

	// the database is authoritative when the cache has forgotten the key
	env.idem.values = map[string]string{}
	third, err := env.checkout.Checkout(ctx, env.user, in)
	require.NoError(t, err)
	assert.True(t, third.Replayed)
	assert.Equal(t, first.Order.OrderNumber, third.Order.OrderNumber)
}

func TestCheckoutLockBusy(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	shirt := env.product(t, "Shirt", "35.00", 10)
	env.add(t, shirt, 1)

	cart, err := env.cart.Get(context.Background(), userOwner(env.user))
	require.NoError(t, err)
	_, ok, err := env.locker.AcquireLock(context.Background(), "checkout:cart:"+itoa(cart.Cart.ID), 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.checkout.Checkout(context.Background(), env.user, env.input())
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, 0, env.db.OrderCount())
}

func TestCheckoutWithoutOptionalDependencies(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 10)
	user := f.user(t, "plain")
	_, err := NewCartService(f.db).Add(context.Background(), userOwner(user), AddItemInput{ProductID: shirt.ID, Quantity: 1})
	require.NoError(t, err)

	svc := NewCheckoutService(f.db, nil, nil, nil, nil, testBusinessConfig())
	res, err := svc.Checkout(context.Background(), user, CheckoutInput{Billing: validAddress(), SameAsBilling: true})
	require.NoError(t, err)
	assert.Equal(t, "35", res.Order.TotalAmount.String())
}

func TestCheckoutRequiresUser(t *testing.T) {
	env := newCheckoutEnv(t, testBusinessConfig())
	_, err := env.checkout.Checkout(context.Background(), nil, env.input())
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
