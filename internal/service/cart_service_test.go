package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

func TestCartAddTwiceAccumulates(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 10)
	svc := NewCartService(f.db)
	owner := models.CartOwner{SessionKey: "anon-1"}
	ctx := context.Background()

	_, err := svc.Add(ctx, owner, AddItemInput{ProductID: shirt.ID, Quantity: 2})
	require.NoError(t, err)
	view, err := svc.Add(ctx, owner, AddItemInput{ProductID: shirt.ID, Quantity: 1})
	require.NoError(t, err)

	require.Len(t, view.Lines, 1)
	assert.Equal(t, 3, view.Lines[0].Quantity)
	assert.Equal(t, 3, view.TotalItems)
	assert.Equal(t, "105", view.TotalAmount.String())
}

func TestCartTotalsUseLivePrices(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 10)
	mug := f.product(t, "Mug", "25.00", 10)
	svc := NewCartService(f.db)
	owner := models.CartOwner{SessionKey: "anon-2"}
	ctx := context.Background()

	_, err := svc.Add(ctx, owner, AddItemInput{ProductID: shirt.ID, Quantity: 2})
	require.NoError(t, err)
	view, err := svc.Add(ctx, owner, AddItemInput{ProductID: mug.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "95", view.TotalAmount.String())

	f.db.SetProductPrice(shirt.ID, "40.00")

	view, err = svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, view.TotalItems)
	assert.Equal(t, "105", view.TotalAmount.String())
}

func TestCartVariantPriceOverride(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 10)
	large := f.variant(t, shirt, "37.50", 5)
	svc := NewCartService(f.db)

	view, err := svc.Add(context.Background(), models.CartOwner{SessionKey: "v"}, AddItemInput{
		ProductID: shirt.ID, VariantID: &large.ID, Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "75", view.TotalAmount.String())
}

func TestCartAddRejections(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 3)
	hidden := f.product(t, "Hidden", "10.00", 3)
	f.db.SetProductStatus(hidden.ID, models.ProductStatusInactive)
	other := f.product(t, "Other", "10.00", 3)
	foreign := f.variant(t, other, "", 3)

	svc := NewCartService(f.db)
	owner := models.CartOwner{SessionKey: "rej"}
	ctx := context.Background()

	tests := []struct {
		name string
		in   AddItemInput
		kind apperr.Kind
	}{
		{"zero quantity", AddItemInput{ProductID: shirt.ID, Quantity: 0}, apperr.KindValidation},
		{"negative quantity", AddItemInput{ProductID: shirt.ID, Quantity: -1}, apperr.KindValidation},
		{"unknown product", AddItemInput{ProductID: 9999, Quantity: 1}, apperr.KindNotFound},
		{"inactive product", AddItemInput{ProductID: hidden.ID, Quantity: 1}, apperr.KindUnavailable},
		{"over stock", AddItemInput{ProductID: shirt.ID, Quantity: 4}, apperr.KindUnavailable},
		{"variant of another product", AddItemInput{ProductID: shirt.ID, VariantID: &foreign.ID, Quantity: 1}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(ctx, owner, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	view, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestCartStockCheckUsesResultingQuantity(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 3)
	svc := NewCartService(f.db)
	owner := models.CartOwner{SessionKey: "stock"}
	ctx := context.Background()

	_, err := svc.Add(ctx, owner, AddItemInput{ProductID: shirt.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = svc.Add(ctx, owner, AddItemInput{ProductID: shirt.ID, Quantity: 2})
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "only 3 items in stock")
}

func TestCartBackordersSkipStockCheck(t *testing.T) {
	f := newFixture(t)
	p := &models.Product{
		Name: "Preorder", Slug: "preorder", SKU: "SKU-PRE", CategoryID: f.category.ID,
		Price: dec("10"), TrackInventory: true, AllowBackorders: true, Status: models.ProductStatusActive,
	}
	require.NoError(t, f.db.CreateProduct(context.Background(), p))

	view, err := NewCartService(f.db).Add(context.Background(), models.CartOwner{SessionKey: "bo"},
		AddItemInput{ProductID: p.ID, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, view.TotalItems)
}

func TestCartSetQuantity(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 10)
	svc := NewCartService(f.db)
	owner := models.CartOwner{SessionKey: "set"}
	ctx := context.Background()

	view, err := svc.Add(ctx, owner, AddItemInput{ProductID: shirt.ID, Quantity: 4})
	require.NoError(t, err)
	itemID := view.Lines[0].ID

	view, err = svc.SetQuantity(ctx, owner, itemID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Lines[0].Quantity)

	_, err = svc.SetQuantity(ctx, owner, itemID, 11)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))

	view, err = svc.SetQuantity(ctx, owner, itemID, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Equal(t, 0, f.db.CartItemCount(view.Cart.ID))
}

func TestCartItemsAreScopedToOwner(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 10)
	svc := NewCartService(f.db)
	ctx := context.Background()

	alice := f.user(t, "alice")
	view, err := svc.Add(ctx, userOwner(alice), AddItemInput{ProductID: shirt.ID, Quantity: 1})
	require.NoError(t, err)
	itemID := view.Lines[0].ID

	intruder := models.CartOwner{SessionKey: "intruder"}
	_, err = svc.Remove(ctx, intruder, itemID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = svc.SetQuantity(ctx, intruder, itemID, 5)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	view, err = svc.Remove(ctx, userOwner(alice), itemID)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestCartClear(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 10)
	svc := NewCartService(f.db)
	owner := models.CartOwner{SessionKey: "clear"}
	ctx := context.Background()

	_, err := svc.Add(ctx, owner, AddItemInput{ProductID: shirt.ID, Quantity: 1})
	require.NoError(t, err)

	view, err := svc.Clear(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 0, view.TotalItems)
	assert.Equal(t, 0, f.db.CartItemCount(view.Cart.ID))
}

func TestCartRequiresOwner(t *testing.T) {
	_, err := NewCartService(newFixture(t).db).Get(context.Background(), models.CartOwner{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
