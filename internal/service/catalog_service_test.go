package service

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

func TestListProductsPaginates(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"} {
		f.product(t, name, "10.00", 5)
	}
	svc := NewCatalogService(f.db, nil, testBusinessConfig())

	page, err := svc.ListProducts(context.Background(), ListProductsParams{Ordering: "name", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Count)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Products, 2)
	assert.Equal(t, "Charlie", page.Products[0].Name)
	assert.Equal(t, "Delta", page.Products[1].Name)
}

func TestListProductsClampsPageSize(t *testing.T) {
	f := newFixture(t)
	f.product(t, "Alpha", "10.00", 5)
	svc := NewCatalogService(f.db, nil, testBusinessConfig())

	page, err := svc.ListProducts(context.Background(), ListProductsParams{Page: -3, PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)

	_, err = svc.ListProducts(context.Background(), ListProductsParams{
		MinPrice: decimal.NewNullDecimal(dec("50")),
		MaxPrice: decimal.NewNullDecimal(dec("10")),
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListProductsRejectsHugePage(t *testing.T) {
	f := newFixture(t)
	f.product(t, "Alpha", "10.00", 5)
	svc := NewCatalogService(f.db, nil, testBusinessConfig())

	_, err := svc.ListProducts(context.Background(), ListProductsParams{Page: maxPage + 1, PageSize: 100})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	page, err := svc.ListProducts(context.Background(), ListProductsParams{Page: maxPage, PageSize: 100})
	require.NoError(t, err)
	assert.Empty(t, page.Products)
}

func TestListProductsServedFromCache(t *testing.T) {
	f := newFixture(t)
	f.product(t, "Alpha", "10.00", 5)
	cache := newMemoryCache()
	svc := NewCatalogService(f.db, cache, testBusinessConfig())
	ctx := context.Background()

	first, err := svc.ListProducts(ctx, ListProductsParams{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Count)

	f.db.FailOn("ListProducts", 1, assert.AnError)
	second, err := svc.ListProducts(ctx, ListProductsParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Count)
	assert.Equal(t, "Alpha", second.Products[0].Name)
	assert.True(t, second.Products[0].Price.Equal(dec("10")))

	svc.Invalidate(ctx)
	_, err = svc.ListProducts(ctx, ListProductsParams{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 5)
	f.variant(t, shirt, "40.00", 2)
	draft := f.product(t, "Draft Thing", "10.00", 5)
	f.db.SetProductStatus(draft.ID, models.ProductStatusDraft)
	svc := NewCatalogService(f.db, nil, testBusinessConfig())
	ctx := context.Background()

	detail, err := svc.GetProduct(ctx, "shirt")
	require.NoError(t, err)
	assert.Equal(t, shirt.ID, detail.Product.ID)
	assert.Len(t, detail.Variants, 1)

	_, err = svc.GetProduct(ctx, "draft-thing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = svc.GetProduct(ctx, "nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSearchLimitsResults(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		f.product(t, "Blue Shirt "+strings.Repeat("x", i+1), "10.00", 1)
	}
	f.product(t, "Red Mug", "5.00", 1)
	svc := NewCatalogService(f.db, nil, testBusinessConfig())

	got, err := svc.Search(context.Background(), "shirt")
	require.NoError(t, err)
	assert.Len(t, got, 20)

	got, err = svc.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCreateProductGeneratesIdentifiers(t *testing.T) {
	f := newFixture(t)
	cache := newMemoryCache()
	svc := NewCatalogService(f.db, cache, testBusinessConfig())
	ctx := context.Background()

	in := CreateProductInput{
		Name:       "Camiseta Básica",
		CategoryID: f.category.ID,
		Price:      dec("49.90"),
		Stock:      10,
		Status:     models.ProductStatusActive,
		Images: []ImageInput{
			{Image: "a.jpg", IsPrimary: true},
			{Image: "b.jpg", IsPrimary: true},
		},
	}
	first, err := svc.CreateProduct(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "camiseta-basica", first.Slug)
	assert.Regexp(t, `^SKU-[0-9A-Z]{8}$`, first.SKU)
	assert.True(t, first.TrackInventory)
	assert.Equal(t, 1, cache.invalidated)

	second, err := svc.CreateProduct(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "camiseta-basica-1", second.Slug)
	assert.NotEqual(t, first.SKU, second.SKU)

	images, err := f.db.ListProductImages(ctx, first.ID)
	require.NoError(t, err)
	primaries := 0
	for _, img := range images {
		if img.IsPrimary {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)

	in.Slug = "camiseta-basica"
	_, err = svc.CreateProduct(ctx, in)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	in.Slug = ""
	in.CategoryID = 9999
	_, err = svc.CreateProduct(ctx, in)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateProductValidation(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.db, nil, testBusinessConfig())

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{CategoryID: f.category.ID, Price: dec("1")})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Details, "name")

	_, err = svc.CreateProduct(context.Background(), CreateProductInput{Name: "X", CategoryID: f.category.ID, Price: dec("-1")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateVariant(t *testing.T) {
	f := newFixture(t)
	shirt := f.product(t, "Shirt", "35.00", 10)
	svc := NewCatalogService(f.db, nil, testBusinessConfig())
	ctx := context.Background()

	price := dec("39.90")
	v, err := svc.CreateVariant(ctx, "shirt", CreateVariantInput{
		Price:      &price,
		Stock:      4,
		Attributes: map[string]string{"Size": "XL"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(v.SKU, shirt.SKU+"-VAR-"))
	assert.Len(t, v.SKU, len(shirt.SKU)+len("-VAR-")+6)
	assert.Equal(t, "XL", v.Name)
	require.Len(t, v.Values, 1)
	assert.Equal(t, "size-xl", v.Values[0].Slug)

	again, err := svc.CreateVariant(ctx, "shirt", CreateVariantInput{Attributes: map[string]string{"Size": "XL"}})
	require.NoError(t, err)
	assert.Equal(t, v.Values[0].ID, again.Values[0].ID)

	_, err = svc.CreateVariant(ctx, "missing", CreateVariantInput{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateCategoryAndBrand(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.db, nil, testBusinessConfig())
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, CreateCategoryInput{Name: "Shirts"})
	require.NoError(t, err)
	assert.Equal(t, "shirts-1", c.Slug)
	assert.True(t, c.IsActive)

	child, err := svc.CreateCategory(ctx, CreateCategoryInput{Name: "Polo", ParentID: &c.ID})
	require.NoError(t, err)
	assert.Equal(t, c.ID, *child.ParentID)

	missing := int64(424242)
	_, err = svc.CreateCategory(ctx, CreateCategoryInput{Name: "Orphan", ParentID: &missing})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	b, err := svc.CreateBrand(ctx, CreateBrandInput{Name: "Açaí & Co", Website: "https://acai.example"})
	require.NoError(t, err)
	assert.Equal(t, "acai-co", b.Slug)

	_, err = svc.CreateBrand(ctx, CreateBrandInput{Name: "Bad", Website: "not a url"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	brands, err := svc.ListBrands(ctx)
	require.NoError(t, err)
	assert.Len(t, brands, 1)
}
