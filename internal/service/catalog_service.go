package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storefront/config"
	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

const searchLimit = 20

// CatalogService serves catalog reads through a versioned cache and handles staff writes.
type CatalogService struct {
	db     store.DB
	cache  CatalogCache
	cfg    config.BusinessConfig
	group  singleflight.Group
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(db store.DB, cache CatalogCache, cfg config.BusinessConfig) *CatalogService {
	return &CatalogService{
		db:     db,
		cache:  cache,
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

// ListProductsParams are the query parameters of a product listing.
type ListProductsParams struct {
	Category  string
	Brand     string
	MinPrice  decimal.NullDecimal
	MaxPrice  decimal.NullDecimal
	Search    string
	InStock   bool
	Featured  bool
	MinRating *float64
	Ordering  string
	Page      int
	PageSize  int
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Products   []models.Product
	Count      int
	Page       int
	PageSize   int
	TotalPages int
}

func (p ListProductsParams) cacheKey() string {
	rating := ""
	if p.MinRating != nil {
		rating = fmt.Sprintf("%g", *p.MinRating)
	}
	return fmt.Sprintf("products:c=%s:b=%s:min=%s:max=%s:q=%s:s=%t:f=%t:r=%s:o=%s:p=%d:l=%d",
		p.Category, p.Brand, nullString(p.MinPrice), nullString(p.MaxPrice),
		strings.ToLower(p.Search), p.InStock, p.Featured, rating, p.Ordering, p.Page, p.PageSize)
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// maxPage bounds the listing offset well inside int range.
const maxPage = 10000

// normalizePage clamps page and page size to the configured bounds.
// Pages past maxPage are rejected rather than clamped.
func (s *CatalogService) normalizePage(page, size int) (int, int, error) {
	if page > maxPage {
		return 0, 0, apperr.Validation("page must be at most %d", maxPage)
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = s.cfg.DefaultPageSize
	}
	if size > s.cfg.MaxPageSize {
		size = s.cfg.MaxPageSize
	}
	return page, size, nil
}

// cached runs load through the cache and collapses concurrent misses for the same key.
func (s *CatalogService) cached(ctx context.Context, key string, dest interface{}, load func() (interface{}, error)) (interface{}, error) {
	if s.cache != nil {
		hit, err := s.cache.GetCatalog(ctx, key, dest)
		if err != nil {
			s.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
		if hit {
			util.CatalogCacheTotal.WithLabelValues("hit").Inc()
			return dest, nil
		}
		util.CatalogCacheTotal.WithLabelValues("miss").Inc()
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetCatalog(ctx, key, v, s.cfg.CatalogCacheTTL); err != nil {
				s.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return v, nil
	})
	return v, err
}

// ListProducts returns a page of active products.
func (s *CatalogService) ListProducts(ctx context.Context, p ListProductsParams) (*ProductPage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	var err error
	if p.Page, p.PageSize, err = s.normalizePage(p.Page, p.PageSize); err != nil {
		return nil, err
	}
	if p.MinPrice.Valid && p.MaxPrice.Valid && p.MinPrice.Decimal.GreaterThan(p.MaxPrice.Decimal) {
		return nil, apperr.Validation("min_price cannot exceed max_price")
	}

	v, err := s.cached(ctx, p.cacheKey(), &ProductPage{}, func() (interface{}, error) {
		products, count, err := s.db.ListProducts(ctx, store.ProductFilter{
			CategorySlug: p.Category,
			BrandSlug:    p.Brand,
			MinPrice:     p.MinPrice,
			MaxPrice:     p.MaxPrice,
			Search:       strings.TrimSpace(p.Search),
			InStock:      p.InStock,
			Featured:     p.Featured,
			MinRating:    p.MinRating,
			Ordering:     p.Ordering,
			Limit:        p.PageSize,
			Offset:       (p.Page - 1) * p.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}
		return &ProductPage{
			Products:   products,
			Count:      count,
			Page:       p.Page,
			PageSize:   p.PageSize,
			TotalPages: (count + p.PageSize - 1) / p.PageSize,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProductPage), nil
}

// GetProduct returns an active product with its images, variants and approved reviews.
func (s *CatalogService) GetProduct(ctx context.Context, slug string) (*models.ProductDetail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	v, err := s.cached(ctx, "product:"+slug, &models.ProductDetail{}, func() (interface{}, error) {
		product, err := s.db.GetProductBySlug(ctx, slug)
		if err != nil {
			return nil, notFoundAs(err, "product not found")
		}
		if product.Status != models.ProductStatusActive {
			return nil, apperr.NotFound("product not found")
		}
		images, err := s.db.ListProductImages(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		variants, err := s.db.ListProductVariants(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		reviews, err := s.db.ListReviews(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		return &models.ProductDetail{Product: *product, Images: images, Variants: variants, Reviews: reviews}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ProductDetail), nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListCategories")
	defer span.End()

	v, err := s.cached(ctx, "categories", &[]models.Category{}, func() (interface{}, error) {
		categories, err := s.db.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		return &categories, nil
	})
	if err != nil {
		return nil, err
	}
	return *v.(*[]models.Category), nil
}

func (s *CatalogService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListBrands")
	defer span.End()

	v, err := s.cached(ctx, "brands", &[]models.Brand{}, func() (interface{}, error) {
		brands, err := s.db.ListBrands(ctx)
		if err != nil {
			return nil, err
		}
		return &brands, nil
	})
	if err != nil {
		return nil, err
	}
	return *v.(*[]models.Brand), nil
}

// Search returns up to twenty active products whose name or description contains q.
func (s *CatalogService) Search(ctx context.Context, q string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Search")
	defer span.End()

	q = strings.TrimSpace(q)
	if q == "" {
		return []models.Product{}, nil
	}
	products, _, err := s.db.ListProducts(ctx, store.ProductFilter{Search: q, Ordering: "name", Limit: searchLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return products, nil
}

// Invalidate drops every cached catalog read.
func (s *CatalogService) Invalidate(ctx context.Context) {
	invalidateCatalog(ctx, s.cache, s.logger)
}

func invalidateCatalog(ctx context.Context, cache CatalogCache, logger *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateCatalog(ctx); err != nil {
		logger.Error("Failed to invalidate catalog cache", zap.Error(err))
	}
}

type CreateCategoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Slug        string `json:"slug" validate:"max=120"`
	Description string `json:"description"`
	ParentID    *int64 `json:"parent_id"`
	SortOrder   int    `json:"sort_order"`
	IsActive    *bool  `json:"is_active"`
}

func (s *CatalogService) CreateCategory(ctx context.Context, in CreateCategoryInput) (*models.Category, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateCategory")
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		if _, err := s.db.GetCategoryByID(ctx, *in.ParentID); err != nil {
			return nil, notFoundAs(err, "parent category not found")
		}
	}
	slug, err := resolveSlug(ctx, s.db, "categories", in.Slug, in.Name)
	if err != nil {
		return nil, err
	}

	c := &models.Category{
		Name:        in.Name,
		Slug:        slug,
		Description: in.Description,
		ParentID:    in.ParentID,
		SortOrder:   in.SortOrder,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if err := s.db.CreateCategory(ctx, c); err != nil {
		return nil, conflictAs(err, "a category with this slug already exists")
	}
	s.Invalidate(ctx)
	return c, nil
}

type CreateBrandInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Slug        string `json:"slug" validate:"max=120"`
	Description string `json:"description"`
	Website     string `json:"website" validate:"omitempty,url"`
}

func (s *CatalogService) CreateBrand(ctx context.Context, in CreateBrandInput) (*models.Brand, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateBrand")
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	slug, err := resolveSlug(ctx, s.db, "brands", in.Slug, in.Name)
	if err != nil {
		return nil, err
	}

	b := &models.Brand{Name: in.Name, Slug: slug, Description: in.Description, Website: in.Website, IsActive: true}
	if err := s.db.CreateBrand(ctx, b); err != nil {
		return nil, conflictAs(err, "a brand with this slug already exists")
	}
	s.Invalidate(ctx)
	return b, nil
}

type CreateProductInput struct {
	Name              string           `json:"name" validate:"required,max=200"`
	Slug              string           `json:"slug" validate:"max=220"`
	SKU               string           `json:"sku" validate:"max=100"`
	Description       string           `json:"description"`
	ShortDescription  string           `json:"short_description" validate:"max=300"`
	CategoryID        int64            `json:"category_id" validate:"required"`
	BrandID           *int64           `json:"brand_id"`
	Price             decimal.Decimal  `json:"price"`
	CompareAtPrice    *decimal.Decimal `json:"compare_at_price"`
	Stock             int              `json:"stock" validate:"gte=0"`
	LowStockThreshold *int             `json:"low_stock_threshold"`
	TrackInventory    *bool            `json:"track_inventory"`
	AllowBackorders   bool             `json:"allow_backorders"`
	Status            string           `json:"status" validate:"omitempty,oneof=draft active inactive discontinued"`
	IsFeatured        bool             `json:"is_featured"`
	Image             string           `json:"image"`
	Images            []ImageInput     `json:"images" validate:"dive"`
}

type ImageInput struct {
	Image     string `json:"image" validate:"required"`
	AltText   string `json:"alt_text"`
	SortOrder int    `json:"sort_order"`
	IsPrimary bool   `json:"is_primary"`
}

// CreateProduct inserts a product, generating slug and SKU when they are not given.
func (s *CatalogService) CreateProduct(ctx context.Context, in CreateProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Price.IsNegative() {
		return nil, apperr.Validation("price cannot be negative")
	}

	p := &models.Product{
		Name:              in.Name,
		Description:       in.Description,
		ShortDescription:  in.ShortDescription,
		CategoryID:        in.CategoryID,
		BrandID:           in.BrandID,
		Price:             models.RoundMoney(in.Price),
		Stock:             in.Stock,
		LowStockThreshold: 10,
		TrackInventory:    in.TrackInventory == nil || *in.TrackInventory,
		AllowBackorders:   in.AllowBackorders,
		Status:            in.Status,
		IsFeatured:        in.IsFeatured,
		Image:             in.Image,
		TaxClass:          "standard",
	}
	if p.Status == "" {
		p.Status = models.ProductStatusDraft
	}
	if in.CompareAtPrice != nil {
		p.CompareAtPrice = decimal.NewNullDecimal(models.RoundMoney(*in.CompareAtPrice))
	}
	if in.LowStockThreshold != nil {
		p.LowStockThreshold = *in.LowStockThreshold
	}

	err := s.db.WithTx(ctx, func(r store.Repository) error {
		if _, err := r.GetCategoryByID(ctx, in.CategoryID); err != nil {
			return notFoundAs(err, "category not found")
		}

		slug, err := resolveSlug(ctx, r, "products", in.Slug, in.Name)
		if err != nil {
			return err
		}
		p.Slug = slug

		p.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
		if p.SKU == "" {
			p.SKU, err = UniqueGenerated(ctx, NewSKU, func(ctx context.Context, c string) (bool, error) {
				return r.Exists(ctx, "products", "sku", c)
			})
			if err != nil {
				return err
			}
		}

		if err := r.CreateProduct(ctx, p); err != nil {
			return conflictAs(err, "a product with this slug or SKU already exists")
		}

		primarySeen := false
		for _, img := range in.Images {
			primary := img.IsPrimary && !primarySeen
			primarySeen = primarySeen || primary
			if err := r.CreateProductImage(ctx, &models.ProductImage{
				ProductID: p.ID,
				Image:     img.Image,
				AltText:   img.AltText,
				SortOrder: img.SortOrder,
				IsPrimary: primary,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.Int64("product_id", p.ID), zap.String("sku", p.SKU))
	s.Invalidate(ctx)
	return p, nil
}

type CreateVariantInput struct {
	SKU        string            `json:"sku" validate:"max=100"`
	Name       string            `json:"name" validate:"max=200"`
	Price      *decimal.Decimal  `json:"price"`
	Stock      int               `json:"stock" validate:"gte=0"`
	Attributes map[string]string `json:"attributes"`
}

// CreateVariant adds a variant to the product identified by slug. Attribute
// names and values are created on first use.
func (s *CatalogService) CreateVariant(ctx context.Context, productSlug string, in CreateVariantInput) (*models.ProductVariant, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateVariant")
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Price != nil && in.Price.IsNegative() {
		return nil, apperr.Validation("price cannot be negative")
	}

	v := &models.ProductVariant{Name: in.Name, Stock: in.Stock, IsActive: true}
	if in.Price != nil {
		v.Price = decimal.NewNullDecimal(models.RoundMoney(*in.Price))
	}

	err := s.db.WithTx(ctx, func(r store.Repository) error {
		product, err := r.GetProductBySlug(ctx, productSlug)
		if err != nil {
			return notFoundAs(err, "product not found")
		}
		v.ProductID = product.ID

		var valueIDs []int64
		var labels []string
		for name, value := range in.Attributes {
			attrSlug, err := resolveSlug(ctx, r, "product_attributes", "", name)
			if err != nil {
				return err
			}
			attr, err := r.EnsureAttribute(ctx, name, attrSlug)
			if err != nil {
				return err
			}
			valueSlug, err := resolveSlug(ctx, r, "product_attribute_values", "", name+" "+value)
			if err != nil {
				return err
			}
			val, err := r.EnsureAttributeValue(ctx, attr.ID, value, valueSlug)
			if err != nil {
				return err
			}
			valueIDs = append(valueIDs, val.ID)
			v.Values = append(v.Values, *val)
			labels = append(labels, value)
		}
		if v.Name == "" && len(labels) > 0 {
			v.Name = strings.Join(labels, " / ")
		}

		v.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
		if v.SKU == "" {
			v.SKU, err = UniqueGenerated(ctx, func() string { return NewVariantSKU(product.SKU) },
				func(ctx context.Context, c string) (bool, error) {
					return r.Exists(ctx, "product_variants", "sku", c)
				})
			if err != nil {
				return err
			}
		}

		if err := r.CreateVariant(ctx, v, valueIDs); err != nil {
			return conflictAs(err, "a variant with this SKU already exists")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx)
	return v, nil
}

func conflictAs(err error, message string) error {
	if errors.Is(err, store.ErrConflict) {
		return apperr.Conflict("%s", message)
	}
	return err
}
