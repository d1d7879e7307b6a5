package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const productFrom = `
	FROM products p
	JOIN categories c ON c.id = p.category_id
	LEFT JOIN categories pc ON pc.id = c.parent_id
	LEFT JOIN brands b ON b.id = p.brand_id
	LEFT JOIN (
		SELECT product_id, AVG(rating)::float8 AS avg_rating, COUNT(*) AS review_count
		FROM product_reviews WHERE is_approved
		GROUP BY product_id
	) r ON r.product_id = p.id`

const productSelect = `
	SELECT p.*,
		c.name AS category_name, c.slug AS category_slug,
		COALESCE(b.name, '') AS brand_name, COALESCE(b.slug, '') AS brand_slug,
		COALESCE(r.avg_rating, 0) AS average_rating,
		COALESCE(r.review_count, 0) AS review_count` + productFrom

var productOrdering = map[string]string{
	"name":       "p.name",
	"price":      "p.price",
	"created":    "p.created_at",
	"created_at": "p.created_at",
	"rating":     "average_rating",
}

// orderClause maps an ordering key such as "-price" onto SQL; unknown keys fall back to newest first.
// likeEscaper makes a search term match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func orderClause(ordering string) string {
	desc := strings.HasPrefix(ordering, "-")
	col, ok := productOrdering[strings.TrimPrefix(ordering, "-")]
	if !ok {
		return "p.created_at DESC, p.id DESC"
	}
	if desc {
		return col + " DESC, p.id DESC"
	}
	return col + " ASC, p.id ASC"
}

// ListProducts returns one page of active products matching f and the total match count.
func (q *Queries) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error) {
	where := []string{"p.status = 'active'"}
	var args []interface{}

	if f.CategorySlug != "" {
		where = append(where, "(c.slug = ? OR pc.slug = ?)")
		args = append(args, f.CategorySlug, f.CategorySlug)
	}
	if f.BrandSlug != "" {
		where = append(where, "b.slug = ?")
		args = append(args, f.BrandSlug)
	}
	if f.MinPrice.Valid {
		where = append(where, "p.price >= ?")
		args = append(args, f.MinPrice.Decimal)
	}
	if f.MaxPrice.Valid {
		where = append(where, "p.price <= ?")
		args = append(args, f.MaxPrice.Decimal)
	}
	if f.Search != "" {
		where = append(where, `(p.name ILIKE ? ESCAPE '\' OR p.description ILIKE ? ESCAPE '\')`)
		pattern := "%" + likeEscaper.Replace(f.Search) + "%"
		args = append(args, pattern, pattern)
	}
	if f.InStock {
		where = append(where, "(p.stock > 0 OR p.allow_backorders OR NOT p.track_inventory)")
	}
	if f.Featured {
		where = append(where, "p.is_featured")
	}
	if f.MinRating != nil {
		where = append(where, "COALESCE(r.avg_rating, 0) >= ?")
		args = append(args, *f.MinRating)
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var count int
	countQuery := q.q.Rebind("SELECT COUNT(*)" + productFrom + cond)
	if err := sqlx.GetContext(ctx, q.q, &count, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := productSelect + cond + " ORDER BY " + orderClause(f.Ordering)
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	products := []models.Product{}
	if err := sqlx.SelectContext(ctx, q.q, &products, q.q.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, count, nil
}

// GetProductByID retrieves a product by ID regardless of status
func (q *Queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.q, &product, productSelect+" WHERE p.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// GetProductBySlug retrieves a product by slug regardless of status
func (q *Queries) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.q, &product, productSelect+" WHERE p.slug = $1", slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

func (q *Queries) ListProductImages(ctx context.Context, productID int64) ([]models.ProductImage, error) {
	images := []models.ProductImage{}
	err := sqlx.SelectContext(ctx, q.q, &images,
		"SELECT * FROM product_images WHERE product_id = $1 ORDER BY is_primary DESC, sort_order, id", productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list product images: %w", err)
	}
	return images, nil
}

// ListProductVariants returns active variants with their attribute values attached.
func (q *Queries) ListProductVariants(ctx context.Context, productID int64) ([]models.ProductVariant, error) {
	variants := []models.ProductVariant{}
	err := sqlx.SelectContext(ctx, q.q, &variants,
		"SELECT * FROM product_variants WHERE product_id = $1 AND is_active ORDER BY id", productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	if len(variants) == 0 {
		return variants, nil
	}

	var rows []struct {
		VariantID int64 `db:"variant_id"`
		models.ProductAttributeValue
	}
	err = sqlx.SelectContext(ctx, q.q, &rows, `
		SELECT vv.variant_id, v.id, v.attribute_id, a.name AS attribute_name, v.value, v.slug
		FROM product_variant_values vv
		JOIN product_attribute_values v ON v.id = vv.value_id
		JOIN product_attributes a ON a.id = v.attribute_id
		JOIN product_variants pv ON pv.id = vv.variant_id
		WHERE pv.product_id = $1
		ORDER BY a.name, v.value`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variant attributes: %w", err)
	}

	byVariant := make(map[int64][]models.ProductAttributeValue)
	for _, r := range rows {
		byVariant[r.VariantID] = append(byVariant[r.VariantID], r.ProductAttributeValue)
	}
	for i := range variants {
		variants[i].Values = byVariant[variants[i].ID]
	}
	return variants, nil
}

func (q *Queries) GetVariant(ctx context.Context, id int64) (*models.ProductVariant, error) {
	var v models.ProductVariant
	err := sqlx.GetContext(ctx, q.q, &v, "SELECT * FROM product_variants WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("variant %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get variant: %w", err)
	}
	return &v, nil
}

// ListCategories returns active categories with their active product counts.
func (q *Queries) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := sqlx.SelectContext(ctx, q.q, &categories, `
		SELECT c.*, (SELECT COUNT(*) FROM products p WHERE p.category_id = c.id AND p.status = 'active') AS product_count
		FROM categories c
		WHERE c.is_active
		ORDER BY c.sort_order, c.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func (q *Queries) GetCategoryByID(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	err := sqlx.GetContext(ctx, q.q, &c, "SELECT * FROM categories WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

func (q *Queries) ListBrands(ctx context.Context) ([]models.Brand, error) {
	brands := []models.Brand{}
	err := sqlx.SelectContext(ctx, q.q, &brands, "SELECT * FROM brands WHERE is_active ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return brands, nil
}

func (q *Queries) CreateCategory(ctx context.Context, c *models.Category) error {
	query := `
		INSERT INTO categories (name, slug, description, parent_id, image, is_active, sort_order, meta_title, meta_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	err := sqlx.GetContext(ctx, q.q, c, query,
		c.Name, c.Slug, c.Description, c.ParentID, c.Image, c.IsActive, c.SortOrder, c.MetaTitle, c.MetaDescription)
	if isUniqueViolation(err) {
		return fmt.Errorf("category %q: %w", c.Slug, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (q *Queries) CreateBrand(ctx context.Context, b *models.Brand) error {
	query := `
		INSERT INTO brands (name, slug, description, logo, website, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := sqlx.GetContext(ctx, q.q, b, query, b.Name, b.Slug, b.Description, b.Logo, b.Website, b.IsActive)
	if isUniqueViolation(err) {
		return fmt.Errorf("brand %q: %w", b.Slug, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create brand: %w", err)
	}
	return nil
}

func (q *Queries) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (name, slug, sku, description, short_description, category_id, brand_id,
			price, compare_at_price, cost_price, stock, low_stock_threshold, track_inventory,
			allow_backorders, status, is_featured, image, weight, dimensions, tax_class,
			meta_title, meta_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id, created_at, updated_at`
	err := sqlx.GetContext(ctx, q.q, p, query,
		p.Name, p.Slug, p.SKU, p.Description, p.ShortDescription, p.CategoryID, p.BrandID,
		p.Price, p.CompareAtPrice, p.CostPrice, p.Stock, p.LowStockThreshold, p.TrackInventory,
		p.AllowBackorders, p.Status, p.IsFeatured, p.Image, p.Weight, p.Dimensions, p.TaxClass,
		p.MetaTitle, p.MetaDescription)
	if isUniqueViolation(err) {
		return fmt.Errorf("product %q: %w", p.Slug, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// CreateProductImage inserts an image; a new primary image demotes the previous one.
func (q *Queries) CreateProductImage(ctx context.Context, img *models.ProductImage) error {
	if img.IsPrimary {
		_, err := q.q.ExecContext(ctx,
			"UPDATE product_images SET is_primary = FALSE WHERE product_id = $1 AND is_primary", img.ProductID)
		if err != nil {
			return fmt.Errorf("failed to clear primary image: %w", err)
		}
	}
	query := `
		INSERT INTO product_images (product_id, image, alt_text, sort_order, is_primary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := sqlx.GetContext(ctx, q.q, &img.ID, query,
		img.ProductID, img.Image, img.AltText, img.SortOrder, img.IsPrimary); err != nil {
		return fmt.Errorf("failed to create product image: %w", err)
	}
	return nil
}

func (q *Queries) CreateVariant(ctx context.Context, v *models.ProductVariant, valueIDs []int64) error {
	query := `
		INSERT INTO product_variants (product_id, sku, name, price, stock, is_active, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err := sqlx.GetContext(ctx, q.q, v, query, v.ProductID, v.SKU, v.Name, v.Price, v.Stock, v.IsActive, v.Image)
	if isUniqueViolation(err) {
		return fmt.Errorf("variant %q: %w", v.SKU, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create variant: %w", err)
	}

	for _, id := range valueIDs {
		if _, err := q.q.ExecContext(ctx,
			"INSERT INTO product_variant_values (variant_id, value_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			v.ID, id); err != nil {
			return fmt.Errorf("failed to attach attribute value: %w", err)
		}
	}
	return nil
}

// EnsureAttribute returns the attribute with the given name, creating it when missing.
func (q *Queries) EnsureAttribute(ctx context.Context, name, slug string) (*models.ProductAttribute, error) {
	var attr models.ProductAttribute
	err := sqlx.GetContext(ctx, q.q, &attr, `
		INSERT INTO product_attributes (name, slug) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING *`, name, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure attribute: %w", err)
	}
	return &attr, nil
}

// EnsureAttributeValue returns the (attribute, value) pair, creating it when missing.
func (q *Queries) EnsureAttributeValue(ctx context.Context, attributeID int64, value, slug string) (*models.ProductAttributeValue, error) {
	var v models.ProductAttributeValue
	err := sqlx.GetContext(ctx, q.q, &v, `
		WITH ins AS (
			INSERT INTO product_attribute_values (attribute_id, value, slug) VALUES ($1, $2, $3)
			ON CONFLICT (attribute_id, value) DO UPDATE SET value = EXCLUDED.value
			RETURNING *
		)
		SELECT ins.*, a.name AS attribute_name FROM ins JOIN product_attributes a ON a.id = ins.attribute_id`,
		attributeID, value, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure attribute value: %w", err)
	}
	return &v, nil
}
