package storetest

import (
	"context"
	"sort"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
)

// decorate fills the projected columns the SQL store joins in. Callers hold mu.
func (m *Memory) decorate(p models.Product) models.Product {
	if c, ok := m.d.categories[p.CategoryID]; ok {
		p.CategoryName, p.CategorySlug = c.Name, c.Slug
	}
	p.BrandName, p.BrandSlug = "", ""
	if p.BrandID != nil {
		if b, ok := m.d.brands[*p.BrandID]; ok {
			p.BrandName, p.BrandSlug = b.Name, b.Slug
		}
	}
	sum, n := 0, 0
	for _, r := range m.d.reviews {
		if r.ProductID == p.ID && r.IsApproved {
			sum += r.Rating
			n++
		}
	}
	p.ReviewCount = n
	p.AverageRating = 0
	if n > 0 {
		p.AverageRating = float64(sum) / float64(n)
	}
	return p
}

func (m *Memory) matches(p models.Product, f store.ProductFilter) bool {
	if p.Status != models.ProductStatusActive {
		return false
	}
	if f.CategorySlug != "" {
		c := m.d.categories[p.CategoryID]
		parentSlug := ""
		if c.ParentID != nil {
			parentSlug = m.d.categories[*c.ParentID].Slug
		}
		if c.Slug != f.CategorySlug && parentSlug != f.CategorySlug {
			return false
		}
	}
	if f.BrandSlug != "" && p.BrandSlug != f.BrandSlug {
		return false
	}
	if f.MinPrice.Valid && p.Price.LessThan(f.MinPrice.Decimal) {
		return false
	}
	if f.MaxPrice.Valid && p.Price.GreaterThan(f.MaxPrice.Decimal) {
		return false
	}
	if f.Search != "" && !containsFold(p.Name, f.Search) && !containsFold(p.Description, f.Search) {
		return false
	}
	if f.InStock && !(p.Stock > 0 || p.AllowBackorders || !p.TrackInventory) {
		return false
	}
	if f.Featured && !p.IsFeatured {
		return false
	}
	if f.MinRating != nil && p.AverageRating < *f.MinRating {
		return false
	}
	return true
}

func olderFirst(a, b models.Product) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func lessProducts(ordering string) func(a, b models.Product) bool {
	desc := strings.HasPrefix(ordering, "-")
	var less func(a, b models.Product) bool
	switch strings.TrimPrefix(ordering, "-") {
	case "name":
		less = func(a, b models.Product) bool { return a.Name < b.Name }
	case "price":
		less = func(a, b models.Product) bool { return a.Price.LessThan(b.Price) }
	case "rating":
		less = func(a, b models.Product) bool { return a.AverageRating < b.AverageRating }
	case "created", "created_at":
		less = olderFirst
	default:
		desc = true
		less = olderFirst
	}
	if desc {
		return func(a, b models.Product) bool { return less(b, a) }
	}
	return less
}

func (m *Memory) ListProducts(ctx context.Context, f store.ProductFilter) ([]models.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("ListProducts"); err != nil {
		return nil, 0, err
	}

	out := []models.Product{}
	for _, id := range sortedKeys(m.d.products) {
		p := m.decorate(m.d.products[id])
		if m.matches(p, f) {
			out = append(out, p)
		}
	}
	less := lessProducts(f.Ordering)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })

	count := len(out)
	if f.Limit > 0 {
		if f.Offset >= len(out) {
			out = []models.Product{}
		} else {
			end := f.Offset + f.Limit
			if end > len(out) {
				end = len(out)
			}
			out = out[f.Offset:end]
		}
	}
	return out, count, nil
}

func (m *Memory) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("GetProductByID"); err != nil {
		return nil, err
	}
	p, ok := m.d.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	p = m.decorate(p)
	return &p, nil
}

func (m *Memory) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.d.products {
		if p.Slug == slug {
			p = m.decorate(p)
			return &p, nil
		}
	}
	return nil, notFound("product", slug)
}

func (m *Memory) ListProductImages(ctx context.Context, productID int64) ([]models.ProductImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ProductImage{}
	for _, id := range sortedKeys(m.d.images) {
		if img := m.d.images[id]; img.ProductID == productID {
			out = append(out, img)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out, nil
}

func (m *Memory) ListProductVariants(ctx context.Context, productID int64) ([]models.ProductVariant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ProductVariant{}
	for _, id := range sortedKeys(m.d.variants) {
		v := m.d.variants[id]
		if v.ProductID != productID || !v.IsActive {
			continue
		}
		v.Values = nil
		for _, valueID := range m.d.variantValues[v.ID] {
			v.Values = append(v.Values, m.d.values[valueID])
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory) GetVariant(ctx context.Context, id int64) (*models.ProductVariant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.d.variants[id]
	if !ok {
		return nil, notFound("variant", id)
	}
	return &v, nil
}

func (m *Memory) ListCategories(ctx context.Context) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Category{}
	for _, c := range m.d.categories {
		if !c.IsActive {
			continue
		}
		c.ProductCount = 0
		for _, p := range m.d.products {
			if p.CategoryID == c.ID && p.Status == models.ProductStatusActive {
				c.ProductCount++
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) GetCategoryByID(ctx context.Context, id int64) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.d.categories[id]
	if !ok {
		return nil, notFound("category", id)
	}
	return &c, nil
}

func (m *Memory) ListBrands(ctx context.Context) ([]models.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Brand{}
	for _, b := range m.d.brands {
		if b.IsActive {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) CreateCategory(ctx context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.d.categories {
		if existing.Slug == c.Slug {
			return conflict("category", c.Slug)
		}
	}
	c.ID = m.nextID()
	c.CreatedAt, c.UpdatedAt = time.Now(), time.Now()
	m.d.categories[c.ID] = *c
	return nil
}

func (m *Memory) CreateBrand(ctx context.Context, b *models.Brand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.d.brands {
		if existing.Slug == b.Slug {
			return conflict("brand", b.Slug)
		}
	}
	b.ID = m.nextID()
	b.CreatedAt = time.Now()
	m.d.brands[b.ID] = *b
	return nil
}

func (m *Memory) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.d.products {
		if existing.Slug == p.Slug || existing.SKU == p.SKU {
			return conflict("product", p.Slug)
		}
	}
	p.ID = m.nextID()
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	m.d.products[p.ID] = *p
	return nil
}

func (m *Memory) CreateProductImage(ctx context.Context, img *models.ProductImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img.IsPrimary {
		for id, existing := range m.d.images {
			if existing.ProductID == img.ProductID && existing.IsPrimary {
				existing.IsPrimary = false
				m.d.images[id] = existing
			}
		}
	}
	img.ID = m.nextID()
	m.d.images[img.ID] = *img
	return nil
}

func (m *Memory) CreateVariant(ctx context.Context, v *models.ProductVariant, valueIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.d.variants {
		if existing.SKU == v.SKU {
			return conflict("variant", v.SKU)
		}
	}
	v.ID = m.nextID()
	v.CreatedAt = time.Now()
	stored := *v
	stored.Values = nil
	m.d.variants[v.ID] = stored
	m.d.variantValues[v.ID] = append([]int64(nil), valueIDs...)
	return nil
}

func (m *Memory) EnsureAttribute(ctx context.Context, name, slug string) (*models.ProductAttribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.d.attributes {
		if a.Name == name {
			return &a, nil
		}
	}
	a := models.ProductAttribute{ID: m.nextID(), Name: name, Slug: slug}
	m.d.attributes[a.ID] = a
	return &a, nil
}

func (m *Memory) EnsureAttributeValue(ctx context.Context, attributeID int64, value, slug string) (*models.ProductAttributeValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.d.values {
		if v.AttributeID == attributeID && v.Value == value {
			return &v, nil
		}
	}
	v := models.ProductAttributeValue{
		ID:            m.nextID(),
		AttributeID:   attributeID,
		AttributeName: m.d.attributes[attributeID].Name,
		Value:         value,
		Slug:          slug,
	}
	m.d.values[v.ID] = v
	return &v, nil
}
