package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/service"
)

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return n, nil
}

func queryDecimal(c *gin.Context, name string) (decimal.NullDecimal, error) {
	raw := c.Query(name)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, apperr.Validation("%s must be a number", name)
	}
	return decimal.NewNullDecimal(d), nil
}

func queryBool(c *gin.Context, name string) bool {
	b, _ := strconv.ParseBool(c.Query(name))
	return b
}

func parseListParams(c *gin.Context) (service.ListProductsParams, error) {
	p := service.ListProductsParams{
		Category: c.Query("category"),
		Brand:    c.Query("brand"),
		Search:   c.Query("search"),
		InStock:  queryBool(c, "in_stock"),
		Featured: queryBool(c, "featured"),
		Ordering: c.Query("ordering"),
	}

	var err error
	if p.MinPrice, err = queryDecimal(c, "min_price"); err != nil {
		return p, err
	}
	if p.MaxPrice, err = queryDecimal(c, "max_price"); err != nil {
		return p, err
	}
	if p.Page, err = queryInt(c, "page"); err != nil {
		return p, err
	}
	if p.PageSize, err = queryInt(c, "page_size"); err != nil {
		return p, err
	}
	if raw := c.Query("min_rating"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, apperr.Validation("min_rating must be a number")
		}
		p.MinRating = &r
	}
	return p, nil
}

func (h *Handler) listProducts(c *gin.Context) {
	params, err := parseListParams(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	page, err := h.svc.Catalog.ListProducts(c.Request.Context(), params)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, paginated(c, page))
}

func (h *Handler) getProduct(c *gin.Context) {
	detail, err := h.svc.Catalog.GetProduct(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProductDetail(detail))
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.svc.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) listBrands(c *gin.Context) {
	brands, err := h.svc.Catalog.ListBrands(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if brands == nil {
		brands = []models.Brand{}
	}
	c.JSON(http.StatusOK, brands)
}

func (h *Handler) search(c *gin.Context) {
	products, err := h.svc.Catalog.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": newProductList(products)})
}

func (h *Handler) createCategory(c *gin.Context) {
	var in service.CreateCategoryInput
	if !h.bindJSON(c, &in) {
		return
	}

	category, err := h.svc.Catalog.CreateCategory(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) createBrand(c *gin.Context) {
	var in service.CreateBrandInput
	if !h.bindJSON(c, &in) {
		return
	}

	brand, err := h.svc.Catalog.CreateBrand(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, brand)
}

func (h *Handler) createProduct(c *gin.Context) {
	var in service.CreateProductInput
	if !h.bindJSON(c, &in) {
		return
	}

	product, err := h.svc.Catalog.CreateProduct(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newProductResponse(product))
}

func (h *Handler) createVariant(c *gin.Context) {
	var in service.CreateVariantInput
	if !h.bindJSON(c, &in) {
		return
	}

	variant, err := h.svc.Catalog.CreateVariant(c.Request.Context(), c.Param("slug"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         variant.ID,
		"product_id": variant.ProductID,
		"sku":        variant.SKU,
		"name":       variant.Name,
		"price":      nullMoney(variant.Price),
		"stock":      variant.Stock,
		"is_active":  variant.IsActive,
		"attributes": variant.Values,
	})
}
