package storetest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"storefront/internal/models"
)

func sameVariant(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *Memory) findCart(owner models.CartOwner) (models.Cart, bool) {
	for _, c := range m.d.carts {
		if owner.UserID != nil {
			if c.UserID != nil && *c.UserID == *owner.UserID {
				return c, true
			}
		} else if c.SessionKey != nil && *c.SessionKey == owner.SessionKey {
			return c, true
		}
	}
	return models.Cart{}, false
}

func (m *Memory) GetCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.findCart(owner)
	if !ok {
		return nil, notFound("cart", owner.Key())
	}
	return &c, nil
}

func (m *Memory) GetOrCreateCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	if owner.IsZero() {
		return nil, errors.New("cart owner is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.findCart(owner); ok {
		return &c, nil
	}
	c := models.Cart{ID: m.nextID(), CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if owner.UserID != nil {
		id := *owner.UserID
		c.UserID = &id
	} else {
		key := owner.SessionKey
		c.SessionKey = &key
	}
	m.d.carts[c.ID] = c
	return &c, nil
}

func (m *Memory) GetCartItem(ctx context.Context, cartID, itemID int64) (*models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.d.items[itemID]
	if !ok || item.CartID != cartID {
		return nil, notFound("cart item", itemID)
	}
	return &item, nil
}

func (m *Memory) FindCartItem(ctx context.Context, cartID, productID int64, variantID *int64) (*models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.d.items {
		if item.CartID == cartID && item.ProductID == productID && sameVariant(item.VariantID, variantID) {
			return &item, nil
		}
	}
	return nil, notFound("cart line for product", productID)
}

func (m *Memory) UpsertCartItem(ctx context.Context, cartID, productID int64, variantID *int64, qty int) (*models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("UpsertCartItem"); err != nil {
		return nil, err
	}
	for id, item := range m.d.items {
		if item.CartID == cartID && item.ProductID == productID && sameVariant(item.VariantID, variantID) {
			item.Quantity += qty
			item.UpdatedAt = time.Now()
			m.d.items[id] = item
			return &item, nil
		}
	}
	item := models.CartItem{
		ID:        m.nextID(),
		CartID:    cartID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  qty,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.d.items[item.ID] = item
	return &item, nil
}

func (m *Memory) UpdateCartItemQuantity(ctx context.Context, itemID int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.d.items[itemID]; ok {
		item.Quantity = qty
		item.UpdatedAt = time.Now()
		m.d.items[itemID] = item
	}
	return nil
}

func (m *Memory) DeleteCartItem(ctx context.Context, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.d.items, itemID)
	return nil
}

func (m *Memory) ListCartLines(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("ListCartLines"); err != nil {
		return nil, err
	}
	lines := []models.CartLine{}
	for _, id := range sortedKeys(m.d.items) {
		item := m.d.items[id]
		if item.CartID != cartID {
			continue
		}
		p := m.d.products[item.ProductID]
		line := models.CartLine{
			CartItem:      item,
			ProductName:   p.Name,
			ProductSlug:   p.Slug,
			ProductSKU:    p.SKU,
			ProductImage:  p.Image,
			ProductPrice:  p.Price,
			ProductStatus: p.Status,
		}
		if item.VariantID != nil {
			if v, ok := m.d.variants[*item.VariantID]; ok {
				sku, name := v.SKU, v.Name
				line.VariantSKU, line.VariantName = &sku, &name
				line.VariantPrice = v.Price
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (m *Memory) ClearCart(ctx context.Context, cartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("ClearCart"); err != nil {
		return err
	}
	for id, item := range m.d.items {
		if item.CartID == cartID {
			delete(m.d.items, id)
		}
	}
	return nil
}

// CartItemCount is a test helper returning the number of lines in a cart.
func (m *Memory) CartItemCount(cartID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, item := range m.d.items {
		if item.CartID == cartID {
			n++
		}
	}
	return n
}

// SetProductPrice is a test helper that changes a catalog price in place.
func (m *Memory) SetProductPrice(productID int64, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.d.products[productID]
	p.Price = mustDecimal(price)
	m.d.products[productID] = p
}

// SetProductStatus is a test helper that changes a product's status in place.
func (m *Memory) SetProductStatus(productID int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.d.products[productID]
	p.Status = strings.ToLower(status)
	m.d.products[productID] = p
}

// SetInventoryPolicy switches a product's stock tracking and backorder flags.
func (m *Memory) SetInventoryPolicy(productID int64, track, backorders bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.d.products[productID]
	p.TrackInventory, p.AllowBackorders = track, backorders
	m.d.products[productID] = p
}

// ProductStock is a test helper returning current stock.
func (m *Memory) ProductStock(productID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.products[productID].Stock
}

// VariantStock is a test helper returning current variant stock.
func (m *Memory) VariantStock(variantID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.variants[variantID].Stock
}

// OrderCount is a test helper returning the number of stored orders.
func (m *Memory) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.d.orders)
}

// CouponUsedCount is a test helper returning a coupon's used count.
func (m *Memory) CouponUsedCount(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.d.coupons {
		if c.Code == strings.ToUpper(code) {
			return c.UsedCount
		}
	}
	return -1
}

func sortedItems(items []models.OrderItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}
