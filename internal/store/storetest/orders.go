package storetest

import (
	"context"
	"sort"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (m *Memory) CreateOrder(ctx context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("CreateOrder"); err != nil {
		return err
	}
	for _, existing := range m.d.orders {
		if existing.OrderNumber == o.OrderNumber {
			return conflict("order", o.OrderNumber)
		}
		if o.IdempotencyKey != nil && existing.IdempotencyKey != nil &&
			existing.UserID == o.UserID && *existing.IdempotencyKey == *o.IdempotencyKey {
			return conflict("order idempotency key", *o.IdempotencyKey)
		}
	}
	o.ID = m.nextID()
	o.CreatedAt, o.UpdatedAt = time.Now(), time.Now()
	stored := *o
	stored.Items = nil
	m.d.orders[o.ID] = stored
	return nil
}

func (m *Memory) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("CreateOrderItem"); err != nil {
		return err
	}
	item.ID = m.nextID()
	m.d.orderItems[item.ID] = *item
	return nil
}

func (m *Memory) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.d.orders {
		if o.OrderNumber == orderNumber {
			return &o, nil
		}
	}
	return nil, notFound("order", orderNumber)
}

func (m *Memory) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.d.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.d.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.OrderItem{}
	for _, item := range m.d.orderItems {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	sortedItems(out)
	return out, nil
}

func (m *Memory) UpdateOrderStatus(ctx context.Context, orderID int64, status, paymentStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("UpdateOrderStatus"); err != nil {
		return err
	}
	o, ok := m.d.orders[orderID]
	if !ok {
		return notFound("order", orderID)
	}
	o.Status, o.PaymentStatus, o.UpdatedAt = status, paymentStatus, time.Now()
	m.d.orders[orderID] = o
	return nil
}

// take removes up to qty from stock and reports how much was removed.
func take(stock *int, qty int) int {
	n := qty
	if *stock < n {
		n = *stock
	}
	*stock -= n
	return n
}

func (m *Memory) DecrementStock(ctx context.Context, productID int64, qty int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("DecrementStock"); err != nil {
		return 0, false, err
	}
	p, ok := m.d.products[productID]
	if !ok || !p.CanFulfill(qty) {
		return 0, false, nil
	}
	if !p.TrackInventory {
		return 0, true, nil
	}
	n := take(&p.Stock, qty)
	p.UpdatedAt = time.Now()
	m.d.products[productID] = p
	return n, true, nil
}

func (m *Memory) DecrementVariantStock(ctx context.Context, variantID int64, qty int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("DecrementVariantStock"); err != nil {
		return 0, false, err
	}
	v, ok := m.d.variants[variantID]
	if !ok {
		return 0, false, nil
	}
	parent := m.d.products[v.ProductID]
	if !v.CanFulfill(&parent, qty) {
		return 0, false, nil
	}
	if !parent.TrackInventory {
		return 0, true, nil
	}
	n := take(&v.Stock, qty)
	m.d.variants[variantID] = v
	return n, true, nil
}

func (m *Memory) RestoreStock(ctx context.Context, productID int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.d.products[productID]; ok && p.TrackInventory {
		p.Stock += qty
		m.d.products[productID] = p
	}
	return nil
}

func (m *Memory) RestoreVariantStock(ctx context.Context, variantID int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.d.variants[variantID]
	if !ok {
		return nil
	}
	if m.d.products[v.ProductID].TrackInventory {
		v.Stock += qty
		m.d.variants[variantID] = v
	}
	return nil
}

func (m *Memory) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.d.events[eventID]
	return ok, nil
}

func (m *Memory) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.events[eventID] = eventType
	return nil
}

func (m *Memory) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.d.coupons {
		if c.Code == strings.ToUpper(code) {
			return &c, nil
		}
	}
	return nil, notFound("coupon", code)
}

func (m *Memory) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.d.coupons {
		if existing.Code == c.Code {
			return conflict("coupon", c.Code)
		}
	}
	c.ID = m.nextID()
	c.CreatedAt = time.Now()
	m.d.coupons[c.ID] = *c
	return nil
}

func (m *Memory) IncrementCouponUsage(ctx context.Context, couponID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("IncrementCouponUsage"); err != nil {
		return false, err
	}
	c, ok := m.d.coupons[couponID]
	if !ok || (c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit) {
		return false, nil
	}
	c.UsedCount++
	m.d.coupons[couponID] = c
	return true, nil
}

func (m *Memory) ReleaseCouponUsage(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit("ReleaseCouponUsage"); err != nil {
		return err
	}
	for id, c := range m.d.coupons {
		if strings.EqualFold(c.Code, strings.TrimSpace(code)) {
			if c.UsedCount > 0 {
				c.UsedCount--
			}
			m.d.coupons[id] = c
		}
	}
	return nil
}
