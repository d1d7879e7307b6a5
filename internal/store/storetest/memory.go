// Package storetest provides an in-memory store.DB for service and handler tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
)

type data struct {
	seq           int64
	users         map[int64]models.User
	tokens        map[string]models.AuthToken
	profiles      map[int64]models.UserProfile
	categories    map[int64]models.Category
	brands        map[int64]models.Brand
	products      map[int64]models.Product
	images        map[int64]models.ProductImage
	attributes    map[int64]models.ProductAttribute
	values        map[int64]models.ProductAttributeValue
	variants      map[int64]models.ProductVariant
	variantValues map[int64][]int64
	reviews       map[int64]models.ProductReview
	wishlist      map[int64]map[int64]time.Time
	carts         map[int64]models.Cart
	items         map[int64]models.CartItem
	coupons       map[int64]models.Coupon
	orders        map[int64]models.Order
	orderItems    map[int64]models.OrderItem
	events        map[string]string
}

func newData() *data {
	return &data{
		users:         map[int64]models.User{},
		tokens:        map[string]models.AuthToken{},
		profiles:      map[int64]models.UserProfile{},
		categories:    map[int64]models.Category{},
		brands:        map[int64]models.Brand{},
		products:      map[int64]models.Product{},
		images:        map[int64]models.ProductImage{},
		attributes:    map[int64]models.ProductAttribute{},
		values:        map[int64]models.ProductAttributeValue{},
		variants:      map[int64]models.ProductVariant{},
		variantValues: map[int64][]int64{},
		reviews:       map[int64]models.ProductReview{},
		wishlist:      map[int64]map[int64]time.Time{},
		carts:         map[int64]models.Cart{},
		items:         map[int64]models.CartItem{},
		coupons:       map[int64]models.Coupon{},
		orders:        map[int64]models.Order{},
		orderItems:    map[int64]models.OrderItem{},
		events:        map[string]string{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *data) clone() *data {
	c := &data{
		seq:           d.seq,
		users:         copyMap(d.users),
		tokens:        copyMap(d.tokens),
		profiles:      copyMap(d.profiles),
		categories:    copyMap(d.categories),
		brands:        copyMap(d.brands),
		products:      copyMap(d.products),
		images:        copyMap(d.images),
		attributes:    copyMap(d.attributes),
		values:        copyMap(d.values),
		variants:      copyMap(d.variants),
		variantValues: map[int64][]int64{},
		reviews:       copyMap(d.reviews),
		wishlist:      map[int64]map[int64]time.Time{},
		carts:         copyMap(d.carts),
		items:         copyMap(d.items),
		coupons:       copyMap(d.coupons),
		orders:        copyMap(d.orders),
		orderItems:    copyMap(d.orderItems),
		events:        copyMap(d.events),
	}
	for k, v := range d.variantValues {
		c.variantValues[k] = append([]int64(nil), v...)
	}
	for k, v := range d.wishlist {
		c.wishlist[k] = copyMap(v)
	}
	return c
}

type fault struct {
	onCall int
	err    error
}

// Memory implements store.DB on maps. WithTx snapshots the data and restores
// it when the callback fails, so rollbacks are observable in tests.
type Memory struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	d      *data
	faults map[string]fault
	calls  map[string]int
}

var _ store.DB = (*Memory)(nil)

func New() *Memory {
	return &Memory{d: newData(), faults: map[string]fault{}, calls: map[string]int{}}
}

// FailOn makes the onCall-th call (1-based) of the named method return err.
func (m *Memory) FailOn(method string, onCall int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[method] = fault{onCall: onCall, err: err}
	m.calls[method] = 0
}

// hit counts a call and returns the injected fault, if any. Callers hold mu.
func (m *Memory) hit(method string) error {
	m.calls[method]++
	if f, ok := m.faults[method]; ok && m.calls[method] == f.onCall {
		return f.err
	}
	return nil
}

func (m *Memory) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.d.clone()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.d = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) nextID() int64 {
	m.d.seq++
	return m.d.seq
}

func notFound(what string, key interface{}) error {
	return fmt.Errorf("%s %v: %w", what, key, store.ErrNotFound)
}

func conflict(what string, key interface{}) error {
	return fmt.Errorf("%s %v: %w", what, key, store.ErrConflict)
}

func (m *Memory) Exists(ctx context.Context, table, column, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := table + "." + column
	switch key {
	case "products.slug":
		for _, p := range m.d.products {
			if p.Slug == value {
				return true, nil
			}
		}
	case "products.sku":
		for _, p := range m.d.products {
			if p.SKU == value {
				return true, nil
			}
		}
	case "product_variants.sku":
		for _, v := range m.d.variants {
			if v.SKU == value {
				return true, nil
			}
		}
	case "categories.slug":
		for _, c := range m.d.categories {
			if c.Slug == value {
				return true, nil
			}
		}
	case "brands.slug":
		for _, b := range m.d.brands {
			if b.Slug == value {
				return true, nil
			}
		}
	case "product_attributes.slug":
		for _, a := range m.d.attributes {
			if a.Slug == value {
				return true, nil
			}
		}
	case "product_attribute_values.slug":
		for _, v := range m.d.values {
			if v.Slug == value {
				return true, nil
			}
		}
	case "orders.order_number":
		for _, o := range m.d.orders {
			if o.OrderNumber == value {
				return true, nil
			}
		}
	default:
		return false, fmt.Errorf("exists check not allowed on %s", key)
	}
	return false, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
