package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"storefront/config"
	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// CheckoutService turns a user's cart into a price-locked order.
type CheckoutService struct {
	db        store.DB
	locker    Locker
	idem      IdempotencyStore
	publisher OrderEventPublisher
	cache     CatalogCache
	cfg       config.BusinessConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. Any of locker, idem,
// publisher and cache may be nil.
func NewCheckoutService(
	db store.DB,
	locker Locker,
	idem IdempotencyStore,
	publisher OrderEventPublisher,
	cache CatalogCache,
	cfg config.BusinessConfig,
) *CheckoutService {
	return &CheckoutService{
		db:        db,
		locker:    locker,
		idem:      idem,
		publisher: publisher,
		cache:     cache,
		cfg:       cfg,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

type CheckoutInput struct {
	Billing        models.Address  `json:"billing"`
	Shipping       *models.Address `json:"shipping"`
	SameAsBilling  bool            `json:"same_as_billing"`
	CouponCode     string          `json:"coupon_code"`
	Notes          string          `json:"notes"`
	IdempotencyKey string          `json:"-"`
}

// CheckoutResult carries the order and whether it was created by an earlier request.
type CheckoutResult struct {
	Order    *models.Order
	Replayed bool
}

// Totals is the price breakdown of an order.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals applies tax, shipping and discount to subtotal. The total never goes below zero.
func ComputeTotals(cfg config.BusinessConfig, subtotal, discount decimal.Decimal) Totals {
	subtotal = models.RoundMoney(subtotal)
	t := Totals{
		Subtotal: subtotal,
		Tax:      models.RoundMoney(subtotal.Mul(cfg.TaxRate)),
		Shipping: models.RoundMoney(cfg.ShippingFlat),
		Discount: models.RoundMoney(discount),
	}
	if cfg.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		t.Shipping = decimal.Zero
	}
	t.Total = t.Subtotal.Add(t.Tax).Add(t.Shipping).Sub(t.Discount)
	if t.Total.IsNegative() {
		t.Total = decimal.Zero
	}
	t.Total = models.RoundMoney(t.Total)
	return t
}

// maxIdempotencyKeyLen matches orders.idempotency_key.
const maxIdempotencyKeyLen = 100

func idempotencyCacheKey(userID int64, key string) string {
	return "checkout:" + strconv.FormatInt(userID, 10) + ":" + key
}

// Checkout commits the user's cart as a new order in one transaction.
func (s *CheckoutService) Checkout(ctx context.Context, user *models.User, in CheckoutInput) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout", attribute.Bool("checkout.idempotent", in.IdempotencyKey != ""))
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if user == nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if len(in.IdempotencyKey) > maxIdempotencyKeyLen {
		return nil, apperr.Validation("idempotency key must be at most %d characters", maxIdempotencyKeyLen)
	}

	if in.IdempotencyKey != "" {
		if order, err := s.replay(ctx, user.ID, in.IdempotencyKey); err != nil || order != nil {
			if err != nil {
				return nil, err
			}
			return &CheckoutResult{Order: order, Replayed: true}, nil
		}
	}

	shipping, err := s.addresses(&in)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("invalid_address").Inc()
		return nil, err
	}

	owner := models.CartOwner{UserID: &user.ID}
	cart, err := s.db.GetCart(ctx, owner)
	if errors.Is(err, store.ErrNotFound) {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperr.Validation("cart is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	release, err := s.lock(ctx, cart.ID)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("locked").Inc()
		return nil, err
	}
	defer release()

	order := &models.Order{
		UserID:        user.ID,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		Notes:         in.Notes,
	}
	order.SetBilling(in.Billing)
	order.SetShipping(shipping)
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		order.IdempotencyKey = &key
	}

	err = s.db.WithTx(ctx, func(r store.Repository) error {
		return s.commit(ctx, r, cart, order, in.CouponCode)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) && in.IdempotencyKey != "" {
			if existing, lookupErr := s.replay(ctx, user.ID, in.IdempotencyKey); lookupErr == nil && existing != nil {
				return &CheckoutResult{Order: existing, Replayed: true}, nil
			}
		}
		util.CheckoutFailedTotal.WithLabelValues(failureReason(err)).Inc()
		s.logger.Warn("Checkout failed", zap.Int64("user_id", user.ID), zap.Int64("cart_id", cart.ID), zap.Error(err))
		return nil, util.SpanError(span, err)
	}

	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	util.OrdersPlacedTotal.Inc()
	if order.CouponCode != nil {
		util.CouponRedemptionsTotal.Inc()
	}
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	s.afterCommit(ctx, order)
	return &CheckoutResult{Order: order}, nil
}

// addresses validates billing and resolves the shipping address.
func (s *CheckoutService) addresses(in *CheckoutInput) (models.Address, error) {
	if err := validateStruct(in.Billing); err != nil {
		return models.Address{}, prefixDetails(err, "billing")
	}
	if strings.TrimSpace(in.Billing.Email) == "" {
		return models.Address{}, apperr.ValidationDetails("invalid request",
			map[string]string{"billing.email": "this field is required"})
	}

	if in.SameAsBilling {
		return in.Billing, nil
	}
	if in.Shipping == nil {
		return models.Address{}, apperr.Validation("shipping address is required")
	}
	if err := validateStruct(*in.Shipping); err != nil {
		return models.Address{}, prefixDetails(err, "shipping")
	}
	return *in.Shipping, nil
}

func prefixDetails(err error, prefix string) error {
	e, ok := apperr.As(err)
	if !ok {
		return err
	}
	fields, ok := e.Details.(map[string]string)
	if !ok {
		return err
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[prefix+"."+k] = v
	}
	return apperr.ValidationDetails(e.Message, out)
}

// lock takes the per-cart checkout lock. Without a locker the database guard alone applies.
func (s *CheckoutService) lock(ctx context.Context, cartID int64) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	key := "checkout:cart:" + strconv.FormatInt(cartID, 10)
	token, ok, err := s.locker.AcquireLock(ctx, key, s.cfg.CheckoutLockTTL)
	if err != nil {
		s.logger.Warn("Checkout lock unavailable, continuing without it", zap.Int64("cart_id", cartID), zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, apperr.Conflict("a checkout for this cart is already in progress")
	}
	return func() {
		if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
			s.logger.Warn("Failed to release checkout lock", zap.Int64("cart_id", cartID), zap.Error(err))
		}
	}, nil
}

// commit runs inside the checkout transaction.
func (s *CheckoutService) commit(ctx context.Context, r store.Repository, cart *models.Cart, order *models.Order, couponCode string) error {
	lines, err := r.ListCartLines(ctx, cart.ID)
	if err != nil {
		return fmt.Errorf("failed to list cart lines: %w", err)
	}
	if len(lines) == 0 {
		return apperr.Validation("cart is empty")
	}
	for _, l := range lines {
		if l.ProductStatus != models.ProductStatusActive {
			return apperr.Unavailable("%s is no longer available", l.ProductName)
		}
	}
	_, subtotal := models.CartTotals(lines)

	discount := decimal.Zero
	var coupon *models.Coupon
	if code := strings.TrimSpace(couponCode); code != "" {
		coupon, err = r.GetCouponByCode(ctx, code)
		if err != nil {
			return notFoundAs(err, "invalid coupon code")
		}
		if discount, err = evaluateCoupon(coupon, subtotal, s.now()); err != nil {
			return err
		}
		normalized := coupon.Code
		order.CouponCode = &normalized
	}

	totals := ComputeTotals(s.cfg, subtotal, discount)
	order.Subtotal = totals.Subtotal
	order.TaxAmount = totals.Tax
	order.ShippingAmount = totals.Shipping
	order.DiscountAmount = totals.Discount
	order.TotalAmount = totals.Total

	order.OrderNumber, err = UniqueGenerated(ctx, NewOrderNumber, func(ctx context.Context, c string) (bool, error) {
		return r.Exists(ctx, "orders", "order_number", c)
	})
	if err != nil {
		return fmt.Errorf("failed to generate order number: %w", err)
	}
	if err := r.CreateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	order.Items = make([]models.OrderItem, 0, len(lines))
	for i := range lines {
		l := &lines[i]
		item := models.OrderItem{
			OrderID:     order.ID,
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			ProductSKU:  l.ProductSKU,
			Quantity:    l.Quantity,
			UnitPrice:   models.RoundMoney(l.UnitPrice()),
			TotalPrice:  models.RoundMoney(l.TotalPrice()),
		}
		if l.VariantSKU != nil {
			item.ProductSKU = *l.VariantSKU
		}
		if l.VariantName != nil && *l.VariantName != "" {
			item.ProductName = l.ProductName + " - " + *l.VariantName
		}
		taken, ok, err := r.DecrementStock(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
		if !ok {
			return apperr.Unavailable("insufficient stock for %s", l.ProductName)
		}
		item.StockTaken = taken
		if l.VariantID != nil {
			taken, ok, err := r.DecrementVariantStock(ctx, *l.VariantID, l.Quantity)
			if err != nil {
				return fmt.Errorf("failed to decrement variant stock: %w", err)
			}
			if !ok {
				return apperr.Unavailable("insufficient stock for %s", item.ProductName)
			}
			item.VariantStockTaken = taken
		}

		if err := r.CreateOrderItem(ctx, &item); err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	if coupon != nil {
		ok, err := r.IncrementCouponUsage(ctx, coupon.ID)
		if err != nil {
			return fmt.Errorf("failed to redeem coupon: %w", err)
		}
		if !ok {
			return apperr.Validation("coupon is expired or invalid")
		}
	}

	if err := r.ClearCart(ctx, cart.ID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// afterCommit runs the side effects of a placed order. None of them can undo it.
func (s *CheckoutService) afterCommit(ctx context.Context, order *models.Order) {
	if s.publisher != nil {
		items := make([]models.OrderItemData, 0, len(order.Items))
		for _, it := range order.Items {
			items = append(items, models.OrderItemData{
				ProductID: it.ProductID,
				VariantID: it.VariantID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
			})
		}
		event := &models.OrderPlacedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderPlaced,
				Timestamp: time.Now(),
			},
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
			Items:       items,
		}
		if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPlaced event", zap.String("order_number", order.OrderNumber), zap.Error(err))
		}
	}

	invalidateCatalog(ctx, s.cache, s.logger)

	if s.idem != nil && order.IdempotencyKey != nil {
		key := idempotencyCacheKey(order.UserID, *order.IdempotencyKey)
		if err := s.idem.SetIdempotencyKey(ctx, key, order.OrderNumber, s.cfg.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to cache idempotency key", zap.String("order_number", order.OrderNumber), zap.Error(err))
		}
	}
}

// replay returns the order an earlier request with the same key created, or nil.
func (s *CheckoutService) replay(ctx context.Context, userID int64, key string) (*models.Order, error) {
	var order *models.Order
	if s.idem != nil {
		number, ok, err := s.idem.GetIdempotencyKey(ctx, idempotencyCacheKey(userID, key))
		if err != nil {
			s.logger.Warn("Idempotency cache read failed", zap.Error(err))
		}
		if ok {
			if o, err := s.db.GetOrderByNumber(ctx, number); err == nil && o.UserID == userID {
				order = o
			}
		}
	}
	if order == nil {
		o, err := s.db.GetOrderByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		order = o
	}
	if order == nil {
		return nil, nil
	}

	items, err := s.db.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	order.Items = items
	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", key),
		zap.String("order_number", order.OrderNumber))
	return order, nil
}

func failureReason(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return "invalid"
	case apperr.KindUnavailable:
		return "out_of_stock"
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindConflict:
		return "conflict"
	default:
		return "db_error"
	}
}
