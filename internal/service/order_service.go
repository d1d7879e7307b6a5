package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// OrderService handles order reads, fulfillment transitions and payment outcomes
type OrderService struct {
	db        store.DB
	publisher OrderEventPublisher
	cache     CatalogCache
	logger    *zap.Logger
}

// NewOrderService creates a new order service. publisher and cache may be nil.
func NewOrderService(db store.DB, publisher OrderEventPublisher, cache CatalogCache) *OrderService {
	return &OrderService{
		db:        db,
		publisher: publisher,
		cache:     cache,
		logger:    util.GetLogger(),
	}
}

// ListOrders returns the user's orders, newest first, without items.
func (s *OrderService) ListOrders(ctx context.Context, user *models.User) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, err := s.db.ListOrdersByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetOrder returns one of the user's orders with its items. Other users' orders are not found.
func (s *OrderService) GetOrder(ctx context.Context, user *models.User, orderNumber string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.db.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, notFoundAs(err, "order not found")
	}
	if order.UserID != user.ID {
		return nil, apperr.NotFound("order not found")
	}

	items, err := s.db.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	order.Items = items
	return order, nil
}

// UpdateStatus moves an order along an allowed transition. Cancelling puts the
// stock and coupon use back, and refunds a paid order. Refunding marks the
// payment refunded.
func (s *OrderService) UpdateStatus(ctx context.Context, orderNumber, status, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	var order *models.Order
	var from string
	err := s.db.WithTx(ctx, func(r store.Repository) error {
		var err error
		order, err = r.GetOrderByNumber(ctx, orderNumber)
		if err != nil {
			return notFoundAs(err, "order not found")
		}
		from = order.Status
		if !models.CanTransition(from, status) {
			return apperr.Validation("cannot change order status from %s to %s", from, status)
		}

		paymentStatus := order.PaymentStatus
		switch status {
		case models.OrderStatusCancelled:
			if err := s.release(ctx, r, order); err != nil {
				return err
			}
			if paymentStatus == models.PaymentStatusPaid {
				paymentStatus = models.PaymentStatusRefunded
			}
		case models.OrderStatusRefunded:
			paymentStatus = models.PaymentStatusRefunded
		}

		if err := r.UpdateOrderStatus(ctx, order.ID, status, paymentStatus); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		order.Status, order.PaymentStatus = status, paymentStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(ctx, order, from, reason)
	return order, nil
}

// HandlePaymentSucceeded marks a pending order paid and starts processing it.
func (s *OrderService) HandlePaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	ctx, span := util.StartSpan(ctx, "OrderService.HandlePaymentSucceeded", attribute.String("order.number", event.OrderNumber))
	defer span.End()

	s.logger.Info("Handling PaymentSucceeded",
		zap.String("order_number", event.OrderNumber),
		zap.String("event_id", event.EventID))

	err := s.applyPayment(ctx, event.BaseEvent, event.OrderNumber, "succeeded", func(r store.Repository, order *models.Order) error {
		if !event.Amount.IsZero() && !event.Amount.Equal(order.TotalAmount) {
			s.logger.Warn("Payment amount differs from order total",
				zap.String("order_number", order.OrderNumber),
				zap.String("paid", event.Amount.String()),
				zap.String("total", order.TotalAmount.String()))
		}
		order.Status, order.PaymentStatus = models.OrderStatusProcessing, models.PaymentStatusPaid
		return nil
	}, "")
	return util.SpanError(span, err)
}

// HandlePaymentFailed cancels a pending order and restores its stock and coupon use.
func (s *OrderService) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "OrderService.HandlePaymentFailed", attribute.String("order.number", event.OrderNumber))
	defer span.End()

	s.logger.Info("Handling PaymentFailed",
		zap.String("order_number", event.OrderNumber),
		zap.String("event_id", event.EventID),
		zap.String("reason", event.Reason))

	err := s.applyPayment(ctx, event.BaseEvent, event.OrderNumber, "failed", func(r store.Repository, order *models.Order) error {
		if err := s.release(ctx, r, order); err != nil {
			return err
		}
		order.Status, order.PaymentStatus = models.OrderStatusCancelled, models.PaymentStatusFailed
		return nil
	}, event.Reason)
	return util.SpanError(span, err)
}

// applyPayment runs mutate on a pending order at most once per event id.
func (s *OrderService) applyPayment(
	ctx context.Context,
	base models.BaseEvent,
	orderNumber, outcome string,
	mutate func(store.Repository, *models.Order) error,
	reason string,
) error {
	var order *models.Order
	var from string
	applied := false

	err := s.db.WithTx(ctx, func(r store.Repository) error {
		processed, err := r.IsEventProcessed(ctx, base.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event: %w", err)
		}
		if processed {
			s.logger.Info("Event already processed, skipping", zap.String("event_id", base.EventID))
			return nil
		}

		order, err = r.GetOrderByNumber(ctx, orderNumber)
		if err != nil {
			return fmt.Errorf("failed to get order %s: %w", orderNumber, err)
		}
		from = order.Status

		if order.Status == models.OrderStatusPending && order.PaymentStatus == models.PaymentStatusPending {
			if err := mutate(r, order); err != nil {
				return err
			}
			if err := r.UpdateOrderStatus(ctx, order.ID, order.Status, order.PaymentStatus); err != nil {
				return fmt.Errorf("failed to update order status: %w", err)
			}
			applied = true
		} else {
			s.logger.Warn("Payment event for non-pending order ignored",
				zap.String("order_number", orderNumber),
				zap.String("status", order.Status),
				zap.String("payment_status", order.PaymentStatus))
		}

		return r.MarkEventProcessed(ctx, base.EventID, base.EventType)
	})
	if err != nil {
		return err
	}

	if applied {
		util.PaymentEventsTotal.WithLabelValues(outcome).Inc()
		s.transitioned(ctx, order, from, reason)
	}
	return nil
}

// release undoes what checkout consumed for a cancelled order: the stock each
// line actually took and the coupon use.
func (s *OrderService) release(ctx context.Context, r store.Repository, order *models.Order) error {
	if order.CouponCode != nil {
		if err := r.ReleaseCouponUsage(ctx, *order.CouponCode); err != nil {
			return fmt.Errorf("failed to release coupon %s: %w", *order.CouponCode, err)
		}
	}

	items, err := r.ListOrderItems(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to list order items: %w", err)
	}
	for _, it := range items {
		if it.StockTaken > 0 {
			if err := r.RestoreStock(ctx, it.ProductID, it.StockTaken); err != nil {
				return fmt.Errorf("failed to restore stock for product %d: %w", it.ProductID, err)
			}
		}
		if it.VariantID != nil && it.VariantStockTaken > 0 {
			if err := r.RestoreVariantStock(ctx, *it.VariantID, it.VariantStockTaken); err != nil {
				return fmt.Errorf("failed to restore stock for variant %d: %w", *it.VariantID, err)
			}
		}
	}
	return nil
}

// transitioned records metrics and publishes ORDER_STATUS_CHANGED for a committed transition.
func (s *OrderService) transitioned(ctx context.Context, order *models.Order, from, reason string) {
	util.OrderTransitionsTotal.WithLabelValues(order.Status).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", from),
		zap.String("to", order.Status))

	if order.Status == models.OrderStatusCancelled {
		invalidateCatalog(ctx, s.cache, s.logger)
	}
	if s.publisher == nil {
		return
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		From:          from,
		To:            order.Status,
		PaymentStatus: order.PaymentStatus,
		Reason:        reason,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
}
