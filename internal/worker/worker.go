package worker

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"
)

// PaymentHandler applies payment outcomes to orders. Implemented by *service.OrderService.
type PaymentHandler interface {
	HandlePaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// OrderWorker consumes payment events and settles the matching orders
type OrderWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewOrderWorker creates a new order worker
func NewOrderWorker(consumer *broker.Consumer, payments PaymentHandler) *OrderWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentSucceeded(payments.HandlePaymentSucceeded)
	eventHandler.OnPaymentFailed(payments.HandlePaymentFailed)

	return &OrderWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled
func (w *OrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderWorker) Stop() error {
	w.logger.Info("Stopping order worker")
	return w.consumer.Close()
}

// PaymentPublisher is implemented by *broker.EventPublisher bound to the payment topic.
type PaymentPublisher interface {
	PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// PaymentSimulator stands in for a payment provider in local environments: it
// answers every placed order with a succeeded or failed payment event.
type PaymentSimulator struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	publisher    PaymentPublisher
	succeed      func() bool
	delay        time.Duration
	logger       *zap.Logger
}

// NewPaymentSimulator creates a simulator that approves roughly successRate of all payments.
func NewPaymentSimulator(consumer *broker.Consumer, publisher PaymentPublisher, successRate float64) *PaymentSimulator {
	ps := &PaymentSimulator{
		consumer:  consumer,
		publisher: publisher,
		succeed:   func() bool { return rand.Float64() < successRate },
		delay:     time.Duration(100+rand.Intn(400)) * time.Millisecond,
		logger:    util.GetLogger(),
	}
	ps.eventHandler = broker.NewEventHandler()
	ps.eventHandler.OnOrderPlaced(ps.ProcessPayment)
	return ps
}

// Start blocks until ctx is cancelled
func (ps *PaymentSimulator) Start(ctx context.Context) error {
	ps.logger.Info("Starting payment simulator")
	return ps.consumer.StartConsuming(ctx, ps.eventHandler.HandleMessage)
}

// Stop stops the simulator
func (ps *PaymentSimulator) Stop() error {
	ps.logger.Info("Stopping payment simulator")
	return ps.consumer.Close()
}

// ProcessPayment decides the outcome for one order and publishes it.
func (ps *PaymentSimulator) ProcessPayment(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "PaymentSimulator.ProcessPayment")
	defer span.End()

	if ps.delay > 0 {
		select {
		case <-time.After(ps.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if ps.succeed() {
		txID := fmt.Sprintf("TXN-%s", uuid.New().String()[:8])
		ps.logger.Info("Payment succeeded",
			zap.String("order_number", event.OrderNumber),
			zap.String("tx_id", txID))
		return ps.publisher.PublishPaymentSucceeded(ctx, &models.PaymentSucceededEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentSucceeded,
				Timestamp: time.Now(),
			},
			OrderNumber: event.OrderNumber,
			Amount:      event.TotalAmount,
			TxID:        txID,
		})
	}

	ps.logger.Warn("Payment failed", zap.String("order_number", event.OrderNumber))
	return ps.publisher.PublishPaymentFailed(ctx, &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentFailed,
			Timestamp: time.Now(),
		},
		OrderNumber: event.OrderNumber,
		Reason:      "payment declined by provider",
	})
}
