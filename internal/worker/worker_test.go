package worker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/internal/models"
)

type recordingPublisher struct {
	succeeded []*models.PaymentSucceededEvent
	failed    []*models.PaymentFailedEvent
}

func (p *recordingPublisher) PublishPaymentSucceeded(ctx context.Context, e *models.PaymentSucceededEvent) error {
	p.succeeded = append(p.succeeded, e)
	return nil
}

func (p *recordingPublisher) PublishPaymentFailed(ctx context.Context, e *models.PaymentFailedEvent) error {
	p.failed = append(p.failed, e)
	return nil
}

func newSimulator(pub PaymentPublisher, ok bool) *PaymentSimulator {
	return &PaymentSimulator{
		publisher: pub,
		succeed:   func() bool { return ok },
		logger:    zap.NewNop(),
	}
}

func TestPaymentSimulatorApproves(t *testing.T) {
	pub := &recordingPublisher{}
	ps := newSimulator(pub, true)

	err := ps.ProcessPayment(context.Background(), &models.OrderPlacedEvent{
		OrderNumber: "ORD-AAAAAAAAAA",
		TotalAmount: decimal.RequireFromString("95.00"),
	})
	require.NoError(t, err)

	require.Len(t, pub.succeeded, 1)
	assert.Empty(t, pub.failed)
	e := pub.succeeded[0]
	assert.Equal(t, models.EventTypePaymentSucceeded, e.EventType)
	assert.Equal(t, "ORD-AAAAAAAAAA", e.OrderNumber)
	assert.True(t, e.Amount.Equal(decimal.RequireFromString("95")))
	assert.Regexp(t, `^TXN-[0-9a-f]{8}$`, e.TxID)
	assert.NotEmpty(t, e.EventID)
}

func TestPaymentSimulatorDeclines(t *testing.T) {
	pub := &recordingPublisher{}
	ps := newSimulator(pub, false)

	require.NoError(t, ps.ProcessPayment(context.Background(), &models.OrderPlacedEvent{OrderNumber: "ORD-BBBBBBBBBB"}))

	assert.Empty(t, pub.succeeded)
	require.Len(t, pub.failed, 1)
	assert.Equal(t, "ORD-BBBBBBBBBB", pub.failed[0].OrderNumber)
	assert.Equal(t, models.EventTypePaymentFailed, pub.failed[0].EventType)
}

func TestPaymentSimulatorHonoursCancellation(t *testing.T) {
	pub := &recordingPublisher{}
	ps := newSimulator(pub, true)
	ps.delay = 1 << 40

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ps.ProcessPayment(ctx, &models.OrderPlacedEvent{OrderNumber: "ORD-C"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.succeeded)
}
