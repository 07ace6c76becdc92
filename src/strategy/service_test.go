package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avenor/src/bus"
	"avenor/src/heartbeat"
	"avenor/src/model"
)

type capturePublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (p *capturePublisher) Publish(topic string, v interface{}) error {
	if p.err != nil {
		return p.err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

// scriptedReceiver hands out queued envelopes one per call, then keeps
// timing out until the context is cancelled.
type scriptedReceiver struct {
	queue []bus.Envelope
}

func (r *scriptedReceiver) Receive(ctx context.Context, _ time.Duration) (*bus.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(r.queue) == 0 {
		return nil, nil
	}
	env := r.queue[0]
	r.queue = r.queue[1:]
	return &env, nil
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return payload
}

func newTestService(t *testing.T, pub *capturePublisher, sub Receiver) *Service {
	t.Helper()
	config := Config{OrderTimeout: 300 * time.Second}
	hb := heartbeat.NewEmitter("strategy", time.Hour, pub, nil)
	return New(config, pub, sub, BuyBelowThreshold(95.30, 100, false), time.Millisecond, hb, nil)
}

func TestBuyBelowThreshold(t *testing.T) {
	decide := BuyBelowThreshold(95.30, 100, true)

	order := decide(model.PriceUpdate{Symbol: "TLT", Price: 95.00})
	require.NotNil(t, order)
	assert.Equal(t, "TLT", order.Symbol)
	assert.Equal(t, TradeTypeBuyToOpen, order.TradeType)
	assert.Equal(t, 100, order.Quantity)
	assert.Equal(t, 95.00, order.Price)
	assert.Equal(t, model.StatusNew, order.Status)
	assert.True(t, order.IsTestTrade)
	_, err := uuid.Parse(order.IdempotencyKey)
	assert.NoError(t, err)

	// At or above the threshold: no trade.
	assert.Nil(t, decide(model.PriceUpdate{Symbol: "TLT", Price: 95.30}))
	assert.Nil(t, decide(model.PriceUpdate{Symbol: "TLT", Price: 95.75}))

	// Every order mints a fresh key.
	second := decide(model.PriceUpdate{Symbol: "TLT", Price: 95.00})
	require.NotNil(t, second)
	assert.NotEqual(t, order.IdempotencyKey, second.IdempotencyKey)
}

func TestHandlePricePublishesAndTracksOrder(t *testing.T) {
	pub := &capturePublisher{}
	svc := newTestService(t, pub, nil)

	price := mustJSON(t, model.PriceUpdate{Symbol: "TLT", Price: 95.00})
	require.NoError(t, svc.handlePrice(price))

	require.Len(t, pub.topics, 1)
	assert.Equal(t, model.TopicTradeOrderCreate, pub.topics[0])
	assert.Equal(t, 1, svc.PendingCount())

	var order model.TradeOrder
	require.NoError(t, json.Unmarshal(pub.payloads[0], &order))
	assert.Equal(t, model.StatusNew, order.Status)

	// Above the threshold nothing happens.
	quiet := mustJSON(t, model.PriceUpdate{Symbol: "TLT", Price: 95.50})
	require.NoError(t, svc.handlePrice(quiet))
	assert.Len(t, pub.topics, 1)
	assert.Equal(t, 1, svc.PendingCount())
}

func TestHandleConfirmationRemovesPendingOrder(t *testing.T) {
	pub := &capturePublisher{}
	svc := newTestService(t, pub, nil)

	require.NoError(t, svc.handlePrice(mustJSON(t, model.PriceUpdate{Symbol: "TLT", Price: 95.00})))
	require.Equal(t, 1, svc.PendingCount())

	var order model.TradeOrder
	require.NoError(t, json.Unmarshal(pub.payloads[0], &order))

	svc.handleConfirmation(mustJSON(t, model.TradeConfirmation{
		IdempotencyKey: order.IdempotencyKey,
		Status:         model.StatusFilled,
	}))
	assert.Zero(t, svc.PendingCount())
}

func TestHandleConfirmationUnknownOrderIsDiscarded(t *testing.T) {
	pub := &capturePublisher{}
	svc := newTestService(t, pub, nil)

	// Covers confirmations for orders a previous incarnation issued.
	svc.handleConfirmation(mustJSON(t, model.TradeConfirmation{
		IdempotencyKey: uuid.NewString(),
		Status:         model.StatusFilled,
	}))
	assert.Zero(t, svc.PendingCount())
}

func TestSweepTimeoutsAlertsExactlyOnce(t *testing.T) {
	pub := &capturePublisher{}
	svc := newTestService(t, pub, nil)

	sent := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return sent }

	require.NoError(t, svc.handlePrice(mustJSON(t, model.PriceUpdate{Symbol: "TLT", Price: 95.00})))
	require.Equal(t, 1, svc.PendingCount())

	var alerts []model.TradeOrder
	svc.onTimeout = func(order model.TradeOrder) { alerts = append(alerts, order) }

	// Not old enough yet.
	svc.now = func() time.Time { return sent.Add(299 * time.Second) }
	svc.sweepTimeouts()
	assert.Empty(t, alerts)
	assert.Equal(t, 1, svc.PendingCount())

	// Past the timeout: one alert, entry dropped.
	svc.now = func() time.Time { return sent.Add(301 * time.Second) }
	svc.sweepTimeouts()
	require.Len(t, alerts, 1)
	assert.Zero(t, svc.PendingCount())

	// Sweeping again must not alert a second time.
	svc.sweepTimeouts()
	assert.Len(t, alerts, 1)
}

func TestRunProcessesPriceThenConfirmation(t *testing.T) {
	pub := &capturePublisher{}
	sub := &scriptedReceiver{}
	svc := newTestService(t, pub, sub)

	sub.queue = append(sub.queue, bus.Envelope{
		Topic:   model.PriceTopic("TLT"),
		Payload: mustJSON(t, model.PriceUpdate{Symbol: "TLT", Price: 95.00}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.NoError(t, <-done)
	assert.Equal(t, 1, svc.PendingCount())

	var order model.TradeOrder
	require.NoError(t, json.Unmarshal(pub.payloads[len(pub.payloads)-1], &order))

	// Second run: the confirmation arrives and drains the pending set.
	sub.queue = append(sub.queue, bus.Envelope{
		Topic:   model.TopicTradeConfirmation,
		Payload: mustJSON(t, model.TradeConfirmation{IdempotencyKey: order.IdempotencyKey, Status: model.StatusFilled}),
	})

	ctx2, cancel2 := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel2()
	require.NoError(t, svc.Run(ctx2))
	assert.Zero(t, svc.PendingCount())
}

func TestRunReturnsTransportError(t *testing.T) {
	pub := &capturePublisher{}
	svc := newTestService(t, pub, failingReceiver{})

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
}

type failingReceiver struct{}

func (failingReceiver) Receive(context.Context, time.Duration) (*bus.Envelope, error) {
	return nil, errors.New("connection reset")
}
