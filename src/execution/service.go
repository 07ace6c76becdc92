package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"avenor/src/broker"
	"avenor/src/bus"
	"avenor/src/heartbeat"
	"avenor/src/model"
	"avenor/src/supervisor"
)

// Publisher is the slice of the bus client this service needs.
type Publisher interface {
	Publish(topic string, v interface{}) error
}

// Receiver performs the bounded wait for the next bus message.
type Receiver interface {
	Receive(ctx context.Context, timeout time.Duration) (*bus.Envelope, error)
}

// Store is the durable trade store as the execution service sees it.
type Store interface {
	Record(ctx context.Context, trade *model.Trade) (bool, error)
	UpdateStatus(ctx context.Context, idempotencyKey, status string) (bool, error)
	FindPending(ctx context.Context) ([]model.Trade, error)
}

// Service consumes trade orders, walks each through the safe lifecycle
// (record PENDING, submit to broker, record the terminal status) and
// publishes a confirmation. Duplicate delivery of an order is absorbed by
// the store's idempotency key, never by inspecting prior state.
type Service struct {
	store    Store
	brk      broker.Broker
	pub      Publisher
	sub      Receiver
	hb       *heartbeat.Emitter
	notifier supervisor.Notifier
	log      *logger.Entry

	pollTimeout time.Duration
	now         func() time.Time
}

// New wires the execution service.
func New(store Store, brk broker.Broker, pub Publisher, sub Receiver, pollTimeout time.Duration, hb *heartbeat.Emitter, log *logger.Entry) *Service {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	return &Service{
		store:       store,
		brk:         brk,
		pub:         pub,
		sub:         sub,
		hb:          hb,
		notifier:    supervisor.Noop{},
		log:         log,
		pollTimeout: pollTimeout,
		now:         time.Now,
	}
}

// Recover resolves trades orphaned in PENDING by a previous crash. A PENDING
// record surviving restart means the prior process died between submitting
// to the broker and recording the outcome; with the simulated broker there
// is no authority to re-query, so each is marked FAILED_RECOVERED. A real
// broker integration must replace this with an authoritative status query.
//
// Recover must run before the service accepts any message, and any store
// error here is fatal for startup.
func (s *Service) Recover(ctx context.Context) error {
	pending, err := s.store.FindPending(ctx)
	if err != nil {
		return fmt.Errorf("recovery: fetch pending trades: %w", err)
	}

	if len(pending) == 0 {
		s.log.Info("No pending trades found")
		return nil
	}

	s.log.WithField("count", len(pending)).
		Warn("RECOVERY MODE: resolving trades left pending by a previous run")

	for _, trade := range pending {
		s.log.WithField("idempotency_key", trade.IdempotencyKey).
			Info("Recovering pending trade as FAILED_RECOVERED")

		if _, err := s.store.UpdateStatus(ctx, trade.IdempotencyKey, model.StatusFailedRecovered); err != nil {
			return fmt.Errorf("recovery: resolve trade %s: %w", trade.IdempotencyKey, err)
		}
	}

	return nil
}

// Run processes trade orders until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.notifier.Ready()

	for {
		s.notifier.Watchdog()

		if err := s.hb.EmitIfDue(); err != nil {
			s.log.WithError(err).Error("Failed to publish heartbeat")
			return err
		}

		env, err := s.sub.Receive(ctx, s.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.log.Info("Execution service stopping")
				return nil
			}
			s.log.WithError(err).Error("Bus receive failed")
			return err
		}

		if env == nil {
			continue
		}

		if !strings.HasPrefix(env.Topic, model.TopicTradeOrderPrefix) {
			s.log.WithField("topic", env.Topic).Debug("Ignoring message on unexpected topic")
			continue
		}

		if err := s.handleOrder(ctx, env.Topic, env.Payload); err != nil {
			return err
		}
	}
}

// handleOrder runs one order through the lifecycle. Persistence errors are
// fatal for this message only: they are logged, the message is not retried,
// and a trade stuck in PENDING is resolved by the next startup's recovery
// sweep. Only transport errors are returned.
func (s *Service) handleOrder(ctx context.Context, topic string, payload []byte) error {
	var order model.TradeOrder
	if err := json.Unmarshal(payload, &order); err != nil {
		s.log.WithError(err).Warn("Discarding malformed trade order")
		return nil
	}

	log := s.log.WithFields(map[string]interface{}{
		"topic":           topic,
		"idempotency_key": order.IdempotencyKey,
		"symbol":          order.Symbol,
	})
	log.Info("Received trade order")

	// Record the intent to trade before touching the broker.
	trade := &model.Trade{
		IdempotencyKey: order.IdempotencyKey,
		Symbol:         order.Symbol,
		TradeType:      order.TradeType,
		Quantity:       order.Quantity,
		Status:         model.StatusPending,
		IsTestTrade:    order.IsTestTrade,
	}
	if order.Price != 0 {
		trade.Price = decimal.NewNullDecimal(decimal.NewFromFloat(order.Price))
	}

	recorded, err := s.store.Record(ctx, trade)
	if err != nil {
		log.WithError(err).Error("Failed to record trade, discarding order")
		return nil
	}
	if !recorded {
		// Duplicate delivery. The confirmation already published for the
		// first attempt stands; publishing another would double-confirm.
		log.Warn("IGNORED: duplicate trade order")
		return nil
	}

	status, err := s.brk.Fill(ctx, order)
	if err != nil {
		log.WithError(err).Error("Broker fill failed, trade stays PENDING until next recovery")
		return nil
	}

	if _, err := s.store.UpdateStatus(ctx, order.IdempotencyKey, status); err != nil {
		log.WithError(err).Error("Failed to record final status, trade stays PENDING until next recovery")
		return nil
	}

	confirmation := model.TradeConfirmation{
		IdempotencyKey: order.IdempotencyKey,
		Status:         status,
		TimestampUTC:   model.UnixSeconds(s.now()),
	}
	if err := s.pub.Publish(model.TopicTradeConfirmation, confirmation); err != nil {
		log.WithError(err).Error("Failed to publish trade confirmation")
		return err
	}

	log.WithField("status", status).Info("Published trade confirmation")
	return nil
}
