package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

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

// pendingOrder tracks a published order until its confirmation arrives or
// its age exceeds the order timeout. Deliberately not persisted: orders left
// outstanding across a restart are reconciled by nobody.
type pendingOrder struct {
	order  model.TradeOrder
	sentAt time.Time
}

// Service turns price observations into trade orders and tracks each order
// through its two-state lifecycle: sent, then confirmed or timed out.
type Service struct {
	pub      Publisher
	sub      Receiver
	decide   DecisionFunc
	hb       *heartbeat.Emitter
	notifier supervisor.Notifier
	log      *logger.Entry

	pending      map[string]pendingOrder
	orderTimeout time.Duration
	pollTimeout  time.Duration

	now       func() time.Time
	onTimeout func(order model.TradeOrder)
}

// New wires the strategy engine.
func New(config Config, pub Publisher, sub Receiver, decide DecisionFunc, pollTimeout time.Duration, hb *heartbeat.Emitter, log *logger.Entry) *Service {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	s := &Service{
		pub:          pub,
		sub:          sub,
		decide:       decide,
		hb:           hb,
		notifier:     supervisor.Noop{},
		log:          log,
		pending:      make(map[string]pendingOrder),
		orderTimeout: config.OrderTimeout,
		pollTimeout:  pollTimeout,
		now:          time.Now,
	}
	s.onTimeout = s.logTimeoutAlert
	return s
}

func (s *Service) logTimeoutAlert(order model.TradeOrder) {
	s.log.WithFields(map[string]interface{}{
		"alert":           true,
		"idempotency_key": order.IdempotencyKey,
		"symbol":          order.Symbol,
		"timeout":         s.orderTimeout.String(),
	}).Error("ALERT: order pending without confirmation past timeout")
}

// Run processes prices and confirmations until the context is cancelled.
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
				s.log.Info("Strategy service stopping")
				return nil
			}
			s.log.WithError(err).Error("Bus receive failed")
			return err
		}

		if env != nil {
			if err := s.handleMessage(env); err != nil {
				return err
			}
		}

		s.sweepTimeouts()
	}
}

func (s *Service) handleMessage(env *bus.Envelope) error {
	switch {
	case strings.HasPrefix(env.Topic, model.TopicPricePrefix):
		return s.handlePrice(env.Payload)
	case strings.HasPrefix(env.Topic, model.TopicTradeConfirmation):
		s.handleConfirmation(env.Payload)
		return nil
	default:
		s.log.WithField("topic", env.Topic).Debug("Ignoring message on unexpected topic")
		return nil
	}
}

// handlePrice evaluates the decision function and, when it signals a trade,
// publishes the order and starts tracking it.
func (s *Service) handlePrice(payload []byte) error {
	var price model.PriceUpdate
	if err := json.Unmarshal(payload, &price); err != nil {
		s.log.WithError(err).Warn("Discarding malformed price update")
		return nil
	}

	s.log.WithFields(map[string]interface{}{
		"symbol": price.Symbol,
		"price":  price.Price,
	}).Info("Received price update")

	order := s.decide(price)
	if order == nil {
		return nil
	}

	s.log.WithFields(map[string]interface{}{
		"idempotency_key": order.IdempotencyKey,
		"symbol":          order.Symbol,
		"quantity":        order.Quantity,
	}).Info("Strategy condition met, publishing trade order")

	if err := s.pub.Publish(model.TopicTradeOrderCreate, order); err != nil {
		s.log.WithError(err).Error("Failed to publish trade order")
		return err
	}

	s.pending[order.IdempotencyKey] = pendingOrder{order: *order, sentAt: s.now()}
	return nil
}

// handleConfirmation closes out a tracked order. A confirmation for an
// unknown key is logged and discarded: it belongs to an order a previous
// incarnation of this process issued.
func (s *Service) handleConfirmation(payload []byte) {
	var confirmation model.TradeConfirmation
	if err := json.Unmarshal(payload, &confirmation); err != nil {
		s.log.WithError(err).Warn("Discarding malformed trade confirmation")
		return
	}

	key := confirmation.IdempotencyKey
	if _, ok := s.pending[key]; ok {
		delete(s.pending, key)
		s.log.WithFields(map[string]interface{}{
			"idempotency_key": key,
			"status":          confirmation.Status,
		}).Info("Matched confirmation for pending order")
		return
	}

	s.log.WithField("idempotency_key", key).
		Warn("Received confirmation for an unknown or already confirmed order")
}

// sweepTimeouts alerts once for every order older than the timeout and drops
// it. Timed-out orders are never retried or re-published.
func (s *Service) sweepTimeouts() {
	current := s.now()
	for key, po := range s.pending {
		if current.Sub(po.sentAt) > s.orderTimeout {
			s.onTimeout(po.order)
			delete(s.pending, key)
		}
	}
}

// PendingCount reports how many orders are awaiting confirmation.
func (s *Service) PendingCount() int {
	return len(s.pending)
}
