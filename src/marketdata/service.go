package marketdata

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"avenor/src/heartbeat"
	"avenor/src/model"
	"avenor/src/supervisor"
)

// Publisher is the slice of the bus client this service needs.
type Publisher interface {
	Publish(topic string, v interface{}) error
}

// Service publishes one price observation per tick plus its own heartbeat.
type Service struct {
	config   Config
	pub      Publisher
	source   PriceSource
	hb       *heartbeat.Emitter
	notifier supervisor.Notifier
	log      *logger.Entry
	now      func() time.Time
}

// New wires the market data service. When cfg.TestMode is set the price is
// pinned to cfg.TestPrice so downstream services trigger deterministically.
func New(config Config, pub Publisher, hb *heartbeat.Emitter, log *logger.Entry) *Service {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	var source PriceSource
	if config.TestMode {
		source = NewFixed(config.Symbol, config.TestPrice)
	} else {
		source = NewRandomWalk(config.Symbol, config.BasePrice, config.MaxDeviation)
	}

	return &Service{
		config:   config,
		pub:      pub,
		source:   source,
		hb:       hb,
		notifier: supervisor.Noop{},
		log:      log,
		now:      time.Now,
	}
}

// Run publishes prices until the context is cancelled. Transport errors are
// returned; there is nothing to retry from inside the process.
func (s *Service) Run(ctx context.Context) error {
	s.notifier.Ready()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Market data service stopping")
			return nil

		case <-ticker.C:
			s.notifier.Watchdog()

			if err := s.hb.EmitIfDue(); err != nil {
				s.log.WithError(err).Error("Failed to publish heartbeat")
				return err
			}

			tick := s.source.Next(s.now())
			if err := s.pub.Publish(model.PriceTopic(tick.Symbol), tick); err != nil {
				s.log.WithError(err).Error("Failed to publish price update")
				return err
			}

			s.log.WithFields(map[string]interface{}{
				"symbol": tick.Symbol,
				"price":  tick.Price,
			}).Info("Published price update")
		}
	}
}
