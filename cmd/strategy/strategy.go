package strategy

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"avenor/src/bus"
	"avenor/src/heartbeat"
	"avenor/src/model"
	"avenor/src/strategy"
)

type Strategy struct{}

// Start runs the strategy engine until a termination signal arrives.
func (s *Strategy) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	log := logrus.WithField("service", "strategy")
	log.Info("Starting strategy service")

	busConfig := bus.GetConfig()
	config := strategy.GetConfig()

	pub, err := bus.DialPublisher(ctx, busConfig.InboundURL, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	sub, err := bus.DialSubscriber(ctx, busConfig.OutboundURL, log,
		model.TopicPricePrefix,
		model.TopicTradeConfirmation,
	)
	if err != nil {
		return err
	}
	defer sub.Close()

	hb := heartbeat.NewEmitter("strategy", config.HeartbeatInterval, pub, log)
	decide := strategy.BuyBelowThreshold(config.BuyThreshold, config.OrderQuantity, config.TestMode)

	err = strategy.New(config, pub, sub, decide, busConfig.PollTimeout, hb, log).Run(ctx)
	log.Info("Strategy service stopped")
	return err
}
