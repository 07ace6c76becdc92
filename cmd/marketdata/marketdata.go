package marketdata

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"avenor/src/bus"
	"avenor/src/heartbeat"
	"avenor/src/marketdata"
)

type MarketData struct{}

// Start runs the market data publisher until a termination signal arrives.
func (m *MarketData) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	log := logrus.WithField("service", "market_data")
	log.Info("Starting market data service")

	busConfig := bus.GetConfig()
	config := marketdata.GetConfig()

	pub, err := bus.DialPublisher(ctx, busConfig.InboundURL, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	hb := heartbeat.NewEmitter("market_data", config.HeartbeatInterval, pub, log)

	err = marketdata.New(config, pub, hb, log).Run(ctx)
	log.Info("Market data service stopped")
	return err
}
