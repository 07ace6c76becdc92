package monitor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"avenor/src/bus"
	"avenor/src/model"
	"avenor/src/monitor"
)

type Monitor struct{}

// Start runs the health monitor until a termination signal arrives.
func (m *Monitor) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	log := logrus.WithField("service", "monitor")
	log.Info("Starting health monitor")

	busConfig := bus.GetConfig()
	config := monitor.GetConfig()

	sub, err := bus.DialSubscriber(ctx, busConfig.OutboundURL, log,
		model.TopicHeartbeatPrefix,
	)
	if err != nil {
		return err
	}
	defer sub.Close()

	err = monitor.New(config, sub, busConfig.PollTimeout, log).Run(ctx)
	log.Info("Health monitor stopped")
	return err
}
