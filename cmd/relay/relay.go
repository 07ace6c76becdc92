package relay

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"avenor/src/bus"
)

type Relay struct{}

// Start runs the relay until a termination signal arrives or a listener
// fails. The relay carries no state, so a transport failure simply ends the
// process for the supervisor to restart.
func (r *Relay) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	log := logrus.WithField("service", "relay")
	log.Info("Starting message bus relay")

	rly := bus.NewRelay(bus.GetRelayConfig(), log)
	if err := rly.Start(); err != nil {
		return err
	}

	err := rly.Run(ctx)
	log.Info("Relay stopped")
	return err
}
