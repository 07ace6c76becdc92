package execution

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"avenor/src/broker"
	"avenor/src/bus"
	"avenor/src/database"
	"avenor/src/execution"
	"avenor/src/heartbeat"
	"avenor/src/model"
	"avenor/src/repository"
)

type Execution struct{}

// Start runs the execution service until a termination signal arrives. The
// trade store must be reachable and the recovery sweep must complete before
// any order is processed; either failing aborts startup.
func (e *Execution) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	log := logrus.WithField("service", "execution")
	log.Info("Starting execution service")

	busConfig := bus.GetConfig()
	config := execution.GetConfig()

	db, err := database.Connect(database.GetConfig())
	if err != nil {
		log.WithError(err).Error("FATAL: could not initialize trade store")
		return err
	}
	defer database.Close(db)

	repo := repository.NewTradeRepository(db)

	var brk broker.Broker = broker.NewSimulated(config.FillLatency, log)
	if config.BrokerURL != "" {
		brk = broker.NewHTTPBroker(config.BrokerURL, log)
	}

	pub, err := bus.DialPublisher(ctx, busConfig.InboundURL, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	sub, err := bus.DialSubscriber(ctx, busConfig.OutboundURL, log,
		model.TopicTradeOrderPrefix,
	)
	if err != nil {
		return err
	}
	defer sub.Close()

	hb := heartbeat.NewEmitter("execution", config.HeartbeatInterval, pub, log)
	svc := execution.New(repo, brk, pub, sub, busConfig.PollTimeout, hb, log)

	if err := svc.Recover(ctx); err != nil {
		log.WithError(err).Error("FATAL: recovery sweep failed")
		return err
	}

	err = svc.Run(ctx)
	log.Info("Execution service stopped")
	return err
}
