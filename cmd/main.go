package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"avenor/cmd/execution"
	"avenor/cmd/marketdata"
	"avenor/cmd/monitor"
	"avenor/cmd/relay"
	"avenor/cmd/strategy"
)

var Version string

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()

	app := cli.NewApp()
	app.Name = "Avenor CMD"
	app.Usage = "The Avenor trading backend command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		relayCMD,
		marketDataCMD,
		strategyCMD,
		executionCMD,
		monitorCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	relayCMD = cli.Command{
		Name:        "relay",
		Usage:       "run the message bus relay",
		Action:      relayAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the central pub/sub relay every service connects to`,
	}
	marketDataCMD = cli.Command{
		Name:        "marketdata",
		Usage:       "run the market data publisher",
		Action:      marketDataAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Publish periodic price observations onto the bus`,
	}
	strategyCMD = cli.Command{
		Name:        "strategy",
		Usage:       "run the strategy engine",
		Action:      strategyAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Evaluate prices and publish trade orders`,
	}
	executionCMD = cli.Command{
		Name:        "execution",
		Usage:       "run the execution service",
		Action:      executionAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Persist and fill trade orders, publish confirmations`,
	}
	monitorCMD = cli.Command{
		Name:        "monitor",
		Usage:       "run the health monitor",
		Action:      monitorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Watch service heartbeats and alert on silence`,
	}
)

func relayAction(_ *cli.Context) error {
	logrus.Info("Starting relay CMD")

	r := &relay.Relay{}
	if err := r.Start(); err != nil {
		logrus.WithError(err).Error("Relay exited with error")
		return err
	}
	return nil
}

func marketDataAction(_ *cli.Context) error {
	logrus.Info("Starting market data CMD")

	m := &marketdata.MarketData{}
	if err := m.Start(); err != nil {
		logrus.WithError(err).Error("Market data service exited with error")
		return err
	}
	return nil
}

func strategyAction(_ *cli.Context) error {
	logrus.Info("Starting strategy CMD")

	s := &strategy.Strategy{}
	if err := s.Start(); err != nil {
		logrus.WithError(err).Error("Strategy service exited with error")
		return err
	}
	return nil
}

func executionAction(_ *cli.Context) error {
	logrus.Info("Starting execution CMD")

	e := &execution.Execution{}
	if err := e.Start(); err != nil {
		logrus.WithError(err).Error("Execution service exited with error")
		return err
	}
	return nil
}

func monitorAction(_ *cli.Context) error {
	logrus.Info("Starting monitor CMD")

	m := &monitor.Monitor{}
	if err := m.Start(); err != nil {
		logrus.WithError(err).Error("Health monitor exited with error")
		return err
	}
	return nil
}
