package monitor

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Services          []string      `envconfig:"MONITOR_SERVICES" default:"market_data,strategy,execution"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"15s"`
	// StaleThreshold defaults to three heartbeat intervals when left zero.
	StaleThreshold time.Duration `envconfig:"STALE_THRESHOLD" default:"0s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	if config.StaleThreshold <= 0 {
		config.StaleThreshold = 3 * config.HeartbeatInterval
	}
	return config
}
