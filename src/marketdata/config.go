package marketdata

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Symbol            string        `envconfig:"MARKET_DATA_SYMBOL" default:"TLT"`
	TickInterval      time.Duration `envconfig:"MARKET_DATA_TICK_INTERVAL" default:"2s"`
	BasePrice         float64       `envconfig:"MARKET_DATA_BASE_PRICE" default:"95.50"`
	MaxDeviation      float64       `envconfig:"MARKET_DATA_MAX_DEVIATION" default:"0.25"`
	TestPrice         float64       `envconfig:"MARKET_DATA_TEST_PRICE" default:"95.00"`
	TestMode          bool          `envconfig:"TEST_MODE" default:"false"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
