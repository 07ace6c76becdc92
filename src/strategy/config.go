package strategy

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BuyThreshold      float64       `envconfig:"STRATEGY_BUY_THRESHOLD" default:"95.30"`
	OrderQuantity     int           `envconfig:"STRATEGY_ORDER_QUANTITY" default:"100"`
	OrderTimeout      time.Duration `envconfig:"ORDER_TIMEOUT" default:"300s"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"15s"`
	TestMode          bool          `envconfig:"TEST_MODE" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
