package bus

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the client-side bus settings shared by every service.
type Config struct {
	InboundURL  string        `envconfig:"BUS_INBOUND_URL" default:"ws://127.0.0.1:5559/publish"`
	OutboundURL string        `envconfig:"BUS_OUTBOUND_URL" default:"ws://127.0.0.1:5560/subscribe"`
	PollTimeout time.Duration `envconfig:"BUS_POLL_TIMEOUT" default:"1s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// RelayConfig holds the two bind addresses of the relay: publishers connect
// to the inbound side, subscribers to the outbound side.
type RelayConfig struct {
	InboundAddr  string `envconfig:"RELAY_INBOUND_ADDR" default:"127.0.0.1:5559"`
	OutboundAddr string `envconfig:"RELAY_OUTBOUND_ADDR" default:"127.0.0.1:5560"`
}

func GetRelayConfig() RelayConfig {
	var config RelayConfig
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
