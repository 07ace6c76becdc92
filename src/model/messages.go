package model

import "time"

// Topic namespace of the message bus. Subscribers register prefixes, so
// PRICE. matches every instrument and HEARTBEAT. matches every service.
const (
	TopicPricePrefix       = "PRICE."
	TopicTradeOrderPrefix  = "TRADE_ORDER."
	TopicTradeOrderCreate  = "TRADE_ORDER.CREATE"
	TopicTradeConfirmation = "TRADE_CONFIRMATION"
	TopicHeartbeatPrefix   = "HEARTBEAT."
)

// PriceTopic returns the topic a price observation for symbol is tagged with.
func PriceTopic(symbol string) string {
	return TopicPricePrefix + symbol
}

// HeartbeatTopic returns the heartbeat topic for a service name, e.g.
// "market_data" -> "HEARTBEAT.MARKET_DATA".
func HeartbeatTopic(service string) string {
	topic := TopicHeartbeatPrefix
	for _, r := range service {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		topic += string(r)
	}
	return topic
}

// PriceUpdate is the payload published on PRICE.<symbol>.
type PriceUpdate struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	TimestampUTC float64 `json:"timestamp_utc"`
}

// TradeOrder is the payload published on TRADE_ORDER.CREATE. Price is kept as
// a JSON number on the wire; the execution service converts it to a fixed
// scale decimal at the persistence boundary.
type TradeOrder struct {
	IdempotencyKey string  `json:"idempotency_key"`
	Symbol         string  `json:"symbol"`
	TradeType      string  `json:"trade_type"`
	Quantity       int     `json:"quantity"`
	Price          float64 `json:"price,omitempty"`
	Status         string  `json:"status"`
	IsTestTrade    bool    `json:"is_test_trade"`
}

// TradeConfirmation is the payload published on TRADE_CONFIRMATION once the
// broker reports a terminal status.
type TradeConfirmation struct {
	IdempotencyKey string  `json:"idempotency_key"`
	Status         string  `json:"status"`
	TimestampUTC   float64 `json:"timestamp_utc"`
}

// Heartbeat is the payload published on HEARTBEAT.<SERVICE>.
type Heartbeat struct {
	Service      string  `json:"service"`
	TimestampUTC float64 `json:"timestamp_utc"`
	PID          int     `json:"pid"`
}

// UnixSeconds converts a time to the float epoch-seconds representation used
// in wire payloads.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
