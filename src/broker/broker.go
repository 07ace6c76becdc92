package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"avenor/src/model"
)

// Broker submits an order and returns the terminal status string reported by
// the venue. Implementations must only return once the outcome is known;
// the execution service persists whatever status comes back.
type Broker interface {
	Fill(ctx context.Context, order model.TradeOrder) (string, error)
}

// Simulated is the stand-in venue: it waits a fixed latency and reports
// every order as filled.
type Simulated struct {
	Latency time.Duration
	Status  string

	log *logger.Entry
}

// NewSimulated creates a simulated broker that always fills.
func NewSimulated(latency time.Duration, log *logger.Entry) *Simulated {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}
	return &Simulated{Latency: latency, Status: model.StatusFilled, log: log}
}

// Fill waits out the configured latency and reports the fixed status.
func (b *Simulated) Fill(ctx context.Context, order model.TradeOrder) (string, error) {
	b.log.WithField("idempotency_key", order.IdempotencyKey).
		Info("Simulating trade submission to broker")

	if b.Latency > 0 {
		timer := time.NewTimer(b.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	b.log.WithField("status", b.Status).Info("Broker confirmed trade")
	return b.Status, nil
}

type fillResponse struct {
	Status string `json:"status"`
}

// HTTPBroker submits orders to a real venue gateway over HTTP.
type HTTPBroker struct {
	client *resty.Client
	log    *logger.Entry
}

// NewHTTPBroker creates a broker client for the gateway at baseURL.
func NewHTTPBroker(baseURL string, log *logger.Entry) *HTTPBroker {
	if log == nil {
		log = logger.NewEntry(logger.StandardLogger())
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)

	return &HTTPBroker{client: client, log: log}
}

// Fill posts the order to the gateway and returns the status it reports.
func (b *HTTPBroker) Fill(ctx context.Context, order model.TradeOrder) (string, error) {
	var result fillResponse

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(order).
		SetResult(&result).
		Post("/orders")

	if err != nil {
		b.log.WithError(err).Error("Broker request failed")
		return "", fmt.Errorf("submit order to broker: %w", err)
	}

	if resp.IsError() {
		b.log.WithField("status_code", resp.StatusCode()).Error("Broker returned an error")
		return "", fmt.Errorf("broker returned status %d", resp.StatusCode())
	}

	if result.Status == "" {
		return "", fmt.Errorf("broker response missing status")
	}

	b.log.WithFields(map[string]interface{}{
		"idempotency_key": order.IdempotencyKey,
		"status":          result.Status,
	}).Info("Broker confirmed trade")

	return result.Status, nil
}
