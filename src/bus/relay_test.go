package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settleDelay = 200 * time.Millisecond

func startTestRelay(t *testing.T) (inboundURL, outboundURL string) {
	t.Helper()

	relay := NewRelay(RelayConfig{
		InboundAddr:  "127.0.0.1:0",
		OutboundAddr: "127.0.0.1:0",
	}, nil)
	require.NoError(t, relay.Start())
	t.Cleanup(relay.Close)

	return "ws://" + relay.InboundAddr() + "/publish",
		"ws://" + relay.OutboundAddr() + "/subscribe"
}

func receiveOne(t *testing.T, sub *Subscriber, timeout time.Duration) *Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		env, err := sub.Receive(context.Background(), 100*time.Millisecond)
		require.NoError(t, err)
		if env != nil {
			return env
		}
	}
	return nil
}

func TestRelayForwardsMatchingTopics(t *testing.T) {
	inboundURL, outboundURL := startTestRelay(t)
	ctx := context.Background()

	sub, err := DialSubscriber(ctx, outboundURL, nil, "PRICE.")
	require.NoError(t, err)
	defer sub.Close()

	pub, err := DialPublisher(ctx, inboundURL, nil)
	require.NoError(t, err)
	defer pub.Close()

	// Give the relay a beat to register the filter, the way the services
	// pause between connecting and publishing at startup.
	time.Sleep(settleDelay)

	payload := []byte(`{"symbol":"TLT","price":95.0,"timestamp_utc":1.0}`)
	require.NoError(t, pub.PublishRaw("PRICE.TLT", payload))

	env := receiveOne(t, sub, 2*time.Second)
	require.NotNil(t, env, "expected the published message to arrive")

	// Relay transparency: identical topic and payload bytes.
	assert.Equal(t, "PRICE.TLT", env.Topic)
	assert.Equal(t, payload, env.Payload)
}

func TestRelayFiltersNonMatchingTopics(t *testing.T) {
	inboundURL, outboundURL := startTestRelay(t)
	ctx := context.Background()

	sub, err := DialSubscriber(ctx, outboundURL, nil, "HEARTBEAT.")
	require.NoError(t, err)
	defer sub.Close()

	pub, err := DialPublisher(ctx, inboundURL, nil)
	require.NoError(t, err)
	defer pub.Close()

	time.Sleep(settleDelay)

	require.NoError(t, pub.PublishRaw("PRICE.TLT", []byte(`{}`)))
	require.NoError(t, pub.PublishRaw("HEARTBEAT.STRATEGY", []byte(`{"service":"strategy"}`)))

	env := receiveOne(t, sub, 2*time.Second)
	require.NotNil(t, env)
	assert.Equal(t, "HEARTBEAT.STRATEGY", env.Topic)

	// Nothing else should arrive: the price update did not match.
	extra, err := sub.Receive(ctx, 300*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, extra)
}

func TestRelayPreservesPublisherOrder(t *testing.T) {
	inboundURL, outboundURL := startTestRelay(t)
	ctx := context.Background()

	sub, err := DialSubscriber(ctx, outboundURL, nil, "PRICE.")
	require.NoError(t, err)
	defer sub.Close()

	pub, err := DialPublisher(ctx, inboundURL, nil)
	require.NoError(t, err)
	defer pub.Close()

	time.Sleep(settleDelay)

	const total = 100
	for i := 0; i < total; i++ {
		require.NoError(t, pub.Publish("PRICE.TLT", map[string]int{"seq": i}))
	}

	for i := 0; i < total; i++ {
		env := receiveOne(t, sub, 2*time.Second)
		require.NotNil(t, env, "message %d never arrived", i)

		var msg struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(env.Payload, &msg))
		require.Equal(t, i, msg.Seq, "messages arrived out of order")
	}
}

func TestRelayUnsubscribeStopsDelivery(t *testing.T) {
	inboundURL, outboundURL := startTestRelay(t)
	ctx := context.Background()

	sub, err := DialSubscriber(ctx, outboundURL, nil, "PRICE.")
	require.NoError(t, err)
	defer sub.Close()

	pub, err := DialPublisher(ctx, inboundURL, nil)
	require.NoError(t, err)
	defer pub.Close()

	time.Sleep(settleDelay)

	require.NoError(t, sub.Unsubscribe("PRICE."))
	time.Sleep(settleDelay)

	require.NoError(t, pub.PublishRaw("PRICE.TLT", []byte(`{}`)))

	env, err := sub.Receive(ctx, 300*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestRelayLateSubscriberMissesEarlierMessages(t *testing.T) {
	inboundURL, outboundURL := startTestRelay(t)
	ctx := context.Background()

	pub, err := DialPublisher(ctx, inboundURL, nil)
	require.NoError(t, err)
	defer pub.Close()

	time.Sleep(settleDelay)

	// Published before anyone subscribes: nobody receives it.
	require.NoError(t, pub.PublishRaw("PRICE.TLT", []byte(`{"seq":0}`)))

	sub, err := DialSubscriber(ctx, outboundURL, nil, "PRICE.")
	require.NoError(t, err)
	defer sub.Close()

	time.Sleep(settleDelay)

	require.NoError(t, pub.PublishRaw("PRICE.TLT", []byte(`{"seq":1}`)))

	env := receiveOne(t, sub, 2*time.Second)
	require.NotNil(t, env)
	assert.JSONEq(t, `{"seq":1}`, string(env.Payload))
}

func TestRelayFanOutToMultipleSubscribers(t *testing.T) {
	inboundURL, outboundURL := startTestRelay(t)
	ctx := context.Background()

	subs := make([]*Subscriber, 0, 3)
	for i := 0; i < 3; i++ {
		sub, err := DialSubscriber(ctx, outboundURL, nil, "TRADE_")
		require.NoError(t, err)
		defer sub.Close()
		subs = append(subs, sub)
	}

	pub, err := DialPublisher(ctx, inboundURL, nil)
	require.NoError(t, err)
	defer pub.Close()

	time.Sleep(settleDelay)

	require.NoError(t, pub.PublishRaw("TRADE_CONFIRMATION", []byte(`{"status":"FILLED"}`)))

	for i, sub := range subs {
		env := receiveOne(t, sub, 2*time.Second)
		require.NotNil(t, env, fmt.Sprintf("subscriber %d missed the broadcast", i))
		assert.Equal(t, "TRADE_CONFIRMATION", env.Topic)
	}
}
