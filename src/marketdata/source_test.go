package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomWalkStaysInBand(t *testing.T) {
	source := NewRandomWalk("TLT", 95.50, 0.25)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 1000; i++ {
		tick := source.Next(now)
		assert.Equal(t, "TLT", tick.Symbol)
		// Small tolerance for the 4-decimal rounding at the band edges.
		require.GreaterOrEqual(t, tick.Price, 95.25-0.0001)
		require.LessOrEqual(t, tick.Price, 95.75+0.0001)
	}
}

func TestRandomWalkSetsTimestamp(t *testing.T) {
	source := NewRandomWalk("TLT", 95.50, 0.25)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tick := source.Next(now)
	assert.InDelta(t, float64(now.Unix()), tick.TimestampUTC, 1)
}

func TestFixedSourcePinsPrice(t *testing.T) {
	source := NewFixed("TLT", 95.00)
	now := time.Now()

	for i := 0; i < 5; i++ {
		tick := source.Next(now)
		assert.Equal(t, 95.00, tick.Price)
		assert.Equal(t, "TLT", tick.Symbol)
	}
}

func TestNewSelectsSourceByTestMode(t *testing.T) {
	live := New(Config{Symbol: "TLT", BasePrice: 95.50, MaxDeviation: 0.25, TickInterval: time.Second}, nil, nil, nil)
	_, ok := live.source.(*RandomWalk)
	assert.True(t, ok, "production config should use the random walk")

	pinned := New(Config{Symbol: "TLT", TestPrice: 95.00, TestMode: true, TickInterval: time.Second}, nil, nil, nil)
	fixed, ok := pinned.source.(*Fixed)
	require.True(t, ok, "test mode should pin the price")
	assert.Equal(t, 95.00, fixed.price)
}
