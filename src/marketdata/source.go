package marketdata

import (
	"math"
	"math/rand"
	"time"

	"avenor/src/model"
)

// PriceSource produces one price observation per tick. In production this
// would wrap a live feed; the bundled sources are simulation stand-ins.
type PriceSource interface {
	Next(now time.Time) model.PriceUpdate
}

// RandomWalk jitters around a base price within a fixed band. Prices are
// rounded to four decimal places before publication.
type RandomWalk struct {
	symbol       string
	basePrice    float64
	maxDeviation float64
	rng          *rand.Rand
}

// NewRandomWalk creates a bounded random walk source for symbol.
func NewRandomWalk(symbol string, basePrice, maxDeviation float64) *RandomWalk {
	return &RandomWalk{
		symbol:       symbol,
		basePrice:    basePrice,
		maxDeviation: maxDeviation,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *RandomWalk) Next(now time.Time) model.PriceUpdate {
	price := s.basePrice + (s.rng.Float64()*2-1)*s.maxDeviation
	return model.PriceUpdate{
		Symbol:       s.symbol,
		Price:        math.Round(price*1e4) / 1e4,
		TimestampUTC: model.UnixSeconds(now),
	}
}

// Fixed always reports the same price. Used in test mode, where the price is
// pinned low enough to trigger the strategy on every tick.
type Fixed struct {
	symbol string
	price  float64
}

// NewFixed creates a source pinned to price.
func NewFixed(symbol string, price float64) *Fixed {
	return &Fixed{symbol: symbol, price: price}
}

func (s *Fixed) Next(now time.Time) model.PriceUpdate {
	return model.PriceUpdate{
		Symbol:       s.symbol,
		Price:        s.price,
		TimestampUTC: model.UnixSeconds(now),
	}
}
