package strategy

import (
	"github.com/google/uuid"

	"avenor/src/model"
)

const TradeTypeBuyToOpen = "BUY_TO_OPEN"

// DecisionFunc evaluates one price observation and returns the order to
// place, or nil when no trade is warranted. Each returned order carries a
// freshly minted idempotency key.
type DecisionFunc func(price model.PriceUpdate) *model.TradeOrder

// BuyBelowThreshold is the reference decision function: buy a fixed quantity
// whenever the observed price drops below the threshold.
func BuyBelowThreshold(threshold float64, quantity int, testTrade bool) DecisionFunc {
	return func(price model.PriceUpdate) *model.TradeOrder {
		if price.Price >= threshold {
			return nil
		}
		return &model.TradeOrder{
			IdempotencyKey: uuid.NewString(),
			Symbol:         price.Symbol,
			TradeType:      TradeTypeBuyToOpen,
			Quantity:       quantity,
			Price:          price.Price,
			Status:         model.StatusNew,
			IsTestTrade:    testTrade,
		}
	}
}
