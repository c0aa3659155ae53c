package settlement

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotex/pkg/app/core/market"
	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
)

// SubmitRequest is an authenticated order submission
type SubmitRequest struct {
	Owner  common.Address
	Side   orderbook.Side
	Pair   market.Pair
	Amount decimal.Decimal
	Price  decimal.Decimal
}

// validate checks a submission before any state is touched
func (c *Coordinator) validate(req SubmitRequest) *Rejection {
	if req.Owner == (common.Address{}) {
		return invalid("owner is required")
	}
	if !req.Side.Valid() {
		return invalid("unknown side %d", req.Side)
	}
	if req.Pair.Base == req.Pair.Quote {
		return invalid("pair %s: base and quote must differ", req.Pair)
	}
	m, err := c.markets.Market(req.Pair)
	if err != nil {
		return invalid("%v", err)
	}
	if m.Status != market.Active {
		return invalid("pair %s is %s", m.Symbol, m.Status)
	}
	if rej := CheckAmount("amount", req.Amount); rej != nil {
		return rej
	}
	if rej := CheckAmount("price", req.Price); rej != nil {
		return rej
	}
	if !req.Price.LessThan(orderbook.MaxPrice) {
		return invalid("price %s must be below %s", req.Price, orderbook.MaxPrice)
	}
	return nil
}

// CheckAmount rejects non-positive values and values finer than
// orderbook.PriceDecimals
func CheckAmount(name string, v decimal.Decimal) *Rejection {
	if !v.IsPositive() {
		return invalid("%s must be positive, got %s", name, v)
	}
	if !v.Equal(v.Truncate(orderbook.PriceDecimals)) {
		return invalid("%s %s has more than %d decimal places", name, v, orderbook.PriceDecimals)
	}
	return nil
}
