// Package matching decides which resting orders a new order trades against.
// It is pure: it reads order snapshots and returns a plan, leaving every
// balance and record change to settlement.
package matching

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
)

// Fill is one execution between the taker and a resting maker
type Fill struct {
	Maker  *orderbook.Order
	Amount decimal.Decimal // base currency
	Price  decimal.Decimal // always the maker's price
}

// Notional returns the quote amount exchanged by the fill
func (f Fill) Notional() decimal.Decimal {
	return f.Amount.Mul(f.Price)
}

// Plan is the outcome of matching one taker
type Plan struct {
	Fills     []Fill
	Remaining decimal.Decimal // taker amount left unfilled
}

// Filled returns the total base amount the plan executes
func (p Plan) Filled() decimal.Decimal {
	total := decimal.Zero
	for _, f := range p.Fills {
		total = total.Add(f.Amount)
	}
	return total
}

// Match walks makers in the given priority order and fills the taker until
// it is exhausted or the next maker no longer crosses. Makers on the same
// side as the taker, or that are not open, are skipped.
func Match(taker *orderbook.Order, makers []*orderbook.Order) Plan {
	plan := Plan{Remaining: taker.Remaining}
	for _, m := range makers {
		if !plan.Remaining.IsPositive() {
			break
		}
		if m.Side == taker.Side || !m.IsOpen() || !m.Remaining.IsPositive() {
			continue
		}
		if !taker.Side.Crosses(taker.Price, m.Price) {
			break
		}

		amount := decimal.Min(plan.Remaining, m.Remaining)
		plan.Fills = append(plan.Fills, Fill{Maker: m, Amount: amount, Price: m.Price})
		plan.Remaining = plan.Remaining.Sub(amount)
	}
	return plan
}
