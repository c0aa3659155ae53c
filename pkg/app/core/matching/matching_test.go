package matching

import (
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/uhyunpark/spotex/pkg/app/core/market"
	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
)

var btcTHB = market.Pair{Base: "BTC", Quote: "THB"}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func order(id string, side orderbook.Side, amount, price string) *orderbook.Order {
	return &orderbook.Order{
		ID:        id,
		Side:      side,
		Pair:      btcTHB,
		Amount:    d(amount),
		Remaining: d(amount),
		Price:     d(price),
		Status:    orderbook.Open,
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name      string
		taker     *orderbook.Order
		makers    []*orderbook.Order
		fills     []string // maker ids
		amounts   []string
		remaining string
	}{
		{
			name:      "exact fill at maker price",
			taker:     order("t", orderbook.Buy, "1", "105"),
			makers:    []*orderbook.Order{order("m1", orderbook.Sell, "1", "100")},
			fills:     []string{"m1"},
			amounts:   []string{"1"},
			remaining: "0",
		},
		{
			name:  "walks several makers",
			taker: order("t", orderbook.Buy, "2.5", "101"),
			makers: []*orderbook.Order{
				order("m1", orderbook.Sell, "1", "100"),
				order("m2", orderbook.Sell, "1", "101"),
				order("m3", orderbook.Sell, "1", "101"),
			},
			fills:     []string{"m1", "m2", "m3"},
			amounts:   []string{"1", "1", "0.5"},
			remaining: "0",
		},
		{
			name:  "stops at first non-crossing maker",
			taker: order("t", orderbook.Sell, "3", "99"),
			makers: []*orderbook.Order{
				order("m1", orderbook.Buy, "1", "100"),
				order("m2", orderbook.Buy, "1", "98"),
				order("m3", orderbook.Buy, "1", "100"),
			},
			fills:     []string{"m1"},
			amounts:   []string{"1"},
			remaining: "2",
		},
		{
			name:      "no makers",
			taker:     order("t", orderbook.Sell, "1", "1"),
			remaining: "1",
		},
		{
			name:  "skips closed and same-side makers",
			taker: order("t", orderbook.Buy, "1", "100"),
			makers: func() []*orderbook.Order {
				closed := order("m1", orderbook.Sell, "1", "90")
				closed.Status = orderbook.Canceled
				return []*orderbook.Order{closed, order("m2", orderbook.Buy, "1", "90"), order("m3", orderbook.Sell, "0.4", "95")}
			}(),
			fills:     []string{"m3"},
			amounts:   []string{"0.4"},
			remaining: "0.6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Match(tt.taker, tt.makers)
			require.Len(t, plan.Fills, len(tt.fills))
			for i, f := range plan.Fills {
				assert.Equal(t, tt.fills[i], f.Maker.ID)
				assert.True(t, f.Amount.Equal(d(tt.amounts[i])), "fill %d amount %s", i, f.Amount)
				assert.True(t, f.Price.Equal(f.Maker.Price))
			}
			assert.True(t, plan.Remaining.Equal(d(tt.remaining)), "remaining %s", plan.Remaining)
		})
	}
}

func TestProperty_MatchConservesAmountAndRespectsLimit(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		takerSide := orderbook.Side(rapid.IntRange(1, 2).Draw(t, "side"))
		taker := order("t", takerSide,
			decimal.New(rapid.Int64Range(1, 10_000).Draw(t, "takerAmount"), -2).String(),
			decimal.New(rapid.Int64Range(1, 1_000).Draw(t, "takerPrice"), 0).String())

		n := rapid.IntRange(0, 8).Draw(t, "makers")
		makers := make([]*orderbook.Order, n)
		for i := range makers {
			makers[i] = order("m", takerSide.Opposite(),
				decimal.New(rapid.Int64Range(1, 5_000).Draw(t, "makerAmount"), -2).String(),
				decimal.New(rapid.Int64Range(1, 1_000).Draw(t, "makerPrice"), 0).String())
		}
		// book order: best price first
		sort.SliceStable(makers, func(i, j int) bool {
			if takerSide == orderbook.Buy {
				return makers[i].Price.LessThan(makers[j].Price)
			}
			return makers[i].Price.GreaterThan(makers[j].Price)
		})

		plan := Match(taker, makers)

		if !plan.Filled().Add(plan.Remaining).Equal(taker.Amount) {
			t.Fatalf("filled %s + remaining %s != amount %s", plan.Filled(), plan.Remaining, taker.Amount)
		}
		if plan.Remaining.IsNegative() {
			t.Fatalf("negative remaining %s", plan.Remaining)
		}
		for i, f := range plan.Fills {
			if !f.Amount.IsPositive() || f.Amount.GreaterThan(f.Maker.Remaining) {
				t.Fatalf("fill %d amount %s outside (0, %s]", i, f.Amount, f.Maker.Remaining)
			}
			if !takerSide.Crosses(taker.Price, f.Price) {
				t.Fatalf("fill %d at %s does not cross limit %s", i, f.Price, taker.Price)
			}
		}
		if plan.Remaining.IsPositive() && len(plan.Fills) < len(makers) {
			next := makers[len(plan.Fills)]
			if takerSide.Crosses(taker.Price, next.Price) {
				t.Fatalf("stopped with %s left while maker at %s still crosses", plan.Remaining, next.Price)
			}
		}
	})
}
