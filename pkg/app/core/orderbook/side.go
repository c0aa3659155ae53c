package orderbook

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotex/pkg/app/core/market"
)

// PriceDecimals is the finest price and amount precision accepted
const PriceDecimals = 8

// MaxPrice is the exclusive upper bound on limit prices
var MaxPrice = decimal.New(1, 11)

// Side is the direction of an order. All buy/sell asymmetry (which
// currency is locked, which way prices cross, how the book sorts) lives
// on this type.
type Side uint8

const (
	Buy  Side = 1
	Sell Side = 2
)

// ParseSide accepts "buy" or "sell" in any case
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Valid reports whether s is Buy or Sell
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of side s matches against
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Crosses reports whether a resting order priced at resting is compatible
// with an incoming order of side s limited at limit
func (s Side) Crosses(limit, resting decimal.Decimal) bool {
	if s == Buy {
		return resting.LessThanOrEqual(limit)
	}
	return resting.GreaterThanOrEqual(limit)
}

// ReserveCurrency returns the currency of pair an order on side s locks:
// buyers pay in quote, sellers deliver base
func (s Side) ReserveCurrency(pair market.Pair) string {
	if s == Buy {
		return pair.Quote
	}
	return pair.Base
}

// Reservation returns the funds an order of side s locks for amount at price
func (s Side) Reservation(amount, price decimal.Decimal) decimal.Decimal {
	if s == Buy {
		return amount.Mul(price)
	}
	return amount
}

// bookCode is the side's segment in book keys
func (s Side) bookCode() string {
	if s == Buy {
		return "b"
	}
	return "s"
}

// rank encodes price so that ascending key order is best price first:
// lowest ask first, highest bid first
func (s Side) rank(price decimal.Decimal) string {
	scaled := price.Shift(PriceDecimals).BigInt().Uint64()
	if s == Buy {
		scaled = math.MaxUint64 - scaled
	}
	return fmt.Sprintf("%020d", scaled)
}

func (s Side) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", s)
	}
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSide(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
