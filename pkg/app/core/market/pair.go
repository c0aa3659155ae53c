package market

import (
	"fmt"
	"strings"
)

// Status is the trading status of a pair
type Status string

const (
	Active Status = "active" // accepts new orders
	Paused Status = "paused" // rejects new orders, cancels still allowed
)

// Pair is a base currency priced in a quote currency
type Pair struct {
	Base  string `json:"base" yaml:"base"`
	Quote string `json:"quote" yaml:"quote"`
}

// Symbol returns the canonical pair symbol, e.g. "BTC-USD"
func (p Pair) Symbol() string {
	return p.Base + "-" + p.Quote
}

func (p Pair) String() string {
	return p.Symbol()
}

// ParsePair parses "BASE-QUOTE"
func ParsePair(symbol string) (Pair, error) {
	base, quote, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(symbol)), "-")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "-") {
		return Pair{}, fmt.Errorf("invalid pair symbol %q", symbol)
	}
	return Pair{Base: base, Quote: quote}, nil
}

// Market is a registered pair with its trading status
type Market struct {
	Pair   Pair   `json:"pair"`
	Symbol string `json:"symbol"`
	Status Status `json:"status"`
}
