package market

import (
	"fmt"
	"strings"
)

// Kind tags a currency as a tradable asset or a settlement asset
type Kind string

const (
	Base  Kind = "base"  // tradable asset (BTC, ETH, ...)
	Quote Kind = "quote" // settlement asset (USD, THB, ...)
)

// Currency is immutable reference data identified by its symbol
type Currency struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Name   string `json:"name" yaml:"name"`
	Kind   Kind   `json:"kind" yaml:"kind"`
}

func (c Currency) validate() error {
	if c.Symbol == "" || strings.ContainsAny(c.Symbol, ":-/ ") {
		return fmt.Errorf("invalid currency symbol %q", c.Symbol)
	}
	if c.Symbol != strings.ToUpper(c.Symbol) {
		return fmt.Errorf("currency symbol %q must be upper case", c.Symbol)
	}
	if c.Kind != Base && c.Kind != Quote {
		return fmt.Errorf("currency %s: unknown kind %q", c.Symbol, c.Kind)
	}
	return nil
}
