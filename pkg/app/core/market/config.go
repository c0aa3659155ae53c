package market

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a markets file.
// When Pairs is empty every base currency is paired with every quote currency.
//
//	currencies:
//	  - {symbol: BTC, name: Bitcoin, kind: base}
//	  - {symbol: USD, name: US Dollar, kind: quote}
//	pairs:
//	  - {base: BTC, quote: USD}
type File struct {
	Currencies []Currency `yaml:"currencies"`
	Pairs      []Pair     `yaml:"pairs"`
}

// DefaultFile lists the currencies the exchange ships with
func DefaultFile() File {
	return File{
		Currencies: []Currency{
			{Symbol: "BTC", Name: "Bitcoin", Kind: Base},
			{Symbol: "ETH", Name: "Ethereum", Kind: Base},
			{Symbol: "XRP", Name: "Ripple", Kind: Base},
			{Symbol: "DOGE", Name: "Dogecoin", Kind: Base},
			{Symbol: "THB", Name: "Thai Baht", Kind: Quote},
			{Symbol: "USD", Name: "US Dollar", Kind: Quote},
		},
	}
}

// LoadFile reads a markets file from disk
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read markets file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse markets file %s: %w", path, err)
	}
	return f, nil
}

// Build registers every currency and pair of the file into a new registry
func (f File) Build() (*Registry, error) {
	r := NewRegistry()
	for _, c := range f.Currencies {
		if err := r.RegisterCurrency(c); err != nil {
			return nil, err
		}
	}

	pairs := f.Pairs
	if len(pairs) == 0 {
		for _, b := range f.Currencies {
			if b.Kind != Base {
				continue
			}
			for _, q := range f.Currencies {
				if q.Kind == Quote {
					pairs = append(pairs, Pair{Base: b.Symbol, Quote: q.Symbol})
				}
			}
		}
	}
	for _, p := range pairs {
		if err := r.RegisterPair(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry builds the registry from DefaultFile
func DefaultRegistry() *Registry {
	r, err := DefaultFile().Build()
	if err != nil {
		panic(fmt.Sprintf("default markets: %v", err))
	}
	return r
}
