package market

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the currencies and tradable pairs in a thread-safe manner
type Registry struct {
	mu         sync.RWMutex
	currencies map[string]Currency
	markets    map[string]*Market // pair symbol -> market
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		currencies: make(map[string]Currency),
		markets:    make(map[string]*Market),
	}
}

// RegisterCurrency adds a currency.
// Returns error if a currency with the same symbol already exists.
func (r *Registry) RegisterCurrency(c Currency) error {
	if err := c.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.currencies[c.Symbol]; exists {
		return fmt.Errorf("currency %s already registered", c.Symbol)
	}
	r.currencies[c.Symbol] = c
	return nil
}

// RegisterPair adds a tradable pair. Base must be a base currency, quote a
// quote currency, and they must differ.
func (r *Registry) RegisterPair(p Pair) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Base == p.Quote {
		return fmt.Errorf("pair %s: base and quote must differ", p)
	}
	base, ok := r.currencies[p.Base]
	if !ok {
		return fmt.Errorf("pair %s: currency %s not found", p, p.Base)
	}
	quote, ok := r.currencies[p.Quote]
	if !ok {
		return fmt.Errorf("pair %s: currency %s not found", p, p.Quote)
	}
	if base.Kind != Base || quote.Kind != Quote {
		return fmt.Errorf("pair %s: want %s/%s currencies, got %s/%s", p, Base, Quote, base.Kind, quote.Kind)
	}
	if _, exists := r.markets[p.Symbol()]; exists {
		return fmt.Errorf("pair %s already registered", p)
	}

	r.markets[p.Symbol()] = &Market{Pair: p, Symbol: p.Symbol(), Status: Active}
	return nil
}

// Currency retrieves a currency by symbol
func (r *Registry) Currency(symbol string) (Currency, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.currencies[symbol]
	if !ok {
		return Currency{}, fmt.Errorf("currency %s not found", symbol)
	}
	return c, nil
}

// Market retrieves a registered pair by base and quote
func (r *Registry) Market(p Pair) (Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markets[p.Symbol()]
	if !ok {
		return Market{}, fmt.Errorf("pair %s not found", p)
	}
	return *m, nil
}

// SetStatus changes the trading status of a pair
func (r *Registry) SetStatus(p Pair, status Status) error {
	if status != Active && status != Paused {
		return fmt.Errorf("unknown market status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markets[p.Symbol()]
	if !ok {
		return fmt.Errorf("pair %s not found", p)
	}
	m.Status = status
	return nil
}

// Currencies returns every registered currency sorted by symbol
func (r *Registry) Currencies() []Currency {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Currency, 0, len(r.currencies))
	for _, c := range r.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Markets returns a copy of every registered pair sorted by symbol
func (r *Registry) Markets() []Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
