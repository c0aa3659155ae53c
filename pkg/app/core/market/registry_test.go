package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Len(t, r.Currencies(), 6)
	assert.Len(t, r.Markets(), 8) // 4 base x 2 quote

	m, err := r.Market(Pair{Base: "BTC", Quote: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", m.Symbol)
	assert.Equal(t, Active, m.Status)

	_, err = r.Market(Pair{Base: "USD", Quote: "BTC"})
	assert.Error(t, err)
}

func TestRegisterPair_Rules(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterCurrency(Currency{Symbol: "BTC", Kind: Base}))
	require.NoError(t, r.RegisterCurrency(Currency{Symbol: "ETH", Kind: Base}))
	require.NoError(t, r.RegisterCurrency(Currency{Symbol: "USD", Kind: Quote}))

	tests := []struct {
		name    string
		pair    Pair
		wantErr bool
	}{
		{"valid", Pair{Base: "BTC", Quote: "USD"}, false},
		{"duplicate", Pair{Base: "BTC", Quote: "USD"}, true},
		{"same currency", Pair{Base: "BTC", Quote: "BTC"}, true},
		{"two base currencies", Pair{Base: "BTC", Quote: "ETH"}, true},
		{"unknown quote", Pair{Base: "ETH", Quote: "EUR"}, true},
		{"inverted kinds", Pair{Base: "USD", Quote: "BTC"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.RegisterPair(tt.pair)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegisterCurrency_Validation(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.RegisterCurrency(Currency{Symbol: "btc", Kind: Base}))
	assert.Error(t, r.RegisterCurrency(Currency{Symbol: "B-C", Kind: Base}))
	assert.Error(t, r.RegisterCurrency(Currency{Symbol: "BTC", Kind: "coin"}))
	require.NoError(t, r.RegisterCurrency(Currency{Symbol: "BTC", Kind: Base}))
	assert.Error(t, r.RegisterCurrency(Currency{Symbol: "BTC", Kind: Base}))
}

func TestParsePair(t *testing.T) {
	p, err := ParsePair("btc-usd")
	require.NoError(t, err)
	assert.Equal(t, Pair{Base: "BTC", Quote: "USD"}, p)

	for _, bad := range []string{"", "BTC", "BTC-", "-USD", "A-B-C"} {
		_, err := ParsePair(bad)
		assert.Error(t, err, bad)
	}
}

func TestSetStatus(t *testing.T) {
	r := DefaultRegistry()
	p := Pair{Base: "ETH", Quote: "THB"}

	require.NoError(t, r.SetStatus(p, Paused))
	m, _ := r.Market(p)
	assert.Equal(t, Paused, m.Status)

	assert.Error(t, r.SetStatus(p, "settled"))
	assert.Error(t, r.SetStatus(Pair{Base: "X", Quote: "Y"}, Active))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markets.yaml")
	content := `
currencies:
  - {symbol: SOL, name: Solana, kind: base}
  - {symbol: EUR, name: Euro, kind: quote}
  - {symbol: USD, name: US Dollar, kind: quote}
pairs:
  - {base: SOL, quote: EUR}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	r, err := f.Build()
	require.NoError(t, err)

	assert.Len(t, r.Currencies(), 3)
	require.Len(t, r.Markets(), 1)
	assert.Equal(t, "SOL-EUR", r.Markets()[0].Symbol)
}
