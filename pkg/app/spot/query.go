package spot

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotex/pkg/app/core/market"
	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotex/pkg/app/core/settlement"
	"github.com/uhyunpark/spotex/pkg/storage"
)

// Queries read from a point-in-time snapshot. Unknown ids come back as a
// not_found *settlement.Rejection.

// Order returns one order by id
func (a *App) Order(id string) (*orderbook.Order, error) {
	return view(a, func(r storage.Reader) (*orderbook.Order, error) {
		return orderbook.GetOrder(r, id)
	})
}

// OrdersByOwner lists owner's orders, oldest first
func (a *App) OrdersByOwner(owner common.Address, f orderbook.Filter) ([]*orderbook.Order, error) {
	return view(a, func(r storage.Reader) ([]*orderbook.Order, error) {
		return orderbook.OrdersByOwner(r, owner, f)
	})
}

// OrdersByPair lists the pair's orders, oldest first
func (a *App) OrdersByPair(pair market.Pair, f orderbook.Filter) ([]*orderbook.Order, error) {
	if _, err := a.markets.Market(pair); err != nil {
		return nil, notFound(err)
	}
	return view(a, func(r storage.Reader) ([]*orderbook.Order, error) {
		return orderbook.OrdersByPair(r, pair, f)
	})
}

// TradesForOrder lists the trades of an order, oldest first
func (a *App) TradesForOrder(orderID string) ([]*orderbook.Trade, error) {
	return view(a, func(r storage.Reader) ([]*orderbook.Trade, error) {
		if _, err := orderbook.GetOrder(r, orderID); err != nil {
			return nil, err
		}
		return orderbook.TradesForOrder(r, orderID)
	})
}

// RecentTrades returns up to limit of the pair's latest trades, newest first
func (a *App) RecentTrades(pair market.Pair, limit int) ([]*orderbook.Trade, error) {
	if _, err := a.markets.Market(pair); err != nil {
		return nil, notFound(err)
	}
	return view(a, func(r storage.Reader) ([]*orderbook.Trade, error) {
		return orderbook.RecentTrades(r, pair, limit)
	})
}

// Entries lists the ledger entries touching acct in recording order
func (a *App) Entries(acct ledger.Account) ([]ledger.Entry, error) {
	return view(a, func(r storage.Reader) ([]ledger.Entry, error) {
		return ledger.Entries(r, acct)
	})
}

// OwnerEntries lists the ledger entries touching any of owner's accounts
// in recording order
func (a *App) OwnerEntries(owner common.Address) ([]ledger.Entry, error) {
	return view(a, func(r storage.Reader) ([]ledger.Entry, error) {
		return ledger.OwnerEntries(r, owner)
	})
}

// Entry returns one ledger entry by id
func (a *App) Entry(id string) (*ledger.Entry, error) {
	return view(a, func(r storage.Reader) (*ledger.Entry, error) {
		return ledger.GetEntry(r, id)
	})
}

// Balances lists every balance held by owner
func (a *App) Balances(owner common.Address) ([]ledger.Balance, error) {
	return view(a, func(r storage.Reader) ([]ledger.Balance, error) {
		return ledger.Balances(r, owner)
	})
}

// Balance returns acct's balance, zero when it never held funds
func (a *App) Balance(acct ledger.Account) (ledger.Balance, error) {
	return view(a, func(r storage.Reader) (ledger.Balance, error) {
		return ledger.GetBalance(r, acct)
	})
}

// Markets lists every registered pair
func (a *App) Markets() []market.Market {
	return a.markets.Markets()
}

// Currencies lists every registered currency
func (a *App) Currencies() []market.Currency {
	return a.markets.Currencies()
}

func view[T any](a *App, fn func(r storage.Reader) (T, error)) (T, error) {
	var out T
	err := a.store.View(func(r storage.Reader) error {
		var err error
		out, err = fn(r)
		return err
	})
	if err != nil {
		var zero T
		return zero, settlement.Classify(err)
	}
	return out, nil
}

func notFound(err error) error {
	return &settlement.Rejection{Reason: settlement.ReasonNotFound, Err: err}
}
