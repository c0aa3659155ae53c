package orderbook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotex/pkg/app/core/market"
	"github.com/uhyunpark/spotex/pkg/storage"
)

// Filter narrows order listings. Zero values match everything.
type Filter struct {
	Status Status
	Side   Side
	Pair   string // pair symbol
}

func (f Filter) match(o *Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Side != 0 && o.Side != f.Side {
		return false
	}
	if f.Pair != "" && o.Pair.Symbol() != f.Pair {
		return false
	}
	return true
}

// GetOrder loads one order by id
func GetOrder(r storage.Reader, id string) (*Order, error) {
	var o Order
	found, err := r.Get(storage.OrderKey(id), &o)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &o, nil
}

// OrdersByOwner lists owner's orders, oldest first
func OrdersByOwner(r storage.Reader, owner common.Address, f Filter) ([]*Order, error) {
	return ordersByIndex(r, storage.OwnerOrderPrefix(owner), f)
}

// OrdersByPair lists the pair's orders, oldest first
func OrdersByPair(r storage.Reader, pair market.Pair, f Filter) ([]*Order, error) {
	return ordersByIndex(r, storage.PairOrderPrefix(pair.Symbol()), f)
}

// OpenOrders returns every open order in the store
func OpenOrders(r storage.Reader) ([]*Order, error) {
	var out []*Order
	err := r.Scan(storage.OrderPrefixAll(), func(_, value []byte) error {
		var o Order
		if err := storage.Decode(value, &o); err != nil {
			return err
		}
		if o.IsOpen() {
			out = append(out, &o)
		}
		return nil
	})
	return out, err
}

// Book returns the resting orders on one side of pair in priority order
func Book(r storage.Reader, pair market.Pair, side Side) ([]*Order, error) {
	var ids []string
	err := r.Scan(storage.BookPrefix(pair.Symbol(), side.bookCode()), func(_, value []byte) error {
		ids = append(ids, string(value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loadOrders(r, ids, Filter{})
}

// TradesForOrder returns the trades an order took part in, oldest first
func TradesForOrder(r storage.Reader, orderID string) ([]*Trade, error) {
	var ids []string
	err := r.Scan(storage.OrderTradePrefix(orderID), func(_, value []byte) error {
		ids = append(ids, string(value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loadTrades(r, ids)
}

// RecentTrades returns up to limit of the pair's latest trades, newest first.
// A limit of zero or less returns all of them.
func RecentTrades(r storage.Reader, pair market.Pair, limit int) ([]*Trade, error) {
	var ids []string
	err := r.ScanReverse(storage.PairTradePrefix(pair.Symbol()), func(_, value []byte) error {
		ids = append(ids, string(value))
		if limit > 0 && len(ids) >= limit {
			return storage.ErrStopScan
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loadTrades(r, ids)
}

func ordersByIndex(r storage.Reader, prefix []byte, f Filter) ([]*Order, error) {
	var ids []string
	err := r.Scan(prefix, func(_, value []byte) error {
		ids = append(ids, string(value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loadOrders(r, ids, f)
}

func loadOrders(r storage.Reader, ids []string, f Filter) ([]*Order, error) {
	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		o, err := GetOrder(r, id)
		if err != nil {
			return nil, err
		}
		if f.match(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

func loadTrades(r storage.Reader, ids []string) ([]*Trade, error) {
	out := make([]*Trade, 0, len(ids))
	for _, id := range ids {
		var t Trade
		found, err := r.Get(storage.TradeKey(id), &t)
		if err != nil {
			return nil, fmt.Errorf("load trade %s: %w", id, err)
		}
		if !found {
			return nil, fmt.Errorf("trade %s missing from index", id)
		}
		out = append(out, &t)
	}
	return out, nil
}
