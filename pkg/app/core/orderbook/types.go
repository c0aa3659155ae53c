package orderbook

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotex/pkg/app/core/market"
)

var (
	// ErrNotOpen is returned when filling or canceling an order that is
	// already filled or canceled
	ErrNotOpen = errors.New("order is not open")

	// ErrNotFound is returned for unknown order ids
	ErrNotFound = errors.New("order not found")

	// ErrOverfill is returned when a fill exceeds the remaining amount
	ErrOverfill = errors.New("fill exceeds remaining amount")
)

// Status is the lifecycle state of an order. Once an order leaves Open it
// never returns.
type Status string

const (
	Open     Status = "open"
	Filled   Status = "filled"
	Canceled Status = "canceled"
)

// ParseStatus accepts "open", "filled" or "canceled"
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case Open, Filled, Canceled:
		return st, true
	}
	return "", false
}

// Order is a standing intent to trade Amount of the pair's base currency at
// Price or better
type Order struct {
	ID        string          `json:"id"`
	Owner     common.Address  `json:"owner"`
	Side      Side            `json:"side"`
	Pair      market.Pair     `json:"pair"`
	Amount    decimal.Decimal `json:"amount"`    // original amount
	Remaining decimal.Decimal `json:"remaining"` // strictly decreases with each fill
	Price     decimal.Decimal `json:"price"`     // limit price in quote per base
	Status    Status          `json:"status"`
	Resting   bool            `json:"resting"` // indexed in the book
	Seq       uint64          `json:"seq"`     // creation order, time priority
	Version   uint64          `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// IsOpen reports whether the order can still be filled or canceled
func (o *Order) IsOpen() bool {
	return o.Status == Open
}

// Filled returns the amount executed so far
func (o *Order) Filled() decimal.Decimal {
	return o.Amount.Sub(o.Remaining)
}

// ReserveCurrency returns the currency this order locks
func (o *Order) ReserveCurrency() string {
	return o.Side.ReserveCurrency(o.Pair)
}

// RemainingReservation returns the funds still locked by the unfilled part
func (o *Order) RemainingReservation() decimal.Decimal {
	return o.Side.Reservation(o.Remaining, o.Price)
}

// Trade is the immutable record of one match between a resting (maker)
// order and an incoming (taker) order. Price is always the maker's price.
type Trade struct {
	ID           string          `json:"id"`
	Pair         market.Pair     `json:"pair"`
	BuyOrderID   string          `json:"buyOrderId"`
	SellOrderID  string          `json:"sellOrderId"`
	MakerOrderID string          `json:"makerOrderId"`
	TakerOrderID string          `json:"takerOrderId"`
	Buyer        common.Address  `json:"buyer"`
	Seller       common.Address  `json:"seller"`
	TakerSide    Side            `json:"takerSide"`
	Amount       decimal.Decimal `json:"amount"`
	Price        decimal.Decimal `json:"price"`
	Seq          uint64          `json:"seq"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Notional returns the quote amount exchanged
func (t *Trade) Notional() decimal.Decimal {
	return t.Amount.Mul(t.Price)
}
