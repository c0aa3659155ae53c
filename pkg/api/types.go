package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotex/pkg/app/core/market"
	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotex/pkg/app/spot"
)

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the header-authenticated payload for POST /api/v1/orders.
// In signature mode the body is a transaction.SignedTransaction of type "order".
type SubmitOrderRequest struct {
	Pair   string           `json:"pair" validate:"required"`            // e.g. "BTC-THB"
	Side   string           `json:"side" validate:"required,oneof=buy sell"`
	Amount *decimal.Decimal `json:"amount" validate:"required"`          // base currency
	Price  *decimal.Decimal `json:"price" validate:"required"`           // quote per base
}

// TransferRequest is the header-authenticated payload for POST /api/v1/accounts/transfer
type TransferRequest struct {
	To       string           `json:"to" validate:"required,eth_addr"`
	Currency string           `json:"currency" validate:"required"`
	Amount   *decimal.Decimal `json:"amount" validate:"required"`
	Ref      string           `json:"ref"`
}

// FundingRequest is the payload for POST /api/v1/funding/credit and /debit
type FundingRequest struct {
	Owner           string           `json:"owner" validate:"required,eth_addr"`
	Currency        string           `json:"currency" validate:"required"`
	Amount          *decimal.Decimal `json:"amount" validate:"required"`
	Ref             string           `json:"ref"`
	ExternalAddress string           `json:"externalAddress"` // debit only
}

// ==============================
// REST Response Types
// ==============================

// SubmitOrderResponse is the response from order submission
type SubmitOrderResponse struct {
	Order  *orderbook.Order   `json:"order"`
	Trades []*orderbook.Trade `json:"trades"`
}

// CancelOrderResponse is the response from order cancellation
type CancelOrderResponse struct {
	Order    *orderbook.Order `json:"order"`
	Released decimal.Decimal  `json:"released"`
}

// MarketInfo represents a tradable pair
type MarketInfo struct {
	Symbol string `json:"symbol"` // e.g. "BTC-THB"
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Status string `json:"status"` // "active", "paused"
}

// MarketsResponse lists currencies and pairs
type MarketsResponse struct {
	Currencies []market.Currency `json:"currencies"`
	Markets    []MarketInfo      `json:"markets"`
}

// BalancesResponse lists an owner's wallets
type BalancesResponse struct {
	Owner    string           `json:"owner"`
	Balances []ledger.Balance `json:"balances"`
}

// EntriesResponse lists ledger entries, oldest first. Account is an
// "<owner>/<currency>" account or, for owner-wide listings, the owner.
type EntriesResponse struct {
	Account string         `json:"account"`
	Entries []ledger.Entry `json:"entries"`
}

// AuditResponse wraps the reconciliation report
type AuditResponse struct {
	OK     bool         `json:"ok"`
	Report *spot.Report `json:"report"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage is the envelope pushed to subscribers
type WSMessage struct {
	Channel string    `json:"channel"` // e.g. "trades:BTC-THB"
	Type    string    `json:"type"`    // "trade", "order", "balance"
	Data    any       `json:"data"`
	Time    time.Time `json:"ts"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["trades:BTC-THB", "orders:0x...", "balances:0x..."]
}
