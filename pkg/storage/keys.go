package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema
//
//   bal:<owner>:<currency>                       → Balance
//   ord:<orderID>                                → Order
//   ownord:<owner>:<seq>:<orderID>               → orderID (orders by owner)
//   pairord:<pair>:<seq>:<orderID>               → orderID (orders by pair)
//   book:<pair>:<side>:<rank>:<seq>              → orderID (open orders, price-time)
//   bookgrd:<pair>:<side>                        → guard token, bumped on every book change
//   trd:<tradeID>                                → Trade
//   ordtrd:<orderID>:<seq>:<tradeID>             → tradeID
//   pairtrd:<pair>:<seq>:<tradeID>               → tradeID
//   ent:<entryID>                                → Entry
//   acctent:<owner>:<currency>:<seq>:<entryID>   → entryID
//   nonce:<owner>                                → last accepted request nonce
//   meta:seq                                     → highest committed sequence number (8 bytes, big endian)
//
// Sequence numbers are zero-padded (20 digits) so lexicographic order is
// numeric order.

const (
	prefixBalance    = "bal:"
	prefixOrder      = "ord:"
	prefixOwnerOrder = "ownord:"
	prefixPairOrder  = "pairord:"
	prefixBook       = "book:"
	prefixBookGuard  = "bookgrd:"
	prefixTrade      = "trd:"
	prefixOrderTrade = "ordtrd:"
	prefixPairTrade  = "pairtrd:"
	prefixEntry      = "ent:"
	prefixAcctEntry  = "acctent:"
	prefixNonce      = "nonce:"
	prefixMeta       = "meta:"
)

// BalanceKey returns the key for one (owner, currency) balance
// Example: "bal:0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0:BTC"
func BalanceKey(owner common.Address, currency string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, owner.Hex(), currency))
}

// BalancePrefix returns the prefix for all balances of an owner
func BalancePrefix(owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixBalance, owner.Hex()))
}

// BalancePrefixAll returns the prefix for every balance in the store
func BalancePrefixAll() []byte {
	return []byte(prefixBalance)
}

// OrderKey returns the key for an order record
func OrderKey(orderID string) []byte {
	return []byte(prefixOrder + orderID)
}

// OrderPrefixAll returns the prefix for every order record
func OrderPrefixAll() []byte {
	return []byte(prefixOrder)
}

// OwnerOrderKey indexes an order under its owner in creation order
func OwnerOrderKey(owner common.Address, seq uint64, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixOwnerOrder, owner.Hex(), seq, orderID))
}

// OwnerOrderPrefix returns the prefix for all orders of an owner
func OwnerOrderPrefix(owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOwnerOrder, owner.Hex()))
}

// PairOrderKey indexes an order under its currency pair in creation order
func PairOrderKey(pair string, seq uint64, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixPairOrder, pair, seq, orderID))
}

// PairOrderPrefix returns the prefix for all orders of a pair
func PairOrderPrefix(pair string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPairOrder, pair))
}

// BookKey indexes an open order on one side of a pair.
// rank must already sort best-price-first; seq breaks ties by creation time.
func BookKey(pair, side, rank string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s:%020d", prefixBook, pair, side, rank, seq))
}

// BookPrefix returns the prefix for one side of a pair's book
func BookPrefix(pair, side string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixBook, pair, side))
}

// BookGuardKey returns the guard key that changes whenever one side of a
// pair's book gains or loses an order
func BookGuardKey(pair, side string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBookGuard, pair, side))
}

// TradeKey returns the key for a trade record
func TradeKey(tradeID string) []byte {
	return []byte(prefixTrade + tradeID)
}

// OrderTradeKey indexes a trade under one of its orders
func OrderTradeKey(orderID string, seq uint64, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixOrderTrade, orderID, seq, tradeID))
}

// OrderTradePrefix returns the prefix for all trades of an order
func OrderTradePrefix(orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrderTrade, orderID))
}

// PairTradeKey indexes a trade under its pair
func PairTradeKey(pair string, seq uint64, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixPairTrade, pair, seq, tradeID))
}

// PairTradePrefix returns the prefix for all trades of a pair
func PairTradePrefix(pair string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPairTrade, pair))
}

// EntryKey returns the key for a ledger entry
func EntryKey(entryID string) []byte {
	return []byte(prefixEntry + entryID)
}

// EntryPrefixAll returns the prefix for every ledger entry
func EntryPrefixAll() []byte {
	return []byte(prefixEntry)
}

// AccountEntryKey indexes a ledger entry under an account it touches
func AccountEntryKey(owner common.Address, currency string, seq uint64, entryID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d:%s", prefixAcctEntry, owner.Hex(), currency, seq, entryID))
}

// AccountEntryPrefix returns the prefix for all entries of an account
func AccountEntryPrefix(owner common.Address, currency string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixAcctEntry, owner.Hex(), currency))
}

// OwnerEntryPrefix returns the prefix for the entries of every account of owner
func OwnerEntryPrefix(owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixAcctEntry, owner.Hex()))
}

// NonceKey returns the key holding an owner's last accepted request nonce
func NonceKey(owner common.Address) []byte {
	return []byte(prefixNonce + owner.Hex())
}

// SeqKey returns the key of the sequence high-water mark
func SeqKey() []byte {
	return []byte(prefixMeta + "seq")
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "bal:0x12:" -> upper bound "bal:0x12;"
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
