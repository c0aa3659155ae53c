package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned when an account's available balance
	// cannot cover a reservation, debit or transfer
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientReserve is returned when a release exceeds the reserved
	// balance. Callers only release what they reserved, so this signals a
	// broken invariant rather than a user error.
	ErrInsufficientReserve = errors.New("release exceeds reserved balance")

	// ErrInvalidAmount is returned for negative amounts
	ErrInvalidAmount = errors.New("amount must not be negative")

	// ErrEntryNotFound is returned when a ledger entry id is unknown
	ErrEntryNotFound = errors.New("ledger entry not found")
)

// Account identifies one holder of a balance: an owner in one currency
type Account struct {
	Owner    common.Address `json:"owner"`
	Currency string         `json:"currency"`
}

func (a Account) String() string {
	return a.Owner.Hex() + "/" + a.Currency
}

// Balance is the state of one account.
// Available is spendable; Reserved is locked by open orders.
type Balance struct {
	Owner     common.Address  `json:"owner"`
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Version   uint64          `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Account returns the account this balance belongs to
func (b Balance) Account() Account {
	return Account{Owner: b.Owner, Currency: b.Currency}
}

// Total returns available plus reserved funds
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Reserved)
}

// EntryKind classifies a balance-affecting event
type EntryKind string

const (
	KindDeposit    EntryKind = "deposit"    // external funds in
	KindWithdrawal EntryKind = "withdrawal" // external funds out
	KindTrade      EntryKind = "trade"      // settlement leg of a trade
	KindTransfer   EntryKind = "transfer"   // owner to owner, same currency
	KindReserve    EntryKind = "reserve"    // available -> reserved
	KindRelease    EntryKind = "release"    // reserved -> available
)

// EntryStatus is the state of a ledger entry
type EntryStatus string

const (
	StatusCompleted EntryStatus = "completed"
)

// Entry is the immutable record of exactly one balance mutation.
// From is nil for deposits and releases, To is nil for withdrawals and reservations.
type Entry struct {
	ID              string          `json:"id"`
	Seq             uint64          `json:"seq"`
	Kind            EntryKind       `json:"kind"`
	Currency        string          `json:"currency"`
	From            *Account        `json:"from,omitempty"`
	To              *Account        `json:"to,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Status          EntryStatus     `json:"status"`
	Ref             string          `json:"ref,omitempty"`
	ExternalAddress string          `json:"externalAddress,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Touches reports whether the entry affects acct
func (e Entry) Touches(acct Account) bool {
	return (e.From != nil && *e.From == acct) || (e.To != nil && *e.To == acct)
}

// Apply returns b with the effect of e on acct replayed onto it.
// Replaying an account's entries in order from a zero balance reproduces
// its current available and reserved amounts.
func (e Entry) Apply(acct Account, b Balance) Balance {
	switch e.Kind {
	case KindReserve:
		if e.From != nil && *e.From == acct {
			b.Available = b.Available.Sub(e.Amount)
			b.Reserved = b.Reserved.Add(e.Amount)
		}
	case KindRelease:
		if e.To != nil && *e.To == acct {
			b.Reserved = b.Reserved.Sub(e.Amount)
			b.Available = b.Available.Add(e.Amount)
		}
	default:
		if e.From != nil && *e.From == acct {
			b.Available = b.Available.Sub(e.Amount)
		}
		if e.To != nil && *e.To == acct {
			b.Available = b.Available.Add(e.Amount)
		}
	}
	return b
}

func insufficient(acct Account, have, need decimal.Decimal) error {
	return fmt.Errorf("%w: %s has %s available, need %s", ErrInsufficientFunds, acct, have, need)
}
