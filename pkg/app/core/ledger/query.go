package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotex/pkg/storage"
)

// GetBalance returns the balance of acct; a zero balance when none exists
func GetBalance(r storage.Reader, acct Account) (Balance, error) {
	var b Balance
	found, err := r.Get(storage.BalanceKey(acct.Owner, acct.Currency), &b)
	if err != nil {
		return Balance{}, fmt.Errorf("load balance %s: %w", acct, err)
	}
	if !found {
		return Balance{
			Owner:     acct.Owner,
			Currency:  acct.Currency,
			Available: decimal.Zero,
			Reserved:  decimal.Zero,
		}, nil
	}
	return b, nil
}

// Balances returns every balance held by owner, sorted by currency
func Balances(r storage.Reader, owner common.Address) ([]Balance, error) {
	return scanBalances(r, storage.BalancePrefix(owner))
}

// AllBalances returns every balance in the store
func AllBalances(r storage.Reader) ([]Balance, error) {
	return scanBalances(r, storage.BalancePrefixAll())
}

func scanBalances(r storage.Reader, prefix []byte) ([]Balance, error) {
	var out []Balance
	err := r.Scan(prefix, func(_, value []byte) error {
		var b Balance
		if err := storage.Decode(value, &b); err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

// GetEntry loads one ledger entry by id
func GetEntry(r storage.Reader, id string) (*Entry, error) {
	var e Entry
	found, err := r.Get(storage.EntryKey(id), &e)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return &e, nil
}

// Entries returns every entry touching acct in the order it was recorded
func Entries(r storage.Reader, acct Account) ([]Entry, error) {
	return entriesByIndex(r, storage.AccountEntryPrefix(acct.Owner, acct.Currency))
}

// OwnerEntries lists the entries touching any account of owner, merged
// across currencies in recording order
func OwnerEntries(r storage.Reader, owner common.Address) ([]Entry, error) {
	all, err := entriesByIndex(r, storage.OwnerEntryPrefix(owner))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(all))
	out := all[:0]
	for _, e := range all {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func entriesByIndex(r storage.Reader, prefix []byte) ([]Entry, error) {
	var ids []string
	err := r.Scan(prefix, func(_, value []byte) error {
		ids = append(ids, string(value))
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e, err := GetEntry(r, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

// AllEntries returns every ledger entry in the store, unordered
func AllEntries(r storage.Reader) ([]Entry, error) {
	var out []Entry
	err := r.Scan(storage.EntryPrefixAll(), func(_, value []byte) error {
		var e Entry
		if err := storage.Decode(value, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// Replay rebuilds acct's balance from its entries
func Replay(r storage.Reader, acct Account) (Balance, error) {
	entries, err := Entries(r, acct)
	if err != nil {
		return Balance{}, err
	}
	b := Balance{Owner: acct.Owner, Currency: acct.Currency, Available: decimal.Zero, Reserved: decimal.Zero}
	for _, e := range entries {
		b = e.Apply(acct, b)
	}
	return b, nil
}

// ParseAccount parses "<owner>/<currency>"
func ParseAccount(s string) (Account, error) {
	owner, currency, ok := strings.Cut(s, "/")
	if !ok || !common.IsHexAddress(owner) || currency == "" {
		return Account{}, fmt.Errorf("invalid account %q", s)
	}
	return Account{Owner: common.HexToAddress(owner), Currency: strings.ToUpper(currency)}, nil
}
