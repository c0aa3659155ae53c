package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotex/pkg/storage"
	"github.com/uhyunpark/spotex/pkg/util"
)

// Ledger is the only write path for balances. Every mutation runs inside a
// storage unit of work and appends exactly one Entry. Concurrent mutations
// of the same account serialize at commit: a unit that read a balance
// which changed underneath it fails with storage.ErrConflict.
type Ledger struct {
	clock util.Clock
}

// New creates a ledger stamping entries with clock
func New(clock util.Clock) *Ledger {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Ledger{clock: clock}
}

// Reserve moves amount from available to reserved.
// Fails with ErrInsufficientFunds, leaving the balance untouched, when
// available < amount.
func (l *Ledger) Reserve(tx *storage.Tx, acct Account, amount decimal.Decimal, ref string) (*Entry, error) {
	if done, err := skipAmount(amount); done {
		return nil, err
	}

	b, err := l.load(tx, acct)
	if err != nil {
		return nil, err
	}
	if b.Available.LessThan(amount) {
		return nil, insufficient(acct, b.Available, amount)
	}

	b.Available = b.Available.Sub(amount)
	b.Reserved = b.Reserved.Add(amount)
	if err := l.save(tx, b); err != nil {
		return nil, err
	}
	return l.record(tx, &Entry{Kind: KindReserve, Currency: acct.Currency, From: &acct, Amount: amount, Ref: ref})
}

// Release moves amount from reserved back to available
func (l *Ledger) Release(tx *storage.Tx, acct Account, amount decimal.Decimal, ref string) (*Entry, error) {
	if done, err := skipAmount(amount); done {
		return nil, err
	}

	b, err := l.load(tx, acct)
	if err != nil {
		return nil, err
	}
	if b.Reserved.LessThan(amount) {
		return nil, fmt.Errorf("%w: %s has %s reserved, release %s", ErrInsufficientReserve, acct, b.Reserved, amount)
	}

	b.Reserved = b.Reserved.Sub(amount)
	b.Available = b.Available.Add(amount)
	if err := l.save(tx, b); err != nil {
		return nil, err
	}
	return l.record(tx, &Entry{Kind: KindRelease, Currency: acct.Currency, To: &acct, Amount: amount, Ref: ref})
}

// Transfer moves amount from one account's available balance to another's
// as a single step. Both accounts must hold the same currency.
func (l *Ledger) Transfer(tx *storage.Tx, kind EntryKind, from, to Account, amount decimal.Decimal, ref string) (*Entry, error) {
	if from.Currency != to.Currency {
		return nil, fmt.Errorf("transfer between %s and %s: currency mismatch", from, to)
	}
	if done, err := skipAmount(amount); done {
		return nil, err
	}

	src, err := l.load(tx, from)
	if err != nil {
		return nil, err
	}
	if src.Available.LessThan(amount) {
		return nil, insufficient(from, src.Available, amount)
	}
	src.Available = src.Available.Sub(amount)
	if err := l.save(tx, src); err != nil {
		return nil, err
	}

	// Loaded after the debit is staged so a self-transfer sees its own write
	dst, err := l.load(tx, to)
	if err != nil {
		return nil, err
	}
	dst.Available = dst.Available.Add(amount)
	if err := l.save(tx, dst); err != nil {
		return nil, err
	}

	return l.record(tx, &Entry{Kind: kind, Currency: from.Currency, From: &from, To: &to, Amount: amount, Ref: ref})
}

// Credit adds externally deposited funds to the available balance
func (l *Ledger) Credit(tx *storage.Tx, acct Account, amount decimal.Decimal, ref string) (*Entry, error) {
	if done, err := skipAmount(amount); done {
		return nil, err
	}

	b, err := l.load(tx, acct)
	if err != nil {
		return nil, err
	}
	b.Available = b.Available.Add(amount)
	if err := l.save(tx, b); err != nil {
		return nil, err
	}
	return l.record(tx, &Entry{Kind: KindDeposit, Currency: acct.Currency, To: &acct, Amount: amount, Ref: ref})
}

// Debit removes funds withdrawn to an external destination
func (l *Ledger) Debit(tx *storage.Tx, acct Account, amount decimal.Decimal, externalAddress, ref string) (*Entry, error) {
	if done, err := skipAmount(amount); done {
		return nil, err
	}

	b, err := l.load(tx, acct)
	if err != nil {
		return nil, err
	}
	if b.Available.LessThan(amount) {
		return nil, insufficient(acct, b.Available, amount)
	}
	b.Available = b.Available.Sub(amount)
	if err := l.save(tx, b); err != nil {
		return nil, err
	}
	return l.record(tx, &Entry{
		Kind:            KindWithdrawal,
		Currency:        acct.Currency,
		From:            &acct,
		Amount:          amount,
		Ref:             ref,
		ExternalAddress: externalAddress,
	})
}

// skipAmount rejects negative amounts and turns zero amounts into no-ops
func skipAmount(amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return true, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return amount.IsZero(), nil
}

func (l *Ledger) load(tx *storage.Tx, acct Account) (Balance, error) {
	return GetBalance(tx, acct)
}

func (l *Ledger) save(tx *storage.Tx, b Balance) error {
	b.Version++
	b.UpdatedAt = l.clock.Now()
	return tx.Put(storage.BalanceKey(b.Owner, b.Currency), b)
}

func (l *Ledger) record(tx *storage.Tx, e *Entry) (*Entry, error) {
	e.ID = uuid.NewString()
	e.Seq = tx.NextSeq()
	e.Status = StatusCompleted
	e.CreatedAt = l.clock.Now()

	if err := tx.Put(storage.EntryKey(e.ID), e); err != nil {
		return nil, err
	}
	for _, acct := range touched(e) {
		if err := tx.PutRaw(storage.AccountEntryKey(acct.Owner, acct.Currency, e.Seq, e.ID), []byte(e.ID)); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func touched(e *Entry) []Account {
	var out []Account
	if e.From != nil {
		out = append(out, *e.From)
	}
	if e.To != nil && (e.From == nil || *e.To != *e.From) {
		out = append(out, *e.To)
	}
	return out
}
