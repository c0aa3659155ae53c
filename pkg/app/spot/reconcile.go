package spot

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotex/pkg/storage"
)

// Violation kinds reported by Reconcile
const (
	ViolationConservation = "conservation"     // holdings differ from net deposits
	ViolationReservation  = "reservation"      // reserved differs from open order locks
	ViolationNegative     = "negative_balance" // a balance went below zero
	ViolationReplay       = "replay"           // entries do not reproduce a balance
	ViolationOrder        = "order_state"      // open order with impossible remaining
)

// CurrencyTotals summarises one currency across all accounts
type CurrencyTotals struct {
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Deposited decimal.Decimal `json:"deposited"`
	Withdrawn decimal.Decimal `json:"withdrawn"`
}

// Violation is one broken invariant
type Violation struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Detail  string `json:"detail"`
}

// Report is the result of one reconciliation pass over a snapshot
type Report struct {
	CheckedAt  time.Time                 `json:"checkedAt"`
	Currencies map[string]CurrencyTotals `json:"currencies"`
	Accounts   int                       `json:"accounts"`
	OpenOrders int                       `json:"openOrders"`
	Violations []Violation               `json:"violations"`
}

// OK reports whether every invariant held
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

func (r *Report) violate(kind, subject, format string, args ...any) {
	r.Violations = append(r.Violations, Violation{Kind: kind, Subject: subject, Detail: fmt.Sprintf(format, args...)})
}

// Reconcile audits a consistent snapshot of the store: per currency,
// available plus reserved equals deposits minus withdrawals; per account,
// reserved equals what its open orders lock; nothing is negative; and
// replaying each account's entries reproduces its balance.
func (a *App) Reconcile() (*Report, error) {
	rep := &Report{CheckedAt: a.clock.Now(), Currencies: map[string]CurrencyTotals{}}

	err := a.store.View(func(r storage.Reader) error {
		balances, err := ledger.AllBalances(r)
		if err != nil {
			return err
		}
		entries, err := ledger.AllEntries(r)
		if err != nil {
			return err
		}
		open, err := orderbook.OpenOrders(r)
		if err != nil {
			return err
		}
		rep.Accounts = len(balances)
		rep.OpenOrders = len(open)

		totals := func(cur string) CurrencyTotals {
			t, ok := rep.Currencies[cur]
			if !ok {
				t = CurrencyTotals{Available: decimal.Zero, Reserved: decimal.Zero, Deposited: decimal.Zero, Withdrawn: decimal.Zero}
			}
			return t
		}

		for _, e := range entries {
			t := totals(e.Currency)
			switch e.Kind {
			case ledger.KindDeposit:
				t.Deposited = t.Deposited.Add(e.Amount)
			case ledger.KindWithdrawal:
				t.Withdrawn = t.Withdrawn.Add(e.Amount)
			}
			rep.Currencies[e.Currency] = t
		}

		locked := map[ledger.Account]decimal.Decimal{}
		for _, o := range open {
			if !o.Remaining.IsPositive() || o.Remaining.GreaterThan(o.Amount) {
				rep.violate(ViolationOrder, o.ID, "open with remaining %s of %s", o.Remaining, o.Amount)
			}
			acct := ledger.Account{Owner: o.Owner, Currency: o.ReserveCurrency()}
			locked[acct] = locked[acct].Add(o.RemainingReservation())
		}

		for _, b := range balances {
			acct := b.Account()
			if b.Available.IsNegative() || b.Reserved.IsNegative() {
				rep.violate(ViolationNegative, acct.String(), "available %s reserved %s", b.Available, b.Reserved)
			}
			if want := locked[acct]; !b.Reserved.Equal(want) {
				rep.violate(ViolationReservation, acct.String(), "reserved %s, open orders lock %s", b.Reserved, want)
			}
			delete(locked, acct)

			replayed, err := ledger.Replay(r, acct)
			if err != nil {
				return err
			}
			if !replayed.Available.Equal(b.Available) || !replayed.Reserved.Equal(b.Reserved) {
				rep.violate(ViolationReplay, acct.String(), "stored %s/%s, replayed %s/%s", b.Available, b.Reserved, replayed.Available, replayed.Reserved)
			}

			t := totals(b.Currency)
			t.Available = t.Available.Add(b.Available)
			t.Reserved = t.Reserved.Add(b.Reserved)
			rep.Currencies[b.Currency] = t
		}
		for acct, amt := range locked {
			rep.violate(ViolationReservation, acct.String(), "no balance record, open orders lock %s", amt)
		}

		for cur, t := range rep.Currencies {
			held := t.Available.Add(t.Reserved)
			net := t.Deposited.Sub(t.Withdrawn)
			if !held.Equal(net) {
				rep.violate(ViolationConservation, cur, "held %s, deposits minus withdrawals %s", held, net)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(rep.Violations, func(i, j int) bool {
		if rep.Violations[i].Kind != rep.Violations[j].Kind {
			return rep.Violations[i].Kind < rep.Violations[j].Kind
		}
		return rep.Violations[i].Subject < rep.Violations[j].Subject
	})
	for _, v := range rep.Violations {
		a.log.Errorw("invariant_violation", "kind", v.Kind, "subject", v.Subject, "detail", v.Detail)
	}
	return rep, nil
}
