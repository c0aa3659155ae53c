package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/spotex/pkg/storage"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestLedger(t *testing.T) (*Ledger, *storage.Store) {
	t.Helper()
	s, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(nil), s
}

func balanceOf(t *testing.T, s *storage.Store, acct Account) Balance {
	t.Helper()
	var b Balance
	require.NoError(t, s.View(func(r storage.Reader) error {
		var err error
		b, err = GetBalance(r, acct)
		return err
	}))
	return b
}

func entriesOf(t *testing.T, s *storage.Store, acct Account) []Entry {
	t.Helper()
	var out []Entry
	require.NoError(t, s.View(func(r storage.Reader) error {
		var err error
		out, err = Entries(r, acct)
		return err
	}))
	return out
}

func credit(t *testing.T, l *Ledger, s *storage.Store, acct Account, amount string) {
	t.Helper()
	require.NoError(t, s.Update(func(tx *storage.Tx) error {
		_, err := l.Credit(tx, acct, d(amount), "")
		return err
	}))
}

func TestReserveAndRelease(t *testing.T) {
	l, s := newTestLedger(t)
	usd := Account{Owner: alice, Currency: "USD"}
	credit(t, l, s, usd, "10000")

	require.NoError(t, s.Update(func(tx *storage.Tx) error {
		e, err := l.Reserve(tx, usd, d("9000"), "order-1")
		require.NoError(t, err)
		assert.Equal(t, KindReserve, e.Kind)
		assert.Equal(t, "order-1", e.Ref)
		return nil
	}))

	b := balanceOf(t, s, usd)
	assert.True(t, b.Available.Equal(d("1000")), b.Available.String())
	assert.True(t, b.Reserved.Equal(d("9000")))

	require.NoError(t, s.Update(func(tx *storage.Tx) error {
		_, err := l.Release(tx, usd, d("9000"), "order-1")
		return err
	}))
	b = balanceOf(t, s, usd)
	assert.True(t, b.Available.Equal(d("10000")))
	assert.True(t, b.Reserved.IsZero())
}

func TestReserve_InsufficientFundsLeavesBalance(t *testing.T) {
	l, s := newTestLedger(t)
	btc := Account{Owner: alice, Currency: "BTC"}
	credit(t, l, s, btc, "3")
	before := balanceOf(t, s, btc)

	err := s.Update(func(tx *storage.Tx) error {
		_, err := l.Reserve(tx, btc, d("5"), "")
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	assert.Equal(t, before, balanceOf(t, s, btc))
	assert.Len(t, entriesOf(t, s, btc), 1) // only the deposit
}

func TestRelease_MoreThanReservedFails(t *testing.T) {
	l, s := newTestLedger(t)
	usd := Account{Owner: alice, Currency: "USD"}
	credit(t, l, s, usd, "10")

	err := s.Update(func(tx *storage.Tx) error {
		_, err := l.Release(tx, usd, d("1"), "")
		return err
	})
	assert.ErrorIs(t, err, ErrInsufficientReserve)
}

func TestTransfer(t *testing.T) {
	l, s := newTestLedger(t)
	from := Account{Owner: alice, Currency: "USD"}
	to := Account{Owner: bob, Currency: "USD"}
	credit(t, l, s, from, "100")

	tests := []struct {
		name    string
		from    Account
		to      Account
		amount  string
		wantErr error
	}{
		{"moves funds", from, to, "40", nil},
		{"self transfer is neutral", from, from, "10", nil},
		{"insufficient", from, to, "61", ErrInsufficientFunds},
		{"negative", from, to, "-1", ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Update(func(tx *storage.Tx) error {
				_, err := l.Transfer(tx, KindTransfer, tt.from, tt.to, d(tt.amount), "")
				return err
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.True(t, balanceOf(t, s, from).Available.Equal(d("60")))
	assert.True(t, balanceOf(t, s, to).Available.Equal(d("40")))

	err := s.Update(func(tx *storage.Tx) error {
		_, err := l.Transfer(tx, KindTransfer, from, Account{Owner: bob, Currency: "BTC"}, d("1"), "")
		return err
	})
	assert.Error(t, err)
}

func TestDebit(t *testing.T) {
	l, s := newTestLedger(t)
	usd := Account{Owner: alice, Currency: "USD"}
	credit(t, l, s, usd, "50")

	err := s.Update(func(tx *storage.Tx) error {
		_, err := l.Debit(tx, usd, d("60"), "bank:1", "")
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, s.Update(func(tx *storage.Tx) error {
		e, err := l.Debit(tx, usd, d("20"), "bank:1", "")
		require.NoError(t, err)
		assert.Equal(t, "bank:1", e.ExternalAddress)
		assert.Nil(t, e.To)
		return nil
	}))
	assert.True(t, balanceOf(t, s, usd).Available.Equal(d("30")))
}

func TestZeroAmountIsNoop(t *testing.T) {
	l, s := newTestLedger(t)
	usd := Account{Owner: alice, Currency: "USD"}

	require.NoError(t, s.Update(func(tx *storage.Tx) error {
		e, err := l.Credit(tx, usd, decimal.Zero, "")
		assert.Nil(t, e)
		return err
	}))
	assert.Empty(t, entriesOf(t, s, usd))
}

func TestEveryMutationEmitsOneEntryAndReplays(t *testing.T) {
	l, s := newTestLedger(t)
	a := Account{Owner: alice, Currency: "USD"}
	b := Account{Owner: bob, Currency: "USD"}

	steps := []func(tx *storage.Tx) (*Entry, error){
		func(tx *storage.Tx) (*Entry, error) { return l.Credit(tx, a, d("100"), "") },
		func(tx *storage.Tx) (*Entry, error) { return l.Reserve(tx, a, d("30"), "o1") },
		func(tx *storage.Tx) (*Entry, error) { return l.Release(tx, a, d("10"), "o1") },
		func(tx *storage.Tx) (*Entry, error) { return l.Transfer(tx, KindTrade, a, b, d("25"), "t1") },
		func(tx *storage.Tx) (*Entry, error) { return l.Debit(tx, b, d("5"), "", "") },
	}
	for _, step := range steps {
		require.NoError(t, s.Update(func(tx *storage.Tx) error {
			e, err := step(tx)
			require.NotNil(t, e)
			return err
		}))
	}

	assert.Len(t, entriesOf(t, s, a), 4)
	assert.Len(t, entriesOf(t, s, b), 2)

	for _, acct := range []Account{a, b} {
		var replayed Balance
		require.NoError(t, s.View(func(r storage.Reader) error {
			var err error
			replayed, err = Replay(r, acct)
			return err
		}))
		current := balanceOf(t, s, acct)
		assert.True(t, current.Available.Equal(replayed.Available), "%s available", acct)
		assert.True(t, current.Reserved.Equal(replayed.Reserved), "%s reserved", acct)
	}
}

func TestOwnerEntries_MergesCurrenciesInOrder(t *testing.T) {
	l, s := newTestLedger(t)
	usd := Account{Owner: alice, Currency: "USD"}
	btc := Account{Owner: alice, Currency: "BTC"}

	credit(t, l, s, usd, "10")
	credit(t, l, s, btc, "1")
	credit(t, l, s, usd, "5")
	credit(t, l, s, Account{Owner: bob, Currency: "USD"}, "7")
	require.NoError(t, s.Update(func(tx *storage.Tx) error {
		_, err := l.Transfer(tx, KindTransfer, usd, usd, d("3"), "self")
		return err
	}))

	var got []Entry
	require.NoError(t, s.View(func(r storage.Reader) error {
		var err error
		got, err = OwnerEntries(r, alice)
		return err
	}))
	require.Len(t, got, 4)
	assert.Equal(t, []string{"USD", "BTC", "USD", "USD"}, []string{got[0].Currency, got[1].Currency, got[2].Currency, got[3].Currency})
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Seq, got[i-1].Seq)
	}
}

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	l, s := newTestLedger(t)
	usd := Account{Owner: alice, Currency: "USD"}
	credit(t, l, s, usd, "100")

	const workers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := s.Update(func(tx *storage.Tx) error {
					_, err := l.Reserve(tx, usd, d("10"), "")
					return err
				})
				if errors.Is(err, storage.ErrConflict) {
					continue
				}
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, ErrInsufficientFunds)
				}
				return
			}
		}()
	}
	wg.Wait()

	b := balanceOf(t, s, usd)
	assert.Equal(t, 10, accepted)
	assert.True(t, b.Available.IsZero())
	assert.True(t, b.Reserved.Equal(d("100")))
	assert.Len(t, entriesOf(t, s, usd), 11)
}

func TestParseAccount(t *testing.T) {
	acct, err := ParseAccount(alice.Hex() + "/usd")
	require.NoError(t, err)
	assert.Equal(t, Account{Owner: alice, Currency: "USD"}, acct)

	_, err = ParseAccount("nope/USD")
	assert.Error(t, err)
}
