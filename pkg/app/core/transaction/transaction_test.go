package transaction

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/spotex/pkg/crypto"
	"github.com/uhyunpark/spotex/pkg/storage"
)

func newVerifier(t *testing.T) (*Verifier, *crypto.Signer) {
	t.Helper()
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewVerifier(crypto.DefaultDomain(1337)), signer
}

func TestVerify_SignedRequests(t *testing.T) {
	v, signer := newVerifier(t)
	e := v.Signer()

	order, err := SignOrder(e, signer, &OrderPayload{Pair: "BTC-THB", Side: 1, Amount: "1", Price: "100", Nonce: 1})
	require.NoError(t, err)
	cancel, err := SignCancel(e, signer, &CancelPayload{OrderID: "abc", Nonce: 2})
	require.NoError(t, err)
	transfer, err := SignTransfer(e, signer, &TransferPayload{Currency: "THB", To: "0x00000000000000000000000000000000000000b0", Amount: "5", Nonce: 3})
	require.NoError(t, err)

	for _, tx := range []*SignedTransaction{order, cancel, transfer} {
		t.Run(string(tx.Type), func(t *testing.T) {
			// survives the wire
			data, err := tx.Serialize()
			require.NoError(t, err)
			parsed, err := ParseTransaction(data)
			require.NoError(t, err)

			owner, err := v.Verify(parsed)
			require.NoError(t, err)
			assert.Equal(t, signer.Address(), owner)
			assert.Equal(t, tx.Nonce(), parsed.Nonce())
		})
	}
}

func TestVerify_RejectsTampering(t *testing.T) {
	v, signer := newVerifier(t)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx, err := SignOrder(v.Signer(), signer, &OrderPayload{Pair: "BTC-THB", Side: 2, Amount: "1", Price: "100", Nonce: 9})
	require.NoError(t, err)

	tx.Order.Amount = "100"
	_, err = v.Verify(tx)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tx.Order.Amount = "1"
	tx.Order.Owner = other.Address().Hex()
	_, err = v.Verify(tx)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tx.Order.Owner = signer.Address().Hex()
	tx.Signature = "0x1234"
	_, err = v.Verify(tx)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Deadline(t *testing.T) {
	v, signer := newVerifier(t)
	v.now = func() time.Time { return time.Unix(2_000, 0) }

	expired, err := SignOrder(v.Signer(), signer, &OrderPayload{Pair: "BTC-THB", Side: 1, Amount: "1", Price: "1", Nonce: 1, Deadline: 1_999})
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrExpired)

	live, err := SignOrder(v.Signer(), signer, &OrderPayload{Pair: "BTC-THB", Side: 1, Amount: "1", Price: "1", Nonce: 2, Deadline: 2_000})
	require.NoError(t, err)
	_, err = v.Verify(live)
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	owner := "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
	tests := []struct {
		name    string
		tx      SignedTransaction
		wantErr bool
	}{
		{"valid order", SignedTransaction{Type: TxTypeOrder, Signature: "0x1", Order: &OrderPayload{Pair: "BTC-THB", Side: 1, Owner: owner}}, false},
		{"missing type", SignedTransaction{Signature: "0x1"}, true},
		{"missing signature", SignedTransaction{Type: TxTypeOrder, Order: &OrderPayload{Pair: "BTC-THB", Side: 1, Owner: owner}}, true},
		{"order without payload", SignedTransaction{Type: TxTypeOrder, Signature: "0x1"}, true},
		{"order without side", SignedTransaction{Type: TxTypeOrder, Signature: "0x1", Order: &OrderPayload{Pair: "BTC-THB", Owner: owner}}, true},
		{"bad owner", SignedTransaction{Type: TxTypeCancel, Signature: "0x1", Cancel: &CancelPayload{OrderID: "x", Owner: "alice"}}, true},
		{"cancel without id", SignedTransaction{Type: TxTypeCancel, Signature: "0x1", Cancel: &CancelPayload{Owner: owner}}, true},
		{"transfer bad recipient", SignedTransaction{Type: TxTypeTransfer, Signature: "0x1", Transfer: &TransferPayload{Currency: "THB", To: "bob", Owner: owner}}, true},
		{"unknown type", SignedTransaction{Type: "delegation", Signature: "0x1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUseNonce_StrictlyIncreasing(t *testing.T) {
	s, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	owner := common.HexToAddress("0xabc")

	use := func(n uint64) error {
		return s.Update(func(tx *storage.Tx) error { return UseNonce(tx, owner, n) })
	}

	require.NoError(t, use(5))
	assert.ErrorIs(t, use(5), ErrNonceTooLow)
	assert.ErrorIs(t, use(4), ErrNonceTooLow)
	require.NoError(t, use(6))

	require.NoError(t, s.View(func(r storage.Reader) error {
		last, err := LastNonce(r, owner)
		assert.Equal(t, uint64(6), last)
		return err
	}))
}

func TestUseNonce_RaceOnlyOneCommits(t *testing.T) {
	s, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	owner := common.HexToAddress("0xabc")

	a, b := s.Begin(), s.Begin()
	defer a.Close()
	defer b.Close()
	require.NoError(t, UseNonce(a, owner, 1))
	require.NoError(t, UseNonce(b, owner, 1))

	require.NoError(t, a.Commit())
	assert.ErrorIs(t, b.Commit(), storage.ErrConflict)
}
