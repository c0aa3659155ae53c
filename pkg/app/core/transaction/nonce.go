package transaction

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotex/pkg/storage"
)

// ErrNonceTooLow is returned when a request reuses or goes below the
// owner's last accepted nonce
var ErrNonceTooLow = errors.New("nonce too low")

// LastNonce returns the highest nonce accepted for owner, 0 if none
func LastNonce(r storage.Reader, owner common.Address) (uint64, error) {
	var last uint64
	if _, err := r.Get(storage.NonceKey(owner), &last); err != nil {
		return 0, fmt.Errorf("load nonce of %s: %w", owner.Hex(), err)
	}
	return last, nil
}

// UseNonce records nonce for owner inside tx. Two requests racing with the
// same nonce both read the old value, so only one can commit.
func UseNonce(tx *storage.Tx, owner common.Address, nonce uint64) error {
	last, err := LastNonce(tx, owner)
	if err != nil {
		return err
	}
	if nonce <= last {
		return fmt.Errorf("%w: got %d, last %d", ErrNonceTooLow, nonce, last)
	}
	return tx.Put(storage.NonceKey(owner), nonce)
}
