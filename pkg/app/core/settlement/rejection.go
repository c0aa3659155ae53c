package settlement

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/spotex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotex/pkg/storage"
)

var (
	// ErrValidation marks a malformed submission
	ErrValidation = errors.New("invalid request")

	// ErrNotOwner is returned when someone other than the owner cancels an order
	ErrNotOwner = errors.New("not the order owner")
)

// Reason classifies why a request was rejected
type Reason string

const (
	ReasonValidation         Reason = "validation_error"
	ReasonInsufficientFunds  Reason = "insufficient_funds"
	ReasonNotOpen            Reason = "not_open"
	ReasonNotOwner           Reason = "not_owner"
	ReasonNotFound           Reason = "not_found"
	ReasonConcurrentConflict Reason = "concurrent_conflict"
)

// Rejection is returned for every refused submission, cancellation or
// funding call. No state changed.
type Rejection struct {
	Reason Reason
	Err    error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %v", r.Reason, r.Err)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// AsRejection extracts a Rejection from err
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

func invalid(format string, args ...any) *Rejection {
	return &Rejection{Reason: ReasonValidation, Err: fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))}
}

// Classify maps engine errors to rejections. Errors with no known
// reason, such as storage failures, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsRejection(err); ok {
		return err
	}

	var reason Reason
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ledger.ErrInvalidAmount):
		reason = ReasonValidation
	case errors.Is(err, ledger.ErrInsufficientFunds):
		reason = ReasonInsufficientFunds
	case errors.Is(err, orderbook.ErrNotOpen):
		reason = ReasonNotOpen
	case errors.Is(err, ErrNotOwner):
		reason = ReasonNotOwner
	case errors.Is(err, orderbook.ErrNotFound), errors.Is(err, ledger.ErrEntryNotFound):
		reason = ReasonNotFound
	case errors.Is(err, storage.ErrConflict):
		reason = ReasonConcurrentConflict
	default:
		return err
	}
	return &Rejection{Reason: reason, Err: err}
}
