package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotex/pkg/storage"
)

// Cancel cancels an open order on behalf of owner and returns its
// remaining reservation. It is exclusive with any fill of the same order:
// whichever commits second re-reads the order and fails or re-plans.
func (c *Coordinator) Cancel(ctx context.Context, owner common.Address, orderID string) (*CancelResult, error) {
	res, err := run(ctx, c, "cancel", func(tx *storage.Tx) (*CancelResult, error) {
		return c.cancel(tx, owner, orderID)
	})
	if err != nil {
		if rej, ok := AsRejection(err); ok {
			c.log.Infow("cancel_rejected", "order", orderID, "owner", owner, "reason", rej.Reason)
		}
		return nil, err
	}

	c.log.Infow("order_canceled", "order", orderID, "owner", owner, "remaining", res.Order.Remaining)
	return res, nil
}

func (c *Coordinator) cancel(tx *storage.Tx, owner common.Address, orderID string) (*CancelResult, error) {
	o, err := orderbook.GetOrder(tx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Owner != owner {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, ErrNotOwner)
	}

	release := o.RemainingReservation()
	if err := c.orders.Cancel(tx, o); err != nil {
		return nil, err
	}

	acct := ledger.Account{Owner: o.Owner, Currency: o.ReserveCurrency()}
	e, err := c.ledger.Release(tx, acct, release, o.ID)
	if err != nil {
		return nil, err
	}
	return &CancelResult{Order: o, Entry: e}, nil
}
