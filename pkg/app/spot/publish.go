package spot

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotex/pkg/events"
	"github.com/uhyunpark/spotex/pkg/storage"
)

func (a *App) event(kind events.Kind, pair string, owner common.Address, data any) events.Event {
	ev := events.Event{Kind: kind, Pair: pair, Data: data, Time: a.clock.Now()}
	if owner != (common.Address{}) {
		ev.Owner = owner.Hex()
	}
	return ev
}

// publish sends evs followed by one balance event per account touched by
// entries. It runs after commit: failures are logged and never undo the
// committed result.
func (a *App) publish(ctx context.Context, evs []events.Event, entries ...*ledger.Entry) {
	seen := map[ledger.Account]struct{}{}
	var accts []ledger.Account
	for _, e := range entries {
		if e == nil {
			continue
		}
		for _, acct := range []*ledger.Account{e.From, e.To} {
			if acct == nil {
				continue
			}
			if _, ok := seen[*acct]; !ok {
				seen[*acct] = struct{}{}
				accts = append(accts, *acct)
			}
		}
	}

	if len(accts) > 0 {
		err := a.store.View(func(r storage.Reader) error {
			for _, acct := range accts {
				b, err := ledger.GetBalance(r, acct)
				if err != nil {
					return err
				}
				evs = append(evs, a.event(events.KindBalance, "", acct.Owner, b))
			}
			return nil
		})
		if err != nil {
			a.log.Warnw("balance_snapshot_failed", "err", err)
		}
	}

	for _, ev := range evs {
		if err := a.publisher.Publish(ctx, ev); err != nil {
			a.log.Warnw("event_publish_failed", "type", ev.Kind, "key", ev.Key(), "err", err)
		}
	}
}
