// Package spot is the application facade of the exchange: order submission,
// cancellation, funding, queries and the reconciliation audit. It owns the
// wiring between the engine packages and publishes committed results.
package spot

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotex/pkg/app/core/market"
	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotex/pkg/app/core/settlement"
	"github.com/uhyunpark/spotex/pkg/app/core/transaction"
	"github.com/uhyunpark/spotex/pkg/events"
	"github.com/uhyunpark/spotex/pkg/storage"
	"github.com/uhyunpark/spotex/pkg/util"
)

// Options configures an App. Zero values select defaults.
type Options struct {
	Settlement settlement.Config
	Publisher  events.Publisher
	Clock      util.Clock
	Logger     *zap.SugaredLogger
}

// App serves every exchange operation over one store
type App struct {
	store     *storage.Store
	markets   *market.Registry
	ledger    *ledger.Ledger
	orders    *orderbook.Repository
	coord     *settlement.Coordinator
	publisher events.Publisher
	clock     util.Clock
	log       *zap.SugaredLogger
}

// New wires an App over store and markets
func New(store *storage.Store, markets *market.Registry, opts Options) *App {
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}

	l := ledger.New(opts.Clock)
	orders := orderbook.NewRepository(opts.Clock)
	return &App{
		store:     store,
		markets:   markets,
		ledger:    l,
		orders:    orders,
		coord:     settlement.NewCoordinator(store, markets, l, orders, opts.Settlement, opts.Logger),
		publisher: opts.Publisher,
		clock:     opts.Clock,
		log:       opts.Logger,
	}
}

// SubmitOrder places an order for an authenticated owner
func (a *App) SubmitOrder(ctx context.Context, req settlement.SubmitRequest) (*settlement.Result, error) {
	res, err := a.coord.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	evs := make([]events.Event, 0, len(res.Trades)+len(res.Makers)+1)
	for _, t := range res.Trades {
		evs = append(evs, a.event(events.KindTrade, t.Pair.Symbol(), common.Address{}, t))
	}
	evs = append(evs, a.event(events.KindOrder, res.Order.Pair.Symbol(), res.Order.Owner, res.Order))
	for _, m := range res.Makers {
		evs = append(evs, a.event(events.KindOrder, m.Pair.Symbol(), m.Owner, m))
	}
	a.publish(ctx, evs, res.Entries...)
	return res, nil
}

// CancelOrder cancels an open order of owner
func (a *App) CancelOrder(ctx context.Context, owner common.Address, orderID string) (*settlement.CancelResult, error) {
	res, err := a.coord.Cancel(ctx, owner, orderID)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, []events.Event{a.event(events.KindOrder, res.Order.Pair.Symbol(), owner, res.Order)}, res.Entry)
	return res, nil
}

// Credit records an external deposit into acct
func (a *App) Credit(ctx context.Context, acct ledger.Account, amount decimal.Decimal, ref string) (*ledger.Entry, error) {
	if err := a.checkFunding(acct, amount); err != nil {
		return nil, err
	}

	var e *ledger.Entry
	err := a.coord.Run(ctx, "credit", func(tx *storage.Tx) error {
		var err error
		e, err = a.ledger.Credit(tx, acct, amount, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.log.Infow("funds_credited", "account", acct, "amount", amount, "entry", e.ID)
	a.publish(ctx, nil, e)
	return e, nil
}

// Debit records an external withdrawal from acct's available balance
func (a *App) Debit(ctx context.Context, acct ledger.Account, amount decimal.Decimal, externalAddress, ref string) (*ledger.Entry, error) {
	if err := a.checkFunding(acct, amount); err != nil {
		return nil, err
	}

	var e *ledger.Entry
	err := a.coord.Run(ctx, "debit", func(tx *storage.Tx) error {
		var err error
		e, err = a.ledger.Debit(tx, acct, amount, externalAddress, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.log.Infow("funds_debited", "account", acct, "amount", amount, "external_address", externalAddress, "entry", e.ID)
	a.publish(ctx, nil, e)
	return e, nil
}

// TransferRequest moves available funds between owners
type TransferRequest struct {
	From     common.Address
	To       common.Address
	Currency string
	Amount   decimal.Decimal
	Ref      string
}

// Transfer moves available funds of one currency from one owner to another
func (a *App) Transfer(ctx context.Context, req TransferRequest) (*ledger.Entry, error) {
	if req.To == (common.Address{}) {
		return nil, settlement.Classify(fmt.Errorf("%w: recipient is required", settlement.ErrValidation))
	}
	from := ledger.Account{Owner: req.From, Currency: req.Currency}
	if err := a.checkFunding(from, req.Amount); err != nil {
		return nil, err
	}

	var e *ledger.Entry
	err := a.coord.Run(ctx, "transfer", func(tx *storage.Tx) error {
		var err error
		e, err = a.ledger.Transfer(tx, ledger.KindTransfer, from, ledger.Account{Owner: req.To, Currency: req.Currency}, req.Amount, req.Ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.log.Infow("funds_transferred", "from", req.From, "to", req.To, "currency", req.Currency, "amount", req.Amount, "entry", e.ID)
	a.publish(ctx, nil, e)
	return e, nil
}

// ConsumeNonce accepts nonce as owner's latest signed request nonce
func (a *App) ConsumeNonce(ctx context.Context, owner common.Address, nonce uint64) error {
	return a.coord.Run(ctx, "nonce", func(tx *storage.Tx) error {
		if err := transaction.UseNonce(tx, owner, nonce); err != nil {
			return fmt.Errorf("%w: %w", settlement.ErrValidation, err)
		}
		return nil
	})
}

func (a *App) checkFunding(acct ledger.Account, amount decimal.Decimal) error {
	if acct.Owner == (common.Address{}) {
		return settlement.Classify(fmt.Errorf("%w: owner is required", settlement.ErrValidation))
	}
	if _, err := a.markets.Currency(acct.Currency); err != nil {
		return settlement.Classify(fmt.Errorf("%w: %v", settlement.ErrValidation, err))
	}
	if rej := settlement.CheckAmount("amount", amount); rej != nil {
		return rej
	}
	return nil
}
