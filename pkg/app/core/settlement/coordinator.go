// Package settlement executes order submissions and cancellations as single
// units of work over the ledger and the order repository.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/spotex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotex/pkg/app/core/market"
	"github.com/uhyunpark/spotex/pkg/app/core/matching"
	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotex/pkg/retrier"
	"github.com/uhyunpark/spotex/pkg/storage"
)

// Config bounds the internal re-planning after a concurrent conflict
type Config struct {
	MaxRetries      int
	RetryInitial    time.Duration
	RetryMax        time.Duration
	RetryMultiplier float64 // backoff growth per retry
	RetryJitter     float64 // 0.0 to 1.0
}

// DefaultConfig returns the retry bounds used when none are configured
func DefaultConfig() Config {
	return Config{
		MaxRetries:      10,
		RetryInitial:    1 * time.Millisecond,
		RetryMax:        50 * time.Millisecond,
		RetryMultiplier: 2,
		RetryJitter:     0.5,
	}
}

// Result is the committed outcome of a submission
type Result struct {
	Order   *orderbook.Order
	Trades  []*orderbook.Trade
	Makers  []*orderbook.Order // makers as left by this submission
	Entries []*ledger.Entry
}

// CancelResult is the committed outcome of a cancellation
type CancelResult struct {
	Order *orderbook.Order
	Entry *ledger.Entry // nil when nothing was reserved
}

// Coordinator runs the submit and cancel state machines
type Coordinator struct {
	store   *storage.Store
	markets *market.Registry
	ledger  *ledger.Ledger
	orders  *orderbook.Repository
	retry   []retrier.Option
	log     *zap.SugaredLogger
}

// NewCoordinator wires a coordinator. A nil logger discards output.
func NewCoordinator(store *storage.Store, markets *market.Registry, l *ledger.Ledger, orders *orderbook.Repository, cfg Config, log *zap.SugaredLogger) *Coordinator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = def.RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}
	if cfg.RetryMultiplier < 1 {
		cfg.RetryMultiplier = def.RetryMultiplier
	}
	if cfg.RetryJitter <= 0 || cfg.RetryJitter > 1 {
		cfg.RetryJitter = def.RetryJitter
	}

	return &Coordinator{
		store:   store,
		markets: markets,
		ledger:  l,
		orders:  orders,
		retry: []retrier.Option{
			retrier.WithMaxRetries(cfg.MaxRetries),
			retrier.WithInitialInterval(cfg.RetryInitial),
			retrier.WithMaxInterval(cfg.RetryMax),
			retrier.WithMultiplier(cfg.RetryMultiplier),
			retrier.WithJitter(cfg.RetryJitter),
			retrier.WithRetryIf(isConflict),
		},
		log: log,
	}
}

func isConflict(err error) bool {
	return errors.Is(err, storage.ErrConflict)
}

// Run executes fn in a unit of work, re-running it from scratch while it
// fails with storage.ErrConflict. Engine errors come back as *Rejection.
func (c *Coordinator) Run(ctx context.Context, op string, fn func(tx *storage.Tx) error) error {
	_, err := run(ctx, c, op, func(tx *storage.Tx) (struct{}, error) {
		return struct{}{}, fn(tx)
	})
	return err
}

// run is Run for units that produce a result. Once started the unit runs to
// commit or rejection: cancellation of ctx does not cut the backoff short.
func run[T any](ctx context.Context, c *Coordinator, op string, fn func(tx *storage.Tx) (T, error)) (T, error) {
	opts := make([]retrier.Option, 0, len(c.retry)+1)
	opts = append(opts, c.retry...)
	opts = append(opts, retrier.WithOnRetry(func(attempt int, err error) {
		c.log.Debugw("settlement_conflict_retry", "op", op, "attempt", attempt, "err", err)
	}))
	r := retrier.New(opts...)

	out, err := retrier.DoWithData(r, context.WithoutCancel(ctx), func(context.Context) (T, error) {
		var res T
		err := c.store.Update(func(tx *storage.Tx) error {
			var err error
			res, err = fn(tx)
			return err
		})
		return res, err
	})
	if err == nil {
		return out, nil
	}
	if isConflict(err) {
		c.log.Errorw("settlement_retries_exhausted", "op", op, "retries", r.MaxRetries(), "err", err)
	}
	var zero T
	return zero, Classify(err)
}

// Submit validates, reserves, matches and settles one order as a single
// unit. On rejection nothing is committed.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	if rej := c.validate(req); rej != nil {
		c.log.Infow("order_rejected", "owner", req.Owner, "pair", req.Pair, "reason", rej.Reason, "err", rej.Err)
		return nil, rej
	}

	res, err := run(ctx, c, "submit", func(tx *storage.Tx) (*Result, error) {
		return c.submit(tx, req)
	})
	if err != nil {
		if rej, ok := AsRejection(err); ok {
			c.log.Infow("order_rejected", "owner", req.Owner, "pair", req.Pair, "reason", rej.Reason, "err", rej.Err)
		}
		return nil, err
	}

	c.log.Infow("order_submitted",
		"order", res.Order.ID,
		"owner", res.Order.Owner,
		"pair", res.Order.Pair,
		"side", res.Order.Side,
		"amount", res.Order.Amount,
		"price", res.Order.Price,
		"status", res.Order.Status,
		"fills", len(res.Trades),
	)
	return res, nil
}

func (c *Coordinator) submit(tx *storage.Tx, req SubmitRequest) (*Result, error) {
	taker := &orderbook.Order{
		ID:     uuid.NewString(),
		Owner:  req.Owner,
		Side:   req.Side,
		Pair:   req.Pair,
		Amount: req.Amount,
		Price:  req.Price,
	}
	res := &Result{Order: taker}

	acct := ledger.Account{Owner: taker.Owner, Currency: taker.Side.ReserveCurrency(taker.Pair)}
	e, err := c.ledger.Reserve(tx, acct, taker.Side.Reservation(taker.Amount, taker.Price), taker.ID)
	if err != nil {
		return nil, err
	}
	res.addEntry(e)

	if err := c.orders.Create(tx, taker); err != nil {
		return nil, err
	}

	makers, err := c.orders.FindCrossing(tx, taker.Side, taker.Pair, taker.Price)
	if err != nil {
		return nil, err
	}

	plan := matching.Match(taker, makers)
	for _, f := range plan.Fills {
		if err := c.settle(tx, res, taker, f); err != nil {
			return nil, err
		}
	}

	if taker.IsOpen() {
		if err := c.orders.Rest(tx, taker); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// settle applies one fill: both orders, the trade record, both
// reservation releases and the two transfers
func (c *Coordinator) settle(tx *storage.Tx, res *Result, taker *orderbook.Order, f matching.Fill) error {
	maker := f.Maker
	if err := c.orders.ApplyFill(tx, maker, f.Amount); err != nil {
		if errors.Is(err, orderbook.ErrNotOpen) || errors.Is(err, orderbook.ErrOverfill) {
			return fmt.Errorf("maker %s changed during settlement: %w", maker.ID, storage.ErrConflict)
		}
		return err
	}
	if err := c.orders.ApplyFill(tx, taker, f.Amount); err != nil {
		return err
	}

	buy, sell := taker, maker
	if taker.Side == orderbook.Sell {
		buy, sell = maker, taker
	}
	trade := &orderbook.Trade{
		Pair:         taker.Pair,
		BuyOrderID:   buy.ID,
		SellOrderID:  sell.ID,
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		Buyer:        buy.Owner,
		Seller:       sell.Owner,
		TakerSide:    taker.Side,
		Amount:       f.Amount,
		Price:        f.Price,
	}
	if err := c.orders.SaveTrade(tx, trade); err != nil {
		return err
	}
	res.Trades = append(res.Trades, trade)
	res.Makers = append(res.Makers, maker)

	// Each side's reservation for the filled portion is released at the
	// price it was reserved at; the transfers then move what actually trades.
	for _, o := range []*orderbook.Order{maker, taker} {
		acct := ledger.Account{Owner: o.Owner, Currency: o.ReserveCurrency()}
		e, err := c.ledger.Release(tx, acct, o.Side.Reservation(f.Amount, o.Price), trade.ID)
		if err != nil {
			return err
		}
		res.addEntry(e)
	}

	base := trade.Pair.Base
	e, err := c.ledger.Transfer(tx, ledger.KindTrade,
		ledger.Account{Owner: sell.Owner, Currency: base},
		ledger.Account{Owner: buy.Owner, Currency: base},
		f.Amount, trade.ID)
	if err != nil {
		return err
	}
	res.addEntry(e)

	quote := trade.Pair.Quote
	e, err = c.ledger.Transfer(tx, ledger.KindTrade,
		ledger.Account{Owner: buy.Owner, Currency: quote},
		ledger.Account{Owner: sell.Owner, Currency: quote},
		f.Notional(), trade.ID)
	if err != nil {
		return err
	}
	res.addEntry(e)
	return nil
}

func (r *Result) addEntry(e *ledger.Entry) {
	if e != nil {
		r.Entries = append(r.Entries, e)
	}
}
