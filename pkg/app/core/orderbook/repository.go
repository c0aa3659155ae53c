package orderbook

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotex/pkg/app/core/market"
	"github.com/uhyunpark/spotex/pkg/storage"
	"github.com/uhyunpark/spotex/pkg/util"
)

// Repository owns order and trade records. Mutations run inside a storage
// unit of work; a fill and a cancel racing on the same order both read its
// record, so only the first to commit succeeds and the other sees
// storage.ErrConflict.
type Repository struct {
	clock util.Clock
}

// NewRepository creates a repository stamping records with clock
func NewRepository(clock util.Clock) *Repository {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Repository{clock: clock}
}

// Create inserts o as a new open order with Remaining = Amount.
// The caller reserves its funds in the same unit of work.
func (r *Repository) Create(tx *storage.Tx, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := r.clock.Now()
	o.Remaining = o.Amount
	o.Status = Open
	o.Resting = false
	o.Seq = tx.NextSeq()
	o.Version = 0
	o.CreatedAt = now

	if err := r.save(tx, o); err != nil {
		return err
	}
	if err := tx.PutRaw(storage.OwnerOrderKey(o.Owner, o.Seq, o.ID), []byte(o.ID)); err != nil {
		return err
	}
	return tx.PutRaw(storage.PairOrderKey(o.Pair.Symbol(), o.Seq, o.ID), []byte(o.ID))
}

// Rest places an open order in the book so later orders can match it
func (r *Repository) Rest(tx *storage.Tx, o *Order) error {
	if !o.IsOpen() {
		return fmt.Errorf("rest order %s: %w", o.ID, ErrNotOpen)
	}
	if o.Resting {
		return nil
	}

	key := storage.BookKey(o.Pair.Symbol(), o.Side.bookCode(), o.Side.rank(o.Price), o.Seq)
	if err := tx.PutRaw(key, []byte(o.ID)); err != nil {
		return err
	}
	if err := tx.Bump(storage.BookGuardKey(o.Pair.Symbol(), o.Side.bookCode())); err != nil {
		return err
	}
	o.Resting = true
	return r.save(tx, o)
}

// FindCrossing returns the open orders on the opposite side of pair whose
// price crosses limit, best price first and oldest first within a price.
// The unit of work is invalidated if that side of the book changes before
// it commits.
func (r *Repository) FindCrossing(tx *storage.Tx, side Side, pair market.Pair, limit decimal.Decimal) ([]*Order, error) {
	opp := side.Opposite()
	if err := tx.Watch(storage.BookGuardKey(pair.Symbol(), opp.bookCode())); err != nil {
		return nil, err
	}

	var ids []string
	err := tx.Scan(storage.BookPrefix(pair.Symbol(), opp.bookCode()), func(_, value []byte) error {
		ids = append(ids, string(value))
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []*Order
	for _, id := range ids {
		o, err := GetOrder(tx, id)
		if err != nil {
			return nil, err
		}
		if !o.IsOpen() || !o.Resting {
			// The index is written with the record, so this only happens when
			// another unit changed the book after our scan.
			return nil, fmt.Errorf("book entry %s is stale: %w", id, storage.ErrConflict)
		}
		if !side.Crosses(limit, o.Price) {
			break
		}
		out = append(out, o)
	}
	return out, nil
}

// ApplyFill decreases o's remaining amount by amount. At zero the order
// becomes Filled and leaves the book. o is updated in place.
func (r *Repository) ApplyFill(tx *storage.Tx, o *Order, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("fill order %s: non-positive amount %s", o.ID, amount)
	}
	cur, err := GetOrder(tx, o.ID)
	if err != nil {
		return err
	}
	if !cur.IsOpen() {
		return fmt.Errorf("fill order %s (%s): %w", o.ID, cur.Status, ErrNotOpen)
	}
	if amount.GreaterThan(cur.Remaining) {
		return fmt.Errorf("fill order %s with %s, remaining %s: %w", o.ID, amount, cur.Remaining, ErrOverfill)
	}

	cur.Remaining = cur.Remaining.Sub(amount)
	if cur.Remaining.IsZero() {
		cur.Status = Filled
		if err := r.unrest(tx, cur); err != nil {
			return err
		}
	}
	if err := r.save(tx, cur); err != nil {
		return err
	}
	*o = *cur
	return nil
}

// Cancel marks an open order Canceled and removes it from the book.
// Remaining is left as it was so the caller can release its reservation.
func (r *Repository) Cancel(tx *storage.Tx, o *Order) error {
	cur, err := GetOrder(tx, o.ID)
	if err != nil {
		return err
	}
	if !cur.IsOpen() {
		return fmt.Errorf("cancel order %s (%s): %w", o.ID, cur.Status, ErrNotOpen)
	}

	cur.Status = Canceled
	if err := r.unrest(tx, cur); err != nil {
		return err
	}
	if err := r.save(tx, cur); err != nil {
		return err
	}
	*o = *cur
	return nil
}

// SaveTrade assigns id and sequence to t and indexes it under both orders
// and its pair
func (r *Repository) SaveTrade(tx *storage.Tx, t *Trade) error {
	t.ID = uuid.NewString()
	t.Seq = tx.NextSeq()
	t.CreatedAt = r.clock.Now()

	if err := tx.Put(storage.TradeKey(t.ID), t); err != nil {
		return err
	}
	for _, orderID := range []string{t.BuyOrderID, t.SellOrderID} {
		if err := tx.PutRaw(storage.OrderTradeKey(orderID, t.Seq, t.ID), []byte(t.ID)); err != nil {
			return err
		}
	}
	return tx.PutRaw(storage.PairTradeKey(t.Pair.Symbol(), t.Seq, t.ID), []byte(t.ID))
}

func (r *Repository) unrest(tx *storage.Tx, o *Order) error {
	if !o.Resting {
		return nil
	}
	key := storage.BookKey(o.Pair.Symbol(), o.Side.bookCode(), o.Side.rank(o.Price), o.Seq)
	if err := tx.Delete(key); err != nil {
		return err
	}
	o.Resting = false
	return tx.Bump(storage.BookGuardKey(o.Pair.Symbol(), o.Side.bookCode()))
}

func (r *Repository) save(tx *storage.Tx, o *Order) error {
	o.Version++
	o.UpdatedAt = r.clock.Now()
	return tx.Put(storage.OrderKey(o.ID), o)
}
