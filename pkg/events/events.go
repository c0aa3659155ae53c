// Package events fans committed engine results out to subscribers such as
// the WebSocket hub and a Kafka topic.
package events

import (
	"context"
	"errors"
	"time"
)

// Kind identifies the payload type of an event
type Kind string

const (
	KindTrade   Kind = "trade"   // Data is *orderbook.Trade
	KindOrder   Kind = "order"   // Data is *orderbook.Order
	KindBalance Kind = "balance" // Data is ledger.Balance
)

// Event is published once per changed record after its unit of work commits
type Event struct {
	Kind  Kind      `json:"type"`
	Pair  string    `json:"pair,omitempty"`
	Owner string    `json:"owner,omitempty"`
	Data  any       `json:"data"`
	Time  time.Time `json:"ts"`
}

// Key is the partitioning key: the pair for trades, the owner otherwise
func (e Event) Key() string {
	if e.Kind == KindTrade {
		return e.Pair
	}
	return e.Owner
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every publisher and joins their errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
