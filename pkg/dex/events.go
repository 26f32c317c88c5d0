package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

type EventType string

const (
	OrderCreated         EventType = "order_created"
	OrderFilled          EventType = "order_filled"
	OrderClosed          EventType = "order_closed"
	OrderCancelled       EventType = "order_cancelled"
	PriceChanged         EventType = "price_changed"
	FeesWithdrawn        EventType = "fees_withdrawn"
	FeeRateChanged       EventType = "fee_rate_changed"
	BackendChanged       EventType = "backend_changed"
	AdminTokenChanged    EventType = "admin_token_changed"
	PairDecimalsChanged  EventType = "pair_decimals_changed"
	TokenVerifiedChanged EventType = "token_verified_changed"
)

// Event is a change notification. Which fields are set depends on
// the type:
//
// - order events: OrderID, Account (owner), Token and CounterToken
// (the order's TokenA and TokenB), Amount (order amount, fill amount
// or refund), Price.
// - fills additionally carry CounterOrderID.
// - pair events: Token and CounterToken are the pair, Price or Amount
// (decimals).
// - fee events: Token, Amount, Account (recipient).
// - settings events: Account or Amount (fee rate).
// - token events: Token, Flag.
type Event struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"`
	OrderID        uint64         `json:"order_id,omitempty"`
	CounterOrderID uint64         `json:"counter_order_id,omitempty"`
	Account        common.Address `json:"account"`
	Token          common.Address `json:"token"`
	CounterToken   common.Address `json:"counter_token"`
	Amount         *big.Int       `json:"amount,omitempty"`
	Price          *big.Int       `json:"price,omitempty"`
	Flag           bool           `json:"flag,omitempty"`
}

func newEvent(t EventType) Event {
	return Event{ID: uuid.NewString(), Type: t}
}

// EventSink receives events after an operation is committed and
// settled. Sink failures do not affect the operation.
type EventSink interface {
	Emit(ctx context.Context, e Event) error
}

// LogSink logs every event.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, e Event) error {
	log.Info("event", "type", e.Type, "order", e.OrderID, "counter", e.CounterOrderID,
		"account", e.Account, "token", e.Token, "amount", e.Amount, "price", e.Price)
	return nil
}

// FanOut emits every event to all sinks.
type FanOut []EventSink

func (f FanOut) Emit(ctx context.Context, e Event) error {
	var firstErr error
	for _, s := range f {
		if err := s.Emit(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func orderEvent(t EventType, o *Order, amount *big.Int) Event {
	e := newEvent(t)
	e.OrderID = o.ID
	e.Account = o.Owner
	e.Token = o.TokenA
	e.CounterToken = o.TokenB
	e.Amount = new(big.Int).Set(amount)
	e.Price = new(big.Int).Set(o.Price)
	return e
}

func priceEvent(p *Pair) Event {
	e := newEvent(PriceChanged)
	e.Token = p.Token0
	e.CounterToken = p.Token1
	e.Price = new(big.Int).Set(p.LastPrice)
	return e
}
