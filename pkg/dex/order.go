package dex

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/calc"
)

// NativeToken identifies the chain's native asset when it is one leg
// of a pair.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

type OrderType uint8

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	default:
		return "unknown"
	}
}

// ParseOrderType parses "limit" or "market".
func ParseOrderType(str string) (OrderType, error) {
	switch str {
	case "limit":
		return Limit, nil
	case "market":
		return Market, nil
	default:
		return 0, ErrInvalidOrderType
	}
}

type Status uint8

const (
	Active Status = iota
	PartiallyClosed
	Closed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case PartiallyClosed:
		return "partially_closed"
	case Closed:
		return "closed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further fill or cancellation is
// possible.
func (s Status) Terminal() bool {
	return s == Closed || s == Cancelled
}

// Order is an order record. Records are never removed, terminal
// orders stay queryable.
//
// Amount is counted in TokenA. A sell order locks TokenA, a buy order
// locks TokenB.
type Order struct {
	ID     uint64
	Owner  common.Address
	TokenA common.Address
	TokenB common.Address
	Side   calc.Side
	Type   OrderType

	Amount       *big.Int
	AmountFilled *big.Int

	// Price is the effective price the lock is computed against,
	// quote per base scaled by calc.Precision.
	Price *big.Int
	// LimitPrice is the requested limit, zero for market orders.
	LimitPrice *big.Int
	// ReferencePrice is the pair price a market order was created
	// at, the center of its slippage band.
	ReferencePrice *big.Int
	SlippageBP     uint64

	LockedAmount *big.Int
	// FeeAmount is prepaid at creation on top of the lock.
	FeeAmount *big.Int
	// FeeCollected is the part of FeeAmount already moved to the
	// fee ledger.
	FeeCollected *big.Int

	IsCancellable bool
	Status        Status
}

func (o *Order) Remaining() *big.Int {
	return new(big.Int).Sub(o.Amount, o.AmountFilled)
}

// LockToken returns the token the order gives.
func (o *Order) LockToken() common.Address {
	if o.Side == calc.Sell {
		return o.TokenA
	}
	return o.TokenB
}

// ReceiveToken returns the token the order gets.
func (o *Order) ReceiveToken() common.Address {
	if o.Side == calc.Sell {
		return o.TokenB
	}
	return o.TokenA
}

func (o *Order) Pair() PairKey {
	return NewPairKey(o.TokenA, o.TokenB)
}

// Custody returns what the engine holds on the order's behalf: the
// lock plus the uncollected part of the prepaid fee.
func (o *Order) Custody() *big.Int {
	r := new(big.Int).Add(o.LockedAmount, o.FeeAmount)
	return r.Sub(r, o.FeeCollected)
}

func (o *Order) String() string {
	return fmt.Sprintf("order %d %s %s %s/%s amount=%s filled=%s price=%s status=%s",
		o.ID, o.Type, o.Side, o.TokenA.Hex(), o.TokenB.Hex(), o.Amount, o.AmountFilled,
		calc.FormatPrice(o.Price), o.Status)
}

// PairKey is the unordered token pair, Token0 sorts before Token1.
type PairKey struct {
	Token0 common.Address
	Token1 common.Address
}

func NewPairKey(a, b common.Address) PairKey {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return PairKey{Token0: a, Token1: b}
}

// Encode returns the bytes of the pair, used as a storage path.
func (k PairKey) Encode() []byte {
	b := make([]byte, 0, 2*common.AddressLength)
	b = append(b, k.Token0[:]...)
	return append(b, k.Token1[:]...)
}

func (k PairKey) String() string {
	return k.Token0.Hex() + "/" + k.Token1.Hex()
}

// Pair is the per-pair registry entry.
type Pair struct {
	Token0 common.Address
	Token1 common.Address
	// QuotedToken denominates the price. It is set by the first
	// order of the pair and never changes.
	QuotedToken common.Address
	LastPrice   *big.Int
	// Decimals is the price precision of the pair, zero until set.
	Decimals uint8
}

func (p *Pair) Key() PairKey {
	return PairKey{Token0: p.Token0, Token1: p.Token1}
}

// Established reports whether the quoting convention is known.
func (p *Pair) Established() bool {
	return p.QuotedToken != (common.Address{})
}

// Base returns the token that is not quoted.
func (p *Pair) Base() common.Address {
	if p.QuotedToken == p.Token0 {
		return p.Token1
	}
	return p.Token0
}

// quotedIsSecond reports whether the order's TokenB is the quoted
// token, i.e. the order's amount is counted in the base token.
func (p *Pair) quotedIsSecond(o *Order) bool {
	return p.QuotedToken == o.TokenB
}

func (p *Pair) denomination(o *Order) calc.Denomination {
	if p.quotedIsSecond(o) {
		return calc.InBase
	}
	return calc.InQuote
}

func (p *Pair) party(o *Order) calc.Party {
	return calc.Party{
		Remaining: o.Remaining(),
		Denom:     p.denomination(o),
		Side:      o.Side,
		Locked:    o.LockedAmount,
	}
}

// buysBase reports whether the order receives the base token, such an
// order prefers a lower price.
func (p *Pair) buysBase(o *Order) bool {
	return o.ReceiveToken() == p.Base()
}

// Settings are the engine-wide administrative settings.
type Settings struct {
	Owner      common.Address
	Backend    common.Address
	AdminToken common.Address
	FeeRateBP  uint64
}

// TokenInfo is the per-token display data.
type TokenInfo struct {
	Verified bool
}
