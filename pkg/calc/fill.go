package calc

import "math/big"

// Denomination is the token of the pair an order's amount is counted
// in.
type Denomination uint8

const (
	InBase Denomination = iota
	InQuote
)

func (d Denomination) String() string {
	if d == InBase {
		return "base"
	}
	return "quote"
}

// Role is the position of an order in a match.
type Role uint8

const (
	Initiating Role = iota
	Matched
)

func (r Role) String() string {
	if r == Initiating {
		return "initiating"
	}
	return "matched"
}

// Party is one order's view of a fill: how much of it is still open,
// counted in its own denomination, and what it has locked.
//
// A sell order counts its amount in the token it gives and locks
// exactly its remaining amount. A buy order counts its amount in the
// token it gets and locks the counter token.
type Party struct {
	Remaining *big.Int
	Denom     Denomination
	Side      Side
	Locked    *big.Int
}

// value returns the remaining amount scaled to quote*Precision units,
// so that two parties compare exactly without division.
func (p Party) value(price *big.Int) *big.Int {
	if p.Denom == InBase {
		return new(big.Int).Mul(p.Remaining, price)
	}
	return new(big.Int).Mul(p.Remaining, Precision)
}

// givesBase reports whether the party gives the base token.
func (p Party) givesBase() bool {
	return (p.Side == Sell) == (p.Denom == InBase)
}

func (p Party) locked() *big.Int {
	if p.Locked == nil {
		return new(big.Int)
	}
	return p.Locked
}

// Fill is the outcome of matching two orders at one price.
//
// Base moves from the order selling the base token to the order buying
// it, Quote moves the other way. Initiating and Matched are the
// amountFilled increments of the two orders, each in its own
// denomination. The Smaller order is always filled completely.
type Fill struct {
	Base       *big.Int
	Quote      *big.Int
	Initiating *big.Int
	Matched    *big.Int
	Smaller    Role
}

// Closes reports whether the fill completes the order in role r.
func (f Fill) Closes(r Role, remaining *big.Int) bool {
	delta := f.Initiating
	if r == Matched {
		delta = f.Matched
	}
	return delta.Cmp(remaining) == 0
}

type spendKey struct {
	smaller      Role
	smallerSide  Side
	smallerDenom Denomination
	largerDenom  Denomination
}

type spendRule func(smaller Party, price *big.Int) (Fill, error)

func other(d Denomination) Denomination {
	if d == InBase {
		return InQuote
	}
	return InBase
}

// convert turns v counted in from into the other token of the pair at
// price, rounded up when up is set and down otherwise.
func convert(v *big.Int, from Denomination, price *big.Int, up bool) *big.Int {
	num := new(big.Int)
	den := new(big.Int)
	if from == InBase {
		num.Mul(v, price)
		den.Set(Precision)
	} else {
		num.Mul(v, Precision)
		den.Set(price)
	}

	q, m := new(big.Int).QuoRem(num, den, new(big.Int))
	if up && m.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func pick(denom Denomination, base, quote *big.Int) *big.Int {
	if denom == InBase {
		return new(big.Int).Set(base)
	}
	return new(big.Int).Set(quote)
}

// legs returns the two token legs of a fill bounded by the smaller
// order. The smaller order closes and takes the rounding: the larger
// order never trades at a rate worse than price.
//
// A smaller sell order gives its whole remaining amount and gets the
// counter leg rounded down. A smaller buy order gets its remaining
// amount and pays the counter leg rounded up. When its lock cannot
// cover that, it pays its whole lock and gets what the lock buys,
// rounded down.
func legs(k spendKey, smaller Party, price *big.Int) (own, counter *big.Int) {
	if k.smallerSide == Sell {
		return new(big.Int).Set(smaller.Remaining), convert(smaller.Remaining, k.smallerDenom, price, false)
	}

	paid := convert(smaller.Remaining, k.smallerDenom, price, true)
	if paid.Cmp(smaller.locked()) <= 0 {
		return new(big.Int).Set(smaller.Remaining), paid
	}

	paid = new(big.Int).Set(smaller.locked())
	return convert(paid, other(k.smallerDenom), price, false), paid
}

func rule(k spendKey) spendRule {
	return func(smaller Party, price *big.Int) (Fill, error) {
		own, counter := legs(k, smaller, price)
		if own.Sign() == 0 || counter.Sign() == 0 {
			return Fill{}, ErrZeroAmount
		}

		base, quote := own, counter
		if k.smallerDenom == InQuote {
			base, quote = counter, own
		}

		f := Fill{Base: base, Quote: quote, Smaller: k.smaller}
		smallDelta := new(big.Int).Set(smaller.Remaining)
		largeDelta := pick(k.largerDenom, base, quote)
		if k.smaller == Initiating {
			f.Initiating, f.Matched = smallDelta, largeDelta
		} else {
			f.Initiating, f.Matched = largeDelta, smallDelta
		}
		return f, nil
	}
}

// spendTable covers every combination of which order bounds the fill,
// which side it is on and which token each order counts its amount
// in.
var spendTable = func() map[spendKey]spendRule {
	t := make(map[spendKey]spendRule, 16)
	for _, r := range []Role{Initiating, Matched} {
		for _, side := range []Side{Buy, Sell} {
			for _, sd := range []Denomination{InBase, InQuote} {
				for _, ld := range []Denomination{InBase, InQuote} {
					k := spendKey{smaller: r, smallerSide: side, smallerDenom: sd, largerDenom: ld}
					t[k] = rule(k)
				}
			}
		}
	}
	return t
}()

// ComputeFill computes the fill between an initiating and a matched
// order at price. It fails with ErrZeroAmount when either leg would
// round to nothing.
func ComputeFill(initiating, matched Party, price *big.Int) (Fill, error) {
	if isZero(price) || price.Sign() < 0 {
		return Fill{}, ErrInvalidPrice
	}

	if isZero(initiating.Remaining) || isZero(matched.Remaining) {
		return Fill{}, ErrZeroAmount
	}

	if !initiating.Side.Valid() || !matched.Side.Valid() || initiating.givesBase() == matched.givesBase() {
		return Fill{}, ErrInvalidSide
	}

	smaller, role, larger := initiating, Initiating, matched
	if initiating.value(price).Cmp(matched.value(price)) > 0 {
		smaller, role, larger = matched, Matched, initiating
	}

	k := spendKey{smaller: role, smallerSide: smaller.Side, smallerDenom: smaller.Denom, largerDenom: larger.Denom}
	return spendTable[k](smaller, price)
}
