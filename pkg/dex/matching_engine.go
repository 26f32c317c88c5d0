package dex

import (
	"fmt"
	"math/big"

	"github.com/helinwang/matchdex/pkg/calc"
)

// matchOrders consumes the initiating order against the matched
// orders in list order. The list order is trusted as given. Matching
// stops when the initiating order is filled, the remainder of an
// initiating order stays resting in the same order.
func (e *Engine) matchOrders(t *transition, s *settlement, initiatingID uint64, matchedIDs []uint64) error {
	if len(matchedIDs) == 0 {
		return ErrEmptyMatch
	}

	initiating, err := t.order(initiatingID)
	if err != nil {
		return err
	}

	if initiating.Status.Terminal() {
		return fmt.Errorf("%w: initiating order %d is %s", ErrInvalidOrderStatus, initiating.ID, initiating.Status)
	}

	for _, id := range matchedIDs {
		if initiating.Remaining().Sign() == 0 {
			break
		}

		if id == initiating.ID {
			return fmt.Errorf("%w: order %d matched with itself", ErrSideMismatch, id)
		}

		matched, err := t.order(id)
		if err != nil {
			return fmt.Errorf("%w: %d", err, id)
		}

		err = e.fill(t, s, &initiating, &matched)
		if err != nil {
			return err
		}
		t.putOrder(&matched)
	}

	t.putOrder(&initiating)
	return nil
}

// executionPrice returns the price two orders trade at: the resting
// order's price between two limit orders, the pair price whenever a
// market order is involved.
func executionPrice(pair *Pair, initiating, matched *Order) *big.Int {
	if initiating.Type == Limit && matched.Type == Limit {
		return new(big.Int).Set(matched.Price)
	}
	return new(big.Int).Set(pair.LastPrice)
}

// checkPrice verifies that price is acceptable to the order.
func checkPrice(pair *Pair, o *Order, price *big.Int) error {
	if o.Type == Market {
		if !calc.WithinBand(price, o.ReferencePrice, o.SlippageBP) {
			return fmt.Errorf("%w: order %d, price %s, reference %s, slippage %d bp",
				ErrSlippageTooBig, o.ID, calc.FormatPrice(price), calc.FormatPrice(o.ReferencePrice), o.SlippageBP)
		}
		return nil
	}

	if pair.buysBase(o) {
		if price.Cmp(o.Price) > 0 {
			return fmt.Errorf("%w: order %d buys at most %s, got %s", ErrBadPriceMatch, o.ID, calc.FormatPrice(o.Price), calc.FormatPrice(price))
		}
		return nil
	}

	if price.Cmp(o.Price) < 0 {
		return fmt.Errorf("%w: order %d sells at least %s, got %s", ErrBadPriceMatch, o.ID, calc.FormatPrice(o.Price), calc.FormatPrice(price))
	}
	return nil
}

// validatePair checks everything about two orders that does not
// depend on amounts and returns their pair and execution price.
func validatePair(t *transition, initiating, matched *Order) (Pair, *big.Int, error) {
	if matched.Status.Terminal() {
		return Pair{}, nil, fmt.Errorf("%w: matched order %d is %s", ErrInvalidOrderStatus, matched.ID, matched.Status)
	}

	if initiating.Pair() != matched.Pair() {
		return Pair{}, nil, fmt.Errorf("%w: orders %d and %d", ErrPairMismatch, initiating.ID, matched.ID)
	}

	if initiating.LockToken() == matched.LockToken() {
		return Pair{}, nil, fmt.Errorf("%w: orders %d and %d", ErrSideMismatch, initiating.ID, matched.ID)
	}

	pair, ok := t.pair(initiating.Pair())
	if !ok || !pair.Established() {
		return Pair{}, nil, ErrPairNotEstablished
	}

	price := executionPrice(&pair, initiating, matched)
	if price.Sign() == 0 {
		return Pair{}, nil, fmt.Errorf("%w: no execution price", ErrPairNotEstablished)
	}

	err := checkPrice(&pair, initiating, price)
	if err != nil {
		return Pair{}, nil, err
	}

	err = checkPrice(&pair, matched, price)
	if err != nil {
		return Pair{}, nil, err
	}

	return pair, price, nil
}

// fill matches two orders once and applies the result to both
// records, the settlement and the pair.
func (e *Engine) fill(t *transition, s *settlement, initiating, matched *Order) error {
	pair, price, err := validatePair(t, initiating, matched)
	if err != nil {
		return err
	}

	f, err := calc.ComputeFill(
		pair.party(initiating),
		pair.party(matched),
		price,
	)
	if err != nil {
		return fmt.Errorf("%w: orders %d and %d at %s", err, initiating.ID, matched.ID, calc.FormatPrice(price))
	}

	// the order giving the base token spends the base leg, the
	// other one spends the quote leg
	base := pair.Base()
	spend := func(o *Order) *big.Int {
		if o.LockToken() == base {
			return f.Base
		}
		return f.Quote
	}

	for _, o := range []*Order{initiating, matched} {
		if spend(o).Cmp(o.LockedAmount) > 0 {
			return fmt.Errorf("%w: order %d spends %s, locked %s", ErrInsufficientLocked, o.ID, spend(o), o.LockedAmount)
		}
	}

	apply := func(o *Order, counter *Order, delta *big.Int) {
		o.LockedAmount = new(big.Int).Sub(o.LockedAmount, spend(o))
		o.AmountFilled = new(big.Int).Add(o.AmountFilled, delta)
		// the counterparty receives exactly what this order
		// spends
		s.push(o.LockToken(), counter.Owner, spend(o))

		earned := calc.FeeEarned(o.FeeAmount, o.Amount, o.AmountFilled)
		t.addFee(o.LockToken(), new(big.Int).Sub(earned, o.FeeCollected))
		o.FeeCollected = earned

		ev := orderEvent(OrderFilled, o, delta)
		ev.CounterOrderID = counter.ID
		ev.Price = new(big.Int).Set(price)
		s.emit(ev)

		if o.Remaining().Sign() == 0 {
			e.close(s, o)
		} else {
			o.Status = PartiallyClosed
		}
		s.touch(o.ID)
	}

	apply(initiating, matched, f.Initiating)
	apply(matched, initiating, f.Matched)

	if pair.LastPrice.Cmp(price) != 0 {
		pair.LastPrice = price
		t.putPair(&pair)
		s.emit(priceEvent(&pair))
	}

	return nil
}

// close finalizes a fully filled order: the lock left over by price
// improvement or rounding goes back to the owner, the fee is fully
// earned by then.
func (e *Engine) close(s *settlement, o *Order) {
	o.Status = Closed
	refund := o.LockedAmount
	s.push(o.LockToken(), o.Owner, refund)
	o.LockedAmount = new(big.Int)
	s.emit(orderEvent(OrderClosed, o, refund))
}
