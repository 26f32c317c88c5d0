package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/calc"
)

// Order returns the order record.
func (e *Engine) Order(id uint64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := loadOrder(e.state, id)
	if !ok {
		return Order{}, ErrOrderDoesNotExist
	}
	return o, nil
}

func (e *Engine) OrderExists(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := loadOrder(e.state, id)
	return ok
}

// OrdersByUser returns a page of the ids of the orders created by
// owner, in creation order. A zero limit returns the rest.
func (e *Engine) OrdersByUser(owner common.Address, offset, limit uint64) []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := loadUint(e.state, userOrderCountPath(owner))
	return orderIDs(e.state, count, func(idx uint64) []byte {
		return userOrderPath(owner, idx)
	}, offset, limit)
}

// OrdersByPair returns a page of the ids of the orders of a pair, in
// creation order.
func (e *Engine) OrdersByPair(tokenA, tokenB common.Address, offset, limit uint64) []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := NewPairKey(tokenA, tokenB)
	count := loadUint(e.state, pairOrderCountPath(k))
	return orderIDs(e.state, count, func(idx uint64) []byte {
		return pairOrderPath(k, idx)
	}, offset, limit)
}

// PairInfo returns the registry entry of a pair. The bool is false
// when the pair has never been touched.
func (e *Engine) PairInfo(tokenA, tokenB common.Address) (Pair, bool, error) {
	err := validateTokens(tokenA, tokenB)
	if err != nil {
		return Pair{}, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := loadPair(e.state, NewPairKey(tokenA, tokenB))
	return p, ok, nil
}

// CanMatch reports why the two orders cannot be matched right now, nil
// if they can. Nothing is written.
func (e *Engine) CanMatch(initiatingID, matchedID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := newTransition(e.state)
	s := newSettlement(common.Address{}, nil)
	initiating, err := t.order(initiatingID)
	if err != nil {
		return err
	}

	if initiating.Status.Terminal() {
		return ErrInvalidOrderStatus
	}

	matched, err := t.order(matchedID)
	if err != nil {
		return err
	}

	if initiating.ID == matched.ID {
		return ErrSideMismatch
	}

	return e.fill(t, s, &initiating, &matched)
}

// Quote is the collateral an order would take.
type Quote struct {
	Lock  *big.Int
	Fee   *big.Int
	Price *big.Int
}

// QuoteRequest describes a hypothetical order. Price is ignored for
// market orders.
type QuoteRequest struct {
	TokenA     common.Address
	TokenB     common.Address
	Side       calc.Side
	Type       OrderType
	Amount     *big.Int
	Price      *big.Int
	SlippageBP uint64
}

// LockAmount computes the lock and fee an order would take if it was
// created now.
func (e *Engine) LockAmount(ctx context.Context, req QuoteRequest) (Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := newTransition(e.state)
	if err := validateTokens(req.TokenA, req.TokenB); err != nil {
		return Quote{}, err
	}

	pair, _ := t.pair(NewPairKey(req.TokenA, req.TokenB))
	price := req.Price
	if req.Type == Market {
		price = nil
	}

	o, err := e.buildOrder(ctx, t, &pair, orderParams{
		tokenA:     req.TokenA,
		tokenB:     req.TokenB,
		side:       req.Side,
		typ:        req.Type,
		amount:     req.Amount,
		price:      price,
		slippageBP: req.SlippageBP,
	})
	if err != nil {
		return Quote{}, err
	}

	return Quote{Lock: o.LockedAmount, Fee: o.FeeAmount, Price: o.Price}, nil
}

func (e *Engine) TokenVerified(token common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return loadToken(e.state, token).Verified
}

// FeeBalance returns the fee ledger balance of a token.
func (e *Engine) FeeBalance(token common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return loadFee(e.state, token)
}

func (e *Engine) FeeRate() uint64 {
	return e.Settings().FeeRateBP
}

func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, _ := loadSettings(e.state)
	return s
}

// AccountNonce returns the nonce the next transaction of addr must
// carry.
func (e *Engine) AccountNonce(addr common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return loadUint(e.state, accountNoncePath(addr))
}

// Custody returns what the engine owes for a token: the custody of
// every open order plus the fee ledger. The engine's balance of the
// token must never fall below it.
func (e *Engine) Custody(token common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := loadFee(e.state, token)
	e.state.Orders(func(o Order) bool {
		if !o.Status.Terminal() && o.LockToken() == token {
			r.Add(r, o.Custody())
		}
		return true
	})
	return r
}

// Book returns the best resting orders of a pair.
func (e *Engine) Book(tokenA, tokenB common.Address, depth int) (Book, error) {
	err := validateTokens(tokenA, tokenB)
	if err != nil {
		return Book{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, _ := loadPair(e.state, NewPairKey(tokenA, tokenB))
	return e.book.snapshot(&p, depth), nil
}
