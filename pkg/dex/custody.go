package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// TokenTransferer moves tracked tokens in and out of the engine's
// custody. Each call either fully succeeds or fails without effect.
type TokenTransferer interface {
	// TransferFrom pulls amount of token from the account into
	// the engine's custody.
	TransferFrom(ctx context.Context, token, from common.Address, amount *big.Int) error
	// Transfer pushes amount of token from the engine's custody
	// to the account.
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error
}

// NativeTransferer moves the native asset. Receive accepts value
// attached to a call, Send pays it out.
type NativeTransferer interface {
	Receive(ctx context.Context, from common.Address, amount *big.Int) error
	Send(ctx context.Context, to common.Address, amount *big.Int) error
}

// custody routes a transfer to the token or the native collaborator.
// Both routes share all the arithmetic above them.
type custody struct {
	tokens TokenTransferer
	native NativeTransferer
}

func (c *custody) pull(ctx context.Context, tr transfer) error {
	if tr.token == NativeToken {
		if c.native == nil {
			return ErrNativeUnsupported
		}
		return c.native.Receive(ctx, tr.account, tr.amount)
	}
	return c.tokens.TransferFrom(ctx, tr.token, tr.account, tr.amount)
}

func (c *custody) push(ctx context.Context, tr transfer) error {
	if tr.token == NativeToken {
		if c.native == nil {
			return ErrNativeUnsupported
		}
		return c.native.Send(ctx, tr.account, tr.amount)
	}
	return c.tokens.Transfer(ctx, tr.token, tr.account, tr.amount)
}

type transfer struct {
	token   common.Address
	account common.Address
	amount  *big.Int
}

func (tr transfer) String() string {
	return fmt.Sprintf("%s %s %s", tr.token.Hex(), tr.account.Hex(), tr.amount)
}

// settlement collects the value movements and notifications of one
// operation. They are executed only after the state is validated and
// mutated.
type settlement struct {
	sender common.Address
	value  *big.Int

	pulls   []transfer
	pushes  []transfer
	events  []Event
	touched map[uint64]bool
}

func newSettlement(sender common.Address, value *big.Int) *settlement {
	if value == nil {
		value = new(big.Int)
	}
	return &settlement{sender: sender, value: value, touched: make(map[uint64]bool)}
}

func merge(list []transfer, tr transfer) []transfer {
	if tr.amount == nil || tr.amount.Sign() == 0 {
		return list
	}

	for i := range list {
		if list[i].token == tr.token && list[i].account == tr.account {
			list[i].amount = new(big.Int).Add(list[i].amount, tr.amount)
			return list
		}
	}
	return append(list, transfer{token: tr.token, account: tr.account, amount: new(big.Int).Set(tr.amount)})
}

func (s *settlement) pull(token, from common.Address, amount *big.Int) {
	s.pulls = merge(s.pulls, transfer{token: token, account: from, amount: amount})
}

func (s *settlement) push(token, to common.Address, amount *big.Int) {
	s.pushes = merge(s.pushes, transfer{token: token, account: to, amount: amount})
}

func (s *settlement) emit(e Event) {
	s.events = append(s.events, e)
}

func (s *settlement) touch(id uint64) {
	s.touched[id] = true
}

// attachValue replaces the native pull with the value attached to the
// call and refunds the excess.
func (s *settlement) attachValue() error {
	need := new(big.Int)
	pulls := s.pulls[:0]
	for _, p := range s.pulls {
		if p.token == NativeToken {
			need.Add(need, p.amount)
			continue
		}
		pulls = append(pulls, p)
	}
	s.pulls = pulls

	if need.Sign() == 0 {
		if s.value.Sign() != 0 {
			return ErrUnexpectedValue
		}
		return nil
	}

	if s.value.Cmp(need) < 0 {
		return fmt.Errorf("%w: need %s, got %s", ErrInsufficientValue, need, s.value)
	}

	s.pulls = append(s.pulls, transfer{token: NativeToken, account: s.sender, amount: new(big.Int).Set(s.value)})
	s.push(NativeToken, s.sender, new(big.Int).Sub(s.value, need))
	return nil
}

// execute pulls collateral, commits the transition, then pushes
// value out. State is final before any value leaves the engine. Any
// failure reverts the state and compensates the transfers already
// made.
func (c *custody) execute(ctx context.Context, t *transition, s *settlement) error {
	var pulled []transfer
	for _, p := range s.pulls {
		err := c.pull(ctx, p)
		if err != nil {
			c.compensate(ctx, pulled, nil)
			return fmt.Errorf("%w: pull %s: %w", ErrTransferFailed, p, err)
		}
		pulled = append(pulled, p)
	}

	err := t.commit()
	if err != nil {
		c.compensate(ctx, pulled, nil)
		return err
	}

	var pushed []transfer
	for _, p := range s.pushes {
		err := c.push(ctx, p)
		if err != nil {
			if rerr := t.revert(); rerr != nil {
				log.Error("error reverting state", "err", rerr)
			}
			c.compensate(ctx, pulled, pushed)
			return fmt.Errorf("%w: push %s: %w", ErrTransferFailed, p, err)
		}
		pushed = append(pushed, p)
	}

	return nil
}

func (c *custody) compensate(ctx context.Context, pulled, pushed []transfer) {
	for i := len(pushed) - 1; i >= 0; i-- {
		if err := c.pull(ctx, pushed[i]); err != nil {
			log.Error("error compensating push", "transfer", pushed[i], "err", err)
		}
	}

	for i := len(pulled) - 1; i >= 0; i-- {
		if err := c.push(ctx, pulled[i]); err != nil {
			log.Error("error compensating pull", "transfer", pulled[i], "err", err)
		}
	}
}
