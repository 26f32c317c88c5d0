package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/calc"
)

func requireOwner(t *transition, caller common.Address) error {
	if t.settings().Owner != caller {
		return ErrNotOwner
	}
	return nil
}

// isAdmin consults the admin registry. Without a registry only the
// engine owner administers projects.
func (e *Engine) isAdmin(ctx context.Context, t *transition, caller, project common.Address) (bool, error) {
	settings := t.settings()
	if e.admins == nil {
		return caller == settings.Owner, nil
	}
	return e.admins.IsAdmin(ctx, settings.AdminToken, caller, project)
}

// SaleRequest lists the sell orders of an administrative sale of
// Token against Counter. Amounts and Prices pair up by index.
type SaleRequest struct {
	Token   common.Address
	Counter common.Address
	Amounts []*big.Int
	Prices  []*big.Int
	Value   *big.Int
}

// StartSale creates non-cancellable sell orders of a project token on
// behalf of one of its administrators.
func (e *Engine) StartSale(ctx context.Context, caller common.Address, req SaleRequest) ([]uint64, error) {
	var ids []uint64
	err := e.run(ctx, "start_sale", caller, req.Value, func(t *transition, s *settlement) error {
		var err error
		ids, err = e.startSale(ctx, t, s, caller, req)
		return err
	})
	return ids, err
}

func (e *Engine) startSale(ctx context.Context, t *transition, s *settlement, caller common.Address, req SaleRequest) ([]uint64, error) {
	if len(req.Amounts) != len(req.Prices) {
		return nil, fmt.Errorf("%w: %d amounts, %d prices", ErrDifferentLength, len(req.Amounts), len(req.Prices))
	}

	if len(req.Amounts) == 0 {
		return nil, ErrZeroAmount
	}

	err := validateTokens(req.Token, req.Counter)
	if err != nil {
		return nil, err
	}

	ok, err := e.isAdmin(ctx, t, caller, req.Token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAdmin
	}

	ids := make([]uint64, 0, len(req.Amounts))
	for i := range req.Amounts {
		o, err := e.placeOrder(ctx, t, s, orderParams{
			owner:  caller,
			tokenA: req.Token,
			tokenB: req.Counter,
			side:   calc.Sell,
			typ:    Limit,
			amount: req.Amounts[i],
			price:  req.Prices[i],
		})
		if err != nil {
			return nil, fmt.Errorf("sale order %d: %w", i, err)
		}
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// WithdrawFees sweeps the fee ledger of the given tokens to the owner.
func (e *Engine) WithdrawFees(ctx context.Context, caller common.Address, tokens []common.Address) error {
	return e.run(ctx, "withdraw_fees", caller, nil, func(t *transition, s *settlement) error {
		return e.withdrawFees(t, s, caller, tokens)
	})
}

// WithdrawAllFees sweeps every non-empty fee ledger to the owner.
func (e *Engine) WithdrawAllFees(ctx context.Context, caller common.Address) error {
	return e.run(ctx, "withdraw_fees", caller, nil, func(t *transition, s *settlement) error {
		return e.withdrawFees(t, s, caller, e.state.FeeTokens())
	})
}

func (e *Engine) withdrawFees(t *transition, s *settlement, caller common.Address, tokens []common.Address) error {
	err := requireOwner(t, caller)
	if err != nil {
		return err
	}

	withdrawn := false
	for _, token := range tokens {
		amount := t.fee(token)
		if amount.Sign() == 0 {
			continue
		}

		withdrawn = true
		t.setFee(token, new(big.Int))
		s.push(token, caller, amount)

		ev := newEvent(FeesWithdrawn)
		ev.Token = token
		ev.Account = caller
		ev.Amount = amount
		s.emit(ev)
	}

	if !withdrawn {
		return ErrNoFeesToWithdraw
	}
	return nil
}

// SetFeeRate changes the fee rate of orders created from now on.
func (e *Engine) SetFeeRate(ctx context.Context, caller common.Address, rateBP uint64) error {
	return e.run(ctx, "set_fee_rate", caller, nil, func(t *transition, s *settlement) error {
		return setFeeRate(t, s, caller, rateBP)
	})
}

func setFeeRate(t *transition, s *settlement, caller common.Address, rateBP uint64) error {
	err := requireOwner(t, caller)
	if err != nil {
		return err
	}

	if rateBP == 0 || rateBP > MaxFeeRateBP {
		return fmt.Errorf("%w: %d bp", ErrInvalidFeeRate, rateBP)
	}

	settings := t.settings()
	settings.FeeRateBP = rateBP
	t.putSettings(settings)

	ev := newEvent(FeeRateChanged)
	ev.Amount = new(big.Int).SetUint64(rateBP)
	s.emit(ev)
	return nil
}

// SetBackend registers the account whose signatures authorize market
// orders and matches.
func (e *Engine) SetBackend(ctx context.Context, caller, backend common.Address) error {
	return e.run(ctx, "set_backend", caller, nil, func(t *transition, s *settlement) error {
		return setBackend(t, s, caller, backend)
	})
}

func setBackend(t *transition, s *settlement, caller, backend common.Address) error {
	err := requireOwner(t, caller)
	if err != nil {
		return err
	}

	if backend == (common.Address{}) {
		return ErrZeroAddress
	}

	settings := t.settings()
	settings.Backend = backend
	t.putSettings(settings)

	ev := newEvent(BackendChanged)
	ev.Account = backend
	s.emit(ev)
	return nil
}

// SetAdminToken sets the identity token the admin registry is asked
// about.
func (e *Engine) SetAdminToken(ctx context.Context, caller, token common.Address) error {
	return e.run(ctx, "set_admin_token", caller, nil, func(t *transition, s *settlement) error {
		return setAdminToken(t, s, caller, token)
	})
}

func setAdminToken(t *transition, s *settlement, caller, token common.Address) error {
	err := requireOwner(t, caller)
	if err != nil {
		return err
	}

	if token == (common.Address{}) {
		return ErrZeroAddress
	}

	settings := t.settings()
	settings.AdminToken = token
	t.putSettings(settings)

	ev := newEvent(AdminTokenChanged)
	ev.Token = token
	s.emit(ev)
	return nil
}

// SetPairDecimals sets the price precision of a pair. It can be set
// once, before the first order of the pair sets it automatically.
func (e *Engine) SetPairDecimals(ctx context.Context, caller, tokenA, tokenB common.Address, decimals uint8) error {
	return e.run(ctx, "set_pair_decimals", caller, nil, func(t *transition, s *settlement) error {
		return e.setPairDecimals(ctx, t, s, caller, tokenA, tokenB, decimals)
	})
}

func (e *Engine) setPairDecimals(ctx context.Context, t *transition, s *settlement, caller, tokenA, tokenB common.Address, decimals uint8) error {
	err := validateTokens(tokenA, tokenB)
	if err != nil {
		return err
	}

	if decimals < MinPairDecimals || decimals > MaxPairDecimals {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}

	ok := t.settings().Owner == caller
	for _, project := range []common.Address{tokenA, tokenB} {
		if ok {
			break
		}

		ok, err = e.isAdmin(ctx, t, caller, project)
		if err != nil {
			return err
		}
	}
	if !ok {
		return ErrNotAdmin
	}

	pair, _ := t.pair(NewPairKey(tokenA, tokenB))
	if pair.Decimals != 0 {
		return ErrDecimalsAlreadySet
	}

	pair.Decimals = decimals
	t.putPair(&pair)

	ev := newEvent(PairDecimalsChanged)
	ev.Token = pair.Token0
	ev.CounterToken = pair.Token1
	ev.Amount = big.NewInt(int64(decimals))
	s.emit(ev)
	return nil
}

// SetTokenVerified sets the display-only verified flag of a token.
func (e *Engine) SetTokenVerified(ctx context.Context, caller, token common.Address, verified bool) error {
	return e.run(ctx, "set_token_verified", caller, nil, func(t *transition, s *settlement) error {
		return setTokenVerified(t, s, caller, token, verified)
	})
}

func setTokenVerified(t *transition, s *settlement, caller, token common.Address, verified bool) error {
	err := requireOwner(t, caller)
	if err != nil {
		return err
	}

	if token == (common.Address{}) {
		return ErrZeroAddress
	}

	t.putToken(token, TokenInfo{Verified: verified})

	ev := newEvent(TokenVerifiedChanged)
	ev.Token = token
	ev.Flag = verified
	s.emit(ev)
	return nil
}
