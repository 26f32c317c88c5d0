package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/calc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSale(t *testing.T) {
	f := newFixture(t)
	f.bank.GrantAdmin(adminToken, tokenA, alice)

	req := SaleRequest{
		Token:   tokenA,
		Counter: tokenB,
		Amounts: []*big.Int{units("10"), units("20")},
		Prices:  []*big.Int{units("1"), units("1.2")},
	}

	_, err := f.e.StartSale(f.ctx, bob, req)
	assert.ErrorIs(t, err, ErrNotAdmin)

	ids, err := f.e.StartSale(f.ctx, alice, req)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	for i, id := range ids {
		o := f.order(id)
		assert.Equal(t, calc.Sell, o.Side)
		assert.Equal(t, alice, o.Owner)
		assert.False(t, o.IsCancellable)
		assert.Equal(t, req.Amounts[i].String(), o.LockedAmount.String())
	}

	assertBig(t, "969.925", f.bank.BalanceOf(tokenA, alice))
	assert.ErrorIs(t, f.e.CancelOrder(f.ctx, alice, ids[0]), ErrNonCancellable)

	// sale orders match like any other
	buy := f.limit(bob, calc.Buy, "10", "1.2")
	require.NoError(t, f.match(buy, ids[0]))
	assert.Equal(t, Closed, f.order(ids[0]).Status)
	f.conserved()
}

func TestStartSaleValidation(t *testing.T) {
	f := newFixture(t)
	f.bank.GrantAdmin(adminToken, tokenA, alice)

	_, err := f.e.StartSale(f.ctx, alice, SaleRequest{
		Token:   tokenA,
		Counter: tokenB,
		Amounts: []*big.Int{units("1")},
		Prices:  []*big.Int{units("1"), units("2")},
	})
	assert.ErrorIs(t, err, ErrDifferentLength)

	_, err = f.e.StartSale(f.ctx, alice, SaleRequest{Token: tokenA, Counter: tokenB})
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = f.e.StartSale(f.ctx, alice, SaleRequest{
		Token:   tokenA,
		Counter: tokenB,
		Amounts: []*big.Int{units("1"), big.NewInt(0)},
		Prices:  []*big.Int{units("1"), units("2")},
	})
	assert.ErrorIs(t, err, ErrZeroAmount)
	// the whole sale is rejected
	assert.Empty(t, f.e.OrdersByUser(alice, 0, 0))
	assertBig(t, "1000", f.bank.BalanceOf(tokenA, alice))
}

func TestWithdrawFees(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.e.WithdrawAllFees(f.ctx, owner), ErrNoFeesToWithdraw)

	sell := f.limit(alice, calc.Sell, "10", "1.5")
	buy := f.limit(bob, calc.Buy, "10", "1.5")
	require.NoError(t, f.match(buy, sell))

	assert.ErrorIs(t, f.e.WithdrawAllFees(f.ctx, alice), ErrNotOwner)
	assert.ErrorIs(t, f.e.WithdrawFees(f.ctx, owner, []common.Address{tokenC}), ErrNoFeesToWithdraw)

	f.sink.reset()
	require.NoError(t, f.e.WithdrawFees(f.ctx, owner, []common.Address{tokenA, tokenC}))
	assertBig(t, "0.025", f.bank.BalanceOf(tokenA, owner))
	assert.Equal(t, 0, f.e.FeeBalance(tokenA).Sign())
	assertBig(t, "0.0375", f.e.FeeBalance(tokenB))
	assert.Equal(t, []EventType{FeesWithdrawn}, f.sink.types())

	require.NoError(t, f.e.WithdrawAllFees(f.ctx, owner))
	assertBig(t, "0.0375", f.bank.BalanceOf(tokenB, owner))
	assert.ErrorIs(t, f.e.WithdrawAllFees(f.ctx, owner), ErrNoFeesToWithdraw)
	f.conserved()
}

func TestSetFeeRate(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.e.SetFeeRate(f.ctx, alice, 30), ErrNotOwner)
	assert.ErrorIs(t, f.e.SetFeeRate(f.ctx, owner, 0), ErrInvalidFeeRate)
	assert.ErrorIs(t, f.e.SetFeeRate(f.ctx, owner, MaxFeeRateBP+1), ErrInvalidFeeRate)

	old := f.limit(alice, calc.Sell, "10", "1")
	require.NoError(t, f.e.SetFeeRate(f.ctx, owner, 100))
	assert.Equal(t, uint64(100), f.e.FeeRate())

	// the rate is fixed at creation
	assertBig(t, "0.025", f.order(old).FeeAmount)
	id := f.limit(alice, calc.Sell, "10", "1")
	assertBig(t, "0.1", f.order(id).FeeAmount)
}

func TestSetBackendAndAdminToken(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.e.SetBackend(f.ctx, owner, common.Address{}), ErrZeroAddress)
	assert.ErrorIs(t, f.e.SetBackend(f.ctx, alice, bob), ErrNotOwner)
	assert.ErrorIs(t, f.e.SetAdminToken(f.ctx, owner, common.Address{}), ErrZeroAddress)

	f.sink.reset()
	require.NoError(t, f.e.SetAdminToken(f.ctx, owner, tokenC))
	assert.Equal(t, tokenC, f.e.Settings().AdminToken)

	// admin rights are looked up under the new token
	f.bank.GrantAdmin(tokenC, tokenA, bob)
	_, err := f.e.StartSale(f.ctx, bob, SaleRequest{
		Token:   tokenA,
		Counter: tokenB,
		Amounts: []*big.Int{units("1")},
		Prices:  []*big.Int{units("1")},
	})
	require.NoError(t, err)

	// a new backend invalidates the old one's signatures
	_, other := RandKeyPair()
	require.NoError(t, f.e.SetBackend(f.ctx, owner, other.Addr()))
	buy := f.limit(alice, calc.Buy, "1", "1")
	assert.ErrorIs(t, f.match(buy, 1), ErrInvalidSignature)

	f.backend = other
	require.NoError(t, f.match(buy, 1))

	types := f.sink.types()
	assert.Contains(t, types, AdminTokenChanged)
	assert.Contains(t, types, BackendChanged)
}

func TestSetPairDecimals(t *testing.T) {
	f := newFixture(t)
	f.bank.GrantAdmin(adminToken, tokenA, alice)

	assert.ErrorIs(t, f.e.SetPairDecimals(f.ctx, owner, tokenA, tokenB, 3), ErrInvalidDecimals)
	assert.ErrorIs(t, f.e.SetPairDecimals(f.ctx, owner, tokenA, tokenB, 19), ErrInvalidDecimals)
	assert.ErrorIs(t, f.e.SetPairDecimals(f.ctx, bob, tokenA, tokenB, 6), ErrNotAdmin)
	assert.ErrorIs(t, f.e.SetPairDecimals(f.ctx, owner, tokenA, tokenA, 6), ErrIdenticalTokens)

	require.NoError(t, f.e.SetPairDecimals(f.ctx, alice, tokenB, tokenA, 6))
	assert.ErrorIs(t, f.e.SetPairDecimals(f.ctx, owner, tokenA, tokenB, 8), ErrDecimalsAlreadySet)

	_, err := f.e.CreateLimitOrder(f.ctx, alice, LimitOrderRequest{
		TokenA: tokenA,
		TokenB: tokenB,
		Side:   calc.Sell,
		Amount: units("1"),
		Price:  units("1.0000001"),
	})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	f.limit(alice, calc.Sell, "1", "1.000001")
	p, _, err := f.e.PairInfo(tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), p.Decimals)
}

func TestPairDecimalsFromQuotedToken(t *testing.T) {
	f := newFixture(t)
	f.bank.RegisterToken(tokenB, "USD", 2)
	f.bank.RegisterToken(tokenC, "EUR", 8)

	f.limit(alice, calc.Sell, "1", "1")
	p, _, err := f.e.PairInfo(tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, uint8(MinPairDecimals), p.Decimals)

	_, err = f.e.CreateLimitOrder(f.ctx, alice, LimitOrderRequest{
		TokenA: tokenA,
		TokenB: tokenC,
		Side:   calc.Sell,
		Amount: units("1"),
		Price:  units("1.5"),
	})
	require.NoError(t, err)
	p, _, err = f.e.PairInfo(tokenC, tokenA)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), p.Decimals)

	// auto-set decimals can not be overridden
	assert.ErrorIs(t, f.e.SetPairDecimals(f.ctx, owner, tokenA, tokenC, 6), ErrDecimalsAlreadySet)
}

func TestSetTokenVerified(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.e.SetTokenVerified(f.ctx, alice, tokenA, true), ErrNotOwner)
	assert.ErrorIs(t, f.e.SetTokenVerified(f.ctx, owner, common.Address{}, true), ErrZeroAddress)

	require.NoError(t, f.e.SetTokenVerified(f.ctx, owner, tokenA, true))
	assert.True(t, f.e.TokenVerified(tokenA))
	require.NoError(t, f.e.SetTokenVerified(f.ctx, owner, tokenA, false))
	assert.False(t, f.e.TokenVerified(tokenA))
}
