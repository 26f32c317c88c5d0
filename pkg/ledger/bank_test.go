package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	custody = common.HexToAddress("0xc0")
	alice   = common.HexToAddress("0xa1")
	bob     = common.HexToAddress("0xb0")
	token   = common.HexToAddress("0x70")
)

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	b := NewBank(custody)
	b.Mint(token, alice, big.NewInt(100))

	require.NoError(t, b.TransferFrom(ctx, token, alice, big.NewInt(60)))
	assert.Equal(t, int64(40), b.BalanceOf(token, alice).Int64())
	assert.Equal(t, int64(60), b.BalanceOf(token, custody).Int64())

	require.NoError(t, b.Transfer(ctx, token, bob, big.NewInt(10)))
	assert.Equal(t, int64(50), b.BalanceOf(token, custody).Int64())
	assert.Equal(t, int64(10), b.BalanceOf(token, bob).Int64())

	err := b.TransferFrom(ctx, token, alice, big.NewInt(41))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(40), b.BalanceOf(token, alice).Int64())

	err = b.Transfer(ctx, token, bob, big.NewInt(-1))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestFreeze(t *testing.T) {
	ctx := context.Background()
	b := NewBank(custody)
	b.Mint(token, alice, big.NewInt(100))

	b.Freeze(alice)
	err := b.TransferFrom(ctx, token, alice, big.NewInt(1))
	assert.ErrorIs(t, err, ErrFrozen)

	b.Unfreeze(alice)
	assert.NoError(t, b.TransferFrom(ctx, token, alice, big.NewInt(1)))
}

func TestNative(t *testing.T) {
	ctx := context.Background()
	b := NewBank(custody)
	b.MintNative(alice, big.NewInt(5))

	n := b.Native()
	require.NoError(t, n.Receive(ctx, alice, big.NewInt(3)))
	assert.Equal(t, int64(2), b.NativeBalance(alice).Int64())
	assert.Equal(t, int64(3), b.NativeBalance(custody).Int64())

	require.NoError(t, n.Send(ctx, bob, big.NewInt(3)))
	assert.Equal(t, int64(3), b.NativeBalance(bob).Int64())

	assert.ErrorIs(t, n.Send(ctx, bob, big.NewInt(1)), ErrInsufficientBalance)
	// native and token balances are separate
	assert.Equal(t, int64(0), b.BalanceOf(token, alice).Int64())
}

func TestMetadataAndAdmins(t *testing.T) {
	ctx := context.Background()
	b := NewBank(custody)
	b.RegisterToken(token, "TOK", 6)

	d, err := b.Decimals(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)

	d, err = b.Decimals(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint8(DefaultDecimals), d)

	adminToken := common.HexToAddress("0xad")
	b.GrantAdmin(adminToken, token, alice)

	ok, err := b.IsAdmin(ctx, adminToken, alice, token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = b.IsAdmin(ctx, adminToken, bob, token)
	assert.False(t, ok)
	ok, _ = b.IsAdmin(ctx, common.HexToAddress("0xae"), alice, token)
	assert.False(t, ok)
}
