package main

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/db"
	"github.com/helinwang/matchdex/pkg/dex"
	"github.com/helinwang/matchdex/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genesisYAML = `
tokens:
  - address: "0x000000000000000000000000000000000000000a"
    symbol: A
    decimals: 18
    balances:
      "0x00000000000000000000000000000000000000a1": "100"
`

var (
	engineAddr = common.HexToAddress("0xe0")
	alice      = common.HexToAddress("0xa1")
	tokenA     = common.HexToAddress("0x0a")
)

func TestOpenBankKeepsBalancesAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	g, err := ledger.ParseGenesis([]byte(genesisYAML))
	require.NoError(t, err)

	store, err := db.Open(dir)
	require.NoError(t, err)
	bank, err := openBank(g, store, engineAddr)
	require.NoError(t, err)
	require.NoError(t, bank.TransferFrom(ctx, tokenA, alice, big.NewInt(1000)))
	require.NoError(t, store.Close())

	store, err = db.Open(dir)
	require.NoError(t, err)
	defer store.Close()
	bank, err = openBank(g, store, engineAddr)
	require.NoError(t, err)

	want := new(big.Int).Sub(new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil), big.NewInt(1000))
	assert.Equal(t, want.String(), bank.BalanceOf(tokenA, alice).String())
	assert.Equal(t, int64(1000), bank.BalanceOf(tokenA, engineAddr).Int64())
}

func TestOpenBankRefusesUnseededState(t *testing.T) {
	g, err := ledger.ParseGenesis([]byte(genesisYAML))
	require.NoError(t, err)

	store, err := db.Open("")
	require.NoError(t, err)
	defer store.Close()

	// an engine created on a bank that never persisted its balances
	_, err = dex.NewEngine(store, ledger.NewBank(engineAddr), dex.Config{Address: engineAddr, Owner: alice})
	require.NoError(t, err)

	_, err = openBank(g, store, engineAddr)
	assert.ErrorIs(t, err, errUnseededLedger)
}
