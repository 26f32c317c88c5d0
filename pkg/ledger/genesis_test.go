package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genesisYAML = `
tokens:
  - address: "0x0000000000000000000000000000000000000070"
    symbol: TOK
    decimals: 6
    balances:
      "0x00000000000000000000000000000000000000a1": "1000.5"
native:
  balances:
    "0x00000000000000000000000000000000000000b0": "2"
admins:
  - admin_token: "0x00000000000000000000000000000000000000ad"
    project: "0x0000000000000000000000000000000000000070"
    account: "0x00000000000000000000000000000000000000a1"
`

func TestGenesisBank(t *testing.T) {
	g, err := ParseGenesis([]byte(genesisYAML))
	require.NoError(t, err)

	b, err := g.Bank(custody)
	require.NoError(t, err)

	assert.Equal(t, int64(1000500000), b.BalanceOf(token, alice).Int64())
	assert.Equal(t, "2000000000000000000", b.NativeBalance(bob).String())
	assert.Equal(t, "TOK", b.Symbol(token))
	assert.Equal(t, []common.Address{token}, b.Tokens())

	ok, err := b.IsAdmin(context.Background(), common.HexToAddress("0xad"), alice, token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenesisRoundTrip(t *testing.T) {
	g, err := ParseGenesis([]byte(genesisYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, g.Save(path))

	loaded, err := LoadGenesis(path)
	require.NoError(t, err)
	assert.Equal(t, g, loaded)
}

func TestGenesisErrors(t *testing.T) {
	g := &Genesis{Tokens: []GenesisToken{{Address: "nope", Symbol: "X"}}}
	_, err := g.Bank(custody)
	assert.Error(t, err)

	g = &Genesis{Tokens: []GenesisToken{{
		Address:  token.Hex(),
		Decimals: 2,
		Balances: map[string]string{alice.Hex(): "1.001"},
	}}}
	_, err = g.Bank(custody)
	assert.Error(t, err)
}
