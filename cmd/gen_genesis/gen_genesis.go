package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/helinwang/matchdex/pkg/dex"
	"github.com/helinwang/matchdex/pkg/ledger"
	"github.com/urfave/cli"
)

// tokenAddr derives a stable token address from its symbol.
func tokenAddr(symbol string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("matchdex-token:" + symbol)))
}

func parseTokens(list string) ([]ledger.GenesisToken, error) {
	var tokens []ledger.GenesisToken
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		fields := strings.Split(part, ":")
		if len(fields) != 2 {
			return nil, fmt.Errorf("token %q not in SYMBOL:DECIMALS format", part)
		}

		decimals, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("token %s decimals: %v", fields[0], err)
		}

		tokens = append(tokens, ledger.GenesisToken{
			Address:  tokenAddr(fields[0]).Hex(),
			Symbol:   fields[0],
			Decimals: uint8(decimals),
			Balances: make(map[string]string),
		})
	}
	return tokens, nil
}

func genGenesis(c *cli.Context) error {
	tokens, err := parseTokens(c.String("tokens"))
	if err != nil {
		return err
	}

	outDir := c.String("d")
	keyDir := filepath.Join(outDir, "keys")
	err = os.MkdirAll(keyDir, os.ModePerm)
	if err != nil {
		return err
	}

	g := ledger.Genesis{
		Tokens: tokens,
		Native: ledger.GenesisNative{Balances: make(map[string]string)},
	}

	balance := c.String("balance")
	for i := 0; i < c.Int("N"); i++ {
		pk, sk := dex.RandKeyPair()
		addr := pk.Addr().Hex()
		for j := range g.Tokens {
			g.Tokens[j].Balances[addr] = balance
		}
		g.Native.Balances[addr] = balance

		err = dex.SaveCredential(filepath.Join(keyDir, fmt.Sprintf("account-%d", i)), dex.Credential{PK: pk, SK: sk})
		if err != nil {
			return err
		}

		if i == 0 {
			// the first account administers every token
			for _, t := range g.Tokens {
				g.Admins = append(g.Admins, ledger.GenesisAdmin{
					AdminToken: c.String("admin-token"),
					Project:    t.Address,
					Account:    addr,
				})
			}
		}
	}

	path := filepath.Join(outDir, "genesis.yaml")
	err = g.Save(path)
	if err != nil {
		return err
	}

	fmt.Println(path)
	for _, t := range g.Tokens {
		fmt.Printf("%s\t%s\n", t.Symbol, t.Address)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "gen_genesis"
	app.Usage = "generate a genesis ledger and funded account keys"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "N", Value: 3, Usage: "number of funded accounts"},
		cli.StringFlag{Name: "tokens", Value: "ETH:18,USDC:6,BTC:8", Usage: "tokens as SYMBOL:DECIMALS, comma separated"},
		cli.StringFlag{Name: "balance", Value: "1000", Usage: "balance of every account in every token and the native asset"},
		cli.StringFlag{Name: "admin-token", Value: common.HexToAddress("0xad").Hex(), Usage: "admin token the project admins are registered under"},
		cli.StringFlag{Name: "d", Value: "./genesis", Usage: "output directory"},
	}
	app.Action = genGenesis

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "command failed with error: %v\n", err)
		os.Exit(1)
	}
}
