package ledger

import (
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/calc"
	"gopkg.in/yaml.v3"
)

// Genesis is the initial content of a bank. Amounts are human readable
// decimals in units of the token.
type Genesis struct {
	Tokens []GenesisToken `yaml:"tokens"`
	Native GenesisNative  `yaml:"native"`
	Admins []GenesisAdmin `yaml:"admins"`
}

type GenesisToken struct {
	Address  string            `yaml:"address"`
	Symbol   string            `yaml:"symbol"`
	Decimals uint8             `yaml:"decimals"`
	Balances map[string]string `yaml:"balances"`
}

type GenesisNative struct {
	Balances map[string]string `yaml:"balances"`
}

type GenesisAdmin struct {
	AdminToken string `yaml:"admin_token"`
	Project    string `yaml:"project"`
	Account    string `yaml:"account"`
}

func parseAddr(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func LoadGenesis(path string) (*Genesis, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGenesis(b)
}

func ParseGenesis(b []byte) (*Genesis, error) {
	var g Genesis
	err := yaml.Unmarshal(b, &g)
	if err != nil {
		return nil, fmt.Errorf("error decoding genesis: %v", err)
	}
	return &g, nil
}

func (g *Genesis) Encode() ([]byte, error) {
	return yaml.Marshal(g)
}

func (g *Genesis) Save(path string) error {
	b, err := g.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// sortedKeys keeps the application order stable.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bank builds the bank described by the genesis.
func (g *Genesis) Bank(custody common.Address) (*Bank, error) {
	b := NewBank(custody)
	for _, t := range g.Tokens {
		token, err := parseAddr(t.Address)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
		}

		b.RegisterToken(token, t.Symbol, t.Decimals)
		for _, k := range sortedKeys(t.Balances) {
			addr, err := parseAddr(k)
			if err != nil {
				return nil, fmt.Errorf("token %s balance: %w", t.Symbol, err)
			}

			amount, err := calc.ParseFixed(t.Balances[k], int32(t.Decimals))
			if err != nil {
				return nil, fmt.Errorf("token %s balance of %s: %w", t.Symbol, k, err)
			}
			b.Mint(token, addr, amount)
		}
	}

	for _, k := range sortedKeys(g.Native.Balances) {
		addr, err := parseAddr(k)
		if err != nil {
			return nil, fmt.Errorf("native balance: %w", err)
		}

		amount, err := calc.ParseFixed(g.Native.Balances[k], DefaultDecimals)
		if err != nil {
			return nil, fmt.Errorf("native balance of %s: %w", k, err)
		}
		b.MintNative(addr, amount)
	}

	for _, a := range g.Admins {
		var addrs [3]common.Address
		for i, s := range []string{a.AdminToken, a.Project, a.Account} {
			addr, err := parseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("admin: %w", err)
			}
			addrs[i] = addr
		}
		b.GrantAdmin(addrs[0], addrs[1], addrs[2])
	}

	return b, nil
}
