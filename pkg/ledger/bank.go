package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// DefaultDecimals is reported for tokens without registered metadata.
const DefaultDecimals = 18

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrFrozen              = errors.New("account frozen")
	ErrNegativeAmount      = errors.New("negative amount")
	ErrPersist             = errors.New("error persisting balances")
)

// Bank is an in-memory token ledger. It holds the balances of every
// account, including the engine's custody account, and serves the
// engine's transfer, native asset, token metadata and project admin
// collaborators.
type Bank struct {
	mu      sync.Mutex
	custody common.Address

	balances map[common.Address]map[common.Address]*big.Int
	native   map[common.Address]*big.Int
	decimals map[common.Address]uint8
	symbols  map[common.Address]string
	// admins maps admin token, then project, to its administrators.
	admins map[common.Address]map[common.Address]map[common.Address]bool
	frozen map[common.Address]bool

	// store is set once the bank persists its balances.
	store Store
}

// NewBank creates an empty bank whose TransferFrom and Transfer move
// tokens in and out of the custody account.
func NewBank(custody common.Address) *Bank {
	return &Bank{
		custody:  custody,
		balances: make(map[common.Address]map[common.Address]*big.Int),
		native:   make(map[common.Address]*big.Int),
		decimals: make(map[common.Address]uint8),
		symbols:  make(map[common.Address]string),
		admins:   make(map[common.Address]map[common.Address]map[common.Address]bool),
		frozen:   make(map[common.Address]bool),
	}
}

func (b *Bank) Custody() common.Address {
	return b.custody
}

// RegisterToken records the metadata of a token.
func (b *Bank) RegisterToken(token common.Address, symbol string, decimals uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.symbols[token] = symbol
	b.decimals[token] = decimals
}

// Tokens returns the registered tokens sorted by address.
func (b *Bank) Tokens() []common.Address {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := make([]common.Address, 0, len(b.decimals))
	for t := range b.decimals {
		r = append(r, t)
	}

	sort.Slice(r, func(i, j int) bool {
		return r[i].Cmp(r[j]) < 0
	})
	return r
}

func (b *Bank) Symbol(token common.Address) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.symbols[token]
}

func (b *Bank) Decimals(_ context.Context, token common.Address) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.decimals[token]
	if !ok {
		return DefaultDecimals, nil
	}
	return d, nil
}

func (b *Bank) balance(token, addr common.Address) *big.Int {
	m, ok := b.balances[token]
	if !ok {
		m = make(map[common.Address]*big.Int)
		b.balances[token] = m
	}

	v, ok := m[addr]
	if !ok {
		v = new(big.Int)
		m[addr] = v
	}
	return v
}

// Mint credits amount of token to the account.
func (b *Bank) Mint(token, to common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.balance(token, to)
	next := new(big.Int).Add(bal, amount)
	err := b.write(balanceWrite{tokenBalanceKey(token, to), next})
	if err != nil {
		log.Error("error minting", "token", token, "to", to, "amount", amount, "err", err)
		return
	}
	bal.Set(next)
}

// MintNative credits native asset to the account.
func (b *Bank) MintNative(to common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.nativeBalance(to)
	next := new(big.Int).Add(bal, amount)
	err := b.write(balanceWrite{nativeBalanceKey(to), next})
	if err != nil {
		log.Error("error minting native", "to", to, "amount", amount, "err", err)
		return
	}
	bal.Set(next)
}

// BalanceOf returns a copy of the token balance of the account.
func (b *Bank) BalanceOf(token, addr common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return new(big.Int).Set(b.balance(token, addr))
}

func (b *Bank) nativeBalance(addr common.Address) *big.Int {
	v, ok := b.native[addr]
	if !ok {
		v = new(big.Int)
		b.native[addr] = v
	}
	return v
}

// NativeBalance returns a copy of the native balance of the account.
func (b *Bank) NativeBalance(addr common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return new(big.Int).Set(b.nativeBalance(addr))
}

// Freeze makes every transfer from or to the account fail.
func (b *Bank) Freeze(addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frozen[addr] = true
}

func (b *Bank) Unfreeze(addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.frozen, addr)
}

// move persists and then applies a transfer between two balances.
func (b *Bank) move(from, to *big.Int, fromKey, toKey []byte, amount *big.Int) error {
	if bytes.Equal(fromKey, toKey) {
		return nil
	}

	nextFrom := new(big.Int).Sub(from, amount)
	nextTo := new(big.Int).Add(to, amount)
	err := b.write(balanceWrite{fromKey, nextFrom}, balanceWrite{toKey, nextTo})
	if err != nil {
		return err
	}

	from.Set(nextFrom)
	to.Set(nextTo)
	return nil
}

func (b *Bank) check(from, to common.Address, fromBal, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}

	if b.frozen[from] {
		return fmt.Errorf("%w: %s", ErrFrozen, from.Hex())
	}

	if b.frozen[to] {
		return fmt.Errorf("%w: %s", ErrFrozen, to.Hex())
	}

	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBal, amount)
	}
	return nil
}

// Send moves amount of token between two accounts.
func (b *Bank) Send(token, from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBal := b.balance(token, from)
	err := b.check(from, to, fromBal, amount)
	if err != nil {
		return err
	}

	return b.move(fromBal, b.balance(token, to), tokenBalanceKey(token, from), tokenBalanceKey(token, to), amount)
}

func (b *Bank) TransferFrom(_ context.Context, token, from common.Address, amount *big.Int) error {
	err := b.Send(token, from, b.custody, amount)
	if err != nil {
		log.Debug("transfer from failed", "token", token, "from", from, "amount", amount, "err", err)
	}
	return err
}

func (b *Bank) Transfer(_ context.Context, token, to common.Address, amount *big.Int) error {
	err := b.Send(token, b.custody, to, amount)
	if err != nil {
		log.Debug("transfer failed", "token", token, "to", to, "amount", amount, "err", err)
	}
	return err
}

// Native returns the bank's native asset collaborator.
func (b *Bank) Native() *Native {
	return (*Native)(b)
}

// Native moves the native asset between accounts and the custody
// account.
type Native Bank

func (n *Native) sendNative(from, to common.Address, amount *big.Int) error {
	b := (*Bank)(n)
	b.mu.Lock()
	defer b.mu.Unlock()

	fromBal := b.nativeBalance(from)
	err := b.check(from, to, fromBal, amount)
	if err != nil {
		return err
	}

	return b.move(fromBal, b.nativeBalance(to), nativeBalanceKey(from), nativeBalanceKey(to), amount)
}

// Receive takes value attached to a call into custody.
func (n *Native) Receive(_ context.Context, from common.Address, amount *big.Int) error {
	return n.sendNative(from, n.custody, amount)
}

// Send pays native asset out of custody.
func (n *Native) Send(_ context.Context, to common.Address, amount *big.Int) error {
	return n.sendNative(n.custody, to, amount)
}

// GrantAdmin makes account an administrator of project under
// adminToken.
func (b *Bank) GrantAdmin(adminToken, project, account common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()

	projects, ok := b.admins[adminToken]
	if !ok {
		projects = make(map[common.Address]map[common.Address]bool)
		b.admins[adminToken] = projects
	}

	accounts, ok := projects[project]
	if !ok {
		accounts = make(map[common.Address]bool)
		projects[project] = accounts
	}
	accounts[account] = true
}

func (b *Bank) IsAdmin(_ context.Context, adminToken, account, project common.Address) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.admins[adminToken][project][account], nil
}
