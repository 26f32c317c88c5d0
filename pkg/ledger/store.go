package ledger

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
)

// Store is the key-value store the balances are persisted in. The
// engine state database satisfies it, the ledger keys sort after the
// engine's own keys.
type Store interface {
	Has(key []byte) (bool, error)
	NewIterator(prefix []byte, start []byte) ethdb.Iterator
	NewBatch() ethdb.Batch
}

var (
	tokenBalancePrefix  = []byte("ledger/t/")
	nativeBalancePrefix = []byte("ledger/n/")
	seededKey           = []byte("ledger/seeded")
)

func tokenBalanceKey(token, addr common.Address) []byte {
	k := make([]byte, 0, len(tokenBalancePrefix)+2*common.AddressLength)
	k = append(k, tokenBalancePrefix...)
	k = append(k, token.Bytes()...)
	return append(k, addr.Bytes()...)
}

func nativeBalanceKey(addr common.Address) []byte {
	return append(bytes.Clone(nativeBalancePrefix), addr.Bytes()...)
}

// Seeded reports whether store already holds ledger balances.
func Seeded(store Store) (bool, error) {
	ok, err := store.Has(seededKey)
	if err != nil {
		return false, fmt.Errorf("error reading ledger: %w", err)
	}
	return ok, nil
}

// Persist makes the bank write every balance change through to store.
//
// A store that already holds balances is authoritative: they replace
// the balances in memory, so a restarted node keeps what its accounts
// and custody held when it stopped. An empty store is seeded with the
// current balances.
func (b *Bank) Persist(store Store) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	seeded, err := Seeded(store)
	if err != nil {
		return err
	}

	if seeded {
		err = b.load(store)
		if err != nil {
			return err
		}
		b.store = store
		log.Info("ledger balances loaded", "tokens", len(b.balances), "native", len(b.native))
		return nil
	}

	batch := store.NewBatch()
	for token, m := range b.balances {
		for addr, v := range m {
			err = batch.Put(tokenBalanceKey(token, addr), v.Bytes())
			if err != nil {
				return err
			}
		}
	}
	for addr, v := range b.native {
		err = batch.Put(nativeBalanceKey(addr), v.Bytes())
		if err != nil {
			return err
		}
	}
	err = batch.Put(seededKey, []byte{1})
	if err != nil {
		return err
	}

	err = batch.Write()
	if err != nil {
		return fmt.Errorf("error seeding ledger: %w", err)
	}
	b.store = store
	log.Info("ledger seeded", "tokens", len(b.balances), "native", len(b.native))
	return nil
}

func (b *Bank) load(store Store) error {
	balances := make(map[common.Address]map[common.Address]*big.Int)
	it := store.NewIterator(tokenBalancePrefix, nil)
	for it.Next() {
		k := it.Key()[len(tokenBalancePrefix):]
		if len(k) != 2*common.AddressLength {
			it.Release()
			return fmt.Errorf("invalid ledger key %x", it.Key())
		}

		token := common.BytesToAddress(k[:common.AddressLength])
		addr := common.BytesToAddress(k[common.AddressLength:])
		m, ok := balances[token]
		if !ok {
			m = make(map[common.Address]*big.Int)
			balances[token] = m
		}
		m[addr] = new(big.Int).SetBytes(it.Value())
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return fmt.Errorf("error loading token balances: %w", err)
	}

	native := make(map[common.Address]*big.Int)
	it = store.NewIterator(nativeBalancePrefix, nil)
	for it.Next() {
		k := it.Key()[len(nativeBalancePrefix):]
		if len(k) != common.AddressLength {
			it.Release()
			return fmt.Errorf("invalid ledger key %x", it.Key())
		}
		native[common.BytesToAddress(k)] = new(big.Int).SetBytes(it.Value())
	}
	err = it.Error()
	it.Release()
	if err != nil {
		return fmt.Errorf("error loading native balances: %w", err)
	}

	b.balances = balances
	b.native = native
	return nil
}

type balanceWrite struct {
	key   []byte
	value *big.Int
}

// write persists the new values of the changed balances in one batch.
// Nothing is written for a bank without a store.
func (b *Bank) write(ws ...balanceWrite) error {
	if b.store == nil {
		return nil
	}

	batch := b.store.NewBatch()
	for _, w := range ws {
		err := batch.Put(w.key, w.value.Bytes())
		if err != nil {
			return err
		}
	}

	err := batch.Write()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
