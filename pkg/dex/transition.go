package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type undo struct {
	key  []byte
	prev []byte
}

// transition buffers the writes of one operation on top of the
// committed state. Nothing reaches the database before commit, and a
// committed transition can be reverted from the recorded pre-images.
type transition struct {
	s      *State
	writes map[string][]byte
	// keys keeps the write order so that commit is deterministic.
	keys [][]byte
	undo []undo
}

func newTransition(s *State) *transition {
	return &transition{s: s, writes: make(map[string][]byte)}
}

func (t *transition) get(key []byte) []byte {
	if v, ok := t.writes[string(key)]; ok {
		return v
	}
	return t.s.get(key)
}

func (t *transition) put(key []byte, v interface{}) {
	k := string(key)
	if _, ok := t.writes[k]; !ok {
		t.keys = append(t.keys, key)
	}
	t.writes[k] = encode(v)
}

// commit writes the buffered values in one batch, so either all of
// them reach the database or none do.
func (t *transition) commit() error {
	batch := t.s.db.NewBatch()
	pre := make([]undo, 0, len(t.keys))
	for _, key := range t.keys {
		pre = append(pre, undo{key: key, prev: t.s.get(key)})
		err := batch.Put(key, t.writes[string(key)])
		if err != nil {
			return fmt.Errorf("error committing state: %w", err)
		}
	}

	err := batch.Write()
	if err != nil {
		return fmt.Errorf("error committing state: %w", err)
	}
	t.undo = pre
	return nil
}

// revert restores the pre-images of a committed transition in one
// batch.
func (t *transition) revert() error {
	if len(t.undo) == 0 {
		return nil
	}

	batch := t.s.db.NewBatch()
	for i := len(t.undo) - 1; i >= 0; i-- {
		u := t.undo[i]
		var err error
		if u.prev == nil {
			err = batch.Delete(u.key)
		} else {
			err = batch.Put(u.key, u.prev)
		}
		if err != nil {
			return fmt.Errorf("error reverting state: %w", err)
		}
	}

	err := batch.Write()
	if err != nil {
		return fmt.Errorf("error reverting state: %w", err)
	}
	t.undo = nil
	return nil
}

func (t *transition) order(id uint64) (Order, error) {
	o, ok := loadOrder(t, id)
	if !ok {
		return Order{}, ErrOrderDoesNotExist
	}
	return o, nil
}

func (t *transition) putOrder(o *Order) {
	t.put(orderPath(o.ID), o)
}

func (t *transition) pair(k PairKey) (Pair, bool) {
	return loadPair(t, k)
}

func (t *transition) putPair(p *Pair) {
	t.put(pairPath(p.Key()), p)
}

func (t *transition) settings() Settings {
	s, _ := loadSettings(t)
	return s
}

func (t *transition) putSettings(s Settings) {
	t.put(settingsKey, s)
}

func (t *transition) nextOrderID() uint64 {
	id := loadUint(t, orderCounterKey) + 1
	t.put(orderCounterKey, id)
	return id
}

func (t *transition) appendUserOrder(addr common.Address, id uint64) {
	n := loadUint(t, userOrderCountPath(addr))
	t.put(userOrderPath(addr, n), id)
	t.put(userOrderCountPath(addr), n+1)
}

func (t *transition) appendPairOrder(k PairKey, id uint64) {
	n := loadUint(t, pairOrderCountPath(k))
	t.put(pairOrderPath(k, n), id)
	t.put(pairOrderCountPath(k), n+1)
}

func (t *transition) fee(token common.Address) *big.Int {
	return loadFee(t, token)
}

func (t *transition) addFee(token common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	t.put(feePath(token), new(big.Int).Add(t.fee(token), amount))
}

func (t *transition) setFee(token common.Address, amount *big.Int) {
	t.put(feePath(token), amount)
}

func (t *transition) consumeAuthNonce(nonce *big.Int) error {
	if authNonceUsed(t, nonce) {
		return ErrTxAlreadyExecuted
	}
	t.put(authNoncePath(nonce), true)
	return nil
}

func (t *transition) accountNonce(addr common.Address) uint64 {
	return loadUint(t, accountNoncePath(addr))
}

func (t *transition) bumpAccountNonce(addr common.Address) {
	t.put(accountNoncePath(addr), t.accountNonce(addr)+1)
}

func (t *transition) token(token common.Address) TokenInfo {
	return loadToken(t, token)
}

func (t *transition) putToken(token common.Address, info TokenInfo) {
	t.put(tokenPath(token), info)
}
