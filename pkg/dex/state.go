package dex

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
)

// Database is the key-value store the state is persisted in.
//
// *memorydb.Database satisfies it, pkg/db provides a badger backed
// implementation.
type Database interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte, start []byte) ethdb.Iterator
	NewBatch() ethdb.Batch
}

// NewMemDatabase returns an in-memory database.
func NewMemDatabase() Database {
	return memorydb.New()
}

var (
	orderPrefix          = []byte{0}
	pairPrefix           = []byte{1}
	feePrefix            = []byte{2}
	authNoncePrefix      = []byte{3}
	userOrdersPrefix     = []byte{4}
	userOrderCountPrefix = []byte{5}
	pairOrdersPrefix     = []byte{6}
	pairOrderCountPrefix = []byte{7}
	tokenPrefix          = []byte{8}
	accountNoncePrefix   = []byte{9}
	settingsKey          = []byte{10}
	// orderCounterKey sorts last among the state keys.
	orderCounterKey = []byte{11}
)

func join(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}

	r := make([]byte, 0, n)
	for _, p := range parts {
		r = append(r, p...)
	}
	return r
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func orderPath(id uint64) []byte {
	return join(orderPrefix, u64(id))
}

func pairPath(k PairKey) []byte {
	return join(pairPrefix, k.Encode())
}

func feePath(token common.Address) []byte {
	return join(feePrefix, token[:])
}

func authNoncePath(nonce *big.Int) []byte {
	return join(authNoncePrefix, common.BigToHash(nonce).Bytes())
}

func userOrderPath(addr common.Address, idx uint64) []byte {
	return join(userOrdersPrefix, addr[:], u64(idx))
}

func userOrderCountPath(addr common.Address) []byte {
	return join(userOrderCountPrefix, addr[:])
}

func pairOrderPath(k PairKey, idx uint64) []byte {
	return join(pairOrdersPrefix, k.Encode(), u64(idx))
}

func pairOrderCountPath(k PairKey) []byte {
	return join(pairOrderCountPrefix, k.Encode())
}

func tokenPath(token common.Address) []byte {
	return join(tokenPrefix, token[:])
}

func accountNoncePath(addr common.Address) []byte {
	return join(accountNoncePrefix, addr[:])
}

// reader is the read side shared by the committed state and a
// transition on top of it.
type reader interface {
	get(key []byte) []byte
}

// State is the persisted state of the exchange.
type State struct {
	db Database
}

func NewState(db Database) *State {
	return &State{db: db}
}

func (s *State) get(key []byte) []byte {
	ok, err := s.db.Has(key)
	if err != nil {
		panic(err)
	}

	if !ok {
		return nil
	}

	b, err := s.db.Get(key)
	if err != nil {
		panic(err)
	}

	return b
}

// scan calls fn for every value stored under prefix, in key order.
func (s *State) scan(prefix []byte, fn func(key, value []byte) bool) {
	iter := s.db.NewIterator(prefix, nil)
	defer iter.Release()

	for iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}

	if err := iter.Error(); err != nil {
		log.Error("error iterating state", "prefix", prefix, "err", err)
	}
}

func decode[T any](b []byte) T {
	var v T
	err := rlp.DecodeBytes(b, &v)
	if err != nil {
		// the state only contains values written by the
		// engine
		panic(err)
	}
	return v
}

func encode(v interface{}) []byte {
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(err)
	}
	return b
}

func loadOrder(r reader, id uint64) (Order, bool) {
	b := r.get(orderPath(id))
	if len(b) == 0 {
		return Order{}, false
	}
	return decode[Order](b), true
}

func loadPair(r reader, k PairKey) (Pair, bool) {
	b := r.get(pairPath(k))
	if len(b) == 0 {
		return Pair{Token0: k.Token0, Token1: k.Token1, LastPrice: new(big.Int)}, false
	}
	return decode[Pair](b), true
}

func loadFee(r reader, token common.Address) *big.Int {
	b := r.get(feePath(token))
	if len(b) == 0 {
		return new(big.Int)
	}
	return decode[*big.Int](b)
}

func loadUint(r reader, key []byte) uint64 {
	b := r.get(key)
	if len(b) == 0 {
		return 0
	}
	return decode[uint64](b)
}

func loadSettings(r reader) (Settings, bool) {
	b := r.get(settingsKey)
	if len(b) == 0 {
		return Settings{}, false
	}
	return decode[Settings](b), true
}

func loadToken(r reader, token common.Address) TokenInfo {
	b := r.get(tokenPath(token))
	if len(b) == 0 {
		return TokenInfo{}
	}
	return decode[TokenInfo](b)
}

func authNonceUsed(r reader, nonce *big.Int) bool {
	return len(r.get(authNoncePath(nonce))) > 0
}

// orderIDs returns a page of an append-only order index.
func orderIDs(r reader, count uint64, path func(idx uint64) []byte, offset, limit uint64) []uint64 {
	if offset >= count {
		return nil
	}

	end := count
	if limit > 0 && offset+limit < count {
		end = offset + limit
	}

	ids := make([]uint64, 0, end-offset)
	for i := offset; i < end; i++ {
		ids = append(ids, decode[uint64](r.get(path(i))))
	}
	return ids
}

// Orders calls fn for every order in id order until fn returns false.
// Initialized reports whether an engine has already been created on
// the state.
func (s *State) Initialized() bool {
	_, ok := loadSettings(s)
	return ok
}

func (s *State) Orders(fn func(o Order) bool) {
	s.scan(orderPrefix, func(_, v []byte) bool {
		return fn(decode[Order](v))
	})
}

// FeeTokens returns the tokens with a non-zero fee ledger balance.
func (s *State) FeeTokens() []common.Address {
	var r []common.Address
	s.scan(feePrefix, func(k, v []byte) bool {
		if decode[*big.Int](v).Sign() > 0 {
			r = append(r, common.BytesToAddress(k[len(feePrefix):]))
		}
		return true
	})
	return r
}
