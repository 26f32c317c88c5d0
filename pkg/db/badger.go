// Package db persists the engine state in badger.
package db

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
)

var ErrNotFound = errors.New("not found")

// Badger is a key-value database backed by badger. It satisfies
// dex.Database.
type Badger struct {
	db *badger.DB
}

// Open opens the database stored in dir. An empty dir opens an
// in-memory database.
func Open(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening state database: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) Has(key []byte) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *Badger) Get(key []byte) ([]byte, error) {
	var v []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		v, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (b *Badger) Put(key []byte, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (b *Badger) Delete(key []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// NewIterator iterates over the keys with the given prefix, starting at
// prefix+start, in ascending key order. It walks a snapshot taken when
// it is created.
func (b *Badger) NewIterator(prefix []byte, start []byte) ethdb.Iterator {
	it := &iterator{idx: -1}
	seek := append(append([]byte(nil), prefix...), start...)
	it.err = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		r := txn.NewIterator(opts)
		defer r.Close()

		for r.Seek(seek); r.ValidForPrefix(prefix); r.Next() {
			item := r.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			it.keys = append(it.keys, item.KeyCopy(nil))
			it.values = append(it.values, v)
		}
		return nil
	})
	if it.err != nil {
		log.Error("error creating iterator", "prefix", prefix, "err", it.err)
	}
	return it
}

type iterator struct {
	idx    int
	keys   [][]byte
	values [][]byte
	err    error
}

func (it *iterator) Next() bool {
	if it.err != nil || it.idx >= len(it.keys) {
		return false
	}

	it.idx++
	return it.idx < len(it.keys)
}

func (it *iterator) Error() error {
	return it.err
}

func (it *iterator) Key() []byte {
	if it.idx < 0 || it.idx >= len(it.keys) {
		return nil
	}
	return it.keys[it.idx]
}

func (it *iterator) Value() []byte {
	if it.idx < 0 || it.idx >= len(it.values) {
		return nil
	}
	return it.values[it.idx]
}

func (it *iterator) Release() {
	it.keys = nil
	it.values = nil
}

// NewBatch returns a write batch that is applied in a single badger
// transaction.
func (b *Badger) NewBatch() ethdb.Batch {
	return &batch{db: b.db}
}

type op struct {
	key   []byte
	value []byte
	del   bool
	// end is set for range deletes.
	end []byte
}

type batch struct {
	db   *badger.DB
	ops  []op
	size int
}

func (b *batch) Put(key []byte, value []byte) error {
	b.ops = append(b.ops, op{key: bytes.Clone(key), value: bytes.Clone(value)})
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.ops = append(b.ops, op{key: bytes.Clone(key), del: true})
	b.size += len(key)
	return nil
}

// DeleteRange deletes the keys in [start, end).
func (b *batch) DeleteRange(start, end []byte) error {
	b.ops = append(b.ops, op{key: bytes.Clone(start), end: bytes.Clone(end), del: true})
	b.size += len(start) + len(end)
	return nil
}

func (b *batch) ValueSize() int {
	return b.size
}

func (b *batch) Write() error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for _, o := range b.ops {
			var err error
			switch {
			case o.end != nil:
				err = deleteRange(txn, o.key, o.end)
			case o.del:
				err = txn.Delete(o.key)
			default:
				err = txn.Set(o.key, o.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error writing batch of %d ops: %w", len(b.ops), err)
	}
	return nil
}

func deleteRange(txn *badger.Txn, start, end []byte) error {
	var keys [][]byte
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	for it.Seek(start); it.Valid(); it.Next() {
		k := it.Item().KeyCopy(nil)
		if bytes.Compare(k, end) >= 0 {
			break
		}
		keys = append(keys, k)
	}
	it.Close()

	for _, k := range keys {
		err := txn.Delete(k)
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *batch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

// Replay replays the batch contents into w. Range deletes are skipped
// unless w can delete ranges.
func (b *batch) Replay(w ethdb.KeyValueWriter) error {
	for _, o := range b.ops {
		var err error
		switch {
		case o.end != nil:
			if rd, ok := w.(interface{ DeleteRange(start, end []byte) error }); ok {
				err = rd.DeleteRange(o.key, o.end)
			}
		case o.del:
			err = w.Delete(o.key)
		default:
			err = w.Put(o.key, o.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
