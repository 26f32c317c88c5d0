package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/btree"
)

// BookEntry is a resting order as shown in the book.
type BookEntry struct {
	OrderID   uint64         `json:"order_id"`
	Owner     common.Address `json:"owner"`
	Type      OrderType      `json:"type"`
	Price     *big.Int       `json:"price"`
	Remaining *big.Int       `json:"remaining"`
}

// Book is the depth snapshot of a pair. Bids buy the base token, best
// (highest) first; asks sell it, best (lowest) first.
type Book struct {
	Base  common.Address `json:"base"`
	Quote common.Address `json:"quote"`
	Bids  []BookEntry    `json:"bids"`
	Asks  []BookEntry    `json:"asks"`
}

type bookItem struct {
	bid   bool
	price *big.Int
	id    uint64
	entry BookEntry
}

func lessItem(a, b bookItem) bool {
	if a.bid != b.bid {
		return a.bid
	}

	if c := a.price.Cmp(b.price); c != 0 {
		if a.bid {
			return c > 0
		}
		return c < 0
	}

	return a.id < b.id
}

// book is a read model of the open orders, per pair ordered by side,
// then price, then creation. It is rebuilt from the state on startup
// and updated after every committed operation.
type book struct {
	pairs map[PairKey]*btree.BTreeG[bookItem]
	items map[uint64]bookItem
}

func newBook() *book {
	return &book{
		pairs: make(map[PairKey]*btree.BTreeG[bookItem]),
		items: make(map[uint64]bookItem),
	}
}

func (b *book) tree(k PairKey) *btree.BTreeG[bookItem] {
	t, ok := b.pairs[k]
	if !ok {
		t = btree.NewBTreeG[bookItem](lessItem)
		b.pairs[k] = t
	}
	return t
}

// update reflects the current record of o.
func (b *book) update(o *Order, pair *Pair) {
	if prev, ok := b.items[o.ID]; ok {
		b.tree(o.Pair()).Delete(prev)
		delete(b.items, o.ID)
	}

	if o.Status.Terminal() || !pair.Established() {
		return
	}

	item := bookItem{
		bid:   pair.buysBase(o),
		price: new(big.Int).Set(o.Price),
		id:    o.ID,
		entry: BookEntry{
			OrderID:   o.ID,
			Owner:     o.Owner,
			Type:      o.Type,
			Price:     new(big.Int).Set(o.Price),
			Remaining: o.Remaining(),
		},
	}
	b.tree(o.Pair()).Set(item)
	b.items[o.ID] = item
}

func (b *book) snapshot(pair *Pair, depth int) Book {
	r := Book{Bids: []BookEntry{}, Asks: []BookEntry{}}
	if pair.Established() {
		r.Base = pair.Base()
		r.Quote = pair.QuotedToken
	}

	t, ok := b.pairs[pair.Key()]
	if !ok {
		return r
	}

	t.Scan(func(item bookItem) bool {
		if item.bid {
			if depth <= 0 || len(r.Bids) < depth {
				r.Bids = append(r.Bids, item.entry)
			}
			return true
		}

		if depth > 0 && len(r.Asks) >= depth {
			return false
		}
		r.Asks = append(r.Asks, item.entry)
		return true
	})
	return r
}
