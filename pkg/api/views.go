package api

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/calc"
	"github.com/helinwang/matchdex/pkg/dex"
)

// Amounts are integers in the token's smallest unit, prices are
// decimals.

type orderView struct {
	ID             uint64         `json:"id"`
	Owner          common.Address `json:"owner"`
	TokenA         common.Address `json:"token_a"`
	TokenB         common.Address `json:"token_b"`
	Side           string         `json:"side"`
	Type           string         `json:"type"`
	Amount         string         `json:"amount"`
	AmountFilled   string         `json:"amount_filled"`
	Remaining      string         `json:"remaining"`
	Price          string         `json:"price"`
	LimitPrice     string         `json:"limit_price"`
	ReferencePrice string         `json:"reference_price"`
	SlippageBP     uint64         `json:"slippage_bp"`
	LockedAmount   string         `json:"locked_amount"`
	FeeAmount      string         `json:"fee_amount"`
	FeeCollected   string         `json:"fee_collected"`
	Cancellable    bool           `json:"cancellable"`
	Status         string         `json:"status"`
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newOrderView(o dex.Order) orderView {
	return orderView{
		ID:             o.ID,
		Owner:          o.Owner,
		TokenA:         o.TokenA,
		TokenB:         o.TokenB,
		Side:           o.Side.String(),
		Type:           o.Type.String(),
		Amount:         amount(o.Amount),
		AmountFilled:   amount(o.AmountFilled),
		Remaining:      amount(o.Remaining()),
		Price:          calc.FormatPrice(o.Price),
		LimitPrice:     calc.FormatPrice(o.LimitPrice),
		ReferencePrice: calc.FormatPrice(o.ReferencePrice),
		SlippageBP:     o.SlippageBP,
		LockedAmount:   amount(o.LockedAmount),
		FeeAmount:      amount(o.FeeAmount),
		FeeCollected:   amount(o.FeeCollected),
		Cancellable:    o.IsCancellable,
		Status:         o.Status.String(),
	}
}

type pairView struct {
	Token0      common.Address `json:"token0"`
	Token1      common.Address `json:"token1"`
	QuotedToken common.Address `json:"quoted_token"`
	LastPrice   string         `json:"last_price"`
	Decimals    uint8          `json:"decimals"`
}

func newPairView(p dex.Pair) pairView {
	return pairView{
		Token0:      p.Token0,
		Token1:      p.Token1,
		QuotedToken: p.QuotedToken,
		LastPrice:   calc.FormatPrice(p.LastPrice),
		Decimals:    p.Decimals,
	}
}

// BookEntry is a resting order of a book response.
type BookEntry struct {
	OrderID   uint64         `json:"order_id"`
	Owner     common.Address `json:"owner"`
	Type      string         `json:"type"`
	Price     string         `json:"price"`
	Remaining string         `json:"remaining"`
}

// BookView is the response of the book query.
type BookView struct {
	Base  common.Address `json:"base"`
	Quote common.Address `json:"quote"`
	Bids  []BookEntry    `json:"bids"`
	Asks  []BookEntry    `json:"asks"`
}

func entries(list []dex.BookEntry) []BookEntry {
	r := make([]BookEntry, len(list))
	for i, e := range list {
		r[i] = BookEntry{
			OrderID:   e.OrderID,
			Owner:     e.Owner,
			Type:      e.Type.String(),
			Price:     calc.FormatPrice(e.Price),
			Remaining: amount(e.Remaining),
		}
	}
	return r
}

func newBookView(b dex.Book) BookView {
	return BookView{
		Base:  b.Base,
		Quote: b.Quote,
		Bids:  entries(b.Bids),
		Asks:  entries(b.Asks),
	}
}

type quoteView struct {
	Lock  string `json:"lock"`
	Fee   string `json:"fee"`
	Price string `json:"price"`
}

type settingsView struct {
	Engine     common.Address `json:"engine"`
	Owner      common.Address `json:"owner"`
	Backend    common.Address `json:"backend"`
	AdminToken common.Address `json:"admin_token"`
	FeeRateBP  uint64         `json:"fee_rate_bp"`
}
