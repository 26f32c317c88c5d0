package dex

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/helinwang/matchdex/pkg/calc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) checkOrders() {
	f.e.state.Orders(func(o Order) bool {
		assert.True(f.t, o.AmountFilled.Sign() >= 0, "order %d filled", o.ID)
		assert.True(f.t, o.AmountFilled.Cmp(o.Amount) <= 0, "order %d overfilled", o.ID)
		assert.True(f.t, o.LockedAmount.Sign() >= 0, "order %d lock", o.ID)
		assert.True(f.t, o.FeeCollected.Cmp(o.FeeAmount) <= 0, "order %d fee", o.ID)
		if o.Status.Terminal() {
			assert.Equal(f.t, 0, o.LockedAmount.Sign(), "order %d is %s with a lock", o.ID, o.Status)
		}
		return true
	})
}

func (f *fixture) orders(ids []uint64) []Order {
	r := make([]Order, len(ids))
	for i, id := range ids {
		r[i] = f.order(id)
	}
	return r
}

// TestRandomOperations runs a random mix of orders, matches and
// cancels and checks the order invariants and custody conservation
// after every step.
func TestRandomOperations(t *testing.T) {
	f := newFixture(t)
	r := rand.New(rand.NewSource(7))
	traders := []common.Address{alice, bob, carol}
	prices := []string{"0.3", "0.5", "1", "1.25", "1.5", "1.7", "2"}

	var ids []uint64
	var matches int
	for step := 0; step < 600; step++ {
		switch op := r.Intn(10); {
		case op < 5:
			tokenAFirst := r.Intn(4) > 0
			a, b := tokenA, tokenB
			amount := units(big.NewInt(int64(r.Intn(20) + 1)).String())
			if r.Intn(2) == 0 {
				// odd wei amounts make every conversion round
				amount = big.NewInt(2*r.Int63n(1000) + 1)
			}
			price := units(prices[r.Intn(len(prices))])
			if !tokenAFirst {
				a, b = tokenB, tokenA
			}

			id, err := f.e.CreateLimitOrder(f.ctx, traders[r.Intn(len(traders))], LimitOrderRequest{
				TokenA: a,
				TokenB: b,
				Side:   calc.Side(r.Intn(2)),
				Amount: amount,
				Price:  price,
			})
			if err == nil {
				ids = append(ids, id)
			}
		case op < 6:
			if len(ids) == 0 {
				continue
			}
			id := ids[r.Intn(len(ids))]
			o := f.order(id)
			_ = f.e.CancelOrder(f.ctx, o.Owner, id)
		default:
			if len(ids) < 2 {
				continue
			}
			initiating := ids[r.Intn(len(ids))]
			matched := []uint64{ids[r.Intn(len(ids))]}
			if r.Intn(2) == 0 {
				matched = append(matched, ids[r.Intn(len(ids))])
			}

			involved := append([]uint64{initiating}, matched...)
			snapshot := f.orders(involved)
			err := f.match(initiating, matched...)
			if err != nil {
				// a fill at a price both orders accept never runs
				// out of lock
				assert.NotErrorIs(t, err, ErrInsufficientLocked)
				assert.Equal(t, snapshot, f.orders(involved), "failed match changed orders")
			} else {
				matches++
			}
		}

		f.checkOrders()
		f.conserved()
		if t.Failed() {
			t.Fatalf("invariant broken at step %d", step)
		}
	}

	var closed int
	for _, id := range ids {
		if f.order(id).Status == Closed {
			closed++
		}
	}
	require.NotEmpty(t, ids)
	assert.NotZero(t, matches)
	t.Logf("%d orders, %d matches, %d closed, fees %s %s", len(ids), matches, closed, f.e.FeeBalance(tokenA), f.e.FeeBalance(tokenB))
}
