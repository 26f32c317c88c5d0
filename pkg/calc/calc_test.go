package calc

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func units(s string) *big.Int {
	return MustParseFixed(s, 18)
}

func TestLockAmount(t *testing.T) {
	price := units("1.5")

	lock, err := LockAmount(units("10"), price, true, Sell)
	require.NoError(t, err)
	assert.Equal(t, units("10"), lock)

	lock, err = LockAmount(units("20"), price, true, Buy)
	require.NoError(t, err)
	assert.Equal(t, units("30"), lock)

	lock, err = LockAmount(units("30"), price, false, Buy)
	require.NoError(t, err)
	assert.Equal(t, units("20"), lock)

	// the sell side never needs the price
	lock, err = LockAmount(units("1"), nil, false, Sell)
	require.NoError(t, err)
	assert.Equal(t, units("1"), lock)
}

func TestLockAmountErrors(t *testing.T) {
	_, err := LockAmount(big.NewInt(0), units("1"), true, Buy)
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = LockAmount(units("1"), big.NewInt(0), true, Buy)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = LockAmount(units("1"), units("1"), true, Side(7))
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestFeeAmount(t *testing.T) {
	assert.Equal(t, units("0.25"), FeeAmount(units("100"), 25))
	// 399*25/10000 = 0.9975, rounded down
	assert.Equal(t, int64(0), FeeAmount(big.NewInt(399), 25).Int64())
	assert.Equal(t, int64(1), FeeAmount(big.NewInt(400), 25).Int64())
	assert.Equal(t, int64(0), FeeAmount(units("1"), 0).Int64())
}

func TestFeeSplitNeverExceedsFee(t *testing.T) {
	fee := big.NewInt(10)
	amount := big.NewInt(3)
	filled := big.NewInt(1)

	earned := FeeEarned(fee, amount, filled)
	refund := CancelRefund(fee, amount, filled)
	assert.Equal(t, int64(3), earned.Int64())
	assert.Equal(t, int64(6), refund.Int64())
	assert.True(t, new(big.Int).Add(earned, refund).Cmp(fee) <= 0)

	assert.Equal(t, int64(70), CancelRefund(big.NewInt(100), big.NewInt(10), big.NewInt(3)).Int64())
	assert.Equal(t, int64(30), FeeEarned(big.NewInt(100), big.NewInt(10), big.NewInt(3)).Int64())
	assert.Equal(t, int64(100), FeeEarned(big.NewInt(100), big.NewInt(10), big.NewInt(10)).Int64())
	assert.Equal(t, int64(0), CancelRefund(big.NewInt(100), big.NewInt(10), big.NewInt(10)).Int64())
}

func TestSlippage(t *testing.T) {
	lo, hi, err := SlippageBand(units("1"), 1000)
	require.NoError(t, err)
	assert.Equal(t, units("0.9"), lo)
	assert.Equal(t, units("1.1"), hi)

	assert.True(t, WithinBand(units("1.05"), units("1"), 1000))
	assert.True(t, WithinBand(units("1.1"), units("1"), 1000))
	assert.False(t, WithinBand(units("1.2"), units("1"), 1000))
	assert.False(t, WithinBand(units("0.8"), units("1"), 1000))

	_, _, err = SlippageBand(units("1"), BasisPoints)
	assert.ErrorIs(t, err, ErrInvalidBPRate)

	worst, err := WorstPrice(units("1"), 1000, true)
	require.NoError(t, err)
	assert.Equal(t, units("1.1"), worst)
	worst, err = WorstPrice(units("1"), 1000, false)
	require.NoError(t, err)
	assert.Equal(t, units("0.9"), worst)
}

func seller(remaining *big.Int, denom Denomination) Party {
	return Party{Remaining: remaining, Denom: denom, Side: Sell, Locked: new(big.Int).Set(remaining)}
}

func buyer(remaining *big.Int, denom Denomination, limit *big.Int) Party {
	lock, err := LockAmount(remaining, limit, denom == InBase, Buy)
	if err != nil {
		panic(err)
	}
	return Party{Remaining: remaining, Denom: denom, Side: Buy, Locked: lock}
}

func TestComputeFill(t *testing.T) {
	cases := []struct {
		name       string
		price      *big.Int
		initiating Party
		matched    Party
		want       Fill
	}{
		{
			name:       "initiating smaller seller, both base",
			price:      units("1.5"),
			initiating: seller(units("10"), InBase),
			matched:    buyer(units("20"), InBase, units("1.5")),
			want:       Fill{Base: units("10"), Quote: units("15"), Initiating: units("10"), Matched: units("10"), Smaller: Initiating},
		},
		{
			name:       "matched smaller buyer, both base",
			price:      units("1.5"),
			initiating: seller(units("20"), InBase),
			matched:    buyer(units("10"), InBase, units("1.5")),
			want:       Fill{Base: units("10"), Quote: units("15"), Initiating: units("10"), Matched: units("10"), Smaller: Matched},
		},
		{
			name:       "initiating smaller in quote",
			price:      units("1.5"),
			initiating: seller(units("15"), InQuote),
			matched:    seller(units("20"), InBase),
			want:       Fill{Base: units("10"), Quote: units("15"), Initiating: units("15"), Matched: units("10"), Smaller: Initiating},
		},
		{
			name:       "matched smaller buyer in quote",
			price:      units("1.5"),
			initiating: buyer(units("20"), InBase, units("1.5")),
			matched:    buyer(units("6"), InQuote, units("1.5")),
			want:       Fill{Base: units("4"), Quote: units("6"), Initiating: units("4"), Matched: units("6"), Smaller: Matched},
		},
		{
			name:       "equal value closes both",
			price:      units("1.5"),
			initiating: seller(units("10"), InBase),
			matched:    seller(units("15"), InQuote),
			want:       Fill{Base: units("10"), Quote: units("15"), Initiating: units("10"), Matched: units("15"), Smaller: Initiating},
		},
		{
			name:       "smaller seller gets its proceeds rounded down",
			price:      units("1.5"),
			initiating: seller(big.NewInt(3), InBase),
			matched:    buyer(big.NewInt(5), InBase, units("1.5")),
			want:       Fill{Base: big.NewInt(3), Quote: big.NewInt(4), Initiating: big.NewInt(3), Matched: big.NewInt(3), Smaller: Initiating},
		},
		{
			name:       "smaller buyer pays rounded up",
			price:      units("1.5"),
			initiating: buyer(big.NewInt(3), InBase, units("2")),
			matched:    seller(big.NewInt(5), InBase),
			want:       Fill{Base: big.NewInt(3), Quote: big.NewInt(5), Initiating: big.NewInt(3), Matched: big.NewInt(3), Smaller: Initiating},
		},
		{
			name:       "smaller buyer limited by its lock",
			price:      units("1.5"),
			initiating: buyer(big.NewInt(3), InBase, units("1.5")),
			matched:    seller(big.NewInt(5), InBase),
			want:       Fill{Base: big.NewInt(2), Quote: big.NewInt(4), Initiating: big.NewInt(3), Matched: big.NewInt(2), Smaller: Initiating},
		},
		{
			name:       "larger buyer in quote keeps its rate",
			price:      units("0.5"),
			initiating: buyer(big.NewInt(3), InBase, units("0.5")),
			matched:    buyer(big.NewInt(2), InQuote, units("0.5")),
			want:       Fill{Base: big.NewInt(2), Quote: big.NewInt(1), Initiating: big.NewInt(3), Matched: big.NewInt(1), Smaller: Initiating},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f, err := ComputeFill(c.initiating, c.matched, c.price)
			require.NoError(t, err)
			assert.Equal(t, c.want, f)
		})
	}
}

func TestComputeFillErrors(t *testing.T) {
	s := seller(units("1"), InBase)
	b := buyer(units("1"), InBase, units("1"))
	_, err := ComputeFill(s, b, big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = ComputeFill(seller(big.NewInt(0), InBase), b, units("1"))
	assert.ErrorIs(t, err, ErrZeroAmount)

	// both give the base token
	_, err = ComputeFill(s, buyer(units("1"), InQuote, units("1")), units("1"))
	assert.ErrorIs(t, err, ErrInvalidSide)

	// 1 wei of base is worth nothing at 0.5
	_, err = ComputeFill(seller(big.NewInt(1), InBase), b, units("0.5"))
	assert.ErrorIs(t, err, ErrZeroAmount)

	// a buyer whose lock is spent gets nothing
	_, err = ComputeFill(Party{Remaining: big.NewInt(1), Denom: InBase, Side: Buy, Locked: new(big.Int)}, s, units("1"))
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestSpendTableComplete(t *testing.T) {
	assert.Len(t, spendTable, 16)
	for _, r := range []Role{Initiating, Matched} {
		for _, side := range []Side{Buy, Sell} {
			for _, sd := range []Denomination{InBase, InQuote} {
				for _, ld := range []Denomination{InBase, InQuote} {
					_, ok := spendTable[spendKey{smaller: r, smallerSide: side, smallerDenom: sd, largerDenom: ld}]
					assert.True(t, ok, "%v %v %v %v", r, side, sd, ld)
				}
			}
		}
	}
}

// randomParty returns an order that accepts trading at price and its
// own limit. givesBase selects the token it gives.
func randomParty(r *rand.Rand, givesBase bool, price *big.Int) (Party, *big.Int) {
	var remaining *big.Int
	if r.Intn(2) == 0 {
		remaining = big.NewInt(r.Int63n(1000) + 1)
	} else {
		remaining = big.NewInt(r.Int63n(1e18) + 1)
	}

	denom := InBase
	if r.Intn(2) == 0 {
		denom = InQuote
	}

	side := Buy
	if givesBase == (denom == InBase) {
		side = Sell
	}

	if side == Sell {
		return seller(remaining, denom), nil
	}

	// a base buyer accepts prices up to its limit, a base seller
	// prices down to it
	limit := new(big.Int).Set(price)
	delta := big.NewInt(r.Int63n(price.Int64()/2 + 1))
	if denom == InBase {
		limit.Add(limit, delta)
	} else {
		limit.Sub(limit, delta)
	}
	return buyer(remaining, denom, limit), limit
}

func TestComputeFillProperties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		price := big.NewInt(r.Int63n(5e18) + 1)
		givesBase := r.Intn(2) == 0
		a, aLimit := randomParty(r, givesBase, price)
		b, bLimit := randomParty(r, !givesBase, price)

		f, err := ComputeFill(a, b, price)
		if err != nil {
			require.ErrorIs(t, err, ErrZeroAmount)
			continue
		}
		require.True(t, f.Base.Sign() > 0 && f.Quote.Sign() > 0)

		small, large, largeLimit := a, b, bLimit
		smallDelta, largeDelta := f.Initiating, f.Matched
		if f.Smaller == Matched {
			small, large, largeLimit = b, a, aLimit
			smallDelta, largeDelta = f.Matched, f.Initiating
		}

		// the smaller order always closes, the larger never
		// overfills
		assert.Equal(t, small.Remaining, smallDelta)
		assert.True(t, largeDelta.Sign() > 0)
		assert.True(t, largeDelta.Cmp(large.Remaining) <= 0)

		spend := func(p Party) *big.Int {
			if p.givesBase() {
				return f.Base
			}
			return f.Quote
		}
		assert.True(t, spend(small).Cmp(small.Locked) <= 0, "smaller spends %s, locked %s", spend(small), small.Locked)
		assert.True(t, spend(large).Cmp(large.Locked) <= 0, "larger spends %s, locked %s", spend(large), large.Locked)

		// the larger order never trades worse than price
		quoteValue := new(big.Int).Mul(f.Quote, Precision)
		baseValue := new(big.Int).Mul(f.Base, price)
		if large.givesBase() {
			assert.True(t, quoteValue.Cmp(baseValue) >= 0, "larger seller underpaid")
		} else {
			assert.True(t, quoteValue.Cmp(baseValue) <= 0, "larger buyer overcharged")
		}

		// what the larger order keeps locked still covers the rest
		left := new(big.Int).Sub(large.Remaining, largeDelta)
		lockLeft := new(big.Int).Sub(large.Locked, spend(large))
		if large.Side == Sell {
			assert.Equal(t, left, lockLeft)
		} else if left.Sign() > 0 {
			need, err := LockAmount(left, largeLimit, large.Denom == InBase, Buy)
			require.NoError(t, err)
			assert.True(t, lockLeft.Cmp(need) >= 0, "larger keeps %s locked, needs %s", lockLeft, need)
		}
	}
}

func TestFixed(t *testing.T) {
	v, err := ParseFixed("1.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.String())
	assert.Equal(t, "1.5", FormatFixed(v, 18))

	v, err = ParseFixed("12", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(12000000), v.Int64())

	_, err = ParseFixed("0.0000001", 6)
	assert.Error(t, err)
	_, err = ParseFixed("-1", 6)
	assert.Error(t, err)
	_, err = ParseFixed("abc", 6)
	assert.Error(t, err)
}

func TestTick(t *testing.T) {
	assert.Equal(t, units("0.0001"), TickSize(4))
	assert.True(t, OnTick(units("1.5"), 4))
	assert.False(t, OnTick(new(big.Int).Add(units("1.5"), big.NewInt(1)), 4))
	assert.Equal(t, big.NewInt(1), TickSize(18))
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("buy")
	require.NoError(t, err)
	assert.Equal(t, Buy, s)
	s, err = ParseSide("SELL")
	require.NoError(t, err)
	assert.Equal(t, Sell, s)
	_, err = ParseSide("hold")
	assert.ErrorIs(t, err, ErrInvalidSide)
}
