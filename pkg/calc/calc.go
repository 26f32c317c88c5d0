// Package calc holds the fixed-point arithmetic of the exchange: lock
// amounts, fees, cancellation refunds, slippage bands and the fill
// computation between two orders.
//
// All functions are pure. Prices are quote token units per base token
// unit, scaled by Precision. Divisions truncate.
package calc

import (
	"errors"
	"math/big"
)

const (
	// PrecisionDecimals is the number of implicit decimals of a
	// price.
	PrecisionDecimals = 18

	// BasisPoints is the denominator of fee rates and slippage
	// bands.
	BasisPoints = 10000
)

// Precision is the scale of a price: a price of 1 is 1e18.
var Precision = new(big.Int).Exp(big.NewInt(10), big.NewInt(PrecisionDecimals), nil)

var (
	ErrInvalidPrice  = errors.New("invalid price")
	ErrZeroAmount    = errors.New("zero amount")
	ErrInvalidSide   = errors.New("invalid side")
	ErrInvalidBPRate = errors.New("basis points out of range")
)

var bpDenominator = big.NewInt(BasisPoints)

// Side is the direction of an order relative to its first token.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide parses "buy" or "sell".
func ParseSide(str string) (Side, error) {
	switch str {
	case "buy", "BUY", "Buy":
		return Buy, nil
	case "sell", "SELL", "Sell":
		return Sell, nil
	default:
		return 0, ErrInvalidSide
	}
}

func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// LockAmount returns the collateral an order must lock at creation.
//
// A sell order locks the amount it sells. A buy order locks the
// counter token: amount*price/Precision when the quoted token is the
// order's second token, amount*Precision/price otherwise.
func LockAmount(amount, price *big.Int, quotedIsSecond bool, side Side) (*big.Int, error) {
	if isZero(amount) || amount.Sign() < 0 {
		return nil, ErrZeroAmount
	}

	switch side {
	case Sell:
		return new(big.Int).Set(amount), nil
	case Buy:
		if isZero(price) || price.Sign() < 0 {
			return nil, ErrInvalidPrice
		}

		if quotedIsSecond {
			return MulDiv(amount, price, Precision), nil
		}
		return MulDiv(amount, Precision, price), nil
	default:
		return nil, ErrInvalidSide
	}
}

// FeeAmount returns locked*rateBP/BasisPoints, rounded down.
func FeeAmount(locked *big.Int, rateBP uint64) *big.Int {
	if isZero(locked) || rateBP == 0 {
		return new(big.Int)
	}
	return MulDiv(locked, new(big.Int).SetUint64(rateBP), bpDenominator)
}

// FeeEarned returns the part of a prepaid fee consumed by filling
// filled out of amount: fee*filled/amount, rounded down.
func FeeEarned(fee, amount, filled *big.Int) *big.Int {
	if isZero(fee) || isZero(amount) || isZero(filled) {
		return new(big.Int)
	}
	if filled.Cmp(amount) >= 0 {
		return new(big.Int).Set(fee)
	}
	return MulDiv(fee, filled, amount)
}

// CancelRefund returns the part of a prepaid fee returned when an
// order with filled out of amount is cancelled:
// fee*(amount-filled)/amount, rounded down.
func CancelRefund(fee, amount, filled *big.Int) *big.Int {
	if isZero(fee) || isZero(amount) {
		return new(big.Int)
	}
	unfilled := new(big.Int).Sub(amount, filled)
	if unfilled.Sign() <= 0 {
		return new(big.Int)
	}
	return MulDiv(fee, unfilled, amount)
}

// MulDiv returns a*b/c rounded down.
func MulDiv(a, b, c *big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	return r.Quo(r, c)
}

// SlippageBand returns the inclusive price band [lo, hi] of bp basis
// points around ref.
func SlippageBand(ref *big.Int, bp uint64) (lo, hi *big.Int, err error) {
	if isZero(ref) || ref.Sign() < 0 {
		return nil, nil, ErrInvalidPrice
	}
	if bp >= BasisPoints {
		return nil, nil, ErrInvalidBPRate
	}

	b := new(big.Int).SetUint64(bp)
	lo = MulDiv(ref, new(big.Int).Sub(bpDenominator, b), bpDenominator)
	hi = MulDiv(ref, new(big.Int).Add(bpDenominator, b), bpDenominator)
	return lo, hi, nil
}

// WithinBand reports whether price lies inside the slippage band of
// bp basis points around ref.
func WithinBand(price, ref *big.Int, bp uint64) bool {
	lo, hi, err := SlippageBand(ref, bp)
	if err != nil {
		return false
	}
	return price.Cmp(lo) >= 0 && price.Cmp(hi) <= 0
}

// WorstPrice returns the least favorable price inside the slippage
// band: the top of the band for an order buying the base token, the
// bottom otherwise.
func WorstPrice(ref *big.Int, bp uint64, buysBase bool) (*big.Int, error) {
	lo, hi, err := SlippageBand(ref, bp)
	if err != nil {
		return nil, err
	}

	if buysBase {
		return hi, nil
	}

	if lo.Sign() == 0 {
		return nil, ErrInvalidPrice
	}
	return lo, nil
}
