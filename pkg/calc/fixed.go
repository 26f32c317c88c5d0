package calc

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseFixed parses a human readable decimal string into an integer
// scaled by 10^decimals, e.g. ParseFixed("1.5", 18) is 1.5e18.
func ParseFixed(str string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(str)
	if err != nil {
		return nil, fmt.Errorf("error parsing %q: %v", str, err)
	}

	if d.Sign() < 0 {
		return nil, fmt.Errorf("negative value %q", str)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%q has more than %d decimals", str, decimals)
	}

	return scaled.BigInt(), nil
}

// MustParseFixed is ParseFixed that panics on error.
func MustParseFixed(str string, decimals int32) *big.Int {
	v, err := ParseFixed(str, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatFixed formats an integer scaled by 10^decimals as a decimal
// string.
func FormatFixed(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// ParsePrice parses a human readable price.
func ParsePrice(str string) (*big.Int, error) {
	return ParseFixed(str, PrecisionDecimals)
}

// FormatPrice formats a price scaled by Precision.
func FormatPrice(p *big.Int) string {
	return FormatFixed(p, PrecisionDecimals)
}

// TickSize returns the smallest price increment of a pair with the
// given decimals: 10^(PrecisionDecimals-decimals).
func TickSize(decimals uint8) *big.Int {
	if int(decimals) >= PrecisionDecimals {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(PrecisionDecimals-int(decimals))), nil)
}

// OnTick reports whether price is a multiple of the tick size.
func OnTick(price *big.Int, decimals uint8) bool {
	return new(big.Int).Mod(price, TickSize(decimals)).Sign() == 0
}
