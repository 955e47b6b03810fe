// Package fixed implements arithmetic over fixed-point prices: a *big.Int
// holding value·10^decimals. Division truncates toward zero.
package fixed

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned by Div when the divisor is zero.
var ErrDivisionByZero = errors.New("division by zero")

var ten = big.NewInt(10)

// Scale returns 10^decimals.
func Scale(decimals int) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

// FromString parses a decimal string such as "1.25" into a fixed-point value.
func FromString(s string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return FromDecimal(d, decimals), nil
}

// FromDecimal converts d to a fixed-point value, truncating excess precision.
func FromDecimal(d decimal.Decimal, decimals int) *big.Int {
	return d.Shift(int32(decimals)).BigInt()
}

// FromInt returns n·10^decimals.
func FromInt(n int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Scale(decimals))
}

// ToDecimal converts a fixed-point value back to a decimal.
func ToDecimal(v *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(v, -int32(decimals))
}

// String renders v as a plain decimal string; nil renders as "".
func String(v *big.Int, decimals int) string {
	if v == nil {
		return ""
	}
	return ToDecimal(v, decimals).String()
}

// Mul returns a·b/scale.
func Mul(a, b *big.Int, decimals int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, Scale(decimals))
}

// Div returns a·scale/b.
func Div(a, b *big.Int, decimals int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	out := new(big.Int).Mul(a, Scale(decimals))
	return out.Quo(out, b), nil
}

// Invert returns scale·scale/p, or nil when p is nil or zero.
func Invert(p *big.Int, decimals int) *big.Int {
	if p == nil || p.Sign() == 0 {
		return nil
	}
	s := Scale(decimals)
	out := new(big.Int).Mul(s, s)
	return out.Quo(out, p)
}

// ConvertDecimals rescales v from one precision to another.
func ConvertDecimals(v *big.Int, from, to int) *big.Int {
	if v == nil {
		return nil
	}
	switch {
	case from == to:
		return new(big.Int).Set(v)
	case to > from:
		return new(big.Int).Mul(v, Scale(to-from))
	default:
		return new(big.Int).Quo(v, Scale(from-to))
	}
}

// Mean returns the truncated arithmetic mean, or nil for no values.
func Mean(values []*big.Int) *big.Int {
	if len(values) == 0 {
		return nil
	}
	sum := new(big.Int)
	for _, v := range values {
		sum.Add(sum, v)
	}
	return sum.Quo(sum, big.NewInt(int64(len(values))))
}

// Median returns the middle value; for even counts, the mean of the two
// middle values. Returns nil for no values. The input is not modified.
func Median(values []*big.Int) *big.Int {
	n := len(values)
	if n == 0 {
		return nil
	}
	sorted := make([]*big.Int, n)
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	if n%2 == 1 {
		return new(big.Int).Set(sorted[n/2])
	}
	return Mean([]*big.Int{sorted[n/2-1], sorted[n/2]})
}

// Min returns the smallest value, or nil for no values.
func Min(values []*big.Int) *big.Int {
	return pick(values, -1)
}

// Max returns the largest value, or nil for no values.
func Max(values []*big.Int) *big.Int {
	return pick(values, 1)
}

func pick(values []*big.Int, sign int) *big.Int {
	if len(values) == 0 {
		return nil
	}
	best := values[0]
	for _, v := range values[1:] {
		if v.Cmp(best) == sign {
			best = v
		}
	}
	return new(big.Int).Set(best)
}
