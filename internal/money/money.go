// Package money holds the fixed-point helpers used for every price, volume
// and account figure in the engine.
package money

import (
	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance used for account-currency comparisons.
var Epsilon = decimal.New(1, -8)

// Compare returns -1, 0 or 1. Values closer than tol are equal.
func Compare(a, b, tol decimal.Decimal) int {
	diff := a.Sub(b)
	if diff.Abs().LessThanOrEqual(tol) {
		return 0
	}
	return diff.Sign()
}

// IsZero reports whether x is within tol of zero.
func IsZero(x, tol decimal.Decimal) bool {
	return Compare(x, decimal.Zero, tol) == 0
}

// Normalize rounds x to the nearest multiple of quant.
func Normalize(x, quant decimal.Decimal) decimal.Decimal {
	if quant.Sign() <= 0 {
		return x
	}
	return x.Div(quant).Round(0).Mul(quant)
}

// HalfNormalize returns the number of quanta in x, rounded to nearest.
func HalfNormalize(x, quant decimal.Decimal) int64 {
	if quant.Sign() <= 0 {
		return x.Round(0).IntPart()
	}
	return x.Div(quant).Round(0).IntPart()
}

// Floor rounds x down to a multiple of quant.
func Floor(x, quant decimal.Decimal) decimal.Decimal {
	if quant.Sign() <= 0 {
		return x
	}
	return x.Div(quant).Floor().Mul(quant)
}

// Points converts an integer count of points to a price distance.
func Points(n int64, point decimal.Decimal) decimal.Decimal {
	return point.Mul(decimal.NewFromInt(n))
}

// NonNegative clamps x at zero.
func NonNegative(x decimal.Decimal) decimal.Decimal {
	if x.Sign() < 0 {
		return decimal.Zero
	}
	return x
}
