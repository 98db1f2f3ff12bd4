// Package analytics reshapes option chains into an implied-volatility
// surface and an at-the-money term structure.
//
// The builders are pure: they take already-fetched chains and a resolved
// spot price, and never perform I/O.
package analytics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/contactkeval/iv-terminal/internal/data"
)

// IsValidIV reports whether upstream supplied a finite implied volatility.
// A valid 0 is still valid; builders apply their own > 0 rule.
func IsValidIV(v data.Vol) bool {
	return v.Valid && !math.IsNaN(v.Value) && !math.IsInf(v.Value, 0)
}

// hasPositiveIV is the per-quote predicate shared by both builders.
func hasPositiveIV(q data.OptionQuote) bool {
	return IsValidIV(q.ImpliedVolatility) && q.ImpliedVolatility.Value > 0
}

// NearestByAbsoluteDistance returns the quote whose strike is closest to
// target. Ties keep the earliest quote. ok is false for an empty slice.
func NearestByAbsoluteDistance(quotes []data.OptionQuote, target float64) (nearest data.OptionQuote, ok bool) {
	minDist := math.MaxFloat64
	for _, q := range quotes {
		dist := math.Abs(q.Strike - target)
		if !ok || dist < minDist {
			nearest = q
			minDist = dist
			ok = true
		}
	}
	return nearest, ok
}

// exactExp is small enough for NewFromFloatWithExponent to keep every bit
// of any float64, subnormals included.
const exactExp = -1074

// Round4 rounds x to 4 decimal places the way Python's round(x, 4) does:
// on the exact binary value, with exact ties going to the even digit.
// So 0.00015, stored just below the tie, becomes 0.0001.
func Round4(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloatWithExponent(x, exactExp).RoundBank(4).InexactFloat64()
}
