package exit

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	decOne     = decimal.NewFromInt(1)
	decimalEps = decimal.NewFromFloat(1e-8)
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalLTE(a, b float64) bool {
	return decFromFloat(a).Cmp(decFromFloat(b)) <= 0
}

func decimalGTE(a, b float64) bool {
	return decFromFloat(a).Cmp(decFromFloat(b)) >= 0
}

// stopLossFor derives the stop price entry*(1-pct).
func stopLossFor(entry, pct float64) float64 {
	if entry <= 0 || pct <= 0 {
		return 0
	}
	return decToFloat(decFromFloat(entry).Mul(decOne.Sub(decFromFloat(pct))))
}

// takeProfitFor derives the target price entry*(1+pct).
func takeProfitFor(entry, pct float64) float64 {
	if entry <= 0 || pct <= 0 {
		return 0
	}
	return decToFloat(decFromFloat(entry).Mul(decOne.Add(decFromFloat(pct))))
}

// trailingStopFor derives the trailing stop anchor*(1-pct).
func trailingStopFor(anchor, pct float64) float64 {
	if anchor <= 0 || pct <= 0 {
		return 0
	}
	return decToFloat(decFromFloat(anchor).Mul(decOne.Sub(decFromFloat(pct))))
}

// shouldRaiseStop reports whether candidate is meaningfully above current.
// The trailing stop only ever rises.
func shouldRaiseStop(candidate, current float64) bool {
	if candidate <= 0 {
		return false
	}
	if current <= 0 {
		return true
	}
	return decFromFloat(candidate).Cmp(decFromFloat(current).Add(decimalEps)) > 0
}
