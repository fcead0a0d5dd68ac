// Package stats summarizes a sequence of present values: mean, minimum,
// maximum and population standard deviation.
//
// Mean, minimum and maximum are exact decimals. The square root of the
// variance is taken in float64 and converted back immediately.
package stats

import (
	"math"

	"github.com/shopspring/decimal"
)

// Summary holds the four statistics of a sequence. Every field is invalid
// when the sequence is empty.
type Summary struct {
	Count      int                 `json:"count"`
	Average    decimal.NullDecimal `json:"average"`
	Min        decimal.NullDecimal `json:"min"`
	Max        decimal.NullDecimal `json:"max"`
	Volatility decimal.NullDecimal `json:"volatility"`
}

// Present drops unavailable values, keeping order.
func Present(values []decimal.NullDecimal) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		if v.Valid {
			out = append(out, v.Decimal)
		}
	}
	return out
}

// Summarize computes the summary of values. Volatility is the population
// standard deviation (divided by n, not n − 1).
func Summarize(values []decimal.Decimal) Summary {
	n := len(values)
	if n == 0 {
		return Summary{}
	}

	sum := decimal.Zero
	lo, hi := values[0], values[0]
	for _, v := range values {
		sum = sum.Add(v)
		if v.LessThan(lo) {
			lo = v
		}
		if v.GreaterThan(hi) {
			hi = v
		}
	}
	count := decimal.NewFromInt(int64(n))
	mean := sum.Div(count)

	squares := decimal.Zero
	for _, v := range values {
		dev := v.Sub(mean)
		squares = squares.Add(dev.Mul(dev))
	}
	variance := squares.Div(count)
	volatility := decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))

	return Summary{
		Count:      n,
		Average:    decimal.NewNullDecimal(mean),
		Min:        decimal.NewNullDecimal(lo),
		Max:        decimal.NewNullDecimal(hi),
		Volatility: decimal.NewNullDecimal(volatility),
	}
}

// SummarizeSeries is Summarize over the present values of a series.
func SummarizeSeries(values []decimal.NullDecimal) Summary {
	return Summarize(Present(values))
}
