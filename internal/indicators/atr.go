package indicators

import (
	"math"

	"github.com/ajitpratap0/fxfunk/internal/market"
)

// trueRanges returns max(H-L, |H-prevC|, |L-prevC|) per bar. The first
// bar has no previous close and degrades to its own range.
func trueRanges(candles []market.Candle) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low,
			math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return tr
}

// ATR is Wilder's average true range, seeded with the mean of the
// first period true ranges (skipping the closeless first bar). Valid
// from index period.
func ATR(candles []market.Candle, period int) []float64 {
	out := nanSeries(len(candles))
	if period < 1 || len(candles) < period+1 {
		return out
	}

	tr := trueRanges(candles)
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	prev := sum / float64(period)
	out[period] = prev

	for i := period + 1; i < len(candles); i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out
}
