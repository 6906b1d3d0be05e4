package indicators

import (
	"math"

	"github.com/ajitpratap0/fxfunk/internal/market"
)

// MACDSeries carries the MACD line, its signal EMA and the histogram.
type MACDSeries struct {
	Line   []float64
	Signal []float64
	Hist   []float64
}

// MACD computes fast EMA minus slow EMA, a signal EMA over the valid
// part of that line, and their difference. With the classic 12/26/9
// the line is valid from index 25 and the histogram from index 33.
func MACD(candles []market.Candle, fast, slow, signal int) MACDSeries {
	vals := closes(candles)
	n := len(vals)

	fastEMA := emaSeries(vals, fast)
	slowEMA := emaSeries(vals, slow)

	line := nanSeries(n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			line[i] = fastEMA[i] - slowEMA[i]
		}
	}

	sig := emaOverValid(line, signal)

	hist := nanSeries(n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(line[i]) && !math.IsNaN(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}

	return MACDSeries{Line: line, Signal: sig, Hist: hist}
}

// emaOverValid runs an EMA over the non-NaN suffix of values, keeping
// the warm-up prefix NaN.
func emaOverValid(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	start := -1
	for i, v := range values {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 {
		return out
	}
	copy(out[start:], emaSeries(values[start:], period))
	return out
}
