// Package indicators is the batch indicator kernel. Every function
// maps a candle slice to a same-length series, padding the warm-up
// with NaN, and keeps no state between calls: computing over a prefix
// yields the prefix of the full computation.
package indicators

import (
	"math"

	"github.com/ajitpratap0/fxfunk/internal/market"
)

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA is the simple moving average of closes. Valid from index
// period-1.
func SMA(candles []market.Candle, period int) []float64 {
	return smaSeries(closes(candles), period)
}

func smaSeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period < 1 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA is the exponential moving average of closes, seeded with the
// SMA of the first period values. Valid from index period-1.
func EMA(candles []market.Candle, period int) []float64 {
	return emaSeries(closes(candles), period)
}

func emaSeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period < 1 || len(values) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev

	alpha := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}
