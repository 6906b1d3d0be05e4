package indicators

import (
	"math"

	"github.com/ajitpratap0/fxfunk/internal/market"
)

// ADX is Wilder's average directional index. Directional movement and
// true range are Wilder-smoothed into DI+/DI-, their spread becomes
// DX, and DX is Wilder-smoothed again, so the warm-up is two full
// periods: valid from index 2*period-1.
func ADX(candles []market.Candle, period int) []float64 {
	n := len(candles)
	out := nanSeries(n)
	if period < 1 || n < 2*period {
		return out
	}

	tr := trueRanges(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	smoothTR := wilderSmooth(tr, period)
	smoothPlus := wilderSmooth(plusDM, period)
	smoothMinus := wilderSmooth(minusDM, period)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlus[i] / smoothTR[i]
		minusDI := 100 * smoothMinus[i] / smoothTR[i]
		if diSum := plusDI + minusDI; diSum != 0 {
			dx[i] = 100 * math.Abs(plusDI-minusDI) / diSum
		}
	}

	sum := 0.0
	for i := period; i < 2*period; i++ {
		sum += dx[i]
	}
	prev := sum / float64(period)
	out[2*period-1] = prev

	for i := 2 * period; i < n; i++ {
		prev = (prev*float64(period-1) + dx[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// wilderSmooth seeds at index period with the mean of data[1..period],
// matching the true-range convention of skipping the first bar.
func wilderSmooth(data []float64, period int) []float64 {
	n := len(data)
	result := make([]float64, n)
	if n <= period {
		return result
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += data[i]
	}
	result[period] = sum / float64(period)

	for i := period + 1; i < n; i++ {
		result[i] = (result[i-1]*float64(period-1) + data[i]) / float64(period)
	}
	return result
}
