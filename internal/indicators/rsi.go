package indicators

import "github.com/ajitpratap0/fxfunk/internal/market"

// RSI is Wilder's relative strength index. The first average gain and
// loss are simple means of the first period changes, so the series is
// valid from index period. A flat window reads as neutral 50.
func RSI(candles []market.Candle, period int) []float64 {
	return rsiSeries(closes(candles), period)
}

func rsiSeries(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period < 1 || len(values) < period+1 {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
