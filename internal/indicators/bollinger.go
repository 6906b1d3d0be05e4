package indicators

import (
	"math"

	"github.com/ajitpratap0/fxfunk/internal/market"
)

// BollingerBands holds the middle SMA and the bands width standard
// deviations away.
type BollingerBands struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// Bollinger computes bands around SMA(period) using the population
// standard deviation of each window. Valid from index period-1.
func Bollinger(candles []market.Candle, period int, width float64) BollingerBands {
	vals := closes(candles)
	n := len(vals)
	bands := BollingerBands{
		Middle: smaSeries(vals, period),
		Upper:  nanSeries(n),
		Lower:  nanSeries(n),
	}
	if period < 1 || n < period {
		return bands
	}

	for i := period - 1; i < n; i++ {
		mean := bands.Middle[i]
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := vals[j] - mean
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period))
		bands.Upper[i] = mean + width*sd
		bands.Lower[i] = mean - width*sd
	}
	return bands
}
