package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fxfunk/internal/market"
)

func ohlc(high, low, close float64) market.Candle {
	return market.Candle{Open: close, High: high, Low: low, Close: close}
}

func TestTrueRanges(t *testing.T) {
	candles := []market.Candle{
		ohlc(10.0, 9.0, 9.5),
		ohlc(10.5, 9.4, 10.0),
		ohlc(11.0, 10.0, 10.8),
		ohlc(11.2, 10.5, 11.0),
	}
	tr := trueRanges(candles)

	require.Len(t, tr, 4)
	assert.InDelta(t, 1.0, tr[0], 1e-12, "first bar degrades to H-L")
	assert.InDelta(t, 1.1, tr[1], 1e-12)
	assert.InDelta(t, 1.0, tr[2], 1e-12)
	assert.InDelta(t, 0.7, tr[3], 1e-12)
}

func TestTrueRangeGapDominates(t *testing.T) {
	candles := []market.Candle{
		ohlc(10.0, 9.8, 9.9),
		// Gap up: range 0.2 but distance from prior close 1.1.
		ohlc(11.0, 10.8, 10.9),
	}
	tr := trueRanges(candles)
	assert.InDelta(t, 1.1, tr[1], 1e-12)
}

func TestATRWilder(t *testing.T) {
	candles := []market.Candle{
		ohlc(10.0, 9.0, 9.5),
		ohlc(10.5, 9.4, 10.0),
		ohlc(11.0, 10.0, 10.8),
		ohlc(11.2, 10.5, 11.0),
	}
	got := ATR(candles, 2)

	require.Len(t, got, 4)
	assertNaNUntil(t, got, 2)
	// Seed = mean(TR[1], TR[2]) = 1.05, then Wilder recursion.
	assert.InDelta(t, 1.05, got[2], 1e-12)
	assert.InDelta(t, (1.05+0.7)/2, got[3], 1e-12)
}

func TestATRShortInput(t *testing.T) {
	got := ATR([]market.Candle{ohlc(10, 9, 9.5), ohlc(10, 9, 9.5)}, 14)
	for i, v := range got {
		assert.True(t, math.IsNaN(v), "index %d", i)
	}
}
