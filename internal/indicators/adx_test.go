package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fxfunk/internal/market"
)

func TestADXWarmup(t *testing.T) {
	candles := make([]market.Candle, 40)
	px := 100.0
	for i := range candles {
		px += 0.5
		candles[i] = ohlc(px+0.3, px-0.3, px)
	}

	got := ADX(candles, 14)
	require.Len(t, got, 40)
	assertNaNUntil(t, got, 2*14-1)
}

func TestADXStrongTrendReadsHigh(t *testing.T) {
	// Relentless one-way movement: every bar makes a higher high and a
	// higher low, so -DM never fires and DX pins near 100.
	candles := make([]market.Candle, 60)
	px := 100.0
	for i := range candles {
		px += 0.5
		candles[i] = ohlc(px+0.3, px-0.3, px)
	}

	got := ADX(candles, 14)
	last := got[len(got)-1]
	require.False(t, math.IsNaN(last))
	assert.Greater(t, last, 50.0)
}

func TestADXChopReadsLow(t *testing.T) {
	// Alternating bars: directional movement cancels out.
	candles := make([]market.Candle, 60)
	for i := range candles {
		px := 100.0
		if i%2 == 0 {
			px = 100.5
		}
		candles[i] = ohlc(px+0.3, px-0.3, px)
	}

	got := ADX(candles, 14)
	last := got[len(got)-1]
	require.False(t, math.IsNaN(last))
	assert.Less(t, last, 25.0)
}

func TestADXShortInput(t *testing.T) {
	candles := make([]market.Candle, 20)
	for i := range candles {
		candles[i] = ohlc(101, 99, 100)
	}
	got := ADX(candles, 14)
	for i, v := range got {
		assert.True(t, math.IsNaN(v), "index %d", i)
	}
}
