package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMACDWarmupIndexes(t *testing.T) {
	candles := randomWalk(60, 150.0)
	m := MACD(candles, 12, 26, 9)

	require.Len(t, m.Line, 60)
	require.Len(t, m.Signal, 60)
	require.Len(t, m.Hist, 60)

	assertNaNUntil(t, m.Line, 25)
	assertNaNUntil(t, m.Signal, 33)
	assertNaNUntil(t, m.Hist, 33)
}

func TestMACDHistogramIdentity(t *testing.T) {
	candles := randomWalk(120, 150.0)
	m := MACD(candles, 12, 26, 9)

	for i := range m.Hist {
		if math.IsNaN(m.Hist[i]) {
			continue
		}
		assert.InDelta(t, m.Line[i]-m.Signal[i], m.Hist[i], 1e-12, "index %d", i)
	}
}

func TestMACDSignOnSustainedTrend(t *testing.T) {
	rising := make([]float64, 80)
	for i := range rising {
		rising[i] = 100 + float64(i)*0.5
	}
	m := MACD(candlesFromCloses(rising...), 12, 26, 9)
	assert.Greater(t, m.Line[79], 0.0, "fast EMA above slow in an uptrend")

	falling := make([]float64, 80)
	for i := range falling {
		falling[i] = 100 - float64(i)*0.5
	}
	m = MACD(candlesFromCloses(falling...), 12, 26, 9)
	assert.Less(t, m.Line[79], 0.0)
}

func TestMACDShortInput(t *testing.T) {
	m := MACD(randomWalk(10, 150.0), 12, 26, 9)
	for i := range m.Line {
		assert.True(t, math.IsNaN(m.Line[i]), "line %d", i)
		assert.True(t, math.IsNaN(m.Signal[i]), "signal %d", i)
		assert.True(t, math.IsNaN(m.Hist[i]), "hist %d", i)
	}
}
