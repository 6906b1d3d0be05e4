package indicators

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cinar/indicator/v2/trend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fxfunk/internal/market"
)

func candlesFromCloses(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Open: c, High: c + 0.05, Low: c - 0.05, Close: c}
	}
	return out
}

// randomWalk builds a deterministic price series for convergence
// checks against the reference library.
func randomWalk(n int, start float64) []market.Candle {
	rng := rand.New(rand.NewSource(42))
	out := make([]market.Candle, n)
	px := start
	for i := range out {
		px += (rng.Float64() - 0.5) * 0.2
		out[i] = market.Candle{Open: px, High: px + 0.05, Low: px - 0.05, Close: px}
	}
	return out
}

// computeChan pushes values through a channel-based indicator and
// collects the shortened output series.
func computeChan(ind interface {
	Compute(<-chan float64) <-chan float64
}, values []float64) []float64 {
	in := make(chan float64, len(values))
	for _, v := range values {
		in <- v
	}
	close(in)

	var out []float64
	for v := range ind.Compute(in) {
		out = append(out, v)
	}
	return out
}

func assertNaNUntil(t *testing.T, series []float64, firstValid int) {
	t.Helper()
	for i := 0; i < firstValid && i < len(series); i++ {
		assert.True(t, math.IsNaN(series[i]), "index %d should be warm-up NaN", i)
	}
	if firstValid < len(series) {
		assert.False(t, math.IsNaN(series[firstValid]), "index %d should be valid", firstValid)
	}
}

func TestSMA(t *testing.T) {
	got := SMA(candlesFromCloses(1, 2, 3, 4, 5), 3)

	require.Len(t, got, 5)
	assertNaNUntil(t, got, 2)
	assert.InDelta(t, 2.0, got[2], 1e-12)
	assert.InDelta(t, 3.0, got[3], 1e-12)
	assert.InDelta(t, 4.0, got[4], 1e-12)
}

func TestSMAShortInput(t *testing.T) {
	got := SMA(candlesFromCloses(1, 2), 3)
	require.Len(t, got, 2)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))

	assert.Empty(t, SMA(nil, 3))
}

func TestEMASeededWithSMA(t *testing.T) {
	got := EMA(candlesFromCloses(1, 2, 3, 4, 5), 3)

	require.Len(t, got, 5)
	assertNaNUntil(t, got, 2)
	// Seed = mean(1,2,3); alpha = 0.5 for period 3.
	assert.InDelta(t, 2.0, got[2], 1e-12)
	assert.InDelta(t, 3.0, got[3], 1e-12)
	assert.InDelta(t, 4.0, got[4], 1e-12)
}

// Computing over a prefix must yield the prefix of the full
// computation: the kernel keeps no hidden state.
func TestEMAPrefixInvariant(t *testing.T) {
	candles := randomWalk(120, 150.0)

	full := EMA(candles, 20)
	prefix := EMA(candles[:60], 20)

	for i := range prefix {
		if math.IsNaN(prefix[i]) {
			assert.True(t, math.IsNaN(full[i]), "index %d", i)
			continue
		}
		assert.InDelta(t, full[i], prefix[i], 1e-12, "index %d", i)
	}
}

func TestSMAMatchesReference(t *testing.T) {
	candles := randomWalk(100, 150.0)
	vals := closes(candles)

	mine := SMA(candles, 10)
	ref := computeChan(trend.NewSmaWithPeriod[float64](10), vals)

	require.NotEmpty(t, ref)
	idle := len(vals) - len(ref)
	for i := idle; i < len(vals); i++ {
		assert.InDelta(t, ref[i-idle], mine[i], 1e-9, "index %d", i)
	}
}

// Seeding conventions differ between implementations, so the EMA is
// checked for convergence at the tail rather than exact equality.
func TestEMAConvergesToReference(t *testing.T) {
	candles := randomWalk(300, 150.0)
	vals := closes(candles)

	mine := EMA(candles, 20)
	ref := computeChan(trend.NewEmaWithPeriod[float64](20), vals)

	require.NotEmpty(t, ref)
	assert.InDelta(t, ref[len(ref)-1], mine[len(mine)-1], 1e-6)
}
