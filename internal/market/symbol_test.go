package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupSymbol(t *testing.T) {
	info, ok := LookupSymbol("USD_JPY")
	require.True(t, ok)
	assert.Equal(t, JPYQuoted, info.Kind)
	assert.Equal(t, 3, info.Precision)
	assert.Equal(t, 0.01, info.PipSize)

	info, ok = LookupSymbol("EUR_USD")
	require.True(t, ok)
	assert.Equal(t, USDQuoted, info.Kind)
	assert.Equal(t, 5, info.Precision)
	assert.Equal(t, 0.0001, info.PipSize)

	_, ok = LookupSymbol("BTC_JPY")
	assert.False(t, ok)
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("GBP_JPY"))
	assert.False(t, IsSupported("GBPJPY"))
	assert.False(t, IsSupported(""))
}

func TestSymbolsReturnsCopy(t *testing.T) {
	first := Symbols()
	require.NotEmpty(t, first)
	first[0].Symbol = "MUTATED"

	again := Symbols()
	assert.Equal(t, "USD_JPY", again[0].Symbol)
}

func TestPipSizeFallback(t *testing.T) {
	assert.Equal(t, 0.01, PipSize("USD_JPY"))
	assert.Equal(t, 0.0001, PipSize("EUR_USD"))

	// Unlisted pairs fall back on the quote suffix.
	assert.Equal(t, 0.01, PipSize("SEK_JPY"))
	assert.Equal(t, 0.0001, PipSize("EUR_GBP"))
}
