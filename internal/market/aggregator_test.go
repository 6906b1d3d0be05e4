package market

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fxfunk/internal/gmo"
)

func newTestAggregator(tfs ...Timeframe) (*Aggregator, *Store, *QuoteBoard) {
	store := NewStore(nil, zerolog.Nop())
	board := NewQuoteBoard(nil)
	agg := NewAggregator(store, board, "USD_JPY", tfs, zerolog.Nop())
	return agg, store, board
}

func quoteAt(ts time.Time, bid float64) Quote {
	return Quote{
		Symbol:    "USD_JPY",
		Bid:       bid,
		Ask:       bid + 0.004,
		Timestamp: ts,
		Status:    gmo.MarketOpen,
	}
}

func TestAggregatorOpensFirstBar(t *testing.T) {
	agg, store, _ := newTestAggregator(TFM1)

	agg.Apply(context.Background(), quoteAt(storeBase.Add(30*time.Second), 150.100))

	open, ok := store.Open("USD_JPY", TFM1)
	require.True(t, ok)
	assert.True(t, open.OpenTime.Equal(storeBase))
	assert.Equal(t, 150.100, open.Open)
	assert.Equal(t, 150.100, open.High)
	assert.Equal(t, 150.100, open.Low)
	assert.Equal(t, 150.100, open.Close)
	assert.Equal(t, 0, store.Len("USD_JPY", TFM1))
}

func TestAggregatorFoldsWithinBar(t *testing.T) {
	agg, store, _ := newTestAggregator(TFM1)
	ctx := context.Background()

	agg.Apply(ctx, quoteAt(storeBase.Add(5*time.Second), 150.00))
	agg.Apply(ctx, quoteAt(storeBase.Add(15*time.Second), 150.10))
	agg.Apply(ctx, quoteAt(storeBase.Add(25*time.Second), 149.95))
	agg.Apply(ctx, quoteAt(storeBase.Add(35*time.Second), 150.02))

	open, ok := store.Open("USD_JPY", TFM1)
	require.True(t, ok)
	assert.Equal(t, 150.00, open.Open)
	assert.Equal(t, 150.10, open.High)
	assert.Equal(t, 149.95, open.Low)
	assert.Equal(t, 150.02, open.Close)
	assert.Equal(t, 0, store.Len("USD_JPY", TFM1))
}

func TestAggregatorRotatesAtBoundary(t *testing.T) {
	agg, store, _ := newTestAggregator(TFM1)
	ctx := context.Background()

	agg.Apply(ctx, quoteAt(storeBase.Add(30*time.Second), 150.00))
	agg.Apply(ctx, quoteAt(storeBase.Add(70*time.Second), 150.20))

	require.Equal(t, 1, store.Len("USD_JPY", TFM1))
	closed, _ := store.LastCandle("USD_JPY", TFM1)
	assert.True(t, closed.OpenTime.Equal(storeBase))
	assert.Equal(t, 150.00, closed.Close)
	assert.False(t, closed.Filled)

	open, ok := store.Open("USD_JPY", TFM1)
	require.True(t, ok)
	assert.True(t, open.OpenTime.Equal(storeBase.Add(time.Minute)))
	assert.Equal(t, 150.20, open.Open)
}

func TestAggregatorFillsShortGap(t *testing.T) {
	agg, store, _ := newTestAggregator(TFM1)
	ctx := context.Background()

	agg.Apply(ctx, quoteAt(storeBase.Add(30*time.Second), 150.00))
	// Next quote lands three boundaries later.
	agg.Apply(ctx, quoteAt(storeBase.Add(4*time.Minute+10*time.Second), 150.30))

	require.Equal(t, 4, store.Len("USD_JPY", TFM1))
	snap := store.Snapshot("USD_JPY", TFM1)

	assert.False(t, snap[0].Filled)
	assert.Equal(t, 150.00, snap[0].Close)

	for i := 1; i <= 3; i++ {
		fill := snap[i]
		assert.True(t, fill.Filled, "bar %d", i)
		assert.True(t, fill.OpenTime.Equal(storeBase.Add(time.Duration(i)*time.Minute)), "bar %d", i)
		assert.Equal(t, 150.00, fill.Open, "bar %d", i)
		assert.Equal(t, 150.00, fill.High, "bar %d", i)
		assert.Equal(t, 150.00, fill.Low, "bar %d", i)
		assert.Equal(t, 150.00, fill.Close, "bar %d", i)
	}

	open, ok := store.Open("USD_JPY", TFM1)
	require.True(t, ok)
	assert.True(t, open.OpenTime.Equal(storeBase.Add(4*time.Minute)))
	assert.Equal(t, 150.30, open.Open)
}

func TestAggregatorJumpsLongGap(t *testing.T) {
	agg, store, _ := newTestAggregator(TFM1)
	ctx := context.Background()

	agg.Apply(ctx, quoteAt(storeBase.Add(30*time.Second), 150.00))
	// A weekend-sized hole: far more than maxGapFill boundaries.
	resume := storeBase.Add(48 * time.Hour)
	agg.Apply(ctx, quoteAt(resume.Add(10*time.Second), 149.50))

	// Only the bar that was live before the break gets committed.
	require.Equal(t, 1, store.Len("USD_JPY", TFM1))
	closed, _ := store.LastCandle("USD_JPY", TFM1)
	assert.False(t, closed.Filled)

	open, ok := store.Open("USD_JPY", TFM1)
	require.True(t, ok)
	assert.True(t, open.OpenTime.Equal(resume))
	assert.Equal(t, 149.50, open.Open)
}

func TestAggregatorGapFillCapBoundary(t *testing.T) {
	agg, store, _ := newTestAggregator(TFM1)
	ctx := context.Background()

	// Exactly maxGapFill missed boundaries still fill.
	agg.Apply(ctx, quoteAt(storeBase.Add(30*time.Second), 150.00))
	agg.Apply(ctx, quoteAt(storeBase.Add(time.Duration(maxGapFill+1)*time.Minute+5*time.Second), 150.40))

	assert.Equal(t, 1+maxGapFill, store.Len("USD_JPY", TFM1))
}

func TestAggregatorDropsStaleQuote(t *testing.T) {
	agg, store, _ := newTestAggregator(TFM1)
	ctx := context.Background()

	agg.Apply(ctx, quoteAt(storeBase.Add(5*time.Minute), 150.00))
	agg.Apply(ctx, quoteAt(storeBase.Add(3*time.Minute), 151.00))

	open, ok := store.Open("USD_JPY", TFM1)
	require.True(t, ok)
	assert.Equal(t, 150.00, open.Close)
	assert.Equal(t, 0, store.Len("USD_JPY", TFM1))
}

func TestAggregatorSkipsClosedMarket(t *testing.T) {
	agg, store, board := newTestAggregator(TFM1)
	ctx := context.Background()

	q := quoteAt(storeBase.Add(30*time.Second), 150.00)
	q.Status = gmo.MarketClosed
	agg.Apply(ctx, q)

	_, ok := store.Open("USD_JPY", TFM1)
	assert.False(t, ok, "closed-market quotes must not build candles")

	got, ok := board.Latest(ctx, "USD_JPY")
	require.True(t, ok, "board still tracks the latest quote")
	assert.Equal(t, 150.00, got.Bid)
}

func TestAggregatorMultiTimeframe(t *testing.T) {
	agg, store, _ := newTestAggregator(TFM1, TFM5)
	ctx := context.Background()

	agg.Apply(ctx, quoteAt(storeBase.Add(4*time.Minute+50*time.Second), 150.00))
	agg.Apply(ctx, quoteAt(storeBase.Add(5*time.Minute+10*time.Second), 150.10))

	require.Equal(t, 1, store.Len("USD_JPY", TFM1))
	require.Equal(t, 1, store.Len("USD_JPY", TFM5))

	m5, _ := store.LastCandle("USD_JPY", TFM5)
	assert.True(t, m5.OpenTime.Equal(storeBase))
	assert.Equal(t, 150.00, m5.Close)
}

func TestAggregatorRunConsumesTickers(t *testing.T) {
	agg, store, _ := newTestAggregator(TFM1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quotes := make(chan gmo.Ticker, 4)
	done := make(chan error, 1)
	go func() { done <- agg.Run(ctx, quotes) }()

	quotes <- gmo.Ticker{Symbol: "USD_JPY", Bid: "bogus", Ask: "150.104", Timestamp: storeBase}
	quotes <- gmo.Ticker{
		Symbol:    "USD_JPY",
		Bid:       "150.100",
		Ask:       "150.104",
		Timestamp: storeBase.Add(30 * time.Second),
		Status:    gmo.MarketOpen,
	}

	require.Eventually(t, func() bool {
		_, ok := store.Open("USD_JPY", TFM1)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	open, _ := store.Open("USD_JPY", TFM1)
	assert.Equal(t, 150.100, open.Open, "malformed frame must be skipped, not folded")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
