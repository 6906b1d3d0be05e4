package market

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fxfunk/internal/gmo"
)

func newQuoteCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisQuoteCache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisQuoteCache(client, ttl)
}

func testQuote(symbol string, bid float64, ts time.Time) Quote {
	return Quote{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       bid + 0.004,
		Timestamp: ts,
		Status:    gmo.MarketOpen,
	}
}

func TestNewRedisQuoteCacheNilClient(t *testing.T) {
	cache := NewRedisQuoteCache(nil, time.Minute)
	assert.Nil(t, cache)

	// A nil cache must stay callable: Redis is optional everywhere.
	ctx := context.Background()
	_, found := cache.Get(ctx, "USD_JPY")
	assert.False(t, found)
	assert.Error(t, cache.Set(ctx, testQuote("USD_JPY", 150.1, time.Now())))
	assert.Error(t, cache.Health(ctx))
}

func TestQuoteCacheRoundTrip(t *testing.T) {
	_, cache := newQuoteCache(t, time.Minute)
	ctx := context.Background()
	ts := time.Date(2026, 8, 25, 9, 15, 30, 0, time.UTC)

	_, found := cache.Get(ctx, "USD_JPY")
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, testQuote("USD_JPY", 150.100, ts)))

	got, found := cache.Get(ctx, "USD_JPY")
	require.True(t, found)
	assert.Equal(t, "USD_JPY", got.Symbol)
	assert.Equal(t, 150.100, got.Bid)
	assert.Equal(t, 150.104, got.Ask)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.Equal(t, gmo.MarketOpen, got.Status)
}

func TestQuoteCacheExpiry(t *testing.T) {
	mr, cache := newQuoteCache(t, time.Second)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testQuote("USD_JPY", 150.1, time.Now())))
	_, found := cache.Get(ctx, "USD_JPY")
	require.True(t, found)

	mr.FastForward(2 * time.Second)

	_, found = cache.Get(ctx, "USD_JPY")
	assert.False(t, found)
}

func TestQuoteCacheCorruptEntry(t *testing.T) {
	mr, cache := newQuoteCache(t, time.Minute)

	require.NoError(t, mr.Set("fxfunk:quote:USD_JPY", "{not json"))

	_, found := cache.Get(context.Background(), "USD_JPY")
	assert.False(t, found)
}

func TestQuoteCacheDelete(t *testing.T) {
	_, cache := newQuoteCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testQuote("USD_JPY", 150.1, time.Now())))
	require.NoError(t, cache.Delete(ctx, "USD_JPY"))

	_, found := cache.Get(ctx, "USD_JPY")
	assert.False(t, found)
}

func TestQuoteCacheClearLeavesForeignKeys(t *testing.T) {
	mr, cache := newQuoteCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, testQuote("USD_JPY", 150.1, time.Now())))
	require.NoError(t, cache.Set(ctx, testQuote("EUR_USD", 1.16, time.Now())))
	require.NoError(t, mr.Set("other:key", "keep"))

	require.NoError(t, cache.Clear(ctx))

	_, found := cache.Get(ctx, "USD_JPY")
	assert.False(t, found)
	_, found = cache.Get(ctx, "EUR_USD")
	assert.False(t, found)
	assert.True(t, mr.Exists("other:key"))
}

func TestQuoteCacheHealth(t *testing.T) {
	mr, cache := newQuoteCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Health(ctx))

	mr.SetError("redis is down")
	assert.Error(t, cache.Health(ctx))
}

func TestQuoteBoardNewestWins(t *testing.T) {
	board := NewQuoteBoard(nil)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	board.Update(ctx, testQuote("USD_JPY", 150.2, base.Add(2*time.Second)))
	board.Update(ctx, testQuote("USD_JPY", 150.1, base.Add(time.Second)))

	got, ok := board.Latest(ctx, "USD_JPY")
	require.True(t, ok)
	assert.Equal(t, 150.2, got.Bid, "older frame must not replace newer")

	board.Update(ctx, testQuote("USD_JPY", 150.3, base.Add(3*time.Second)))
	got, _ = board.Latest(ctx, "USD_JPY")
	assert.Equal(t, 150.3, got.Bid)
}

func TestQuoteBoardAllSorted(t *testing.T) {
	board := NewQuoteBoard(nil)
	ctx := context.Background()
	now := time.Now()

	board.Update(ctx, testQuote("USD_JPY", 150.1, now))
	board.Update(ctx, testQuote("AUD_JPY", 97.5, now))
	board.Update(ctx, testQuote("EUR_USD", 1.16, now))

	all := board.All()
	require.Len(t, all, 3)
	assert.Equal(t, "AUD_JPY", all[0].Symbol)
	assert.Equal(t, "EUR_USD", all[1].Symbol)
	assert.Equal(t, "USD_JPY", all[2].Symbol)
}

func TestQuoteBoardMirrorsToRedis(t *testing.T) {
	_, cache := newQuoteCache(t, time.Minute)
	board := NewQuoteBoard(cache)
	ctx := context.Background()

	board.Update(ctx, testQuote("USD_JPY", 150.1, time.Now()))

	got, found := cache.Get(ctx, "USD_JPY")
	require.True(t, found)
	assert.Equal(t, 150.1, got.Bid)
}

func TestQuoteBoardFallsBackToCache(t *testing.T) {
	_, cache := newQuoteCache(t, time.Minute)
	ctx := context.Background()
	ts := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Set(ctx, testQuote("USD_JPY", 150.1, ts)))

	// A fresh board has seen nothing in-process yet.
	board := NewQuoteBoard(cache)
	got, ok := board.Latest(ctx, "USD_JPY")
	require.True(t, ok)
	assert.Equal(t, 150.1, got.Bid)

	_, ok = board.Latest(ctx, "EUR_USD")
	assert.False(t, ok)
}

func TestQuoteBoardNilCache(t *testing.T) {
	board := NewQuoteBoard(nil)
	ctx := context.Background()

	_, ok := board.Latest(ctx, "USD_JPY")
	assert.False(t, ok)

	board.Update(ctx, testQuote("USD_JPY", 150.1, time.Now()))
	_, ok = board.Latest(ctx, "USD_JPY")
	assert.True(t, ok)
}

type captureSink struct {
	quotes []Quote
}

func (s *captureSink) PublishQuote(_ context.Context, q Quote) error {
	s.quotes = append(s.quotes, q)
	return nil
}

func TestQuoteBoardForwardsAcceptedQuotes(t *testing.T) {
	board := NewQuoteBoard(nil)
	sink := &captureSink{}
	board.AttachBus(sink)
	ctx := context.Background()
	base := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)

	board.Update(ctx, testQuote("USD_JPY", 150.2, base.Add(2*time.Second)))
	board.Update(ctx, testQuote("USD_JPY", 150.1, base.Add(time.Second)))

	// The rejected out-of-order frame must not reach the bus.
	require.Len(t, sink.quotes, 1)
	assert.Equal(t, 150.2, sink.quotes[0].Bid)
}
