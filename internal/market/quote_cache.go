package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

// RedisQuoteCache mirrors the latest quote per symbol into Redis so
// restarts and external consumers see prices without waiting for the
// next tick. A nil cache is valid everywhere: Redis is optional.
type RedisQuoteCache struct {
	client *redis.Client
	rm     *metrics.RedisMetrics
	ttl    time.Duration
}

// NewRedisQuoteCache creates a Redis-backed quote mirror.
// If client is nil, returns nil (optional Redis support).
func NewRedisQuoteCache(client *redis.Client, ttl time.Duration) *RedisQuoteCache {
	if client == nil {
		return nil
	}

	if ttl == 0 {
		ttl = 60 * time.Second
	}

	return &RedisQuoteCache{
		client: client,
		rm:     metrics.NewRedisMetrics(client),
		ttl:    ttl,
	}
}

// Get retrieves the cached quote for a symbol.
// Returns the quote and true if found, or a zero quote and false on
// miss or error.
func (c *RedisQuoteCache) Get(ctx context.Context, symbol string) (Quote, bool) {
	if c == nil || c.client == nil {
		return Quote{}, false
	}

	key := c.buildKey(symbol)

	// Short timeout so a slow Redis never blocks the quote path.
	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	cached, err := c.rm.Get(cacheCtx, key)
	if err != nil {
		if err != redis.Nil {
			log.Debug().
				Err(err).
				Str("key", key).
				Msg("Redis get error - treating as cache miss")
		}
		return Quote{}, false
	}

	var q Quote
	if err := json.Unmarshal([]byte(cached), &q); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to unmarshal cached quote")
		return Quote{}, false
	}

	return q, true
}

// Set stores a quote with the configured TTL. Failures are logged and
// returned but callers treat them as non-fatal.
func (c *RedisQuoteCache) Set(ctx context.Context, q Quote) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	key := c.buildKey(q.Symbol)

	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.rm.Set(cacheCtx, key, data, c.ttl); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to cache quote")
		return err
	}

	return nil
}

// Delete removes one symbol's quote from cache.
func (c *RedisQuoteCache) Delete(ctx context.Context, symbol string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.rm.Del(cacheCtx, c.buildKey(symbol)); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}

	return nil
}

// Clear removes all cached quotes.
func (c *RedisQuoteCache) Clear(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	iter := c.client.Scan(cacheCtx, 0, c.buildKeyPattern(), 0).Iterator()
	count := 0

	for iter.Next(cacheCtx) {
		if err := c.rm.Del(cacheCtx, iter.Val()); err != nil {
			log.Warn().
				Err(err).
				Str("key", iter.Val()).
				Msg("Failed to delete cache key")
		} else {
			count++
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan error: %w", err)
	}

	log.Info().
		Int("keys_deleted", count).
		Msg("Cleared quote cache")

	return nil
}

// Health checks if the Redis connection is healthy.
func (c *RedisQuoteCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(cacheCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}

func (c *RedisQuoteCache) buildKey(symbol string) string {
	return fmt.Sprintf("fxfunk:quote:%s", symbol)
}

func (c *RedisQuoteCache) buildKeyPattern() string {
	return "fxfunk:quote:*"
}

// QuoteSink receives every quote the board accepts, typically the
// event bus. Delivery is best-effort, like the Redis mirror.
type QuoteSink interface {
	PublishQuote(ctx context.Context, q Quote) error
}

// QuoteBoard keeps the newest quote per symbol for the API layer and
// mirrors each update into Redis when a cache is attached.
type QuoteBoard struct {
	mu     sync.RWMutex
	latest map[string]Quote
	cache  *RedisQuoteCache
	sink   QuoteSink
}

// NewQuoteBoard builds a board. cache may be nil.
func NewQuoteBoard(cache *RedisQuoteCache) *QuoteBoard {
	return &QuoteBoard{
		latest: make(map[string]Quote),
		cache:  cache,
	}
}

// AttachBus forwards accepted quotes to the event bus. Must be called
// before the first Update.
func (b *QuoteBoard) AttachBus(sink QuoteSink) {
	b.sink = sink
}

// Update records q unless a newer quote for the symbol already
// arrived. Out-of-order frames happen across reconnects; rejected
// frames never reach the mirror or the bus.
func (b *QuoteBoard) Update(ctx context.Context, q Quote) {
	b.mu.Lock()
	if cur, ok := b.latest[q.Symbol]; ok && cur.Timestamp.After(q.Timestamp) {
		b.mu.Unlock()
		return
	}
	b.latest[q.Symbol] = q
	b.mu.Unlock()

	if b.cache != nil {
		_ = b.cache.Set(ctx, q)
	}
	if b.sink != nil {
		_ = b.sink.PublishQuote(ctx, q)
	}
}

// Latest returns the newest quote for a symbol, consulting the Redis
// mirror when this process has not seen one yet.
func (b *QuoteBoard) Latest(ctx context.Context, symbol string) (Quote, bool) {
	b.mu.RLock()
	q, ok := b.latest[symbol]
	b.mu.RUnlock()
	if ok {
		return q, true
	}
	return b.cache.Get(ctx, symbol)
}

// All returns every known quote, sorted by symbol.
func (b *QuoteBoard) All() []Quote {
	b.mu.RLock()
	out := make([]Quote, 0, len(b.latest))
	for _, q := range b.latest {
		out = append(out, q)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
