package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

// PoolInterface defines the pool operations the archives need. The
// concrete *pgxpool.Pool satisfies it, and so does a pgxmock pool.
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// CandleArchive persists closed candles so the in-memory rings survive
// restarts. It implements market.Archive.
type CandleArchive struct {
	pool PoolInterface
}

// NewCandleArchive creates a candle archive over a pool interface
func NewCandleArchive(pool PoolInterface) *CandleArchive {
	return &CandleArchive{pool: pool}
}

// NewCandleArchiveWithPool creates a candle archive over a pgxpool.Pool
func NewCandleArchiveWithPool(pool *pgxpool.Pool) *CandleArchive {
	return &CandleArchive{pool: pool}
}

// Append upserts one closed candle. Commit can replay the same bar
// after a backfill overlap, so the write has to be idempotent.
func (a *CandleArchive) Append(ctx context.Context, symbol string, tf market.Timeframe, c market.Candle) error {
	query := `
		INSERT INTO candles (symbol, timeframe, open_time, open, high, low, close, volume, filled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, timeframe, open_time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			filled = EXCLUDED.filled
	`

	started := time.Now()
	_, err := a.pool.Exec(ctx, query,
		symbol,
		tf.String(),
		c.OpenTime,
		c.Open,
		c.High,
		c.Low,
		c.Close,
		c.Volume,
		c.Filled,
	)
	metrics.RecordDatabaseQuery("insert_candle", time.Since(started).Seconds()*1000)

	if err != nil {
		log.Error().
			Err(err).
			Str("symbol", symbol).
			Str("timeframe", tf.String()).
			Time("open_time", c.OpenTime).
			Msg("Failed to archive candle")
		return fmt.Errorf("failed to archive candle: %w", err)
	}

	return nil
}

// Load returns up to n most recent candles in ascending open time.
func (a *CandleArchive) Load(ctx context.Context, symbol string, tf market.Timeframe, n int) ([]market.Candle, error) {
	query := `
		SELECT open_time, open, high, low, close, volume, filled
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY open_time DESC
		LIMIT $3
	`

	started := time.Now()
	rows, err := a.pool.Query(ctx, query, symbol, tf.String(), n)
	metrics.RecordDatabaseQuery("select_candles", time.Since(started).Seconds()*1000)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Filled); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.OpenTime = c.OpenTime.UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	// Newest-first from the index scan, callers want oldest-first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// Depth returns the number of archived candles for one series.
func (a *CandleArchive) Depth(ctx context.Context, symbol string, tf market.Timeframe) (int, error) {
	var depth int
	err := a.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM candles WHERE symbol = $1 AND timeframe = $2",
		symbol, tf.String(),
	).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("failed to count candles: %w", err)
	}
	return depth, nil
}

// PruneBefore deletes candles whose open time precedes the cutoff and
// returns the number of rows removed.
func (a *CandleArchive) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := a.pool.Exec(ctx, "DELETE FROM candles WHERE open_time < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune candles: %w", err)
	}

	removed := tag.RowsAffected()
	if removed > 0 {
		log.Info().
			Int64("removed", removed).
			Time("cutoff", cutoff).
			Msg("Pruned archived candles")
	}

	return removed, nil
}
