package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Updater periodically refreshes database-backed gauges: archive depth,
// signal freshness and connection pool stats.
type Updater struct {
	db       *pgxpool.Pool
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates a new metrics updater
func NewUpdater(db *pgxpool.Pool, interval time.Duration) *Updater {
	return &Updater{
		db:       db,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the metrics update loop
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	// Update immediately on start
	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater
func (u *Updater) Stop() {
	close(u.stopCh)
}

// update fetches and updates all database-backed metrics
func (u *Updater) update(ctx context.Context) {
	log.Debug().Msg("Updating metrics from database")

	u.updateArchiveMetrics(ctx)
	u.updateSignalMetrics(ctx)
	u.updateDatabaseMetrics()
}

// updateArchiveMetrics refreshes candle archive depth by symbol and timeframe
func (u *Updater) updateArchiveMetrics(ctx context.Context) {
	query := `
		SELECT symbol, timeframe, COUNT(*) AS depth
		FROM candles
		GROUP BY symbol, timeframe
	`

	rows, err := u.db.Query(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch candle archive depth")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var symbol, timeframe string
		var depth int64
		if err := rows.Scan(&symbol, &timeframe, &depth); err != nil {
			continue
		}
		CandleArchiveDepth.WithLabelValues(symbol, timeframe).Set(float64(depth))
	}
}

// updateSignalMetrics refreshes the age of the most recent archived signal
func (u *Updater) updateSignalMetrics(ctx context.Context) {
	query := `SELECT created_at FROM signals ORDER BY created_at DESC LIMIT 1`

	var latest time.Time
	err := u.db.QueryRow(ctx, query).Scan(&latest)
	if err == pgx.ErrNoRows {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch latest signal timestamp")
		return
	}

	LastSignalAge.Set(time.Since(latest).Seconds())
}

// updateDatabaseMetrics updates database connection pool metrics
func (u *Updater) updateDatabaseMetrics() {
	stat := u.db.Stat()
	UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
}
