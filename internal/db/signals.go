package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

// SignalRecord is one archived strategy evaluation. Entry levels are
// zero for non-entry states.
type SignalRecord struct {
	ID          uuid.UUID
	Symbol      string
	Source      string
	State       string
	Confidence  int
	Entry       float64
	StopLoss    float64
	TakeProfit1 float64
	TakeProfit2 float64
	RiskPips    float64
	RewardPips  float64
	Reason      string
	Detail      map[string]interface{}
	CreatedAt   time.Time
}

// SignalArchive persists strategy evaluations for later review.
type SignalArchive struct {
	pool PoolInterface
}

// NewSignalArchive creates a signal archive over a pool interface
func NewSignalArchive(pool PoolInterface) *SignalArchive {
	return &SignalArchive{pool: pool}
}

// NewSignalArchiveWithPool creates a signal archive over a pgxpool.Pool
func NewSignalArchiveWithPool(pool *pgxpool.Pool) *SignalArchive {
	return &SignalArchive{pool: pool}
}

// Insert writes one signal record. A zero ID gets a fresh UUID and a
// zero CreatedAt gets the current time.
func (a *SignalArchive) Insert(ctx context.Context, rec *SignalRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO signals (
			id, symbol, source, state, confidence, entry, stop_loss,
			take_profit_1, take_profit_2, risk_pips, reward_pips,
			reason, detail, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	started := time.Now()
	_, err := a.pool.Exec(ctx, query,
		rec.ID,
		rec.Symbol,
		rec.Source,
		rec.State,
		rec.Confidence,
		rec.Entry,
		rec.StopLoss,
		rec.TakeProfit1,
		rec.TakeProfit2,
		rec.RiskPips,
		rec.RewardPips,
		rec.Reason,
		rec.Detail,
		rec.CreatedAt,
	)
	metrics.RecordDatabaseQuery("insert_signal", time.Since(started).Seconds()*1000)

	if err != nil {
		log.Error().
			Err(err).
			Str("symbol", rec.Symbol).
			Str("source", rec.Source).
			Str("state", rec.State).
			Msg("Failed to archive signal")
		return fmt.Errorf("failed to archive signal: %w", err)
	}

	log.Debug().
		Str("signal_id", rec.ID.String()).
		Str("symbol", rec.Symbol).
		Str("state", rec.State).
		Int("confidence", rec.Confidence).
		Msg("Signal archived")

	return nil
}

// Recent returns the newest records for a symbol, newest first.
func (a *SignalArchive) Recent(ctx context.Context, symbol string, limit int) ([]*SignalRecord, error) {
	query := `
		SELECT id, symbol, source, state, confidence, entry, stop_loss,
		       take_profit_1, take_profit_2, risk_pips, reward_pips,
		       reason, detail, created_at
		FROM signals
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := a.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var records []*SignalRecord
	for rows.Next() {
		var rec SignalRecord
		err := rows.Scan(
			&rec.ID,
			&rec.Symbol,
			&rec.Source,
			&rec.State,
			&rec.Confidence,
			&rec.Entry,
			&rec.StopLoss,
			&rec.TakeProfit1,
			&rec.TakeProfit2,
			&rec.RiskPips,
			&rec.RewardPips,
			&rec.Reason,
			&rec.Detail,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return records, nil
}
