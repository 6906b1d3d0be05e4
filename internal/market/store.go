package market

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

// ringSize is the completed-candle history per (symbol, timeframe).
const ringSize = 512

// Archive persists completed candles beyond the in-memory ring. The
// store treats it as best-effort: a failed append never blocks the
// live path.
type Archive interface {
	Load(ctx context.Context, symbol string, tf Timeframe, n int) ([]Candle, error)
	Append(ctx context.Context, symbol string, tf Timeframe, c Candle) error
}

type seriesKey struct {
	symbol string
	tf     Timeframe
}

// series holds one (symbol, timeframe) buffer. Writers serialize on
// mu; readers load the snapshot pointer and never block. Every append
// builds a fresh slice, so a loaded snapshot is immutable.
type series struct {
	mu   sync.Mutex
	snap atomic.Pointer[[]Candle]
	open atomic.Pointer[Candle]
}

func newSeries() *series {
	sr := &series{}
	empty := make([]Candle, 0)
	sr.snap.Store(&empty)
	return sr
}

// Store is the in-memory candle keeper: a fixed ring of completed bars
// plus the separately held in-progress bar, per (symbol, timeframe).
type Store struct {
	mu      sync.RWMutex
	series  map[seriesKey]*series
	archive Archive
	logger  zerolog.Logger
}

// NewStore builds a store. archive may be nil.
func NewStore(archive Archive, logger zerolog.Logger) *Store {
	return &Store{
		series:  make(map[seriesKey]*series),
		archive: archive,
		logger:  logger.With().Str("component", "candle_store").Logger(),
	}
}

// Archive exposes the attached persistence hook, nil when none.
func (s *Store) Archive() Archive {
	return s.archive
}

func (s *Store) seriesFor(symbol string, tf Timeframe) *series {
	key := seriesKey{symbol: symbol, tf: tf}

	s.mu.RLock()
	sr, ok := s.series[key]
	s.mu.RUnlock()
	if ok {
		return sr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok = s.series[key]; ok {
		return sr
	}
	sr = newSeries()
	s.series[key] = sr
	return sr
}

// Seed replaces the completed history with backfilled bars, keeping
// the newest ringSize of them. It does not fire the archive hook: seed
// data came from the broker or the archive itself.
func (s *Store) Seed(symbol string, tf Timeframe, candles []Candle) {
	bars := make([]Candle, len(candles))
	copy(bars, candles)
	sort.Slice(bars, func(i, j int) bool { return bars[i].OpenTime.Before(bars[j].OpenTime) })
	if len(bars) > ringSize {
		bars = bars[len(bars)-ringSize:]
	}

	sr := s.seriesFor(symbol, tf)
	sr.mu.Lock()
	sr.snap.Store(&bars)
	sr.mu.Unlock()

	s.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", tf.String()).
		Int("bars", len(bars)).
		Msg("Seeded candle series")
}

// Commit appends one completed bar to the ring, evicting the oldest
// past capacity, and hands it to the archive. Bars not strictly newer
// than the current tail are dropped: the ring is append-only.
func (s *Store) Commit(ctx context.Context, symbol string, tf Timeframe, c Candle) {
	sr := s.seriesFor(symbol, tf)

	sr.mu.Lock()
	cur := *sr.snap.Load()
	if n := len(cur); n > 0 && !c.OpenTime.After(cur[n-1].OpenTime) {
		sr.mu.Unlock()
		s.logger.Debug().
			Str("symbol", symbol).
			Str("timeframe", tf.String()).
			Time("open_time", c.OpenTime).
			Msg("Dropping out-of-order candle")
		return
	}
	next := appendRing(cur, c)
	sr.snap.Store(&next)
	sr.mu.Unlock()

	metrics.RecordCandleClosed(symbol, tf.String())

	if s.archive != nil {
		if err := s.archive.Append(ctx, symbol, tf, c); err != nil {
			s.logger.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("timeframe", tf.String()).
				Msg("Archive append failed")
			metrics.RecordError("archive_append", "candle_store")
		}
	}
}

func appendRing(cur []Candle, c Candle) []Candle {
	if len(cur) < ringSize {
		next := make([]Candle, len(cur)+1)
		copy(next, cur)
		next[len(cur)] = c
		return next
	}
	next := make([]Candle, ringSize)
	copy(next, cur[1:])
	next[ringSize-1] = c
	return next
}

// Snapshot returns the full completed history, oldest first. The slice
// is an immutable point-in-time view; callers must not modify it.
func (s *Store) Snapshot(symbol string, tf Timeframe) []Candle {
	return *s.seriesFor(symbol, tf).snap.Load()
}

// Last returns the newest n completed bars, oldest first. Shorter
// histories return what exists.
func (s *Store) Last(symbol string, tf Timeframe, n int) []Candle {
	snap := s.Snapshot(symbol, tf)
	if n >= len(snap) {
		return snap
	}
	return snap[len(snap)-n:]
}

// LastCandle returns the newest completed bar.
func (s *Store) LastCandle(symbol string, tf Timeframe) (Candle, bool) {
	snap := s.Snapshot(symbol, tf)
	if len(snap) == 0 {
		return Candle{}, false
	}
	return snap[len(snap)-1], true
}

// Len returns the completed-bar count.
func (s *Store) Len(symbol string, tf Timeframe) int {
	return len(s.Snapshot(symbol, tf))
}

// Open returns the in-progress bar.
func (s *Store) Open(symbol string, tf Timeframe) (Candle, bool) {
	c := s.seriesFor(symbol, tf).open.Load()
	if c == nil {
		return Candle{}, false
	}
	return *c, true
}

// SetOpen replaces the in-progress bar.
func (s *Store) SetOpen(symbol string, tf Timeframe, c Candle) {
	s.seriesFor(symbol, tf).open.Store(&c)
}

// Age reports how long ago the newest completed bar closed. The second
// return is false for an empty series.
func (s *Store) Age(symbol string, tf Timeframe, now time.Time) (time.Duration, bool) {
	last, ok := s.LastCandle(symbol, tf)
	if !ok {
		return 0, false
	}
	return now.Sub(last.CloseTime(tf)), true
}
