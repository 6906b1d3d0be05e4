package publisher

import (
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/fxfunk/internal/analysis"
	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/tfqe"
)

// Freshness labels a symbol view by the state of the series behind it.
type Freshness string

const (
	FreshnessLive  Freshness = "LIVE"
	FreshnessStale Freshness = "STALE"
)

// SymbolView is one symbol's slice of a snapshot: the signal each
// registered strategy last produced plus the multi-timeframe verdict.
// A STALE view means at least one series could not be brought current
// even after a kline backfill, and every confidence in it is capped.
type SymbolView struct {
	Symbol        string                 `json:"symbol"`
	Signals       map[string]tfqe.Signal `json:"signals"`
	Verdict       *analysis.Verdict      `json:"verdict,omitempty"`
	DataFreshness Freshness              `json:"data_freshness"`
	StaleFrames   []market.Timeframe     `json:"stale_frames,omitempty"`
}

// Snapshot is one immutable published view over all configured symbols.
// The publisher builds the next snapshot off to the side and swaps a
// pointer, so readers always observe a fully previous or fully next
// view and never a torn one. Published values are never mutated.
type Snapshot struct {
	ID        uuid.UUID              `json:"id"`
	Symbols   map[string]*SymbolView `json:"symbols"`
	CreatedAt time.Time              `json:"created_at"`
}

// View returns the view for one symbol.
func (s *Snapshot) View(symbol string) (*SymbolView, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.Symbols[symbol]
	return v, ok
}

// signal returns the state a strategy reported for a symbol, or "" when
// the snapshot holds no signal for that pair.
func (s *Snapshot) signal(symbol, source string) tfqe.State {
	v, ok := s.View(symbol)
	if !ok {
		return ""
	}
	sig, ok := v.Signals[source]
	if !ok {
		return ""
	}
	return sig.State
}
