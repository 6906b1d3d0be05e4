// Package tfqe is the trend-following quick-entry state machine: H1
// supplies the trend bias, M15 supplies the pullback trigger, and one
// signal per symbol comes out of every evaluation.
package tfqe

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/fxfunk/internal/analysis"
	"github.com/ajitpratap0/fxfunk/internal/indicators"
	"github.com/ajitpratap0/fxfunk/internal/market"
)

// State tags the outcome of one evaluation.
type State string

const (
	StateBuy             State = "BUY"
	StateSell            State = "SELL"
	StateWaitingPullback State = "WAITING_PULLBACK"
	StateWaitingRally    State = "WAITING_RALLY"
	StateNoTrend         State = "NO_TREND"
	StateOutOfSession    State = "OUT_OF_SESSION"
)

// Entry reports whether the state is an actionable entry.
func (s State) Entry() bool { return s == StateBuy || s == StateSell }

// Management is the post-entry contract published with every entry
// signal. The gateway does not execute it in read-only mode; with
// trading enabled the order layer realises it as an IFDOCO bracket.
type Management struct {
	TP1  string `json:"tp1"`
	Exit string `json:"exit"`
}

func managementContract() *Management {
	return &Management{
		TP1:  "close half and move the stop to break-even",
		Exit: "exit the remainder when M15 closes across EMA20",
	}
}

// Signal is one evaluation result. Order and context fields are
// populated per state, entry arithmetic only on BUY/SELL.
type Signal struct {
	Symbol      string         `json:"symbol"`
	State       State          `json:"signal"`
	Reason      string         `json:"reason"`
	Entry       float64        `json:"entry,omitempty"`
	StopLoss    float64        `json:"stop_loss,omitempty"`
	TakeProfit1 float64        `json:"tp1,omitempty"`
	TakeProfit2 float64        `json:"tp2,omitempty"`
	RiskPips    float64        `json:"risk_pips,omitempty"`
	RewardPips  float64        `json:"reward_pips,omitempty"`
	Confidence  int            `json:"confidence,omitempty"`
	H1Trend     analysis.Trend `json:"h1_trend,omitempty"`
	H1ADX       float64        `json:"h1_adx,omitempty"`
	M15Price    float64        `json:"m15_price,omitempty"`
	M15EMA20    float64        `json:"m15_ema20,omitempty"`
	M15ATR      float64        `json:"m15_atr,omitempty"`
	Distance    float64        `json:"distance,omitempty"`
	Management  *Management    `json:"management,omitempty"`
	At          time.Time      `json:"at"`
}

// Config tunes the session window and the ATR multiples. The zero
// value means defaults.
type Config struct {
	SessionStart time.Duration // offset from JST midnight
	SessionEnd   time.Duration
	StopATRMult  float64
	TP1ATRMult   float64
	TP2ATRMult   float64
	HistorySize  int
}

func (c Config) withDefaults() Config {
	if c.SessionStart == 0 && c.SessionEnd == 0 {
		c.SessionStart = 16 * time.Hour
		c.SessionEnd = 24 * time.Hour
	}
	if c.StopATRMult == 0 {
		c.StopATRMult = 1.5
	}
	if c.TP1ATRMult == 0 {
		c.TP1ATRMult = 1.0
	}
	if c.TP2ATRMult == 0 {
		c.TP2ATRMult = 2.0
	}
	if c.HistorySize == 0 {
		c.HistorySize = 96 // one day of M15 ticks
	}
	return c
}

const (
	emaFastPeriod = 20
	emaSlowPeriod = 50
	adxPeriod     = 14
	atrPeriod     = 14

	adxFloor      = 20.0
	pullbackNear  = 0.2 // ATRs beyond the EMA still counting as "at" it
	pullbackDeep  = 0.5 // ATRs through the EMA that invalidate the trend
	maxConfidence = 95

	trendLookback = 120
)

// Bar minimums per timeframe: the slow EMA on H1, the fast EMA (which
// outlasts the ATR warm-up) on M15.
const (
	minH1Bars  = emaSlowPeriod
	minM15Bars = emaFastPeriod
)

var jst = time.FixedZone("JST", 9*60*60)

// Engine evaluates the state machine against store snapshots and keeps
// a bounded signal history per symbol.
type Engine struct {
	store  *market.Store
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	latest  map[string]Signal
	history map[string][]Signal
}

func NewEngine(store *market.Store, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		cfg:     cfg.withDefaults(),
		logger:  logger.With().Str("component", "tfqe").Logger(),
		now:     time.Now,
		latest:  make(map[string]Signal),
		history: make(map[string][]Signal),
	}
}

// Evaluate runs the gates for one symbol and records the outcome.
func (e *Engine) Evaluate(symbol string) (Signal, error) {
	now := e.now()
	sig, err := e.evaluate(symbol, now)
	if err != nil {
		return Signal{}, err
	}
	sig.Symbol = symbol
	sig.At = now.UTC()
	e.record(sig)

	e.logger.Debug().
		Str("symbol", symbol).
		Str("state", string(sig.State)).
		Str("reason", sig.Reason).
		Msg("Evaluated TFQE")
	return sig, nil
}

// Latest returns the most recently recorded signal for a symbol.
func (e *Engine) Latest(symbol string) (Signal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig, ok := e.latest[symbol]
	return sig, ok
}

// History returns recorded signals oldest first, at most HistorySize.
func (e *Engine) History(symbol string) []Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.history[symbol]
	out := make([]Signal, len(h))
	copy(out, h)
	return out
}

func (e *Engine) record(sig Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.latest[sig.Symbol] = sig
	h := append(e.history[sig.Symbol], sig)
	if len(h) > e.cfg.HistorySize {
		h = h[len(h)-e.cfg.HistorySize:]
	}
	e.history[sig.Symbol] = h
}

func (e *Engine) evaluate(symbol string, now time.Time) (Signal, error) {
	if !inSession(now, e.cfg.SessionStart, e.cfg.SessionEnd) {
		return Signal{
			State:  StateOutOfSession,
			Reason: "outside the JST trading window",
		}, nil
	}

	h1 := e.store.Last(symbol, market.TFH1, trendLookback)
	if len(h1) < minH1Bars {
		return Signal{}, fmt.Errorf("tfqe %s: %w (H1 has %d bars, need %d)",
			symbol, analysis.ErrInsufficientHistory, len(h1), minH1Bars)
	}
	last := len(h1) - 1
	h1Fast := indicators.EMA(h1, emaFastPeriod)[last]
	h1Slow := indicators.EMA(h1, emaSlowPeriod)[last]
	h1ADX := indicators.ADX(h1, adxPeriod)[last]
	if math.IsNaN(h1Fast) || math.IsNaN(h1Slow) || math.IsNaN(h1ADX) {
		return Signal{}, fmt.Errorf("tfqe %s: %w (H1 warm-up not complete)",
			symbol, analysis.ErrInsufficientHistory)
	}

	var dir analysis.Trend
	switch {
	case h1Fast > h1Slow && h1ADX >= adxFloor:
		dir = analysis.TrendUp
	case h1Fast < h1Slow && h1ADX >= adxFloor:
		dir = analysis.TrendDown
	default:
		return Signal{
			State:  StateNoTrend,
			Reason: fmt.Sprintf("no H1 trend (ADX %.1f)", h1ADX),
			H1ADX:  h1ADX,
		}, nil
	}

	m15 := e.store.Last(symbol, market.TFM15, trendLookback)
	if len(m15) < minM15Bars {
		return Signal{}, fmt.Errorf("tfqe %s: %w (M15 has %d bars, need %d)",
			symbol, analysis.ErrInsufficientHistory, len(m15), minM15Bars)
	}
	bar := m15[len(m15)-1]
	ema20 := indicators.EMA(m15, emaFastPeriod)[len(m15)-1]
	atr := indicators.ATR(m15, atrPeriod)[len(m15)-1]
	if math.IsNaN(ema20) || math.IsNaN(atr) {
		return Signal{}, fmt.Errorf("tfqe %s: %w (M15 warm-up not complete)",
			symbol, analysis.ErrInsufficientHistory)
	}
	if atr <= 0 {
		return Signal{
			State:   StateNoTrend,
			Reason:  "flat tape, no measurable range",
			H1Trend: dir,
			H1ADX:   h1ADX,
		}, nil
	}

	price := bar.Close
	distance := (price - ema20) / atr
	waiting := waitingSignal(dir, price, ema20, distance, h1ADX)

	// Proximity gate: the pull must reach the EMA without slicing
	// clean through it.
	if dir == analysis.TrendUp {
		if distance > pullbackNear {
			return waiting, nil
		}
		if distance < -pullbackDeep {
			return Signal{
				State:    StateNoTrend,
				Reason:   "price broke below the M15 EMA20, trend failing",
				H1Trend:  dir,
				H1ADX:    h1ADX,
				M15Price: price,
				M15EMA20: ema20,
				Distance: distance,
			}, nil
		}
		// Trigger: a bullish bar closing back above the EMA.
		if !(bar.Close > bar.Open && bar.Close > ema20) {
			return waiting, nil
		}
	} else {
		if distance < -pullbackNear {
			return waiting, nil
		}
		if distance > pullbackDeep {
			return Signal{
				State:    StateNoTrend,
				Reason:   "price broke above the M15 EMA20, trend failing",
				H1Trend:  dir,
				H1ADX:    h1ADX,
				M15Price: price,
				M15EMA20: ema20,
				Distance: distance,
			}, nil
		}
		if !(bar.Close < bar.Open && bar.Close < ema20) {
			return waiting, nil
		}
	}

	sig := buildOrder(e.cfg, symbol, dir, price, atr, h1ADX, distance)
	sig.M15EMA20 = ema20
	return sig, nil
}

// waitingSignal is the pullback/rally wait state with the context a
// consumer needs to judge how far away the entry is.
func waitingSignal(dir analysis.Trend, price, ema20, distance, adx float64) Signal {
	state := StateWaitingPullback
	reason := "H1 up, waiting for an M15 pullback to EMA20"
	if dir == analysis.TrendDown {
		state = StateWaitingRally
		reason = "H1 down, waiting for an M15 rally to EMA20"
	}
	return Signal{
		State:    state,
		Reason:   reason,
		H1Trend:  dir,
		H1ADX:    adx,
		M15Price: price,
		M15EMA20: ema20,
		Distance: distance,
	}
}

// buildOrder does the entry arithmetic: the stop sits StopATRMult ATRs
// behind the close, targets 1 and 2 ATR-multiples ahead, pips per the
// pair's pip size. Confidence rewards trend strength and tightness of
// the pullback, never exceeding 95.
func buildOrder(cfg Config, symbol string, dir analysis.Trend, entry, atr, adx, distance float64) Signal {
	cfg = cfg.withDefaults()
	pip := market.PipSize(symbol)

	side := 1.0
	state := StateBuy
	reason := "H1 up, M15 pullback held and closed back above EMA20"
	if dir == analysis.TrendDown {
		side = -1.0
		state = StateSell
		reason = "H1 down, M15 rally faded and closed back below EMA20"
	}

	stop := entry - side*cfg.StopATRMult*atr
	tp1 := entry + side*cfg.TP1ATRMult*atr
	tp2 := entry + side*cfg.TP2ATRMult*atr

	confidence := 50 +
		clip(adx-adxFloor, 0, 30) +
		clip(20*(1-math.Abs(distance)/pullbackDeep), 0, 20)

	return Signal{
		State:       state,
		Reason:      reason,
		Entry:       entry,
		StopLoss:    stop,
		TakeProfit1: tp1,
		TakeProfit2: tp2,
		RiskPips:    side * (entry - stop) / pip,
		RewardPips:  side * (tp1 - entry) / pip,
		Confidence:  min(int(math.Round(confidence)), maxConfidence),
		H1Trend:     dir,
		H1ADX:       adx,
		M15Price:    entry,
		M15ATR:      atr,
		Distance:    distance,
		Management:  managementContract(),
	}
}

// inSession checks the JST wall clock against the window, start
// inclusive, end exclusive.
func inSession(t time.Time, start, end time.Duration) bool {
	local := t.In(jst)
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	return offset >= start && offset < end
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
