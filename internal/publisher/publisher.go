// Package publisher drives the periodic evaluation loop: it keeps the
// candle store fresh, runs every registered strategy plus the
// multi-timeframe analyzer, and publishes the results as immutable
// snapshots. New BUY and SELL states fan out to the alert manager, the
// message bus, the signal archive and the in-process entry channel.
package publisher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/fxfunk/internal/alerts"
	"github.com/ajitpratap0/fxfunk/internal/analysis"
	"github.com/ajitpratap0/fxfunk/internal/db"
	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/metrics"
	"github.com/ajitpratap0/fxfunk/internal/strategy"
	"github.com/ajitpratap0/fxfunk/internal/tfqe"
)

// A series is considered stale when its newest completed bar is older
// than this multiple of the bar duration; stale series are re-fetched
// from the kline endpoint before evaluation, and any confidence
// computed over still-stale data is capped.
const (
	staleAfterFactor   = 1.5
	staleConfidenceCap = 30
)

// entryBuffer sizes the in-process entry channel. The trader drains it
// far faster than signals arrive; overflow drops with a warning rather
// than stalling the publish loop.
const entryBuffer = 64

// VerdictSource is the multi-timeframe analyzer surface the publisher
// drives each tick.
type VerdictSource interface {
	Analyze(symbol string) (*analysis.Verdict, error)
}

// Refresher backfills one series from the broker kline endpoint.
type Refresher interface {
	Refresh(ctx context.Context, symbol string, tf market.Timeframe) error
}

// EventSink receives published signals, verdicts and snapshots, usually
// a NATS bus.
type EventSink interface {
	PublishSignal(ctx context.Context, source string, sig tfqe.Signal) error
	PublishVerdict(ctx context.Context, v *analysis.Verdict) error
	PublishSnapshot(ctx context.Context, snap interface{}) error
}

// SignalWriter persists entry signals for history queries and the
// archive metrics.
type SignalWriter interface {
	Insert(ctx context.Context, rec *db.SignalRecord) error
}

// Config tunes the two publish cadences.
type Config struct {
	Symbols         []string
	MultiTFInterval time.Duration // multi-timeframe pass, default 60s
	TFQEGrace       time.Duration // delay after each M15 close, default 2s
}

func (c Config) withDefaults() Config {
	if c.MultiTFInterval <= 0 {
		c.MultiTFInterval = time.Minute
	}
	if c.TFQEGrace <= 0 {
		c.TFQEGrace = 2 * time.Second
	}
	return c
}

// Publisher owns the snapshot pipeline. Readers access the latest
// snapshot lock-free through Snapshot; publishing itself is serialized
// so the two cadences never interleave.
type Publisher struct {
	cfg      Config
	store    *market.Store
	backfill Refresher
	analyzer VerdictSource
	registry *strategy.Registry
	logger   zerolog.Logger

	bus     EventSink
	archive SignalWriter

	pubMu   sync.Mutex
	snap    atomic.Pointer[Snapshot]
	entries chan tfqe.Signal
}

// New wires a publisher over the shared candle store. The bus and the
// signal archive are optional sinks attached separately.
func New(cfg Config, store *market.Store, backfill Refresher, analyzer VerdictSource, registry *strategy.Registry, logger zerolog.Logger) (*Publisher, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("publisher requires at least one symbol")
	}
	if store == nil {
		return nil, fmt.Errorf("candle store cannot be nil")
	}
	if backfill == nil {
		return nil, fmt.Errorf("backfiller cannot be nil")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("strategy registry cannot be nil")
	}
	return &Publisher{
		cfg:      cfg.withDefaults(),
		store:    store,
		backfill: backfill,
		analyzer: analyzer,
		registry: registry,
		logger:   logger.With().Str("component", "publisher").Logger(),
		entries:  make(chan tfqe.Signal, entryBuffer),
	}, nil
}

// AttachBus adds a message bus sink. Call before Run.
func (p *Publisher) AttachBus(b EventSink) { p.bus = b }

// AttachArchive adds a signal archive sink. Call before Run.
func (p *Publisher) AttachArchive(w SignalWriter) { p.archive = w }

// Snapshot returns the latest published snapshot, nil before the first
// publish completes.
func (p *Publisher) Snapshot() *Snapshot {
	return p.snap.Load()
}

// Entries exposes new BUY and SELL signals to an in-process consumer.
// The channel closes when Run returns.
func (p *Publisher) Entries() <-chan tfqe.Signal {
	return p.entries
}

// Run publishes an initial snapshot, then drives both cadences until
// ctx is cancelled: a multi-timeframe pass every MultiTFInterval and a
// trend-pullback pass after each M15 close plus TFQEGrace.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info().
		Strs("symbols", p.cfg.Symbols).
		Dur("multi_tf_interval", p.cfg.MultiTFInterval).
		Dur("tfqe_grace", p.cfg.TFQEGrace).
		Msg("publisher starting")

	p.publish(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.runMultiTF(ctx) })
	g.Go(func() error { return p.runTFQE(ctx) })
	err := g.Wait()
	close(p.entries)
	p.logger.Info().Msg("publisher stopped")
	return err
}

func (p *Publisher) runMultiTF(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.MultiTFInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.publish(ctx)
		}
	}
}

// runTFQE recomputes the wait each pass, so the wakeups stay aligned to
// the M15 grid regardless of how long a publish took.
func (p *Publisher) runTFQE(ctx context.Context) error {
	for {
		wait := timeToNextM15(time.Now(), p.cfg.TFQEGrace)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			p.publish(ctx)
		}
	}
}

// timeToNextM15 returns how long until the next M15 close plus grace.
// The grace lets the stream commit the boundary bar before evaluation.
func timeToNextM15(now time.Time, grace time.Duration) time.Duration {
	return market.TFM15.NextBoundary(now).Add(grace).Sub(now)
}

// publish builds the next snapshot off to the side, swaps it in
// atomically, and fans out the state transitions it introduced.
func (p *Publisher) publish(ctx context.Context) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	started := time.Now()
	prev := p.snap.Load()
	next := &Snapshot{
		ID:        uuid.New(),
		Symbols:   make(map[string]*SymbolView, len(p.cfg.Symbols)),
		CreatedAt: started.UTC(),
	}

	for _, symbol := range p.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		next.Symbols[symbol] = p.buildView(ctx, symbol)
	}

	p.snap.Store(next)
	p.fanOut(ctx, prev, next)

	p.logger.Debug().
		Str("snapshot_id", next.ID.String()).
		Int("symbols", len(next.Symbols)).
		Dur("took", time.Since(started)).
		Msg("snapshot published")
}

// buildView refreshes one symbol's series, ticks every strategy scoped
// to it, and runs the analyzer. Confidence over stale data is capped.
func (p *Publisher) buildView(ctx context.Context, symbol string) *SymbolView {
	now := time.Now()
	staleFrames := p.ensureFresh(ctx, symbol, now)

	view := &SymbolView{
		Symbol:        symbol,
		Signals:       make(map[string]tfqe.Signal),
		DataFreshness: FreshnessLive,
		StaleFrames:   staleFrames,
	}
	if len(staleFrames) > 0 {
		view.DataFreshness = FreshnessStale
	}
	if age, ok := p.store.Age(symbol, market.TFM1, now); ok {
		metrics.SetSnapshotAge(symbol, age.Seconds())
	}

	for _, e := range p.registry.Entries() {
		if !covers(e.Symbols, symbol) {
			continue
		}
		name := e.Strategy.Name()
		tickStart := time.Now()
		sig, err := e.Strategy.Tick(ctx, symbol)
		metrics.RecordAnalysis(name, time.Since(tickStart).Seconds()*1000)
		if err != nil {
			p.logger.Debug().Err(err).
				Str("symbol", symbol).
				Str("strategy", name).
				Msg("strategy tick failed")
			metrics.RecordError("strategy_tick", "publisher")
			continue
		}
		if view.DataFreshness == FreshnessStale && sig.Confidence > staleConfidenceCap {
			sig.Confidence = staleConfidenceCap
		}
		view.Signals[name] = sig
		metrics.RecordSignal(name, symbol, string(sig.State), float64(sig.Confidence))
	}

	analysisStart := time.Now()
	verdict, err := p.analyzer.Analyze(symbol)
	metrics.RecordAnalysis("multi_timeframe", time.Since(analysisStart).Seconds()*1000)
	if err != nil {
		p.logger.Debug().Err(err).Str("symbol", symbol).Msg("analysis failed")
		metrics.RecordError("analysis", "publisher")
		return view
	}
	if view.DataFreshness == FreshnessStale && verdict.Confidence > staleConfidenceCap {
		verdict.Confidence = staleConfidenceCap
	}
	view.Verdict = verdict
	return view
}

// ensureFresh backfills every series whose newest bar is older than
// staleAfterFactor times its duration, and reports the frames that are
// still stale afterwards.
func (p *Publisher) ensureFresh(ctx context.Context, symbol string, now time.Time) []market.Timeframe {
	var stale []market.Timeframe
	for _, tf := range market.AllTimeframes() {
		limit := staleLimit(tf)
		if age, ok := p.store.Age(symbol, tf, now); ok && age <= limit {
			continue
		}
		if err := p.backfill.Refresh(ctx, symbol, tf); err != nil {
			p.logger.Warn().Err(err).
				Str("symbol", symbol).
				Str("timeframe", tf.String()).
				Msg("kline refresh failed")
			metrics.RecordError("backfill", "publisher")
		}
		if age, ok := p.store.Age(symbol, tf, now); !ok || age > limit {
			stale = append(stale, tf)
		}
	}
	return stale
}

func staleLimit(tf market.Timeframe) time.Duration {
	return time.Duration(staleAfterFactor * float64(tf.Duration()))
}

// fanOut emits every BUY or SELL whose state differs from the previous
// snapshot, then publishes the verdicts and the snapshot itself on the
// bus. A nil previous snapshot means startup, where active entry states
// emit once.
func (p *Publisher) fanOut(ctx context.Context, prev, next *Snapshot) {
	for _, symbol := range p.cfg.Symbols {
		view := next.Symbols[symbol]
		if view == nil {
			continue
		}
		for name, sig := range view.Signals {
			if !sig.State.Entry() {
				continue
			}
			if prev.signal(symbol, name) == sig.State {
				continue
			}
			p.emit(ctx, name, sig)
		}
		if p.bus != nil && view.Verdict != nil {
			if err := p.bus.PublishVerdict(ctx, view.Verdict); err != nil {
				p.logger.Warn().Err(err).Str("symbol", symbol).Msg("verdict publish failed")
			}
		}
	}
	if p.bus != nil {
		if err := p.bus.PublishSnapshot(ctx, next); err != nil {
			p.logger.Warn().Err(err).Msg("snapshot publish failed")
		}
	}
}

// emit fans one new entry signal out to every sink.
func (p *Publisher) emit(ctx context.Context, source string, sig tfqe.Signal) {
	p.logger.Info().
		Str("strategy", source).
		Str("symbol", sig.Symbol).
		Str("signal", string(sig.State)).
		Int("confidence", sig.Confidence).
		Float64("entry", sig.Entry).
		Float64("stop_loss", sig.StopLoss).
		Msg("new entry signal")

	alerts.AlertEntrySignal(ctx, sig)

	if p.bus != nil {
		if err := p.bus.PublishSignal(ctx, source, sig); err != nil {
			p.logger.Warn().Err(err).Str("symbol", sig.Symbol).Msg("signal publish failed")
		}
	}
	if p.archive != nil {
		if err := p.archive.Insert(ctx, signalRecord(source, sig)); err != nil {
			p.logger.Warn().Err(err).Str("symbol", sig.Symbol).Msg("signal archive insert failed")
			metrics.RecordError("signal_archive", "publisher")
		}
	}

	select {
	case p.entries <- sig:
	default:
		p.logger.Warn().Str("symbol", sig.Symbol).Msg("entry consumer lagging, signal dropped")
		metrics.RecordError("entry_queue_full", "publisher")
	}
}

func signalRecord(source string, sig tfqe.Signal) *db.SignalRecord {
	return &db.SignalRecord{
		Symbol:      sig.Symbol,
		Source:      source,
		State:       string(sig.State),
		Confidence:  sig.Confidence,
		Entry:       sig.Entry,
		StopLoss:    sig.StopLoss,
		TakeProfit1: sig.TakeProfit1,
		TakeProfit2: sig.TakeProfit2,
		RiskPips:    sig.RiskPips,
		RewardPips:  sig.RewardPips,
		Reason:      sig.Reason,
		Detail: map[string]interface{}{
			"h1_trend":  string(sig.H1Trend),
			"h1_adx":    sig.H1ADX,
			"m15_price": sig.M15Price,
			"m15_ema20": sig.M15EMA20,
			"m15_atr":   sig.M15ATR,
			"distance":  sig.Distance,
		},
		CreatedAt: sig.At,
	}
}

func covers(scope []string, symbol string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if s == symbol {
			return true
		}
	}
	return false
}
