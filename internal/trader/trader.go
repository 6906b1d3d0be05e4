// Package trader realizes entry signals as broker orders when trading
// is enabled. Each BUY or SELL becomes two if-done OCO brackets: half
// the size exits at TP1 and half at TP2, both stopped at the signal
// stop. A TP1 fill moves the runner's stop to break-even, and an M15
// close across EMA20 against the trade closes whatever remains.
package trader

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/fxfunk/internal/alerts"
	"github.com/ajitpratap0/fxfunk/internal/gmo"
	"github.com/ajitpratap0/fxfunk/internal/indicators"
	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/metrics"
	"github.com/ajitpratap0/fxfunk/internal/tfqe"
)

const (
	// trailEMAPeriod is the M15 EMA the exit rule closes against.
	trailEMAPeriod = 20

	// trailGrace delays each M15 trail check past the bar boundary so
	// the stream has committed the closing bar first.
	trailGrace = 3 * time.Second
)

// Broker is the slice of the gateway the trader drives.
type Broker interface {
	Status(ctx context.Context) (gmo.MarketStatus, error)
	IFOOrder(ctx context.Context, req gmo.IFOOrderRequest) ([]gmo.Order, error)
	ChangeOrder(ctx context.Context, req gmo.ChangeOrderRequest) error
	CancelOrders(ctx context.Context, rootOrderIDs []int64) (*gmo.CancelResult, error)
	CloseOrder(ctx context.Context, req gmo.CloseOrderRequest) ([]gmo.Order, error)
}

// Config sizes the trades.
type Config struct {
	// Size is the total units opened per entry, split across the two
	// brackets.
	Size decimal.Decimal
}

// trade tracks one live bracket pair from submission to retirement.
type trade struct {
	symbol string
	side   gmo.Side

	entry decimal.Decimal // amended to the actual fill price
	stop  decimal.Decimal
	tp1   decimal.Decimal
	tp2   decimal.Decimal

	bankerSize decimal.Decimal
	runnerSize decimal.Decimal

	bankerRoot int64
	runnerRoot int64
	bankerTP   int64
	bankerStop int64
	runnerTP   int64
	runnerStop int64

	entryFilled bool
	movedToBE   bool
	bankerDone  bool
	runnerDone  bool
	openedAt    time.Time
}

// remaining is the size still held, for the trail close.
func (tr *trade) remaining() decimal.Decimal {
	if tr.bankerDone {
		return tr.runnerSize
	}
	return tr.bankerSize.Add(tr.runnerSize)
}

// Trader consumes the publisher's entry channel and the private
// execution stream, holding at most one open trade per symbol.
type Trader struct {
	cfg     Config
	broker  Broker
	store   *market.Store
	entries <-chan tfqe.Signal
	execs   <-chan gmo.ExecutionEvent
	logger  zerolog.Logger

	mu     sync.Mutex
	trades map[string]*trade
}

// New wires a trader. The entry channel comes from the publisher and
// the execution channel from the stream dispatcher.
func New(cfg Config, broker Broker, store *market.Store, entries <-chan tfqe.Signal, execs <-chan gmo.ExecutionEvent, logger zerolog.Logger) (*Trader, error) {
	if !cfg.Size.IsPositive() {
		return nil, fmt.Errorf("trade size must be positive, got %s", cfg.Size)
	}
	if broker == nil {
		return nil, fmt.Errorf("broker cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("candle store cannot be nil")
	}
	if entries == nil {
		return nil, fmt.Errorf("entry channel cannot be nil")
	}
	if execs == nil {
		return nil, fmt.Errorf("execution channel cannot be nil")
	}
	return &Trader{
		cfg:     cfg,
		broker:  broker,
		store:   store,
		entries: entries,
		execs:   execs,
		logger:  logger.With().Str("component", "trader").Logger(),
		trades:  make(map[string]*trade),
	}, nil
}

// OpenTrades returns the number of trades currently managed.
func (t *Trader) OpenTrades() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.trades)
}

// Run processes entries, fills and trail checks until ctx is cancelled
// or the entry channel closes.
func (t *Trader) Run(ctx context.Context) error {
	t.logger.Info().Str("size", t.cfg.Size.String()).Msg("trader starting")
	for {
		trail := time.After(nextTrailCheck(time.Now()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-t.entries:
			if !ok {
				t.logger.Info().Msg("entry channel closed, trader stopping")
				return nil
			}
			t.handleEntry(ctx, sig)
		case ev := <-t.execs:
			t.handleExecution(ctx, ev)
		case <-trail:
			t.checkTrailExits(ctx)
		}
	}
}

// nextTrailCheck returns how long until the next M15 close plus grace.
func nextTrailCheck(now time.Time) time.Duration {
	return market.TFM15.NextBoundary(now).Add(trailGrace).Sub(now)
}

// handleEntry opens the bracket pair for a new BUY or SELL. A symbol
// with a live trade is skipped; when the signal flipped direction the
// trail rule closes the old trade on its own.
func (t *Trader) handleEntry(ctx context.Context, sig tfqe.Signal) {
	if !sig.State.Entry() {
		return
	}

	t.mu.Lock()
	_, open := t.trades[sig.Symbol]
	t.mu.Unlock()
	if open {
		t.logger.Info().Str("symbol", sig.Symbol).Msg("trade already open, skipping entry")
		return
	}

	status, err := t.broker.Status(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("market status check failed, skipping entry")
		metrics.RecordError("status_check", "trader")
		return
	}
	metrics.SetMarketStatus(string(status))
	if status != gmo.MarketOpen {
		t.logger.Warn().
			Str("symbol", sig.Symbol).
			Str("status", string(status)).
			Msg("market not open, skipping entry")
		return
	}

	tr, err := t.submitBrackets(ctx, sig)
	if err != nil {
		side := sideOf(sig.State)
		t.logger.Error().Err(err).Str("symbol", sig.Symbol).Msg("bracket submission failed")
		metrics.RecordOrderSubmitted(sig.Symbol, string(side), "error")
		alerts.AlertOrderFailed(ctx, sig.Symbol, string(side), t.cfg.Size, err)
		return
	}

	t.mu.Lock()
	t.trades[sig.Symbol] = tr
	metrics.SetOpenPositions(len(t.trades))
	t.mu.Unlock()

	t.logger.Info().
		Str("symbol", tr.symbol).
		Str("side", string(tr.side)).
		Str("entry", tr.entry.String()).
		Str("stop", tr.stop.String()).
		Str("tp1", tr.tp1.String()).
		Str("tp2", tr.tp2.String()).
		Int64("banker_root", tr.bankerRoot).
		Int64("runner_root", tr.runnerRoot).
		Msg("brackets submitted")
}

// submitBrackets places the two IFO composites. The entry legs are
// limits at the signal price: the pullback signal fires with price at
// the level, so they fill immediately while bounding slippage. A
// runner rejection cancels the already-accepted banker so a lone half
// never runs unmanaged.
func (t *Trader) submitBrackets(ctx context.Context, sig tfqe.Signal) (*trade, error) {
	info, ok := market.LookupSymbol(sig.Symbol)
	if !ok {
		return nil, fmt.Errorf("unsupported symbol %s", sig.Symbol)
	}
	side := sideOf(sig.State)

	entry := priceAt(sig.Entry, info.Precision)
	stop := priceAt(sig.StopLoss, info.Precision)
	tp1 := priceAt(sig.TakeProfit1, info.Precision)
	tp2 := priceAt(sig.TakeProfit2, info.Precision)

	banker := t.cfg.Size.Div(decimal.NewFromInt(2)).Floor()
	if !banker.IsPositive() {
		return nil, fmt.Errorf("size %s too small to split", t.cfg.Size)
	}
	runner := t.cfg.Size.Sub(banker)

	tr := &trade{
		symbol:     sig.Symbol,
		side:       side,
		entry:      entry,
		stop:       stop,
		tp1:        tp1,
		tp2:        tp2,
		bankerSize: banker,
		runnerSize: runner,
		openedAt:   time.Now().UTC(),
	}

	started := time.Now()
	bankerOrders, err := t.broker.IFOOrder(ctx, gmo.IFOOrderRequest{
		Symbol:             sig.Symbol,
		ClientOrderID:      gmo.NewClientOrderID(),
		FirstSide:          side,
		FirstExecutionType: gmo.ExecutionLimit,
		FirstSize:          banker,
		FirstPrice:         &entry,
		SecondSize:         banker,
		SecondLimitPrice:   tp1,
		SecondStopPrice:    stop,
	})
	if err != nil {
		return nil, fmt.Errorf("banker bracket: %w", err)
	}
	metrics.RecordOrderSubmitted(sig.Symbol, string(side), "ok")
	tr.bankerRoot = rootOf(bankerOrders)
	tr.bankerTP, tr.bankerStop = settleLegs(bankerOrders)

	runnerOrders, err := t.broker.IFOOrder(ctx, gmo.IFOOrderRequest{
		Symbol:             sig.Symbol,
		ClientOrderID:      gmo.NewClientOrderID(),
		FirstSide:          side,
		FirstExecutionType: gmo.ExecutionLimit,
		FirstSize:          runner,
		FirstPrice:         &entry,
		SecondSize:         runner,
		SecondLimitPrice:   tp2,
		SecondStopPrice:    stop,
	})
	if err != nil {
		if tr.bankerRoot != 0 {
			if _, cerr := t.broker.CancelOrders(ctx, []int64{tr.bankerRoot}); cerr != nil {
				t.logger.Error().Err(cerr).
					Int64("banker_root", tr.bankerRoot).
					Msg("failed to cancel banker after runner rejection")
			}
		}
		return nil, fmt.Errorf("runner bracket: %w", err)
	}
	metrics.RecordOrderSubmitted(sig.Symbol, string(side), "ok")
	metrics.RecordOrderExecution(time.Since(started).Seconds() * 1000)
	tr.runnerRoot = rootOf(runnerOrders)
	tr.runnerTP, tr.runnerStop = settleLegs(runnerOrders)

	return tr, nil
}

// handleExecution advances a trade's lifecycle from the fill stream: an
// entry fill records the real basis, a TP1 fill moves the runner stop
// to break-even, and a finished pair retires the trade.
func (t *Trader) handleExecution(ctx context.Context, ev gmo.ExecutionEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr := t.trades[ev.Symbol]
	if tr == nil {
		return
	}

	if ev.SettleType == gmo.SettleOpen && ev.Side == tr.side {
		if price, err := ev.Price.Decimal(); err == nil && price.IsPositive() {
			tr.entry = price
		}
		tr.entryFilled = true
		t.logger.Info().
			Str("symbol", tr.symbol).
			Str("price", tr.entry.String()).
			Msg("entry filled")
		return
	}
	if ev.SettleType != gmo.SettleClose || ev.Side != tr.side.Opposite() {
		return
	}

	switch ev.OrderID {
	case tr.bankerTP:
		tr.bankerDone = true
		t.moveRunnerToBreakEven(ctx, tr)
	case tr.bankerStop:
		tr.bankerDone = true
	case tr.runnerTP, tr.runnerStop:
		tr.runnerDone = true
	default:
		return
	}

	if tr.bankerDone && tr.runnerDone {
		delete(t.trades, tr.symbol)
		metrics.SetOpenPositions(len(t.trades))
		t.logger.Info().Str("symbol", tr.symbol).Msg("trade closed")
	}
}

// moveRunnerToBreakEven amends the runner's stop to the entry fill
// price once TP1 banked the first half. Called with the lock held.
func (t *Trader) moveRunnerToBreakEven(ctx context.Context, tr *trade) {
	if tr.movedToBE || tr.runnerStop == 0 {
		return
	}
	if err := t.broker.ChangeOrder(ctx, gmo.ChangeOrderRequest{
		OrderID: tr.runnerStop,
		Price:   tr.entry,
	}); err != nil {
		t.logger.Error().Err(err).
			Str("symbol", tr.symbol).
			Int64("stop_order", tr.runnerStop).
			Msg("break-even amend failed")
		metrics.RecordError("change_order", "trader")
		return
	}
	tr.movedToBE = true
	t.logger.Info().
		Str("symbol", tr.symbol).
		Str("stop", tr.entry.String()).
		Msg("runner stop moved to break-even")
}

// checkTrailExits closes the remainder of any trade whose latest M15
// bar closed across EMA20 against the direction.
func (t *Trader) checkTrailExits(ctx context.Context) {
	t.mu.Lock()
	open := make([]*trade, 0, len(t.trades))
	for _, tr := range t.trades {
		open = append(open, tr)
	}
	t.mu.Unlock()

	for _, tr := range open {
		bars := t.store.Last(tr.symbol, market.TFM15, trailEMAPeriod*4)
		if len(bars) < trailEMAPeriod {
			continue
		}
		ema := indicators.EMA(bars, trailEMAPeriod)
		ref := ema[len(ema)-1]
		if math.IsNaN(ref) {
			continue
		}
		last := bars[len(bars)-1].Close
		crossed := (tr.side == gmo.SideBuy && last < ref) ||
			(tr.side == gmo.SideSell && last > ref)
		if !crossed {
			continue
		}
		t.logger.Info().
			Str("symbol", tr.symbol).
			Str("side", string(tr.side)).
			Float64("close", last).
			Float64("ema20", ref).
			Msg("M15 closed across EMA20, exiting remainder")
		t.exitTrade(ctx, tr)
	}
}

// exitTrade retires the working bracket legs and settles what is held.
// Cancelling first releases the size the settlement legs reserve, so
// the market close is not rejected.
func (t *Trader) exitTrade(ctx context.Context, tr *trade) {
	var roots []int64
	if !tr.bankerDone && tr.bankerRoot != 0 {
		roots = append(roots, tr.bankerRoot)
	}
	if !tr.runnerDone && tr.runnerRoot != 0 {
		roots = append(roots, tr.runnerRoot)
	}
	if len(roots) > 0 {
		if _, err := t.broker.CancelOrders(ctx, roots); err != nil {
			t.logger.Error().Err(err).
				Str("symbol", tr.symbol).
				Msg("bracket cancel failed, keeping trade for retry")
			metrics.RecordError("cancel_orders", "trader")
			return
		}
	}

	if tr.entryFilled {
		size := tr.remaining()
		closeSide := tr.side.Opposite()
		if _, err := t.broker.CloseOrder(ctx, gmo.CloseOrderRequest{
			Symbol:        tr.symbol,
			Side:          closeSide,
			ExecutionType: gmo.ExecutionMarket,
			ClientOrderID: gmo.NewClientOrderID(),
			Size:          &size,
		}); err != nil {
			t.logger.Error().Err(err).
				Str("symbol", tr.symbol).
				Msg("trail close failed, keeping trade for retry")
			metrics.RecordOrderSubmitted(tr.symbol, string(closeSide), "error")
			alerts.AlertOrderFailed(ctx, tr.symbol, string(closeSide), size, err)
			return
		}
		metrics.RecordOrderSubmitted(tr.symbol, string(closeSide), "ok")
	}

	t.mu.Lock()
	delete(t.trades, tr.symbol)
	metrics.SetOpenPositions(len(t.trades))
	t.mu.Unlock()
	t.logger.Info().Str("symbol", tr.symbol).Msg("trade retired")
}

func sideOf(state tfqe.State) gmo.Side {
	if state == tfqe.StateSell {
		return gmo.SideSell
	}
	return gmo.SideBuy
}

func priceAt(px float64, precision int) decimal.Decimal {
	return decimal.NewFromFloat(px).Round(int32(precision))
}

func rootOf(orders []gmo.Order) int64 {
	if len(orders) == 0 {
		return 0
	}
	return orders[0].RootOrderID
}

// settleLegs picks the take-profit and stop order ids out of an IFO
// submission response.
func settleLegs(orders []gmo.Order) (tp, stop int64) {
	for _, o := range orders {
		if o.SettleType != gmo.SettleClose {
			continue
		}
		switch o.ExecutionType {
		case gmo.ExecutionLimit:
			tp = o.OrderID
		case gmo.ExecutionStop:
			stop = o.OrderID
		}
	}
	return tp, stop
}
