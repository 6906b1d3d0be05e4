package market

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/fxfunk/internal/gmo"
	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

// maxGapFill bounds how many missed boundaries get a synthetic flat
// bar. Anything longer is a market-closed break: the series jumps to
// the next live bar instead of inventing a weekend of flat candles.
const maxGapFill = 16

// Aggregator folds live quotes into candles for one symbol across all
// timeframes. Bars are built on the bid so they share a price basis
// with broker klines backfilled at priceType BID.
type Aggregator struct {
	store  *Store
	board  *QuoteBoard
	symbol string
	tfs    []Timeframe
	logger zerolog.Logger
}

// NewAggregator builds an aggregator. board may be nil when no latest
// quote view is wanted.
func NewAggregator(store *Store, board *QuoteBoard, symbol string, tfs []Timeframe, logger zerolog.Logger) *Aggregator {
	if len(tfs) == 0 {
		tfs = AllTimeframes()
	}
	return &Aggregator{
		store:  store,
		board:  board,
		symbol: symbol,
		tfs:    tfs,
		logger: logger.With().Str("component", "aggregator").Str("symbol", symbol).Logger(),
	}
}

// Run consumes ticker frames until the context ends. The quote channel
// is the dispatcher's ring for this symbol and never closes.
func (a *Aggregator) Run(ctx context.Context, quotes <-chan gmo.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-quotes:
			q, err := QuoteFromTicker(t)
			if err != nil {
				a.logger.Warn().Err(err).Msg("Dropping malformed ticker")
				metrics.RecordError("malformed_ticker", "aggregator")
				continue
			}
			a.Apply(ctx, q)
		}
	}
}

// Apply folds one quote into the latest-quote board and every
// timeframe series. Quotes carrying a non-open market status update
// the board but never the candles: a closed market replays stale
// prices.
func (a *Aggregator) Apply(ctx context.Context, q Quote) {
	if a.board != nil {
		a.board.Update(ctx, q)
	}
	if q.Status == gmo.MarketClosed || q.Status == gmo.MarketMaintenance {
		a.logger.Debug().Str("status", string(q.Status)).Msg("Skipping quote while market is not open")
		return
	}
	for _, tf := range a.tfs {
		a.fold(ctx, tf, q)
	}
}

func (a *Aggregator) fold(ctx context.Context, tf Timeframe, q Quote) {
	boundary := tf.Truncate(q.Timestamp)
	px := q.Bid

	open, ok := a.store.Open(a.symbol, tf)
	if !ok {
		a.store.SetOpen(a.symbol, tf, Candle{OpenTime: boundary, Open: px, High: px, Low: px, Close: px})
		return
	}

	switch {
	case boundary.Equal(open.OpenTime):
		if px > open.High {
			open.High = px
		}
		if px < open.Low {
			open.Low = px
		}
		open.Close = px
		a.store.SetOpen(a.symbol, tf, open)

	case boundary.After(open.OpenTime):
		a.store.Commit(ctx, a.symbol, tf, open)
		a.fillGap(ctx, tf, open, boundary)
		a.store.SetOpen(a.symbol, tf, Candle{OpenTime: boundary, Open: px, High: px, Low: px, Close: px})

	default:
		// Quote older than the open bar: out-of-order delivery.
		a.logger.Debug().
			Str("timeframe", tf.String()).
			Time("quote", q.Timestamp).
			Time("open", open.OpenTime).
			Msg("Dropping stale quote")
	}
}

// fillGap commits flat bars for boundaries skipped between the closed
// bar and the one now opening. Each fill repeats the prior close and
// is marked so indicator consumers can skip it.
func (a *Aggregator) fillGap(ctx context.Context, tf Timeframe, closed Candle, next time.Time) {
	d := tf.Duration()
	missed := int(next.Sub(closed.OpenTime.Add(d)) / d)
	if missed <= 0 {
		return
	}
	if missed > maxGapFill {
		a.logger.Info().
			Str("timeframe", tf.String()).
			Int("missed_bars", missed).
			Time("resumed", next).
			Msg("Market break, resuming without fill")
		return
	}
	px := closed.Close
	at := closed.OpenTime.Add(d)
	for i := 0; i < missed; i++ {
		a.store.Commit(ctx, a.symbol, tf, Candle{
			OpenTime: at,
			Open:     px,
			High:     px,
			Low:      px,
			Close:    px,
			Filled:   true,
		})
		metrics.RecordGapFill(a.symbol, tf.String())
		at = at.Add(d)
	}
	a.logger.Debug().
		Str("timeframe", tf.String()).
		Int("filled_bars", missed).
		Msg("Filled candle gap")
}
