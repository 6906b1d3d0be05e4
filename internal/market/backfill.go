package market

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/fxfunk/internal/gmo"
	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

// klineSource is the slice of the broker client backfill needs.
type klineSource interface {
	KLines(ctx context.Context, symbol string, priceType gmo.PriceType, interval gmo.Interval, date string) ([]gmo.KLine, error)
}

// emptyFetchLimit stops intraday paging after this many consecutive
// dates with no klines. Weekends are skipped outright, so a run of
// empty weekdays means we walked past the broker's retention window.
const emptyFetchLimit = 30

var jst = time.FixedZone("JST", 9*60*60)

// Backfiller warms candle series from the archive and the broker's
// kline endpoint. Klines are fetched at priceType BID so backfilled
// bars share the live aggregator's price basis.
type Backfiller struct {
	client klineSource
	store  *Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewBackfiller(client klineSource, store *Store, logger zerolog.Logger) *Backfiller {
	return &Backfiller{
		client: client,
		store:  store,
		logger: logger.With().Str("component", "backfill").Logger(),
		now:    time.Now,
	}
}

// Warmup fills one series to ring capacity: archived bars first, then
// broker klines paged back date by date, newest pages winning on
// overlap. The still-forming trailing kline is dropped.
func (b *Backfiller) Warmup(ctx context.Context, symbol string, tf Timeframe) error {
	var archived []Candle
	if ar := b.store.Archive(); ar != nil {
		loaded, err := ar.Load(ctx, symbol, tf, ringSize)
		if err != nil {
			b.logger.Warn().Err(err).
				Str("symbol", symbol).
				Str("timeframe", tf.String()).
				Msg("Archive load failed, falling back to broker klines")
		} else {
			archived = loaded
		}
	}

	fetched, err := b.fetch(ctx, symbol, tf)
	if err != nil {
		return fmt.Errorf("backfill %s %s: %w", symbol, tf, err)
	}

	merged := mergeCandles(archived, fetched)
	merged = b.dropIncomplete(merged, tf)
	b.store.Seed(symbol, tf, merged)
	metrics.RecordBackfillBars(symbol, tf.String(), len(merged))

	b.logger.Info().
		Str("symbol", symbol).
		Str("timeframe", tf.String()).
		Int("archived", len(archived)).
		Int("fetched", len(fetched)).
		Int("seeded", b.store.Len(symbol, tf)).
		Msg("Series warmed up")
	return nil
}

// Refresh re-fetches the current page and folds it into the series.
// Used after a stream outage to repair whatever the aggregator missed.
func (b *Backfiller) Refresh(ctx context.Context, symbol string, tf Timeframe) error {
	date := b.pageLabel(tf, b.now().UTC())
	klines, err := b.client.KLines(ctx, symbol, gmo.PriceBid, tf.Interval(), date)
	if err != nil {
		return fmt.Errorf("refresh %s %s: %w", symbol, tf, err)
	}
	fetched, err := convertKLines(klines)
	if err != nil {
		return fmt.Errorf("refresh %s %s: %w", symbol, tf, err)
	}

	merged := mergeCandles(b.store.Snapshot(symbol, tf), fetched)
	merged = b.dropIncomplete(merged, tf)
	b.store.Seed(symbol, tf, merged)

	b.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", tf.String()).
		Int("fetched", len(fetched)).
		Msg("Series refreshed")
	return nil
}

// fetch pages the kline endpoint backwards until the ring is full or
// the retention window runs out. Intraday intervals page by FX day,
// H4 and D1 by year.
func (b *Backfiller) fetch(ctx context.Context, symbol string, tf Timeframe) ([]Candle, error) {
	if tf.Intraday() {
		return b.fetchDaily(ctx, symbol, tf)
	}
	return b.fetchYearly(ctx, symbol, tf)
}

func (b *Backfiller) fetchDaily(ctx context.Context, symbol string, tf Timeframe) ([]Candle, error) {
	var out []Candle
	day := b.now().UTC()
	empties := 0
	for len(out) < ringSize && empties < emptyFetchLimit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		label, trading := fxDayLabel(day)
		day = day.Add(-24 * time.Hour)
		if !trading {
			continue
		}
		klines, err := b.client.KLines(ctx, symbol, gmo.PriceBid, tf.Interval(), label)
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			empties++
			continue
		}
		empties = 0
		page, err := convertKLines(klines)
		if err != nil {
			return nil, err
		}
		out = mergeCandles(page, out)
	}
	return out, nil
}

func (b *Backfiller) fetchYearly(ctx context.Context, symbol string, tf Timeframe) ([]Candle, error) {
	var out []Candle
	year := b.now().UTC().Year()
	for _, y := range []int{year, year - 1} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		klines, err := b.client.KLines(ctx, symbol, gmo.PriceBid, tf.Interval(), fmt.Sprintf("%04d", y))
		if err != nil {
			return nil, err
		}
		page, err := convertKLines(klines)
		if err != nil {
			return nil, err
		}
		out = mergeCandles(page, out)
		if len(out) >= ringSize {
			break
		}
	}
	return out, nil
}

// pageLabel is the kline date parameter covering instant t.
func (b *Backfiller) pageLabel(tf Timeframe, t time.Time) string {
	if tf.Intraday() {
		label, _ := fxDayLabel(t)
		return label
	}
	return fmt.Sprintf("%04d", t.Year())
}

// fxDayLabel maps an instant to the broker's YYYYMMDD kline page. FX
// days roll at 06:00 JST, so the label is the JST calendar date six
// hours back. Saturdays and Sundays under that shift are non-trading.
func fxDayLabel(t time.Time) (string, bool) {
	shifted := t.In(jst).Add(-6 * time.Hour)
	wd := shifted.Weekday()
	return shifted.Format("20060102"), wd != time.Saturday && wd != time.Sunday
}

// dropIncomplete removes the trailing bar while it is still forming.
// The aggregator owns the open bar; seeding it as completed would
// double it.
func (b *Backfiller) dropIncomplete(candles []Candle, tf Timeframe) []Candle {
	n := len(candles)
	if n == 0 {
		return candles
	}
	if candles[n-1].CloseTime(tf).After(b.now().UTC()) {
		return candles[:n-1]
	}
	return candles
}

func convertKLines(klines []gmo.KLine) ([]Candle, error) {
	out := make([]Candle, 0, len(klines))
	for _, k := range klines {
		c, err := CandleFromKLine(k)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// mergeCandles combines two ascending runs into one ascending,
// deduplicated slice. On equal open times the second run wins, so
// callers pass the fresher source second.
func mergeCandles(a, b []Candle) []Candle {
	merged := make(map[int64]Candle, len(a)+len(b))
	for _, c := range a {
		merged[c.OpenTime.UnixMilli()] = c
	}
	for _, c := range b {
		merged[c.OpenTime.UnixMilli()] = c
	}
	out := make([]Candle, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}
