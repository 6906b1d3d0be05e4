package market

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/fxfunk/internal/gmo"
)

// Candle is one OHLC bar. GMO FX klines carry no volume, so Volume
// stays zero unless a future source supplies it. Filled marks a
// synthetic flat bar inserted for a missed boundary; indicator
// consumers may elect to skip those.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume,omitempty"`
	Filled   bool      `json:"filled,omitempty"`
}

// Bullish reports a close above the open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// Bearish reports a close below the open.
func (c Candle) Bearish() bool {
	return c.Close < c.Open
}

// CloseTime returns when the bar completes.
func (c Candle) CloseTime(tf Timeframe) time.Time {
	return c.OpenTime.Add(tf.Duration())
}

// CandleFromKLine converts one broker kline.
func CandleFromKLine(k gmo.KLine) (Candle, error) {
	ts, err := k.Time()
	if err != nil {
		return Candle{}, fmt.Errorf("kline open time: %w", err)
	}
	open, err := k.Open.Float64()
	if err != nil {
		return Candle{}, fmt.Errorf("kline open: %w", err)
	}
	high, err := k.High.Float64()
	if err != nil {
		return Candle{}, fmt.Errorf("kline high: %w", err)
	}
	low, err := k.Low.Float64()
	if err != nil {
		return Candle{}, fmt.Errorf("kline low: %w", err)
	}
	clos, err := k.Close.Float64()
	if err != nil {
		return Candle{}, fmt.Errorf("kline close: %w", err)
	}
	return Candle{OpenTime: ts, Open: open, High: high, Low: low, Close: clos}, nil
}

// Quote is one dealable two-sided price.
type Quote struct {
	Symbol    string           `json:"symbol"`
	Bid       float64          `json:"bid"`
	Ask       float64          `json:"ask"`
	Timestamp time.Time        `json:"timestamp"`
	Status    gmo.MarketStatus `json:"status"`
}

// Mid returns the midpoint price.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Spread returns ask minus bid.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// QuoteFromTicker converts one broker ticker frame.
func QuoteFromTicker(t gmo.Ticker) (Quote, error) {
	bid, err := t.Bid.Float64()
	if err != nil {
		return Quote{}, fmt.Errorf("ticker bid: %w", err)
	}
	ask, err := t.Ask.Float64()
	if err != nil {
		return Quote{}, fmt.Errorf("ticker ask: %w", err)
	}
	return Quote{
		Symbol:    t.Symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: t.Timestamp,
		Status:    t.Status,
	}, nil
}
