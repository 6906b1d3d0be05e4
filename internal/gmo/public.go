package gmo

import (
	"context"
	"net/url"
)

// PriceType selects which side of the book a kline series is built from.
type PriceType string

const (
	PriceBid PriceType = "BID"
	PriceAsk PriceType = "ASK"
)

// Interval is a kline resolution accepted by /v1/klines.
type Interval string

const (
	Interval1Min   Interval = "1min"
	Interval5Min   Interval = "5min"
	Interval10Min  Interval = "10min"
	Interval15Min  Interval = "15min"
	Interval30Min  Interval = "30min"
	Interval1Hour  Interval = "1hour"
	Interval4Hour  Interval = "4hour"
	Interval8Hour  Interval = "8hour"
	Interval12Hour Interval = "12hour"
	Interval1Day   Interval = "1day"
	Interval1Week  Interval = "1week"
	Interval1Month Interval = "1month"
)

type statusData struct {
	Status MarketStatus `json:"status"`
}

// Status reports whether the venue is open, closed or in maintenance.
func (c *Client) Status(ctx context.Context) (MarketStatus, error) {
	var data statusData
	if err := c.getPublic(ctx, "/v1/status", nil, &data); err != nil {
		return "", err
	}
	return data.Status, nil
}

// Tickers returns the current quote for every listed symbol.
func (c *Client) Tickers(ctx context.Context) ([]Ticker, error) {
	var data []Ticker
	if err := c.getPublic(ctx, "/v1/ticker", nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Ticker returns the current quote for one symbol.
func (c *Client) Ticker(ctx context.Context, symbol string) (*Ticker, error) {
	tickers, err := c.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tickers {
		if tickers[i].Symbol == symbol {
			return &tickers[i], nil
		}
	}
	return nil, &Error{
		Kind: KindValidation,
		Op:   "GET /v1/ticker",
		Msg:  "symbol not listed: " + symbol,
	}
}

// KLines fetches one date page of historical candles. Intraday
// resolutions page by day (date = YYYYMMDD, FX day boundary 06:00 JST);
// 4hour and coarser page by year (date = YYYY).
func (c *Client) KLines(ctx context.Context, symbol string, priceType PriceType, interval Interval, date string) ([]KLine, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("priceType", string(priceType))
	query.Set("interval", string(interval))
	query.Set("date", date)

	var data []KLine
	if err := c.getPublic(ctx, "/v1/klines", query, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Symbols returns the trading rules for every listed pair.
func (c *Client) Symbols(ctx context.Context) ([]SymbolRule, error) {
	var data []SymbolRule
	if err := c.getPublic(ctx, "/v1/symbols", nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}
