package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fxfunk/internal/analysis"
	"github.com/ajitpratap0/fxfunk/internal/gmo"
	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/publisher"
	"github.com/ajitpratap0/fxfunk/internal/strategy"
	"github.com/ajitpratap0/fxfunk/internal/tfqe"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSnapshots struct {
	mu   sync.Mutex
	snap *publisher.Snapshot
}

func (f *fakeSnapshots) Snapshot() *publisher.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSnapshots) set(snap *publisher.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

type fakeBroker struct {
	status     gmo.MarketStatus
	statusErr  error
	summary    []gmo.PositionSummary
	summaryErr error
}

func (b *fakeBroker) Status(ctx context.Context) (gmo.MarketStatus, error) {
	if b.statusErr != nil {
		return "", b.statusErr
	}
	return b.status, nil
}

func (b *fakeBroker) PositionSummary(ctx context.Context, symbol string) ([]gmo.PositionSummary, error) {
	if b.summaryErr != nil {
		return nil, b.summaryErr
	}
	return b.summary, nil
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

type fakeBus struct{ connected bool }

func (b *fakeBus) Connected() bool { return b.connected }

// newTestServer builds a server over a real store and the stock
// strategy registry, with fakes everywhere else.
func newTestServer(t *testing.T, mutate ...func(*Config)) (*Server, *fakeSnapshots, *market.Store) {
	t.Helper()

	store := market.NewStore(nil, zerolog.Nop())
	registry, err := strategy.Build(strategy.DefaultPresetFile(), store, zerolog.Nop())
	require.NoError(t, err)

	snaps := &fakeSnapshots{}
	cfg := Config{
		Host:      "127.0.0.1",
		Port:      0,
		Snapshots: snaps,
		Registry:  registry,
		Store:     store,
		Quotes:    market.NewQuoteBoard(nil),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return srv, snaps, store
}

func doRequest(srv *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func buySignal(symbol string) tfqe.Signal {
	return tfqe.Signal{
		Symbol:      symbol,
		State:       tfqe.StateBuy,
		Reason:      "pullback reclaimed in uptrend",
		Entry:       150.25,
		StopLoss:    150.10,
		TakeProfit1: 150.35,
		TakeProfit2: 150.45,
		RiskPips:    15,
		RewardPips:  20,
		Confidence:  78,
		H1Trend:     analysis.TrendUp,
		At:          time.Now().UTC(),
	}
}

func testVerdict(symbol string) *analysis.Verdict {
	return &analysis.Verdict{
		Symbol:     symbol,
		Signal:     analysis.SignalBuy,
		Confidence: 72,
		Alignment:  0.8,
		RiskLevel:  analysis.RiskLow,
		MarketTiming: analysis.MarketTiming{
			Session:       "london",
			ActivityLevel: "high",
		},
		Strategies: []analysis.StrategyRec{
			{Timeframe: market.TFM15, Style: "day_trade", Confidence: 70},
		},
		Frames: map[market.Timeframe]analysis.Frame{
			market.TFM15: {Symbol: symbol, Timeframe: market.TFM15, Trend: analysis.TrendUp, Close: 150.25},
			market.TFH1:  {Symbol: symbol, Timeframe: market.TFH1, Trend: analysis.TrendUp, Close: 150.20},
		},
		AnalyzedAt: time.Now().UTC(),
	}
}

func liveView(symbol string) *publisher.SymbolView {
	return &publisher.SymbolView{
		Symbol:        symbol,
		Signals:       map[string]tfqe.Signal{"tfqe": buySignal(symbol)},
		Verdict:       testVerdict(symbol),
		DataFreshness: publisher.FreshnessLive,
	}
}

func snapshotWith(views ...*publisher.SymbolView) *publisher.Snapshot {
	snap := &publisher.Snapshot{
		ID:        uuid.New(),
		Symbols:   make(map[string]*publisher.SymbolView, len(views)),
		CreatedAt: time.Now().UTC(),
	}
	for _, v := range views {
		snap.Symbols[v.Symbol] = v
	}
	return snap
}

func TestNewServerValidation(t *testing.T) {
	store := market.NewStore(nil, zerolog.Nop())
	registry, err := strategy.Build(strategy.DefaultPresetFile(), store, zerolog.Nop())
	require.NoError(t, err)
	snaps := &fakeSnapshots{}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing snapshots", func(c *Config) { c.Snapshots = nil }},
		{"missing registry", func(c *Config) { c.Registry = nil }},
		{"missing store", func(c *Config) { c.Store = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Snapshots: snaps, Registry: registry, Store: store}
			tt.mutate(&cfg)
			_, err := NewServer(cfg)
			require.Error(t, err)
		})
	}
}

func TestRootEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "fxfunk API", body["service"])
	assert.Equal(t, "running", body["status"])
}

func TestHealthStartingUntilFirstSnapshot(t *testing.T) {
	srv, snaps, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "starting", decodeBody(t, rec)["status"])

	snaps.set(snapshotWith(liveView("USD_JPY")))

	rec = doRequest(srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	components := body["components"].(map[string]interface{})
	pub := components["publisher"].(map[string]interface{})
	assert.Equal(t, "ok", pub["status"])
	assert.Equal(t, "not_configured", components["archive"].(map[string]interface{})["status"])
	assert.Equal(t, "not_configured", components["bus"].(map[string]interface{})["status"])
}

func TestHealthDegradedComponents(t *testing.T) {
	srv, snaps, _ := newTestServer(t, func(c *Config) {
		c.Archive = &fakePinger{err: assert.AnError}
		c.Bus = &fakeBus{connected: false}
	})
	snaps.set(snapshotWith(liveView("USD_JPY")))

	rec := doRequest(srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, "unhealthy", components["archive"].(map[string]interface{})["status"])
	assert.Equal(t, "disconnected", components["bus"].(map[string]interface{})["status"])
}

func TestTFQESignalContract(t *testing.T) {
	srv, snaps, store := newTestServer(t)

	now := market.TFH1.Truncate(time.Now().UTC())
	store.Seed("USD_JPY", market.TFH1, []market.Candle{
		{OpenTime: now.Add(-2 * time.Hour), Open: 150, High: 150.3, Low: 149.9, Close: 150.2},
		{OpenTime: now.Add(-time.Hour), Open: 150.2, High: 150.4, Low: 150.1, Close: 150.25},
	})
	snaps.set(snapshotWith(liveView("USD_JPY")))

	rec := doRequest(srv, http.MethodGet, "/signals/tfqe?symbol=USD_JPY", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "BUY", body["signal"])
	assert.Equal(t, "USD_JPY", body["symbol"])
	assert.Equal(t, 150.25, body["entry"])
	assert.Equal(t, 150.10, body["stop_loss"])
	assert.Equal(t, float64(78), body["confidence"])
	assert.Equal(t, "tfqe", body["strategy"])
	assert.Equal(t, "LIVE", body["data_freshness"])

	info := body["data_info"].(map[string]interface{})
	assert.Equal(t, float64(2), info["h1_bars"])
	assert.Equal(t, float64(0), info["m15_bars"])
	assert.NotEmpty(t, info["latest_h1"])

	history, ok := body["history"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, history)
}

func TestTFQESignalStaleDegradation(t *testing.T) {
	srv, snaps, _ := newTestServer(t)

	view := liveView("USD_JPY")
	view.DataFreshness = publisher.FreshnessStale
	view.StaleFrames = []market.Timeframe{market.TFH1}
	sig := view.Signals["tfqe"]
	sig.Confidence = 30
	view.Signals["tfqe"] = sig
	snaps.set(snapshotWith(view))

	rec := doRequest(srv, http.MethodGet, "/signals/tfqe?symbol=USD_JPY", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "STALE", body["data_freshness"])
	assert.Equal(t, float64(30), body["confidence"])
	assert.Equal(t, []interface{}{"H1"}, body["stale_frames"])
}

func TestTFQESignalValidation(t *testing.T) {
	srv, snaps, _ := newTestServer(t)

	// No snapshot published yet.
	rec := doRequest(srv, http.MethodGet, "/signals/tfqe?symbol=USD_JPY", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	snaps.set(snapshotWith(liveView("USD_JPY")))

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"missing symbol", "/signals/tfqe", http.StatusBadRequest},
		{"unsupported symbol", "/signals/tfqe?symbol=BTC_JPY", http.StatusBadRequest},
		{"unknown strategy", "/signals/tfqe?symbol=USD_JPY&strategy=nope", http.StatusNotFound},
		{"untracked symbol", "/signals/tfqe?symbol=EUR_USD", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestMultiTimeframeContract(t *testing.T) {
	srv, snaps, _ := newTestServer(t)
	snaps.set(snapshotWith(liveView("USD_JPY")))

	rec := doRequest(srv, http.MethodPost, "/analysis/multi-timeframe", []byte(`{"symbol":"USD_JPY"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "USD_JPY", body["symbol"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, "LIVE", body["data_freshness"])

	frames := body["timeframes"].(map[string]interface{})
	require.Contains(t, frames, "M15")
	require.Contains(t, frames, "H1")
	m15 := frames["M15"].(map[string]interface{})
	assert.Equal(t, "UP", m15["trend"])

	integrated := body["integrated_strategy"].(map[string]interface{})
	assert.Equal(t, "BUY", integrated["integrated_signal"])
	assert.Equal(t, float64(72), integrated["confidence"])
	assert.Equal(t, 0.8, integrated["signal_alignment"])
	assert.Equal(t, "LOW", integrated["risk_level"])
	assert.NotEmpty(t, integrated["recommended_strategies"])

	session := body["market_session"].(map[string]interface{})
	assert.Equal(t, "london", session["session"])
}

func TestMultiTimeframeValidation(t *testing.T) {
	srv, snaps, _ := newTestServer(t)
	snaps.set(snapshotWith(liveView("USD_JPY")))

	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty body", ``, http.StatusBadRequest},
		{"missing symbol", `{}`, http.StatusBadRequest},
		{"unsupported symbol", `{"symbol":"XRP_JPY"}`, http.StatusBadRequest},
		{"untracked symbol", `{"symbol":"GBP_JPY"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(srv, http.MethodPost, "/analysis/multi-timeframe", []byte(tt.body))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestMultiTimeframeMissingVerdict(t *testing.T) {
	srv, snaps, _ := newTestServer(t)

	view := liveView("USD_JPY")
	view.Verdict = nil
	snaps.set(snapshotWith(view))

	rec := doRequest(srv, http.MethodPost, "/analysis/multi-timeframe", []byte(`{"symbol":"USD_JPY"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLatestQuotesArray(t *testing.T) {
	board := market.NewQuoteBoard(nil)
	srv, _, _ := newTestServer(t, func(c *Config) { c.Quotes = board })

	now := time.Now().UTC()
	board.Update(context.Background(), market.Quote{
		Symbol: "USD_JPY", Bid: 150.001, Ask: 150.004, Timestamp: now, Status: gmo.MarketOpen,
	})
	board.Update(context.Background(), market.Quote{
		Symbol: "EUR_USD", Bid: 1.08123, Ask: 1.08131, Timestamp: now, Status: gmo.MarketOpen,
	})

	rec := doRequest(srv, http.MethodGet, "/market/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var quotes []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quotes))
	require.Len(t, quotes, 2)
	assert.Equal(t, "EUR_USD", quotes[0]["symbol"])
	assert.Equal(t, "USD_JPY", quotes[1]["symbol"])
	assert.Equal(t, 150.001, quotes[1]["bid"])
}

func TestLatestQuotesEmptyBoard(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/market/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var quotes []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quotes))
	assert.Empty(t, quotes)
}

func TestMarketStatus(t *testing.T) {
	broker := &fakeBroker{status: gmo.MarketOpen}
	srv, _, _ := newTestServer(t, func(c *Config) { c.Broker = broker })

	rec := doRequest(srv, http.MethodGet, "/market/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OPEN", decodeBody(t, rec)["status"])
}

func TestMarketStatusBrokerError(t *testing.T) {
	broker := &fakeBroker{
		statusErr: &gmo.Error{Kind: gmo.KindMaintenance, Code: "ERR-5201", Op: "status"},
	}
	srv, _, _ := newTestServer(t, func(c *Config) { c.Broker = broker })

	rec := doRequest(srv, http.MethodGet, "/market/status", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ERR-5201", body["code"])
	assert.NotEmpty(t, body["error"])
}

func TestMarketStatusNotConfigured(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/market/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPairs(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/pairs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	pairs := body["pairs"].([]interface{})
	assert.Equal(t, float64(len(pairs)), body["total"])

	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		symbols = append(symbols, p.(map[string]interface{})["symbol"].(string))
	}
	assert.Contains(t, symbols, "USD_JPY")
	assert.Contains(t, symbols, "EUR_USD")
}

func TestPositionSummary(t *testing.T) {
	broker := &fakeBroker{
		summary: []gmo.PositionSummary{
			{Symbol: "USD_JPY", Side: gmo.SideBuy, SumPositionSize: "10000"},
		},
	}
	srv, _, _ := newTestServer(t, func(c *Config) { c.Broker = broker })

	rec := doRequest(srv, http.MethodGet, "/positions/summary?symbol=USD_JPY", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["total"])

	positions := body["positions"].([]interface{})
	require.Len(t, positions, 1)
	assert.Equal(t, "USD_JPY", positions[0].(map[string]interface{})["symbol"])
}

func TestPositionSummaryValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// No broker configured.
	rec := doRequest(srv, http.MethodGet, "/positions/summary", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	broker := &fakeBroker{}
	srv, _, _ = newTestServer(t, func(c *Config) { c.Broker = broker })

	rec = doRequest(srv, http.MethodGet, "/positions/summary?symbol=DOGE_JPY", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBrokerErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"rate limited", &gmo.Error{Kind: gmo.KindRateLimited, Code: "ERR-5003"}, http.StatusTooManyRequests},
		{"maintenance", &gmo.Error{Kind: gmo.KindMaintenance, Code: "ERR-5201"}, http.StatusServiceUnavailable},
		{"auth", &gmo.Error{Kind: gmo.KindAuth, Code: "ERR-5010"}, http.StatusServiceUnavailable},
		{"transport", &gmo.Error{Kind: gmo.KindTransport}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := &fakeBroker{statusErr: tt.err}
			srv, _, _ := newTestServer(t, func(c *Config) { c.Broker = broker })

			rec := doRequest(srv, http.MethodGet, "/market/status", nil)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
