package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// WebSocket channels (bounded set)
	ChannelTicker          = "ticker"
	ChannelExecutionEvents = "executionEvents"
	ChannelOrderEvents     = "orderEvents"
	ChannelPositionEvents  = "positionEvents"
	ChannelPositionSummary = "positionSummaryEvents"
	ChannelOther           = "other"

	// Maintenance breaker states (bounded set, gobreaker naming)
	BreakerClosed   = "closed"
	BreakerHalfOpen = "half-open"
	BreakerOpen     = "open"

	// Market statuses (bounded set)
	MarketStatusOpen        = "OPEN"
	MarketStatusClose       = "CLOSE"
	MarketStatusMaintenance = "MAINTENANCE"
)

var knownChannels = []string{
	ChannelTicker,
	ChannelExecutionEvents,
	ChannelOrderEvents,
	ChannelPositionEvents,
	ChannelPositionSummary,
}

// NormalizeChannel maps arbitrary wire channel names to the bounded set
func NormalizeChannel(channel string) string {
	for _, known := range knownChannels {
		if channel == known {
			return known
		}
	}
	return ChannelOther
}

// NormalizeMarketStatus maps arbitrary status strings to the bounded set
func NormalizeMarketStatus(status string) string {
	switch strings.ToUpper(status) {
	case MarketStatusOpen:
		return MarketStatusOpen
	case MarketStatusClose, "CLOSED":
		return MarketStatusClose
	case MarketStatusMaintenance:
		return MarketStatusMaintenance
	default:
		return MarketStatusClose
	}
}

// Broker Gateway Metrics
var (
	// Broker REST requests by scope, verb and outcome
	BrokerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_broker_requests_total",
		Help: "Total broker REST requests by scope, verb and result",
	}, []string{"scope", "verb", "result"})

	// Broker request duration
	BrokerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fxfunk_broker_request_duration_ms",
		Help:    "Broker REST request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"scope", "verb"})

	// Maintenance breaker state (one-hot across closed/half-open/open)
	MaintenanceBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fxfunk_maintenance_breaker_state",
		Help: "Maintenance circuit breaker state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	// Estimated clock skew against the broker
	ClockSkew = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fxfunk_clock_skew_ms",
		Help: "Estimated local clock skew against broker server time in milliseconds",
	})

	// Rate limiter wait time
	RateLimitWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fxfunk_rate_limit_wait_ms",
		Help:    "Time spent waiting on the broker rate limiter in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500},
	}, []string{"scope", "verb"})
)

// WebSocket Metrics
var (
	// Connection state (1 = connected, 0 = down)
	WSConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fxfunk_ws_connection_state",
		Help: "WebSocket connection state (1 = connected, 0 = down)",
	}, []string{"conn"})

	// Reconnect attempts
	WSReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_ws_reconnects_total",
		Help: "Total WebSocket reconnect attempts",
	}, []string{"conn"})

	// Messages received by channel
	WSMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_ws_messages_total",
		Help: "Total WebSocket messages received by channel",
	}, []string{"conn", "channel"})

	// Quotes dropped from the ring buffer
	QuotesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_quotes_dropped_total",
		Help: "Total quotes dropped from the ring buffer under consumer backpressure",
	}, []string{"symbol"})

	// Account event consumer stalls
	ConsumerStalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_consumer_stalls_total",
		Help: "Total account event consumer stall detections by channel",
	}, []string{"channel"})
)

// Market Data Metrics
var (
	// Completed candles built from quotes
	CandlesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_candles_closed_total",
		Help: "Total completed candles by symbol and timeframe",
	}, []string{"symbol", "timeframe"})

	// Gap-filled flat candles
	CandleGapsFilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_candle_gaps_filled_total",
		Help: "Total flat candles synthesized to fill quote gaps",
	}, []string{"symbol", "timeframe"})

	// Historical bars loaded during warm-up
	BackfillBars = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_backfill_bars_total",
		Help: "Total historical bars loaded during backfill",
	}, []string{"symbol", "timeframe"})

	// Snapshot age
	SnapshotAge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fxfunk_snapshot_age_seconds",
		Help: "Age of the market data behind the latest published snapshot in seconds",
	}, []string{"symbol"})

	// Market status (one-hot across OPEN/CLOSE/MAINTENANCE)
	MarketStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fxfunk_market_status",
		Help: "Broker market status (1 for the active status, 0 otherwise)",
	}, []string{"status"})

	// Candle archive depth (database-backed, refreshed by the updater)
	CandleArchiveDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fxfunk_candle_archive_depth",
		Help: "Number of candles stored in the archive by symbol and timeframe",
	}, []string{"symbol", "timeframe"})
)

// Signal Engine Metrics
var (
	// Emitted signals
	Signals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_signals_total",
		Help: "Total signals emitted by source, symbol and direction",
	}, []string{"source", "symbol", "signal"})

	// Latest signal confidence
	SignalConfidence = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fxfunk_signal_confidence",
		Help: "Latest signal confidence (0 to 100)",
	}, []string{"source", "symbol"})

	// Analysis pass duration
	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fxfunk_analysis_duration_ms",
		Help:    "Analysis pass duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	}, []string{"source"})

	// Seconds since the most recent archived signal (refreshed by the updater)
	LastSignalAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fxfunk_last_signal_age_seconds",
		Help: "Seconds since the most recent archived signal",
	})
)

// Trading Metrics
var (
	// Orders submitted to the broker
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_orders_submitted_total",
		Help: "Total orders submitted by symbol, side and result",
	}, []string{"symbol", "side", "result"})

	// Order round-trip latency
	OrderExecutionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fxfunk_order_execution_latency_ms",
		Help:    "Order submission round-trip latency in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000},
	})

	// Open positions
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fxfunk_open_positions",
		Help: "Number of currently open positions",
	})

	// Position size by symbol
	PositionSizeBySymbol = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fxfunk_position_size_by_symbol",
		Help: "Open position size by symbol and side",
	}, []string{"symbol", "side"})

	// Account equity
	AccountEquity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fxfunk_account_equity",
		Help: "Account equity in JPY",
	})

	// Margin ratio
	MarginRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fxfunk_margin_ratio",
		Help: "Account margin ratio in percent",
	})
)

// System Health Metrics
var (
	// API request duration
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fxfunk_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"method", "path", "status_code"})

	// HTTP requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})

	// Errors
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type", "component"})

	// Database connections
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fxfunk_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fxfunk_database_connections_idle",
		Help: "Number of idle database connections",
	})

	// Database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fxfunk_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query_type"})

	// Redis cache hit rate
	RedisCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fxfunk_redis_cache_hit_rate",
		Help: "Redis cache hit rate as a ratio (0.0 to 1.0)",
	})

	// Redis operations
	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fxfunk_redis_operations_total",
		Help: "Total number of Redis operations by type",
	}, []string{"operation"})

	// NATS messages
	NATSMessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fxfunk_nats_messages_published_total",
		Help: "Total number of NATS messages published",
	})
)

// Helper functions to update metrics

// RecordBrokerRequest records a broker REST request with its outcome
func RecordBrokerRequest(scope, verb, result string, duration time.Duration) {
	BrokerRequests.WithLabelValues(scope, verb, result).Inc()
	BrokerRequestDuration.WithLabelValues(scope, verb).Observe(float64(duration.Milliseconds()))
}

// SetMaintenanceBreakerState sets the one-hot breaker state gauge
func SetMaintenanceBreakerState(state string) {
	for _, s := range []string{BreakerClosed, BreakerHalfOpen, BreakerOpen} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		MaintenanceBreakerState.WithLabelValues(s).Set(v)
	}
}

// SetClockSkew records the estimated clock skew in milliseconds
func SetClockSkew(ms float64) {
	ClockSkew.Set(ms)
}

// RecordRateLimitWait records time spent blocked on the rate limiter
func RecordRateLimitWait(scope, verb string, duration time.Duration) {
	RateLimitWait.WithLabelValues(scope, verb).Observe(float64(duration.Milliseconds()))
}

// SetWSConnected sets the WebSocket connection state gauge
func SetWSConnected(conn string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	WSConnectionState.WithLabelValues(conn).Set(v)
}

// RecordWSReconnect records a WebSocket reconnect attempt
func RecordWSReconnect(conn string) {
	WSReconnects.WithLabelValues(conn).Inc()
}

// RecordWSMessage records a received WebSocket message with normalized channel
func RecordWSMessage(conn, channel string) {
	WSMessages.WithLabelValues(conn, NormalizeChannel(channel)).Inc()
}

// RecordQuoteDropped records a quote dropped under backpressure
func RecordQuoteDropped(symbol string) {
	QuotesDropped.WithLabelValues(symbol).Inc()
}

// RecordConsumerStall records an account event consumer stall
func RecordConsumerStall(channel string) {
	ConsumerStalls.WithLabelValues(NormalizeChannel(channel)).Inc()
}

// RecordCandleClosed records a completed candle
func RecordCandleClosed(symbol, timeframe string) {
	CandlesClosed.WithLabelValues(symbol, timeframe).Inc()
}

// RecordGapFill records a synthesized flat candle
func RecordGapFill(symbol, timeframe string) {
	CandleGapsFilled.WithLabelValues(symbol, timeframe).Inc()
}

// RecordBackfillBars records bars loaded during backfill
func RecordBackfillBars(symbol, timeframe string, n int) {
	BackfillBars.WithLabelValues(symbol, timeframe).Add(float64(n))
}

// SetSnapshotAge records the age of the latest snapshot for a symbol
func SetSnapshotAge(symbol string, seconds float64) {
	SnapshotAge.WithLabelValues(symbol).Set(seconds)
}

// SetMarketStatus sets the one-hot market status gauge
func SetMarketStatus(status string) {
	normalized := NormalizeMarketStatus(status)
	for _, s := range []string{MarketStatusOpen, MarketStatusClose, MarketStatusMaintenance} {
		v := 0.0
		if s == normalized {
			v = 1.0
		}
		MarketStatus.WithLabelValues(s).Set(v)
	}
}

// RecordSignal records an emitted signal with its confidence
func RecordSignal(source, symbol, signal string, confidence float64) {
	Signals.WithLabelValues(source, symbol, signal).Inc()
	SignalConfidence.WithLabelValues(source, symbol).Set(confidence)
}

// RecordAnalysis records an analysis pass duration
func RecordAnalysis(source string, durationMs float64) {
	AnalysisDuration.WithLabelValues(source).Observe(durationMs)
}

// RecordOrderSubmitted records an order submission outcome
func RecordOrderSubmitted(symbol, side, result string) {
	OrdersSubmitted.WithLabelValues(symbol, side, result).Inc()
}

// RecordOrderExecution records order submission round-trip latency
func RecordOrderExecution(durationMs float64) {
	OrderExecutionLatency.Observe(durationMs)
}

// SetOpenPositions updates the open position count
func SetOpenPositions(count int) {
	OpenPositions.Set(float64(count))
}

// UpdatePositionSize updates the position size for a symbol and side
func UpdatePositionSize(symbol, side string, size float64) {
	PositionSizeBySymbol.WithLabelValues(symbol, side).Set(size)
}

// SetAccountEquity updates the account equity gauge
func SetAccountEquity(equity float64) {
	AccountEquity.Set(equity)
}

// SetMarginRatio updates the margin ratio gauge
func SetMarginRatio(ratio float64) {
	MarginRatio.Set(ratio)
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}

// RecordNATSPublished records a published NATS message
func RecordNATSPublished() {
	NATSMessagesPublished.Inc()
}
