package api

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/fxfunk/internal/config"
	"github.com/ajitpratap0/fxfunk/internal/gmo"
	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/publisher"
	"github.com/ajitpratap0/fxfunk/internal/tfqe"
)

var startTime = time.Now()

// Root handler
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "fxfunk API",
		"version": config.GetVersion(),
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// handleHealth reports per-component status. It returns 503 until the
// first snapshot lands, so load balancers hold traffic during warm-up.
func (s *Server) handleHealth(c *gin.Context) {
	snap := s.snapshots.Snapshot()

	publisherStatus := "waiting"
	var snapshotAge float64
	if snap != nil {
		publisherStatus = "ok"
		snapshotAge = time.Since(snap.CreatedAt).Seconds()
	}

	archiveStatus := "not_configured"
	if s.archive != nil {
		archiveStatus = "ok"
		if err := s.archive.Ping(c.Request.Context()); err != nil {
			archiveStatus = "unhealthy"
			log.Warn().Err(err).Msg("Archive health check failed")
		}
	}

	busStatus := "not_configured"
	if s.bus != nil {
		busStatus = "ok"
		if !s.bus.Connected() {
			busStatus = "disconnected"
		}
	}

	status := "healthy"
	code := http.StatusOK
	switch {
	case snap == nil:
		status = "starting"
		code = http.StatusServiceUnavailable
	case archiveStatus == "unhealthy" || busStatus == "disconnected":
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status": status,
		"uptime": time.Since(startTime).Seconds(),
		"components": gin.H{
			"publisher": gin.H{
				"status":           publisherStatus,
				"snapshot_age_sec": snapshotAge,
			},
			"archive": gin.H{"status": archiveStatus},
			"bus":     gin.H{"status": busStatus},
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"go_version": runtime.Version(),
		},
		"time": time.Now().UTC(),
	})
}

// tfqeResponse is the signal object with its history and the data
// behind it merged in. Signal fields sit at the top level.
type tfqeResponse struct {
	tfqe.Signal
	Strategy      string              `json:"strategy"`
	DataFreshness publisher.Freshness `json:"data_freshness"`
	StaleFrames   []market.Timeframe  `json:"stale_frames,omitempty"`
	DataInfo      dataInfo            `json:"data_info"`
	History       []tfqe.Signal       `json:"history"`
}

type dataInfo struct {
	H1Bars    int        `json:"h1_bars"`
	M15Bars   int        `json:"m15_bars"`
	LatestH1  *time.Time `json:"latest_h1,omitempty"`
	LatestM15 *time.Time `json:"latest_m15,omitempty"`
}

func (s *Server) handleTFQESignal(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "symbol query parameter required",
		})
		return
	}
	if !market.IsSupported(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported symbol %s", symbol),
		})
		return
	}

	name, engine, ok := s.tfqeEngine(c.Query("strategy"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no TFQE strategy registered",
		})
		return
	}

	view, status, errMsg := s.symbolView(symbol)
	if view == nil {
		c.JSON(status, gin.H{"error": errMsg})
		return
	}

	sig, ok := view.Signals[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("no %s signal for %s yet", name, symbol),
		})
		return
	}

	c.JSON(http.StatusOK, tfqeResponse{
		Signal:        sig,
		Strategy:      name,
		DataFreshness: view.DataFreshness,
		StaleFrames:   view.StaleFrames,
		DataInfo:      s.dataInfoFor(symbol),
		History:       engine.History(symbol),
	})
}

func (s *Server) handleMultiTimeframe(c *gin.Context) {
	var req struct {
		Symbol string `json:"symbol" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}
	if !market.IsSupported(req.Symbol) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported symbol %s", req.Symbol),
		})
		return
	}

	view, status, errMsg := s.symbolView(req.Symbol)
	if view == nil {
		c.JSON(status, gin.H{"error": errMsg})
		return
	}

	v := view.Verdict
	if v == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "multi-timeframe analysis unavailable",
		})
		return
	}

	resp := gin.H{
		"timestamp":  v.AnalyzedAt,
		"symbol":     v.Symbol,
		"timeframes": v.Frames,
		"integrated_strategy": gin.H{
			"integrated_signal":      v.Signal,
			"confidence":             v.Confidence,
			"signal_alignment":       v.Alignment,
			"risk_level":             v.RiskLevel,
			"recommended_strategies": v.Strategies,
			"market_timing":          v.MarketTiming,
		},
		"market_session": v.MarketTiming,
		"data_freshness": view.DataFreshness,
	}
	if len(view.StaleFrames) > 0 {
		resp["stale_frames"] = view.StaleFrames
	}

	c.JSON(http.StatusOK, resp)
}

// handleLatestQuotes returns the newest quote per symbol as a bare
// array, sorted by symbol.
func (s *Server) handleLatestQuotes(c *gin.Context) {
	if s.quotes == nil {
		c.JSON(http.StatusOK, []market.Quote{})
		return
	}
	c.JSON(http.StatusOK, s.quotes.All())
}

func (s *Server) handleMarketStatus(c *gin.Context) {
	if s.broker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "broker gateway not configured",
		})
		return
	}

	status, err := s.broker.Status(c.Request.Context())
	if err != nil {
		s.brokerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handlePairs(c *gin.Context) {
	pairs := market.Symbols()
	c.JSON(http.StatusOK, gin.H{
		"pairs": pairs,
		"total": len(pairs),
	})
}

func (s *Server) handlePositionSummary(c *gin.Context) {
	if s.broker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "broker gateway not configured",
		})
		return
	}

	symbol := c.Query("symbol")
	if symbol != "" && !market.IsSupported(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported symbol %s", symbol),
		})
		return
	}

	summary, err := s.broker.PositionSummary(c.Request.Context(), symbol)
	if err != nil {
		s.brokerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"positions": summary,
		"total":     len(summary),
	})
}

// symbolView resolves the current snapshot view for a symbol, or the
// HTTP status and message to answer with when it cannot.
func (s *Server) symbolView(symbol string) (*publisher.SymbolView, int, string) {
	snap := s.snapshots.Snapshot()
	if snap == nil {
		return nil, http.StatusServiceUnavailable, "no snapshot published yet"
	}
	view, ok := snap.View(symbol)
	if !ok {
		return nil, http.StatusNotFound, fmt.Sprintf("symbol %s is not tracked", symbol)
	}
	return view, 0, ""
}

// tfqeEngine resolves the engine for an explicit strategy name, or the
// first TFQE entry in registration order when the name is empty.
func (s *Server) tfqeEngine(name string) (string, *tfqe.Engine, bool) {
	if name != "" {
		eng, ok := s.registry.TFQE(name)
		return name, eng, ok
	}
	for _, n := range s.registry.Names() {
		if eng, ok := s.registry.TFQE(n); ok {
			return n, eng, true
		}
	}
	return "", nil, false
}

func (s *Server) dataInfoFor(symbol string) dataInfo {
	info := dataInfo{
		H1Bars:  s.store.Len(symbol, market.TFH1),
		M15Bars: s.store.Len(symbol, market.TFM15),
	}
	if last, ok := s.store.LastCandle(symbol, market.TFH1); ok {
		t := last.OpenTime
		info.LatestH1 = &t
	}
	if last, ok := s.store.LastCandle(symbol, market.TFM15); ok {
		t := last.OpenTime
		info.LatestM15 = &t
	}
	return info
}

// brokerError maps a gateway failure onto an HTTP status, surfacing
// the broker's original message code when one exists.
func (s *Server) brokerError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch gmo.KindOf(err) {
	case gmo.KindMaintenance, gmo.KindAuth, gmo.KindConfig:
		status = http.StatusServiceUnavailable
	case gmo.KindRateLimited:
		status = http.StatusTooManyRequests
	}

	body := gin.H{"error": err.Error()}
	var ge *gmo.Error
	if errors.As(err, &ge) && ge.Code != "" {
		body["code"] = ge.Code
	}

	log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("Broker request failed")
	c.JSON(status, body)
}
