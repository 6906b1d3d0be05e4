package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/fxfunk/internal/gmo"
	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/metrics"
	"github.com/ajitpratap0/fxfunk/internal/publisher"
	"github.com/ajitpratap0/fxfunk/internal/strategy"
)

// SnapshotSource yields the most recently published signal snapshot.
// Satisfied by *publisher.Publisher.
type SnapshotSource interface {
	Snapshot() *publisher.Snapshot
}

// Broker is the gateway subset the read endpoints consume.
type Broker interface {
	Status(ctx context.Context) (gmo.MarketStatus, error)
	PositionSummary(ctx context.Context, symbol string) ([]gmo.PositionSummary, error)
}

// Pinger reports archive connectivity for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connector reports message bus connectivity for health checks.
type Connector interface {
	Connected() bool
}

// Server represents the consumer REST API server. Every signal and
// analysis endpoint reads the latest published snapshot, so responses
// stay valid even while the pipeline is refreshing data.
type Server struct {
	router *gin.Engine
	addr   string
	server *http.Server

	snapshots SnapshotSource
	registry  *strategy.Registry
	store     *market.Store
	quotes    *market.QuoteBoard
	broker    Broker
	archive   Pinger
	bus       Connector
}

// Config contains server wiring. Quotes, Broker, Archive and Bus are
// optional; the matching endpoints degrade when absent.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string

	Snapshots SnapshotSource
	Registry  *strategy.Registry
	Store     *market.Store
	Quotes    *market.QuoteBoard
	Broker    Broker
	Archive   Pinger
	Bus       Connector
}

// NewServer creates a new API server
func NewServer(config Config) (*Server, error) {
	if config.Snapshots == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("strategy registry is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("candle store is required")
	}

	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(MetricsMiddleware())

	origins := config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	server := &Server{
		router:    router,
		addr:      fmt.Sprintf("%s:%d", config.Host, config.Port),
		snapshots: config.Snapshots,
		registry:  config.Registry,
		store:     config.Store,
		quotes:    config.Quotes,
		broker:    config.Broker,
		archive:   config.Archive,
		bus:       config.Bus,
	}

	// Setup routes
	server.setupRoutes()

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}

// MetricsMiddleware records request counters and latency per matched
// route, so path parameters never explode label cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			float64(time.Since(start).Microseconds())/1000.0,
		)
	}
}
