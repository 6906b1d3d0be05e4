// Command fxfunk runs the FX trading assistant daemon: the GMO Coin
// gateway, the candle pipeline, the signal publisher and the consumer
// API in one process. Order execution stays off unless trading is
// explicitly enabled in configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/fxfunk/internal/alerts"
	"github.com/ajitpratap0/fxfunk/internal/analysis"
	"github.com/ajitpratap0/fxfunk/internal/api"
	"github.com/ajitpratap0/fxfunk/internal/bus"
	"github.com/ajitpratap0/fxfunk/internal/config"
	"github.com/ajitpratap0/fxfunk/internal/db"
	"github.com/ajitpratap0/fxfunk/internal/gmo"
	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/metrics"
	"github.com/ajitpratap0/fxfunk/internal/publisher"
	"github.com/ajitpratap0/fxfunk/internal/strategy"
	"github.com/ajitpratap0/fxfunk/internal/trader"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	verifyKeys := flag.Bool("verify-keys", false, "Verify credentials and configuration, then exit")
	flag.Parse()

	// Console logging until the configured logger takes over
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load secrets from Vault when configured; environment variables
	// remain the fallback for every credential
	vaultCfg := config.GetVaultConfigFromEnv()
	if vaultCfg.Enabled {
		if err := config.LoadSecretsFromVault(ctx, cfg, vaultCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
		}
	}

	// If --verify-keys flag is set, verify configuration and exit
	if *verifyKeys {
		os.Exit(verifyConfiguration(cfg))
	}

	log.Info().
		Str("version", config.GetVersion()).
		Str("environment", cfg.App.Environment).
		Strs("symbols", cfg.Symbols).
		Bool("trading_enabled", cfg.Trading.Enabled).
		Msg("Starting fxfunk")

	// Alert fan-out: logs always, Telegram when configured
	setupAlerts(cfg)

	// Broker gateway. One limiter is shared between REST and the
	// WebSocket subscribe path so the process respects the broker
	// budgets as a whole.
	limiter := gmo.NewLimiter(gmo.Limits{
		GetPerSec:   cfg.Limits.GetPerSec,
		PostPerSec:  cfg.Limits.PostPerSec,
		WSSubPerSec: cfg.Limits.WSSubPerSec,
	})
	client, err := gmo.NewClient(gmo.Config{
		PublicURL:    cfg.GMO.RESTPublicURL,
		PrivateURL:   cfg.GMO.RESTPrivateURL,
		APIKey:       cfg.API.Key,
		APISecret:    cfg.API.Secret,
		MaxClockSkew: cfg.GMO.MaxClockSkew(),
	}, limiter, config.NewLogger("gmo"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create broker client")
	}

	// Candle archive (optional)
	var database *db.DB
	var archive market.Archive
	var signalArchive *db.SignalArchive
	if cfg.Database.Enabled {
		database, err = db.New(ctx, cfg.Database.GetDSN(), cfg.Database.PoolSize)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()
		archive = db.NewCandleArchiveWithPool(database.Pool())
		signalArchive = db.NewSignalArchiveWithPool(database.Pool())
	}

	// Candle store, seeded from the archive on first access
	store := market.NewStore(archive, config.NewLogger("market"))

	// Quote cache (optional); the in-process board works without it
	var quoteCache *market.RedisQuoteCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.GetRedisAddr()).Msg("Failed to connect to Redis")
		}
		quoteCache = market.NewRedisQuoteCache(rdb, 0)
		log.Info().Str("addr", cfg.Redis.GetRedisAddr()).Msg("Quote cache connected")
	}
	board := market.NewQuoteBoard(quoteCache)

	// Event bus (optional). Quotes ride it too, via the board.
	var eventBus *bus.Bus
	if cfg.NATS.Enabled {
		eventBus, err = bus.Connect(bus.Config{URL: cfg.NATS.URL, Prefix: cfg.NATS.SubjectPrefix})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		board.AttachBus(eventBus)
	}

	// Stream dispatcher: quotes ride drop-oldest rings, account events
	// are lossless with a stall alarm
	dispatcher := gmo.NewDispatcher(cfg.Symbols, func(channel string) {
		alerts.AlertConsumerStall(context.Background(), channel)
	}, config.NewLogger("dispatcher"))

	// Warm the candle store before the first publish
	backfiller := market.NewBackfiller(client, store, config.NewLogger("backfill"))
	warmup(ctx, backfiller, cfg.Symbols)

	// Analysis and strategy instances
	analyzer := analysis.NewAnalyzer(store, config.NewLogger("analysis"))
	registry, err := buildRegistry(cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build strategy registry")
	}

	// Snapshot publisher
	pub, err := publisher.New(publisher.Config{
		Symbols:         cfg.Symbols,
		MultiTFInterval: cfg.Publisher.MultiTFInterval(),
		TFQEGrace:       cfg.Publisher.TFQEGrace(),
	}, store, backfiller, analyzer, registry, config.NewLogger("publisher"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create publisher")
	}
	if eventBus != nil {
		pub.AttachBus(eventBus)
	}
	if signalArchive != nil {
		pub.AttachArchive(signalArchive)
	}

	// Consumer API server
	apiCfg := api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		Snapshots:   pub,
		Registry:    registry,
		Store:       store,
		Quotes:      board,
		Broker:      client,
	}
	if database != nil {
		apiCfg.Archive = database
	}
	if eventBus != nil {
		apiCfg.Bus = eventBus
	}
	apiServer, err := api.NewServer(apiCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create API server")
	}

	// Prometheus endpoint
	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
	}

	// Start workers
	g, gctx := errgroup.WithContext(ctx)

	public := gmo.NewPublicStream(cfg.GMO.WSPublicURL, cfg.Symbols, limiter, dispatcher, config.NewLogger("ws_public"))
	g.Go(func() error { return public.Run(gctx) })

	for _, symbol := range cfg.Symbols {
		agg := market.NewAggregator(store, board, symbol, nil, config.NewSymbolLogger("aggregator", symbol))
		quotes := dispatcher.Quotes(symbol)
		g.Go(func() error { return agg.Run(gctx, quotes) })
	}

	g.Go(func() error { return pub.Run(gctx) })

	// Account path, only with trading enabled: the private stream, the
	// order layer consuming entry signals, and drains for the lossless
	// account channels nothing else reads
	if cfg.Trading.Enabled {
		if cfg.API.Key == "" || cfg.API.Secret == "" {
			log.Fatal().Msg("Trading is enabled but GMO API credentials are missing")
		}

		private := gmo.NewPrivateStream(cfg.GMO.WSPrivateURL, client, limiter, dispatcher, config.NewLogger("ws_private"))
		g.Go(func() error { return private.Run(gctx) })

		trd, err := trader.New(trader.Config{
			Size: decimal.NewFromFloat(cfg.Trading.Size),
		}, client, store, pub.Entries(), dispatcher.Executions(), config.NewLogger("trader"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create trader")
		}
		g.Go(func() error { return trd.Run(gctx) })

		g.Go(func() error { return drainOrders(gctx, dispatcher.Orders()) })
		g.Go(func() error { return drainPositions(gctx, dispatcher.Positions()) })
		g.Go(func() error { return drainPositionSummaries(gctx, dispatcher.PositionSummaries()) })
		g.Go(func() error { return pollAccount(gctx, client) })
	}

	// Database-backed gauges refresh on their own cadence
	if database != nil {
		updater := metrics.NewUpdater(database.Pool(), time.Minute)
		go updater.Start(gctx)
	}

	g.Go(func() error { return apiServer.Start() })

	// Wait for shutdown signal or worker error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-gctx.Done():
		log.Warn().Msg("Worker stopped, shutting down")
	}

	// Initiate graceful shutdown. Cancelling stops the producers first;
	// the private stream revokes its access token on the way out.
	log.Info().Msg("Initiating graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during API server shutdown")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during metrics server shutdown")
		}
	}

	if err := g.Wait(); err != nil && !isCancel(err) {
		log.Error().Err(err).Msg("Worker error during shutdown")
	}

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Warn().Err(err).Msg("Event bus close failed")
		}
	}

	log.Info().Msg("Shutdown complete")
}

// setupAlerts installs the alert fan-out used across the process.
func setupAlerts(cfg *config.Config) {
	alerters := []alerts.Alerter{alerts.NewLogAlerter()}

	if cfg.Telegram.Enabled {
		tg, err := alerts.NewTelegramAlerter(cfg.Telegram.Token, cfg.Telegram.MinConfidence, cfg.Telegram.ChatID)
		if err != nil {
			log.Error().Err(err).Msg("Telegram alerter unavailable, alerts go to logs only")
		} else {
			alerters = append(alerters, tg)
			log.Info().Int64("chat_id", cfg.Telegram.ChatID).Msg("Telegram alerts enabled")
		}
	}

	alerts.SetDefaultManager(alerts.NewManager(alerters...))
}

// warmup seeds every symbol and timeframe from the archive and the
// kline REST API. Failures are not fatal: the publisher retries via
// its freshness check and flags stale data until then.
func warmup(ctx context.Context, backfiller *market.Backfiller, symbols []string) {
	for _, symbol := range symbols {
		for _, tf := range market.AllTimeframes() {
			if err := backfiller.Warmup(ctx, symbol, tf); err != nil {
				log.Warn().
					Err(err).
					Str("symbol", symbol).
					Str("timeframe", tf.String()).
					Msg("Warmup backfill failed")
			}
		}
	}
}

// buildRegistry loads strategy presets from the configured path. A
// missing file is not an error: the stock bundle applies, tuned by the
// tfqe config section.
func buildRegistry(cfg *config.Config, store *market.Store) (*strategy.Registry, error) {
	logger := config.NewLogger("strategy")

	path := cfg.Strategy.PresetPath
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			log.Debug().Str("path", path).Msg("No preset file, using stock strategy bundle")
			path = ""
		}
	}
	if path != "" {
		return strategy.LoadRegistry(path, store, logger)
	}

	file := strategy.DefaultPresetFile()
	for i := range file.Presets {
		p := &file.Presets[i]
		p.Session.Start = wallClock(cfg.TFQE.SessionStartHour)
		p.Session.End = wallClock(cfg.TFQE.SessionEndHour)
		p.Risk.StopATRMult = cfg.TFQE.StopATR
		p.Risk.TP1ATRMult = cfg.TFQE.TP1ATR
		p.Risk.TP2ATRMult = cfg.TFQE.TP2ATR
	}
	return strategy.Build(file, store, logger)
}

func wallClock(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

// drainOrders logs order lifecycle transitions. The channel is
// lossless; leaving it undrained would stall the private stream.
func drainOrders(ctx context.Context, orders <-chan gmo.OrderEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-orders:
			log.Info().
				Str("symbol", ev.Symbol).
				Str("side", string(ev.Side)).
				Int64("order_id", ev.OrderID).
				Int64("root_order_id", ev.RootOrderID).
				Str("execution_type", string(ev.ExecutionType)).
				Str("status", ev.Status).
				Str("msg_type", ev.MsgType).
				Msg("Order event")
		}
	}
}

func drainPositions(ctx context.Context, positions <-chan gmo.PositionEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-positions:
			log.Debug().
				Str("symbol", ev.Symbol).
				Str("side", string(ev.Side)).
				Int64("position_id", ev.PositionID).
				Str("size", string(ev.Size)).
				Str("msg_type", ev.MsgType).
				Msg("Position event")
		}
	}
}

// drainPositionSummaries feeds the periodic account aggregates into
// the position gauges.
func drainPositionSummaries(ctx context.Context, summaries <-chan gmo.PositionSummaryEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-summaries:
			size, err := ev.SumPositionSize.Float64()
			if err != nil {
				log.Warn().Err(err).Str("symbol", ev.Symbol).Msg("Unparseable position summary size")
				continue
			}
			metrics.UpdatePositionSize(ev.Symbol, string(ev.Side), size)
		}
	}
}

// pollAccount refreshes the equity and margin gauges while trading.
func pollAccount(ctx context.Context, client *gmo.Client) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			assets, err := client.Assets(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Account assets poll failed")
				continue
			}
			if v, err := assets.Equity.Float64(); err == nil {
				metrics.SetAccountEquity(v)
			}
			if v, err := assets.MarginRatio.Float64(); err == nil {
				metrics.SetMarginRatio(v)
			}
		}
	}
}

// isCancel reports whether the error is the ordinary shutdown-path
// context error rather than a real worker failure.
func isCancel(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}

// verifyConfiguration checks all configured credentials and settings.
// Returns 0 if everything is in place, 1 otherwise.
func verifyConfiguration(cfg *config.Config) int {
	log.Info().Msg("Verifying configuration...")

	allValid := true
	checked := 0

	// Broker credentials
	log.Info().Msg("Checking GMO API credentials...")
	checked++
	switch {
	case cfg.API.Key == "" && cfg.API.Secret == "":
		if cfg.Trading.Enabled {
			log.Error().Msg("❌ Trading is enabled but no API credentials are configured")
			allValid = false
		} else {
			log.Info().Msg("✓ No API credentials: running signal-only on public data")
		}
	case cfg.API.Key == "" || cfg.API.Secret == "":
		log.Error().Msg("❌ API key and secret must be configured together")
		allValid = false
	default:
		log.Info().
			Int("key_length", len(cfg.API.Key)).
			Msg("✓ GMO API credentials configured (validation requires broker connection)")
	}

	// Placeholder and strength screening
	if errs := config.ValidateProductionSecrets(cfg); len(errs) > 0 {
		for _, e := range errs {
			log.Error().Str("field", e.Field).Msg("❌ " + e.Message)
		}
		allValid = false
	}

	// Database configuration
	if cfg.Database.Enabled {
		log.Info().Msg("Checking database configuration...")
		checked++
		if cfg.Database.Host == "" {
			log.Error().Msg("❌ Database host not configured")
			allValid = false
		} else if cfg.Database.Database == "" {
			log.Error().Msg("❌ Database name not configured")
			allValid = false
		} else {
			if cfg.App.Environment != "development" && cfg.Database.Password == "" {
				log.Error().
					Str("environment", cfg.App.Environment).
					Msg("❌ Database password not configured (required outside development)")
				allValid = false
			} else {
				log.Info().
					Str("host", cfg.Database.Host).
					Str("database", cfg.Database.Database).
					Str("ssl_mode", cfg.Database.SSLMode).
					Msg("✓ Database configuration present")
			}
		}
	}

	// Telegram alerts
	if cfg.Telegram.Enabled {
		log.Info().Msg("Checking Telegram configuration...")
		checked++
		if cfg.Telegram.Token == "" {
			log.Error().Msg("❌ Telegram is enabled but no bot token is configured")
			allValid = false
		} else if cfg.Telegram.ChatID == 0 {
			log.Error().Msg("❌ Telegram is enabled but no chat_id is configured")
			allValid = false
		} else {
			log.Info().Int64("chat_id", cfg.Telegram.ChatID).Msg("✓ Telegram configuration present")
		}
	}

	// Summary
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if allValid {
		log.Info().
			Int("groups_checked", checked).
			Msg("✅ Configuration verified successfully")
		return 0
	}
	log.Error().
		Int("groups_checked", checked).
		Msg("❌ Configuration is invalid or incomplete")
	log.Error().Msg("Please fix the above issues before starting the daemon")
	return 1
}
