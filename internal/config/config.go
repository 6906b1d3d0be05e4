package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	API        APIConfig        `mapstructure:"api"`
	GMO        GMOConfig        `mapstructure:"gmo"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Symbols    []string         `mapstructure:"symbols"`
	TFQE       TFQEConfig       `mapstructure:"tfqe"`
	Publisher  PublisherConfig  `mapstructure:"publisher"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// APIConfig contains the GMO Coin API credentials. These never appear in
// logs; the signer is the only component that reads Secret.
type APIConfig struct {
	Key    string `mapstructure:"key"`
	Secret string `mapstructure:"secret"`
}

// GMOConfig contains GMO Coin endpoint settings
type GMOConfig struct {
	RESTPublicURL  string `mapstructure:"rest_public_url"`
	RESTPrivateURL string `mapstructure:"rest_private_url"`
	WSPublicURL    string `mapstructure:"ws_public_url"`
	WSPrivateURL   string `mapstructure:"ws_private_url"`
	ClockSkewMaxMS int64  `mapstructure:"clock_skew_max_ms"`
}

// LimitsConfig contains broker rate limit settings (requests per second)
type LimitsConfig struct {
	GetPerSec   int `mapstructure:"get_per_sec"`
	PostPerSec  int `mapstructure:"post_per_sec"`
	WSSubPerSec int `mapstructure:"ws_sub_per_sec"`
}

// TradingConfig contains order execution settings
type TradingConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Size    float64 `mapstructure:"size"` // order size in base currency units
}

// TFQEConfig contains the quick-entry strategy tuning used when no
// preset file overrides it: the session window and the ATR multiples.
// The trend and pullback gates themselves are fixed by the strategy.
type TFQEConfig struct {
	SessionStartHour int     `mapstructure:"session_start_hour"` // JST
	SessionEndHour   int     `mapstructure:"session_end_hour"`   // JST, exclusive
	StopATR          float64 `mapstructure:"stop_atr"`
	TP1ATR           float64 `mapstructure:"tp1_atr"`
	TP2ATR           float64 `mapstructure:"tp2_atr"`
}

// PublisherConfig contains snapshot publishing cadence settings
type PublisherConfig struct {
	MultiTFIntervalSec int `mapstructure:"multi_tf_interval_sec"`
	TFQEGraceSec       int `mapstructure:"tfqe_grace_sec"` // delay past the M15 boundary
}

// StrategyConfig contains strategy preset settings
type StrategyConfig struct {
	PresetPath string `mapstructure:"preset_path"`
}

// ServerConfig contains the consumer HTTP server settings
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig contains PostgreSQL settings for the candle archive
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the quote cache
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// TelegramConfig contains signal alert settings
type TelegramConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Token         string  `mapstructure:"token"`
	ChatID        int64   `mapstructure:"chat_id"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("fxfunk")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides (FXFUNK_API_KEY -> api.key)
	v.SetEnvPrefix("FXFUNK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "fxfunk")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// GMO endpoint defaults
	v.SetDefault("gmo.rest_public_url", "https://forex-api.coin.z.com/public")
	v.SetDefault("gmo.rest_private_url", "https://forex-api.coin.z.com/private")
	v.SetDefault("gmo.ws_public_url", "wss://forex-api.coin.z.com/ws/public/v1")
	v.SetDefault("gmo.ws_private_url", "wss://forex-api.coin.z.com/ws/private/v1")
	v.SetDefault("gmo.clock_skew_max_ms", 5000)

	// Broker rate limits
	v.SetDefault("limits.get_per_sec", 6)
	v.SetDefault("limits.post_per_sec", 1)
	v.SetDefault("limits.ws_sub_per_sec", 1)

	// Trading defaults: signal-only unless trading is explicitly enabled
	v.SetDefault("trading.enabled", false)
	v.SetDefault("trading.size", 10000)

	// Watched symbols
	v.SetDefault("symbols", []string{"USD_JPY"})

	// Quick-entry strategy defaults
	v.SetDefault("tfqe.session_start_hour", 16)
	v.SetDefault("tfqe.session_end_hour", 24)
	v.SetDefault("tfqe.stop_atr", 1.5)
	v.SetDefault("tfqe.tp1_atr", 1.0)
	v.SetDefault("tfqe.tp2_atr", 2.0)

	// Publisher cadence
	v.SetDefault("publisher.multi_tf_interval_sec", 60)
	v.SetDefault("publisher.tfqe_grace_sec", 2)

	// Strategy presets
	v.SetDefault("strategy.preset_path", "configs/presets.yaml")

	// Consumer HTTP server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	// Database defaults (candle archive is optional)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "fxfunk")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults (quote cache is optional)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "fx")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.min_confidence", 70.0)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetServerAddr returns the consumer HTTP server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxClockSkew returns the clock-skew guard threshold as a duration
func (c *GMOConfig) MaxClockSkew() time.Duration {
	return time.Duration(c.ClockSkewMaxMS) * time.Millisecond
}

// MultiTFInterval returns the multi-timeframe refresh cadence
func (c *PublisherConfig) MultiTFInterval() time.Duration {
	return time.Duration(c.MultiTFIntervalSec) * time.Second
}

// TFQEGrace returns the delay applied past each M15 boundary before the
// quick-entry evaluation runs, giving the candle store time to rotate.
func (c *PublisherConfig) TFQEGrace() time.Duration {
	return time.Duration(c.TFQEGraceSec) * time.Second
}
