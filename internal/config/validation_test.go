//nolint:goconst // Test files use repeated strings for clarity
package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "fxfunk",
			Version:     "0.3.0",
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "console",
		},
		API: APIConfig{
			Key:    "bI9nX4pQ2vL7mR5wK8zF3g",
			Secret: "sK9tY4qP2hL7nR5wJ8zC3m",
		},
		GMO: GMOConfig{
			RESTPublicURL:  "https://forex-api.coin.z.com/public",
			RESTPrivateURL: "https://forex-api.coin.z.com/private",
			WSPublicURL:    "wss://forex-api.coin.z.com/ws/public/v1",
			WSPrivateURL:   "wss://forex-api.coin.z.com/ws/private/v1",
			ClockSkewMaxMS: 5000,
		},
		Limits: LimitsConfig{
			GetPerSec:   6,
			PostPerSec:  1,
			WSSubPerSec: 1,
		},
		Trading: TradingConfig{
			Enabled: false,
			Size:    10000,
		},
		Symbols: []string{"USD_JPY", "EUR_USD"},
		TFQE: TFQEConfig{
			SessionStartHour: 16,
			SessionEndHour:   24,
			StopATR:          1.5,
			TP1ATR:           1.0,
			TP2ATR:           2.0,
		},
		Publisher: PublisherConfig{
			MultiTFIntervalSec: 60,
			TFQEGraceSec:       2,
		},
		Strategy: StrategyConfig{
			PresetPath: "configs/presets.yaml",
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "secure_pw_for_dev",
			Database: "fxfunk",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Redis: RedisConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    6379,
			DB:      0,
		},
		NATS: NATSConfig{
			Enabled:       true,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "fx",
		},
		Telegram: TelegramConfig{
			Enabled:       false,
			MinConfidence: 70,
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 9100,
			EnableMetrics:  true,
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := getValidConfig()
	err := cfg.Validate()
	assert.NoError(t, err, "Valid configuration should not produce errors")
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing app name",
			modify: func(c *Config) {
				c.App.Name = ""
			},
			expectError: "app.name",
		},
		{
			name: "missing environment",
			modify: func(c *Config) {
				c.App.Environment = ""
			},
			expectError: "app.environment",
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.App.Environment = "invalid_env"
			},
			expectError: "Invalid environment",
		},
		{
			name: "missing log level",
			modify: func(c *Config) {
				c.App.LogLevel = ""
			},
			expectError: "app.log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateGMO(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing public REST URL",
			modify: func(c *Config) {
				c.GMO.RESTPublicURL = ""
			},
			expectError: "gmo.rest_public_url",
		},
		{
			name: "bad websocket scheme",
			modify: func(c *Config) {
				c.GMO.WSPublicURL = "https://forex-api.coin.z.com/ws/public/v1"
			},
			expectError: "gmo.ws_public_url",
		},
		{
			name: "zero clock skew",
			modify: func(c *Config) {
				c.GMO.ClockSkewMaxMS = 0
			},
			expectError: "gmo.clock_skew_max_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateLimits(t *testing.T) {
	cfg := getValidConfig()
	cfg.Limits.GetPerSec = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limits.get_per_sec")
}

func TestValidateSymbols(t *testing.T) {
	tests := []struct {
		name        string
		symbols     []string
		expectError bool
	}{
		{"valid pairs", []string{"USD_JPY", "EUR_USD", "GBP_JPY"}, false},
		{"empty list", []string{}, true},
		{"missing underscore", []string{"USDJPY"}, true},
		{"short leg", []string{"US_JPY"}, true},
		{"extra separator", []string{"USD_JPY_X"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			cfg.Symbols = tt.symbols
			err := cfg.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "symbols")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTrading(t *testing.T) {
	t.Run("signal-only mode needs no credentials", func(t *testing.T) {
		cfg := getValidConfig()
		cfg.Trading.Enabled = false
		cfg.API.Key = ""
		cfg.API.Secret = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("live trading requires credentials", func(t *testing.T) {
		cfg := getValidConfig()
		cfg.Trading.Enabled = true
		cfg.API.Key = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api.key")
	})

	t.Run("live trading requires positive size", func(t *testing.T) {
		cfg := getValidConfig()
		cfg.Trading.Enabled = true
		cfg.Trading.Size = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "trading.size")
	})
}

func TestValidateTFQE(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "session start after end",
			modify: func(c *Config) {
				c.TFQE.SessionStartHour = 24
				c.TFQE.SessionEndHour = 16
			},
			expectError: "tfqe.session_start_hour",
		},
		{
			name: "hour out of range",
			modify: func(c *Config) {
				c.TFQE.SessionEndHour = 25
			},
			expectError: "tfqe.session_end_hour",
		},
		{
			name: "zero stop multiple",
			modify: func(c *Config) {
				c.TFQE.StopATR = 0
			},
			expectError: "tfqe.stop_atr",
		},
		{
			name: "second target below first",
			modify: func(c *Config) {
				c.TFQE.TP2ATR = 0.5
			},
			expectError: "tfqe.tp2_atr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateServer(t *testing.T) {
	cfg := getValidConfig()
	cfg.Server.Port = 70000
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateDatabaseDisabledSkipsChecks(t *testing.T) {
	cfg := getValidConfig()
	cfg.Database.Enabled = false
	cfg.Database.Host = ""
	cfg.Database.User = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateDatabaseEnabled(t *testing.T) {
	cfg := getValidConfig()
	cfg.Database.Host = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestValidateNATS(t *testing.T) {
	t.Run("bad scheme", func(t *testing.T) {
		cfg := getValidConfig()
		cfg.NATS.URL = "http://localhost:4222"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nats.url")
	})

	t.Run("disabled skips checks", func(t *testing.T) {
		cfg := getValidConfig()
		cfg.NATS.Enabled = false
		cfg.NATS.URL = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestValidateTelegram(t *testing.T) {
	cfg := getValidConfig()
	cfg.Telegram.Enabled = true
	cfg.Telegram.Token = ""
	cfg.Telegram.ChatID = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")
	assert.Contains(t, err.Error(), "telegram.chat_id")
}

func TestValidateProductionRequirements(t *testing.T) {
	cfg := getValidConfig()
	cfg.App.Environment = "production"
	cfg.Database.Password = "MyStr0ng_P@zzw0rd!"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.ssl_mode")

	cfg.Database.SSLMode = "require"
	assert.NoError(t, cfg.Validate())
}

func TestValidationErrorsFormat(t *testing.T) {
	errs := ValidationErrors{
		{Field: "api.key", Message: "API key is required when trading is enabled"},
		{Field: "server.port", Message: "Server port is required"},
	}

	msg := errs.Error()
	assert.True(t, strings.Contains(msg, "2 error(s)"))
	assert.True(t, strings.Contains(msg, "api.key"))
	assert.True(t, strings.Contains(msg, "server.port"))

	assert.Empty(t, ValidationErrors{}.Error())
}
