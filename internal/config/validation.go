package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateGMO()...)
	errors = append(errors, c.validateLimits()...)
	errors = append(errors, c.validateSymbols()...)
	errors = append(errors, c.validateTrading()...)
	errors = append(errors, c.validateTFQE()...)
	errors = append(errors, c.validatePublisher()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateTelegram()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: "Environment is required (development, staging, or production)",
		})
	} else {
		validEnvs := []string{"development", "staging", "production"}
		valid := false
		for _, env := range validEnvs {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
			})
		}
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	return errors
}

func (c *Config) validateGMO() ValidationErrors {
	var errors ValidationErrors

	urls := []struct {
		field  string
		value  string
		scheme string
	}{
		{"gmo.rest_public_url", c.GMO.RESTPublicURL, "http"},
		{"gmo.rest_private_url", c.GMO.RESTPrivateURL, "http"},
		{"gmo.ws_public_url", c.GMO.WSPublicURL, "ws"},
		{"gmo.ws_private_url", c.GMO.WSPrivateURL, "ws"},
	}
	for _, u := range urls {
		if u.value == "" {
			errors = append(errors, ValidationError{
				Field:   u.field,
				Message: "Endpoint URL is required",
			})
			continue
		}
		if !strings.HasPrefix(u.value, u.scheme) {
			errors = append(errors, ValidationError{
				Field:   u.field,
				Message: fmt.Sprintf("Endpoint URL must start with '%s'", u.scheme),
			})
		}
	}

	if c.GMO.ClockSkewMaxMS <= 0 {
		errors = append(errors, ValidationError{
			Field:   "gmo.clock_skew_max_ms",
			Message: "Clock skew threshold must be greater than 0",
		})
	}

	return errors
}

func (c *Config) validateLimits() ValidationErrors {
	var errors ValidationErrors

	limits := []struct {
		field string
		value int
	}{
		{"limits.get_per_sec", c.Limits.GetPerSec},
		{"limits.post_per_sec", c.Limits.PostPerSec},
		{"limits.ws_sub_per_sec", c.Limits.WSSubPerSec},
	}
	for _, l := range limits {
		if l.value < 1 {
			errors = append(errors, ValidationError{
				Field:   l.field,
				Message: "Rate limit must be at least 1 per second",
			})
		}
	}

	return errors
}

func (c *Config) validateSymbols() ValidationErrors {
	var errors ValidationErrors

	if len(c.Symbols) == 0 {
		errors = append(errors, ValidationError{
			Field:   "symbols",
			Message: "At least one symbol is required",
		})
	}

	for _, symbol := range c.Symbols {
		parts := strings.Split(symbol, "_")
		if len(parts) != 2 || len(parts[0]) != 3 || len(parts[1]) != 3 {
			errors = append(errors, ValidationError{
				Field:   "symbols",
				Message: fmt.Sprintf("Invalid symbol '%s'. Expected BASE_QUOTE form such as USD_JPY", symbol),
			})
		}
	}

	return errors
}

func (c *Config) validateTrading() ValidationErrors {
	var errors ValidationErrors

	if c.Trading.Enabled {
		if c.API.Key == "" {
			errors = append(errors, ValidationError{
				Field:   "api.key",
				Message: "API key is required when trading is enabled",
			})
		}
		if c.API.Secret == "" {
			errors = append(errors, ValidationError{
				Field:   "api.secret",
				Message: "API secret is required when trading is enabled",
			})
		}
		if c.Trading.Size <= 0 {
			errors = append(errors, ValidationError{
				Field:   "trading.size",
				Message: "Order size must be greater than 0",
			})
		}
	}

	return errors
}

func (c *Config) validateTFQE() ValidationErrors {
	var errors ValidationErrors

	if c.TFQE.SessionStartHour < 0 || c.TFQE.SessionStartHour > 24 {
		errors = append(errors, ValidationError{
			Field:   "tfqe.session_start_hour",
			Message: fmt.Sprintf("Invalid hour %d. Must be between 0-24", c.TFQE.SessionStartHour),
		})
	}

	if c.TFQE.SessionEndHour < 0 || c.TFQE.SessionEndHour > 24 {
		errors = append(errors, ValidationError{
			Field:   "tfqe.session_end_hour",
			Message: fmt.Sprintf("Invalid hour %d. Must be between 0-24", c.TFQE.SessionEndHour),
		})
	}

	if c.TFQE.SessionStartHour >= c.TFQE.SessionEndHour {
		errors = append(errors, ValidationError{
			Field:   "tfqe.session_start_hour",
			Message: "Session start must be before session end",
		})
	}

	multiples := []struct {
		field string
		value float64
	}{
		{"tfqe.stop_atr", c.TFQE.StopATR},
		{"tfqe.tp1_atr", c.TFQE.TP1ATR},
		{"tfqe.tp2_atr", c.TFQE.TP2ATR},
	}
	for _, m := range multiples {
		if m.value <= 0 {
			errors = append(errors, ValidationError{
				Field:   m.field,
				Message: "ATR multiple must be greater than 0",
			})
		}
	}

	if c.TFQE.TP2ATR < c.TFQE.TP1ATR {
		errors = append(errors, ValidationError{
			Field:   "tfqe.tp2_atr",
			Message: "Second target must be at or beyond the first target",
		})
	}

	return errors
}

func (c *Config) validatePublisher() ValidationErrors {
	var errors ValidationErrors

	if c.Publisher.MultiTFIntervalSec < 1 {
		errors = append(errors, ValidationError{
			Field:   "publisher.multi_tf_interval_sec",
			Message: "Refresh interval must be at least 1 second",
		})
	}

	if c.Publisher.TFQEGraceSec < 0 {
		errors = append(errors, ValidationError{
			Field:   "publisher.tfqe_grace_sec",
			Message: "Grace period must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateServer() ValidationErrors {
	var errors ValidationErrors

	if c.Server.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "Server port is required",
		})
	} else if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Server.Port),
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if !c.Database.Enabled {
		return errors
	}

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Database.Port),
		})
	}

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in non-development environments",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if !c.Redis.Enabled {
		return errors
	}

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if !c.NATS.Enabled {
		return errors
	}

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://'",
		})
	}

	if c.NATS.SubjectPrefix == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.subject_prefix",
			Message: "Subject prefix is required",
		})
	}

	return errors
}

func (c *Config) validateTelegram() ValidationErrors {
	var errors ValidationErrors

	if !c.Telegram.Enabled {
		return errors
	}

	if c.Telegram.Token == "" {
		errors = append(errors, ValidationError{
			Field:   "telegram.token",
			Message: "Bot token is required when Telegram alerts are enabled",
		})
	}

	if c.Telegram.ChatID == 0 {
		errors = append(errors, ValidationError{
			Field:   "telegram.chat_id",
			Message: "Chat ID is required when Telegram alerts are enabled",
		})
	}

	if c.Telegram.MinConfidence < 0 || c.Telegram.MinConfidence > 100 {
		errors = append(errors, ValidationError{
			Field:   "telegram.min_confidence",
			Message: fmt.Sprintf("Invalid min_confidence %.1f. Must be between 0-100", c.Telegram.MinConfidence),
		})
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment == "production" {
		secretErrors := ValidateProductionSecrets(c)
		errors = append(errors, secretErrors...)

		if c.Database.Enabled && c.Database.SSLMode == "disable" {
			errors = append(errors, ValidationError{
				Field:   "database.ssl_mode",
				Message: "SSL must be enabled for database in production",
			})
		}
	}

	return errors
}
