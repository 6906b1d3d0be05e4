// Package alerts fans operator-facing notifications out to the
// configured channels. Entry signals, consumer stalls and broker
// maintenance go through here; routine telemetry stays in metrics.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/fxfunk/internal/tfqe"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert represents an alert message
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Confidence returns the signal confidence carried in the metadata,
// or -1 when the alert is not confidence-scored.
func (a Alert) Confidence() float64 {
	switch c := a.Metadata["confidence"].(type) {
	case int:
		return float64(c)
	case float64:
		return c
	}
	return -1
}

// Alerter defines the interface for sending alerts
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager manages multiple alert channels
type Manager struct {
	alerters []Alerter
}

// NewManager creates a new alert manager
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{
		alerters: alerters,
	}
}

// Send sends an alert to all configured alerters
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}

	return lastErr
}

// SendCritical is a convenience method for sending critical alerts
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityCritical,
		Metadata: metadata,
	})
}

// SendWarning is a convenience method for sending warning alerts
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityWarning,
		Metadata: metadata,
	})
}

// SendInfo is a convenience method for sending info alerts
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityInfo,
		Metadata: metadata,
	})
}

// LogAlerter logs alerts using zerolog
type LogAlerter struct{}

// NewLogAlerter creates a new log-based alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Send sends an alert by logging it
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Log()

	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	case SeverityInfo:
		event = log.Info()
	}

	if alert.Metadata != nil {
		for key, value := range alert.Metadata {
			event = event.Interface(key, value)
		}
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(fmt.Sprintf("ALERT: %s", alert.Message))

	return nil
}

// Default global alert manager (can be replaced with custom configuration)
var defaultManager = NewManager(NewLogAlerter())

// GetDefaultManager returns the default alert manager
func GetDefaultManager() *Manager {
	return defaultManager
}

// SetDefaultManager sets the default alert manager
func SetDefaultManager(manager *Manager) {
	defaultManager = manager
}

// Helper functions for common alerts

// AlertEntrySignal announces a fresh BUY/SELL entry with its order
// arithmetic. Non-entry states never alert.
func AlertEntrySignal(ctx context.Context, sig tfqe.Signal) {
	if !sig.State.Entry() {
		return
	}

	_ = defaultManager.SendInfo(ctx,
		fmt.Sprintf("Entry Signal: %s %s", sig.State, sig.Symbol),
		fmt.Sprintf("%s %s @ %.3f | SL %.3f | TP1 %.3f | TP2 %.3f | risk %.1fp, reward %.1fp",
			sig.Symbol, sig.State, sig.Entry, sig.StopLoss, sig.TakeProfit1, sig.TakeProfit2,
			sig.RiskPips, sig.RewardPips,
		),
		map[string]interface{}{
			"symbol":     sig.Symbol,
			"signal":     string(sig.State),
			"entry":      sig.Entry,
			"stop_loss":  sig.StopLoss,
			"tp1":        sig.TakeProfit1,
			"tp2":        sig.TakeProfit2,
			"confidence": sig.Confidence,
			"h1_adx":     sig.H1ADX,
			"distance":   sig.Distance,
		})
}

// AlertConsumerStall fires when an account event channel has blocked
// past the watchdog window and events may back up into the stream.
func AlertConsumerStall(ctx context.Context, channel string) {
	_ = defaultManager.SendWarning(ctx, "Account Event Consumer Stalled", fmt.Sprintf(
		"Consumer of the %s channel has not drained for 5s; private stream backpressure imminent", channel,
	), map[string]interface{}{
		"channel": channel,
	})
}

// AlertMaintenance fires when the broker reports maintenance and the
// breaker opens.
func AlertMaintenance(ctx context.Context, status string) {
	_ = defaultManager.SendWarning(ctx, "Broker Maintenance", fmt.Sprintf(
		"Broker entered %s; private calls are suspended until the status clears", status,
	), map[string]interface{}{
		"status": status,
	})
}

// AlertOrderFailed sends an alert for order placement failure
func AlertOrderFailed(ctx context.Context, symbol, side string, size decimal.Decimal, err error) {
	_ = defaultManager.SendCritical(ctx, "Order Placement Failed", fmt.Sprintf(
		"Failed to place %s order for %s: %v", side, symbol, err,
	), map[string]interface{}{
		"symbol": symbol,
		"side":   side,
		"size":   size.String(),
		"error":  err.Error(),
	})
}

// AlertSystemError sends an alert for critical component errors
func AlertSystemError(ctx context.Context, component string, err error) {
	_ = defaultManager.SendCritical(ctx, "System Error", fmt.Sprintf(
		"Critical error in %s: %v", component, err,
	), map[string]interface{}{
		"component": component,
		"error":     err.Error(),
	})
}
