// Package bus publishes engine output onto NATS so downstream
// consumers (dashboards, journals, paper traders) can follow along
// without touching the broker gateway.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/fxfunk/internal/analysis"
	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/metrics"
	"github.com/ajitpratap0/fxfunk/internal/tfqe"
)

// Config configures the event bus
type Config struct {
	URL    string
	Prefix string // Subject prefix (default: "fx")
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		URL:    nats.DefaultURL,
		Prefix: "fx",
	}
}

// Event is the envelope every published message rides in.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	Symbol    string          `json:"symbol,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Event kinds.
const (
	KindSignal   = "signal"
	KindVerdict  = "verdict"
	KindQuote    = "quote"
	KindSnapshot = "snapshot"
)

// Bus is a publish-only NATS connection. Consumers subscribe with
// plain NATS clients; the engine never reads its own output back.
type Bus struct {
	nc     *nats.Conn
	prefix string
}

// Connect establishes the NATS connection
func Connect(config Config) (*Bus, error) {
	nc, err := nats.Connect(
		config.URL,
		nats.Name("fxfunk"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if config.Prefix == "" {
		config.Prefix = "fx"
	}

	log.Info().
		Str("nats_url", config.URL).
		Str("prefix", config.Prefix).
		Msg("Event bus connected")

	return &Bus{
		nc:     nc,
		prefix: config.Prefix,
	}, nil
}

// PublishSignal publishes a strategy evaluation.
// Subject pattern: {prefix}.signal.{source}.{symbol}
func (b *Bus) PublishSignal(ctx context.Context, source string, sig tfqe.Signal) error {
	subject := fmt.Sprintf("%s.%s.%s.%s", b.prefix, KindSignal, source, sig.Symbol)
	return b.publish(ctx, subject, KindSignal, sig.Symbol, sig)
}

// PublishVerdict publishes a multi-timeframe verdict.
// Subject pattern: {prefix}.verdict.{symbol}
func (b *Bus) PublishVerdict(ctx context.Context, v *analysis.Verdict) error {
	subject := fmt.Sprintf("%s.%s.%s", b.prefix, KindVerdict, v.Symbol)
	return b.publish(ctx, subject, KindVerdict, v.Symbol, v)
}

// PublishQuote publishes a live quote.
// Subject pattern: {prefix}.quote.{symbol}
func (b *Bus) PublishQuote(ctx context.Context, q market.Quote) error {
	subject := fmt.Sprintf("%s.%s.%s", b.prefix, KindQuote, q.Symbol)
	return b.publish(ctx, subject, KindQuote, q.Symbol, q)
}

// PublishSnapshot publishes the full engine snapshot.
// Subject pattern: {prefix}.snapshot
func (b *Bus) PublishSnapshot(ctx context.Context, snap interface{}) error {
	subject := fmt.Sprintf("%s.%s", b.prefix, KindSnapshot)
	return b.publish(ctx, subject, KindSnapshot, "", snap)
}

func (b *Bus) publish(ctx context.Context, subject, kind, symbol string, payload interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !b.nc.IsConnected() {
		return fmt.Errorf("event bus not connected")
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	event := Event{
		ID:        uuid.New(),
		Kind:      kind,
		Symbol:    symbol,
		Payload:   payloadJSON,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", kind, err)
	}
	metrics.RecordNATSPublished()

	log.Debug().
		Str("event_id", event.ID.String()).
		Str("kind", kind).
		Str("symbol", symbol).
		Str("subject", subject).
		Msg("Published event")

	return nil
}

// Connected reports whether the underlying connection is up.
func (b *Bus) Connected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Stats returns bus statistics for the health endpoint
func (b *Bus) Stats() map[string]interface{} {
	stats := make(map[string]interface{})

	if b.nc != nil {
		stats["connected"] = b.nc.IsConnected()
		stats["status"] = b.nc.Status().String()
		stats["connected_url"] = b.nc.ConnectedUrl()
		stats["out_msgs"] = b.nc.Stats().OutMsgs
		stats["out_bytes"] = b.nc.Stats().OutBytes
		stats["reconnects"] = b.nc.Stats().Reconnects
	}

	return stats
}

// Close flushes and closes the bus connection
func (b *Bus) Close() error {
	if b.nc != nil {
		if err := b.nc.Flush(); err != nil {
			log.Warn().Err(err).Msg("Event bus flush failed")
		}
		b.nc.Close()
		log.Info().Msg("Event bus closed")
	}
	return nil
}
