package gmo

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

// PublicStream holds the quote feed: one connection subscribed to the
// ticker channel for every configured symbol.
type PublicStream struct {
	url        string
	symbols    []string
	limiter    *Limiter
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// NewPublicStream builds the public stream. It does not connect;
// call Run.
func NewPublicStream(url string, symbols []string, limiter *Limiter, d *Dispatcher, logger zerolog.Logger) *PublicStream {
	return &PublicStream{
		url:        url,
		symbols:    symbols,
		limiter:    limiter,
		dispatcher: d,
		logger:     logger.With().Str("component", "ws_public").Logger(),
	}
}

// Run connects and pumps quotes into the dispatcher until ctx ends,
// reconnecting with backoff and re-subscribing every symbol after each
// drop.
func (s *PublicStream) Run(ctx context.Context) error {
	session := &wsSession{
		name:   "public",
		logger: s.logger,
		dial: func(ctx context.Context) (*websocket.Conn, error) {
			dialer := *websocket.DefaultDialer
			dialer.HandshakeTimeout = wsHandshakeWait
			conn, _, err := dialer.DialContext(ctx, s.url, nil)
			if err != nil {
				return nil, transportError("ws public dial", err)
			}
			return conn, nil
		},
		resub:  s.subscribeAll,
		handle: s.handleMessage,
	}
	return session.run(ctx)
}

func (s *PublicStream) subscribeAll(ctx context.Context, conn *websocket.Conn) error {
	for _, symbol := range s.symbols {
		req := subscribeRequest{Command: "subscribe", Channel: "ticker", Symbol: symbol}
		if err := sendSubscribe(ctx, conn, s.limiter, req); err != nil {
			return err
		}
		s.logger.Debug().Str("symbol", symbol).Msg("Subscribed to ticker channel")
	}
	return nil
}

func (s *PublicStream) handleMessage(ctx context.Context, msg []byte) error {
	var frame channelFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed public frame")
		return nil
	}

	if frame.Error != "" {
		// Subscribe rejections come in-band. They are not fatal to the
		// connection; surviving subscriptions keep flowing.
		s.logger.Error().
			Str("code", wsErrorCode(frame.Error)).
			Str("error", frame.Error).
			Msg("Public stream error frame")
		return nil
	}

	metrics.RecordWSMessage("public", frame.Channel)

	if frame.Channel != "ticker" {
		return nil
	}

	var quote Ticker
	if err := json.Unmarshal(msg, &quote); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed ticker frame")
		return nil
	}

	s.dispatcher.PublishQuote(quote)
	return nil
}
