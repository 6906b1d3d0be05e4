package gmo

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

// Tokens live 60 minutes; renewing at 50 leaves a full reconnect cycle
// of slack before expiry.
const tokenRenewInterval = 50 * time.Minute

// PrivateStream holds the account event feed: executions, order
// transitions, position changes and periodic position summaries,
// authenticated by a ws-auth token that the stream mints, renews and
// revokes itself.
type PrivateStream struct {
	url        string
	client     *Client
	limiter    *Limiter
	dispatcher *Dispatcher
	logger     zerolog.Logger

	mu       sync.Mutex
	token    string
	tokenBad bool
}

// NewPrivateStream builds the private stream. It does not connect;
// call Run.
func NewPrivateStream(url string, client *Client, limiter *Limiter, d *Dispatcher, logger zerolog.Logger) *PrivateStream {
	return &PrivateStream{
		url:        url,
		client:     client,
		limiter:    limiter,
		dispatcher: d,
		logger:     logger.With().Str("component", "ws_private").Logger(),
	}
}

// Run connects and pumps account events into the dispatcher until ctx
// ends. The access token is renewed in the background and replaced
// whenever the broker reports it invalid; the stream revokes it on the
// way out.
func (s *PrivateStream) Run(ctx context.Context) error {
	go s.renewLoop(ctx)
	defer s.revoke()

	session := &wsSession{
		name:   "private",
		logger: s.logger,
		dial:   s.dial,
		resub:  s.subscribeAll,
		handle: s.handleMessage,
	}
	return session.run(ctx)
}

func (s *PrivateStream) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := s.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = wsHandshakeWait
	conn, resp, err := dialer.DialContext(ctx, s.url+"/"+token, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			s.invalidateToken()
			return nil, &Error{Kind: KindAuth, Op: "ws private dial", Msg: "access token rejected", Err: err}
		}
		return nil, transportError("ws private dial", err)
	}
	return conn, nil
}

// ensureToken returns a usable token, minting a fresh one when none
// exists or the current one was reported invalid. The stale token is
// revoked first: the broker caps live tokens at five per account.
func (s *PrivateStream) ensureToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	token, bad := s.token, s.tokenBad
	s.mu.Unlock()

	if token != "" && !bad {
		return token, nil
	}

	if token != "" {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.client.RevokeWSToken(rctx, token); err != nil {
			s.logger.Debug().Err(err).Msg("Best-effort revoke of stale token failed")
		}
		cancel()
	}

	fresh, err := s.client.CreateWSToken(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.token = fresh
	s.tokenBad = false
	s.mu.Unlock()

	s.logger.Info().Msg("Minted private stream access token")
	return fresh, nil
}

func (s *PrivateStream) invalidateToken() {
	s.mu.Lock()
	s.tokenBad = true
	s.mu.Unlock()
}

// renewLoop extends the token before its 60-minute expiry. A failed
// renewal is not fatal here: an expired token kills the connection and
// the dial path mints a replacement.
func (s *PrivateStream) renewLoop(ctx context.Context) {
	ticker := time.NewTicker(tokenRenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			token, bad := s.token, s.tokenBad
			s.mu.Unlock()
			if token == "" || bad {
				continue
			}

			if err := s.client.ExtendWSToken(ctx, token); err != nil {
				if KindOf(err) == KindAuth {
					s.invalidateToken()
				}
				s.logger.Warn().Err(err).Msg("Token renewal failed")
				continue
			}
			s.logger.Debug().Msg("Extended private stream access token")
		}
	}
}

// revoke invalidates the token at shutdown. Run's ctx is already dead
// by the time this runs, so it uses its own deadline.
func (s *PrivateStream) revoke() {
	s.mu.Lock()
	token := s.token
	s.token = ""
	s.mu.Unlock()
	if token == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.RevokeWSToken(ctx, token); err != nil {
		s.logger.Warn().Err(err).Msg("Token revoke on shutdown failed")
		return
	}
	s.logger.Info().Msg("Revoked private stream access token")
}

func (s *PrivateStream) subscribeAll(ctx context.Context, conn *websocket.Conn) error {
	subs := []subscribeRequest{
		{Command: "subscribe", Channel: "executionEvents"},
		{Command: "subscribe", Channel: "orderEvents"},
		{Command: "subscribe", Channel: "positionEvents"},
		{Command: "subscribe", Channel: "positionSummaryEvents", Option: "PERIODIC"},
	}
	for _, req := range subs {
		if err := sendSubscribe(ctx, conn, s.limiter, req); err != nil {
			return err
		}
		s.logger.Debug().Str("channel", req.Channel).Msg("Subscribed to account channel")
	}
	return nil
}

func (s *PrivateStream) handleMessage(ctx context.Context, msg []byte) error {
	var frame channelFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed private frame")
		return nil
	}

	if frame.Error != "" {
		code := wsErrorCode(frame.Error)
		if code == codeAuthSignature {
			// Token expired or was revoked elsewhere. Reconnect with a
			// fresh one.
			s.invalidateToken()
			return &Error{Kind: KindAuth, Op: "ws private", Code: code, Msg: "access token invalid"}
		}
		s.logger.Error().
			Str("code", code).
			Str("error", frame.Error).
			Msg("Private stream error frame")
		return nil
	}

	metrics.RecordWSMessage("private", frame.Channel)

	switch frame.Channel {
	case "executionEvents":
		var ev ExecutionEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed execution event")
			return nil
		}
		return s.dispatcher.PublishExecution(ctx, ev)
	case "orderEvents":
		var ev OrderEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed order event")
			return nil
		}
		return s.dispatcher.PublishOrder(ctx, ev)
	case "positionEvents":
		var ev PositionEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed position event")
			return nil
		}
		return s.dispatcher.PublishPosition(ctx, ev)
	case "positionSummaryEvents":
		var ev PositionSummaryEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed position summary event")
			return nil
		}
		return s.dispatcher.PublishPositionSummary(ctx, ev)
	default:
		s.logger.Debug().Str("channel", frame.Channel).Msg("Ignoring unknown channel")
		return nil
	}
}
