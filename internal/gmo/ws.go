package gmo

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

const (
	// The broker pings once a minute; three silent intervals mean the
	// connection is dead even if TCP still looks alive.
	wsPingInterval  = time.Minute
	wsMissedPings   = 3
	wsDeadAfter     = wsMissedPings * wsPingInterval
	wsWriteTimeout  = 10 * time.Second
	wsReconnectMin  = time.Second
	wsReconnectMax  = 60 * time.Second
	wsHandshakeWait = 10 * time.Second
)

// subscribeRequest is the channel command frame. Option carries
// "PERIODIC" for positionSummaryEvents.
type subscribeRequest struct {
	Command string `json:"command"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol,omitempty"`
	Option  string `json:"option,omitempty"`
}

// wsErrorFrame is the broker's in-band error shape, e.g.
// {"error": "ERR-5003 Requests are too many."}.
type wsErrorFrame struct {
	Error string `json:"error"`
}

// wsErrorCode extracts the leading ERR-NNNN token from an error frame.
func wsErrorCode(msg string) string {
	if i := strings.IndexByte(msg, ' '); i > 0 {
		return msg[:i]
	}
	return msg
}

// channelFrame peeks the routing fields shared by every data frame.
type channelFrame struct {
	Channel string `json:"channel"`
	Error   string `json:"error"`
}

// wsSession runs one stream: dial, subscribe, pump messages, reconnect
// with doubling backoff on any failure until ctx ends. The callbacks
// keep per-stream behavior (URL construction, token lifecycle, frame
// routing) out of the shared loop.
type wsSession struct {
	name    string
	logger  zerolog.Logger
	dial    func(ctx context.Context) (*websocket.Conn, error)
	resub   func(ctx context.Context, conn *websocket.Conn) error
	handle  func(ctx context.Context, msg []byte) error
	onClose func()
}

// run drives the session until ctx is cancelled. Every connection
// failure, subscribe failure or handler error tears the socket down
// and re-enters the backoff path with full re-subscription.
func (s *wsSession) run(ctx context.Context) error {
	backoff := wsReconnectMin

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("WebSocket dial failed")
			metrics.RecordWSReconnect(s.name)
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff)
			continue
		}

		metrics.SetWSConnected(s.name, true)
		s.logger.Info().Msg("WebSocket connected")
		backoff = wsReconnectMin

		err = s.serve(ctx, conn)
		conn.Close()
		metrics.SetWSConnected(s.name, false)
		if s.onClose != nil {
			s.onClose()
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("WebSocket connection lost, reconnecting")
		metrics.RecordWSReconnect(s.name)
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff)
	}
}

// serve subscribes and pumps frames until the connection dies. The
// read deadline is armed for three ping intervals and re-armed on any
// inbound traffic, data and pings alike.
func (s *wsSession) serve(ctx context.Context, conn *websocket.Conn) error {
	// Unblock the read pump promptly on shutdown.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.SetReadDeadline(time.Now().Add(wsDeadAfter)); err != nil {
		return err
	}
	conn.SetPingHandler(func(message string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsDeadAfter))
		err := conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(wsWriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	if err := s.resub(ctx, conn); err != nil {
		return err
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return transportError("ws "+s.name, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsDeadAfter))

		if err := s.handle(ctx, msg); err != nil {
			return err
		}
	}
}

// sendSubscribe pushes one channel command through the shared
// subscription budget and onto the wire.
func sendSubscribe(ctx context.Context, conn *websocket.Conn, limiter *Limiter, req subscribeRequest) error {
	if err := limiter.Wait(ctx, ScopePublic, VerbSubscribe); err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return transportError("ws subscribe "+req.Channel, err)
	}
	return nil
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > wsReconnectMax {
		return wsReconnectMax
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
