package gmo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"context"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 4 << 20

	// Maintenance breaker: trip on the first maintenance response,
	// probe again after the open timeout.
	maintenanceOpenTimeout = 30 * time.Second
)

// Config assembles everything the REST client needs. Credentials may
// be empty for a public-data-only deployment; private calls then fail
// with a config error instead of a rejected signature.
type Config struct {
	PublicURL    string
	PrivateURL   string
	APIKey       string
	APISecret    string
	Limits       Limits
	MaxClockSkew time.Duration
	HTTPTimeout  time.Duration
	Retry        RetryConfig
}

// Client is the typed GMO Coin FX REST client. All requests flow
// through the shared rate limiter and the maintenance breaker.
type Client struct {
	http       *http.Client
	publicURL  string
	privateURL string
	signer     *Signer
	limiter    *Limiter
	breaker    *gobreaker.CircuitBreaker
	retry      RetryConfig
	logger     zerolog.Logger
}

// NewClient builds a client. The limiter is shared with the WebSocket
// feeds so the process as a whole stays inside the broker budgets.
func NewClient(cfg Config, limiter *Limiter, logger zerolog.Logger) (*Client, error) {
	if cfg.PublicURL == "" || cfg.PrivateURL == "" {
		return nil, &Error{Kind: KindConfig, Op: "client", Msg: "REST endpoint URLs are not configured"}
	}
	if limiter == nil {
		limiter = NewLimiter(cfg.Limits)
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	c := &Client{
		http:       &http.Client{Timeout: cfg.HTTPTimeout},
		publicURL:  cfg.PublicURL,
		privateURL: cfg.PrivateURL,
		limiter:    limiter,
		retry:      cfg.Retry,
		logger:     logger,
	}

	if cfg.APIKey != "" && cfg.APISecret != "" {
		signer, err := NewSigner(cfg.APIKey, cfg.APISecret, cfg.MaxClockSkew)
		if err != nil {
			return nil, err
		}
		c.signer = signer
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmo_maintenance",
		MaxRequests: 1,
		Timeout:     maintenanceOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		// Only maintenance responses count against the breaker; every
		// other failure is handled by the retry policy or the caller.
		IsSuccessful: func(err error) bool {
			return KindOf(err) != KindMaintenance
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Maintenance breaker state changed")
			metrics.SetMaintenanceBreakerState(to.String())
		},
	})

	return c, nil
}

// Limiter exposes the shared request limiter for the WebSocket feeds.
func (c *Client) Limiter() *Limiter {
	return c.limiter
}

// Signer exposes the signer's clock-skew estimate for health reporting.
// Returns nil when the client runs without credentials.
func (c *Client) Signer() *Signer {
	return c.signer
}

// getPublic performs an unauthenticated GET with retries.
func (c *Client) getPublic(ctx context.Context, path string, query url.Values, out interface{}) error {
	return withRetry(ctx, c.retry, func() error {
		return c.do(ctx, ScopePublic, http.MethodGet, path, query, nil, out)
	})
}

// getPrivate performs a signed GET with retries.
func (c *Client) getPrivate(ctx context.Context, path string, query url.Values, out interface{}) error {
	return withRetry(ctx, c.retry, func() error {
		return c.do(ctx, ScopePrivate, http.MethodGet, path, query, nil, out)
	})
}

// writePrivate performs a signed mutating request. Retries are applied
// only when the caller marks the request idempotent, which for order
// placement means a client order ID is attached; a write that times
// out without one may have been accepted, and re-sending it would risk
// a duplicate position.
func (c *Client) writePrivate(ctx context.Context, method, path string, payload interface{}, out interface{}, idempotent bool) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return &Error{Kind: KindInternal, Op: method + " " + path, Msg: "marshal request body", Err: err}
		}
	}

	if !idempotent {
		return c.do(ctx, ScopePrivate, method, path, nil, body, out)
	}
	return withRetry(ctx, c.retry, func() error {
		return c.do(ctx, ScopePrivate, method, path, nil, body, out)
	})
}

// do executes one attempt: limiter, breaker, round trip.
func (c *Client) do(ctx context.Context, scope Scope, method, path string, query url.Values, body []byte, out interface{}) error {
	op := method + " " + path
	verb := verbFor(method)

	if err := c.limiter.Wait(ctx, scope, verb); err != nil {
		return err
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, scope, method, path, query, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &Error{Kind: KindMaintenance, Op: op, Msg: "broker under maintenance, requests suspended"}
	}

	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	metrics.RecordBrokerRequest(scope.String(), verb.String(), result, time.Since(start))

	c.logger.Debug().
		Str("op", op).
		Str("result", result).
		Dur("duration", time.Since(start)).
		Msg("Broker request")

	return err
}

func (c *Client) roundTrip(ctx context.Context, scope Scope, method, path string, query url.Values, body []byte, out interface{}) error {
	op := method + " " + path

	base := c.publicURL
	if scope == ScopePrivate {
		base = c.privateURL
	}
	target := base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &Error{Kind: KindInternal, Op: op, Msg: "build request", Err: err}
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	if scope == ScopePrivate {
		if c.signer == nil {
			return &Error{Kind: KindConfig, Op: op, Msg: "private API requires credentials"}
		}
		headers, err := c.signer.Sign(method, path, body)
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Op: op, Msg: "http 429"}
	case resp.StatusCode >= 500:
		return &Error{Kind: KindTransport, Op: op, Msg: fmt.Sprintf("http %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindAuth, Op: op, Msg: fmt.Sprintf("http %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf("http %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &Error{Kind: KindTransport, Op: op, Msg: "malformed response body", Err: err}
	}

	// Every envelope carries the broker clock; feeding it to the
	// signer keeps the skew estimate alive even when private requests
	// are being refused locally.
	if c.signer != nil {
		if st := env.serverTime(); !st.IsZero() {
			c.signer.ObserveServerTime(st)
			metrics.SetClockSkew(float64(c.signer.Skew().Milliseconds()))
		}
	}

	if env.Status != 0 {
		var code, msg string
		if len(env.Messages) > 0 {
			code = env.Messages[0].Code
			msg = env.Messages[0].Str
		}
		return &Error{Kind: kindForCode(code), Code: code, Op: op, Msg: msg}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &Error{Kind: KindInternal, Op: op, Msg: "unexpected data shape", Err: err}
		}
	}

	return nil
}
