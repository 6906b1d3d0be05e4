package gmo

import (
	"context"
	"net/url"
	"strconv"
)

// Assets returns the margin account snapshot.
func (c *Client) Assets(ctx context.Context) (*Assets, error) {
	var data Assets
	if err := c.getPrivate(ctx, "/v1/account/assets", nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ActiveOrders lists working orders, optionally filtered by symbol.
func (c *Client) ActiveOrders(ctx context.Context, symbol string) ([]Order, error) {
	query := url.Values{}
	if symbol != "" {
		query.Set("symbol", symbol)
	}

	var data listWrapper[Order]
	if err := c.getPrivate(ctx, "/v1/activeOrders", query, &data); err != nil {
		return nil, err
	}
	return data.List, nil
}

// Executions returns the fills belonging to one order.
func (c *Client) Executions(ctx context.Context, orderID int64) ([]Execution, error) {
	query := url.Values{}
	query.Set("orderId", strconv.FormatInt(orderID, 10))

	var data listWrapper[Execution]
	if err := c.getPrivate(ctx, "/v1/executions", query, &data); err != nil {
		return nil, err
	}
	return data.List, nil
}

// LatestExecutions returns the most recent fills for a symbol, newest
// first, up to count (broker cap 100).
func (c *Client) LatestExecutions(ctx context.Context, symbol string, count int) ([]Execution, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	if count > 0 {
		query.Set("count", strconv.Itoa(count))
	}

	var data listWrapper[Execution]
	if err := c.getPrivate(ctx, "/v1/latestExecutions", query, &data); err != nil {
		return nil, err
	}
	return data.List, nil
}

// OpenPositions lists open positions, optionally filtered by symbol.
func (c *Client) OpenPositions(ctx context.Context, symbol string) ([]Position, error) {
	query := url.Values{}
	if symbol != "" {
		query.Set("symbol", symbol)
	}

	var data listWrapper[Position]
	if err := c.getPrivate(ctx, "/v1/openPositions", query, &data); err != nil {
		return nil, err
	}
	return data.List, nil
}

// PositionSummary returns the per-symbol, per-side position aggregates.
func (c *Client) PositionSummary(ctx context.Context, symbol string) ([]PositionSummary, error) {
	query := url.Values{}
	if symbol != "" {
		query.Set("symbol", symbol)
	}

	var data listWrapper[PositionSummary]
	if err := c.getPrivate(ctx, "/v1/positionSummary", query, &data); err != nil {
		return nil, err
	}
	return data.List, nil
}

type wsTokenRequest struct {
	Token string `json:"token"`
}

// CreateWSToken mints an access token for the private WebSocket. The
// broker caps live tokens at five per account, so creation is never
// retried: a lost response would leak a token against the cap.
func (c *Client) CreateWSToken(ctx context.Context) (string, error) {
	var token string
	if err := c.writePrivate(ctx, "POST", "/v1/ws-auth", nil, &token, false); err != nil {
		return "", err
	}
	return token, nil
}

// ExtendWSToken resets the token's 60-minute lifetime.
func (c *Client) ExtendWSToken(ctx context.Context, token string) error {
	return c.writePrivate(ctx, "PUT", "/v1/ws-auth", wsTokenRequest{Token: token}, nil, true)
}

// RevokeWSToken invalidates the token on graceful shutdown.
func (c *Client) RevokeWSToken(ctx context.Context, token string) error {
	return c.writePrivate(ctx, "DELETE", "/v1/ws-auth", wsTokenRequest{Token: token}, nil, true)
}
