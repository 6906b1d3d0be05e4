package gmo

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewClientOrderID mints a broker-safe client order id. The broker
// accepts up to 36 characters of [a-zA-Z0-9-], which a UUID fills
// exactly; carrying one makes the create retryable because the broker
// dedupes on it.
func NewClientOrderID() string {
	return uuid.NewString()
}

// SpeedOrderRequest is an immediate market order with optional slippage
// bounds. A SELL rejects below LowerBound, a BUY above UpperBound.
type SpeedOrderRequest struct {
	Symbol        string           `json:"symbol"`
	Side          Side             `json:"side"`
	Size          decimal.Decimal  `json:"size"`
	ClientOrderID string           `json:"clientOrderId,omitempty"`
	LowerBound    *decimal.Decimal `json:"lowerBound,omitempty"`
	UpperBound    *decimal.Decimal `json:"upperBound,omitempty"`
}

// OrderRequest is a plain order: MARKET, LIMIT, STOP or OCO.
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Side          Side             `json:"side"`
	Size          decimal.Decimal  `json:"size"`
	ExecutionType ExecutionType    `json:"executionType"`
	ClientOrderID string           `json:"clientOrderId,omitempty"`
	LimitPrice    *decimal.Decimal `json:"limitPrice,omitempty"`
	StopPrice     *decimal.Decimal `json:"stopPrice,omitempty"`
}

// IFDOrderRequest chains an entry order with one settlement order that
// activates when the entry fills.
type IFDOrderRequest struct {
	Symbol              string          `json:"symbol"`
	ClientOrderID       string          `json:"clientOrderId,omitempty"`
	FirstSide           Side            `json:"firstSide"`
	FirstExecutionType  ExecutionType   `json:"firstExecutionType"`
	FirstSize           decimal.Decimal `json:"firstSize"`
	FirstPrice          decimal.Decimal `json:"firstPrice"`
	SecondExecutionType ExecutionType   `json:"secondExecutionType"`
	SecondSize          decimal.Decimal `json:"secondSize"`
	SecondPrice         decimal.Decimal `json:"secondPrice"`
}

// IFOOrderRequest chains an entry order with an OCO bracket (limit
// take-profit and stop-loss) that activates when the entry fills.
type IFOOrderRequest struct {
	Symbol             string           `json:"symbol"`
	ClientOrderID      string           `json:"clientOrderId,omitempty"`
	FirstSide          Side             `json:"firstSide"`
	FirstExecutionType ExecutionType    `json:"firstExecutionType"`
	FirstSize          decimal.Decimal  `json:"firstSize"`
	FirstPrice         *decimal.Decimal `json:"firstPrice,omitempty"`
	SecondSize         decimal.Decimal  `json:"secondSize"`
	SecondLimitPrice   decimal.Decimal  `json:"secondLimitPrice"`
	SecondStopPrice    decimal.Decimal  `json:"secondStopPrice"`
}

// ChangeOrderRequest amends the price of a working LIMIT or STOP order.
type ChangeOrderRequest struct {
	OrderID int64           `json:"orderId"`
	Price   decimal.Decimal `json:"price"`
}

// CancelOrdersRequest cancels up to ten orders by root id.
type CancelOrdersRequest struct {
	RootOrderIDs []int64 `json:"rootOrderIds"`
}

// CancelBulkOrderRequest cancels every working order matching the
// filter. Side and SettleType narrow the sweep when set.
type CancelBulkOrderRequest struct {
	Symbols    []string   `json:"symbols"`
	Side       Side       `json:"side,omitempty"`
	SettleType SettleType `json:"settleType,omitempty"`
}

// SettlePosition names one position lot to close and how much of it.
type SettlePosition struct {
	PositionID int64           `json:"positionId"`
	Size       decimal.Decimal `json:"size"`
}

// CloseOrderRequest settles open positions. Either Size (FIFO close of
// the oldest lots) or SettlePosition (targeted lots) must be set, not
// both.
type CloseOrderRequest struct {
	Symbol         string           `json:"symbol"`
	Side           Side             `json:"side"`
	ExecutionType  ExecutionType    `json:"executionType"`
	ClientOrderID  string           `json:"clientOrderId,omitempty"`
	Size           *decimal.Decimal `json:"size,omitempty"`
	LimitPrice     *decimal.Decimal `json:"limitPrice,omitempty"`
	SettlePosition []SettlePosition `json:"settlePosition,omitempty"`
}

// SpeedOrder submits an immediate market order. Retried on transient
// failures only when the request carries a client order id.
func (c *Client) SpeedOrder(ctx context.Context, req SpeedOrderRequest) ([]Order, error) {
	if err := validateNewOrder(req.Symbol, req.Side, req.Size, "POST /v1/speedOrder"); err != nil {
		return nil, err
	}
	var data []Order
	if err := c.writePrivate(ctx, "POST", "/v1/speedOrder", req, &data, req.ClientOrderID != ""); err != nil {
		return nil, err
	}
	return data, nil
}

// PlaceOrder submits a plain order.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) ([]Order, error) {
	if err := validateNewOrder(req.Symbol, req.Side, req.Size, "POST /v1/order"); err != nil {
		return nil, err
	}
	var data []Order
	if err := c.writePrivate(ctx, "POST", "/v1/order", req, &data, req.ClientOrderID != ""); err != nil {
		return nil, err
	}
	return data, nil
}

// IFDOrder submits an if-done pair.
func (c *Client) IFDOrder(ctx context.Context, req IFDOrderRequest) ([]Order, error) {
	if err := validateNewOrder(req.Symbol, req.FirstSide, req.FirstSize, "POST /v1/ifdOrder"); err != nil {
		return nil, err
	}
	var data []Order
	if err := c.writePrivate(ctx, "POST", "/v1/ifdOrder", req, &data, req.ClientOrderID != ""); err != nil {
		return nil, err
	}
	return data, nil
}

// IFOOrder submits an if-done OCO bracket: entry plus take-profit and
// stop-loss in one shot.
func (c *Client) IFOOrder(ctx context.Context, req IFOOrderRequest) ([]Order, error) {
	if err := validateNewOrder(req.Symbol, req.FirstSide, req.FirstSize, "POST /v1/ifoOrder"); err != nil {
		return nil, err
	}
	var data []Order
	if err := c.writePrivate(ctx, "POST", "/v1/ifoOrder", req, &data, req.ClientOrderID != ""); err != nil {
		return nil, err
	}
	return data, nil
}

// ChangeOrder amends a working order's price. Amending to the same
// price is a no-op at the broker, so retries are safe.
func (c *Client) ChangeOrder(ctx context.Context, req ChangeOrderRequest) error {
	if req.OrderID == 0 {
		return &Error{Kind: KindValidation, Op: "POST /v1/changeOrder", Msg: "orderId required"}
	}
	return c.writePrivate(ctx, "POST", "/v1/changeOrder", req, nil, true)
}

// CancelOrders cancels orders by root id and reports per-order results.
// Cancelling an already-dead order only shows up in the failed list, so
// retries are safe.
func (c *Client) CancelOrders(ctx context.Context, rootOrderIDs []int64) (*CancelResult, error) {
	if len(rootOrderIDs) == 0 {
		return nil, &Error{Kind: KindValidation, Op: "POST /v1/cancelOrders", Msg: "rootOrderIds required"}
	}
	var data CancelResult
	req := CancelOrdersRequest{RootOrderIDs: rootOrderIDs}
	if err := c.writePrivate(ctx, "POST", "/v1/cancelOrders", req, &data, true); err != nil {
		return nil, err
	}
	return &data, nil
}

// CancelBulkOrder sweeps working orders matching the filter and returns
// the cancelled root ids.
func (c *Client) CancelBulkOrder(ctx context.Context, req CancelBulkOrderRequest) ([]int64, error) {
	if len(req.Symbols) == 0 {
		return nil, &Error{Kind: KindValidation, Op: "POST /v1/cancelBulkOrder", Msg: "symbols required"}
	}
	var data []int64
	if err := c.writePrivate(ctx, "POST", "/v1/cancelBulkOrder", req, &data, true); err != nil {
		return nil, err
	}
	return data, nil
}

// CloseOrder settles open positions.
func (c *Client) CloseOrder(ctx context.Context, req CloseOrderRequest) ([]Order, error) {
	const op = "POST /v1/closeOrder"
	if req.Symbol == "" {
		return nil, &Error{Kind: KindValidation, Op: op, Msg: "symbol required"}
	}
	if (req.Size == nil) == (len(req.SettlePosition) == 0) {
		return nil, &Error{Kind: KindValidation, Op: op, Msg: "exactly one of size or settlePosition required"}
	}
	var data []Order
	if err := c.writePrivate(ctx, "POST", "/v1/closeOrder", req, &data, req.ClientOrderID != ""); err != nil {
		return nil, err
	}
	return data, nil
}

func validateNewOrder(symbol string, side Side, size decimal.Decimal, op string) error {
	if symbol == "" {
		return &Error{Kind: KindValidation, Op: op, Msg: "symbol required"}
	}
	if side != SideBuy && side != SideSell {
		return &Error{Kind: KindValidation, Op: op, Msg: "side must be BUY or SELL"}
	}
	if !size.IsPositive() {
		return &Error{Kind: KindValidation, Op: op, Msg: "size must be positive"}
	}
	return nil
}
