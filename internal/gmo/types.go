package gmo

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Number is a numeric field carried as a string on the wire. The
// broker quotes every price and size to avoid float rounding; parsing
// is deferred to the consumer that knows which precision it needs.
type Number string

// Float64 parses the value for analytics paths where float math is fine.
func (n Number) Float64() (float64, error) {
	if n == "" {
		return 0, nil
	}
	return strconv.ParseFloat(string(n), 64)
}

// Decimal parses the value exactly for the order path.
func (n Number) Decimal() (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(string(n))
}

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other direction, used when closing positions.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ExecutionType is the broker order type.
type ExecutionType string

const (
	ExecutionMarket ExecutionType = "MARKET"
	ExecutionLimit  ExecutionType = "LIMIT"
	ExecutionStop   ExecutionType = "STOP"
	ExecutionOCO    ExecutionType = "OCO"
)

// SettleType distinguishes opening trades from position closes.
type SettleType string

const (
	SettleOpen  SettleType = "OPEN"
	SettleClose SettleType = "CLOSE"
)

// MarketStatus is the trading availability reported by /v1/status.
type MarketStatus string

const (
	MarketOpen        MarketStatus = "OPEN"
	MarketClosed      MarketStatus = "CLOSE"
	MarketMaintenance MarketStatus = "MAINTENANCE"
)

// envelope is the uniform response wrapper: status 0 on success, and a
// messages array carrying broker error codes otherwise.
type envelope struct {
	Status       int             `json:"status"`
	Data         json.RawMessage `json:"data,omitempty"`
	Messages     []apiMessage    `json:"messages,omitempty"`
	ResponseTime string          `json:"responsetime"`
}

type apiMessage struct {
	Code string `json:"message_code"`
	Str  string `json:"message_string"`
}

// serverTime parses the envelope response time, which doubles as the
// broker clock sample for the skew estimate.
func (e *envelope) serverTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.ResponseTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// listWrapper unwraps the {"list": [...]} shape used by the private
// collection endpoints.
type listWrapper[T any] struct {
	List []T `json:"list"`
}

// Ticker is one symbol's current quote from /v1/ticker or the public
// WebSocket ticker channel.
type Ticker struct {
	Symbol    string       `json:"symbol"`
	Ask       Number       `json:"ask"`
	Bid       Number       `json:"bid"`
	Timestamp time.Time    `json:"timestamp"`
	Status    MarketStatus `json:"status"`
}

// KLine is one candle from /v1/klines. OpenTime is epoch milliseconds
// carried as a string.
type KLine struct {
	OpenTime string `json:"openTime"`
	Open     Number `json:"open"`
	High     Number `json:"high"`
	Low      Number `json:"low"`
	Close    Number `json:"close"`
}

// Time converts the millisecond open time.
func (k KLine) Time() (time.Time, error) {
	ms, err := strconv.ParseInt(k.OpenTime, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

// SymbolRule carries the trading rules for one pair from /v1/symbols.
type SymbolRule struct {
	Symbol           string `json:"symbol"`
	MinOpenOrderSize Number `json:"minOpenOrderSize"`
	MaxOrderSize     Number `json:"maxOrderSize"`
	SizeStep         Number `json:"sizeStep"`
	TickSize         Number `json:"tickSize"`
}

// Assets is the margin account snapshot from /v1/account/assets.
type Assets struct {
	Equity             Number `json:"equity"`
	AvailableAmount    Number `json:"availableAmount"`
	Balance            Number `json:"balance"`
	Margin             Number `json:"margin"`
	MarginRatio        Number `json:"marginRatio"`
	PositionLossGain   Number `json:"positionLossGain"`
	TotalSwap          Number `json:"totalSwap"`
	TransferableAmount Number `json:"transferableAmount"`
}

// Order is one order as reported by the order endpoints.
type Order struct {
	RootOrderID   int64         `json:"rootOrderId"`
	ClientOrderID string        `json:"clientOrderId"`
	OrderID       int64         `json:"orderId"`
	Symbol        string        `json:"symbol"`
	Side          Side          `json:"side"`
	OrderType     string        `json:"orderType"`
	ExecutionType ExecutionType `json:"executionType"`
	SettleType    SettleType    `json:"settleType"`
	Size          Number        `json:"size"`
	Price         Number        `json:"price"`
	Status        string        `json:"status"`
	CancelType    string        `json:"cancelType,omitempty"`
	Expiry        string        `json:"expiry,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Execution is one fill from /v1/executions or /v1/latestExecutions.
type Execution struct {
	ExecutionID   int64      `json:"executionId"`
	OrderID       int64      `json:"orderId"`
	PositionID    int64      `json:"positionId"`
	ClientOrderID string     `json:"clientOrderId"`
	Symbol        string     `json:"symbol"`
	Side          Side       `json:"side"`
	SettleType    SettleType `json:"settleType"`
	Size          Number     `json:"size"`
	Price         Number     `json:"price"`
	LossGain      Number     `json:"lossGain"`
	Fee           Number     `json:"fee"`
	SettledSwap   Number     `json:"settledSwap"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Position is one open position from /v1/openPositions.
type Position struct {
	PositionID  int64     `json:"positionId"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Size        Number    `json:"size"`
	OrderedSize Number    `json:"orderedSize"`
	Price       Number    `json:"price"`
	LossGain    Number    `json:"lossGain"`
	TotalSwap   Number    `json:"totalSwap"`
	Timestamp   time.Time `json:"timestamp"`
}

// PositionSummary is the per-symbol, per-side aggregate from
// /v1/positionSummary.
type PositionSummary struct {
	Symbol              string `json:"symbol"`
	Side                Side   `json:"side"`
	AveragePositionRate Number `json:"averagePositionRate"`
	PositionLossGain    Number `json:"positionLossGain"`
	SumOrderedSize      Number `json:"sumOrderedSize"`
	SumPositionSize     Number `json:"sumPositionSize"`
	Timestamp           string `json:"timestamp,omitempty"`
}

// CancelResult reports the per-order outcome of /v1/cancelOrders.
type CancelResult struct {
	Success []int64 `json:"success"`
	Failed  []struct {
		RootOrderID int64  `json:"rootOrderId"`
		Code        string `json:"message_code"`
		Str         string `json:"message_string"`
	} `json:"failed"`
}
