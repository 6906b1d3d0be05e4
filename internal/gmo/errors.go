package gmo

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies gateway failures so callers can branch on behavior
// instead of matching broker message strings.
type Kind int

const (
	KindInternal Kind = iota
	KindConfig
	KindAuth
	KindClockSkew
	KindRateLimited
	KindMaintenance
	KindMarketClosed
	KindValidation
	KindTransport
	KindConsumerStall
	KindCancelled
)

// String returns the stable name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAuth:
		return "auth"
	case KindClockSkew:
		return "clock_skew"
	case KindRateLimited:
		return "rate_limited"
	case KindMaintenance:
		return "maintenance"
	case KindMarketClosed:
		return "market_closed"
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindConsumerStall:
		return "consumer_stall"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Error is the gateway error type. Code carries the broker message code
// (e.g. "ERR-5003") when the failure originated from an API response.
type Error struct {
	Kind Kind
	Code string
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Msg != "":
		return fmt.Sprintf("gmo: %s: %s %s (%s)", e.Op, e.Code, e.Msg, e.Kind)
	case e.Msg != "":
		return fmt.Sprintf("gmo: %s: %s (%s)", e.Op, e.Msg, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("gmo: %s: %v (%s)", e.Op, e.Err, e.Kind)
	default:
		return fmt.Sprintf("gmo: %s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from any error chain. Plain errors report
// KindInternal; context cancellation reports KindCancelled.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// IsRetryable reports whether a fresh attempt of the same request may
// succeed. Only throttling and transport failures qualify; auth,
// validation and maintenance failures will fail again identically.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransport:
		return true
	default:
		return false
	}
}

// Broker message codes that need dedicated handling. Everything else
// that arrives in an error envelope is treated as request validation.
const (
	codeRateLimited    = "ERR-5003"
	codeAuthKey        = "ERR-5010"
	codeAuthTimestamp  = "ERR-5011"
	codeAuthSignature  = "ERR-5012"
	codeValidation     = "ERR-5126"
	codeMaintenance    = "ERR-5201"
	codeMaintenanceAlt = "ERR-5202"
	codeMarketClosed   = "ERR-5218"
)

// kindForCode maps a broker message code to an error Kind.
func kindForCode(code string) Kind {
	switch code {
	case codeRateLimited:
		return KindRateLimited
	case codeAuthKey, codeAuthTimestamp, codeAuthSignature:
		return KindAuth
	case codeValidation:
		return KindValidation
	case codeMaintenance, codeMaintenanceAlt:
		return KindMaintenance
	case codeMarketClosed:
		return KindMarketClosed
	default:
		return KindValidation
	}
}

// transportError wraps network-level failures, classifying context
// cancellation separately so callers can tell shutdown from outage.
func transportError(op string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindCancelled, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTransport, Op: op, Msg: "request timed out", Err: err}
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}
