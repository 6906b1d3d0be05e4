package gmo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

// Scope separates the broker's independent throttling domains.
type Scope int

const (
	ScopePublic Scope = iota
	ScopePrivate
)

func (s Scope) String() string {
	if s == ScopePrivate {
		return "private"
	}
	return "public"
}

// Verb groups HTTP methods into the buckets the broker actually
// meters: reads, writes, and WebSocket channel commands.
type Verb int

const (
	VerbRead Verb = iota
	VerbWrite
	VerbSubscribe
)

func (v Verb) String() string {
	switch v {
	case VerbWrite:
		return "write"
	case VerbSubscribe:
		return "subscribe"
	default:
		return "read"
	}
}

// verbFor maps an HTTP method to its throttle bucket. All mutating
// methods share the write budget.
func verbFor(method string) Verb {
	switch method {
	case "POST", "PUT", "DELETE":
		return VerbWrite
	default:
		return VerbRead
	}
}

// Limits holds per-second request budgets.
type Limits struct {
	GetPerSec   int
	PostPerSec  int
	WSSubPerSec int
}

// DefaultLimits returns the documented GMO Coin FX budgets.
func DefaultLimits() Limits {
	return Limits{GetPerSec: 6, PostPerSec: 1, WSSubPerSec: 1}
}

type bucketKey struct {
	scope Scope
	verb  Verb
}

// Limiter is the single chokepoint for every request the gateway sends
// to the broker, REST and WebSocket alike. Each (scope, verb) pair owns
// an independent token bucket with continuous refill and a burst equal
// to its per-second rate.
type Limiter struct {
	mu      sync.Mutex
	limits  Limits
	buckets map[bucketKey]*rate.Limiter
}

// NewLimiter builds a limiter from the configured budgets. Zero or
// negative budgets fall back to the documented defaults.
func NewLimiter(limits Limits) *Limiter {
	def := DefaultLimits()
	if limits.GetPerSec < 1 {
		limits.GetPerSec = def.GetPerSec
	}
	if limits.PostPerSec < 1 {
		limits.PostPerSec = def.PostPerSec
	}
	if limits.WSSubPerSec < 1 {
		limits.WSSubPerSec = def.WSSubPerSec
	}
	return &Limiter{
		limits:  limits,
		buckets: make(map[bucketKey]*rate.Limiter),
	}
}

// Wait blocks until the bucket for (scope, verb) releases a token or
// the context is cancelled. A cancelled wait consumes no token.
func (l *Limiter) Wait(ctx context.Context, scope Scope, verb Verb) error {
	start := time.Now()
	if err := l.bucket(scope, verb).Wait(ctx); err != nil {
		return &Error{Kind: KindCancelled, Op: "ratelimit.wait", Err: err}
	}
	metrics.RecordRateLimitWait(scope.String(), verb.String(), time.Since(start))
	return nil
}

// Allow reports whether a token is immediately available, consuming it
// if so. Used by paths that must not block, such as the WS write loop.
func (l *Limiter) Allow(scope Scope, verb Verb) bool {
	return l.bucket(scope, verb).Allow()
}

func (l *Limiter) bucket(scope Scope, verb Verb) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Subscription commands share one budget across both streams; the
	// broker meters them per connection origin, not per scope.
	if verb == VerbSubscribe {
		scope = ScopePublic
	}

	key := bucketKey{scope: scope, verb: verb}
	if b, ok := l.buckets[key]; ok {
		return b
	}

	perSec := l.rateFor(verb)
	b := rate.NewLimiter(rate.Limit(perSec), perSec)
	l.buckets[key] = b
	return b
}

func (l *Limiter) rateFor(verb Verb) int {
	switch verb {
	case VerbWrite:
		return l.limits.PostPerSec
	case VerbSubscribe:
		return l.limits.WSSubPerSec
	default:
		return l.limits.GetPerSec
	}
}
