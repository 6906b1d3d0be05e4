package gmo

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

const (
	// quoteRingSize bounds the per-symbol quote queue. Quotes are
	// perishable: a consumer that falls behind needs the newest quote,
	// not the full history, so overflow drops the oldest entry.
	quoteRingSize = 1024

	// stallTimeout is how long an account event may sit undelivered
	// before the watchdog raises a stall. Account events are lossless,
	// so a stuck consumer blocks the stream reader; the watchdog makes
	// that visible instead of silent.
	stallTimeout = 5 * time.Second
)

// OrderEvent is one orderEvents frame: an order lifecycle transition.
type OrderEvent struct {
	Order
	MsgType string `json:"msgType,omitempty"`
}

// ExecutionEvent is one executionEvents frame: a fill.
type ExecutionEvent struct {
	Execution
}

// PositionEvent is one positionEvents frame: a position opened,
// resized or closed.
type PositionEvent struct {
	Position
	MsgType string `json:"msgType,omitempty"`
}

// PositionSummaryEvent is one positionSummaryEvents frame, delivered
// periodically while subscribed with option PERIODIC.
type PositionSummaryEvent struct {
	PositionSummary
}

// StallHandler is notified when an account event consumer has not
// drained its queue within the stall timeout.
type StallHandler func(channel string)

// Dispatcher fans stream frames out to consumers with per-channel
// delivery guarantees: quotes ride fixed-size drop-oldest rings, while
// execution, order and position events are never dropped and instead
// block the producer with a stall watchdog.
type Dispatcher struct {
	mu     sync.Mutex
	quotes map[string]chan Ticker

	executions        chan ExecutionEvent
	orders            chan OrderEvent
	positions         chan PositionEvent
	positionSummaries chan PositionSummaryEvent

	onStall StallHandler
	stall   time.Duration
	logger  zerolog.Logger
}

// NewDispatcher builds a dispatcher for the given symbols. onStall may
// be nil; stalls are always counted and logged.
func NewDispatcher(symbols []string, onStall StallHandler, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		quotes:            make(map[string]chan Ticker, len(symbols)),
		executions:        make(chan ExecutionEvent, 16),
		orders:            make(chan OrderEvent, 16),
		positions:         make(chan PositionEvent, 16),
		positionSummaries: make(chan PositionSummaryEvent, 16),
		onStall:           onStall,
		stall:             stallTimeout,
		logger:            logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, s := range symbols {
		d.quotes[s] = make(chan Ticker, quoteRingSize)
	}
	return d
}

// Quotes returns the quote stream for one symbol. Symbols not passed
// to NewDispatcher get a ring on first use.
func (d *Dispatcher) Quotes(symbol string) <-chan Ticker {
	return d.quoteRing(symbol)
}

// Executions returns the lossless fill stream.
func (d *Dispatcher) Executions() <-chan ExecutionEvent { return d.executions }

// Orders returns the lossless order lifecycle stream.
func (d *Dispatcher) Orders() <-chan OrderEvent { return d.orders }

// Positions returns the lossless position change stream.
func (d *Dispatcher) Positions() <-chan PositionEvent { return d.positions }

// PositionSummaries returns the periodic position aggregate stream.
func (d *Dispatcher) PositionSummaries() <-chan PositionSummaryEvent {
	return d.positionSummaries
}

func (d *Dispatcher) quoteRing(symbol string) chan Ticker {
	d.mu.Lock()
	defer d.mu.Unlock()
	ring, ok := d.quotes[symbol]
	if !ok {
		ring = make(chan Ticker, quoteRingSize)
		d.quotes[symbol] = ring
	}
	return ring
}

// PublishQuote enqueues a quote, evicting the oldest entry when the
// ring is full. Never blocks.
func (d *Dispatcher) PublishQuote(q Ticker) {
	ring := d.quoteRing(q.Symbol)
	for {
		select {
		case ring <- q:
			return
		default:
		}
		select {
		case <-ring:
			metrics.RecordQuoteDropped(q.Symbol)
		default:
		}
	}
}

// PublishExecution delivers a fill, blocking until the consumer takes
// it or ctx is cancelled.
func (d *Dispatcher) PublishExecution(ctx context.Context, ev ExecutionEvent) error {
	return publishLossless(ctx, d, d.executions, metrics.ChannelExecutionEvents, ev)
}

// PublishOrder delivers an order transition, blocking until the
// consumer takes it or ctx is cancelled.
func (d *Dispatcher) PublishOrder(ctx context.Context, ev OrderEvent) error {
	return publishLossless(ctx, d, d.orders, metrics.ChannelOrderEvents, ev)
}

// PublishPosition delivers a position change, blocking until the
// consumer takes it or ctx is cancelled.
func (d *Dispatcher) PublishPosition(ctx context.Context, ev PositionEvent) error {
	return publishLossless(ctx, d, d.positions, metrics.ChannelPositionEvents, ev)
}

// PublishPositionSummary delivers a position aggregate, blocking until
// the consumer takes it or ctx is cancelled.
func (d *Dispatcher) PublishPositionSummary(ctx context.Context, ev PositionSummaryEvent) error {
	return publishLossless(ctx, d, d.positionSummaries, metrics.ChannelPositionSummary, ev)
}

func publishLossless[T any](ctx context.Context, d *Dispatcher, ch chan<- T, channel string, ev T) error {
	select {
	case ch <- ev:
		return nil
	case <-ctx.Done():
		return &Error{Kind: KindCancelled, Op: "dispatch." + channel, Err: ctx.Err()}
	default:
	}

	timer := time.NewTimer(d.stall)
	defer timer.Stop()

	for {
		select {
		case ch <- ev:
			return nil
		case <-timer.C:
			d.raiseStall(channel)
			timer.Reset(d.stall)
		case <-ctx.Done():
			return &Error{Kind: KindCancelled, Op: "dispatch." + channel, Err: ctx.Err()}
		}
	}
}

func (d *Dispatcher) raiseStall(channel string) {
	metrics.RecordConsumerStall(channel)
	d.logger.Error().
		Str("channel", channel).
		Dur("timeout", d.stall).
		Msg("Account event consumer stalled, blocking stream reader")
	if d.onStall != nil {
		d.onStall(channel)
	}
}
