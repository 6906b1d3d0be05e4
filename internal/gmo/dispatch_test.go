package gmo

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteRingDropsOldest(t *testing.T) {
	d := NewDispatcher([]string{"USD_JPY"}, nil, zerolog.Nop())

	const extra = 5
	for i := 0; i < quoteRingSize+extra; i++ {
		d.PublishQuote(Ticker{Symbol: "USD_JPY", Ask: Number(strconv.Itoa(i))})
	}

	quotes := d.Quotes("USD_JPY")
	var got []Ticker
	for {
		select {
		case q := <-quotes:
			got = append(got, q)
			continue
		default:
		}
		break
	}

	require.Len(t, got, quoteRingSize)
	// The oldest entries were evicted; the newest survived.
	assert.Equal(t, Number(strconv.Itoa(extra)), got[0].Ask)
	assert.Equal(t, Number(strconv.Itoa(quoteRingSize+extra-1)), got[len(got)-1].Ask)
}

func TestQuoteRingCreatedOnFirstUse(t *testing.T) {
	d := NewDispatcher(nil, nil, zerolog.Nop())

	d.PublishQuote(Ticker{Symbol: "EUR_JPY", Ask: Number("161.101")})

	select {
	case q := <-d.Quotes("EUR_JPY"):
		assert.Equal(t, Number("161.101"), q.Ask)
	default:
		t.Fatal("quote not delivered to lazily created ring")
	}
}

func TestAccountEventsRouteToTheirChannels(t *testing.T) {
	d := NewDispatcher(nil, nil, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, d.PublishExecution(ctx, ExecutionEvent{Execution: Execution{ExecutionID: 1}}))
	require.NoError(t, d.PublishOrder(ctx, OrderEvent{Order: Order{OrderID: 2}}))
	require.NoError(t, d.PublishPosition(ctx, PositionEvent{Position: Position{PositionID: 3}}))
	require.NoError(t, d.PublishPositionSummary(ctx, PositionSummaryEvent{PositionSummary: PositionSummary{Symbol: "USD_JPY"}}))

	assert.Equal(t, int64(1), (<-d.Executions()).ExecutionID)
	assert.Equal(t, int64(2), (<-d.Orders()).OrderID)
	assert.Equal(t, int64(3), (<-d.Positions()).PositionID)
	assert.Equal(t, "USD_JPY", (<-d.PositionSummaries()).Symbol)
}

func TestLosslessPublishBlocksWhenQueueFull(t *testing.T) {
	d := NewDispatcher(nil, nil, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < cap(d.executions); i++ {
		require.NoError(t, d.PublishExecution(ctx, ExecutionEvent{}))
	}

	delivered := make(chan struct{})
	go func() {
		_ = d.PublishExecution(ctx, ExecutionEvent{Execution: Execution{ExecutionID: 99}})
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("publish into a full queue must block, not drop")
	case <-time.After(50 * time.Millisecond):
	}

	<-d.Executions()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("publish did not complete after the queue drained")
	}
}

func TestLosslessPublishRaisesStallAndKeepsBlocking(t *testing.T) {
	stalls := make(chan string, 8)
	d := NewDispatcher(nil, func(channel string) {
		select {
		case stalls <- channel:
		default:
		}
	}, zerolog.Nop())
	d.stall = 20 * time.Millisecond

	ctx := context.Background()
	for i := 0; i < cap(d.orders); i++ {
		require.NoError(t, d.PublishOrder(ctx, OrderEvent{}))
	}

	done := make(chan error, 1)
	go func() {
		done <- d.PublishOrder(ctx, OrderEvent{Order: Order{OrderID: 42}})
	}()

	// The watchdog re-raises while the consumer stays stuck.
	for i := 0; i < 2; i++ {
		select {
		case ch := <-stalls:
			assert.Equal(t, "orderEvents", ch)
		case <-time.After(time.Second):
			t.Fatal("stall watchdog did not fire")
		}
	}

	// Still no event lost: draining lets the publish land.
	<-d.Orders()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish did not complete after drain")
	}
}

func TestLosslessPublishHonorsCancellation(t *testing.T) {
	d := NewDispatcher(nil, nil, zerolog.Nop())

	bg := context.Background()
	for i := 0; i < cap(d.positions); i++ {
		require.NoError(t, d.PublishPosition(bg, PositionEvent{}))
	}

	ctx, cancel := context.WithCancel(bg)
	cancel()

	err := d.PublishPosition(ctx, PositionEvent{})
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
}
