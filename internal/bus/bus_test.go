package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/fxfunk/internal/analysis"
	"github.com/ajitpratap0/fxfunk/internal/market"
	"github.com/ajitpratap0/fxfunk/internal/tfqe"
)

// startTestNATSServer starts an embedded NATS server for testing
func startTestNATSServer(t *testing.T) *server.Server {
	opts := &server.Options{
		Host: "127.0.0.1",
		Port: -1, // Random port
	}

	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	return ns
}

func setupTestBus(t *testing.T) (*Bus, *nats.Conn) {
	ns := startTestNATSServer(t)
	t.Cleanup(ns.Shutdown)

	b, err := Connect(Config{URL: ns.ClientURL(), Prefix: "test.fx"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	// Raw consumer connection, the way downstream clients attach.
	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	return b, nc
}

func TestConnectDefaultPrefix(t *testing.T) {
	ns := startTestNATSServer(t)
	defer ns.Shutdown()

	b, err := Connect(Config{URL: ns.ClientURL()})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Equal(t, "fx", b.prefix)
	assert.True(t, b.Connected())
}

func TestConnectRefused(t *testing.T) {
	_, err := Connect(Config{URL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestPublishSignal(t *testing.T) {
	b, nc := setupTestBus(t)

	sub, err := nc.SubscribeSync("test.fx.signal.tfqe.USD_JPY")
	require.NoError(t, err)

	sig := tfqe.Signal{
		Symbol:     "USD_JPY",
		State:      tfqe.StateBuy,
		Entry:      150.25,
		Confidence: 78,
		At:         time.Now().UTC(),
	}
	require.NoError(t, b.PublishSignal(context.Background(), "tfqe", sig))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, KindSignal, event.Kind)
	assert.Equal(t, "USD_JPY", event.Symbol)
	assert.False(t, event.Timestamp.IsZero())

	var got tfqe.Signal
	require.NoError(t, json.Unmarshal(event.Payload, &got))
	assert.Equal(t, tfqe.StateBuy, got.State)
	assert.Equal(t, 150.25, got.Entry)
	assert.Equal(t, 78, got.Confidence)
}

func TestPublishVerdict(t *testing.T) {
	b, nc := setupTestBus(t)

	sub, err := nc.SubscribeSync("test.fx.verdict.EUR_USD")
	require.NoError(t, err)

	v := &analysis.Verdict{
		Symbol:     "EUR_USD",
		Signal:     analysis.SignalBuy,
		Confidence: 0.8,
		Alignment:  0.75,
	}
	require.NoError(t, b.PublishVerdict(context.Background(), v))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, KindVerdict, event.Kind)

	var got analysis.Verdict
	require.NoError(t, json.Unmarshal(event.Payload, &got))
	assert.Equal(t, analysis.SignalBuy, got.Signal)
	assert.Equal(t, 0.8, got.Confidence)
}

func TestPublishQuoteAndSnapshotSubjects(t *testing.T) {
	b, nc := setupTestBus(t)

	quotes, err := nc.SubscribeSync("test.fx.quote.*")
	require.NoError(t, err)
	snaps, err := nc.SubscribeSync("test.fx.snapshot")
	require.NoError(t, err)

	q := market.Quote{Symbol: "GBP_JPY", Bid: 190.001, Ask: 190.005}
	require.NoError(t, b.PublishQuote(context.Background(), q))
	require.NoError(t, b.PublishSnapshot(context.Background(), map[string]string{"state": "ok"}))

	msg, err := quotes.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "test.fx.quote.GBP_JPY", msg.Subject)

	msg, err = snaps.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, KindSnapshot, event.Kind)
	assert.Empty(t, event.Symbol)
}

func TestPublishCancelledContext(t *testing.T) {
	b, _ := setupTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.PublishQuote(ctx, market.Quote{Symbol: "USD_JPY"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStats(t *testing.T) {
	b, _ := setupTestBus(t)

	require.NoError(t, b.PublishSnapshot(context.Background(), map[string]int{"n": 1}))

	stats := b.Stats()
	assert.Equal(t, true, stats["connected"])
	assert.NotEmpty(t, stats["connected_url"])
}
