package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"solana-sniper/internal/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	name   string
	err    error
	events []domain.Event
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestEmitter_FansOutToSinks(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	bad := &recordingSink{name: "bad", err: errors.New("unreachable")}
	e := NewEmitter(EmitterOptions{Logger: log.New(&bytes.Buffer{}, "", 0)}, ok, bad)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.Emit(domain.Event{Kind: domain.EventEntryFilled, Token: "mintA"})
	e.Emit(domain.Event{Kind: domain.EventExitFilled, Token: "mintA", PnL: "0.11"})

	require.Eventually(t, func() bool { return ok.count() == 2 && bad.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, int64(2), e.Sent())
	assert.Equal(t, int64(2), e.Failed())
	assert.False(t, ok.events[0].At.IsZero(), "emit stamps the event time")

	require.NoError(t, e.Close())
	assert.True(t, ok.closed)
}

func TestEmitter_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	e := NewEmitter(EmitterOptions{Buffer: 2, Logger: log.New(&bytes.Buffer{}, "", 0)}, sink)

	// Run not started, so nothing drains the buffer
	for i := 0; i < 5; i++ {
		e.Emit(domain.Event{Kind: domain.EventMigration, Token: "mintA"})
	}
	assert.Equal(t, int64(3), e.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Run(ctx), context.Canceled)
	assert.Equal(t, 2, sink.count(), "buffered events flushed on shutdown")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(log.New(&buf, "", 0))

	require.NoError(t, sink.Send(context.Background(), domain.Event{
		Kind:   domain.EventExitFilled,
		Token:  "mintA",
		Symbol: "AAA",
		Venue:  domain.VenueBondingCurve,
		Reason: string(domain.ExitTakeProfit),
		PnL:    "0.11",
	}))
	assert.Equal(t, "Exit filled: AAA mintA on bonding_curve pnl 0.11 SOL (TAKE_PROFIT)\n", buf.String())
}

func TestFormatHTML_Escapes(t *testing.T) {
	got := FormatHTML(domain.Event{Kind: domain.EventEntryRejected, Token: "mintA", Symbol: "<b>x", Reason: "LOW_SCORE"})
	assert.Contains(t, got, "<b>Entry rejected</b>")
	assert.Contains(t, got, "(&lt;b&gt;x)")
	assert.Contains(t, got, "Reason: LOW_SCORE")
}

func TestTelegramSink_Send(t *testing.T) {
	var got struct {
		path, chatID, text, mode string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.chatID = r.URL.Query().Get("chat_id")
		got.text = r.URL.Query().Get("text")
		got.mode = r.URL.Query().Get("parse_mode")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sink := NewTelegramSink("token", "42")
	sink.baseURL = srv.URL + "/sendMessage"

	err := sink.Send(context.Background(), domain.Event{Kind: domain.EventEntryFilled, Token: "mintA", Price: 0.000001})
	require.NoError(t, err)
	assert.Equal(t, "/sendMessage", got.path)
	assert.Equal(t, "42", got.chatID)
	assert.Equal(t, "HTML", got.mode)
	assert.Contains(t, got.text, "Entry filled")
	assert.Contains(t, got.text, "mintA")
}

func TestTelegramSink_ErrorDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	sink := NewTelegramSink("token", "42")
	sink.baseURL = srv.URL

	err := sink.Send(context.Background(), domain.Event{Kind: domain.EventMigration, Token: "mintA"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSink_Send(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, topic: "sniper-events"}
	at := time.UnixMilli(1_700_000_000_000).UTC()

	require.NoError(t, sink.Send(context.Background(), domain.Event{Kind: domain.EventExitFilled, Token: "mintA", PnL: "-0.02", At: at}))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "mintA", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "EXIT_FILLED", string(msg.Headers[0].Value))

	var ev domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "-0.02", ev.PnL)

	w.err = errors.New("leader not available")
	err := sink.Send(context.Background(), domain.Event{Kind: domain.EventMigration, Token: "mintB"})
	assert.ErrorContains(t, err, "sniper-events")
}

func TestRedisSink_SetAndPublish(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() { _ = container.Terminate(ctx) }()

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	sink := NewRedisSink(RedisOptions{Addr: addr, TTL: time.Minute})
	defer sink.Close()
	require.NoError(t, sink.Ping(ctx))

	sub := redis.NewClient(&redis.Options{Addr: addr})
	defer sub.Close()
	ps := sub.Subscribe(ctx, "sniper:alerts")
	defer ps.Close()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	ev := domain.Event{Kind: domain.EventEntryFilled, Token: "mintA", At: time.UnixMilli(1_700_000_000_000)}
	require.NoError(t, sink.Send(ctx, ev))

	assert.Equal(t, "alert:1700000000000:mintA:ENTRY_FILLED", sink.Key(ev))
	ttl, err := sub.TTL(ctx, sink.Key(ev)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	select {
	case msg := <-ps.Channel():
		var got domain.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "mintA", got.Token)
	case <-time.After(5 * time.Second):
		t.Fatal("no message published")
	}
}
