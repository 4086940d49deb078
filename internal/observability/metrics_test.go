package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/portfolio"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics("test", prometheus.NewRegistry())
}

func TestObserveExecution(t *testing.T) {
	m := newTestMetrics(t)
	req := execution.Request{Intent: execution.IntentEntry, Venue: domain.VenueBondingCurve, Token: "mintA"}

	m.ObserveExecution(req, domain.ExecutionResult{Status: domain.ExecutionFilled, Attempts: 2}, time.Second)
	m.ObserveExecution(req, domain.ExecutionResult{Status: domain.ExecutionTimedOut, Attempts: 1}, 30*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("entry", "bonding_curve", "FILLED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("entry", "bonding_curve", "TIMED_OUT")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ExecutionLatency))
}

func TestSendCountsEvents(t *testing.T) {
	m := newTestMetrics(t)
	ctx := context.Background()

	require.NoError(t, m.Send(ctx, domain.Event{Kind: domain.EventExitFilled, Reason: "STOP_LOSS"}))
	require.NoError(t, m.Send(ctx, domain.Event{Kind: domain.EventExitFilled, Reason: "STOP_LOSS"}))
	require.NoError(t, m.Send(ctx, domain.Event{Kind: domain.EventMigration}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("EXIT_FILLED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("MIGRATION")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExitsTotal.WithLabelValues("STOP_LOSS")))
}

func TestObservePortfolio(t *testing.T) {
	m := newTestMetrics(t)
	m.ObservePortfolio(portfolio.Snapshot{
		OpenCount:     3,
		Committed:     decimal.RequireFromString("0.3"),
		Realized:      decimal.RequireFromString("-0.05"),
		EntriesHalted: true,
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.OpenPositions))
	assert.InDelta(t, 0.3, testutil.ToFloat64(m.CommittedCapital), 1e-9)
	assert.InDelta(t, -0.05, testutil.ToFloat64(m.RealizedPnL), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntriesHalted))
}

func TestObserveRPC(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveRPC("getAccountInfo", 20*time.Millisecond, nil)
	m.ObserveRPC("sendTransaction", time.Second, errors.New("429"))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.RPCCallErrors.WithLabelValues("getAccountInfo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCallErrors.WithLabelValues("sendTransaction")))
}

func TestCollect(t *testing.T) {
	m := newTestMetrics(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Collect(ctx, 5*time.Millisecond, Stats{
			Portfolio:   func() portfolio.Snapshot { return portfolio.Snapshot{OpenCount: 2} },
			FeedCorrupt: func() int64 { return 4 },
			Tracked:     func() int { return 2 },
			Dropped:     func() int64 { return 1 },
			Signing:     func() bool { return true },
		})
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.MonitoredPositions) == 2 && testutil.ToFloat64(m.FeedCorruptLines) == 4
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SigningAvailable))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
