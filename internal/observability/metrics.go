// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/portfolio"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Feed metrics
	CandidatesRead     prometheus.Counter
	FeedCorruptLines   prometheus.Gauge
	CandidateDecisions *prometheus.CounterVec

	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionLatency  *prometheus.HistogramVec
	ExecutionAttempts *prometheus.HistogramVec
	SigningAvailable  prometheus.Gauge

	// Position metrics
	OpenPositions      prometheus.Gauge
	CommittedCapital   prometheus.Gauge
	RealizedPnL        prometheus.Gauge
	UnrealizedPnL      prometheus.Gauge
	EntriesHalted      prometheus.Gauge
	ExitsTotal         *prometheus.CounterVec
	MonitoredPositions prometheus.Gauge

	// Telemetry metrics
	EventsTotal   *prometheus.CounterVec
	EventsDropped prometheus.Gauge

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastCandidateSeen prometheus.Gauge
	UptimeSeconds     prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_sniper"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CandidatesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "candidates_read_total",
			Help:      "Total number of candidate records delivered by the feed",
		}),
		FeedCorruptLines: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "corrupt_lines",
			Help:      "Number of malformed feed lines skipped since start",
		}),
		CandidateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "decisions_total",
			Help:      "Risk gate decisions by outcome",
		}, []string{"outcome"}),

		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "executions_total",
			Help:      "Finished executions by intent, venue and status",
		}, []string{"intent", "venue", "status"}),
		ExecutionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "latency_seconds",
			Help:      "Time from request to final outcome",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"intent", "venue"}),
		ExecutionAttempts: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "attempts",
			Help:      "Submit attempts per execution",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		}, []string{"intent"}),
		SigningAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "signing_available",
			Help:      "1 while the signer is usable, 0 after repeated signing failures",
		}),

		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "open_positions",
			Help:      "Positions in PENDING, OPEN or EXITING",
		}),
		CommittedCapital: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "committed_sol",
			Help:      "Capital reserved by active positions in SOL",
		}),
		RealizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "realized_pnl_sol",
			Help:      "Realized profit and loss in SOL",
		}),
		UnrealizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "unrealized_pnl_sol",
			Help:      "Unrealized profit and loss at last observed prices in SOL",
		}),
		EntriesHalted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "entries_halted",
			Help:      "1 while new entries are halted",
		}),
		ExitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "exits_total",
			Help:      "Filled exits by reason",
		}, []string{"reason"}),
		MonitoredPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "tracked_positions",
			Help:      "Positions with a running monitor worker",
		}),

		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "events_total",
			Help:      "Telemetry events by kind",
		}, []string{"kind"}),
		EventsDropped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "events_dropped",
			Help:      "Telemetry events dropped on a full buffer since start",
		}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Failed Solana RPC calls by method",
		}, []string{"method"}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastCandidateSeen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_candidate_timestamp",
			Help:      "Unix timestamp of the last candidate read from the feed",
		}),
		UptimeSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordCandidate counts a candidate delivered by the feed.
func (m *Metrics) RecordCandidate(at time.Time) {
	m.CandidatesRead.Inc()
	m.LastCandidateSeen.Set(float64(at.Unix()))
}

// RecordDecision counts a risk gate outcome: "accept" or a reject reason.
func (m *Metrics) RecordDecision(outcome string) {
	m.CandidateDecisions.WithLabelValues(outcome).Inc()
}

// ObserveExecution is an execution.Observer.
func (m *Metrics) ObserveExecution(req execution.Request, res domain.ExecutionResult, elapsed time.Duration) {
	intent := string(req.Intent)
	m.ExecutionsTotal.WithLabelValues(intent, string(req.Venue), string(res.Status)).Inc()
	m.ExecutionLatency.WithLabelValues(intent, string(req.Venue)).Observe(elapsed.Seconds())
	if res.Attempts > 0 {
		m.ExecutionAttempts.WithLabelValues(intent).Observe(float64(res.Attempts))
	}
}

// ObservePortfolio updates the position gauges from a snapshot.
func (m *Metrics) ObservePortfolio(snap portfolio.Snapshot) {
	m.OpenPositions.Set(float64(snap.OpenCount))
	m.CommittedCapital.Set(snap.Committed.InexactFloat64())
	m.RealizedPnL.Set(snap.Realized.InexactFloat64())
	m.UnrealizedPnL.Set(snap.Unrealized.InexactFloat64())
	m.EntriesHalted.Set(boolGauge(snap.EntriesHalted))
}

// ObserveRPC is a solana.CallObserver.
func (m *Metrics) ObserveRPC(method string, d time.Duration, err error) {
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		m.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// Name implements alert.Sink.
func (m *Metrics) Name() string { return "metrics" }

// Send implements alert.Sink by counting events. Filled exits are also
// counted by reason.
func (m *Metrics) Send(_ context.Context, ev domain.Event) error {
	m.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Kind == domain.EventExitFilled {
		m.ExitsTotal.WithLabelValues(ev.Reason).Inc()
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Stats is a source of point-in-time counters polled by a Collector.
type Stats struct {
	Portfolio   func() portfolio.Snapshot
	FeedCorrupt func() int64
	Tracked     func() int
	Dropped     func() int64
	Signing     func() bool
}

// Collect polls stats every interval and updates the gauges until ctx is done.
func (m *Metrics) Collect(ctx context.Context, interval time.Duration, stats Stats) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		m.poll(stats)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.UptimeSeconds.Add(now.Sub(last).Seconds())
			last = now
		}
	}
}

func (m *Metrics) poll(stats Stats) {
	if stats.Portfolio != nil {
		m.ObservePortfolio(stats.Portfolio())
	}
	if stats.FeedCorrupt != nil {
		m.FeedCorruptLines.Set(float64(stats.FeedCorrupt()))
	}
	if stats.Tracked != nil {
		m.MonitoredPositions.Set(float64(stats.Tracked()))
	}
	if stats.Dropped != nil {
		m.EventsDropped.Set(float64(stats.Dropped()))
	}
	if stats.Signing != nil {
		m.SigningAvailable.Set(boolGauge(stats.Signing()))
	}
}
