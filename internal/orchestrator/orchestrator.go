// Package orchestrator runs the trading loop.
// It coordinates: feed → risk gate → entry execution → portfolio → monitor
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/portfolio"
	"solana-sniper/internal/risk"
)

// CandidateSource delivers new candidates until ctx is done.
type CandidateSource interface {
	Run(ctx context.Context, out chan<- domain.CandidateRecord) error
}

// Executor runs entry swaps.
type Executor interface {
	Execute(ctx context.Context, req execution.Request) domain.ExecutionResult
	Drain(ctx context.Context) error
}

// Tracker monitors open positions.
type Tracker interface {
	Track(ctx context.Context, token string) error
	Wait(ctx context.Context) error
}

// VenueResolver maps a candidate's venue hint to a tradable venue.
type VenueResolver interface {
	Resolve(hint string) domain.Venue
}

// EventSink receives telemetry. Emit must not block.
type EventSink interface {
	Emit(ev domain.Event)
}

// Orchestrator turns candidates into monitored positions.
// Flow: feed → risk gate → entry → portfolio → monitor
type Orchestrator struct {
	// Components
	feed      CandidateSource
	gate      *risk.Gate
	portfolio *portfolio.Portfolio
	executor  Executor
	monitor   Tracker
	venues    VenueResolver
	events    EventSink

	// Options
	maxConcurrent int64
	shutdownGrace time.Duration
	onDecision    func(domain.CandidateRecord, risk.Decision)
	logger        *log.Logger
	now           func() time.Time

	// State
	sem      *semaphore.Weighted
	mu       sync.Mutex
	inFlight map[string]struct{}
	entries  sync.WaitGroup

	stats struct {
		received   atomic.Int64
		rejected   atomic.Int64
		duplicates atomic.Int64
		filled     atomic.Int64
		failed     atomic.Int64
	}
}

// Options for creating Orchestrator.
type Options struct {
	// Required components
	Feed      CandidateSource
	Gate      *risk.Gate
	Portfolio *portfolio.Portfolio
	Executor  Executor
	Monitor   Tracker
	Venues    VenueResolver

	// Optional
	Events     EventSink
	OnDecision func(domain.CandidateRecord, risk.Decision) // called for every gate decision

	MaxConcurrentCandidates int           // candidates evaluated and entered at once, default 4
	ShutdownGrace           time.Duration // bound on draining entries and exits, default 30s
	Logger                  *log.Logger
	Clock                   func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	maxConcurrent := int64(opts.MaxConcurrentCandidates)
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Orchestrator{
		feed:          opts.Feed,
		gate:          opts.Gate,
		portfolio:     opts.Portfolio,
		executor:      opts.Executor,
		monitor:       opts.Monitor,
		venues:        opts.Venues,
		events:        opts.Events,
		maxConcurrent: maxConcurrent,
		shutdownGrace: grace,
		onDecision:    opts.OnDecision,
		logger:        logger,
		now:           clock,
		sem:           semaphore.NewWeighted(maxConcurrent),
		inFlight:      make(map[string]struct{}),
	}
}

// RunResult summarizes a run.
type RunResult struct {
	CandidatesReceived int64
	Rejected           int64
	Duplicates         int64
	EntriesFilled      int64
	EntriesFailed      int64
}

// Result returns the counters so far.
func (o *Orchestrator) Result() RunResult {
	return RunResult{
		CandidatesReceived: o.stats.received.Load(),
		Rejected:           o.stats.rejected.Load(),
		Duplicates:         o.stats.duplicates.Load(),
		EntriesFilled:      o.stats.filled.Load(),
		EntriesFailed:      o.stats.failed.Load(),
	}
}

// Resume starts monitoring positions restored from the journal.
func (o *Orchestrator) Resume(ctx context.Context) int {
	n := 0
	for _, pos := range o.portfolio.Open() {
		if pos.Status != domain.StatusOpen {
			continue
		}
		if err := o.monitor.Track(ctx, pos.Token); err != nil {
			o.logger.Printf("ERROR: resume monitoring %s: %v", pos.Token, err)
			continue
		}
		n++
	}
	if n > 0 {
		o.logger.Printf("Resumed monitoring of %d open positions", n)
	}
	return n
}

// Run consumes candidates until ctx is done, then stops taking entries and
// drains in-flight entries and exits for up to the shutdown grace.
func (o *Orchestrator) Run(ctx context.Context) error {
	candidates := make(chan domain.CandidateRecord)
	feedErr := make(chan error, 1)
	go func() {
		feedErr <- o.feed.Run(ctx, candidates)
	}()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case err := <-feedErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				runErr = fmt.Errorf("feed: %w", err)
			}
			break loop
		case c := <-candidates:
			o.dispatch(ctx, c)
		}
	}

	o.shutdown()
	return runErr
}

// dispatch starts processing c once a concurrency slot is free.
func (o *Orchestrator) dispatch(ctx context.Context, c domain.CandidateRecord) {
	o.stats.received.Add(1)
	if !o.claim(c.Token) {
		o.stats.duplicates.Add(1)
		o.logger.Printf("candidate %s already in flight, skipped", c.Token)
		return
	}
	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.release(c.Token)
		return
	}

	o.entries.Add(1)
	go func() {
		defer o.entries.Done()
		defer o.sem.Release(1)
		defer o.release(c.Token)
		o.Process(ctx, c)
	}()
}

func (o *Orchestrator) claim(token string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[token]; busy {
		return false
	}
	o.inFlight[token] = struct{}{}
	return true
}

func (o *Orchestrator) release(token string) {
	o.mu.Lock()
	delete(o.inFlight, token)
	o.mu.Unlock()
}

// Process evaluates one candidate and, when accepted, enters and starts
// monitoring it. It returns the resulting position, or nil when no position
// was opened.
func (o *Orchestrator) Process(ctx context.Context, c domain.CandidateRecord) *domain.Position {
	decision := o.gate.Evaluate(c, o.portfolio.Snapshot())
	if o.onDecision != nil {
		o.onDecision(c, decision)
	}
	if !decision.Accept {
		o.stats.rejected.Add(1)
		o.logger.Printf("rejected %s: %s (score %.1f, liquidity %.2f)", c.Token, decision.Reason, c.Score, c.LiquidityEstimate)
		if portfolioReject(decision.Reason) {
			o.emit(domain.Event{Kind: domain.EventEntryRejected, Token: c.Token, Symbol: c.Symbol, Reason: string(decision.Reason)})
		}
		return nil
	}

	venue := o.venues.Resolve(string(c.VenueHint))
	pending, err := o.portfolio.TryOpen(c, venue, decision.Size)
	if err != nil {
		// Lost a race against another flow since the snapshot
		o.stats.rejected.Add(1)
		o.logger.Printf("rejected %s at reservation: %v", c.Token, err)
		o.emit(domain.Event{Kind: domain.EventEntryRejected, Token: c.Token, Symbol: c.Symbol, Reason: err.Error()})
		return nil
	}

	// Entries outlive shutdown: a submitted swap must be resolved, not dropped.
	res := o.executor.Execute(context.WithoutCancel(ctx), execution.Request{
		Intent:      execution.IntentEntry,
		Venue:       venue,
		Token:       c.Token,
		Amount:      domain.SOLToLamports(decision.Size),
		SlippageBps: o.gate.Config().SlippageBps,
		PositionID:  pending.ID,
	})

	if errors.Is(res.Err, domain.ErrSigningUnavailable) {
		o.portfolio.HaltEntries(res.Err.Error())
		o.logger.Printf("ERROR: entries halted: %v", res.Err)
	}

	if !res.Filled() {
		o.stats.failed.Add(1)
		if _, err := o.portfolio.FailOpen(c.Token, fmt.Sprintf("%s: %v", res.Status, res.Err)); err != nil {
			o.logger.Printf("ERROR: fail entry %s: %v", c.Token, err)
		}
		o.logger.Printf("entry %s on %s %s after %d attempts: %v", c.Token, venue, res.Status, res.Attempts, res.Err)
		o.emit(domain.Event{
			Kind:       domain.EventExecutionFailed,
			Token:      c.Token,
			Symbol:     c.Symbol,
			PositionID: pending.ID,
			Venue:      venue,
			Reason:     fmt.Sprintf("entry %s: %v", res.Status, res.Err),
			Signature:  res.Signature,
		})
		return nil
	}

	pos, err := o.portfolio.ConfirmOpen(c.Token, portfolio.Fill{
		Price:       res.ExecutedPrice,
		TokenAmount: res.TokenAmount,
		QuoteAmount: res.QuoteAmount,
		Signature:   res.Signature,
		At:          o.now(),
	})
	if err != nil {
		o.logger.Printf("ERROR: confirm entry %s (tx %s): %v", c.Token, res.Signature, err)
		return nil
	}
	o.stats.filled.Add(1)
	o.logger.Printf("opened %s on %s at %.10f: %d units for %s SOL, tx %s",
		c.Token, venue, res.ExecutedPrice, res.TokenAmount, pos.EntryCost.StringFixed(6), res.Signature)
	o.emit(domain.Event{
		Kind:       domain.EventEntryFilled,
		Token:      c.Token,
		Symbol:     c.Symbol,
		PositionID: pos.ID,
		Venue:      venue,
		Price:      res.ExecutedPrice,
		Signature:  res.Signature,
	})

	if err := o.monitor.Track(ctx, c.Token); err != nil {
		// Journaled as OPEN: picked up by Resume after a restart
		o.logger.Printf("ERROR: monitor %s: %v", c.Token, err)
	}
	return pos
}

func portfolioReject(reason risk.RejectReason) bool {
	switch reason {
	case risk.RejectAlreadyOpen, risk.RejectMaxPositions, risk.RejectInsufficientCapital, risk.RejectEntriesHalted:
		return true
	}
	return false
}

// shutdown waits for in-flight entries, dispatched exits and engine work.
func (o *Orchestrator) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), o.shutdownGrace)
	defer cancel()

	o.logger.Printf("Shutting down: draining entries and exits (grace %s)", o.shutdownGrace)
	done := make(chan struct{})
	go func() {
		o.entries.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Printf("WARN: entries still in flight after %s", o.shutdownGrace)
	}

	if err := o.monitor.Wait(ctx); err != nil {
		o.logger.Printf("WARN: %v", err)
	}
	if err := o.executor.Drain(ctx); err != nil {
		o.logger.Printf("WARN: drain executions: %v", err)
	}

	r := o.Result()
	o.logger.Printf("Stopped: %d candidates, %d rejected, %d duplicates, %d entries filled, %d failed",
		r.CandidatesReceived, r.Rejected, r.Duplicates, r.EntriesFilled, r.EntriesFailed)
}

func (o *Orchestrator) emit(ev domain.Event) {
	if o.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = o.now()
	}
	o.events.Emit(ev)
}
