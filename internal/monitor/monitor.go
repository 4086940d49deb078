package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/portfolio"
)

// Executor runs exit swaps.
type Executor interface {
	Execute(ctx context.Context, req execution.Request) domain.ExecutionResult
}

// EventSink receives telemetry. Emit must not block.
type EventSink interface {
	Emit(ev domain.Event)
}

// Monitor watches open positions and exits them when a rule fires.
// Each position has one worker goroutine; only that worker starts exits
// for its position.
type Monitor struct {
	portfolio    *portfolio.Portfolio
	executor     Executor
	prices       PriceSource
	cfg          domain.RiskConfig
	tickInterval time.Duration
	exitTimeout  time.Duration
	retryDelay   time.Duration
	recorder     *TickRecorder
	events       EventSink
	logger       *log.Logger
	now          func() time.Time

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup // workers
	exits   sync.WaitGroup // dispatched exits
}

// Options contains configuration for creating a Monitor.
type Options struct {
	Portfolio      *portfolio.Portfolio
	Executor       Executor
	Prices         PriceSource // optional, timer-only evaluation when nil
	Risk           domain.RiskConfig
	TickInterval   time.Duration // periodic evaluation, default 1s
	ExitTimeout    time.Duration // bound on one exit execution, default 2m
	ExitRetryDelay time.Duration // pause after a failed exit, default 2s
	Recorder       *TickRecorder // optional
	Events         EventSink     // optional
	Logger         *log.Logger
	Clock          func() time.Time
}

// New creates a new position monitor.
func New(opts Options) *Monitor {
	tick := opts.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	exitTimeout := opts.ExitTimeout
	if exitTimeout <= 0 {
		exitTimeout = 2 * time.Minute
	}
	retryDelay := opts.ExitRetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Monitor{
		portfolio:    opts.Portfolio,
		executor:     opts.Executor,
		prices:       opts.Prices,
		cfg:          opts.Risk,
		tickInterval: tick,
		exitTimeout:  exitTimeout,
		retryDelay:   retryDelay,
		recorder:     opts.Recorder,
		events:       opts.Events,
		logger:       logger,
		now:          clock,
		workers:      make(map[string]*worker),
	}
}

// Track starts monitoring the OPEN position of token until it closes or ctx
// is done. Tracking a token twice is a no-op.
func (m *Monitor) Track(ctx context.Context, token string) error {
	pos, ok := m.portfolio.Get(token)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPositionNotFound, token)
	}
	if pos.Status != domain.StatusOpen {
		return fmt.Errorf("%w: %s is %s, want %s", domain.ErrInvalidTransition, token, pos.Status, domain.StatusOpen)
	}

	m.mu.Lock()
	if _, ok := m.workers[token]; ok {
		m.mu.Unlock()
		return nil
	}
	w := newWorker(m, pos)
	m.workers[token] = w
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer m.remove(token, w)
		w.run(ctx)
	}()
	return nil
}

func (m *Monitor) remove(token string, w *worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.workers[token] == w {
		delete(m.workers, token)
	}
}

// RequestExit asks the position's worker to exit with reason.
// It is ignored if an exit is already in flight.
func (m *Monitor) RequestExit(ctx context.Context, token string, reason domain.ExitReason) error {
	m.mu.Lock()
	w := m.workers[token]
	m.mu.Unlock()
	if w == nil {
		return fmt.Errorf("%w: %s is not monitored", domain.ErrPositionNotFound, token)
	}

	select {
	case w.mailbox <- message{kind: msgManual, reason: reason}:
		return nil
	case <-w.done:
		return fmt.Errorf("%w: %s is no longer monitored", domain.ErrPositionNotFound, token)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tracked returns the monitored tokens in name order.
func (m *Monitor) Tracked() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.workers))
	for token := range m.workers {
		out = append(out, token)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

// Wait blocks until all workers have stopped and dispatched exits have
// finished, or ctx is done.
func (m *Monitor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		m.exits.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for monitor: %w", ctx.Err())
	}
}

// runExit executes the exit for pos and applies the outcome to the portfolio.
// Exits run on their own deadline so shutdown does not abandon them.
func (m *Monitor) runExit(w *worker, pos *domain.Position, reason domain.ExitReason) {
	defer m.exits.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.exitTimeout)
	defer cancel()

	res := m.executor.Execute(ctx, execution.Request{
		Intent:      execution.IntentExit,
		Venue:       pos.Venue,
		Token:       pos.Token,
		Amount:      pos.EntryTokenAmount,
		SlippageBps: m.cfg.SlippageBps,
		PositionID:  pos.ID,
	})
	closed := m.applyExit(pos, reason, res)
	stranded := !closed && errors.Is(res.Err, domain.ErrMigrated)

	select {
	case w.mailbox <- message{kind: msgExitDone, closed: closed, stranded: stranded}:
	case <-w.done:
	}
}

func (m *Monitor) applyExit(pos *domain.Position, reason domain.ExitReason, res domain.ExecutionResult) bool {
	if res.Filled() {
		closed, err := m.portfolio.ConfirmExit(pos.Token, portfolio.Fill{
			Price:       res.ExecutedPrice,
			TokenAmount: res.TokenAmount,
			QuoteAmount: res.QuoteAmount,
			Signature:   res.Signature,
			At:          m.now(),
		})
		if err != nil {
			m.logger.Printf("ERROR: confirm exit %s: %v", pos.Token, err)
			return false
		}
		pnl := closed.RealizedPnL()
		m.logger.Printf("closed %s (%s) at %.10f: pnl %s SOL, tx %s", pos.Token, reason, res.ExecutedPrice, pnl.StringFixed(6), res.Signature)
		m.emit(domain.Event{
			Kind:       domain.EventExitFilled,
			Token:      pos.Token,
			Symbol:     pos.Symbol,
			PositionID: pos.ID,
			Venue:      pos.Venue,
			Reason:     string(reason),
			Price:      res.ExecutedPrice,
			PnL:        pnl.String(),
			Signature:  res.Signature,
		})
		return true
	}

	if _, err := m.portfolio.AbortExit(pos.Token); err != nil {
		m.logger.Printf("ERROR: abort exit %s: %v", pos.Token, err)
	}
	m.logger.Printf("exit %s (%s) %s after %d attempts: %v", pos.Token, reason, res.Status, res.Attempts, res.Err)
	m.emit(domain.Event{
		Kind:       domain.EventExecutionFailed,
		Token:      pos.Token,
		Symbol:     pos.Symbol,
		PositionID: pos.ID,
		Venue:      pos.Venue,
		Reason:     fmt.Sprintf("exit %s %s: %v", reason, res.Status, res.Err),
		Signature:  res.Signature,
	})
	return false
}

func (m *Monitor) emit(ev domain.Event) {
	if m.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = m.now()
	}
	m.events.Emit(ev)
}

func (m *Monitor) record(positionID string, u domain.PriceUpdate) {
	if m.recorder == nil || u.Price <= 0 {
		return
	}
	at := u.ObservedAt
	if at.IsZero() {
		at = m.now()
	}
	m.recorder.Record(&domain.PriceTick{
		PositionID:  positionID,
		Token:       u.Token,
		TimestampMs: at.UnixMilli(),
		Slot:        u.Slot,
		Price:       u.Price,
		Liquidity:   u.Liquidity,
		Source:      u.Source,
	})
}
