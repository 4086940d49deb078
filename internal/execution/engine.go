package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/venue"
)

// Intent is the purpose of an execution request.
type Intent string

// Intent values
const (
	IntentEntry Intent = "entry"
	IntentExit  Intent = "exit"
)

// Request is one entry or exit to execute.
type Request struct {
	Intent      Intent
	Venue       domain.Venue
	Token       string
	Amount      uint64 // lamports for entries, token base units for exits
	SlippageBps int
	PositionID  string
}

// Side returns the swap direction of the request.
func (r Request) Side() domain.Side {
	if r.Intent == IntentExit {
		return domain.SideSell
	}
	return domain.SideBuy
}

// Adapters resolves the adapter for a venue.
type Adapters interface {
	Get(v domain.Venue) (venue.Adapter, error)
}

// Observer is notified of every finished execution.
type Observer func(req Request, res domain.ExecutionResult, elapsed time.Duration)

// Engine submits swaps and determines their outcome. It never reports a
// fill it has not observed on chain.
type Engine struct {
	adapters           Adapters
	sem                *semaphore.Weighted
	limiter            *rate.Limiter
	maxRetries         int
	baseBackoff        time.Duration
	maxBackoff         time.Duration
	confirmTimeout     time.Duration
	requeryTimeout     time.Duration
	maxSigningFailures int32
	observer           Observer
	logger             *log.Logger

	signingFailures atomic.Int32
	signingDown     atomic.Bool
	exits           sync.WaitGroup
}

// Options contains configuration for creating an Engine.
type Options struct {
	Adapters           Adapters
	MaxInFlight        int           // concurrent executions, default 8
	RPS                float64       // submissions per second, default 10
	Burst              int           // limiter burst, default MaxInFlight
	MaxRetries         int           // transient retries, default 3
	BaseBackoff        time.Duration // default 250ms
	MaxBackoff         time.Duration // default 4s
	ConfirmTimeout     time.Duration // default 30s
	RequeryTimeout     time.Duration // default 5s
	MaxSigningFailures int           // consecutive failures before signing is unavailable, default 3
	Observer           Observer
	Logger             *log.Logger
}

// New creates a new execution engine.
func New(opts Options) *Engine {
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = maxInFlight
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = 3
	}
	baseBackoff := opts.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 250 * time.Millisecond
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 4 * time.Second
	}
	confirmTimeout := opts.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 30 * time.Second
	}
	requeryTimeout := opts.RequeryTimeout
	if requeryTimeout <= 0 {
		requeryTimeout = 5 * time.Second
	}
	maxSigning := opts.MaxSigningFailures
	if maxSigning <= 0 {
		maxSigning = 3
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		adapters:           opts.Adapters,
		sem:                semaphore.NewWeighted(int64(maxInFlight)),
		limiter:            rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries:         maxRetries,
		baseBackoff:        baseBackoff,
		maxBackoff:         maxBackoff,
		confirmTimeout:     confirmTimeout,
		requeryTimeout:     requeryTimeout,
		maxSigningFailures: int32(maxSigning),
		observer:           opts.Observer,
		logger:             logger,
	}
}

// SigningAvailable reports whether entries can still be signed.
func (e *Engine) SigningAvailable() bool {
	return !e.signingDown.Load()
}

// Execute runs req to a terminal outcome: FILLED, FAILED or TIMED_OUT.
// Transient errors are retried with exponential backoff; venue rejections
// and slippage violations are returned immediately.
func (e *Engine) Execute(ctx context.Context, req Request) domain.ExecutionResult {
	start := time.Now()
	if req.Intent == IntentExit {
		e.exits.Add(1)
		defer e.exits.Done()
	}

	res := e.execute(ctx, req)
	if e.observer != nil {
		e.observer(req, res, time.Since(start))
	}
	return res
}

func (e *Engine) execute(ctx context.Context, req Request) domain.ExecutionResult {
	if req.Intent == IntentEntry && e.signingDown.Load() {
		return failed(domain.ErrSigningUnavailable, 0)
	}
	if req.Amount == 0 {
		return failed(fmt.Errorf("zero amount for %s %s", req.Intent, req.Token), 0)
	}
	adapter, err := e.adapters.Get(req.Venue)
	if err != nil {
		return failed(err, 0)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return failed(err, 0)
	}
	defer e.sem.Release(1)

	var (
		lastErr error
		pending *venue.Handle // submitted but unconfirmed after a transient send error
		res     domain.ExecutionResult
	)
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		res.Attempts = attempt + 1
		res.AttemptID = uuid.NewString()

		if attempt > 0 {
			if err := e.sleep(ctx, attempt-1); err != nil {
				return e.finish(failed(err, res.Attempts), res)
			}
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return e.finish(failed(fmt.Errorf("rate limiter: %w", err), res.Attempts), res)
		}

		// A previous send may have reached the leader despite the error
		if pending != nil {
			conf, err := adapter.Confirm(ctx, *pending, e.requeryTimeout)
			switch {
			case conf.State == venue.ConfirmFilled:
				return e.finish(filled(conf, res.Attempts), res)
			case conf.State == venue.ConfirmFailed:
				return e.finish(failed(rejectionFrom(req, conf, err), res.Attempts), res)
			}
			pending = nil
		}

		tx, err := adapter.BuildSwap(ctx, req.Token, req.Side(), req.Amount, req.SlippageBps)
		if err != nil {
			lastErr = err
			if e.retryable(ctx, err) {
				e.logger.Printf("[%s] %s %s build failed, retrying: %v", res.AttemptID, req.Intent, req.Token, err)
				continue
			}
			return e.finish(failed(err, res.Attempts), res)
		}

		h, err := adapter.Submit(ctx, tx)
		if h.Signature != "" {
			res.Signature = h.Signature
		}
		if err != nil {
			lastErr = err
			if errors.Is(err, venue.ErrSigning) || errors.Is(err, solana.ErrNoSigner) {
				return e.finish(failed(e.signingFailed(err), res.Attempts), res)
			}
			if e.retryable(ctx, err) {
				if h.Signature != "" {
					pending = &h
				}
				e.logger.Printf("[%s] %s %s submit failed, retrying: %v", res.AttemptID, req.Intent, req.Token, err)
				continue
			}
			return e.finish(failed(err, res.Attempts), res)
		}
		e.signingFailures.Store(0)

		return e.finish(e.confirm(ctx, adapter, req, h, res.Attempts), res)
	}

	if pending != nil {
		conf, err := adapter.Confirm(ctx, *pending, e.requeryTimeout)
		switch conf.State {
		case venue.ConfirmFilled:
			return e.finish(filled(conf, res.Attempts), res)
		case venue.ConfirmFailed:
			return e.finish(failed(rejectionFrom(req, conf, err), res.Attempts), res)
		default:
			return e.finish(timedOut(pending.Signature, e.requeryTimeout, res.Attempts), res)
		}
	}
	return e.finish(failed(fmt.Errorf("retries exhausted after %d attempts: %w", res.Attempts, lastErr), res.Attempts), res)
}

// confirm waits for h, then re-queries once before classifying it TIMED_OUT.
func (e *Engine) confirm(ctx context.Context, adapter venue.Adapter, req Request, h venue.Handle, attempts int) domain.ExecutionResult {
	conf, err := adapter.Confirm(ctx, h, e.confirmTimeout)
	if conf.State == venue.ConfirmPending && ctx.Err() == nil {
		e.logger.Printf("%s %s: %s unconfirmed after %s, re-querying", req.Intent, req.Token, h.Signature, e.confirmTimeout)
		conf, err = adapter.Confirm(ctx, h, e.requeryTimeout)
	}

	switch conf.State {
	case venue.ConfirmFilled:
		return filled(conf, attempts)
	case venue.ConfirmFailed:
		return failed(rejectionFrom(req, conf, err), attempts)
	}
	res := timedOut(h.Signature, e.confirmTimeout+e.requeryTimeout, attempts)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", res.Err, err)
	}
	return res
}

func (e *Engine) finish(res, progress domain.ExecutionResult) domain.ExecutionResult {
	res.AttemptID = progress.AttemptID
	if res.Signature == "" {
		res.Signature = progress.Signature
	}
	return res
}

func (e *Engine) retryable(ctx context.Context, err error) bool {
	return ctx.Err() == nil && solana.IsTransient(err)
}

// signingFailed counts a signing failure and trips signing unavailability
// after maxSigningFailures consecutive ones.
func (e *Engine) signingFailed(err error) error {
	n := e.signingFailures.Add(1)
	if n >= e.maxSigningFailures {
		if !e.signingDown.Swap(true) {
			e.logger.Printf("FATAL: %d consecutive signing failures, entries disabled: %v", n, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrSigningUnavailable, err)
	}
	return err
}

func (e *Engine) backoff(n int) time.Duration {
	d := e.baseBackoff << n
	if d <= 0 || d > e.maxBackoff {
		return e.maxBackoff
	}
	return d
}

func (e *Engine) sleep(ctx context.Context, n int) error {
	t := time.NewTimer(e.backoff(n))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Drain waits for in-flight exits until ctx expires.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.exits.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain exits: %w", ctx.Err())
	}
}

func filled(conf venue.Confirmation, attempts int) domain.ExecutionResult {
	return domain.ExecutionResult{
		Status:        domain.ExecutionFilled,
		ExecutedPrice: conf.ExecutedPrice,
		TokenAmount:   conf.ExecutedAmount,
		QuoteAmount:   conf.QuoteAmount,
		Signature:     conf.Signature,
		Attempts:      attempts,
	}
}

func failed(err error, attempts int) domain.ExecutionResult {
	return domain.ExecutionResult{Status: domain.ExecutionFailed, Err: err, Attempts: attempts}
}

func timedOut(signature string, after time.Duration, attempts int) domain.ExecutionResult {
	return domain.ExecutionResult{
		Status:    domain.ExecutionTimedOut,
		Signature: signature,
		Err:       &domain.ConfirmationTimeout{Signature: signature, After: after},
		Attempts:  attempts,
	}
}

func rejectionFrom(req Request, conf venue.Confirmation, err error) error {
	if domain.IsVenueRejection(err) {
		return err
	}
	return &domain.VenueRejection{Venue: req.Venue, Reason: conf.Reason, Err: err}
}
