package alert

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"time"

	"solana-sniper/internal/domain"
)

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev domain.Event) error
}

// Emitter fans events out to sinks from a single goroutine.
// Emit never blocks: when the buffer is full the event is dropped and counted.
type Emitter struct {
	sinks       []Sink
	ch          chan domain.Event
	sendTimeout time.Duration
	logger      *log.Logger
	now         func() time.Time

	dropped atomic.Int64
	sent    atomic.Int64
	failed  atomic.Int64
}

// EmitterOptions contains configuration for creating an Emitter.
type EmitterOptions struct {
	Buffer      int           // queued events, default 256
	SendTimeout time.Duration // per sink delivery, default 10s
	Logger      *log.Logger
	Clock       func() time.Time
}

// NewEmitter creates an emitter delivering to sinks.
func NewEmitter(opts EmitterOptions, sinks ...Sink) *Emitter {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Emitter{
		sinks:       sinks,
		ch:          make(chan domain.Event, buffer),
		sendTimeout: timeout,
		logger:      logger,
		now:         clock,
	}
}

// Emit queues ev for delivery.
func (e *Emitter) Emit(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	select {
	case e.ch <- ev:
	default:
		if n := e.dropped.Add(1); n == 1 || n%100 == 0 {
			e.logger.Printf("WARN: alert buffer full, %d events dropped", n)
		}
	}
}

// Run delivers queued events until ctx is done, then flushes the buffer.
func (e *Emitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-e.ch:
					e.deliver(ev)
				default:
					return ctx.Err()
				}
			}
		case ev := <-e.ch:
			e.deliver(ev)
		}
	}
}

func (e *Emitter) deliver(ev domain.Event) {
	for _, s := range e.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), e.sendTimeout)
		err := s.Send(ctx, ev)
		cancel()
		if err != nil {
			e.failed.Add(1)
			e.logger.Printf("alert sink %s: %s %s: %v", s.Name(), ev.Kind, ev.Token, err)
			continue
		}
		e.sent.Add(1)
	}
}

// Dropped returns the number of events dropped on a full buffer.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// Sent returns the number of successful sink deliveries.
func (e *Emitter) Sent() int64 { return e.sent.Load() }

// Failed returns the number of failed sink deliveries.
func (e *Emitter) Failed() int64 { return e.failed.Load() }

// Close closes every sink that holds resources.
func (e *Emitter) Close() error {
	var errs []error
	for _, s := range e.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
