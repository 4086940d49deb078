package monitor

import (
	"context"
	"time"

	"solana-sniper/internal/domain"
)

type msgKind int

const (
	msgPrice msgKind = iota
	msgManual
	msgExitDone
)

// message is one entry of a worker's mailbox.
type message struct {
	kind     msgKind
	update   domain.PriceUpdate
	reason   domain.ExitReason
	closed   bool
	stranded bool // the exit venue can no longer trade the token
}

// worker serializes everything that happens to one position: price updates,
// timer ticks, manual exit requests and exit results.
type worker struct {
	m          *Monitor
	token      string
	positionID string
	mailbox    chan message
	done       chan struct{}

	exiting   bool
	retryAt   time.Time
	stranded  bool
	migrated  bool
	last      domain.PriceUpdate
	subCancel context.CancelFunc
}

func newWorker(m *Monitor, pos *domain.Position) *worker {
	return &worker{
		m:          m,
		token:      pos.Token,
		positionID: pos.ID,
		mailbox:    make(chan message, 16),
		done:       make(chan struct{}),
		migrated:   pos.Migrated,
		last:       domain.PriceUpdate{Token: pos.Token, Price: pos.LastPrice, Liquidity: -1},
	}
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	w.subscribe(ctx)
	defer w.unsubscribe()

	ticker := time.NewTicker(w.m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.mailbox:
			if w.handle(ctx, msg) {
				return
			}
		case <-ticker.C:
			u := w.last
			u.ObservedAt = w.m.now()
			if w.evaluate(u) {
				return
			}
		}
	}
}

// handle processes one message and reports whether the worker is done.
func (w *worker) handle(ctx context.Context, msg message) bool {
	switch msg.kind {
	case msgPrice:
		return w.onPrice(ctx, msg.update)
	case msgManual:
		if w.exiting {
			w.m.logger.Printf("exit of %s already in flight, ignoring %s", w.token, msg.reason)
			return false
		}
		return w.startExit(msg.reason)
	case msgExitDone:
		w.exiting = false
		if msg.closed {
			return true
		}
		if msg.stranded && !w.stranded {
			w.stranded = true
			w.m.logger.Printf("WARN: %s exit venue has migrated, automatic exits stopped until a manual exit", w.token)
		}
		w.retryAt = w.m.now().Add(w.m.retryDelay)
	}
	return false
}

func (w *worker) onPrice(ctx context.Context, u domain.PriceUpdate) bool {
	if u.Migrated && !w.migrated {
		w.migrate(ctx)
	}

	if u.Price > 0 {
		w.last.Price = u.Price
	}
	w.last.Liquidity = u.Liquidity
	w.last.Migrated = u.Migrated
	w.last.Slot = u.Slot
	w.last.Source = u.Source

	w.m.portfolio.UpdateMark(w.token, u.Price, u.Liquidity)
	w.m.record(w.positionID, u)
	return w.evaluate(u)
}

// evaluate applies the exit rules and reports whether the worker is done.
func (w *worker) evaluate(u domain.PriceUpdate) bool {
	if w.exiting || w.stranded {
		return false
	}
	now := w.m.now()
	if now.Before(w.retryAt) {
		return false
	}

	pos, ok := w.m.portfolio.Get(w.token)
	if !ok || pos.ID != w.positionID {
		return true
	}
	reason, exit := Evaluate(pos, u, now, w.m.cfg)
	if !exit {
		return false
	}
	w.m.logger.Printf("%s triggered for %s at %.10f (entry %.10f)", reason, w.token, w.last.Price, pos.EntryPrice)
	return w.startExit(reason)
}

func (w *worker) startExit(reason domain.ExitReason) bool {
	pos, err := w.m.portfolio.TryStartExit(w.token, reason)
	if err != nil {
		w.m.logger.Printf("start exit %s: %v", w.token, err)
		_, ok := w.m.portfolio.Get(w.token)
		return !ok
	}
	w.exiting = true
	w.m.exits.Add(1)
	go w.m.runExit(w, pos, reason)
	return false
}

// migrate marks the curve as migrated and, when exits requote to the AMM,
// moves the price subscription there.
func (w *worker) migrate(ctx context.Context) {
	w.migrated = true

	before, _ := w.m.portfolio.Get(w.token)
	var exitVenue domain.Venue
	if w.m.cfg.RequoteOnMigration {
		exitVenue = domain.VenueAMM
	}
	pos, err := w.m.portfolio.MarkMigrated(w.token, exitVenue)
	if err != nil {
		w.m.logger.Printf("mark %s migrated: %v", w.token, err)
		return
	}
	w.m.logger.Printf("%s migrated, exits routed to %s", w.token, pos.Venue)
	w.m.emit(domain.Event{
		Kind:       domain.EventMigration,
		Token:      w.token,
		Symbol:     pos.Symbol,
		PositionID: pos.ID,
		Venue:      pos.Venue,
		Reason:     "bonding curve complete",
	})

	if before != nil && before.Venue != pos.Venue {
		w.unsubscribe()
		w.subscribe(ctx)
	}
}

func (w *worker) subscribe(ctx context.Context) {
	if w.m.prices == nil {
		return
	}
	pos, ok := w.m.portfolio.Get(w.token)
	if !ok {
		return
	}

	subCtx, cancel := context.WithCancel(ctx)
	updates, err := w.m.prices.Subscribe(subCtx, pos)
	if err != nil {
		cancel()
		w.m.logger.Printf("price subscription for %s on %s: %v, timer only", w.token, pos.Venue, err)
		return
	}
	w.subCancel = cancel
	go w.forward(subCtx, updates)
}

func (w *worker) unsubscribe() {
	if w.subCancel != nil {
		w.subCancel()
		w.subCancel = nil
	}
}

// forward moves stream updates into the mailbox. While the worker is busy
// only the newest update is kept, so the stream is never blocked.
func (w *worker) forward(ctx context.Context, updates <-chan domain.PriceUpdate) {
	var pending *domain.PriceUpdate
	for {
		var out chan<- message
		var msg message
		if pending != nil {
			out = w.mailbox
			msg = message{kind: msgPrice, update: *pending}
		}

		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case u, ok := <-updates:
			if !ok {
				updates = nil
				if pending == nil {
					return
				}
				continue
			}
			pending = &u
		case out <- msg:
			pending = nil
			if updates == nil {
				return
			}
		}
	}
}
