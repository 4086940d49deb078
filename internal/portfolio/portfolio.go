package portfolio

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/idhash"
	"solana-sniper/internal/storage"
)

const (
	defaultHistorySize = 256
	storeTimeout       = 5 * time.Second
)

// Fill is a confirmed swap applied to a position.
type Fill struct {
	Price       float64 // SOL per whole token
	TokenAmount uint64  // token base units
	QuoteAmount uint64  // lamports
	Signature   string
	At          time.Time
}

// Portfolio is the single owner of position state and committed capital.
// Operations on one token are serialized; distinct tokens proceed in parallel
// and only share the short aggregate lock.
type Portfolio struct {
	locks *keyedMutex

	mu          sync.RWMutex
	active      map[string]*domain.Position // token -> PENDING/OPEN/EXITING position
	reserved    map[string]decimal.Decimal  // token -> capital reserved at entry
	history     []*domain.Position          // ring of terminal positions
	historyNext int
	historyFull bool
	committed   decimal.Decimal
	realized    decimal.Decimal
	ceiling     decimal.Decimal
	maxOpen     int
	halted      bool
	haltReason  string

	store  storage.PositionStore
	logger *log.Logger
	now    func() time.Time
}

// Options contains configuration for creating a Portfolio.
type Options struct {
	CapitalCeiling   decimal.Decimal
	MaxOpenPositions int
	HistorySize      int                   // closed/failed positions kept in memory, default 256
	Store            storage.PositionStore // optional write-through journal
	Logger           *log.Logger
	Clock            func() time.Time
}

// New creates a new portfolio.
func New(opts Options) *Portfolio {
	size := opts.HistorySize
	if size <= 0 {
		size = defaultHistorySize
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Portfolio{
		locks:    newKeyedMutex(),
		active:   make(map[string]*domain.Position),
		reserved: make(map[string]decimal.Decimal),
		history:  make([]*domain.Position, size),
		ceiling:  opts.CapitalCeiling,
		maxOpen:  opts.MaxOpenPositions,
		store:    opts.Store,
		logger:   logger,
		now:      clock,
	}
}

// Restore loads active positions from the journal after a restart.
// PENDING entries have an unknown outcome and are failed, EXITING positions
// return to OPEN for re-evaluation.
func (p *Portfolio) Restore(ctx context.Context) (int, error) {
	if p.store == nil {
		return 0, nil
	}
	positions, err := p.store.ListByStatus(ctx, domain.StatusPending, domain.StatusOpen, domain.StatusExiting)
	if err != nil {
		return 0, fmt.Errorf("list active positions: %w", err)
	}

	restored := 0
	for _, pos := range positions {
		switch pos.Status {
		case domain.StatusPending:
			pos.Status = domain.StatusFailed
			pos.FailReason = "entry outcome unknown after restart"
			pos.UpdatedAt = p.now()
			p.logger.Printf("WARN: pending entry %s for %s failed on restart, verify wallet balance", pos.ID, pos.Token)
			p.persist(pos)
			continue
		case domain.StatusExiting:
			pos.Status = domain.StatusOpen
			pos.ExitReason = ""
			pos.UpdatedAt = p.now()
			p.persist(pos)
		}

		p.mu.Lock()
		if _, dup := p.active[pos.Token]; dup {
			p.mu.Unlock()
			p.logger.Printf("WARN: duplicate active position %s for %s in journal, skipped", pos.ID, pos.Token)
			continue
		}
		p.active[pos.Token] = pos
		p.reserved[pos.Token] = pos.EntryCost
		p.committed = p.committed.Add(pos.EntryCost)
		p.mu.Unlock()
		restored++
	}
	return restored, nil
}

// TryOpen reserves capital and records a PENDING position for the candidate.
func (p *Portfolio) TryOpen(c domain.CandidateRecord, venue domain.Venue, size decimal.Decimal) (*domain.Position, error) {
	unlock := p.locks.Lock(c.Token)
	defer unlock()

	if size.Sign() <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", domain.ErrInsufficientCapital)
	}

	now := p.now()
	p.mu.Lock()
	switch {
	case p.halted:
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrEntriesHalted, p.haltReason)
	case p.active[c.Token] != nil:
		p.mu.Unlock()
		return nil, domain.ErrAlreadyOpen
	case p.maxOpen > 0 && len(p.active) >= p.maxOpen:
		p.mu.Unlock()
		return nil, domain.ErrMaxPositions
	case p.committed.Add(size).GreaterThan(p.ceiling):
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s committed, %s requested, ceiling %s",
			domain.ErrInsufficientCapital, p.committed, size, p.ceiling)
	}

	pos := &domain.Position{
		ID:         idhash.PositionID(idhash.CandidateID(c.Token, c.DiscoveredAt), string(venue), size.String()),
		Token:      c.Token,
		Symbol:     c.Symbol,
		Status:     domain.StatusPending,
		EntryVenue: venue,
		Venue:      venue,
		Pool:       c.Pool,
		EntryCost:  size,
		OpenedAt:   now,
		UpdatedAt:  now,
	}
	p.active[c.Token] = pos
	p.reserved[c.Token] = size
	p.committed = p.committed.Add(size)
	out := pos.Clone()
	p.mu.Unlock()

	p.persist(out)
	return out, nil
}

// ConfirmOpen moves a PENDING position to OPEN with the executed fill.
// EntryCost becomes the actual cost; the capital reservation stays as approved.
func (p *Portfolio) ConfirmOpen(token string, fill Fill) (*domain.Position, error) {
	return p.transition(token, domain.StatusPending, domain.StatusOpen, func(pos *domain.Position) {
		if fill.QuoteAmount > 0 {
			pos.EntryCost = domain.LamportsToSOL(fill.QuoteAmount)
		}
		pos.EntryPrice = fill.Price
		pos.EntryTokenAmount = fill.TokenAmount
		pos.EntryTx = fill.Signature
		pos.LastPrice = fill.Price
		if !fill.At.IsZero() {
			pos.OpenedAt = fill.At
		}
	})
}

// FailOpen moves a PENDING position to FAILED and releases its capital.
func (p *Portfolio) FailOpen(token, reason string) (*domain.Position, error) {
	return p.transition(token, domain.StatusPending, domain.StatusFailed, func(pos *domain.Position) {
		pos.FailReason = reason
	})
}

// TryStartExit moves an OPEN position to EXITING. Only one exit can be in
// flight per position: a second call fails with ErrInvalidTransition.
func (p *Portfolio) TryStartExit(token string, reason domain.ExitReason) (*domain.Position, error) {
	return p.transition(token, domain.StatusOpen, domain.StatusExiting, func(pos *domain.Position) {
		pos.ExitReason = reason
	})
}

// AbortExit returns an EXITING position to OPEN after a failed exit.
func (p *Portfolio) AbortExit(token string) (*domain.Position, error) {
	return p.transition(token, domain.StatusExiting, domain.StatusOpen, func(pos *domain.Position) {
		pos.ExitReason = ""
	})
}

// ConfirmExit closes an EXITING position, releases its capital and realizes P/L.
func (p *Portfolio) ConfirmExit(token string, fill Fill) (*domain.Position, error) {
	return p.transition(token, domain.StatusExiting, domain.StatusClosed, func(pos *domain.Position) {
		pos.ExitPrice = fill.Price
		pos.ExitTokenAmount = fill.TokenAmount
		pos.ExitProceeds = domain.LamportsToSOL(fill.QuoteAmount)
		pos.ExitTx = fill.Signature
		pos.ClosedAt = fill.At
		if pos.ClosedAt.IsZero() {
			pos.ClosedAt = p.now()
		}
		p.realized = p.realized.Add(pos.ExitProceeds.Sub(pos.EntryCost))
	})
}

// transition applies a state change under the token lock and writes it through.
func (p *Portfolio) transition(token string, from, to domain.PositionStatus, apply func(*domain.Position)) (*domain.Position, error) {
	unlock := p.locks.Lock(token)
	defer unlock()

	p.mu.Lock()
	pos := p.active[token]
	if pos == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, token)
	}
	if pos.Status != from || !from.CanTransition(to) {
		status := pos.Status
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s, want %s -> %s", domain.ErrInvalidTransition, token, status, from, to)
	}

	apply(pos)
	pos.Status = to
	pos.UpdatedAt = p.now()
	if to.Terminal() {
		p.committed = p.committed.Sub(p.reserved[token])
		delete(p.reserved, token)
		delete(p.active, token)
		p.pushHistory(pos)
	}
	out := pos.Clone()
	p.mu.Unlock()

	p.persist(out)
	return out, nil
}

// MarkMigrated flags the position's curve as migrated. A non-empty venue
// becomes the exit venue.
func (p *Portfolio) MarkMigrated(token string, venue domain.Venue) (*domain.Position, error) {
	unlock := p.locks.Lock(token)
	defer unlock()

	p.mu.Lock()
	pos := p.active[token]
	if pos == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, token)
	}
	pos.Migrated = true
	if venue != "" {
		pos.Venue = venue
	}
	pos.UpdatedAt = p.now()
	out := pos.Clone()
	p.mu.Unlock()

	p.persist(out)
	return out, nil
}

// UpdateMark records the last observed price and liquidity. Not journaled.
func (p *Portfolio) UpdateMark(token string, price, liquidity float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos := p.active[token]; pos != nil {
		if price > 0 {
			pos.LastPrice = price
		}
		if liquidity >= 0 {
			pos.LastLiquidity = liquidity
		}
	}
}

// HaltEntries stops new entries. Exits keep working.
func (p *Portfolio) HaltEntries(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = true
	p.haltReason = reason
}

// ResumeEntries re-enables entries.
func (p *Portfolio) ResumeEntries() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = false
	p.haltReason = ""
}

// Get returns a copy of the active position for token.
func (p *Portfolio) Get(token string) (*domain.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.active[token]
	return pos.Clone(), ok
}

// Open returns copies of all active positions ordered by OpenedAt.
func (p *Portfolio) Open() []*domain.Position {
	p.mu.RLock()
	out := make([]*domain.Position, 0, len(p.active))
	for _, pos := range p.active {
		out = append(out, pos.Clone())
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// History returns terminal positions, oldest first.
func (p *Portfolio) History() []*domain.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*domain.Position
	if p.historyFull {
		for _, pos := range p.history[p.historyNext:] {
			out = append(out, pos.Clone())
		}
	}
	for _, pos := range p.history[:p.historyNext] {
		out = append(out, pos.Clone())
	}
	return out
}

func (p *Portfolio) pushHistory(pos *domain.Position) {
	p.history[p.historyNext] = pos
	p.historyNext++
	if p.historyNext == len(p.history) {
		p.historyNext = 0
		p.historyFull = true
	}
}

// Snapshot returns a consistent view for the risk gate and reporting.
func (p *Portfolio) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		OpenCount:        len(p.active),
		MaxOpenPositions: p.maxOpen,
		Committed:        p.committed,
		Ceiling:          p.ceiling,
		Available:        p.ceiling.Sub(p.committed),
		Realized:         p.realized,
		Unrealized:       decimal.Zero,
		EntriesHalted:    p.halted,
		HaltReason:       p.haltReason,
		Active:           make(map[string]domain.PositionStatus, len(p.active)),
		TakenAt:          p.now(),
	}
	for token, pos := range p.active {
		s.Active[token] = pos.Status
		if pos.Status != domain.StatusPending {
			s.Unrealized = s.Unrealized.Add(pos.UnrealizedPnL(pos.LastPrice))
		}
	}
	return s
}

// CheckInvariants verifies the portfolio's accounting.
func (p *Portfolio) CheckInvariants() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sum := decimal.Zero
	for token, pos := range p.active {
		if pos.Token != token {
			return fmt.Errorf("position %s indexed under %s", pos.Token, token)
		}
		if !pos.Status.Active() {
			return fmt.Errorf("position %s for %s is %s but still active", pos.ID, token, pos.Status)
		}
		r, ok := p.reserved[token]
		if !ok {
			return fmt.Errorf("position %s for %s has no capital reservation", pos.ID, token)
		}
		sum = sum.Add(r)
	}
	if len(p.reserved) != len(p.active) {
		return fmt.Errorf("%d reservations for %d active positions", len(p.reserved), len(p.active))
	}
	if !sum.Equal(p.committed) {
		return fmt.Errorf("committed %s != sum of reservations %s", p.committed, sum)
	}
	if p.committed.GreaterThan(p.ceiling) {
		return fmt.Errorf("committed %s exceeds ceiling %s", p.committed, p.ceiling)
	}
	if p.maxOpen > 0 && len(p.active) > p.maxOpen {
		return fmt.Errorf("%d active positions exceed max %d", len(p.active), p.maxOpen)
	}
	return nil
}

// persist writes a position through to the journal. Failures are logged:
// the in-memory state reflects on-chain facts and is never rolled back.
func (p *Portfolio) persist(pos *domain.Position) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.store.Upsert(ctx, pos); err != nil {
		p.logger.Printf("ERROR: persist position %s (%s %s): %v", pos.ID, pos.Token, pos.Status, err)
	}
}
