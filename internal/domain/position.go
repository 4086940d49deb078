package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

// Position status values
const (
	StatusPending PositionStatus = "PENDING" // entry submitted, not confirmed
	StatusOpen    PositionStatus = "OPEN"    // entry filled, monitored
	StatusExiting PositionStatus = "EXITING" // exit submitted, not confirmed
	StatusClosed  PositionStatus = "CLOSED"  // exit filled
	StatusFailed  PositionStatus = "FAILED"  // entry never filled
)

// positionTransitions lists the allowed target states per source state.
var positionTransitions = map[PositionStatus][]PositionStatus{
	StatusPending: {StatusOpen, StatusFailed},
	StatusOpen:    {StatusExiting},
	StatusExiting: {StatusClosed, StatusOpen},
}

// CanTransition reports whether a position may move from s to next.
func (s PositionStatus) CanTransition(next PositionStatus) bool {
	for _, allowed := range positionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether the status holds a token slot (PENDING, OPEN or EXITING).
func (s PositionStatus) Active() bool {
	return s == StatusPending || s == StatusOpen || s == StatusExiting
}

// Terminal reports whether no further transition is possible.
func (s PositionStatus) Terminal() bool {
	return s == StatusClosed || s == StatusFailed
}

// ExitReason explains why a position was closed.
type ExitReason string

// Exit reason codes
const (
	ExitTakeProfit        ExitReason = "TAKE_PROFIT"
	ExitStopLoss          ExitReason = "STOP_LOSS"
	ExitMaxHoldExceeded   ExitReason = "MAX_HOLD_EXCEEDED"
	ExitManual            ExitReason = "MANUAL"
	ExitLiquidityCollapse ExitReason = "LIQUIDITY_COLLAPSE"
)

// Position is a held (or attempted) quantity of one token.
// Corresponds to positions table in PostgreSQL / SQLite.
type Position struct {
	ID     string         // deterministic hash of token + candidate timestamp
	Token  string         // token mint address
	Symbol string         // token symbol, optional
	Status PositionStatus // lifecycle state

	EntryVenue Venue  // venue the entry was routed to
	Venue      Venue  // venue exits are routed to (AMM after migration with requote)
	Pool       string // pool or bonding-curve address, optional

	// Entry
	EntryCost        decimal.Decimal // quote committed (SOL)
	EntryPrice       float64         // executed price, SOL per whole token
	EntryTokenAmount uint64          // token base units received
	EntryTx          string          // entry transaction signature
	OpenedAt         time.Time       // entry confirmation time (creation time while PENDING)

	// Exit
	ExitPrice       float64         // executed exit price
	ExitTokenAmount uint64          // token base units sold
	ExitProceeds    decimal.Decimal // quote received (SOL)
	ExitTx          string          // exit transaction signature
	ExitReason      ExitReason      // set when exit starts
	ClosedAt        time.Time       // exit confirmation time

	FailReason string // why the entry failed, FAILED only

	// Monitor hints
	Migrated      bool      // curve completed, liquidity moved to AMM
	LastPrice     float64   // last observed price
	LastLiquidity float64   // last observed liquidity
	UpdatedAt     time.Time // last state change
}

// Clone returns a copy safe to hand out of the portfolio.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// UnrealizedPnL returns the mark-to-market P/L in SOL at price.
func (p *Position) UnrealizedPnL(price float64) decimal.Decimal {
	if p.EntryPrice <= 0 || price <= 0 {
		return decimal.Zero
	}
	ratio := decimal.NewFromFloat(price / p.EntryPrice)
	return p.EntryCost.Mul(ratio).Sub(p.EntryCost)
}

// RealizedPnL returns exit proceeds minus entry cost. Zero unless CLOSED.
func (p *Position) RealizedPnL() decimal.Decimal {
	if p.Status != StatusClosed {
		return decimal.Zero
	}
	return p.ExitProceeds.Sub(p.EntryCost)
}

// HeldFor returns how long the position has been open at now.
func (p *Position) HeldFor(now time.Time) time.Duration {
	if p.OpenedAt.IsZero() {
		return 0
	}
	return now.Sub(p.OpenedAt)
}
