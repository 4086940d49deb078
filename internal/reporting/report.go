// Package reporting summarizes the position journal: realized P/L, win
// rate and return distribution, overall and grouped by exit reason and
// venue.
package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

// Report is a point-in-time view of the journal.
type Report struct {
	GeneratedAt time.Time

	Summary      Summary
	ByExitReason []GroupRow // sorted by key
	ByVenue      []GroupRow // sorted by key

	Active []*domain.Position // PENDING, OPEN and EXITING, oldest first
	Closed []*domain.Position // CLOSED, in close order
	Failed []*domain.Position // FAILED entries, oldest first
}

// Summary aggregates closed positions.
type Summary struct {
	Closed int
	Active int
	Failed int

	Wins    int
	Losses  int
	WinRate float64

	Invested    decimal.Decimal // sum of entry cost of closed positions
	RealizedPnL decimal.Decimal

	// Per-position return as a fraction of entry cost
	ReturnMean   float64
	ReturnMedian float64
	ReturnP10    float64
	ReturnP90    float64
	ReturnMin    float64
	ReturnMax    float64
	ReturnStddev float64

	MaxDrawdown          float64 // SOL, peak to trough of cumulative realized P/L
	MaxConsecutiveLosses int
	AvgHold              time.Duration

	FirstOpened time.Time
	LastClosed  time.Time
}

// GroupRow summarizes the closed positions sharing a key.
type GroupRow struct {
	Key          string
	Trades       int
	Wins         int
	WinRate      float64
	RealizedPnL  decimal.Decimal
	ReturnMedian float64
}
