package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

// Snapshot is a point-in-time view of the portfolio.
type Snapshot struct {
	OpenCount        int // PENDING + OPEN + EXITING
	MaxOpenPositions int
	Committed        decimal.Decimal // capital reserved by active positions
	Ceiling          decimal.Decimal
	Available        decimal.Decimal // Ceiling - Committed
	Realized         decimal.Decimal
	Unrealized       decimal.Decimal // at last observed prices
	EntriesHalted    bool
	HaltReason       string
	Active           map[string]domain.PositionStatus
	TakenAt          time.Time
}

// HasActive reports whether token holds a PENDING, OPEN or EXITING position.
func (s Snapshot) HasActive(token string) bool {
	_, ok := s.Active[token]
	return ok
}

// AtCapacity reports whether the open position cap is reached.
func (s Snapshot) AtCapacity() bool {
	return s.MaxOpenPositions > 0 && s.OpenCount >= s.MaxOpenPositions
}
