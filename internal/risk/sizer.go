package risk

import (
	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/portfolio"
)

// Sizer decides how much quote to commit to an entry.
type Sizer interface {
	Size(cfg domain.RiskConfig, snap portfolio.Snapshot) decimal.Decimal
}

// FixedSizer commits cfg.EntrySize to every entry.
type FixedSizer struct{}

// Size returns cfg.EntrySize.
func (FixedSizer) Size(cfg domain.RiskConfig, _ portfolio.Snapshot) decimal.Decimal {
	return cfg.EntrySize
}

// ProportionalSizer commits a fraction of available capital, capped at cfg.EntrySize.
type ProportionalSizer struct {
	Fraction decimal.Decimal // in (0, 1]
}

// Size returns Fraction * available, never more than cfg.EntrySize.
func (s ProportionalSizer) Size(cfg domain.RiskConfig, snap portfolio.Snapshot) decimal.Decimal {
	if s.Fraction.Sign() <= 0 || snap.Available.Sign() <= 0 {
		return decimal.Zero
	}
	size := snap.Available.Mul(s.Fraction).Truncate(9)
	if size.GreaterThan(cfg.EntrySize) {
		return cfg.EntrySize
	}
	return size
}
