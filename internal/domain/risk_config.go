package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StopLossConvention selects how a configured stop-loss number is read.
type StopLossConvention string

// Stop-loss conventions
const (
	// StopLossFraction reads -0.5 as "exit at 0.5x entry".
	StopLossFraction StopLossConvention = "fraction"
	// StopLossPercent reads -2 as "exit at 0.98x entry".
	StopLossPercent StopLossConvention = "percent"
)

// NormalizeStopLoss converts a configured stop-loss into a negative fraction in (-1, 0).
func NormalizeStopLoss(v float64, conv StopLossConvention) (float64, error) {
	var frac float64
	switch conv {
	case StopLossFraction, "":
		frac = v
	case StopLossPercent:
		frac = v / 100
	default:
		return 0, &ConfigurationError{Field: "stop_loss_convention", Reason: "must be fraction or percent, got " + string(conv)}
	}
	if frac >= 0 || frac <= -1 {
		return 0, &ConfigurationError{Field: "stop_loss", Reason: "must normalise into (-1, 0)"}
	}
	return frac, nil
}

// RiskConfig holds the trading parameters shared by the risk gate, sizing and
// the position monitor.
type RiskConfig struct {
	EntrySize          decimal.Decimal     // quote (SOL) committed per entry
	SlippageBps        int                 // max tolerated slippage in basis points
	TakeProfitMultiple float64             // exit when price >= entry * multiple
	StopLoss           float64             // negative fraction, exit when price <= entry * (1 + StopLoss)
	MaxHold            time.Duration       // exit when held longer
	MinLiquidity       float64             // minimum candidate liquidity estimate
	MinScore           float64             // minimum candidate score
	TargetWallets      map[string]struct{} // copy-trade filter; empty disables
	MaxOpenPositions   int                 // cap on PENDING+OPEN+EXITING positions
	CapitalCeiling     decimal.Decimal     // cap on committed capital
	LiquidityFloor     float64             // exit when liquidity drops below; 0 disables
	RequoteOnMigration bool                // switch exit venue to AMM on migration
}

// ParseWallets splits a comma-separated wallet list into a set.
func ParseWallets(list string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Split(list, ",") {
		w = strings.TrimSpace(w)
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// CopyTradeEnabled reports whether entries are restricted to target wallets.
func (c RiskConfig) CopyTradeEnabled() bool {
	return len(c.TargetWallets) > 0
}

// WalletAllowed reports whether a source wallet passes the copy-trade filter.
func (c RiskConfig) WalletAllowed(wallet string) bool {
	if !c.CopyTradeEnabled() {
		return true
	}
	_, ok := c.TargetWallets[wallet]
	return ok
}

// TakeProfitPrice returns the take-profit threshold for an entry price.
func (c RiskConfig) TakeProfitPrice(entry float64) float64 {
	return entry * c.TakeProfitMultiple
}

// StopLossPrice returns the stop-loss threshold for an entry price.
func (c RiskConfig) StopLossPrice(entry float64) float64 {
	return entry * (1 + c.StopLoss)
}

// Validate checks parameter ranges. Returns a *ConfigurationError.
func (c RiskConfig) Validate() error {
	switch {
	case c.EntrySize.Sign() <= 0:
		return &ConfigurationError{Field: "entry_size", Reason: "must be positive"}
	case c.SlippageBps <= 0 || c.SlippageBps >= 10_000:
		return &ConfigurationError{Field: "slippage_bps", Reason: "must be in (0, 10000)"}
	case c.TakeProfitMultiple <= 1:
		return &ConfigurationError{Field: "take_profit_multiple", Reason: "must be greater than 1"}
	case c.StopLoss >= 0 || c.StopLoss <= -1:
		return &ConfigurationError{Field: "stop_loss", Reason: "must be a negative fraction in (-1, 0)"}
	case c.MaxHold <= 0:
		return &ConfigurationError{Field: "max_hold", Reason: "must be positive"}
	case c.MinLiquidity < 0:
		return &ConfigurationError{Field: "min_liquidity", Reason: "must not be negative"}
	case c.MaxOpenPositions <= 0:
		return &ConfigurationError{Field: "max_open_positions", Reason: "must be positive"}
	case c.CapitalCeiling.LessThan(c.EntrySize):
		return &ConfigurationError{Field: "capital_ceiling", Reason: "must be at least entry_size"}
	case c.LiquidityFloor < 0:
		return &ConfigurationError{Field: "liquidity_floor", Reason: "must not be negative"}
	}
	return nil
}
