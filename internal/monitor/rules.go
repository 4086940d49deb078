package monitor

import (
	"time"

	"solana-sniper/internal/domain"
)

// Evaluate decides whether pos should exit given the latest observation u.
// Rules are checked in priority order: take-profit, stop-loss, liquidity
// collapse, max hold. It is pure and safe to call from any goroutine.
func Evaluate(pos *domain.Position, u domain.PriceUpdate, now time.Time, cfg domain.RiskConfig) (domain.ExitReason, bool) {
	if pos == nil || pos.Status != domain.StatusOpen {
		return "", false
	}

	if pos.EntryPrice > 0 && u.Price > 0 {
		if cfg.TakeProfitMultiple > 0 && u.Price >= cfg.TakeProfitPrice(pos.EntryPrice) {
			return domain.ExitTakeProfit, true
		}
		if cfg.StopLoss < 0 && u.Price <= cfg.StopLossPrice(pos.EntryPrice) {
			return domain.ExitStopLoss, true
		}
	}

	// Unknown liquidity is negative. A migrated curve reports its drained
	// reserves, which says nothing about the AMM pool.
	if cfg.LiquidityFloor > 0 && u.Liquidity >= 0 && !u.Migrated && u.Liquidity < cfg.LiquidityFloor {
		return domain.ExitLiquidityCollapse, true
	}

	if cfg.MaxHold > 0 && pos.HeldFor(now) >= cfg.MaxHold {
		return domain.ExitMaxHoldExceeded, true
	}
	return "", false
}
