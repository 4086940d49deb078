package risk

import (
	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/portfolio"
)

// RejectReason explains why a candidate was not entered.
type RejectReason string

// Reject reasons, in evaluation order.
const (
	RejectLowLiquidity        RejectReason = "LOW_LIQUIDITY"
	RejectLowScore            RejectReason = "LOW_SCORE"
	RejectWalletMismatch      RejectReason = "WALLET_MISMATCH"
	RejectAlreadyOpen         RejectReason = "ALREADY_OPEN"
	RejectMaxPositions        RejectReason = "MAX_POSITIONS"
	RejectInsufficientCapital RejectReason = "INSUFFICIENT_CAPITAL"
	RejectEntriesHalted       RejectReason = "ENTRIES_HALTED"
)

// Decision is the outcome of evaluating one candidate.
type Decision struct {
	Accept bool
	Size   decimal.Decimal // quote to commit when accepted
	Reason RejectReason    // set when rejected
}

// Gate evaluates candidates against the risk configuration.
type Gate struct {
	cfg   domain.RiskConfig
	sizer Sizer
}

// NewGate creates a gate. A nil sizer sizes every entry at cfg.EntrySize.
func NewGate(cfg domain.RiskConfig, sizer Sizer) *Gate {
	if sizer == nil {
		sizer = FixedSizer{}
	}
	return &Gate{cfg: cfg, sizer: sizer}
}

// Evaluate applies the gate's configuration and sizer.
func (g *Gate) Evaluate(c domain.CandidateRecord, snap portfolio.Snapshot) Decision {
	return evaluate(c, snap, g.cfg, g.sizer)
}

// Config returns the gate's risk configuration.
func (g *Gate) Config() domain.RiskConfig {
	return g.cfg
}

// Evaluate decides whether to enter c given the portfolio snapshot.
// It is pure: no I/O, no state. Sizing is fixed at cfg.EntrySize.
func Evaluate(c domain.CandidateRecord, snap portfolio.Snapshot, cfg domain.RiskConfig) Decision {
	return evaluate(c, snap, cfg, FixedSizer{})
}

func evaluate(c domain.CandidateRecord, snap portfolio.Snapshot, cfg domain.RiskConfig, sizer Sizer) Decision {
	switch {
	case c.LiquidityEstimate < cfg.MinLiquidity:
		return reject(RejectLowLiquidity)
	case c.Score < cfg.MinScore:
		return reject(RejectLowScore)
	case !cfg.WalletAllowed(c.SourceWallet):
		return reject(RejectWalletMismatch)
	case snap.HasActive(c.Token):
		return reject(RejectAlreadyOpen)
	case cfg.MaxOpenPositions > 0 && snap.OpenCount >= cfg.MaxOpenPositions:
		return reject(RejectMaxPositions)
	}

	size := sizer.Size(cfg, snap)
	if size.Sign() <= 0 || size.GreaterThan(snap.Available) || snap.Committed.Add(size).GreaterThan(cfg.CapitalCeiling) {
		return reject(RejectInsufficientCapital)
	}
	if snap.EntriesHalted {
		return reject(RejectEntriesHalted)
	}
	return Decision{Accept: true, Size: size}
}

func reject(reason RejectReason) Decision {
	return Decision{Reason: reason}
}
