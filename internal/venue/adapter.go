package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// ErrSlippageExceeded is returned when a swap cannot be built within the slippage bound.
var ErrSlippageExceeded = errors.New("slippage bound exceeded")

// ErrSigning wraps failures to sign a transaction.
var ErrSigning = errors.New("sign transaction")

// bpsDenominator is the basis point scale.
const bpsDenominator = 10_000

// Adapter routes swaps to one liquidity venue.
type Adapter interface {
	// Venue returns the venue this adapter serves.
	Venue() domain.Venue

	// Quote prices a swap of amount: lamports for buys, token base units for sells.
	Quote(ctx context.Context, token string, side domain.Side, amount uint64) (Quote, error)

	// BuildSwap quotes and builds an unsigned swap honoring slippageBps.
	// Returns ErrSlippageExceeded instead of clamping the bound.
	BuildSwap(ctx context.Context, token string, side domain.Side, amount uint64, slippageBps int) (*UnsignedTx, error)

	// Submit signs and sends tx.
	Submit(ctx context.Context, tx *UnsignedTx) (Handle, error)

	// Confirm waits up to timeout for the submitted transaction to land.
	// A Pending confirmation means the outcome is still unknown.
	Confirm(ctx context.Context, h Handle, timeout time.Duration) (Confirmation, error)
}

// PriceDecoder is implemented by venues whose price can be read from a single
// account's data, so the monitor can stream it over accountSubscribe.
type PriceDecoder interface {
	// PriceAccount returns the account whose data carries the token's price.
	PriceAccount(token string) (string, error)

	// DecodePrice decodes raw account data into a price update.
	DecodePrice(token string, data []byte) (domain.PriceUpdate, error)
}

// Quote is a venue's price for one swap.
type Quote struct {
	Venue          domain.Venue
	Token          string
	Side           domain.Side
	InAmount       uint64  // lamports for buys, token base units for sells
	OutAmount      uint64  // token base units for buys, lamports for sells
	Price          float64 // spot SOL per whole token before the swap
	PriceImpactBps int
	Liquidity      float64 // quote-side liquidity in SOL, negative when unknown
	Migrated       bool
	Decimals       uint8
}

// PriceUpdate converts the quote into a monitor observation.
func (q Quote) PriceUpdate(now time.Time) domain.PriceUpdate {
	return domain.PriceUpdate{
		Token:      q.Token,
		Price:      q.Price,
		Liquidity:  q.Liquidity,
		Migrated:   q.Migrated,
		ObservedAt: now,
		Source:     "poll",
	}
}

// UnsignedTx is a swap ready for signing.
// Exactly one of Instructions or Wire is set.
type UnsignedTx struct {
	Venue        domain.Venue
	Token        string
	Side         domain.Side
	Quote        Quote
	MinOut       uint64               // minimum received after slippage
	Instructions []solana.Instruction // compiled into a legacy message at submit time
	Wire         []byte               // prebuilt transaction awaiting the wallet signature
}

// Handle identifies a submitted swap.
type Handle struct {
	Signature   string
	Venue       domain.Venue
	Token       string
	Side        domain.Side
	Owner       string // wallet address
	Quote       Quote
	SubmittedAt time.Time
}

// ConfirmState is the observed state of a submitted swap.
type ConfirmState int

// Confirmation states
const (
	ConfirmPending ConfirmState = iota
	ConfirmFilled
	ConfirmFailed
)

func (s ConfirmState) String() string {
	switch s {
	case ConfirmFilled:
		return "filled"
	case ConfirmFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Confirmation is the result of confirming a swap.
type Confirmation struct {
	State          ConfirmState
	Signature      string
	ExecutedPrice  float64 // SOL per whole token
	ExecutedAmount uint64  // token base units bought or sold
	QuoteAmount    uint64  // lamports spent or received
	Reason         string  // failure reason when Failed
}

// MinimumOut returns expectedOut reduced by slippageBps.
func MinimumOut(expectedOut uint64, slippageBps int) uint64 {
	if slippageBps <= 0 {
		return expectedOut
	}
	if slippageBps >= bpsDenominator {
		return 0
	}
	return mulDiv(expectedOut, uint64(bpsDenominator-slippageBps), bpsDenominator)
}

// MaximumIn returns amountIn increased by slippageBps.
func MaximumIn(amountIn uint64, slippageBps int) uint64 {
	if slippageBps <= 0 {
		return amountIn
	}
	return mulDiv(amountIn, uint64(bpsDenominator+slippageBps), bpsDenominator)
}

// CheckSlippage verifies that a minimum output supplied by a routing service
// stays within slippageBps of expectedOut.
func CheckSlippage(expectedOut, minOut uint64, slippageBps int) error {
	if expectedOut == 0 {
		return fmt.Errorf("%w: zero expected output", ErrSlippageExceeded)
	}
	if floor := MinimumOut(expectedOut, slippageBps); minOut < floor {
		return fmt.Errorf("%w: minimum %d below bound %d (%d bps)", ErrSlippageExceeded, minOut, floor, slippageBps)
	}
	return nil
}

// checkImpact rejects quotes whose price impact alone exceeds the bound.
func checkImpact(q Quote, slippageBps int) error {
	if q.PriceImpactBps > slippageBps {
		return fmt.Errorf("%w: price impact %d bps over %d bps", ErrSlippageExceeded, q.PriceImpactBps, slippageBps)
	}
	return nil
}

// impactBps returns the price impact of executing at execPrice against spot.
func impactBps(side domain.Side, spot, execPrice float64) int {
	if spot <= 0 || execPrice <= 0 {
		return 0
	}
	var impact float64
	if side == domain.SideBuy {
		impact = execPrice/spot - 1
	} else {
		impact = 1 - execPrice/spot
	}
	if impact < 0 {
		return 0
	}
	return int(impact * bpsDenominator)
}

// mulDiv computes a*b/c without intermediate overflow.
func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	r := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	r.Quo(r, new(big.Int).SetUint64(c))
	if !r.IsUint64() {
		return ^uint64(0)
	}
	return r.Uint64()
}

// constantProductOut returns the output of swapping in against reserves inReserve/outReserve.
func constantProductOut(in, inReserve, outReserve uint64) uint64 {
	if in == 0 || outReserve == 0 {
		return 0
	}
	num := new(big.Int).Mul(new(big.Int).SetUint64(outReserve), new(big.Int).SetUint64(in))
	den := new(big.Int).Add(new(big.Int).SetUint64(inReserve), new(big.Int).SetUint64(in))
	return num.Quo(num, den).Uint64()
}

func rejection(v domain.Venue, reason string, err error) error {
	return &domain.VenueRejection{Venue: v, Reason: reason, Err: err}
}
