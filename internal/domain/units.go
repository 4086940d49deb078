package domain

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Unit constants
const (
	LamportsPerSOL       = 1_000_000_000
	DefaultTokenDecimals = 6 // launchpad tokens are minted with 6 decimals
)

var lamportsPerSOLDec = decimal.NewFromInt(LamportsPerSOL)

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).Div(lamportsPerSOLDec)
}

// SOLToLamports converts SOL to lamports, truncating sub-lamport precision.
// Negative amounts return 0.
func SOLToLamports(sol decimal.Decimal) uint64 {
	if sol.Sign() <= 0 {
		return 0
	}
	return uint64(sol.Mul(lamportsPerSOLDec).IntPart())
}

// PriceFromAmounts returns the price in SOL per whole token for a swap of
// quoteLamports against tokenRaw base units. Returns 0 when tokenRaw is 0.
func PriceFromAmounts(quoteLamports, tokenRaw uint64, tokenDecimals uint8) float64 {
	if tokenRaw == 0 {
		return 0
	}
	sol := float64(quoteLamports) / LamportsPerSOL
	tokens := float64(tokenRaw) / math.Pow10(int(tokenDecimals))
	return sol / tokens
}
