package venue

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// Launchpad program addresses.
var (
	PumpProgramID = solana.MustPublicKey("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
)

// DefaultPumpFeeRecipient receives the launchpad protocol fee.
const DefaultPumpFeeRecipient = "CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM"

// Anchor instruction discriminators.
var (
	buyDiscriminator  = []byte{102, 6, 61, 18, 1, 218, 235, 234}
	sellDiscriminator = []byte{51, 230, 133, 164, 1, 127, 131, 173}
)

const (
	curveFeeBps = 100 // 1% launchpad fee on SOL in and out

	// 8-byte account discriminator, five u64 fields, complete flag.
	curveAccountMinLen = 8 + 5*8 + 1
)

// ErrMalformedCurve is returned when bonding-curve account data cannot be decoded.
var ErrMalformedCurve = errors.New("malformed bonding curve account")

// CurveState is the decoded bonding-curve account.
type CurveState struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// DecodeCurveState decodes raw bonding-curve account data.
func DecodeCurveState(data []byte) (CurveState, error) {
	if len(data) < curveAccountMinLen {
		return CurveState{}, fmt.Errorf("%w: %d bytes", ErrMalformedCurve, len(data))
	}
	le := binary.LittleEndian
	return CurveState{
		VirtualTokenReserves: le.Uint64(data[8:16]),
		VirtualSolReserves:   le.Uint64(data[16:24]),
		RealTokenReserves:    le.Uint64(data[24:32]),
		RealSolReserves:      le.Uint64(data[32:40]),
		TokenTotalSupply:     le.Uint64(data[40:48]),
		Complete:             data[48] != 0,
	}, nil
}

// SpotPrice returns SOL per whole token.
func (c CurveState) SpotPrice(decimals uint8) float64 {
	return domain.PriceFromAmounts(c.VirtualSolReserves, c.VirtualTokenReserves, decimals)
}

// BuyQuote returns tokens received for spending lamports, fee included.
func (c CurveState) BuyQuote(lamports uint64) uint64 {
	solIn := mulDiv(lamports, bpsDenominator, bpsDenominator+curveFeeBps)
	out := constantProductOut(solIn, c.VirtualSolReserves, c.VirtualTokenReserves)
	if out > c.RealTokenReserves {
		out = c.RealTokenReserves
	}
	return out
}

// SellQuote returns lamports received for selling tokens, net of the fee.
func (c CurveState) SellQuote(tokens uint64) uint64 {
	gross := constantProductOut(tokens, c.VirtualTokenReserves, c.VirtualSolReserves)
	if gross > c.RealSolReserves {
		gross = c.RealSolReserves
	}
	return gross - mulDiv(gross, curveFeeBps, bpsDenominator)
}

// BondingCurve trades tokens on the launchpad bonding curve before migration.
type BondingCurve struct {
	*Submitter

	rpc            solana.RPCClient
	feeRecipient   solana.PublicKey
	global         solana.PublicKey
	eventAuthority solana.PublicKey
	tokenProgram   solana.PublicKey
	decimals       uint8
}

// BondingCurveOptions contains configuration for creating a BondingCurve adapter.
type BondingCurveOptions struct {
	RPC          solana.RPCClient
	Submitter    *Submitter
	FeeRecipient string // defaults to DefaultPumpFeeRecipient
	Decimals     uint8  // defaults to domain.DefaultTokenDecimals
}

// NewBondingCurve creates a bonding-curve adapter.
func NewBondingCurve(opts BondingCurveOptions) (*BondingCurve, error) {
	recipient := opts.FeeRecipient
	if recipient == "" {
		recipient = DefaultPumpFeeRecipient
	}
	feeRecipient, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return nil, fmt.Errorf("fee recipient: %w", err)
	}
	global, _, err := solana.FindProgramAddress([][]byte{[]byte("global")}, PumpProgramID)
	if err != nil {
		return nil, fmt.Errorf("global account: %w", err)
	}
	eventAuthority, _, err := solana.FindProgramAddress([][]byte{[]byte("__event_authority")}, PumpProgramID)
	if err != nil {
		return nil, fmt.Errorf("event authority: %w", err)
	}

	decimals := opts.Decimals
	if decimals == 0 {
		decimals = domain.DefaultTokenDecimals
	}

	return &BondingCurve{
		Submitter:      opts.Submitter,
		rpc:            opts.RPC,
		feeRecipient:   feeRecipient,
		global:         global,
		eventAuthority: eventAuthority,
		tokenProgram:   solana.TokenProgramID,
		decimals:       decimals,
	}, nil
}

// Venue returns the bonding-curve venue.
func (b *BondingCurve) Venue() domain.Venue {
	return domain.VenueBondingCurve
}

// CurveAddress derives the bonding-curve PDA of mint.
func CurveAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("bonding-curve"), mint[:]}, PumpProgramID)
	return pda, err
}

// State fetches and decodes the bonding curve of token.
func (b *BondingCurve) State(ctx context.Context, token string) (CurveState, error) {
	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return CurveState{}, rejection(b.Venue(), "invalid mint", err)
	}
	curve, err := CurveAddress(mint)
	if err != nil {
		return CurveState{}, err
	}
	info, err := b.rpc.GetAccountInfo(ctx, curve.String())
	if err != nil {
		return CurveState{}, fmt.Errorf("get bonding curve: %w", err)
	}
	if info == nil {
		return CurveState{}, rejection(b.Venue(), "bonding curve not found", nil)
	}
	data, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return CurveState{}, fmt.Errorf("%w: %v", ErrMalformedCurve, err)
	}
	return DecodeCurveState(data)
}

// Quote prices a swap against the current curve reserves. A completed curve
// yields a quote with Migrated set together with domain.ErrMigrated.
func (b *BondingCurve) Quote(ctx context.Context, token string, side domain.Side, amount uint64) (Quote, error) {
	state, err := b.State(ctx, token)
	if err != nil {
		return Quote{}, err
	}
	return b.quote(token, side, amount, state)
}

func (b *BondingCurve) quote(token string, side domain.Side, amount uint64, state CurveState) (Quote, error) {
	q := Quote{
		Venue:     b.Venue(),
		Token:     token,
		Side:      side,
		InAmount:  amount,
		Price:     state.SpotPrice(b.decimals),
		Liquidity: float64(state.RealSolReserves) / domain.LamportsPerSOL,
		Migrated:  state.Complete,
		Decimals:  b.decimals,
	}
	if state.Complete {
		return q, domain.ErrMigrated
	}

	var exec float64
	if side == domain.SideBuy {
		q.OutAmount = state.BuyQuote(amount)
		solIn := mulDiv(amount, bpsDenominator, bpsDenominator+curveFeeBps)
		exec = domain.PriceFromAmounts(solIn, q.OutAmount, b.decimals)
	} else {
		q.OutAmount = state.SellQuote(amount)
		gross := constantProductOut(amount, state.VirtualTokenReserves, state.VirtualSolReserves)
		exec = domain.PriceFromAmounts(gross, amount, b.decimals)
	}
	q.PriceImpactBps = impactBps(side, q.Price, exec)
	return q, nil
}

// BuildSwap builds a buy or sell instruction. Buys request the quoted token
// amount with max_sol_cost raised by the slippage bound; sells set
// min_sol_output to the quoted proceeds lowered by it.
func (b *BondingCurve) BuildSwap(ctx context.Context, token string, side domain.Side, amount uint64, slippageBps int) (*UnsignedTx, error) {
	q, err := b.Quote(ctx, token, side, amount)
	if err != nil {
		return nil, err
	}
	if q.OutAmount == 0 {
		return nil, rejection(b.Venue(), "zero output", nil)
	}
	if err := checkImpact(q, slippageBps); err != nil {
		return nil, err
	}

	minOut := MinimumOut(q.OutAmount, slippageBps)

	mint := solana.MustPublicKey(token)
	curve, err := CurveAddress(mint)
	if err != nil {
		return nil, err
	}
	curveATA, err := solana.FindAssociatedTokenAddress(curve, mint, b.tokenProgram)
	if err != nil {
		return nil, err
	}
	user := b.Owner()
	userATA, err := solana.FindAssociatedTokenAddress(user, mint, b.tokenProgram)
	if err != nil {
		return nil, err
	}

	tx := &UnsignedTx{Venue: b.Venue(), Token: token, Side: side, Quote: q, MinOut: minOut}
	if side == domain.SideBuy {
		data := swapData(buyDiscriminator, q.OutAmount, MaximumIn(amount, slippageBps))
		tx.Instructions = []solana.Instruction{
			solana.CreateAssociatedTokenAccountIdempotent(user, userATA, user, mint, b.tokenProgram),
			{
				ProgramID: PumpProgramID,
				Accounts: []solana.AccountMeta{
					solana.Meta(b.global, false, false),
					solana.Meta(b.feeRecipient, false, true),
					solana.Meta(mint, false, false),
					solana.Meta(curve, false, true),
					solana.Meta(curveATA, false, true),
					solana.Meta(userATA, false, true),
					solana.Meta(user, true, true),
					solana.Meta(solana.SystemProgramID, false, false),
					solana.Meta(b.tokenProgram, false, false),
					solana.Meta(solana.RentSysvarID, false, false),
					solana.Meta(b.eventAuthority, false, false),
					solana.Meta(PumpProgramID, false, false),
				},
				Data: data,
			},
		}
		return tx, nil
	}

	tx.Instructions = []solana.Instruction{{
		ProgramID: PumpProgramID,
		Accounts: []solana.AccountMeta{
			solana.Meta(b.global, false, false),
			solana.Meta(b.feeRecipient, false, true),
			solana.Meta(mint, false, false),
			solana.Meta(curve, false, true),
			solana.Meta(curveATA, false, true),
			solana.Meta(userATA, false, true),
			solana.Meta(user, true, true),
			solana.Meta(solana.SystemProgramID, false, false),
			solana.Meta(solana.AssociatedTokenProgramID, false, false),
			solana.Meta(b.tokenProgram, false, false),
			solana.Meta(b.eventAuthority, false, false),
			solana.Meta(PumpProgramID, false, false),
		},
		Data: swapData(sellDiscriminator, amount, minOut),
	}}
	return tx, nil
}

// PriceAccount returns the bonding-curve PDA of token.
func (b *BondingCurve) PriceAccount(token string) (string, error) {
	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return "", err
	}
	curve, err := CurveAddress(mint)
	if err != nil {
		return "", err
	}
	return curve.String(), nil
}

// DecodePrice decodes a bonding-curve account notification.
func (b *BondingCurve) DecodePrice(token string, data []byte) (domain.PriceUpdate, error) {
	state, err := DecodeCurveState(data)
	if err != nil {
		return domain.PriceUpdate{}, err
	}
	return domain.PriceUpdate{
		Token:      token,
		Price:      state.SpotPrice(b.decimals),
		Liquidity:  float64(state.RealSolReserves) / domain.LamportsPerSOL,
		Migrated:   state.Complete,
		ObservedAt: time.Now(),
		Source:     "stream",
	}, nil
}

func swapData(discriminator []byte, a, b uint64) []byte {
	data := make([]byte, 24)
	copy(data, discriminator)
	binary.LittleEndian.PutUint64(data[8:], a)
	binary.LittleEndian.PutUint64(data[16:], b)
	return data
}
