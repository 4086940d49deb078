package venue

import (
	"context"
	"fmt"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// PumpAMMProgramID is the post-migration constant-product AMM.
var PumpAMMProgramID = solana.MustPublicKey("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")

// DefaultAMMFeeRecipient receives the AMM protocol fee.
const DefaultAMMFeeRecipient = "62qc2CNXwrYqQScmEdiZFFAnJR262PxWEuNQtxfafNgV"

const defaultAMMFeeBps = 25

// Pool is a token/SOL constant-product pool.
type Pool struct {
	Address    solana.PublicKey
	BaseVault  solana.PublicKey // token reserve
	QuoteVault solana.PublicKey // wrapped SOL reserve
}

// AMM trades migrated tokens on their constant-product pool.
type AMM struct {
	*Submitter

	rpc          solana.RPCClient
	feeBps       int
	feeRecipient solana.PublicKey
	globalConfig solana.PublicKey
	eventAuth    solana.PublicKey
	tokenProgram solana.PublicKey
	decimals     uint8

	mu    sync.RWMutex
	pools map[string]Pool
}

// AMMOptions contains configuration for creating an AMM adapter.
type AMMOptions struct {
	RPC          solana.RPCClient
	Submitter    *Submitter
	FeeBps       int    // total pool fee, default 25
	FeeRecipient string // defaults to DefaultAMMFeeRecipient
	Decimals     uint8
}

// NewAMM creates an AMM adapter.
func NewAMM(opts AMMOptions) (*AMM, error) {
	recipient := opts.FeeRecipient
	if recipient == "" {
		recipient = DefaultAMMFeeRecipient
	}
	feeRecipient, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return nil, fmt.Errorf("fee recipient: %w", err)
	}
	globalConfig, _, err := solana.FindProgramAddress([][]byte{[]byte("global_config")}, PumpAMMProgramID)
	if err != nil {
		return nil, fmt.Errorf("global config: %w", err)
	}
	eventAuth, _, err := solana.FindProgramAddress([][]byte{[]byte("__event_authority")}, PumpAMMProgramID)
	if err != nil {
		return nil, fmt.Errorf("event authority: %w", err)
	}

	feeBps := opts.FeeBps
	if feeBps <= 0 {
		feeBps = defaultAMMFeeBps
	}
	decimals := opts.Decimals
	if decimals == 0 {
		decimals = domain.DefaultTokenDecimals
	}

	return &AMM{
		Submitter:    opts.Submitter,
		rpc:          opts.RPC,
		feeBps:       feeBps,
		feeRecipient: feeRecipient,
		globalConfig: globalConfig,
		eventAuth:    eventAuth,
		tokenProgram: solana.TokenProgramID,
		decimals:     decimals,
		pools:        make(map[string]Pool),
	}, nil
}

// Venue returns the AMM venue.
func (a *AMM) Venue() domain.Venue {
	return domain.VenueAMM
}

// RegisterPool pins the pool address used for token, such as one reported by discovery.
func (a *AMM) RegisterPool(token, poolAddress string) error {
	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return err
	}
	addr, err := solana.PublicKeyFromBase58(poolAddress)
	if err != nil {
		return err
	}
	pool, err := a.poolAt(addr, mint)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.pools[token] = pool
	a.mu.Unlock()
	return nil
}

// Pool returns the registered pool of token, or the canonical pool a
// migrated launchpad token is moved into.
func (a *AMM) Pool(token string) (Pool, error) {
	a.mu.RLock()
	pool, ok := a.pools[token]
	a.mu.RUnlock()
	if ok {
		return pool, nil
	}

	mint, err := solana.PublicKeyFromBase58(token)
	if err != nil {
		return Pool{}, rejection(a.Venue(), "invalid mint", err)
	}
	authority, _, err := solana.FindProgramAddress([][]byte{[]byte("pool-authority"), mint[:]}, PumpProgramID)
	if err != nil {
		return Pool{}, err
	}
	addr, _, err := solana.FindProgramAddress([][]byte{
		[]byte("pool"), {0, 0}, authority[:], mint[:], solana.WrappedSOLMint[:],
	}, PumpAMMProgramID)
	if err != nil {
		return Pool{}, err
	}
	pool, err = a.poolAt(addr, mint)
	if err != nil {
		return Pool{}, err
	}

	a.mu.Lock()
	a.pools[token] = pool
	a.mu.Unlock()
	return pool, nil
}

func (a *AMM) poolAt(addr, mint solana.PublicKey) (Pool, error) {
	base, err := solana.FindAssociatedTokenAddress(addr, mint, a.tokenProgram)
	if err != nil {
		return Pool{}, err
	}
	quote, err := solana.FindAssociatedTokenAddress(addr, solana.WrappedSOLMint, solana.TokenProgramID)
	if err != nil {
		return Pool{}, err
	}
	return Pool{Address: addr, BaseVault: base, QuoteVault: quote}, nil
}

// Reserves returns the token and lamport reserves of token's pool.
func (a *AMM) Reserves(ctx context.Context, token string) (base, quote uint64, decimals uint8, err error) {
	pool, err := a.Pool(token)
	if err != nil {
		return 0, 0, 0, err
	}
	baseBal, err := a.rpc.GetTokenAccountBalance(ctx, pool.BaseVault.String())
	if err != nil {
		return 0, 0, 0, fmt.Errorf("base vault balance: %w", err)
	}
	quoteBal, err := a.rpc.GetTokenAccountBalance(ctx, pool.QuoteVault.String())
	if err != nil {
		return 0, 0, 0, fmt.Errorf("quote vault balance: %w", err)
	}
	decimals = baseBal.Decimals
	if decimals == 0 {
		decimals = a.decimals
	}
	return baseBal.Amount, quoteBal.Amount, decimals, nil
}

// Quote prices a swap against the pool's vault balances.
func (a *AMM) Quote(ctx context.Context, token string, side domain.Side, amount uint64) (Quote, error) {
	base, quote, decimals, err := a.Reserves(ctx, token)
	if err != nil {
		return Quote{}, err
	}
	if base == 0 || quote == 0 {
		return Quote{}, rejection(a.Venue(), "empty pool", nil)
	}

	q := Quote{
		Venue:     a.Venue(),
		Token:     token,
		Side:      side,
		InAmount:  amount,
		Price:     domain.PriceFromAmounts(quote, base, decimals),
		Liquidity: float64(quote) / domain.LamportsPerSOL,
		Migrated:  true,
		Decimals:  decimals,
	}

	in := mulDiv(amount, uint64(bpsDenominator-a.feeBps), bpsDenominator)
	var exec float64
	if side == domain.SideBuy {
		q.OutAmount = constantProductOut(in, quote, base)
		exec = domain.PriceFromAmounts(in, q.OutAmount, decimals)
	} else {
		q.OutAmount = constantProductOut(in, base, quote)
		exec = domain.PriceFromAmounts(q.OutAmount, in, decimals)
	}
	q.PriceImpactBps = impactBps(side, q.Price, exec)
	return q, nil
}

// BuildSwap builds a pool swap, wrapping SOL into the wallet's wrapped SOL
// account and closing it afterwards.
func (a *AMM) BuildSwap(ctx context.Context, token string, side domain.Side, amount uint64, slippageBps int) (*UnsignedTx, error) {
	q, err := a.Quote(ctx, token, side, amount)
	if err != nil {
		return nil, err
	}
	if q.OutAmount == 0 {
		return nil, rejection(a.Venue(), "zero output", nil)
	}
	if err := checkImpact(q, slippageBps); err != nil {
		return nil, err
	}
	minOut := MinimumOut(q.OutAmount, slippageBps)

	pool, err := a.Pool(token)
	if err != nil {
		return nil, err
	}
	mint := solana.MustPublicKey(token)
	user := a.Owner()
	userBase, err := solana.FindAssociatedTokenAddress(user, mint, a.tokenProgram)
	if err != nil {
		return nil, err
	}
	userQuote, err := solana.FindAssociatedTokenAddress(user, solana.WrappedSOLMint, solana.TokenProgramID)
	if err != nil {
		return nil, err
	}
	feeATA, err := solana.FindAssociatedTokenAddress(a.feeRecipient, solana.WrappedSOLMint, solana.TokenProgramID)
	if err != nil {
		return nil, err
	}

	accounts := []solana.AccountMeta{
		solana.Meta(pool.Address, false, false),
		solana.Meta(user, true, true),
		solana.Meta(a.globalConfig, false, false),
		solana.Meta(mint, false, false),
		solana.Meta(solana.WrappedSOLMint, false, false),
		solana.Meta(userBase, false, true),
		solana.Meta(userQuote, false, true),
		solana.Meta(pool.BaseVault, false, true),
		solana.Meta(pool.QuoteVault, false, true),
		solana.Meta(a.feeRecipient, false, false),
		solana.Meta(feeATA, false, true),
		solana.Meta(a.tokenProgram, false, false),
		solana.Meta(solana.TokenProgramID, false, false),
		solana.Meta(solana.SystemProgramID, false, false),
		solana.Meta(solana.AssociatedTokenProgramID, false, false),
		solana.Meta(a.eventAuth, false, false),
		solana.Meta(PumpAMMProgramID, false, false),
	}

	tx := &UnsignedTx{Venue: a.Venue(), Token: token, Side: side, Quote: q, MinOut: minOut}
	ixs := []solana.Instruction{
		solana.CreateAssociatedTokenAccountIdempotent(user, userQuote, user, solana.WrappedSOLMint, solana.TokenProgramID),
	}
	if side == domain.SideBuy {
		maxIn := MaximumIn(amount, slippageBps)
		ixs = append(ixs,
			solana.CreateAssociatedTokenAccountIdempotent(user, userBase, user, mint, a.tokenProgram),
			solana.SystemTransfer(user, userQuote, maxIn),
			solana.SyncNative(userQuote),
			solana.Instruction{ProgramID: PumpAMMProgramID, Accounts: accounts, Data: swapData(buyDiscriminator, q.OutAmount, maxIn)},
		)
	} else {
		ixs = append(ixs,
			solana.Instruction{ProgramID: PumpAMMProgramID, Accounts: accounts, Data: swapData(sellDiscriminator, amount, minOut)},
		)
	}
	ixs = append(ixs, solana.CloseAccount(userQuote, user, user))
	tx.Instructions = ixs
	return tx, nil
}
