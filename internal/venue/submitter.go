package venue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// Submitter signs, sends and confirms swap transactions for all on-chain venues.
type Submitter struct {
	rpc              solana.RPCClient
	signer           *solana.Keypair
	pollInterval     time.Duration
	computeUnitLimit uint32
	computeUnitPrice uint64
	sendOpts         solana.SendOptions
	logger           *log.Logger
}

// SubmitterOptions contains configuration for creating a Submitter.
type SubmitterOptions struct {
	RPC              solana.RPCClient
	Signer           *solana.Keypair
	PollInterval     time.Duration // status poll interval, default 500ms
	ComputeUnitLimit uint32        // 0 leaves the runtime default
	ComputeUnitPrice uint64        // priority fee in micro-lamports per CU
	SkipPreflight    bool
	Logger           *log.Logger
}

// NewSubmitter creates a new transaction submitter.
func NewSubmitter(opts SubmitterOptions) *Submitter {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	retries := uint(0)
	return &Submitter{
		rpc:              opts.RPC,
		signer:           opts.Signer,
		pollInterval:     poll,
		computeUnitLimit: opts.ComputeUnitLimit,
		computeUnitPrice: opts.ComputeUnitPrice,
		sendOpts: solana.SendOptions{
			SkipPreflight:       opts.SkipPreflight,
			PreflightCommitment: solana.CommitmentProcessed,
			MaxRetries:          &retries, // the engine owns resubmission
		},
		logger: logger,
	}
}

// Owner returns the wallet address.
func (s *Submitter) Owner() solana.PublicKey {
	return s.signer.PublicKey()
}

// Submit signs tx with a fresh blockhash and sends it.
// On a send error the returned handle still carries the signature so the
// caller can check whether the transaction landed anyway.
func (s *Submitter) Submit(ctx context.Context, tx *UnsignedTx) (Handle, error) {
	h := Handle{
		Venue:       tx.Venue,
		Token:       tx.Token,
		Side:        tx.Side,
		Owner:       s.Owner().String(),
		Quote:       tx.Quote,
		SubmittedAt: time.Now(),
	}

	raw, sig, err := s.sign(ctx, tx)
	if err != nil {
		return h, err
	}
	h.Signature = sig

	sent, err := s.rpc.SendTransaction(ctx, raw, s.sendOpts)
	if err != nil {
		var rpcErr *solana.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == solana.CodeSendTxPreflightFailure && !rpcErr.Transient() {
			return h, rejection(tx.Venue, "preflight simulation failed", err)
		}
		return h, fmt.Errorf("send transaction: %w", err)
	}
	if sent != "" && sent != sig {
		s.logger.Printf("node returned signature %s, expected %s", sent, sig)
		h.Signature = sent
	}
	return h, nil
}

func (s *Submitter) sign(ctx context.Context, tx *UnsignedTx) ([]byte, string, error) {
	if tx.Wire != nil {
		raw, sig, err := solana.SignWireTransaction(tx.Wire, s.signer)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrSigning, err)
		}
		return raw, sig, nil
	}

	bh, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("get blockhash: %w", err)
	}

	ixs := make([]solana.Instruction, 0, len(tx.Instructions)+2)
	if s.computeUnitLimit > 0 {
		ixs = append(ixs, solana.ComputeUnitLimit(s.computeUnitLimit))
	}
	if s.computeUnitPrice > 0 {
		ixs = append(ixs, solana.ComputeUnitPrice(s.computeUnitPrice))
	}
	ixs = append(ixs, tx.Instructions...)

	msg, err := solana.NewMessage(s.Owner(), ixs, bh.Blockhash)
	if err != nil {
		return nil, "", fmt.Errorf("compile message: %w", err)
	}
	raw, sig, err := solana.SignMessage(msg, s.signer)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return raw, sig, nil
}

// Confirm polls the signature status until it lands, fails on chain or
// timeout elapses. Executed amounts come from the confirmed transaction's
// balance changes for the wallet.
func (s *Submitter) Confirm(ctx context.Context, h Handle, timeout time.Duration) (Confirmation, error) {
	pending := Confirmation{State: ConfirmPending, Signature: h.Signature}
	if h.Signature == "" {
		return pending, nil
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := s.rpc.GetSignatureStatuses(ctx, []string{h.Signature})
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return pending, ctx.Err()
			}
			s.logger.Printf("status poll for %s failed: %v", h.Signature, err)
		case len(statuses) > 0 && statuses[0] != nil:
			st := statuses[0]
			if st.Err != nil {
				reason := fmt.Sprintf("transaction failed: %v", st.Err)
				return Confirmation{State: ConfirmFailed, Signature: h.Signature, Reason: reason},
					rejection(h.Venue, reason, nil)
			}
			if st.Landed() {
				return s.filled(ctx, h, deadline), nil
			}
		}

		if !time.Now().Before(deadline) {
			return pending, nil
		}
		select {
		case <-ctx.Done():
			return pending, ctx.Err()
		case <-ticker.C:
		}
	}
}

// filled reads executed amounts from the landed transaction. When the node
// cannot serve it before deadline the quoted amounts stand in.
func (s *Submitter) filled(ctx context.Context, h Handle, deadline time.Time) Confirmation {
	conf := Confirmation{
		State:          ConfirmFilled,
		Signature:      h.Signature,
		ExecutedPrice:  h.Quote.Price,
		ExecutedAmount: h.Quote.OutAmount,
		QuoteAmount:    h.Quote.InAmount,
	}
	if h.Side == domain.SideSell {
		conf.ExecutedAmount, conf.QuoteAmount = h.Quote.InAmount, h.Quote.OutAmount
	}

	for {
		tx, err := s.rpc.GetTransaction(ctx, h.Signature)
		if err == nil && tx != nil && tx.Meta != nil {
			if quote, tokens, decimals, ok := balanceDeltas(tx, h); ok {
				conf.QuoteAmount = quote
				conf.ExecutedAmount = tokens
				conf.ExecutedPrice = domain.PriceFromAmounts(quote, tokens, decimals)
			}
			return conf
		}
		if err != nil {
			s.logger.Printf("get transaction %s: %v", h.Signature, err)
		}
		if !time.Now().Before(deadline) || ctx.Err() != nil {
			s.logger.Printf("transaction %s landed but is not yet retrievable, using quoted amounts", h.Signature)
			return conf
		}
		select {
		case <-ctx.Done():
			return conf
		case <-time.After(s.pollInterval):
		}
	}
}

// balanceDeltas extracts lamports and token base units moved for the wallet.
// The fee payer is account 0; the network fee is excluded from the quote amount.
func balanceDeltas(tx *solana.Transaction, h Handle) (quote, tokens uint64, decimals uint8, ok bool) {
	meta := tx.Meta
	if len(meta.PreBalances) == 0 || len(meta.PostBalances) == 0 {
		return 0, 0, 0, false
	}
	pre := int64(meta.PreBalances[0])
	post := int64(meta.PostBalances[0])
	fee := int64(meta.Fee)

	decimals = h.Quote.Decimals
	if decimals == 0 {
		decimals = domain.DefaultTokenDecimals
	}
	var preTok, postTok int64
	for _, b := range meta.PreTokenBalances {
		if b.Mint == h.Token && b.Owner == h.Owner {
			preTok += int64(b.Amount)
			decimals = b.Decimals
		}
	}
	for _, b := range meta.PostTokenBalances {
		if b.Mint == h.Token && b.Owner == h.Owner {
			postTok += int64(b.Amount)
			decimals = b.Decimals
		}
	}

	var quoteDelta, tokenDelta int64
	if h.Side == domain.SideBuy {
		quoteDelta = pre - post - fee
		tokenDelta = postTok - preTok
	} else {
		quoteDelta = post - pre + fee
		tokenDelta = preTok - postTok
	}
	if quoteDelta <= 0 || tokenDelta <= 0 {
		return 0, 0, 0, false
	}
	return uint64(quoteDelta), uint64(tokenDelta), decimals, true
}
