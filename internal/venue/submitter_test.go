package venue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/solana/stub"
)

func submitBuy(t *testing.T, rpc *stub.RPCClient) (*BondingCurve, Handle) {
	t.Helper()
	mint := testMint(t)
	setCurve(t, rpc, mint, freshCurve())
	bc := newTestCurve(t, rpc)

	tx, err := bc.BuildSwap(context.Background(), mint, domain.SideBuy, 100_000_000, 500)
	require.NoError(t, err)
	h, err := bc.Submit(context.Background(), tx)
	require.NoError(t, err)
	return bc, h
}

func TestSubmitter_Submit(t *testing.T) {
	rpc := stub.NewRPCClient()
	bc, h := submitBuy(t, rpc)

	require.Equal(t, 1, rpc.SentCount())
	sig, err := stub.FirstSignature(rpc.Sent[0])
	require.NoError(t, err)
	assert.Equal(t, sig, h.Signature)
	assert.Equal(t, bc.Owner().String(), h.Owner)
	assert.Equal(t, domain.SideBuy, h.Side)
}

func TestSubmitter_SubmitPreflightRejection(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SendFunc = func([]byte) (string, error) {
		return "", &solana.RPCError{Code: solana.CodeSendTxPreflightFailure, Message: "custom program error: 0x1772"}
	}
	mint := testMint(t)
	setCurve(t, rpc, mint, freshCurve())
	bc := newTestCurve(t, rpc)

	tx, err := bc.BuildSwap(context.Background(), mint, domain.SideBuy, 100_000_000, 500)
	require.NoError(t, err)
	h, err := bc.Submit(context.Background(), tx)
	assert.True(t, domain.IsVenueRejection(err))
	assert.NotEmpty(t, h.Signature)
}

func TestSubmitter_SubmitTransientKeepsSignature(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SendFunc = func([]byte) (string, error) {
		return "", &solana.RPCError{Code: solana.CodeSendTxPreflightFailure, Message: "Transaction simulation failed: Blockhash not found"}
	}
	mint := testMint(t)
	setCurve(t, rpc, mint, freshCurve())
	bc := newTestCurve(t, rpc)

	tx, err := bc.BuildSwap(context.Background(), mint, domain.SideBuy, 100_000_000, 500)
	require.NoError(t, err)
	h, err := bc.Submit(context.Background(), tx)
	require.Error(t, err)
	assert.True(t, solana.IsTransient(err))
	assert.False(t, domain.IsVenueRejection(err))
	assert.NotEmpty(t, h.Signature)
}

func TestSubmitter_SubmitWithoutSigner(t *testing.T) {
	rpc := stub.NewRPCClient()
	mint := testMint(t)
	setCurve(t, rpc, mint, freshCurve())
	sub := NewSubmitter(SubmitterOptions{RPC: rpc, Signer: &solana.Keypair{}})
	bc, err := NewBondingCurve(BondingCurveOptions{RPC: rpc, Submitter: sub})
	require.NoError(t, err)

	tx := &UnsignedTx{Venue: domain.VenueBondingCurve, Token: mint, Side: domain.SideBuy,
		Instructions: []solana.Instruction{solana.ComputeUnitLimit(1)}}
	_, err = bc.Submit(context.Background(), tx)
	assert.True(t, errors.Is(err, ErrSigning))
	assert.Equal(t, 0, rpc.SentCount())
}

func TestSubmitter_ConfirmFilled(t *testing.T) {
	rpc := stub.NewRPCClient()
	bc, h := submitBuy(t, rpc)

	rpc.SetStatus(h.Signature, &solana.SignatureStatus{Slot: 10, ConfirmationStatus: solana.CommitmentConfirmed})
	rpc.AddTransaction(&solana.Transaction{
		Signature: h.Signature,
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{2_000_000_000},
			PostBalances: []uint64{2_000_000_000 - 100_000_000 - 5000},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 3, Mint: h.Token, Owner: bc.Owner().String(), Amount: 3_500_000_000_000, Decimals: 6},
				{AccountIndex: 4, Mint: h.Token, Owner: "curve", Amount: 1, Decimals: 6},
			},
		},
	})

	conf, err := bc.Confirm(context.Background(), h, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ConfirmFilled, conf.State)
	assert.Equal(t, uint64(100_000_000), conf.QuoteAmount)
	assert.Equal(t, uint64(3_500_000_000_000), conf.ExecutedAmount)
	// 0.1 SOL / 3.5M tokens
	assert.InDelta(t, 0.1/3_500_000, conf.ExecutedPrice, 1e-15)
}

func TestSubmitter_ConfirmFilledWithoutTransaction(t *testing.T) {
	rpc := stub.NewRPCClient()
	bc, h := submitBuy(t, rpc)
	rpc.SetStatus(h.Signature, &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentFinalized})

	conf, err := bc.Confirm(context.Background(), h, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ConfirmFilled, conf.State)
	assert.Equal(t, h.Quote.OutAmount, conf.ExecutedAmount)
	assert.Equal(t, h.Quote.InAmount, conf.QuoteAmount)
}

func TestSubmitter_ConfirmFailedOnChain(t *testing.T) {
	rpc := stub.NewRPCClient()
	bc, h := submitBuy(t, rpc)
	rpc.SetStatus(h.Signature, &solana.SignatureStatus{
		ConfirmationStatus: solana.CommitmentConfirmed,
		Err:                map[string]interface{}{"InstructionError": []interface{}{2, map[string]interface{}{"Custom": 6002}}},
	})

	conf, err := bc.Confirm(context.Background(), h, time.Second)
	assert.Equal(t, ConfirmFailed, conf.State)
	assert.Contains(t, conf.Reason, "InstructionError")
	assert.True(t, domain.IsVenueRejection(err))
}

func TestSubmitter_ConfirmTimeout(t *testing.T) {
	rpc := stub.NewRPCClient()
	bc, h := submitBuy(t, rpc)
	rpc.SetStatus(h.Signature, &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentProcessed})

	start := time.Now()
	conf, err := bc.Confirm(context.Background(), h, 40*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ConfirmPending, conf.State)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSubmitter_ConfirmCancelled(t *testing.T) {
	rpc := stub.NewRPCClient()
	bc, h := submitBuy(t, rpc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conf, err := bc.Confirm(ctx, h, time.Second)
	assert.Equal(t, ConfirmPending, conf.State)
	assert.True(t, errors.Is(err, context.Canceled))
}
