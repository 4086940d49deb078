package venue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/solana/stub"
)

func unsignedWire(t *testing.T, payer solana.PublicKey) []byte {
	t.Helper()
	msg, err := solana.NewMessage(payer, []solana.Instruction{solana.ComputeUnitLimit(200_000)}, stub.DefaultBlockhash)
	require.NoError(t, err)
	wire := solana.AppendCompactU16(nil, 1)
	wire = append(wire, make([]byte, 64)...)
	return append(wire, msg.Serialize()...)
}

type aggregatorServer struct {
	*httptest.Server
	quoteStatus atomic.Int32
	lastQuery   atomic.Value
	swapBody    atomic.Value
}

func newAggregatorServer(t *testing.T, payer solana.PublicKey, quote map[string]interface{}) *aggregatorServer {
	t.Helper()
	s := &aggregatorServer{}
	s.quoteStatus.Store(http.StatusOK)
	wire := unsignedWire(t, payer)
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		s.lastQuery.Store(r.URL.Query())
		if status := int(s.quoteStatus.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"no route"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(quote)
	})
	mux.HandleFunc("/swap", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.swapBody.Store(body)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"swapTransaction":      base64.StdEncoding.EncodeToString(wire),
			"lastValidBlockHeight": 1000,
		})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func defaultAggregatorQuote(mint string) map[string]interface{} {
	return map[string]interface{}{
		"inputMint":            solana.WrappedSOLMint.String(),
		"inAmount":             "100000000",
		"outputMint":           mint,
		"outAmount":            "2000000000000",
		"otherAmountThreshold": "1900000000000",
		"slippageBps":          500,
		"priceImpactPct":       "0.002",
	}
}

func newTestAggregator(t *testing.T, rpc *stub.RPCClient, baseURL string) *Aggregator {
	sub := NewSubmitter(SubmitterOptions{RPC: rpc, Signer: testKeypair(t, 1), PollInterval: 5 * time.Millisecond})
	return NewAggregator(AggregatorOptions{BaseURL: baseURL, Submitter: sub})
}

func TestAggregator_Quote(t *testing.T) {
	mint := testMint(t)
	server := newAggregatorServer(t, testKeypair(t, 1).PublicKey(), defaultAggregatorQuote(mint))
	g := newTestAggregator(t, stub.NewRPCClient(), server.URL)

	q, err := g.Quote(context.Background(), mint, domain.SideBuy, 100_000_000)
	require.NoError(t, err)
	assert.Equal(t, domain.VenueAggregator, q.Venue)
	assert.Equal(t, uint64(2_000_000_000_000), q.OutAmount)
	assert.Equal(t, 20, q.PriceImpactBps)
	assert.Less(t, q.Liquidity, 0.0, "liquidity unknown")
	// 0.1 SOL / 2M tokens
	assert.InDelta(t, 5e-8, q.Price, 1e-15)
}

func TestAggregator_BuildAndSubmit(t *testing.T) {
	mint := testMint(t)
	kp := testKeypair(t, 1)
	server := newAggregatorServer(t, kp.PublicKey(), defaultAggregatorQuote(mint))
	rpc := stub.NewRPCClient()
	g := newTestAggregator(t, rpc, server.URL)

	tx, err := g.BuildSwap(context.Background(), mint, domain.SideBuy, 100_000_000, 500)
	require.NoError(t, err)
	assert.NotEmpty(t, tx.Wire)
	assert.Nil(t, tx.Instructions)
	assert.Equal(t, uint64(1_900_000_000_000), tx.MinOut)

	query := server.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"500"}, query["slippageBps"])
	assert.Equal(t, []string{mint}, query["outputMint"])

	body := server.swapBody.Load().(map[string]interface{})
	assert.Equal(t, kp.PublicKey().String(), body["userPublicKey"])
	assert.NotNil(t, body["quoteResponse"])

	h, err := g.Submit(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, 1, rpc.SentCount())
	sig, err := stub.FirstSignature(rpc.Sent[0])
	require.NoError(t, err)
	assert.Equal(t, sig, h.Signature)
}

func TestAggregator_BuildRejectsLooseThreshold(t *testing.T) {
	mint := testMint(t)
	quote := defaultAggregatorQuote(mint)
	quote["otherAmountThreshold"] = "1000000000000" // 50% below quoted output
	server := newAggregatorServer(t, testKeypair(t, 1).PublicKey(), quote)
	g := newTestAggregator(t, stub.NewRPCClient(), server.URL)

	_, err := g.BuildSwap(context.Background(), mint, domain.SideBuy, 100_000_000, 500)
	assert.ErrorIs(t, err, ErrSlippageExceeded)
}

func TestAggregator_HTTPErrors(t *testing.T) {
	mint := testMint(t)
	server := newAggregatorServer(t, testKeypair(t, 1).PublicKey(), defaultAggregatorQuote(mint))
	g := newTestAggregator(t, stub.NewRPCClient(), server.URL)

	server.quoteStatus.Store(http.StatusTooManyRequests)
	_, err := g.Quote(context.Background(), mint, domain.SideBuy, 1)
	assert.True(t, solana.IsTransient(err))

	server.quoteStatus.Store(http.StatusBadRequest)
	_, err = g.Quote(context.Background(), mint, domain.SideBuy, 1)
	assert.True(t, domain.IsVenueRejection(err))
	assert.False(t, solana.IsTransient(err))
}
