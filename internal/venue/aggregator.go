package venue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// DefaultAggregatorURL is the public swap aggregator API.
const DefaultAggregatorURL = "https://quote-api.jup.ag/v6"

// Aggregator routes swaps through a quote/swap aggregator API across AMMs.
type Aggregator struct {
	*Submitter

	baseURL     string
	httpClient  *http.Client
	decimals    uint8
	priorityFee uint64
}

// AggregatorOptions contains configuration for creating an Aggregator adapter.
type AggregatorOptions struct {
	BaseURL     string // defaults to DefaultAggregatorURL
	HTTPClient  *http.Client
	Submitter   *Submitter
	Decimals    uint8
	PriorityFee uint64 // prioritization fee in lamports, 0 lets the API decide
}

// NewAggregator creates an aggregator adapter.
func NewAggregator(opts AggregatorOptions) *Aggregator {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultAggregatorURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	decimals := opts.Decimals
	if decimals == 0 {
		decimals = domain.DefaultTokenDecimals
	}
	return &Aggregator{
		Submitter:   opts.Submitter,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		decimals:    decimals,
		priorityFee: opts.PriorityFee,
	}
}

// Venue returns the aggregator venue.
func (g *Aggregator) Venue() domain.Venue {
	return domain.VenueAggregator
}

// aggregatorQuote is the quote response. It is passed back verbatim to /swap.
type aggregatorQuote struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`

	raw json.RawMessage
}

func (g *Aggregator) fetchQuote(ctx context.Context, token string, side domain.Side, amount uint64, slippageBps int) (*aggregatorQuote, error) {
	input, output := solana.WrappedSOLMint.String(), token
	if side == domain.SideSell {
		input, output = token, solana.WrappedSOLMint.String()
	}

	q := url.Values{}
	q.Set("inputMint", input)
	q.Set("outputMint", output)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	body, err := g.do(req)
	if err != nil {
		return nil, err
	}

	var quote aggregatorQuote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	quote.raw = body
	return &quote, nil
}

func (g *Aggregator) do(req *http.Request) ([]byte, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, fmt.Errorf("%w: %v", solana.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", solana.ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: aggregator HTTP %d", solana.ErrTransport, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, rejection(domain.VenueAggregator, fmt.Sprintf("HTTP %d", resp.StatusCode), fmt.Errorf("%s", bytes.TrimSpace(body)))
	}
	return body, nil
}

// Quote prices a swap through the aggregator. Liquidity is not reported.
func (g *Aggregator) Quote(ctx context.Context, token string, side domain.Side, amount uint64) (Quote, error) {
	aq, err := g.fetchQuote(ctx, token, side, amount, 0)
	if err != nil {
		return Quote{}, err
	}
	return g.toQuote(token, side, aq)
}

func (g *Aggregator) toQuote(token string, side domain.Side, aq *aggregatorQuote) (Quote, error) {
	in, err := strconv.ParseUint(aq.InAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("parse inAmount %q: %w", aq.InAmount, err)
	}
	out, err := strconv.ParseUint(aq.OutAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("parse outAmount %q: %w", aq.OutAmount, err)
	}
	impact, _ := strconv.ParseFloat(aq.PriceImpactPct, 64)

	q := Quote{
		Venue:          g.Venue(),
		Token:          token,
		Side:           side,
		InAmount:       in,
		OutAmount:      out,
		PriceImpactBps: int(impact * bpsDenominator),
		Liquidity:      -1,
		Decimals:       g.decimals,
	}
	if side == domain.SideBuy {
		q.Price = domain.PriceFromAmounts(in, out, g.decimals)
	} else {
		q.Price = domain.PriceFromAmounts(out, in, g.decimals)
	}
	return q, nil
}

// BuildSwap requests a quote with the slippage bound and a prebuilt swap
// transaction for the wallet.
func (g *Aggregator) BuildSwap(ctx context.Context, token string, side domain.Side, amount uint64, slippageBps int) (*UnsignedTx, error) {
	aq, err := g.fetchQuote(ctx, token, side, amount, slippageBps)
	if err != nil {
		return nil, err
	}
	q, err := g.toQuote(token, side, aq)
	if err != nil {
		return nil, err
	}
	if q.OutAmount == 0 {
		return nil, rejection(g.Venue(), "zero output", nil)
	}
	if err := checkImpact(q, slippageBps); err != nil {
		return nil, err
	}
	minOut, err := strconv.ParseUint(aq.OtherAmountThreshold, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse otherAmountThreshold %q: %w", aq.OtherAmountThreshold, err)
	}
	if err := CheckSlippage(q.OutAmount, minOut, slippageBps); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"quoteResponse":           aq.raw,
		"userPublicKey":           g.Owner().String(),
		"wrapAndUnwrapSol":        true,
		"dynamicComputeUnitLimit": true,
	}
	if g.priorityFee > 0 {
		payload["prioritizationFeeLamports"] = g.priorityFee
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/swap", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := g.do(req)
	if err != nil {
		return nil, err
	}
	var swap struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(body, &swap); err != nil {
		return nil, fmt.Errorf("decode swap: %w", err)
	}
	wire, err := base64.StdEncoding.DecodeString(swap.SwapTransaction)
	if err != nil || len(wire) == 0 {
		return nil, rejection(g.Venue(), "invalid swap transaction", err)
	}

	return &UnsignedTx{Venue: g.Venue(), Token: token, Side: side, Quote: q, MinOut: minOut, Wire: wire}, nil
}
