package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
)

func TestParseRecord(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name string
		line string
		want domain.CandidateRecord
	}{
		{
			name: "canonical fields",
			line: `{"token":"mintA","discovered_at":1700000001234,"score":82.5,"liquidity_estimate":40,"source_wallet":"w1","venue":"bonding_curve","pool":"poolA","symbol":"AAA"}`,
			want: domain.CandidateRecord{Token: "mintA", DiscoveredAt: 1700000001234, Score: 82.5, LiquidityEstimate: 40, SourceWallet: "w1", VenueHint: domain.VenueBondingCurve, Pool: "poolA", Symbol: "AAA"},
		},
		{
			name: "discovery aliases",
			line: `{"address":"mintB","timestamp":1700000001,"score":"61","liquidity_usd":"12.5","wallet":"w2","dex":"PumpSwap","pool_address":"poolB"}`,
			want: domain.CandidateRecord{Token: "mintB", DiscoveredAt: 1700000001000, Score: 61, LiquidityEstimate: 12.5, SourceWallet: "w2", VenueHint: domain.VenueAMM, Pool: "poolB"},
		},
		{
			name: "rfc3339 timestamp and mint alias",
			line: `{"mint_address":"mintC","timestamp":"2023-11-14T22:13:20Z","liquidity":3}`,
			want: domain.CandidateRecord{Token: "mintC", DiscoveredAt: 1700000000000, LiquidityEstimate: 3},
		},
		{
			name: "missing timestamp stamped with now",
			line: `{"mint":" mintD ","venue":"raydium"}`,
			want: domain.CandidateRecord{Token: "mintD", DiscoveredAt: now.UnixMilli(), VenueHint: domain.VenueAggregator},
		},
		{
			name: "unknown venue and nulls ignored",
			line: `{"token":"mintE","venue":"uniswap","symbol":null,"score":1}`,
			want: domain.CandidateRecord{Token: "mintE", DiscoveredAt: now.UnixMilli(), Score: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecord([]byte(tt.line), now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRecord_Malformed(t *testing.T) {
	for _, line := range []string{
		`{"token":"mintA"`,
		`not json`,
		`{"score":10}`,
		`{"token":""}`,
		`{"token":42}`,
		`{"token":"mintA","score":"high"}`,
		`{"token":"mintA","timestamp":"yesterday"}`,
		`{"token":"mintA","timestamp":-5}`,
		`["mintA"]`,
	} {
		_, err := ParseRecord([]byte(line), time.Now())
		assert.Error(t, err, line)
	}
}
