package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"solana-sniper/internal/domain"
)

// Field names accepted from the discovery process, in precedence order.
var (
	tokenKeys     = []string{"token", "address", "mint_address", "mint"}
	timestampKeys = []string{"timestamp", "discovered_at"}
	scoreKeys     = []string{"score"}
	liquidityKeys = []string{"liquidity_estimate", "liquidity_usd", "liquidity"}
	walletKeys    = []string{"source_wallet", "wallet"}
	venueKeys     = []string{"venue", "venue_hint", "dex"}
	poolKeys      = []string{"pool", "pool_address"}
	symbolKeys    = []string{"symbol"}
)

// secondsCutoff separates unix seconds from unix milliseconds.
const secondsCutoff = 1e12

var errMissingToken = errors.New("missing token")

// ParseRecord decodes one queue line. A record without a timestamp is
// stamped with now.
func ParseRecord(line []byte, now time.Time) (domain.CandidateRecord, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return domain.CandidateRecord{}, fmt.Errorf("decode json: %w", err)
	}

	var rec domain.CandidateRecord
	var err error

	if rec.Token, err = stringField(raw, tokenKeys); err != nil {
		return rec, err
	}
	if rec.Token == "" {
		return rec, errMissingToken
	}

	if rec.DiscoveredAt, err = timestampField(raw, timestampKeys); err != nil {
		return rec, err
	}
	if rec.DiscoveredAt == 0 {
		rec.DiscoveredAt = now.UnixMilli()
	}

	if rec.Score, err = numberField(raw, scoreKeys); err != nil {
		return rec, err
	}
	if rec.LiquidityEstimate, err = numberField(raw, liquidityKeys); err != nil {
		return rec, err
	}
	if rec.SourceWallet, err = stringField(raw, walletKeys); err != nil {
		return rec, err
	}
	if rec.Pool, err = stringField(raw, poolKeys); err != nil {
		return rec, err
	}
	if rec.Symbol, err = stringField(raw, symbolKeys); err != nil {
		return rec, err
	}

	label, err := stringField(raw, venueKeys)
	if err != nil {
		return rec, err
	}
	if v, ok := domain.ParseVenue(label); ok {
		rec.VenueHint = v
	}
	return rec, nil
}

func lookup(raw map[string]json.RawMessage, keys []string) (string, json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && string(v) != "null" {
			return k, v, true
		}
	}
	return "", nil, false
}

func stringField(raw map[string]json.RawMessage, keys []string) (string, error) {
	key, v, ok := lookup(raw, keys)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("field %s: want string, got %s", key, v)
	}
	return strings.TrimSpace(s), nil
}

// numberField accepts a JSON number or a numeric string.
func numberField(raw map[string]json.RawMessage, keys []string) (float64, error) {
	key, v, ok := lookup(raw, keys)
	if !ok {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, fmt.Errorf("field %s: want number, got %s", key, v)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return f, nil
}

// timestampField accepts unix seconds, unix milliseconds or RFC3339 and
// returns unix milliseconds.
func timestampField(raw map[string]json.RawMessage, keys []string) (int64, error) {
	key, v, ok := lookup(raw, keys)
	if !ok {
		return 0, nil
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
			return t.UnixMilli(), nil
		}
	}
	f, err := numberField(raw, []string{key})
	if err != nil {
		return 0, fmt.Errorf("field %s: want unix time or RFC3339, got %s", key, v)
	}
	if f < 0 {
		return 0, fmt.Errorf("field %s: negative timestamp", key)
	}
	if f < secondsCutoff {
		return int64(f * 1000), nil
	}
	return int64(f), nil
}
