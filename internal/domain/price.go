package domain

import "time"

// PriceUpdate is one observation of a token's price on its venue.
type PriceUpdate struct {
	Token      string    // token mint address
	Price      float64   // SOL per whole token
	Liquidity  float64   // quote-side liquidity in SOL, negative when unknown
	Migrated   bool      // bonding curve reported complete
	Slot       uint64    // observation slot, 0 when unknown
	ObservedAt time.Time // local receive time
	Source     string    // "stream" | "poll"
}

// PriceTick is a recorded price observation for post-trade analysis.
// Corresponds to position_price_ticks table in ClickHouse.
type PriceTick struct {
	PositionID  string  // position the tick was observed for
	Token       string  // token mint address
	TimestampMs int64   // Unix timestamp in milliseconds
	Slot        uint64  // observation slot
	Price       float64 // SOL per whole token
	Liquidity   float64 // quote-side liquidity in SOL
	Source      string  // "stream" | "poll"
}
