package domain

// CandidateRecord is a token surfaced by the external discovery process through
// the shared candidate queue file. Records are identified by
// idhash.CandidateID(Token, DiscoveredAt) and deduplicated by Token.
type CandidateRecord struct {
	Token             string  // token mint address (base58)
	DiscoveredAt      int64   // Unix timestamp in milliseconds
	Score             float64 // discovery score, higher is better
	LiquidityEstimate float64 // estimated pool liquidity in quote units
	SourceWallet      string  // wallet that triggered discovery (copy-trade), optional
	VenueHint         Venue   // venue suggested by discovery, optional
	Pool              string  // pool or bonding-curve address, optional
	Symbol            string  // token symbol, optional
}
