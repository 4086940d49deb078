package domain

import "strings"

// Venue identifies the liquidity venue an order is routed to.
type Venue string

// Venue values
const (
	VenueBondingCurve Venue = "bonding_curve" // pre-migration launchpad curve
	VenueAMM          Venue = "amm"           // post-migration constant-product pool
	VenueAggregator   Venue = "aggregator"    // general AMM routing via quote/swap API
)

// venueAliases maps labels written by the discovery process to venues.
var venueAliases = map[string]Venue{
	"bonding_curve": VenueBondingCurve,
	"bondingcurve":  VenueBondingCurve,
	"pump.fun":      VenueBondingCurve,
	"pumpfun":       VenueBondingCurve,
	"pump_fun":      VenueBondingCurve,
	"amm":           VenueAMM,
	"pumpswap":      VenueAMM,
	"pump_swap":     VenueAMM,
	"pump_amm":      VenueAMM,
	"aggregator":    VenueAggregator,
	"jupiter":       VenueAggregator,
	"raydium":       VenueAggregator,
	"orca":          VenueAggregator,
	"meteora":       VenueAggregator,
}

// ParseVenue resolves a venue label case-insensitively.
// Returns false for empty or unknown labels.
func ParseVenue(s string) (Venue, bool) {
	v, ok := venueAliases[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// Valid reports whether v is a known venue.
func (v Venue) Valid() bool {
	switch v {
	case VenueBondingCurve, VenueAMM, VenueAggregator:
		return true
	}
	return false
}

// Side is the direction of a swap relative to the token.
type Side string

// Side values
const (
	SideBuy  Side = "buy"  // quote in, token out
	SideSell Side = "sell" // token in, quote out
)
