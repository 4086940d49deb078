package venue

import (
	"fmt"
	"sort"

	"solana-sniper/internal/domain"
)

// Registry selects the adapter for a venue.
type Registry struct {
	adapters map[domain.Venue]Adapter
	fallback domain.Venue
}

// NewRegistry creates a registry of adapters. The bonding curve is the
// fallback venue when a candidate carries no usable hint.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[domain.Venue]Adapter, len(adapters)),
		fallback: domain.VenueBondingCurve,
	}
	for _, a := range adapters {
		r.adapters[a.Venue()] = a
	}
	return r
}

// Get returns the adapter for v.
func (r *Registry) Get(v domain.Venue) (Adapter, error) {
	a, ok := r.adapters[v]
	if !ok {
		return nil, fmt.Errorf("no adapter for venue %q", v)
	}
	return a, nil
}

// Resolve maps a discovery venue hint to a registered venue.
func (r *Registry) Resolve(hint string) domain.Venue {
	if v, ok := domain.ParseVenue(hint); ok {
		if _, registered := r.adapters[v]; registered {
			return v
		}
	}
	return r.fallback
}

// Decoder returns the stream price decoder of v, if the venue has one.
func (r *Registry) Decoder(v domain.Venue) (PriceDecoder, bool) {
	d, ok := r.adapters[v].(PriceDecoder)
	return d, ok
}

// Venues returns the registered venues in name order.
func (r *Registry) Venues() []domain.Venue {
	out := make([]domain.Venue, 0, len(r.adapters))
	for v := range r.adapters {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
