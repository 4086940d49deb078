package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/venue"
)

// Adapter implements venue.Adapter for testing.
// Swaps fill at Price unless the error hooks say otherwise.
type Adapter struct {
	mu sync.Mutex

	Name      domain.Venue
	Price     float64 // SOL per whole token
	Liquidity float64
	Migrated  bool
	Decimals  uint8

	QuoteErr error
	BuildErr error
	// SubmitErrs are returned by successive Submit calls, nil entries succeed.
	SubmitErrs []error
	// ConfirmFunc overrides Confirm when set.
	ConfirmFunc func(h venue.Handle) (venue.Confirmation, error)
	// SubmitDelay blocks each Submit, honoring ctx.
	SubmitDelay time.Duration

	Builds    int
	Submitted []venue.Handle
	Confirms  int
}

// Compile-time interface check.
var _ venue.Adapter = (*Adapter)(nil)

// NewAdapter creates a stub adapter for v filling at price.
func NewAdapter(v domain.Venue, price float64) *Adapter {
	return &Adapter{Name: v, Price: price, Liquidity: 100, Decimals: domain.DefaultTokenDecimals}
}

// Venue returns the configured venue.
func (a *Adapter) Venue() domain.Venue {
	return a.Name
}

// SetPrice changes the fill price.
func (a *Adapter) SetPrice(price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Price = price
}

// Quote converts amount at Price.
func (a *Adapter) Quote(_ context.Context, token string, side domain.Side, amount uint64) (venue.Quote, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.QuoteErr != nil {
		return venue.Quote{}, a.QuoteErr
	}
	return a.quoteLocked(token, side, amount), nil
}

func (a *Adapter) quoteLocked(token string, side domain.Side, amount uint64) venue.Quote {
	q := venue.Quote{
		Venue:     a.Name,
		Token:     token,
		Side:      side,
		InAmount:  amount,
		Price:     a.Price,
		Liquidity: a.Liquidity,
		Migrated:  a.Migrated,
		Decimals:  a.Decimals,
	}
	unit := 1.0
	for i := uint8(0); i < a.Decimals; i++ {
		unit *= 10
	}
	if a.Price > 0 {
		if side == domain.SideBuy {
			q.OutAmount = uint64(float64(amount) / domain.LamportsPerSOL / a.Price * unit)
		} else {
			q.OutAmount = uint64(float64(amount) / unit * a.Price * domain.LamportsPerSOL)
		}
	}
	return q
}

// BuildSwap returns an instruction-free transaction for the quote.
func (a *Adapter) BuildSwap(_ context.Context, token string, side domain.Side, amount uint64, slippageBps int) (*venue.UnsignedTx, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Builds++
	if a.BuildErr != nil {
		return nil, a.BuildErr
	}
	q := a.quoteLocked(token, side, amount)
	return &venue.UnsignedTx{
		Venue:  a.Name,
		Token:  token,
		Side:   side,
		Quote:  q,
		MinOut: venue.MinimumOut(q.OutAmount, slippageBps),
	}, nil
}

// Submit records the transaction and returns a handle with a synthetic signature.
func (a *Adapter) Submit(ctx context.Context, tx *venue.UnsignedTx) (venue.Handle, error) {
	if a.SubmitDelay > 0 {
		select {
		case <-ctx.Done():
			return venue.Handle{}, ctx.Err()
		case <-time.After(a.SubmitDelay):
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.Submitted)
	h := venue.Handle{
		Signature:   fmt.Sprintf("sig-%s-%s-%d", tx.Token, tx.Side, n),
		Venue:       a.Name,
		Token:       tx.Token,
		Side:        tx.Side,
		Quote:       tx.Quote,
		SubmittedAt: time.Now(),
	}
	a.Submitted = append(a.Submitted, h)
	if n < len(a.SubmitErrs) && a.SubmitErrs[n] != nil {
		return h, a.SubmitErrs[n]
	}
	return h, nil
}

// Confirm fills at the quoted amounts unless ConfirmFunc is set.
func (a *Adapter) Confirm(_ context.Context, h venue.Handle, _ time.Duration) (venue.Confirmation, error) {
	a.mu.Lock()
	a.Confirms++
	fn := a.ConfirmFunc
	a.mu.Unlock()

	if fn != nil {
		return fn(h)
	}
	conf := venue.Confirmation{
		State:          venue.ConfirmFilled,
		Signature:      h.Signature,
		ExecutedPrice:  h.Quote.Price,
		ExecutedAmount: h.Quote.OutAmount,
		QuoteAmount:    h.Quote.InAmount,
	}
	if h.Side == domain.SideSell {
		conf.ExecutedAmount, conf.QuoteAmount = h.Quote.InAmount, h.Quote.OutAmount
	}
	return conf, nil
}

// SubmitCount returns the number of Submit calls.
func (a *Adapter) SubmitCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Submitted)
}

// BuildCount returns the number of BuildSwap calls.
func (a *Adapter) BuildCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Builds
}
