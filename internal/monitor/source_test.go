package monitor

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/venue"
	"solana-sniper/internal/venue/stub"
)

// fakeWS hands out test-fed account subscriptions.
type fakeWS struct {
	mu           sync.Mutex
	subs         map[string]chan solana.AccountNotification
	unsubscribed []string
	subErr       error
}

func newFakeWS() *fakeWS {
	return &fakeWS{subs: map[string]chan solana.AccountNotification{}}
}

func (f *fakeWS) AccountSubscribe(_ context.Context, account string) (*solana.AccountSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	ch := make(chan solana.AccountNotification, 4)
	f.subs[account] = ch
	return &solana.AccountSubscription{Account: account, C: ch}, nil
}

func (f *fakeWS) Unsubscribe(s *solana.AccountSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, s.Account)
	return nil
}

func (f *fakeWS) Close() error { return nil }

func (f *fakeWS) notify(account string, n solana.AccountNotification) {
	f.mu.Lock()
	ch := f.subs[account]
	f.mu.Unlock()
	ch <- n
}

func (f *fakeWS) unsubscribedAccounts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.unsubscribed...)
}

// priceDecoder reads a little-endian float64 price from the account data.
type priceDecoder struct{}

func (priceDecoder) PriceAccount(token string) (string, error) { return "acct-" + token, nil }

func (priceDecoder) DecodePrice(token string, data []byte) (domain.PriceUpdate, error) {
	if len(data) < 8 {
		return domain.PriceUpdate{}, errors.New("short data")
	}
	return domain.PriceUpdate{
		Token:     token,
		Price:     math.Float64frombits(binary.LittleEndian.Uint64(data)),
		Liquidity: 12,
		Source:    "stream",
	}, nil
}

type decoderSet map[domain.Venue]venue.PriceDecoder

func (d decoderSet) Decoder(v domain.Venue) (venue.PriceDecoder, bool) {
	dec, ok := d[v]
	return dec, ok
}

func encodePrice(p float64) string {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(p))
	return base64.StdEncoding.EncodeToString(buf)
}

func receive(t *testing.T, ch <-chan domain.PriceUpdate) domain.PriceUpdate {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "channel closed")
		return u
	case <-time.After(time.Second):
		t.Fatal("no price update")
	}
	return domain.PriceUpdate{}
}

func TestStreamSource(t *testing.T) {
	ws := newFakeWS()
	src := NewStreamSource(ws, decoderSet{domain.VenueBondingCurve: priceDecoder{}}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	pos := &domain.Position{Token: "mintA", Venue: domain.VenueBondingCurve}
	updates, err := src.Subscribe(ctx, pos)
	require.NoError(t, err)

	ws.notify("acct-mintA", solana.AccountNotification{Account: "acct-mintA", Slot: 42, Data: "!!not base64"})
	ws.notify("acct-mintA", solana.AccountNotification{Account: "acct-mintA", Slot: 43, Data: encodePrice(0.00003)})

	u := receive(t, updates)
	assert.Equal(t, "mintA", u.Token)
	assert.Equal(t, 0.00003, u.Price)
	assert.Equal(t, uint64(43), u.Slot, "undecodable notifications are skipped")
	assert.False(t, u.ObservedAt.IsZero())

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-updates:
			return !open
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"acct-mintA"}, ws.unsubscribedAccounts())
}

func TestStreamSource_FallsBackToPolling(t *testing.T) {
	adapter := stub.NewAdapter(domain.VenueAMM, 0.0002)
	poll := NewPollSource(venue.NewRegistry(adapter), 5*time.Millisecond, time.Second, nil)
	ws := newFakeWS()
	src := NewStreamSource(ws, decoderSet{domain.VenueBondingCurve: priceDecoder{}}, poll, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No decoder for the AMM
	updates, err := src.Subscribe(ctx, &domain.Position{Token: "mintA", Venue: domain.VenueAMM, EntryTokenAmount: 1_000_000})
	require.NoError(t, err)
	u := receive(t, updates)
	assert.Equal(t, 0.0002, u.Price)
	assert.Equal(t, "poll", u.Source)

	// Subscription failure
	ws.subErr = errors.New("connection refused")
	_, err = NewStreamSource(ws, decoderSet{domain.VenueBondingCurve: priceDecoder{}}, nil, nil).
		Subscribe(ctx, &domain.Position{Token: "mintB", Venue: domain.VenueBondingCurve})
	assert.Error(t, err)
}

func TestPollSource(t *testing.T) {
	adapter := stub.NewAdapter(domain.VenueBondingCurve, 0.0001)
	src := NewPollSource(venue.NewRegistry(adapter), 5*time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := src.Subscribe(ctx, &domain.Position{Token: "mintA", Venue: domain.VenueBondingCurve, EntryTokenAmount: 1_000_000})
	require.NoError(t, err)

	assert.Equal(t, 0.0001, receive(t, updates).Price)
	adapter.SetPrice(0.0003)
	for i := 0; i < 100; i++ {
		if receive(t, updates).Price == 0.0003 {
			return
		}
	}
	t.Fatal("price change never polled")
}

func TestPollSource_SkipsFailedQuotes(t *testing.T) {
	adapter := stub.NewAdapter(domain.VenueBondingCurve, 0.0001)
	adapter.QuoteErr = errors.New("node unhealthy")
	src := NewPollSource(venue.NewRegistry(adapter), 5*time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := src.Subscribe(ctx, &domain.Position{Token: "mintA", Venue: domain.VenueBondingCurve})
	require.NoError(t, err)

	select {
	case u := <-updates:
		t.Fatalf("unexpected update %+v", u)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPollSource_UnknownVenue(t *testing.T) {
	src := NewPollSource(venue.NewRegistry(), 0, 0, nil)
	_, err := src.Subscribe(context.Background(), &domain.Position{Token: "mintA", Venue: domain.VenueAggregator})
	assert.Error(t, err)
}
