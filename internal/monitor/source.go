package monitor

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/venue"
)

// PriceSource streams price observations for an open position.
// The returned channel is closed when ctx is done or the source gives up.
type PriceSource interface {
	Subscribe(ctx context.Context, pos *domain.Position) (<-chan domain.PriceUpdate, error)
}

// Quoter resolves venue adapters for quote polling.
type Quoter interface {
	Get(v domain.Venue) (venue.Adapter, error)
}

// Decoders resolves the stream decoder of a venue.
type Decoders interface {
	Decoder(v domain.Venue) (venue.PriceDecoder, bool)
}

// PollSource polls the venue's Quote for the position's full size.
type PollSource struct {
	quoter   Quoter
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger
}

// NewPollSource creates a polling source. Zero durations default to 2s
// between polls and a 5s quote timeout.
func NewPollSource(quoter Quoter, interval, timeout time.Duration, logger *log.Logger) *PollSource {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PollSource{quoter: quoter, interval: interval, timeout: timeout, logger: logger}
}

// Subscribe starts polling. The first observation is taken immediately.
func (s *PollSource) Subscribe(ctx context.Context, pos *domain.Position) (<-chan domain.PriceUpdate, error) {
	adapter, err := s.quoter.Get(pos.Venue)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.PriceUpdate, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			if u, ok := s.poll(ctx, adapter, pos); ok {
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}

func (s *PollSource) poll(ctx context.Context, adapter venue.Adapter, pos *domain.Position) (domain.PriceUpdate, bool) {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	amount := pos.EntryTokenAmount
	if amount == 0 {
		amount = 1
	}
	q, err := adapter.Quote(qctx, pos.Token, domain.SideSell, amount)
	if err != nil && !(errors.Is(err, domain.ErrMigrated) && q.Migrated) {
		if ctx.Err() == nil {
			s.logger.Printf("poll %s on %s: %v", pos.Token, pos.Venue, err)
		}
		return domain.PriceUpdate{}, false
	}
	return q.PriceUpdate(time.Now()), true
}

// StreamSource subscribes to the account carrying a position's price and
// decodes every notification. Venues without a decoder, and failed
// subscriptions, use the fallback.
type StreamSource struct {
	ws       solana.WSClient
	decoders Decoders
	fallback PriceSource
	logger   *log.Logger
}

// NewStreamSource creates a stream source. fallback may be nil.
func NewStreamSource(ws solana.WSClient, decoders Decoders, fallback PriceSource, logger *log.Logger) *StreamSource {
	if logger == nil {
		logger = log.Default()
	}
	return &StreamSource{ws: ws, decoders: decoders, fallback: fallback, logger: logger}
}

// Subscribe opens an accountSubscribe stream for pos.
func (s *StreamSource) Subscribe(ctx context.Context, pos *domain.Position) (<-chan domain.PriceUpdate, error) {
	dec, ok := s.decoders.Decoder(pos.Venue)
	if !ok || s.ws == nil {
		return s.fallbackFor(ctx, pos, errors.New("no stream decoder for venue "+string(pos.Venue)))
	}
	account, err := dec.PriceAccount(pos.Token)
	if err != nil {
		return s.fallbackFor(ctx, pos, err)
	}
	sub, err := s.ws.AccountSubscribe(ctx, account)
	if err != nil {
		s.logger.Printf("subscribe %s for %s: %v", account, pos.Token, err)
		return s.fallbackFor(ctx, pos, err)
	}

	out := make(chan domain.PriceUpdate, 1)
	go func() {
		defer close(out)
		defer func() {
			if err := s.ws.Unsubscribe(sub); err != nil {
				s.logger.Printf("unsubscribe %s: %v", account, err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-sub.C:
				if !ok {
					return
				}
				u, err := decodeNotification(dec, pos.Token, n)
				if err != nil {
					s.logger.Printf("decode %s: %v", account, err)
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *StreamSource) fallbackFor(ctx context.Context, pos *domain.Position, cause error) (<-chan domain.PriceUpdate, error) {
	if s.fallback == nil {
		return nil, cause
	}
	return s.fallback.Subscribe(ctx, pos)
}

func decodeNotification(dec venue.PriceDecoder, token string, n solana.AccountNotification) (domain.PriceUpdate, error) {
	data, err := base64.StdEncoding.DecodeString(n.Data)
	if err != nil {
		return domain.PriceUpdate{}, err
	}
	u, err := dec.DecodePrice(token, data)
	if err != nil {
		return domain.PriceUpdate{}, err
	}
	if n.Slot > 0 {
		u.Slot = uint64(n.Slot)
	}
	if u.ObservedAt.IsZero() {
		u.ObservedAt = time.Now()
	}
	return u, nil
}
