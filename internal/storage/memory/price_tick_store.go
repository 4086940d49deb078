package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PriceTickStore is an in-memory implementation of storage.PriceTickStore.
type PriceTickStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceTick // keyed by (position_id, timestamp_ms, source)
}

// NewPriceTickStore creates a new in-memory price tick store.
func NewPriceTickStore() *PriceTickStore {
	return &PriceTickStore{
		data: make(map[string]*domain.PriceTick),
	}
}

// Compile-time interface check.
var _ storage.PriceTickStore = (*PriceTickStore)(nil)

func tickKey(t *domain.PriceTick) string {
	return fmt.Sprintf("%s|%d|%s", t.PositionID, t.TimestampMs, t.Source)
}

// InsertBulk adds multiple ticks. Fails entire batch on duplicate.
func (s *PriceTickStore) InsertBulk(_ context.Context, ticks []*domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(ticks))
	for _, t := range ticks {
		if t == nil || t.PositionID == "" {
			return storage.ErrInvalidInput
		}
		key := tickKey(t)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, t := range ticks {
		cp := *t
		s.data[tickKey(t)] = &cp
	}
	return nil
}

// GetByPositionID retrieves all ticks for a position, ordered by timestamp ASC.
func (s *PriceTickStore) GetByPositionID(_ context.Context, positionID string) ([]*domain.PriceTick, error) {
	return s.collect(positionID, func(*domain.PriceTick) bool { return true }), nil
}

// GetByTimeRange retrieves ticks for a position within [start, end] (inclusive).
func (s *PriceTickStore) GetByTimeRange(_ context.Context, positionID string, start, end int64) ([]*domain.PriceTick, error) {
	return s.collect(positionID, func(t *domain.PriceTick) bool {
		return t.TimestampMs >= start && t.TimestampMs <= end
	}), nil
}

func (s *PriceTickStore) collect(positionID string, keep func(*domain.PriceTick) bool) []*domain.PriceTick {
	s.mu.RLock()
	result := make([]*domain.PriceTick, 0)
	for _, t := range s.data {
		if t.PositionID == positionID && keep(t) {
			cp := *t
			result = append(result, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].TimestampMs != result[j].TimestampMs {
			return result[i].TimestampMs < result[j].TimestampMs
		}
		return result[i].Source < result[j].Source
	})
	return result
}
