package clickhouse

import (
	"context"
	"fmt"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PriceTickStore implements storage.PriceTickStore using ClickHouse.
type PriceTickStore struct {
	conn *Conn
}

// NewPriceTickStore creates a new PriceTickStore.
func NewPriceTickStore(conn *Conn) *PriceTickStore {
	return &PriceTickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceTickStore = (*PriceTickStore)(nil)

// InsertBulk adds multiple ticks. Fails entire batch on duplicate (position_id, timestamp_ms, source).
// MergeTree does not enforce keys, so duplicates are checked before the insert.
func (s *PriceTickStore) InsertBulk(ctx context.Context, ticks []*domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	type key struct {
		positionID  string
		timestampMs int64
		source      string
	}
	seen := make(map[key]struct{}, len(ticks))
	for _, t := range ticks {
		if t == nil || t.PositionID == "" {
			return storage.ErrInvalidInput
		}
		k := key{t.PositionID, t.TimestampMs, t.Source}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, t := range ticks {
		exists, err := s.exists(ctx, t)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO position_price_ticks (
			position_id, token, timestamp_ms, slot, price, liquidity, source
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		err = batch.Append(
			t.PositionID, t.Token, uint64(t.TimestampMs), t.Slot,
			t.Price, t.Liquidity, t.Source,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPositionID retrieves all ticks for a position, ordered by timestamp ASC.
func (s *PriceTickStore) GetByPositionID(ctx context.Context, positionID string) ([]*domain.PriceTick, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT position_id, token, timestamp_ms, slot, price, liquidity, source
		FROM position_price_ticks
		WHERE position_id = ?
		ORDER BY timestamp_ms ASC, source ASC
	`, positionID)
	if err != nil {
		return nil, fmt.Errorf("query by position id: %w", err)
	}
	defer rows.Close()

	return scanPriceTicks(rows)
}

// GetByTimeRange retrieves ticks for a position within [start, end] (inclusive).
func (s *PriceTickStore) GetByTimeRange(ctx context.Context, positionID string, start, end int64) ([]*domain.PriceTick, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT position_id, token, timestamp_ms, slot, price, liquidity, source
		FROM position_price_ticks
		WHERE position_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, source ASC
	`, positionID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceTicks(rows)
}

func (s *PriceTickStore) exists(ctx context.Context, t *domain.PriceTick) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM position_price_ticks
		WHERE position_id = ? AND timestamp_ms = ? AND source = ?
	`, t.PositionID, uint64(t.TimestampMs), t.Source).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanPriceTicks(rows chRows) ([]*domain.PriceTick, error) {
	var ticks []*domain.PriceTick

	for rows.Next() {
		var t domain.PriceTick
		var timestampMs uint64

		err := rows.Scan(
			&t.PositionID, &t.Token, &timestampMs, &t.Slot,
			&t.Price, &t.Liquidity, &t.Source,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price tick row: %w", err)
		}

		t.TimestampMs = int64(timestampMs)
		ticks = append(ticks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price tick rows: %w", err)
	}
	return ticks, nil
}
