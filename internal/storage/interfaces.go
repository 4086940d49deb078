package storage

import (
	"context"

	"solana-sniper/internal/domain"
)

// PositionStore persists the position journal. Positions are mutable: every
// portfolio transition overwrites the row for the position ID.
type PositionStore interface {
	// Upsert inserts or replaces a position by ID.
	Upsert(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Position, error)

	// ListByStatus retrieves positions in any of the given statuses, ordered by opened_at ASC.
	ListByStatus(ctx context.Context, statuses ...domain.PositionStatus) ([]*domain.Position, error)

	// ListClosed retrieves up to limit CLOSED positions, most recently closed first.
	ListClosed(ctx context.Context, limit int) ([]*domain.Position, error)
}

// PriceTickStore provides access to position_price_ticks storage.
type PriceTickStore interface {
	// InsertBulk adds multiple ticks. Fails entire batch on duplicate (position_id, timestamp_ms, source).
	InsertBulk(ctx context.Context, ticks []*domain.PriceTick) error

	// GetByPositionID retrieves all ticks for a position, ordered by timestamp ASC.
	GetByPositionID(ctx context.Context, positionID string) ([]*domain.PriceTick, error)

	// GetByTimeRange retrieves ticks for a position within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, positionID string, start, end int64) ([]*domain.PriceTick, error)
}
