package observability

import (
	"context"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// PositionStore times every journal call into the DB query metrics.
type PositionStore struct {
	next     storage.PositionStore
	database string
	metrics  *Metrics
}

var _ storage.PositionStore = (*PositionStore)(nil)

// InstrumentPositionStore wraps next. database labels the backend.
func InstrumentPositionStore(next storage.PositionStore, database string, m *Metrics) *PositionStore {
	return &PositionStore{next: next, database: database, metrics: m}
}

func (s *PositionStore) observe(op string, start time.Time, err error) {
	s.metrics.RecordDBQuery(s.database, op, time.Since(start).Seconds(), err)
}

func (s *PositionStore) Upsert(ctx context.Context, p *domain.Position) (err error) {
	defer func(start time.Time) { s.observe("upsert", start, err) }(time.Now())
	return s.next.Upsert(ctx, p)
}

func (s *PositionStore) GetByID(ctx context.Context, id string) (p *domain.Position, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())
	return s.next.GetByID(ctx, id)
}

func (s *PositionStore) ListByStatus(ctx context.Context, statuses ...domain.PositionStatus) (out []*domain.Position, err error) {
	defer func(start time.Time) { s.observe("list_by_status", start, err) }(time.Now())
	return s.next.ListByStatus(ctx, statuses...)
}

func (s *PositionStore) ListClosed(ctx context.Context, limit int) (out []*domain.Position, err error) {
	defer func(start time.Time) { s.observe("list_closed", start, err) }(time.Now())
	return s.next.ListClosed(ctx, limit)
}
