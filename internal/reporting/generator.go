package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// Generator produces reports from the position journal.
type Generator struct {
	store storage.PositionStore
	limit int
	now   func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a report generator over store. limit bounds the
// number of closed positions read (most recent first), 0 means 10000.
func NewGenerator(store storage.PositionStore, limit int) *Generator {
	if limit <= 0 {
		limit = 10000
	}
	return &Generator{
		store: store,
		limit: limit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate reads the journal and builds a report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	closed, err := g.store.ListClosed(ctx, g.limit)
	if err != nil {
		return nil, fmt.Errorf("list closed positions: %w", err)
	}
	active, err := g.store.ListByStatus(ctx, domain.StatusPending, domain.StatusOpen, domain.StatusExiting)
	if err != nil {
		return nil, fmt.Errorf("list active positions: %w", err)
	}
	failed, err := g.store.ListByStatus(ctx, domain.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("list failed positions: %w", err)
	}

	return Build(closed, active, failed, g.now()), nil
}

// Build assembles a report from already loaded positions.
func Build(closed, active, failed []*domain.Position, at time.Time) *Report {
	// Close order, ties by ID
	sorted := make([]*domain.Position, len(closed))
	copy(sorted, closed)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ClosedAt.Equal(sorted[j].ClosedAt) {
			return sorted[i].ClosedAt.Before(sorted[j].ClosedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	summary := summarize(sorted)
	summary.Active = len(active)
	summary.Failed = len(failed)

	return &Report{
		GeneratedAt: at,
		Summary:     summary,
		ByExitReason: group(sorted, func(p *domain.Position) string {
			return string(p.ExitReason)
		}),
		ByVenue: group(sorted, func(p *domain.Position) string {
			return string(p.Venue)
		}),
		Active: active,
		Closed: sorted,
		Failed: failed,
	}
}
