package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func openPosition(id, token string, openedAt time.Time) *domain.Position {
	return &domain.Position{
		ID:               id,
		Token:            token,
		Symbol:           "PEPE",
		Status:           domain.StatusOpen,
		EntryVenue:       domain.VenueBondingCurve,
		Venue:            domain.VenueBondingCurve,
		Pool:             "curve-" + token,
		EntryCost:        decimal.RequireFromString("0.25"),
		EntryPrice:       0.000000031,
		EntryTokenAmount: 8_064_516_129_032,
		EntryTx:          "entry-" + id,
		OpenedAt:         openedAt,
		UpdatedAt:        openedAt,
	}
}

func TestPositionStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()

	opened := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := openPosition("p1", "mint1", opened)
	require.NoError(t, store.Upsert(ctx, p))

	got, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.True(t, got.EntryCost.Equal(p.EntryCost), "entry cost %s", got.EntryCost)
	assert.Equal(t, p.EntryTokenAmount, got.EntryTokenAmount)
	assert.True(t, got.OpenedAt.Equal(opened))
	assert.True(t, got.ClosedAt.IsZero())

	// Close it
	p.Status = domain.StatusClosed
	p.ExitReason = domain.ExitTakeProfit
	p.ExitProceeds = decimal.RequireFromString("0.61")
	p.ExitPrice = 0.000000076
	p.ClosedAt = opened.Add(time.Minute)
	require.NoError(t, store.Upsert(ctx, p))

	got, err = store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.Equal(t, domain.ExitTakeProfit, got.ExitReason)
	assert.True(t, got.RealizedPnL().Equal(decimal.RequireFromString("0.36")))
}

func TestPositionStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	_, err := store.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestPositionStore_OneActivePerToken(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Upsert(ctx, openPosition("p1", "mint1", now)))

	err := store.Upsert(ctx, openPosition("p2", "mint1", now))
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)

	// A failed position does not hold the token
	failed := openPosition("p3", "mint2", now)
	failed.Status = domain.StatusFailed
	require.NoError(t, store.Upsert(ctx, failed))
	require.NoError(t, store.Upsert(ctx, openPosition("p4", "mint2", now)))
}

func TestPositionStore_Lists(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPositionStore(pool)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, openPosition("a", "mA", base.Add(2*time.Second))))
	require.NoError(t, store.Upsert(ctx, openPosition("b", "mB", base.Add(1*time.Second))))

	for i, id := range []string{"c", "d", "e"} {
		p := openPosition(id, "m"+id, base)
		p.Status = domain.StatusClosed
		p.ClosedAt = base.Add(time.Duration(i+1) * time.Minute)
		require.NoError(t, store.Upsert(ctx, p))
	}

	open, err := store.ListByStatus(ctx, domain.StatusOpen, domain.StatusExiting)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "b", open[0].ID)
	assert.Equal(t, "a", open[1].ID)

	closed, err := store.ListClosed(ctx, 2)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, "e", closed[0].ID)
	assert.Equal(t, "d", closed[1].ID)
}
