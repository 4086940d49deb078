package clickhouse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func TestPriceTickStore_InsertBulkAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceTickStore(conn)
	ctx := context.Background()

	ticks := []*domain.PriceTick{
		{PositionID: "pos1", Token: "mint1", TimestampMs: 2000, Slot: 20, Price: 1.2, Liquidity: 30, Source: "stream"},
		{PositionID: "pos1", Token: "mint1", TimestampMs: 1000, Slot: 10, Price: 1.0, Liquidity: 31, Source: "stream"},
		{PositionID: "pos2", Token: "mint2", TimestampMs: 1500, Price: 4.0, Source: "poll"},
	}
	require.NoError(t, store.InsertBulk(ctx, ticks))

	got, err := store.GetByPositionID(ctx, "pos1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].TimestampMs)
	assert.Equal(t, uint64(10), got[0].Slot)
	assert.Equal(t, 1.2, got[1].Price)
	assert.Equal(t, "stream", got[1].Source)

	ranged, err := store.GetByTimeRange(ctx, "pos1", 1500, 2500)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, int64(2000), ranged[0].TimestampMs)
}

func TestPriceTickStore_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPriceTickStore(conn)
	ctx := context.Background()

	tick := &domain.PriceTick{PositionID: "pos1", Token: "mint1", TimestampMs: 1000, Price: 1.0, Source: "stream"}
	require.NoError(t, store.InsertBulk(ctx, []*domain.PriceTick{tick}))

	err := store.InsertBulk(ctx, []*domain.PriceTick{tick})
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)

	err = store.InsertBulk(ctx, []*domain.PriceTick{
		{PositionID: "pos9", TimestampMs: 1, Source: "poll"},
		{PositionID: "pos9", TimestampMs: 1, Source: "poll"},
	})
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))
}
