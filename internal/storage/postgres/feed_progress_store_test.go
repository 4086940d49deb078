package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/storage"
)

func TestFeedProgressStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewFeedProgressStore(pool)
	ctx := context.Background()

	_, err := store.GetOffset(ctx)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, store.SetOffset(ctx, &storage.FeedProgress{Offset: 512}))
	require.NoError(t, store.SetOffset(ctx, &storage.FeedProgress{Offset: 1024}))

	progress, err := store.GetOffset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), progress.Offset)
	assert.False(t, progress.UpdatedAt.IsZero())

	seen, err := store.IsTokenSeen(ctx, "mintA")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkTokenSeen(ctx, "mintA"))
	require.NoError(t, store.MarkTokenSeen(ctx, "mintA"))
	require.NoError(t, store.MarkTokenSeen(ctx, "mintB"))

	seen, err = store.IsTokenSeen(ctx, "mintA")
	require.NoError(t, err)
	assert.True(t, seen)

	tokens, err := store.LoadSeenTokens(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mintA", "mintB"}, tokens)
}
