package memory

import (
	"context"
	"errors"
	"testing"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func TestPriceTickStore_InsertBulkAndGet(t *testing.T) {
	store := NewPriceTickStore()
	ctx := context.Background()

	ticks := []*domain.PriceTick{
		{PositionID: "p1", Token: "m1", TimestampMs: 2000, Slot: 200, Price: 1.1, Source: "stream"},
		{PositionID: "p1", Token: "m1", TimestampMs: 1000, Slot: 100, Price: 1.0, Source: "stream"},
		{PositionID: "p2", Token: "m2", TimestampMs: 1000, Price: 3.0, Source: "poll"},
	}

	if err := store.InsertBulk(ctx, ticks); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByPositionID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByPositionID failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("Expected 2 ticks, got %d", len(result))
	}
	if result[0].TimestampMs != 1000 || result[1].TimestampMs != 2000 {
		t.Errorf("Expected ascending timestamps, got %d, %d", result[0].TimestampMs, result[1].TimestampMs)
	}
}

func TestPriceTickStore_SameTimestampDifferentSource(t *testing.T) {
	store := NewPriceTickStore()
	ctx := context.Background()

	ticks := []*domain.PriceTick{
		{PositionID: "p1", TimestampMs: 1000, Price: 1.0, Source: "stream"},
		{PositionID: "p1", TimestampMs: 1000, Price: 1.0, Source: "poll"},
	}

	if err := store.InsertBulk(ctx, ticks); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
}

func TestPriceTickStore_DuplicateKey(t *testing.T) {
	store := NewPriceTickStore()
	ctx := context.Background()

	ticks := []*domain.PriceTick{
		{PositionID: "p1", TimestampMs: 1000, Price: 1.0, Source: "stream"},
	}

	if err := store.InsertBulk(ctx, ticks); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, ticks)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestPriceTickStore_IntraBatchDuplicate(t *testing.T) {
	store := NewPriceTickStore()
	ctx := context.Background()

	ticks := []*domain.PriceTick{
		{PositionID: "p1", TimestampMs: 1000, Price: 1.0, Source: "stream"},
		{PositionID: "p1", TimestampMs: 1000, Price: 1.1, Source: "stream"},
	}

	err := store.InsertBulk(ctx, ticks)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	// Verify nothing was inserted
	result, _ := store.GetByPositionID(ctx, "p1")
	if len(result) != 0 {
		t.Errorf("Expected 0 ticks (rollback), got %d", len(result))
	}
}

func TestPriceTickStore_GetByTimeRange(t *testing.T) {
	store := NewPriceTickStore()
	ctx := context.Background()

	ticks := []*domain.PriceTick{
		{PositionID: "p1", TimestampMs: 1000, Price: 1.0, Source: "stream"},
		{PositionID: "p1", TimestampMs: 2000, Price: 1.1, Source: "stream"},
		{PositionID: "p1", TimestampMs: 3000, Price: 1.2, Source: "stream"},
	}
	if err := store.InsertBulk(ctx, ticks); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, "p1", 1500, 3000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("Expected 2 ticks in range, got %d", len(result))
	}
}

func TestPriceTickStore_InvalidInput(t *testing.T) {
	store := NewPriceTickStore()

	err := store.InsertBulk(context.Background(), []*domain.PriceTick{{TimestampMs: 1}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
