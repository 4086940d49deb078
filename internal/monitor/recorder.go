package monitor

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

const tickFlushTimeout = 5 * time.Second

// TickRecorder batches price observations into a PriceTickStore.
// Ticks for the same position and source within one millisecond collapse
// into the first, matching the store's uniqueness key.
type TickRecorder struct {
	store         storage.PriceTickStore
	in            chan *domain.PriceTick
	batchSize     int
	flushInterval time.Duration
	logger        *log.Logger

	dropped  atomic.Int64
	recorded atomic.Int64
}

// NewTickRecorder creates a recorder. Zero values default to batches of 256
// flushed at least every 2s.
func NewTickRecorder(store storage.PriceTickStore, batchSize int, flushInterval time.Duration, logger *log.Logger) *TickRecorder {
	if batchSize <= 0 {
		batchSize = 256
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TickRecorder{
		store:         store,
		in:            make(chan *domain.PriceTick, batchSize*4),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Record queues a tick without blocking. Returns false when the queue is full.
func (r *TickRecorder) Record(t *domain.PriceTick) bool {
	select {
	case r.in <- t:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of ticks dropped on a full queue.
func (r *TickRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Recorded returns the number of ticks written to the store.
func (r *TickRecorder) Recorded() int64 {
	return r.recorded.Load()
}

// Run writes queued ticks until ctx is done, then flushes what is left.
func (r *TickRecorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	last := make(map[string]int64) // position|source -> last timestamp
	batch := make([]*domain.PriceTick, 0, r.batchSize)

	add := func(t *domain.PriceTick) {
		key := t.PositionID + "|" + t.Source
		if ts, ok := last[key]; ok && t.TimestampMs <= ts {
			return
		}
		last[key] = t.TimestampMs
		batch = append(batch, t)
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case t := <-r.in:
					add(t)
				default:
					r.flush(batch)
					return
				}
			}
		case t := <-r.in:
			add(t)
			if len(batch) >= r.batchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			r.flush(batch)
			batch = batch[:0]
		}
	}
}

func (r *TickRecorder) flush(batch []*domain.PriceTick) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), tickFlushTimeout)
	defer cancel()

	if err := r.store.InsertBulk(ctx, batch); err != nil {
		r.logger.Printf("write %d price ticks: %v", len(batch), err)
		return
	}
	r.recorded.Add(int64(len(batch)))
}
