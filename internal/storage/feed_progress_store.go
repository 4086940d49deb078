package storage

import (
	"context"
	"time"
)

// FeedProgress is the last committed read position in the candidate file.
type FeedProgress struct {
	Offset    int64     // byte offset just past the last consumed line
	UpdatedAt time.Time // when the offset was committed
}

// FeedProgressStore provides persistence for candidate feed state.
// This enables resumption after restarts without reprocessing or losing candidates.
type FeedProgressStore interface {
	// GetOffset returns the last committed offset.
	// Returns ErrNotFound if no progress has been saved yet.
	GetOffset(ctx context.Context) (*FeedProgress, error)

	// SetOffset saves the last committed offset.
	SetOffset(ctx context.Context, progress *FeedProgress) error

	// IsTokenSeen checks if a token has already been delivered.
	IsTokenSeen(ctx context.Context, token string) (bool, error)

	// MarkTokenSeen records that a token has been delivered.
	MarkTokenSeen(ctx context.Context, token string) error

	// LoadSeenTokens returns all seen tokens (for warming the in-memory dedup set).
	LoadSeenTokens(ctx context.Context) ([]string, error)
}
