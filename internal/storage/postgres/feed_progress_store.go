package postgres

import (
	"context"

	"solana-sniper/internal/storage"
)

// FeedProgressStore is a PostgreSQL implementation of storage.FeedProgressStore.
// Uses two tables:
//   - feed_progress: single row with the committed byte offset
//   - feed_seen_tokens: set of delivered token mints
type FeedProgressStore struct {
	pool *Pool
}

// NewFeedProgressStore creates a new PostgreSQL feed progress store.
func NewFeedProgressStore(pool *Pool) *FeedProgressStore {
	return &FeedProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeedProgressStore = (*FeedProgressStore)(nil)

// GetOffset returns the last committed offset.
func (s *FeedProgressStore) GetOffset(ctx context.Context) (*storage.FeedProgress, error) {
	var progress storage.FeedProgress
	err := s.pool.QueryRow(ctx, `
		SELECT byte_offset, updated_at
		FROM feed_progress
		WHERE id = 1
	`).Scan(&progress.Offset, &progress.UpdatedAt)
	if err != nil {
		return nil, mapError("get feed offset", err)
	}
	return &progress, nil
}

// SetOffset saves the last committed offset.
func (s *FeedProgressStore) SetOffset(ctx context.Context, progress *storage.FeedProgress) error {
	if progress == nil || progress.Offset < 0 {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_progress (id, byte_offset, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET byte_offset = EXCLUDED.byte_offset,
		    updated_at = NOW()
	`, progress.Offset)
	return err
}

// IsTokenSeen checks if a token has already been delivered.
func (s *FeedProgressStore) IsTokenSeen(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, storage.ErrInvalidInput
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM feed_seen_tokens WHERE token = $1)
	`, token).Scan(&exists)
	return exists, err
}

// MarkTokenSeen records that a token has been delivered.
func (s *FeedProgressStore) MarkTokenSeen(ctx context.Context, token string) error {
	if token == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_seen_tokens (token, seen_at)
		VALUES ($1, NOW())
		ON CONFLICT (token) DO NOTHING
	`, token)
	return err
}

// LoadSeenTokens returns all seen tokens.
func (s *FeedProgressStore) LoadSeenTokens(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT token FROM feed_seen_tokens`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
