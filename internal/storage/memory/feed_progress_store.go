package memory

import (
	"context"
	"sync"

	"solana-sniper/internal/storage"
)

// FeedProgressStore is an in-memory implementation of storage.FeedProgressStore.
type FeedProgressStore struct {
	mu         sync.RWMutex
	progress   *storage.FeedProgress
	seenTokens map[string]bool
}

// NewFeedProgressStore creates a new in-memory feed progress store.
func NewFeedProgressStore() *FeedProgressStore {
	return &FeedProgressStore{
		seenTokens: make(map[string]bool),
	}
}

// Compile-time interface check.
var _ storage.FeedProgressStore = (*FeedProgressStore)(nil)

// GetOffset returns the last committed offset.
func (s *FeedProgressStore) GetOffset(_ context.Context) (*storage.FeedProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.progress == nil {
		return nil, storage.ErrNotFound
	}

	cp := *s.progress
	return &cp, nil
}

// SetOffset saves the last committed offset.
func (s *FeedProgressStore) SetOffset(_ context.Context, progress *storage.FeedProgress) error {
	if progress == nil || progress.Offset < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *progress
	s.progress = &cp
	return nil
}

// IsTokenSeen checks if a token has already been delivered.
func (s *FeedProgressStore) IsTokenSeen(_ context.Context, token string) (bool, error) {
	if token == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.seenTokens[token], nil
}

// MarkTokenSeen records that a token has been delivered.
func (s *FeedProgressStore) MarkTokenSeen(_ context.Context, token string) error {
	if token == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seenTokens[token] = true
	return nil
}

// LoadSeenTokens returns all seen tokens.
func (s *FeedProgressStore) LoadSeenTokens(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]string, 0, len(s.seenTokens))
	for token := range s.seenTokens {
		tokens = append(tokens, token)
	}
	return tokens, nil
}
