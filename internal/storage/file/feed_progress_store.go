// Package file persists feed progress in a JSON sidecar next to the candidate file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"solana-sniper/internal/storage"
)

// sidecar is the on-disk document.
type sidecar struct {
	Offset     int64     `json:"offset"`
	HasOffset  bool      `json:"has_offset"`
	UpdatedAt  time.Time `json:"updated_at"`
	SeenTokens []string  `json:"seen_tokens"`
}

// FeedProgressStore implements storage.FeedProgressStore with a JSON file.
// Every write replaces the file through a temp file and rename.
type FeedProgressStore struct {
	path string

	mu   sync.Mutex
	doc  sidecar
	seen map[string]bool
}

// Compile-time interface check.
var _ storage.FeedProgressStore = (*FeedProgressStore)(nil)

// NewFeedProgressStore loads path if it exists. A missing file starts empty.
func NewFeedProgressStore(path string) (*FeedProgressStore, error) {
	s := &FeedProgressStore{path: path, seen: make(map[string]bool)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read progress file: %w", err)
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("decode progress file %s: %w", path, err)
	}
	for _, token := range s.doc.SeenTokens {
		s.seen[token] = true
	}
	return s, nil
}

// Path returns the sidecar location.
func (s *FeedProgressStore) Path() string {
	return s.path
}

// GetOffset returns the last committed offset.
func (s *FeedProgressStore) GetOffset(_ context.Context) (*storage.FeedProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.doc.HasOffset {
		return nil, storage.ErrNotFound
	}
	return &storage.FeedProgress{Offset: s.doc.Offset, UpdatedAt: s.doc.UpdatedAt}, nil
}

// SetOffset saves the last committed offset.
func (s *FeedProgressStore) SetOffset(_ context.Context, progress *storage.FeedProgress) error {
	if progress == nil || progress.Offset < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.doc
	s.doc.Offset = progress.Offset
	s.doc.HasOffset = true
	s.doc.UpdatedAt = time.Now().UTC()
	if err := s.flush(); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

// IsTokenSeen checks if a token has already been delivered.
func (s *FeedProgressStore) IsTokenSeen(_ context.Context, token string) (bool, error) {
	if token == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[token], nil
}

// MarkTokenSeen records that a token has been delivered.
func (s *FeedProgressStore) MarkTokenSeen(_ context.Context, token string) error {
	if token == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[token] {
		return nil
	}
	s.seen[token] = true
	s.doc.SeenTokens = append(s.doc.SeenTokens, token)
	if err := s.flush(); err != nil {
		delete(s.seen, token)
		s.doc.SeenTokens = s.doc.SeenTokens[:len(s.doc.SeenTokens)-1]
		return err
	}
	return nil
}

// LoadSeenTokens returns all seen tokens in sorted order.
func (s *FeedProgressStore) LoadSeenTokens(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := make([]string, len(s.doc.SeenTokens))
	copy(tokens, s.doc.SeenTokens)
	sort.Strings(tokens)
	return tokens, nil
}

// flush writes the document atomically. Caller holds mu.
func (s *FeedProgressStore) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp progress file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write progress: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close progress: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace progress file: %w", err)
	}
	return nil
}
