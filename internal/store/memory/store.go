// Package memory provides an in-process idempotency store for dry runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/snapshill/internal/snapshot"
)

// Store keeps replied posts in a map.
type Store struct {
	mu      sync.RWMutex
	replies map[string]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{replies: make(map[string]string)}
}

// Contains implements snapshot.Store.
func (s *Store) Contains(_ context.Context, postID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.replies[postID]
	return ok, nil
}

// Insert implements snapshot.Store.
func (s *Store) Insert(_ context.Context, postID, replyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.replies[postID]; ok {
		return snapshot.ErrAlreadyRecorded
	}
	s.replies[postID] = replyID
	return nil
}

// Reply returns the reply id recorded for postID.
func (s *Store) Reply(_ context.Context, postID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reply, ok := s.replies[postID]
	if !ok {
		return "", snapshot.ErrNotFound
	}
	return reply, nil
}

// Len reports how many posts are recorded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.replies)
}
