package record

import (
	"context"
	"sync"

	"github.com/speedrun-record/internal/domain"
)

// Store is the slot backing a View
type Store interface {
	// Load returns the stored snapshot, or nil when the slot is empty
	Load(ctx context.Context) (*domain.LeaderboardSnapshot, error)
	// SaveOnce stores the snapshot unless the slot is already filled and
	// reports whether it was written
	SaveOnce(ctx context.Context, snapshot *domain.LeaderboardSnapshot) (bool, error)
}

// MemoryStore keeps the snapshot in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot *domain.LeaderboardSnapshot
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored snapshot
func (s *MemoryStore) Load(_ context.Context) (*domain.LeaderboardSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, nil
}

// SaveOnce stores the snapshot if the slot is empty
func (s *MemoryStore) SaveOnce(_ context.Context, snapshot *domain.LeaderboardSnapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil {
		return false, nil
	}
	s.snapshot = snapshot
	return true, nil
}
