package session

import (
	"context"
	"sync"

	"github.com/mirusearch/miru/internal/models"
)

// MemoryStore implements Store using in-memory maps. Suitable for tests and
// single-process development.
type MemoryStore struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	history map[string][]*models.HistoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vectors: make(map[string][]float32),
		history: make(map[string][]*models.HistoryEntry),
	}
}

// QueryVector implements Store.
func (s *MemoryStore) QueryVector(ctx context.Context, sessionID string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.vectors[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

// SetQueryVector implements Store.
func (s *MemoryStore) SetQueryVector(ctx context.Context, sessionID string, vector []float32) error {
	vec := make([]float32, len(vector))
	copy(vec, vector)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[sessionID] = vec
	return nil
}

// AppendHistory implements Store.
func (s *MemoryStore) AppendHistory(ctx context.Context, userID string, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append([]*models.HistoryEntry{entry}, s.history[userID]...)
	if len(history) > HistoryCap {
		history = history[:HistoryCap]
	}
	s.history[userID] = history
	return nil
}

// History implements Store.
func (s *MemoryStore) History(ctx context.Context, userID string, limit int) ([]*models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.history[userID]
	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	out := make([]*models.HistoryEntry, len(history))
	copy(out, history)
	return out, nil
}

// UserIDs implements Store.
func (s *MemoryStore) UserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.history))
	for id := range s.history {
		users = append(users, id)
	}
	return users, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.history = nil
	return nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
