package session

import (
	"context"
	"sync"

	"github.com/vietddude/keeper/internal/core/domain"
)

// MemoryStore keeps sessions in process memory. Useful for testing
// and for running without Redis.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.Session)}
}

// Get returns the stored session, or nil when none exists.
func (s *MemoryStore) Get(ctx context.Context, name string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[name]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// Save stores or replaces the session.
func (s *MemoryStore) Save(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Name] = *sess
	return nil
}

// Exists reports whether a session is stored under the name.
func (s *MemoryStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[name]
	return ok, nil
}

// Clear removes the stored session.
func (s *MemoryStore) Clear(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, name)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
