// internal/state/session.go
package state

import (
	"context"
	"sync"

	"github.com/user/mlbot/internal/types"
)

// MemorySessionStore is an in-memory ChatSessionStore. Only non-idle
// sessions are kept; absence means Idle.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[types.ChatID]types.ChatSession
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[types.ChatID]types.ChatSession),
	}
}

// Get returns the session for chatID, or the zero (Idle) session.
func (s *MemorySessionStore) Get(_ context.Context, chatID types.ChatID) (types.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[chatID], nil
}

// Set stores session for chatID. Setting an Idle session removes the record.
func (s *MemorySessionStore) Set(_ context.Context, chatID types.ChatID, session types.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.IsIdle() {
		delete(s.sessions, chatID)
		return nil
	}
	s.sessions[chatID] = session
	return nil
}

// Clear removes any record for chatID.
func (s *MemorySessionStore) Clear(_ context.Context, chatID types.ChatID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
	return nil
}

// Len returns the number of non-idle sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
