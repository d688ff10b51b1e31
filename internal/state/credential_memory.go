// internal/state/credential_memory.go
package state

import (
	"context"
	"sync"

	"github.com/user/mlbot/internal/types"
)

// MemoryCredentialStore holds the credential for the lifetime of the process.
type MemoryCredentialStore struct {
	mu   sync.Mutex
	cred *types.Credential
}

// NewMemoryCredentialStore creates an empty in-memory store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

// Load returns a copy of the stored credential, or nil.
func (s *MemoryCredentialStore) Load(_ context.Context) (*types.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil, nil
	}
	clone := *s.cred
	return &clone, nil
}

// Save replaces the stored credential with a copy of cred.
func (s *MemoryCredentialStore) Save(_ context.Context, cred *types.Credential) error {
	if cred == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cred
	s.cred = &clone
	return nil
}

func (s *MemoryCredentialStore) Close() error {
	return nil
}
