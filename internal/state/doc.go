// Package state provides credential persistence backends, the in-memory
// chat session store and per-key locking.
package state

import "github.com/user/mlbot/internal/types"

// Compile-time interface compliance checks.
var _ types.CredentialStore = (*FileCredentialStore)(nil)
var _ types.CredentialStore = (*MemoryCredentialStore)(nil)
var _ types.CredentialStore = (*SQLCredentialStore)(nil)
var _ types.ChatSessionStore = (*MemorySessionStore)(nil)
