// internal/state/credential_file.go
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/user/mlbot/internal/types"
)

// credentialRecord is the on-disk layout of a credential.
// expires_at is epoch milliseconds.
type credentialRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    int64     `json:"expires_at"`
	UserID       accountID `json:"user_id"`
}

// accountID reads user_id as either a JSON number or string and writes
// numeric ids back as numbers.
type accountID string

func (a accountID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(a), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(a) {
		return []byte(a), nil
	}
	return json.Marshal(string(a))
}

func (a *accountID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = accountID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	*a = accountID(n.String())
	return nil
}

func toRecord(cred *types.Credential) credentialRecord {
	return credentialRecord{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    cred.ExpiresAt.UnixMilli(),
		UserID:       accountID(cred.AccountID),
	}
}

func (r credentialRecord) credential() *types.Credential {
	return &types.Credential{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    time.UnixMilli(r.ExpiresAt),
		AccountID:    string(r.UserID),
	}
}

// FileCredentialStore keeps the credential in a single JSON file.
type FileCredentialStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileCredentialStore creates a store backed by the file at path.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// Path returns the file path used by this store.
func (s *FileCredentialStore) Path() string {
	return s.path
}

// Load reads the credential. Returns nil if the file doesn't exist.
func (s *FileCredentialStore) Load(_ context.Context) (*types.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	var rec credentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	if rec.AccessToken == "" && rec.RefreshToken == "" {
		return nil, nil
	}
	return rec.credential(), nil
}

// Save writes the credential using atomic write (temp file + rename).
func (s *FileCredentialStore) Save(_ context.Context, cred *types.Credential) error {
	if cred == nil {
		return fmt.Errorf("save credential: nil credential")
	}
	data, err := json.MarshalIndent(toRecord(cred), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp credential file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp credential file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileCredentialStore) Close() error {
	return nil
}
