// internal/state/credential_sql.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/user/mlbot/internal/types"
)

const (
	credentialTableName    = "mlbot_credentials"
	credentialRowID        = 1
	sqlOperationTimeout    = 5 * time.Second
	sqliteConnectionParams = "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// SQLCredentialStore keeps the credential as a single row in SQLite or Postgres.
// The schema is created lazily on first use.
type SQLCredentialStore struct {
	driver string
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewSQLiteCredentialStore stores the credential in the SQLite database at path.
func NewSQLiteCredentialStore(path string) (*SQLCredentialStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite credential store: empty path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		path += sqliteConnectionParams
	}
	return &SQLCredentialStore{driver: "sqlite", dsn: path, openDB: sql.Open}, nil
}

// NewPostgresCredentialStore stores the credential in the Postgres database at dsn.
func NewPostgresCredentialStore(dsn string) (*SQLCredentialStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres credential store: empty dsn")
	}
	return &SQLCredentialStore{driver: "postgres", dsn: dsn, openDB: sql.Open}, nil
}

// Load returns the stored credential, or nil when the row does not exist.
func (s *SQLCredentialStore) Load(ctx context.Context) (*types.Credential, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	query := s.rebind(fmt.Sprintf(
		"SELECT access_token, refresh_token, expires_at, user_id FROM %s WHERE id = ?", credentialTableName))

	var rec credentialRecord
	var userID string
	err := s.db.QueryRowContext(ctx, query, credentialRowID).Scan(&rec.AccessToken, &rec.RefreshToken, &rec.ExpiresAt, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	rec.UserID = accountID(userID)
	return rec.credential(), nil
}

// Save upserts the credential row.
func (s *SQLCredentialStore) Save(ctx context.Context, cred *types.Credential) error {
	if cred == nil {
		return fmt.Errorf("save credential: nil credential")
	}
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	rec := toRecord(cred)
	query := s.rebind(fmt.Sprintf(`
		INSERT INTO %s (id, access_token, refresh_token, expires_at, user_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			user_id = excluded.user_id,
			updated_at = excluded.updated_at`, credentialTableName))

	_, err := s.db.ExecContext(ctx, query,
		credentialRowID, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt, string(rec.UserID), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLCredentialStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLCredentialStore) ensureReady(ctx context.Context) error {
	s.initOnce.Do(func() {
		db, err := s.openDB(s.driver, s.dsn)
		if err != nil {
			s.initErr = fmt.Errorf("open %s: %w", s.driver, err)
			return
		}
		if s.driver == "sqlite" {
			// A single connection keeps :memory: databases shared and avoids SQLITE_BUSY.
			db.SetMaxOpenConns(1)
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sqlOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY,
				access_token TEXT NOT NULL,
				refresh_token TEXT NOT NULL,
				expires_at BIGINT NOT NULL,
				user_id TEXT NOT NULL,
				updated_at BIGINT NOT NULL
			)`, credentialTableName)
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = fmt.Errorf("create credential table: %w", err)
			return
		}
		s.db = db
	})
	return s.initErr
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLCredentialStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
