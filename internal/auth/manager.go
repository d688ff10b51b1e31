package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/user/mlbot/internal/telemetry"
	"github.com/user/mlbot/internal/types"
)

const (
	// DefaultSkew is how long before expiry a token is treated as expired.
	DefaultSkew = 60 * time.Second
	// DefaultLifetime applies when the token endpoint omits expires_in.
	DefaultLifetime = 6 * time.Hour

	refreshKey = "refresh"
)

// ManagerConfig tunes a Manager.
type ManagerConfig struct {
	Skew           time.Duration
	RequestTimeout time.Duration
	Metrics        *telemetry.Metrics
}

// Manager hands out valid credentials, refreshing them at most once at a time.
type Manager struct {
	store   types.CredentialStore
	client  TokenClient
	skew    time.Duration
	timeout time.Duration
	metrics *telemetry.Metrics
	now     func() time.Time

	group singleflight.Group
	// mu orders credential writes between Authorize and refresh flights.
	mu sync.Mutex
}

// NewManager creates a Manager over store and client.
func NewManager(store types.CredentialStore, client TokenClient, cfg ManagerConfig) *Manager {
	skew := cfg.Skew
	if skew <= 0 {
		skew = DefaultSkew
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{
		store:   store,
		client:  client,
		skew:    skew,
		timeout: timeout,
		metrics: cfg.Metrics,
		now:     time.Now,
	}
}

// AuthCodeURL returns the authorization link for the operator.
func (m *Manager) AuthCodeURL() string {
	return m.client.AuthCodeURL()
}

// Current returns the stored credential without refreshing it.
// It returns types.ErrAuthRequired when nothing is stored.
func (m *Manager) Current(ctx context.Context) (*types.Credential, error) {
	cred, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return nil, types.ErrAuthRequired
	}
	return cred, nil
}

// EnsureValid returns a credential usable right now. A credential inside
// the skew window is refreshed first; concurrent callers share one refresh.
func (m *Manager) EnsureValid(ctx context.Context) (*types.Credential, error) {
	cred, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	if cred.ValidAt(m.now(), m.skew) {
		return cred, nil
	}
	return m.refresh(ctx, false)
}

// Refresh forces a refresh through the same single flight as EnsureValid.
func (m *Manager) Refresh(ctx context.Context) (*types.Credential, error) {
	if _, err := m.Current(ctx); err != nil {
		return nil, err
	}
	return m.refresh(ctx, true)
}

// Authorize exchanges an authorization code and persists the resulting
// credential, replacing any previous one.
func (m *Manager) Authorize(ctx context.Context, code string) (*types.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.client.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("exchange authorization code: empty access token")
	}

	cred := &types.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    m.expiry(resp.Expiry),
		AccountID:    resp.UserID,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	slog.Info("marketplace account linked", "account_id", cred.AccountID, "expires_at", cred.ExpiresAt)
	return cred, nil
}

func (m *Manager) refresh(ctx context.Context, force bool) (*types.Credential, error) {
	ch := m.group.DoChan(refreshKey, func() (any, error) {
		// Detached so one caller's cancellation cannot fail the other waiters.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.doRefresh(flightCtx, force)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cred := *res.Val.(*types.Credential)
		return &cred, nil
	}
}

func (m *Manager) doRefresh(ctx context.Context, force bool) (*types.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another flight may have finished just before this one started.
	cred, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return nil, types.ErrAuthRequired
	}
	if !force && cred.ValidAt(m.now(), m.skew) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		m.metrics.RecordRefresh(ctx, "error")
		return nil, fmt.Errorf("%w: no refresh token stored", types.ErrRefreshFailed)
	}

	slog.Info("refreshing marketplace token", "account_id", cred.AccountID, "expires_at", cred.ExpiresAt)
	resp, err := m.client.Refresh(ctx, cred.RefreshToken)
	if err == nil && resp.AccessToken == "" {
		err = fmt.Errorf("empty access token")
	}
	if err != nil {
		m.metrics.RecordRefresh(ctx, "error")
		slog.Error("marketplace token refresh failed", "error", err)
		return nil, fmt.Errorf("%w: %v", types.ErrRefreshFailed, err)
	}

	next := &types.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    m.expiry(resp.Expiry),
		AccountID:    resp.UserID,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	if next.AccountID == "" {
		next.AccountID = cred.AccountID
	}

	if err := m.store.Save(ctx, next); err != nil {
		m.metrics.RecordRefresh(ctx, "error")
		return nil, fmt.Errorf("%w: save credential: %v", types.ErrRefreshFailed, err)
	}
	m.metrics.RecordRefresh(ctx, "ok")
	slog.Info("marketplace token refreshed", "expires_at", next.ExpiresAt)
	return next, nil
}

func (m *Manager) expiry(upstream time.Time) time.Time {
	if upstream.IsZero() {
		return m.now().Add(DefaultLifetime)
	}
	return upstream
}
