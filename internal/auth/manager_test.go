package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/mlbot/internal/state"
	"github.com/user/mlbot/internal/types"
)

type fakeTokenClient struct {
	refreshCalls  atomic.Int32
	exchangeCalls atomic.Int32
	release       chan struct{}
	refreshResp   *TokenResponse
	refreshErr    error
	exchangeResp  *TokenResponse
	lastRefresh   atomic.Value
}

func (f *fakeTokenClient) AuthCodeURL() string {
	return "https://auth.example/authorization?client_id=app"
}

func (f *fakeTokenClient) Exchange(_ context.Context, code string) (*TokenResponse, error) {
	f.exchangeCalls.Add(1)
	if f.exchangeResp == nil {
		return nil, errors.New("invalid_grant")
	}
	return f.exchangeResp, nil
}

func (f *fakeTokenClient) Refresh(_ context.Context, refreshToken string) (*TokenResponse, error) {
	f.refreshCalls.Add(1)
	f.lastRefresh.Store(refreshToken)
	if f.release != nil {
		<-f.release
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	resp := *f.refreshResp
	return &resp, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, cred *types.Credential, client *fakeTokenClient) (*Manager, *state.MemoryCredentialStore) {
	t.Helper()
	store := state.NewMemoryCredentialStore()
	if cred != nil {
		if err := store.Save(context.Background(), cred); err != nil {
			t.Fatal(err)
		}
	}
	m := NewManager(store, client, ManagerConfig{RequestTimeout: 5 * time.Second})
	m.now = func() time.Time { return testNow }
	return m, store
}

func TestEnsureValid_NoCredential(t *testing.T) {
	client := &fakeTokenClient{}
	m, _ := newTestManager(t, nil, client)

	_, err := m.EnsureValid(context.Background())
	if !errors.Is(err, types.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if client.refreshCalls.Load() != 0 {
		t.Error("expected no refresh without a credential")
	}
}

func TestEnsureValid_FreshCredentialNoNetwork(t *testing.T) {
	client := &fakeTokenClient{}
	stored := &types.Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Add(time.Hour),
		AccountID:    "42",
	}
	m, _ := newTestManager(t, stored, client)

	got, err := m.EnsureValid(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if *got != *stored {
		t.Errorf("expected stored credential unchanged, got %+v", got)
	}
	if client.refreshCalls.Load() != 0 {
		t.Errorf("expected 0 refresh calls, got %d", client.refreshCalls.Load())
	}
}

func TestEnsureValid_RefreshesInsideSkew(t *testing.T) {
	client := &fakeTokenClient{refreshResp: &TokenResponse{
		AccessToken: "access-2",
		Expiry:      testNow.Add(6 * time.Hour),
	}}
	m, store := newTestManager(t, &types.Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Add(30 * time.Second),
		AccountID:    "42",
	}, client)

	got, err := m.EnsureValid(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "access-2" {
		t.Errorf("expected refreshed token, got %s", got.AccessToken)
	}
	if got.RefreshToken != "refresh-1" {
		t.Errorf("expected previous refresh token kept, got %s", got.RefreshToken)
	}
	if got.AccountID != "42" {
		t.Errorf("expected account id preserved, got %s", got.AccountID)
	}
	if client.lastRefresh.Load() != "refresh-1" {
		t.Errorf("expected refresh with refresh-1, got %v", client.lastRefresh.Load())
	}

	persisted, _ := store.Load(context.Background())
	if persisted.AccessToken != "access-2" || persisted.AccountID != "42" {
		t.Errorf("expected refreshed credential persisted, got %+v", persisted)
	}
}

func TestEnsureValid_DefaultLifetime(t *testing.T) {
	client := &fakeTokenClient{refreshResp: &TokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2", UserID: "42"}}
	m, _ := newTestManager(t, &types.Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Add(-time.Hour),
		AccountID:    "42",
	}, client)

	got, err := m.EnsureValid(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !got.ExpiresAt.Equal(testNow.Add(DefaultLifetime)) {
		t.Errorf("expected default lifetime expiry, got %v", got.ExpiresAt)
	}
	if got.RefreshToken != "refresh-2" {
		t.Errorf("expected rotated refresh token, got %s", got.RefreshToken)
	}
}

func TestEnsureValid_ConcurrentSingleRefresh(t *testing.T) {
	client := &fakeTokenClient{
		release: make(chan struct{}),
		refreshResp: &TokenResponse{
			AccessToken: "access-2",
			Expiry:      testNow.Add(6 * time.Hour),
		},
	}
	m, _ := newTestManager(t, &types.Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Add(-time.Minute),
		AccountID:    "42",
	}, client)

	const callers = 10
	results := make([]*types.Credential, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.EnsureValid(context.Background())
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(client.release)
	wg.Wait()

	if n := client.refreshCalls.Load(); n != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", n)
	}
	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if *results[i] != *results[0] {
			t.Errorf("caller %d saw %+v, caller 0 saw %+v", i, results[i], results[0])
		}
	}
	if results[0].AccessToken != "access-2" {
		t.Errorf("expected access-2, got %s", results[0].AccessToken)
	}
}

func TestEnsureValid_ConcurrentFailedRefresh(t *testing.T) {
	client := &fakeTokenClient{
		release:    make(chan struct{}),
		refreshErr: errors.New("invalid_grant"),
	}
	stored := &types.Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Add(-time.Minute),
		AccountID:    "42",
	}
	m, store := newTestManager(t, stored, client)

	const callers = 10
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.EnsureValid(context.Background())
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(client.release)
	wg.Wait()

	if n := client.refreshCalls.Load(); n != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", n)
	}
	for i, err := range errs {
		if !errors.Is(err, types.ErrRefreshFailed) {
			t.Errorf("caller %d: expected ErrRefreshFailed, got %v", i, err)
		}
	}

	persisted, _ := store.Load(context.Background())
	if *persisted != *stored {
		t.Errorf("expected stored credential untouched, got %+v", persisted)
	}
}

func TestEnsureValid_CallerCancelDoesNotAbortFlight(t *testing.T) {
	client := &fakeTokenClient{
		release:     make(chan struct{}),
		refreshResp: &TokenResponse{AccessToken: "access-2", Expiry: testNow.Add(time.Hour)},
	}
	m, store := newTestManager(t, &types.Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Add(-time.Minute),
	}, client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.EnsureValid(ctx)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled caller, got %v", err)
	}

	close(client.release)
	got, err := m.EnsureValid(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "access-2" {
		t.Errorf("expected flight to complete for later callers, got %s", got.AccessToken)
	}
	if n := client.refreshCalls.Load(); n != 1 {
		t.Errorf("expected 1 refresh call, got %d", n)
	}
	persisted, _ := store.Load(context.Background())
	if persisted.AccessToken != "access-2" {
		t.Errorf("expected persisted refresh, got %s", persisted.AccessToken)
	}
}

func TestRefresh_Forced(t *testing.T) {
	client := &fakeTokenClient{refreshResp: &TokenResponse{AccessToken: "access-2", Expiry: testNow.Add(time.Hour)}}
	m, _ := newTestManager(t, &types.Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Add(time.Hour),
	}, client)

	got, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "access-2" || client.refreshCalls.Load() != 1 {
		t.Errorf("expected forced refresh, got %s after %d calls", got.AccessToken, client.refreshCalls.Load())
	}
}

func TestAuthorize(t *testing.T) {
	client := &fakeTokenClient{exchangeResp: &TokenResponse{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       testNow.Add(6 * time.Hour),
		UserID:       "42",
	}}
	m, store := newTestManager(t, nil, client)

	cred, err := m.Authorize(context.Background(), "TG-code")
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccountID != "42" {
		t.Errorf("expected account 42, got %s", cred.AccountID)
	}
	persisted, _ := store.Load(context.Background())
	if persisted == nil || persisted.AccessToken != "access-1" {
		t.Errorf("expected credential persisted, got %+v", persisted)
	}

	current, err := m.Current(context.Background())
	if err != nil || current.AccessToken != "access-1" {
		t.Errorf("expected current credential, got %+v, %v", current, err)
	}
}

func TestAuthorize_ExchangeFailure(t *testing.T) {
	client := &fakeTokenClient{}
	m, store := newTestManager(t, nil, client)

	if _, err := m.Authorize(context.Background(), "bad"); err == nil {
		t.Fatal("expected exchange error")
	}
	if persisted, _ := store.Load(context.Background()); persisted != nil {
		t.Errorf("expected nothing persisted, got %+v", persisted)
	}
}
