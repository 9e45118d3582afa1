package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureguard/secureguard/internal/api"
	"github.com/secureguard/secureguard/internal/metrics"
	"github.com/secureguard/secureguard/internal/mockapi"
	"github.com/secureguard/secureguard/internal/models"
	"github.com/secureguard/secureguard/internal/storage"
	"github.com/secureguard/secureguard/internal/tokenstore"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type recordingNavigator struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNavigator) NavigateToLogin(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
}

func (n *recordingNavigator) calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.reasons...)
}

type fixture struct {
	backend *mockapi.Backend
	server  *httptest.Server
	store   *tokenstore.Store
	manager *Manager
	nav     *recordingNavigator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, srv := mockapi.Start()
	t.Cleanup(srv.Close)
	return newFixtureWith(t, backend, srv, storage.NewMemory())
}

func newFixtureWith(t *testing.T, backend *mockapi.Backend, srv *httptest.Server, backing storage.Backend) *fixture {
	t.Helper()
	store := tokenstore.New(backing, zerolog.Nop())
	client := api.New(srv.URL, store, api.WithMetrics(metrics.Discard()))
	nav := &recordingNavigator{}
	m := New(client, store, WithNavigator(nav), WithMetrics(metrics.Discard()))
	return &fixture{backend: backend, server: srv, store: store, manager: m, nav: nav}
}

// flakyBackend fails writes to one key once failKey is set
type flakyBackend struct {
	*storage.Memory
	mu      sync.Mutex
	failKey string
}

func (b *flakyBackend) failWrites(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failKey = key
}

func (b *flakyBackend) Set(key, value string) error {
	b.mu.Lock()
	fail := key == b.failKey
	b.mu.Unlock()
	if fail {
		return errors.New("write failed")
	}
	return b.Memory.Set(key, value)
}

func TestManager_LoginOverSessionWithFailedPersist(t *testing.T) {
	backend, srv := mockapi.Start()
	t.Cleanup(srv.Close)
	backing := &flakyBackend{Memory: storage.NewMemory()}
	f := newFixtureWith(t, backend, srv, backing)
	ctx := context.Background()
	f.manager.Init(ctx)

	_, err := f.manager.Login(ctx, "admin@glufer.com", "admin123")
	require.NoError(t, err)

	backing.failWrites(tokenstore.KeyUser)
	user, err := f.manager.Login(ctx, "user@glufer.com", "user123")
	require.NoError(t, err)
	assert.Equal(t, "user@glufer.com", user.Email)

	// Requests carry the new session's token, not the one left from before
	profile, err := f.manager.CurrentProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user@glufer.com", profile.Email)
	assert.Equal(t, models.RoleUser, profile.Role)

	_, ok := f.store.Load()
	assert.False(t, ok, "storage holds nothing rather than the previous session")

	// A restart must not bring the admin session back
	restarted := newFixtureWith(t, backend, srv, backing)
	assert.Equal(t, StatusUnauthenticated, restarted.manager.Init(ctx).Status)
}

func TestManager_LoginScenario(t *testing.T) {
	var mu sync.Mutex
	var lastAuth string
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok1","refresh_token":"ref1","token_type":"bearer","expires_in":1800,
			"user":{"id":"u1","email":"user@glufer.com","first_name":"Regular","last_name":"User","role":"user","is_active":true,"is_verified":true}}`))
	})
	mux.HandleFunc(api.PathCurrentUser, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		lastAuth = r.Header.Get("Authorization")
		mu.Unlock()
		w.Write([]byte(`{"id":"u1","email":"user@glufer.com","role":"user"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := newFixtureWith(t, nil, srv, storage.NewMemory())
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	user, err := m.Login(ctx, "user@glufer.com", "user123")
	require.NoError(t, err)
	assert.Equal(t, "user@glufer.com", user.Email)

	assert.Equal(t, StatusAuthenticated, m.Status())
	assert.True(t, m.HasRole("user"))
	assert.False(t, m.HasRole("admin"))
	assert.False(t, m.HasPermission("booking:read"), "no permissions in response")

	stored, ok := f.store.Load()
	require.True(t, ok)
	assert.Equal(t, models.TokenPair{AccessToken: "tok1", RefreshToken: "ref1"}, stored.Tokens)
	assert.Equal(t, "u1", stored.User.ID)

	_, err = m.CurrentProfile(ctx)
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, "Bearer tok1", lastAuth)
	mu.Unlock()

	snap := m.Snapshot()
	assert.True(t, snap.Authenticated())
	assert.False(t, snap.Pending)
}

func TestManager_LogoutClearsEverything(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	_, err := m.Login(ctx, "admin@glufer.com", "admin123")
	require.NoError(t, err)

	m.Logout(ctx)

	assert.Equal(t, StatusUnauthenticated, m.Status())
	assert.Nil(t, m.User())
	assert.False(t, m.HasRole(models.RoleAdmin))
	_, ok := f.store.Load()
	assert.False(t, ok)
	assert.Equal(t, ReasonLogout, m.Snapshot().Reason)
	assert.Equal(t, 1, f.backend.Calls(api.PathLogout))

	// Next call goes out without a credential
	_, err = m.CurrentProfile(ctx)
	require.Error(t, err)
	assert.Equal(t, "Not authenticated", err.Error())
}

func TestManager_LogoutSucceedsWhenServerUnreachable(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	_, err := m.Login(ctx, "user@glufer.com", "user123")
	require.NoError(t, err)

	f.server.Close()
	m.Logout(ctx)

	assert.Equal(t, StatusUnauthenticated, m.Status())
	_, ok := f.store.Load()
	assert.False(t, ok)
}

func TestManager_FailedLoginKeepsExistingSession(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	_, err := m.Login(ctx, "bouncer@glufer.com", "bouncer123")
	require.NoError(t, err)

	_, err = m.Login(ctx, "admin@glufer.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())

	assert.Equal(t, StatusAuthenticated, m.Status())
	assert.True(t, m.HasRole(models.RoleBouncer))
	stored, ok := f.store.Load()
	require.True(t, ok)
	assert.Equal(t, "bouncer@glufer.com", stored.User.Email)
}

func TestManager_FailedLoginWithoutSession(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	_, err := m.Login(ctx, "", "")
	require.Error(t, err)
	assert.Equal(t, StatusUnauthenticated, m.Status())
	_, ok := f.store.Load()
	assert.False(t, ok)
}

func TestManager_LoginWithoutRoleIsRejected(t *testing.T) {
	f := newFixture(t)
	f.backend.SetRole("user@glufer.com", "")
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	_, err := m.Login(ctx, "user@glufer.com", "user123")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidResponse)
	assert.Equal(t, MsgLoginFailed, err.Error())
	assert.Equal(t, StatusUnauthenticated, m.Status())
}

func TestManager_InitRehydrates(t *testing.T) {
	backend, srv := mockapi.Start()
	defer srv.Close()
	backing := storage.NewMemory()
	ctx := context.Background()

	first := newFixtureWith(t, backend, srv, backing)
	first.manager.Init(ctx)
	_, err := first.manager.Login(ctx, "admin@glufer.com", "admin123")
	require.NoError(t, err)

	// Same storage, new process
	second := newFixtureWith(t, backend, srv, backing)
	assert.Equal(t, StatusUninitialized, second.manager.Status())

	snap := second.manager.Init(ctx)
	assert.Equal(t, StatusAuthenticated, snap.Status)
	assert.True(t, second.manager.HasRole(models.RoleAdmin))
	assert.True(t, second.manager.HasPermission("admin:system"))

	profile, err := second.manager.CurrentProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin@glufer.com", profile.Email)
}

func TestManager_InitWithCorruptStore(t *testing.T) {
	backend, srv := mockapi.Start()
	defer srv.Close()
	backing := storage.NewMemory()
	require.NoError(t, backing.Set(tokenstore.KeyAccessToken, "tok1"))
	require.NoError(t, backing.Set(tokenstore.KeyRefreshToken, "ref1"))
	require.NoError(t, backing.Set(tokenstore.KeyUser, "{not json"))

	f := newFixtureWith(t, backend, srv, backing)
	snap := f.manager.Init(context.Background())

	assert.Equal(t, StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.User)
	assert.Equal(t, 0, backing.Len(), "leftover keys are cleared")
}

func TestManager_InitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.manager.Init(ctx)
	_, err := f.manager.Login(ctx, "user@glufer.com", "user123")
	require.NoError(t, err)

	snap := f.manager.Init(ctx)
	assert.Equal(t, StatusAuthenticated, snap.Status)
}

func TestManager_RegisterDoesNotAuthenticate(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	user, err := m.Register(ctx, models.RegisterRequest{
		Email: "new@glufer.com", Password: "secret1", FirstName: "New", LastName: "Person",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, StatusUnauthenticated, m.Status())
	_, ok := f.store.Load()
	assert.False(t, ok)

	_, err = m.Register(ctx, models.RegisterRequest{
		Email: "new@glufer.com", Password: "secret1", FirstName: "New", LastName: "Person",
	})
	require.Error(t, err)
	assert.Equal(t, "Email already registered", err.Error())

	_, err = m.Register(ctx, models.RegisterRequest{})
	require.Error(t, err)
	assert.True(t, api.IsValidation(err))
}

func TestManager_RefreshIsTransparent(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	_, err := m.Login(ctx, "user@glufer.com", "user123")
	require.NoError(t, err)
	before, _ := f.store.AccessToken()

	f.backend.ExpireAccessTokens()
	_, err = m.CurrentProfile(ctx)
	require.NoError(t, err)

	after, _ := f.store.AccessToken()
	assert.NotEqual(t, before, after)
	assert.Equal(t, StatusAuthenticated, m.Status())

	m.mu.Lock()
	assert.Equal(t, after, m.tokens.AccessToken)
	m.mu.Unlock()
}

func TestManager_RefreshFailureEndsSession(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	_, err := m.Login(ctx, "user@glufer.com", "user123")
	require.NoError(t, err)

	f.backend.ExpireAccessTokens()
	f.backend.FailRefresh(true)

	_, err = m.CurrentProfile(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrSessionExpired)

	snap := m.Snapshot()
	assert.Equal(t, StatusUnauthenticated, snap.Status)
	assert.Equal(t, ReasonExpired, snap.Reason)
	assert.Nil(t, snap.User)
	_, ok := f.store.Load()
	assert.False(t, ok)
	assert.Equal(t, []string{ReasonExpired}, f.nav.calls())
}

func TestManager_LogoutDuringInFlightLogin(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.OnLogin(func(email string) {
		close(entered)
		<-release
	})

	done := make(chan error, 1)
	go func() {
		_, err := m.Login(ctx, "admin@glufer.com", "admin123")
		done <- err
	}()

	<-entered
	assert.Equal(t, StatusLoading, m.Status())
	assert.True(t, m.Snapshot().Pending)

	m.Logout(ctx)
	close(release)

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, errSuperseded)

	assert.Equal(t, StatusUnauthenticated, m.Status())
	assert.Nil(t, m.User())
	_, ok := f.store.Load()
	assert.False(t, ok)
}

func TestManager_LastResolvedLoginWins(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	adminEntered := make(chan struct{})
	releaseAdmin := make(chan struct{})
	f.backend.OnLogin(func(email string) {
		if email == "admin@glufer.com" {
			close(adminEntered)
			<-releaseAdmin
		}
	})

	adminDone := make(chan error, 1)
	go func() {
		_, err := m.Login(ctx, "admin@glufer.com", "admin123")
		adminDone <- err
	}()
	<-adminEntered

	// Started second, resolves first
	_, err := m.Login(ctx, "user@glufer.com", "user123")
	require.NoError(t, err)
	assert.True(t, m.HasRole(models.RoleUser))
	assert.True(t, m.Snapshot().Pending, "admin login still in flight")
	assert.Equal(t, StatusAuthenticated, m.Status())

	close(releaseAdmin)
	require.NoError(t, <-adminDone)

	assert.True(t, m.HasRole(models.RoleAdmin))
	assert.False(t, m.HasRole(models.RoleUser))
	stored, ok := f.store.Load()
	require.True(t, ok)
	assert.Equal(t, "admin@glufer.com", stored.User.Email)
	assert.Equal(t, models.RoleAdmin, stored.User.Role)
	assert.False(t, m.Snapshot().Pending)
}

func TestManager_PendingLoginKeepsAuthenticatedStatus(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()
	m.Init(ctx)

	_, err := m.Login(ctx, "bouncer@glufer.com", "bouncer123")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.OnLogin(func(string) {
		close(entered)
		<-release
	})

	done := make(chan error, 1)
	go func() {
		_, err := m.Login(ctx, "user@glufer.com", "wrong")
		done <- err
	}()
	<-entered

	snap := m.Snapshot()
	assert.Equal(t, StatusAuthenticated, snap.Status)
	assert.True(t, snap.Pending)

	close(release)
	require.Error(t, <-done)
	assert.True(t, m.HasRole(models.RoleBouncer))
}

func TestManager_Subscribe(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()

	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	initial := <-updates
	assert.Equal(t, StatusUninitialized, initial.Status)

	m.Init(ctx)
	_, err := m.Login(ctx, "user@glufer.com", "user123")
	require.NoError(t, err)

	// Coalesced: the buffered value is the latest state
	latest := <-updates
	assert.Equal(t, StatusAuthenticated, latest.Status)
	require.NotNil(t, latest.User)
	assert.Equal(t, "user@glufer.com", latest.User.Email)

	m.Logout(ctx)
	latest = <-updates
	assert.Equal(t, StatusUnauthenticated, latest.Status)

	unsubscribe()
	_, open := <-updates
	assert.False(t, open)
	unsubscribe()
}

func TestSnapshot_Predicates(t *testing.T) {
	snap := Snapshot{Status: StatusAuthenticated, User: &models.UserProfile{Role: models.RoleBouncer}}
	assert.True(t, snap.Authenticated())
	assert.False(t, snap.HasRole(models.RoleAdmin))
	assert.True(t, snap.HasRole(models.RoleBouncer))
	assert.False(t, snap.HasRole("Bouncer"))
	assert.False(t, snap.HasPermission("bouncer:read"))

	assert.True(t, Snapshot{Status: StatusLoading}.Loading())
	assert.True(t, Snapshot{Status: StatusUninitialized}.Loading())
	assert.False(t, Snapshot{Status: StatusUnauthenticated}.HasPermission("x"))
}
