// Package session owns the in-memory authentication state and keeps it
// consistent with the token store and the transport's default credential.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/secureguard/secureguard/internal/api"
	"github.com/secureguard/secureguard/internal/logger"
	"github.com/secureguard/secureguard/internal/metrics"
	"github.com/secureguard/secureguard/internal/models"
	"github.com/secureguard/secureguard/internal/tokenstore"
)

// Status is the session state machine position
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// Reasons a session ended
const (
	ReasonLogout  = "logout"
	ReasonExpired = "expired"
)

// Fallback messages when the backend gives no detail
const (
	MsgLoginFailed        = "Login failed"
	MsgRegistrationFailed = "Registration failed"
)

// Error is a failed session operation with a message fit for display
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Navigator sends the user back to the login entry point
type Navigator interface {
	NavigateToLogin(reason string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(reason string)

// NavigateToLogin calls f
func (f NavigatorFunc) NavigateToLogin(reason string) { f(reason) }

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger.With().Str("component", "session").Logger() }
}

// WithNavigator sets where forced expiry sends the user
func WithNavigator(n Navigator) Option {
	return func(m *Manager) { m.navigator = n }
}

// WithMetrics sets the metrics sink
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager is the single source of truth for the session. State changes happen
// under mu; network calls never run while mu is held.
type Manager struct {
	client    *api.Client
	store     *tokenstore.Store
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	navigator Navigator

	mu       sync.Mutex
	status   Status
	user     *models.UserProfile
	tokens   models.TokenPair
	pending  int
	reason   string
	version  uint64
	loginSeq uint64
	// epoch moves on logout and forced expiry; operations started in an older
	// epoch don't apply their result.
	epoch uint64

	subscribers map[int]chan Snapshot
	nextSubID   int
}

// New creates a manager and installs the transport hooks on client
func New(client *api.Client, store *tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		client:      client,
		store:       store,
		logger:      zerolog.Nop(),
		status:      StatusUninitialized,
		subscribers: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.Default()
	}
	if m.navigator == nil {
		m.navigator = NavigatorFunc(func(string) {})
	}

	client.Transport().SetHooks(api.Hooks{
		TokenRefreshed: m.onTokenRefreshed,
		SessionExpired: m.onSessionExpired,
	})

	return m
}

// Init rehydrates the session from the token store. Calling it again is a no-op.
func (m *Manager) Init(ctx context.Context) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusUninitialized {
		return m.snapshotLocked()
	}

	m.setStatusLocked(StatusLoading)

	stored, ok := m.store.Load()
	if !ok {
		// A partial or corrupt leftover must not linger
		m.store.Clear()
		m.client.Transport().ClearAuthToken()
		m.setStatusLocked(StatusUnauthenticated)
		m.logger.Debug().Msg("No stored session")
		return m.snapshotLocked()
	}

	m.user = stored.User
	m.tokens = stored.Tokens
	m.client.Transport().SetAuthToken(stored.Tokens.AccessToken)
	m.setStatusLocked(StatusAuthenticated)

	m.logger.Info().
		Str("user_id", stored.User.ID).
		Str("role", stored.User.Role).
		Msg("Session restored")

	return m.snapshotLocked()
}

// Login authenticates and, if this call is still current when it resolves,
// replaces the session with the result. A failed login leaves any existing
// session in place.
func (m *Manager) Login(ctx context.Context, email, password string) (*models.UserProfile, error) {
	m.mu.Lock()
	m.loginSeq++
	seq := m.loginSeq
	epoch := m.epoch
	m.beginPendingLocked()
	m.mu.Unlock()

	resp, err := m.client.Login(ctx, models.Credentials{Username: email, Password: password})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.endPendingLocked()

	if err != nil {
		m.metrics.ObserveLogin(false)
		m.logger.Warn().Err(err).Uint64("login_seq", seq).Msg("Login failed")
		m.publishLocked()
		return nil, &Error{Message: api.Message(err, MsgLoginFailed), Err: err}
	}

	if epoch != m.epoch {
		m.logger.Info().Uint64("login_seq", seq).Msg("Discarding login that resolved after the session ended")
		m.publishLocked()
		return nil, &Error{Message: MsgLoginFailed, Err: errSuperseded}
	}

	m.user = resp.User.Clone()
	m.tokens = resp.Tokens()
	m.reason = ""
	m.store.Save(m.tokens, m.user)
	m.client.Transport().SetAuthToken(m.tokens.AccessToken)
	m.setStatusLocked(StatusAuthenticated)
	m.metrics.ObserveLogin(true)

	m.logger.Info().
		Uint64("login_seq", seq).
		Str("user_id", m.user.ID).
		Str("role", m.user.Role).
		Str("token", logger.Fingerprint(m.tokens.AccessToken)).
		Msg("Logged in")

	return m.user.Clone(), nil
}

var errSuperseded = errors.New("session ended while login was in flight")

// Register creates an account. It never authenticates the caller.
func (m *Manager) Register(ctx context.Context, data models.RegisterRequest) (*models.UserProfile, error) {
	m.mu.Lock()
	m.beginPendingLocked()
	m.mu.Unlock()

	user, err := m.client.Register(ctx, data)

	m.mu.Lock()
	m.endPendingLocked()
	m.publishLocked()
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn().Err(err).Msg("Registration failed")
		return nil, &Error{Message: api.Message(err, MsgRegistrationFailed), Err: err}
	}

	m.logger.Info().Str("user_id", user.ID).Msg("Account registered")
	return user, nil
}

// Logout ends the session. The server call is best-effort; local state is
// always cleared.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.client.Logout(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Server logout failed, clearing local session anyway")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	wasAuthenticated := m.status == StatusAuthenticated
	m.endSessionLocked(ReasonLogout)
	m.store.Clear()
	m.client.Transport().ClearAuthToken()

	if wasAuthenticated {
		m.metrics.ObserveSessionEnded(ReasonLogout)
	}
	m.logger.Info().Msg("Logged out")
}

// HasRole reports whether the current user's role is exactly role
func (m *Manager) HasRole(role string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil && m.user.Role == role
}

// HasPermission reports whether the current user carries permission
func (m *Manager) HasPermission(permission string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil && m.user.HasPermission(permission)
}

// User returns a copy of the current user, or nil
func (m *Manager) User() *models.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user.Clone()
}

// Status returns the current state
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Client returns the API client the manager talks through
func (m *Manager) Client() *api.Client {
	return m.client
}

// CurrentProfile fetches the authenticated user's profile from the backend.
// The session's own copy is not replaced.
func (m *Manager) CurrentProfile(ctx context.Context) (*models.UserProfile, error) {
	user, err := m.client.CurrentUser(ctx)
	if err != nil {
		return nil, &Error{Message: api.Message(err, "Failed to load profile"), Err: err}
	}
	return user, nil
}

func (m *Manager) onTokenRefreshed(refreshToken, accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusAuthenticated || m.tokens.RefreshToken != refreshToken {
		return
	}
	m.tokens.AccessToken = accessToken
	m.logger.Debug().Msg("Access token refreshed")
}

// onSessionExpired runs after the transport failed to refresh and already
// cleared the token store and default credential.
func (m *Manager) onSessionExpired() {
	m.mu.Lock()
	wasAuthenticated := m.status == StatusAuthenticated
	m.endSessionLocked(ReasonExpired)
	m.mu.Unlock()

	if wasAuthenticated {
		m.metrics.ObserveSessionEnded(ReasonExpired)
	}
	m.logger.Warn().Msg("Session expired")
	m.navigator.NavigateToLogin(ReasonExpired)
}

func (m *Manager) endSessionLocked(reason string) {
	m.epoch++
	m.user = nil
	m.tokens = models.TokenPair{}
	m.reason = reason
	if m.pending > 0 {
		m.setStatusLocked(StatusLoading)
	} else {
		m.setStatusLocked(StatusUnauthenticated)
	}
}

func (m *Manager) beginPendingLocked() {
	m.pending++
	if m.status == StatusAuthenticated {
		m.publishLocked()
		return
	}
	m.setStatusLocked(StatusLoading)
}

// endPendingLocked settles the loading flag; the caller publishes
func (m *Manager) endPendingLocked() {
	m.pending--
	if m.status == StatusAuthenticated {
		return
	}
	if m.pending > 0 {
		m.status = StatusLoading
	} else {
		m.status = StatusUnauthenticated
	}
}

func (m *Manager) setStatusLocked(status Status) {
	m.status = status
	m.publishLocked()
}
