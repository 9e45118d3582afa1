// Package tokenstore persists the session (access token, refresh token and the
// cached user profile) as one unit on top of a storage backend.
package tokenstore

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/secureguard/secureguard/internal/models"
	"github.com/secureguard/secureguard/internal/storage"
)

// Storage keys, matching the browser frontend's localStorage keys
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// Stored is a complete persisted session
type Stored struct {
	Tokens models.TokenPair
	User   *models.UserProfile
}

// Store is the only writer of persisted session state. Save and Clear are the
// sole entry points that touch more than one key, and they hold mu so no reader
// of this Store observes tokens without a user.
type Store struct {
	backend storage.Backend
	logger  zerolog.Logger
	mu      sync.Mutex
}

// New creates a store on top of backend
func New(backend storage.Backend, logger zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger.With().Str("component", "tokenstore").Logger(),
	}
}

// Save persists tokens and user. It is best-effort: a failed write is logged
// and nothing is returned to the caller. Every key is removed before writing,
// so a failure leaves no session stored rather than the previous one.
func (s *Store) Save(tokens models.TokenPair, user *models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tokens.AccessToken == "" || user == nil {
		s.logger.Warn().Msg("Refusing to persist incomplete session")
		return
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to serialize user profile")
		s.clearLocked()
		return
	}

	s.clearLocked()

	// Access token goes last: Load treats a missing access token as no session
	writes := []struct{ key, value string }{
		{KeyRefreshToken, tokens.RefreshToken},
		{KeyUser, string(userJSON)},
		{KeyAccessToken, tokens.AccessToken},
	}

	for _, w := range writes {
		if err := s.backend.Set(w.key, w.value); err != nil {
			s.logger.Error().Err(err).Str("key", w.key).Msg("Failed to persist session, clearing it")
			s.clearLocked()
			return
		}
	}

	s.logger.Debug().Str("user_id", user.ID).Msg("Session persisted")
}

// Load returns the persisted session, or false if any part is missing or the
// stored user cannot be parsed.
func (s *Store) Load() (*Stored, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accessToken, ok := s.get(KeyAccessToken)
	if !ok || accessToken == "" {
		return nil, false
	}

	refreshToken, _ := s.get(KeyRefreshToken)

	userJSON, ok := s.get(KeyUser)
	if !ok {
		return nil, false
	}

	var user models.UserProfile
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		s.logger.Warn().Err(err).Msg("Stored user profile is corrupt")
		return nil, false
	}
	if user.Role == "" {
		s.logger.Warn().Str("user_id", user.ID).Msg("Stored user profile has no role")
		return nil, false
	}

	return &Stored{
		Tokens: models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken},
		User:   &user,
	}, true
}

// Clear removes every session key. Safe to call when nothing is stored.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) clearLocked() {
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyUser} {
		if err := s.backend.Remove(key); err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("Failed to clear session key")
		}
	}
}

// AccessToken returns the persisted access token, if any
func (s *Store) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.get(KeyAccessToken)
	return token, ok && token != ""
}

// RefreshToken returns the persisted refresh token, if any
func (s *Store) RefreshToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.get(KeyRefreshToken)
	return token, ok && token != ""
}

// UpdateAccessToken replaces the access token after a refresh. It only writes
// while the session that owns refreshToken is still stored, so a refresh
// racing a logout or a newer login can't resurrect or overwrite anything.
func (s *Store) UpdateAccessToken(refreshToken, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.get(KeyUser); !ok {
		s.logger.Debug().Msg("No stored session, dropping refreshed access token")
		return
	}
	if stored, _ := s.get(KeyRefreshToken); stored != refreshToken {
		s.logger.Debug().Msg("Stored session changed during refresh, dropping refreshed access token")
		return
	}

	if err := s.backend.Set(KeyAccessToken, token); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist refreshed access token")
	}
}

func (s *Store) get(key string) (string, bool) {
	value, err := s.backend.Get(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to read session key")
		}
		return "", false
	}
	return value, true
}
