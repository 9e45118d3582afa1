package tokenstore

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureguard/secureguard/internal/models"
	"github.com/secureguard/secureguard/internal/storage"
)

// failingBackend fails every Set for one key
type failingBackend struct {
	*storage.Memory
	failKey string
}

func (f *failingBackend) Set(key, value string) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.Memory.Set(key, value)
}

func testUser(role string) *models.UserProfile {
	return &models.UserProfile{
		ID:          "user-123",
		Email:       "user@glufer.com",
		FirstName:   "Regular",
		LastName:    "User",
		Role:        role,
		Permissions: []string{"booking:read", "booking:create"},
		IsActive:    true,
		IsVerified:  true,
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		tokens models.TokenPair
		user   *models.UserProfile
	}{
		{name: "user", tokens: models.TokenPair{AccessToken: "tok1", RefreshToken: "ref1"}, user: testUser(models.RoleUser)},
		{name: "admin without permissions", tokens: models.TokenPair{AccessToken: "a", RefreshToken: "r"}, user: &models.UserProfile{ID: "1", Role: models.RoleAdmin}},
		{name: "no refresh token", tokens: models.TokenPair{AccessToken: "only-access"}, user: testUser(models.RoleBouncer)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := New(storage.NewMemory(), zerolog.Nop())

			store.Save(tt.tokens, tt.user)

			loaded, ok := store.Load()
			require.True(t, ok)
			assert.Equal(t, tt.tokens, loaded.Tokens)
			assert.Equal(t, tt.user, loaded.User)
		})
	}
}

func TestStore_ClearThenLoadIsAbsent(t *testing.T) {
	backend := storage.NewMemory()
	store := New(backend, zerolog.Nop())

	// Clearing an empty store is fine
	store.Clear()
	_, ok := store.Load()
	assert.False(t, ok)

	store.Save(models.TokenPair{AccessToken: "tok1", RefreshToken: "ref1"}, testUser(models.RoleUser))
	store.Clear()
	store.Clear()

	_, ok = store.Load()
	assert.False(t, ok)
	assert.Equal(t, 0, backend.Len())
}

func TestStore_LoadRejectsIncompleteOrCorruptState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *storage.Memory)
	}{
		{
			name: "token without user",
			setup: func(b *storage.Memory) {
				b.Set(KeyAccessToken, "tok1")
				b.Set(KeyRefreshToken, "ref1")
			},
		},
		{
			name: "user without token",
			setup: func(b *storage.Memory) {
				b.Set(KeyUser, `{"id":"1","role":"user"}`)
			},
		},
		{
			name: "corrupt user",
			setup: func(b *storage.Memory) {
				b.Set(KeyAccessToken, "tok1")
				b.Set(KeyUser, `{"id":`)
			},
		},
		{
			name: "user without role",
			setup: func(b *storage.Memory) {
				b.Set(KeyAccessToken, "tok1")
				b.Set(KeyUser, `{"id":"1","email":"admin@glufer.com"}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := storage.NewMemory()
			tt.setup(backend)

			loaded, ok := New(backend, zerolog.Nop()).Load()
			assert.False(t, ok)
			assert.Nil(t, loaded)
		})
	}
}

func TestStore_SaveFailureRollsBack(t *testing.T) {
	backend := &failingBackend{Memory: storage.NewMemory(), failKey: KeyAccessToken}
	store := New(backend, zerolog.Nop())

	// Must not panic or surface the error
	store.Save(models.TokenPair{AccessToken: "tok1", RefreshToken: "ref1"}, testUser(models.RoleUser))

	_, ok := store.Load()
	assert.False(t, ok)
	assert.Equal(t, 0, backend.Len(), "partially written keys are removed")
}

func TestStore_FailedSaveDropsPreviousSession(t *testing.T) {
	backend := &failingBackend{Memory: storage.NewMemory()}
	store := New(backend, zerolog.Nop())

	store.Save(models.TokenPair{AccessToken: "A1", RefreshToken: "AR"}, testUser(models.RoleUser))
	_, ok := store.Load()
	require.True(t, ok)

	backend.failKey = KeyUser
	second := testUser(models.RoleAdmin)
	second.Email = "b@glufer.com"
	store.Save(models.TokenPair{AccessToken: "B1", RefreshToken: "BR"}, second)

	_, ok = store.Load()
	assert.False(t, ok, "the first session must not come back")
	_, ok = store.AccessToken()
	assert.False(t, ok)
	assert.Equal(t, 0, backend.Len())
}

func TestStore_SaveRefusesIncompleteSession(t *testing.T) {
	backend := storage.NewMemory()
	store := New(backend, zerolog.Nop())

	store.Save(models.TokenPair{AccessToken: "tok1"}, nil)
	store.Save(models.TokenPair{}, testUser(models.RoleUser))

	assert.Equal(t, 0, backend.Len())
}

func TestStore_TokenAccessors(t *testing.T) {
	store := New(storage.NewMemory(), zerolog.Nop())

	_, ok := store.AccessToken()
	assert.False(t, ok)
	_, ok = store.RefreshToken()
	assert.False(t, ok)

	store.Save(models.TokenPair{AccessToken: "tok1", RefreshToken: "ref1"}, testUser(models.RoleUser))

	access, ok := store.AccessToken()
	require.True(t, ok)
	assert.Equal(t, "tok1", access)

	refresh, ok := store.RefreshToken()
	require.True(t, ok)
	assert.Equal(t, "ref1", refresh)
}

func TestStore_UpdateAccessToken(t *testing.T) {
	t.Run("replaces access token of stored session", func(t *testing.T) {
		store := New(storage.NewMemory(), zerolog.Nop())
		store.Save(models.TokenPair{AccessToken: "tok1", RefreshToken: "ref1"}, testUser(models.RoleUser))

		store.UpdateAccessToken("ref1", "tok2")

		loaded, ok := store.Load()
		require.True(t, ok)
		assert.Equal(t, "tok2", loaded.Tokens.AccessToken)
		assert.Equal(t, "ref1", loaded.Tokens.RefreshToken)
	})

	t.Run("ignored when no session is stored", func(t *testing.T) {
		backend := storage.NewMemory()
		store := New(backend, zerolog.Nop())

		store.UpdateAccessToken("ref1", "tok2")

		_, ok := store.AccessToken()
		assert.False(t, ok)
		assert.Equal(t, 0, backend.Len())
	})

	t.Run("ignored when another session was saved meanwhile", func(t *testing.T) {
		store := New(storage.NewMemory(), zerolog.Nop())
		store.Save(models.TokenPair{AccessToken: "B1", RefreshToken: "BR"}, testUser(models.RoleUser))

		store.UpdateAccessToken("AR", "A2")

		access, ok := store.AccessToken()
		require.True(t, ok)
		assert.Equal(t, "B1", access)
	})
}
