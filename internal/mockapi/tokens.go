package mockapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/secureguard/secureguard/internal/assert"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// claims represents the JWT token claims issued by the fake backend
type claims struct {
	Email      string `json:"email"`
	Role       string `json:"role,omitempty"`
	Type       string `json:"type"`
	Generation int    `json:"gen"`
	jwt.RegisteredClaims
}

// issueToken creates a signed token for a user
func (b *Backend) issueToken(u *user, tokenType string, generation int, ttl time.Duration) (string, error) {
	assert.NotEmpty("user id", u.ID)

	now := time.Now()
	c := claims{
		Email:      u.Email,
		Role:       u.Role,
		Type:       tokenType,
		Generation: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(b.secret)
}

// validateToken validates a token of the expected type and returns the claims
func (b *Backend) validateToken(tokenString, tokenType string) (*claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return b.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if c.Type != tokenType {
		return nil, fmt.Errorf("expected %s token, got %s", tokenType, c.Type)
	}
	return c, nil
}
