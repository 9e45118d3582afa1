package models

import (
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Role names issued by the backend
const (
	RoleAdmin   = "admin"
	RoleBouncer = "bouncer"
	RoleUser    = "user"
)

// Roles lists every role the backend can assign
var Roles = []string{RoleAdmin, RoleBouncer, RoleUser}

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// StorageEntry is one persisted key of the local session storage.
// Entries are scoped by origin (the API base URL) like browser localStorage.
type StorageEntry struct {
	BaseModel
	Origin    string    `json:"origin" gorm:"not null;uniqueIndex:idx_storage_origin_key"`
	Key       string    `json:"key" gorm:"column:storage_key;not null;uniqueIndex:idx_storage_origin_key"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// AutoMigrate creates or updates the local storage schema
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&StorageEntry{})
}

// UserProfile is the server-issued identity record
type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Phone       string    `json:"phone,omitempty"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions,omitempty"`
	IsActive    bool      `json:"is_active"`
	IsVerified  bool      `json:"is_verified"`
	CreatedAt   time.Time `json:"created_at"`
}

// FullName joins the display name parts
func (u *UserProfile) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// HasPermission reports whether the profile carries the named permission
func (u *UserProfile) HasPermission(permission string) bool {
	return slices.Contains(u.Permissions, permission)
}

// Clone returns a deep copy so callers can't mutate session-owned state
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	c.Permissions = slices.Clone(u.Permissions)
	return &c
}

// TokenPair holds the opaque bearer tokens. They are never decoded client side.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// BearerToken wraps an access token for header formatting
func BearerToken(accessToken string) *oauth2.Token {
	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
}

// AuthResponse is the body of a successful login
type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         *UserProfile `json:"user"`
}

// Tokens extracts the token pair
func (r *AuthResponse) Tokens() TokenPair {
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// RefreshRequest is the body of a token refresh call
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse is the body of a successful token refresh
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Credentials are the transient login inputs; Username is the email.
type Credentials struct {
	Username string
	Password string
}

// RegisterRequest represents a new-account request
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// ResetOTPRequest asks the backend to email a password reset code
type ResetOTPRequest struct {
	Email string `validate:"required,email"`
}

// ResetOTPResult is the outcome of a reset code request
type ResetOTPResult struct {
	Message string `json:"message"`
	// DevelopmentOTP is only populated when the client runs in development mode
	DevelopmentOTP string `json:"development_otp,omitempty"`
}

// ResetPasswordRequest completes a password reset with the emailed code
type ResetPasswordRequest struct {
	Email           string `validate:"required,email"`
	OTP             string `validate:"required,len=6,numeric"`
	NewPassword     string `validate:"required,min=6"`
	ConfirmPassword string `validate:"required,eqfield=NewPassword"`
}
