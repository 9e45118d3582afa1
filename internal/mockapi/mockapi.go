// Package mockapi is an in-process fake of the SecureGuard REST backend. It
// speaks the same wire contract (form login, JSON register/refresh, FastAPI
// style {"detail": ...} errors) and lets tests expire tokens or break refresh.
package mockapi

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/secureguard/secureguard/internal/assert"
	"github.com/secureguard/secureguard/internal/models"
)

const otpLength = 6

// RolePermissions mirrors the backend's role seed
var RolePermissions = map[string][]string{
	models.RoleUser: {
		"user:read", "user:update", "user:delete",
		"booking:create", "booking:read", "booking:update", "booking:delete",
	},
	models.RoleBouncer: {
		"user:read", "user:update",
		"booking:create", "booking:read", "booking:update", "booking:delete",
		"bouncer:read", "bouncer:manage", "booking:read_all", "booking:update_all",
	},
	models.RoleAdmin: {
		"user:read", "user:update", "user:delete", "user:read_all", "user:update_all", "user:delete_all",
		"booking:create", "booking:read", "booking:update", "booking:delete", "booking:read_all", "booking:update_all",
		"bouncer:read", "bouncer:manage",
		"admin:read", "admin:manage_users", "admin:manage_roles", "admin:system",
	},
}

// SeedAccount is a pre-registered login
type SeedAccount struct {
	Email     string
	Password  string
	Role      string
	FirstName string
	LastName  string
}

// SeedAccounts are the development accounts the backend ships with
var SeedAccounts = []SeedAccount{
	{Email: "admin@glufer.com", Password: "admin123", Role: models.RoleAdmin, FirstName: "Admin", LastName: "User"},
	{Email: "bouncer@glufer.com", Password: "bouncer123", Role: models.RoleBouncer, FirstName: "Bouncer", LastName: "Pro"},
	{Email: "user@glufer.com", Password: "user123", Role: models.RoleUser, FirstName: "Regular", LastName: "User"},
}

type user struct {
	models.UserProfile
	PasswordHash []byte
}

// Backend is the fake server state
type Backend struct {
	secret []byte
	router *gin.Engine

	mu               sync.Mutex
	users            map[string]*user // by email
	otps             map[string]string
	accessGeneration int
	failRefresh      bool
	calls            map[string]int
	loginHook        func(email string)
}

// New creates a fake backend seeded with SeedAccounts
func New() *Backend {
	gin.SetMode(gin.TestMode)

	b := &Backend{
		secret: []byte(uuid.NewString()),
		users:  make(map[string]*user),
		otps:   make(map[string]string),
		calls:  make(map[string]int),
	}

	for _, acct := range SeedAccounts {
		b.AddUser(acct)
	}

	b.setupRouter()
	return b
}

// Start serves the backend on a local httptest server
func Start() (*Backend, *httptest.Server) {
	b := New()
	return b, httptest.NewServer(b.router)
}

// Handler returns the HTTP handler
func (b *Backend) Handler() http.Handler {
	return b.router
}

// AddUser registers an account directly
func (b *Backend) AddUser(acct SeedAccount) *models.UserProfile {
	hash, err := bcrypt.GenerateFromPassword([]byte(acct.Password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("mockapi: hash password: %v", err))
	}

	u := &user{
		UserProfile: models.UserProfile{
			ID:          uuid.NewString(),
			Email:       acct.Email,
			FirstName:   acct.FirstName,
			LastName:    acct.LastName,
			Role:        acct.Role,
			Permissions: append([]string(nil), RolePermissions[acct.Role]...),
			IsActive:    true,
			IsVerified:  true,
			CreatedAt:   time.Now().UTC().Truncate(time.Second),
		},
		PasswordHash: hash,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[strings.ToLower(acct.Email)] = u
	return u.UserProfile.Clone()
}

// SetRole overrides a user's role; an empty role reproduces incomplete backend data
func (b *Backend) SetRole(email, role string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[strings.ToLower(email)]; ok {
		u.Role = role
	}
}

// SetActive toggles an account
func (b *Backend) SetActive(email string, active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[strings.ToLower(email)]; ok {
		u.IsActive = active
	}
}

// ExpireAccessTokens invalidates every access token issued so far
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessGeneration++
}

// FailRefresh makes every refresh call answer 401
func (b *Backend) FailRefresh(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRefresh = fail
}

// OnLogin runs hook (outside the backend lock) before a login is answered
func (b *Backend) OnLogin(hook func(email string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginHook = hook
}

// Calls returns how many times path was hit
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// OTP returns the last reset code generated for email
func (b *Backend) OTP(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.otps[strings.ToLower(email)]
}

func (b *Backend) setupRouter() {
	b.router = gin.New()
	b.router.Use(gin.Recovery())
	b.router.Use(b.countCalls())

	b.router.POST("/api/auth/login", b.login)
	b.router.POST("/api/auth/register", b.register)
	b.router.POST("/api/auth/refresh", b.refresh)
	b.router.POST("/api/auth/logout", b.logout)
	b.router.GET("/api/users/me", b.requireAccess(), b.me)
	b.router.POST("/auth/send-reset-otp", b.sendResetOTP)
	b.router.POST("/auth/verify-reset-otp", b.verifyResetOTP)
}

func (b *Backend) countCalls() gin.HandlerFunc {
	return func(c *gin.Context) {
		b.mu.Lock()
		b.calls[c.Request.URL.Path]++
		b.mu.Unlock()
		c.Next()
	}
}

func detail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": message})
}

func (b *Backend) login(c *gin.Context) {
	email := strings.ToLower(c.PostForm("username"))
	password := c.PostForm("password")

	b.mu.Lock()
	hook := b.loginHook
	b.mu.Unlock()
	if hook != nil {
		hook(email)
	}

	u, ok := b.userByEmail(email)
	b.mu.Lock()
	generation := b.accessGeneration
	b.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		detail(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	profile := u.UserProfile
	if !profile.IsActive {
		detail(c, http.StatusBadRequest, "Account is deactivated")
		return
	}

	access, err := b.issueToken(u, tokenTypeAccess, generation, 30*time.Minute)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	refresh, err := b.issueToken(u, tokenTypeRefresh, 0, 7*24*time.Hour)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    1800,
		User:         &profile,
	})
}

func (b *Backend) register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"detail": []gin.H{{"msg": "Invalid registration payload"}},
		})
		return
	}

	b.mu.Lock()
	_, exists := b.users[strings.ToLower(req.Email)]
	b.mu.Unlock()
	if exists {
		detail(c, http.StatusBadRequest, "Email already registered")
		return
	}

	profile := b.AddUser(SeedAccount{
		Email:     req.Email,
		Password:  req.Password,
		Role:      models.RoleUser,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	profile.Phone = req.Phone

	c.JSON(http.StatusOK, profile)
}

func (b *Backend) refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		detail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	b.mu.Lock()
	fail := b.failRefresh
	generation := b.accessGeneration
	b.mu.Unlock()
	if fail {
		detail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	cl, err := b.validateToken(req.RefreshToken, tokenTypeRefresh)
	if err != nil {
		detail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	u, ok := b.userByEmail(cl.Email)
	if !ok || !u.IsActive {
		detail(c, http.StatusUnauthorized, "User not found or inactive")
		return
	}

	access, err := b.issueToken(u, tokenTypeAccess, generation, 30*time.Minute)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, models.RefreshResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   1800,
	})
}

func (b *Backend) logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

func (b *Backend) requireAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			detail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		cl, err := b.validateToken(token, tokenTypeAccess)
		if err != nil {
			detail(c, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		b.mu.Lock()
		current := b.accessGeneration
		b.mu.Unlock()
		if cl.Generation != current {
			detail(c, http.StatusUnauthorized, "Token has expired")
			return
		}

		c.Set("email", cl.Email)
		c.Next()
	}
}

func (b *Backend) me(c *gin.Context) {
	u, ok := b.userByEmail(c.GetString("email"))
	if !ok {
		detail(c, http.StatusNotFound, "User not found")
		return
	}
	c.JSON(http.StatusOK, u.UserProfile)
}

func (b *Backend) sendResetOTP(c *gin.Context) {
	email := strings.ToLower(c.PostForm("email"))
	if _, ok := b.userByEmail(email); !ok {
		detail(c, http.StatusNotFound, "No account found with this email address")
		return
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to send OTP")
		return
	}
	otp := fmt.Sprintf("%06d", n.Int64())
	assert.Length(otp, otpLength)

	b.mu.Lock()
	b.otps[email] = otp
	b.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"message":         "OTP sent to your email",
		"development_otp": otp,
	})
}

func (b *Backend) verifyResetOTP(c *gin.Context) {
	email := strings.ToLower(c.PostForm("email"))
	otp := c.PostForm("otp")
	newPassword := c.PostForm("new_password")

	if newPassword != c.PostForm("confirm_password") {
		detail(c, http.StatusBadRequest, "Passwords do not match")
		return
	}

	b.mu.Lock()
	expected, ok := b.otps[email]
	if ok && expected == otp {
		delete(b.otps, email)
	}
	b.mu.Unlock()

	if !ok || expected != otp {
		detail(c, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.MinCost)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	b.mu.Lock()
	if u, ok := b.users[email]; ok {
		u.PasswordHash = hash
	}
	b.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}

func (b *Backend) userByEmail(email string) (*user, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[strings.ToLower(email)]
	if !ok {
		return nil, false
	}
	cp := *u
	cp.UserProfile = *u.UserProfile.Clone()
	return &cp, true
}
