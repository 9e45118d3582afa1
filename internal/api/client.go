// Package api is the client for the SecureGuard REST backend: a shared
// bearer-token transport with silent refresh, and typed auth calls on top.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/secureguard/secureguard/internal/metrics"
	"github.com/secureguard/secureguard/internal/models"
)

// Backend paths
const (
	PathLogin          = "/api/auth/login"
	PathRegister       = "/api/auth/register"
	PathRefresh        = "/api/auth/refresh"
	PathLogout         = "/api/auth/logout"
	PathCurrentUser    = "/api/users/me"
	PathSendResetOTP   = "/auth/send-reset-otp"
	PathVerifyResetOTP = "/auth/verify-reset-otp"
)

// Client represents an HTTP client for the SecureGuard API
type Client struct {
	baseURL   string
	transport *Transport
	validate  *validator.Validate
	devMode   bool
	logger    zerolog.Logger
}

type options struct {
	httpClient *http.Client
	devMode    bool
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client
type Option func(*options)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) { o.httpClient = httpClient }
}

// WithDevMode surfaces development-only data such as echoed reset OTPs
func WithDevMode(enabled bool) Option {
	return func(o *options) { o.devMode = enabled }
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates a new API client for baseURL, reading and refreshing
// credentials through tokens.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	o := options{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.Default()
	}

	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		baseURL:  baseURL,
		validate: validator.New(),
		devMode:  o.devMode,
		logger:   o.logger.With().Str("component", "api").Logger(),
	}
	c.transport = newTransport(baseURL, o.httpClient, tokens, o.logger, o.metrics)
	c.transport.refresh = c.refreshAccessToken

	return c
}

// InsecureHTTPClient accepts self-signed certificates, for local backends
func InsecureHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
	}
}

// BaseURL returns the backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Transport returns the shared transport
func (c *Client) Transport() *Transport {
	return c.transport
}

// Do sends an arbitrary request through the shared transport and decodes the
// JSON response into out. Other API collaborators (bookings, profiles) use it.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Login authenticates with email and password. The response must carry an
// access token and a user with a role.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*models.AuthResponse, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	req := NewRequest(http.MethodPost, PathLogin).WithForm(form).WithoutRefresh()

	var authResp models.AuthResponse
	if err := c.Do(ctx, req, &authResp); err != nil {
		return nil, err
	}

	if authResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: login response has no access token", ErrInvalidResponse)
	}
	if authResp.User == nil {
		return nil, fmt.Errorf("%w: login response has no user", ErrInvalidResponse)
	}
	if authResp.User.Role == "" {
		return nil, fmt.Errorf("%w: user %s has no role", ErrInvalidResponse, authResp.User.ID)
	}

	return &authResp, nil
}

// Register creates a new account. It does not authenticate the caller.
func (c *Client) Register(ctx context.Context, data models.RegisterRequest) (*models.UserProfile, error) {
	if err := c.validate.Struct(data); err != nil {
		return nil, newValidationError(err)
	}

	req, err := NewRequest(http.MethodPost, PathRegister).WithoutRefresh().WithJSON(data)
	if err != nil {
		return nil, err
	}

	var user models.UserProfile
	if err := c.Do(ctx, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Refresh exchanges a refresh token for a new access token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.RefreshResponse, error) {
	req, err := NewRequest(http.MethodPost, PathRefresh).
		WithoutRefresh().
		WithJSON(models.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	var refreshResp models.RefreshResponse
	if err := c.Do(ctx, req, &refreshResp); err != nil {
		return nil, err
	}
	if refreshResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh response has no access token", ErrInvalidResponse)
	}
	return &refreshResp, nil
}

func (c *Client) refreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	resp, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	return resp.AccessToken, nil
}

// Logout tells the backend the session is over. Callers treat it as best-effort.
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, NewRequest(http.MethodPost, PathLogout).WithoutRefresh(), nil)
}

// CurrentUser fetches the authenticated user's profile
func (c *Client) CurrentUser(ctx context.Context) (*models.UserProfile, error) {
	var user models.UserProfile
	if err := c.Do(ctx, NewRequest(http.MethodGet, PathCurrentUser), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendResetOTP asks the backend to email a password reset code. A
// development OTP echoed by the backend is only kept in development mode.
func (c *Client) SendResetOTP(ctx context.Context, email string) (*models.ResetOTPResult, error) {
	if err := c.validate.Struct(models.ResetOTPRequest{Email: email}); err != nil {
		return nil, newValidationError(err)
	}

	form := url.Values{}
	form.Set("email", email)
	req := NewRequest(http.MethodPost, PathSendResetOTP).WithForm(form).WithoutRefresh()

	var result models.ResetOTPResult
	if err := c.Do(ctx, req, &result); err != nil {
		return nil, err
	}

	if result.DevelopmentOTP != "" && !c.devMode {
		c.logger.Debug().Msg("Development OTP withheld outside development mode")
		result.DevelopmentOTP = ""
	}
	return &result, nil
}

// ResetPassword completes a reset with the emailed code and returns the
// backend's confirmation message.
func (c *Client) ResetPassword(ctx context.Context, data models.ResetPasswordRequest) (string, error) {
	if err := c.validate.Struct(data); err != nil {
		return "", newValidationError(err)
	}

	form := url.Values{}
	form.Set("email", data.Email)
	form.Set("otp", data.OTP)
	form.Set("new_password", data.NewPassword)
	form.Set("confirm_password", data.ConfirmPassword)
	req := NewRequest(http.MethodPost, PathVerifyResetOTP).WithForm(form).WithoutRefresh()

	var result struct {
		Message string `json:"message"`
	}
	if err := c.Do(ctx, req, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}

// IsValidation reports whether err was raised by client-side validation
func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
