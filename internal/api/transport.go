package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/secureguard/secureguard/internal/logger"
	"github.com/secureguard/secureguard/internal/metrics"
)

const (
	// maxResponseBytes bounds how much of a response body is buffered
	maxResponseBytes = 4 << 20
	// refreshTimeout bounds a shared refresh, which outlives its callers' contexts
	refreshTimeout = 30 * time.Second
)

// TokenSource is the persisted side of the session the transport reads from
// and, on the refresh path, writes to. *tokenstore.Store implements it.
type TokenSource interface {
	AccessToken() (string, bool)
	RefreshToken() (string, bool)
	UpdateAccessToken(refreshToken, accessToken string)
	Clear()
}

// RefreshFunc exchanges a refresh token for a new access token
type RefreshFunc func(ctx context.Context, refreshToken string) (string, error)

// Hooks let the session owner observe what the transport did on its own
type Hooks struct {
	// TokenRefreshed runs after a successful silent refresh of the session
	// holding refreshToken
	TokenRefreshed func(refreshToken, accessToken string)
	// SessionExpired runs after a refresh failed and persisted state was cleared
	SessionExpired func()
}

// Transport is the shared HTTP client for every session-related call. It
// attaches the bearer credential and performs at most one refresh-and-replay
// per request.
type Transport struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	refresh    RefreshFunc
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	mu           sync.RWMutex
	defaultToken string
	hooks        Hooks

	refreshGroup singleflight.Group
}

func newTransport(baseURL string, httpClient *http.Client, tokens TokenSource, logger zerolog.Logger, m *metrics.Metrics) *Transport {
	return &Transport{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger.With().Str("component", "transport").Logger(),
		metrics:    m,
	}
}

// SetAuthToken sets the default credential. It takes precedence over the
// persisted token, which is only consulted when no default is set.
func (t *Transport) SetAuthToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultToken = token
}

// swapAuthToken replaces the default credential only while it is still stale,
// so a refresh finishing after a logout or a newer login changes nothing.
func (t *Transport) swapAuthToken(stale, fresh string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.defaultToken != "" && t.defaultToken == stale {
		t.defaultToken = fresh
	}
}

// ClearAuthToken removes the default credential
func (t *Transport) ClearAuthToken() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultToken = ""
}

// SetHooks replaces the session hooks
func (t *Transport) SetHooks(h Hooks) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = h
}

func (t *Transport) currentHooks() Hooks {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hooks
}

// currentToken reads the credential immediately before dispatch
func (t *Transport) currentToken() string {
	t.mu.RLock()
	token := t.defaultToken
	t.mu.RUnlock()
	if token != "" {
		return token
	}

	token, _ = t.tokens.AccessToken()
	return token
}

// Do sends req. Non-2xx responses are returned together with an *APIError.
// A 401 on a request that has not been retried triggers one refresh; on
// success the request is replayed once, on failure the session is cleared and
// the original 401 is returned wrapped with ErrSessionExpired. A caller whose
// context ends while waiting for the refresh gets the context error and the
// session is left alone.
func (t *Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := t.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || req.NoRefresh || req.retried {
		return resp, resp.err(req.ID)
	}

	req.retried = true
	original := resp.err(req.ID)

	refreshToken, ok := t.tokens.RefreshToken()
	if !ok {
		t.logger.Debug().Str("request_id", req.ID).Msg("Unauthorized and no refresh token stored")
		return resp, original
	}

	accessToken, err := t.refreshShared(ctx, refreshToken, req.sentToken)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			t.logger.Debug().Err(err).Str("request_id", req.ID).Msg("Refresh interrupted, keeping session")
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: token refresh: %w", ErrNetwork, err)
		}
		if current, ok := t.tokens.RefreshToken(); ok && current != refreshToken {
			t.logger.Debug().Str("request_id", req.ID).Msg("Refresh failed for a replaced session, keeping the current one")
			return resp, original
		}
		t.logger.Warn().Err(err).Str("request_id", req.ID).Msg("Token refresh failed, ending session")
		t.expire()
		return resp, &sessionExpiredError{original: original}
	}

	req.tokenOverride = accessToken
	t.logger.Debug().Str("request_id", req.ID).Msg("Replaying request with refreshed token")

	replayed, err := t.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return replayed, replayed.err(req.ID)
}

// dispatch sends one HTTP exchange and buffers the body
func (t *Transport) dispatch(ctx context.Context, req *Request) (*Response, error) {
	token := req.tokenOverride
	if token == "" {
		token = t.currentToken()
	}
	req.sentToken = token

	httpReq, err := req.build(ctx, t.baseURL, token)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		t.metrics.ObserveRequest(0)
		t.logger.Warn().Err(err).
			Str("request_id", req.ID).
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("Request failed")
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		t.metrics.ObserveRequest(0)
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}

	t.metrics.ObserveRequest(httpResp.StatusCode)
	t.logger.Debug().
		Str("request_id", req.ID).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", httpResp.StatusCode).
		Bool("authenticated", token != "").
		Bool("retried", req.retried).
		Dur("duration", time.Since(start)).
		Msg("HTTP request")

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// refreshShared collapses concurrent refreshes into one backend call. The call
// runs detached from ctx so one caller giving up does not decide the outcome
// for the others; stale is the access token the caller was rejected with.
func (t *Transport) refreshShared(ctx context.Context, refreshToken, stale string) (string, error) {
	ch := t.refreshGroup.DoChan(refreshToken, func() (any, error) {
		if t.refresh == nil {
			return "", fmt.Errorf("no refresh function configured")
		}

		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		accessToken, err := t.refresh(refreshCtx, refreshToken)
		t.metrics.ObserveRefresh(err == nil)
		if err != nil {
			return "", err
		}

		t.logger.Debug().
			Str("stale", logger.Fingerprint(stale)).
			Str("fresh", logger.Fingerprint(accessToken)).
			Msg("Access token refreshed")

		t.tokens.UpdateAccessToken(refreshToken, accessToken)
		t.swapAuthToken(stale, accessToken)
		if hook := t.currentHooks().TokenRefreshed; hook != nil {
			hook(refreshToken, accessToken)
		}
		return accessToken, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// expire clears every credential the transport knows about and tells the owner
func (t *Transport) expire() {
	t.tokens.Clear()
	t.ClearAuthToken()
	if hook := t.currentHooks().SessionExpired; hook != nil {
		hook()
	}
}
