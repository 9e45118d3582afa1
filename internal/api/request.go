package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/oklog/ulid/v2"

	"github.com/secureguard/secureguard/internal/models"
)

// Request describes one logical API call. The transport may send it twice
// (original + replay after a refresh), so the body is kept as bytes.
type Request struct {
	ID     string
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// NoRefresh disables refresh-and-retry, used by the auth endpoints themselves
	NoRefresh bool

	retried       bool
	tokenOverride string
	sentToken     string
}

// NewRequest creates a request descriptor with a fresh ULID
func NewRequest(method, path string) *Request {
	return &Request{
		ID:     ulid.Make().String(),
		Method: method,
		Path:   path,
		Header: make(http.Header),
	}
}

// WithJSON sets a JSON body
func (r *Request) WithJSON(v any) (*Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	r.Body = data
	r.Header.Set("Content-Type", "application/json")
	return r, nil
}

// WithForm sets an application/x-www-form-urlencoded body
func (r *Request) WithForm(values url.Values) *Request {
	r.Body = []byte(values.Encode())
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

// WithoutRefresh marks the request as exempt from refresh-and-retry
func (r *Request) WithoutRefresh() *Request {
	r.NoRefresh = true
	return r
}

// Retried reports whether the request has already been replayed once
func (r *Request) Retried() bool {
	return r.retried
}

// build turns the descriptor into an *http.Request bound to ctx
func (r *Request) build(ctx context.Context, baseURL, accessToken string) (*http.Request, error) {
	target := baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", r.ID)

	if accessToken != "" {
		models.BearerToken(accessToken).SetAuthHeader(req)
	}

	return req, nil
}

// Response is a fully read backend response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into out
func (r *Response) Decode(out any) error {
	if out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrInvalidResponse, err)
	}
	return nil
}

func (r *Response) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// err converts a non-2xx response into an *APIError
func (r *Response) err(requestID string) error {
	if r.ok() {
		return nil
	}
	return &APIError{
		StatusCode: r.StatusCode,
		Detail:     parseDetail(r.Body),
		RequestID:  requestID,
	}
}
