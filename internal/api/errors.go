package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNetwork wraps transport failures (DNS, refused connections, timeouts)
	ErrNetwork = errors.New("network error")
	// ErrSessionExpired marks a 401 whose refresh attempt also failed
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidResponse is returned when a 2xx body breaks the API contract
	ErrInvalidResponse = errors.New("invalid response from server")
)

const networkMessage = "Network error. Please check your connection."

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Detail     string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (status %d)", e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status code
func IsStatus(err error, statusCode int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == statusCode
}

// IsUnauthorized reports whether err is a 401 from the backend
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// sessionExpiredError keeps the original 401 visible to errors.As while also
// matching ErrSessionExpired.
type sessionExpiredError struct {
	original error
}

func (e *sessionExpiredError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSessionExpired, e.original)
}

func (e *sessionExpiredError) Unwrap() []error {
	return []error{e.original, ErrSessionExpired}
}

// ValidationError is raised before any network call when input is rejected
type ValidationError struct {
	Problems []string
	err      error
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

// newValidationError translates validator output into user-facing sentences
func newValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validation failed: %w", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return &ValidationError{Problems: problems, err: err}
}

func describeFieldError(fe validator.FieldError) string {
	field := humanize(fe.Field())

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s digits", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain only digits", field)
	case "eqfield":
		return "Passwords do not match"
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// humanize turns "NewPassword" into "New password" and "OTP" into "OTP"
func humanize(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(runes[i-1]) {
			b.WriteRune(' ')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Message returns the text to show a user for err, preferring the backend's
// detail and falling back to fallback.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}

	if errors.Is(err, ErrNetwork) {
		return networkMessage
	}

	return fallback
}

// parseDetail extracts FastAPI-style {"detail": ...} messages. Detail is either
// a string or a list of {"msg": ...} objects for request validation failures.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}

	if len(envelope.Detail) > 0 {
		var text string
		if err := json.Unmarshal(envelope.Detail, &text); err == nil {
			return text
		}

		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(envelope.Detail, &items); err == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}

	return envelope.Error
}
