// Package guard decides whether a session may see a route.
package guard

import (
	"net/url"
	"strings"

	"github.com/secureguard/secureguard/internal/session"
)

// Well-known destinations
const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
	DefaultPath      = "/dashboard"
)

// Outcome is the guard's verdict
type Outcome int

const (
	// Placeholder means the session is still resolving; render nothing real yet
	Placeholder Outcome = iota
	// RedirectLogin sends an anonymous visitor to the login page
	RedirectLogin
	// Unauthorized means signed in but missing a role or permission
	Unauthorized
	// Allow renders the guarded content
	Allow
)

func (o Outcome) String() string {
	switch o {
	case Placeholder:
		return "placeholder"
	case RedirectLogin:
		return "redirect_login"
	case Unauthorized:
		return "unauthorized"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// Requirement is what a route demands of the session. Empty fields are not checked.
type Requirement struct {
	Role       string
	Permission string
	// UseFallback renders a supplied fallback instead of redirecting on Unauthorized
	UseFallback bool
}

// Decision is the outcome plus where to send the user, if anywhere
type Decision struct {
	Outcome  Outcome
	Location string
}

// View is the part of the session the guard looks at
type View interface {
	Loading() bool
	Authenticated() bool
	HasRole(role string) bool
	HasPermission(permission string) bool
}

var _ View = session.Snapshot{}

// Evaluate decides what to do with a request for requestedPath
func Evaluate(view View, req Requirement, requestedPath string) Decision {
	if view.Loading() {
		return Decision{Outcome: Placeholder}
	}

	if !view.Authenticated() {
		return Decision{Outcome: RedirectLogin, Location: LoginLocation(requestedPath)}
	}

	if req.Role != "" && !view.HasRole(req.Role) {
		return unauthorized(req)
	}
	if req.Permission != "" && !view.HasPermission(req.Permission) {
		return unauthorized(req)
	}

	return Decision{Outcome: Allow}
}

func unauthorized(req Requirement) Decision {
	if req.UseFallback {
		return Decision{Outcome: Unauthorized}
	}
	return Decision{Outcome: Unauthorized, Location: UnauthorizedPath}
}

// LoginLocation builds the login URL that returns to requestedPath afterwards
func LoginLocation(requestedPath string) string {
	from := SafeReturnPath(requestedPath)
	if from == DefaultPath {
		return LoginPath
	}
	return LoginPath + "?" + url.Values{"from": {from}}.Encode()
}

// SafeReturnPath returns from when it is a local path, else DefaultPath
func SafeReturnPath(from string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return DefaultPath
	}
	if strings.HasPrefix(from, LoginPath) {
		return DefaultPath
	}

	u, err := url.Parse(from)
	if err != nil || u.IsAbs() || u.Host != "" {
		return DefaultPath
	}
	return from
}
