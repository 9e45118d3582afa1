package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ViewFunc resolves the session view for a request
type ViewFunc func(c *gin.Context) View

// Handlers customizes how non-Allow outcomes are rendered
type Handlers struct {
	// Placeholder renders while the session is loading. Defaults to a 202 with a short body.
	Placeholder gin.HandlerFunc
	// Fallback renders Unauthorized when the requirement asks for it
	Fallback gin.HandlerFunc
	Logger   zerolog.Logger
}

// Middleware enforces req on a gin route. The downstream handler only runs on Allow.
func Middleware(view ViewFunc, req Requirement, h Handlers) gin.HandlerFunc {
	if h.Placeholder == nil {
		h.Placeholder = func(c *gin.Context) {
			c.String(http.StatusAccepted, "Loading...")
		}
	}
	if h.Fallback == nil {
		h.Fallback = func(c *gin.Context) {
			c.String(http.StatusForbidden, "You do not have access to this page.")
		}
	}

	return func(c *gin.Context) {
		decision := Evaluate(view(c), req, c.Request.URL.RequestURI())

		if decision.Outcome != Allow {
			h.Logger.Debug().
				Str("path", c.Request.URL.Path).
				Str("outcome", decision.Outcome.String()).
				Str("required_role", req.Role).
				Str("required_permission", req.Permission).
				Msg("Route guarded")
		}

		switch decision.Outcome {
		case Allow:
			c.Next()
		case Placeholder:
			h.Placeholder(c)
			c.Abort()
		case Unauthorized:
			if decision.Location == "" {
				h.Fallback(c)
				c.Abort()
				return
			}
			c.Redirect(http.StatusFound, decision.Location)
			c.Abort()
		default:
			c.Redirect(http.StatusFound, decision.Location)
			c.Abort()
		}
	}
}
