package dashboard

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/secureguard/secureguard/internal/guard"
	"github.com/secureguard/secureguard/internal/models"
	"github.com/secureguard/secureguard/internal/session"
)

// pageData is what every template receives
type pageData struct {
	Title   string
	User    *models.UserProfile
	Error   string
	Notice  string
	From    string
	Form    map[string]string
	Reason  string
	Version string
}

func (s *Server) loginPage(c *gin.Context) {
	snap := s.session.Snapshot()
	from := guard.SafeReturnPath(c.Query("from"))

	if snap.Authenticated() {
		c.Redirect(http.StatusFound, from)
		return
	}

	data := pageData{Title: "Sign in", From: from, Reason: snap.Reason}
	if c.Query("registered") != "" {
		data.Notice = "Account created. You can sign in now."
	}
	if snap.Reason == session.ReasonExpired {
		data.Notice = "Your session expired. Please sign in again."
	}
	c.HTML(http.StatusOK, "login", data)
}

func (s *Server) login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	from := guard.SafeReturnPath(c.PostForm("from"))

	_, err := s.session.Login(c.Request.Context(), email, c.PostForm("password"))
	if err != nil {
		c.HTML(http.StatusUnauthorized, "login", pageData{
			Title: "Sign in",
			From:  from,
			Error: err.Error(),
			Form:  map[string]string{"email": email},
		})
		return
	}

	c.Redirect(http.StatusFound, from)
}

func (s *Server) registerPage(c *gin.Context) {
	c.HTML(http.StatusOK, "register", pageData{Title: "Create account"})
}

func (s *Server) register(c *gin.Context) {
	req := models.RegisterRequest{
		Email:     strings.TrimSpace(c.PostForm("email")),
		Password:  c.PostForm("password"),
		FirstName: strings.TrimSpace(c.PostForm("first_name")),
		LastName:  strings.TrimSpace(c.PostForm("last_name")),
		Phone:     strings.TrimSpace(c.PostForm("phone")),
	}

	if _, err := s.session.Register(c.Request.Context(), req); err != nil {
		c.HTML(http.StatusBadRequest, "register", pageData{
			Title: "Create account",
			Error: err.Error(),
			Form: map[string]string{
				"email":      req.Email,
				"first_name": req.FirstName,
				"last_name":  req.LastName,
				"phone":      req.Phone,
			},
		})
		return
	}

	c.Redirect(http.StatusFound, guard.LoginPath+"?registered=1")
}

func (s *Server) logout(c *gin.Context) {
	s.session.Logout(c.Request.Context())
	c.Redirect(http.StatusFound, guard.LoginPath)
}

func (s *Server) unauthorizedPage(c *gin.Context) {
	c.HTML(http.StatusForbidden, "unauthorized", pageData{
		Title: "No access",
		User:  s.session.User(),
	})
}

// dashboardRedirect sends the user to the dashboard for their role
func (s *Server) dashboardRedirect(c *gin.Context) {
	user := s.session.User()
	if user == nil {
		c.Redirect(http.StatusFound, guard.LoginPath)
		return
	}

	switch user.Role {
	case models.RoleAdmin:
		c.Redirect(http.StatusFound, "/admin")
	case models.RoleBouncer:
		c.Redirect(http.StatusFound, "/bouncer")
	case models.RoleUser:
		c.Redirect(http.StatusFound, "/user")
	default:
		c.Redirect(http.StatusFound, guard.UnauthorizedPath)
	}
}

func (s *Server) rolePage(title string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "page", pageData{
			Title:   title,
			User:    s.session.User(),
			Version: s.version,
		})
	}
}

// sessionSnapshot returns the session state without tokens
func (s *Server) sessionSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Snapshot())
}
