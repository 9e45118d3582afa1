// Package dashboard serves the local role-based dashboard pages on top of a
// session manager.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/secureguard/secureguard/internal/config"
	"github.com/secureguard/secureguard/internal/guard"
	"github.com/secureguard/secureguard/internal/models"
	"github.com/secureguard/secureguard/internal/session"
)

// Server represents the dashboard HTTP server
type Server struct {
	router   *gin.Engine
	session  *session.Manager
	config   config.DashboardConfig
	logger   zerolog.Logger
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	version  string
	nav      *Navigator
}

// Option configures a Server
type Option func(*Server)

// WithGatherer sets the registry exposed on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithNavigator sets the navigator the session manager reports forced
// logouts to, so they reach the session feed
func WithNavigator(nav *Navigator) Option {
	return func(s *Server) { s.nav = nav }
}

// WithVersion sets the version reported by /health
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// New creates a new dashboard server
func New(cfg config.DashboardConfig, manager *session.Manager, zlog zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		session:  manager,
		config:   cfg,
		logger:   zlog.With().Str("component", "dashboard").Logger(),
		gatherer: prometheus.DefaultGatherer,
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.nav == nil {
		s.nav = NewNavigator()
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupRouter()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()
	s.router.SetHTMLTemplate(pageTemplates)

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	s.router.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, guard.DefaultPath) })
	s.router.GET(guard.LoginPath, s.loginPage)
	s.router.POST(guard.LoginPath, s.login)
	s.router.GET("/register", s.registerPage)
	s.router.POST("/register", s.register)
	s.router.POST("/logout", s.logout)
	s.router.GET(guard.UnauthorizedPath, s.unauthorizedPage)

	s.router.GET("/api/session", s.sessionSnapshot)
	s.router.GET("/ws/session", s.sessionFeed)

	s.router.GET(guard.DefaultPath, s.guard(guard.Requirement{}), s.dashboardRedirect)
	s.router.GET("/admin", s.guard(guard.Requirement{Role: models.RoleAdmin}), s.rolePage("Admin dashboard"))
	s.router.GET("/bouncer", s.guard(guard.Requirement{Role: models.RoleBouncer}), s.rolePage("Bouncer dashboard"))
	s.router.GET("/user", s.guard(guard.Requirement{Role: models.RoleUser}), s.rolePage("My dashboard"))
	s.router.GET("/bookings",
		s.guard(guard.Requirement{Permission: "booking:read", UseFallback: true}),
		s.rolePage("Bookings"))
}

func (s *Server) guard(req guard.Requirement) gin.HandlerFunc {
	return guard.Middleware(
		func(*gin.Context) guard.View { return s.session.Snapshot() },
		req,
		guard.Handlers{
			Placeholder: func(c *gin.Context) {
				c.HTML(http.StatusAccepted, "placeholder", nil)
			},
			Fallback: func(c *gin.Context) {
				c.HTML(http.StatusForbidden, "unauthorized", pageData{
					Title: "No access",
					User:  s.session.User(),
				})
			},
			Logger: s.logger,
		},
	)
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "secureguard-dash",
		"version":   s.version,
	})
}

// checkOrigin accepts same-host websocket upgrades and the configured origins
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("Starting dashboard server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down dashboard server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down dashboard server")
		return err
	}

	s.logger.Info().Msg("Dashboard shutdown complete")
	return nil
}
