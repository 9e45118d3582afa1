// Package app wires configuration, storage, the API client and the session
// manager into one Runtime shared by the CLI and the dashboard binary.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/secureguard/secureguard/internal/api"
	"github.com/secureguard/secureguard/internal/config"
	"github.com/secureguard/secureguard/internal/logger"
	"github.com/secureguard/secureguard/internal/metrics"
	"github.com/secureguard/secureguard/internal/session"
	"github.com/secureguard/secureguard/internal/storage"
	"github.com/secureguard/secureguard/internal/tokenstore"
)

// Runtime is everything a front end needs to talk to the backend
type Runtime struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Session *session.Manager
	Client  *api.Client
	Metrics *metrics.Metrics
	closers []io.Closer
}

// Close releases storage handles
func (r *Runtime) Close() {
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			r.Logger.Warn().Err(err).Msg("Failed to close resource")
		}
	}
	r.closers = nil
}

// Load reads configuration from the environment, initializes the global
// logger, opens the configured storage backend and restores any saved session.
// nav is told when the session is forcibly ended.
func Load(ctx context.Context, logOut io.Writer, nav session.Navigator) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.InitWithWriter(logOut, cfg.Logging.Level, cfg.Logging.Format)

	backend, err := storage.Open(storage.Options{
		Kind:   cfg.Storage.Backend,
		Path:   cfg.Storage.Path,
		Origin: cfg.API.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	return New(ctx, cfg, backend, logger.GetLogger(), metrics.Default(), nav)
}

// New wires the session stack on top of backend and restores the session
func New(ctx context.Context, cfg *config.Config, backend storage.Backend, log zerolog.Logger, m *metrics.Metrics, nav session.Navigator) (*Runtime, error) {
	store := tokenstore.New(backend, log)

	client := api.New(cfg.API.BaseURL, store,
		api.WithDevMode(cfg.API.DevMode),
		api.WithLogger(log),
		api.WithMetrics(m),
	)

	opts := []session.Option{
		session.WithLogger(log),
		session.WithMetrics(m),
	}
	if nav != nil {
		opts = append(opts, session.WithNavigator(nav))
	}
	manager := session.New(client, store, opts...)
	manager.Init(ctx)

	rt := &Runtime{
		Config:  cfg,
		Logger:  log,
		Session: manager,
		Client:  client,
		Metrics: m,
	}
	if c, ok := backend.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}
	return rt, nil
}
