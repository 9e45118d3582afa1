// Command mockapi serves the in-process fake backend for local development.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/secureguard/secureguard/internal/logger"
	"github.com/secureguard/secureguard/internal/mockapi"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"), "console")
	log := logger.Component("mockapi")

	addr := os.Getenv("MOCKAPI_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8000"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           mockapi.New().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	for _, acct := range mockapi.SeedAccounts {
		log.Info().Str("email", acct.Email).Str("password", acct.Password).Str("role", acct.Role).Msg("Seeded account")
	}
	log.Info().Str("addr", addr).Msg("Starting mock backend")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Mock backend failed")
	}
}
