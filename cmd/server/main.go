package main

import (
	"context"
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"

	"github.com/secureguard/secureguard/internal/app"
	"github.com/secureguard/secureguard/internal/dashboard"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	figure.NewFigure("secureguard", "cybermedium", true).Print()
	fmt.Println()

	ctx := context.Background()

	// Forced logouts are pushed to connected browsers
	nav := dashboard.NewNavigator()

	// Load configuration, logger, storage and the saved session
	rt, err := app.Load(ctx, os.Stderr, nav)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	log := rt.Logger
	log.Info().
		Str("version", version).
		Str("api", rt.Client.BaseURL()).
		Str("session", string(rt.Session.Status())).
		Msg("Starting SecureGuard dashboard...")

	srv := dashboard.New(rt.Config.Dashboard, rt.Session, log,
		dashboard.WithVersion(version),
		dashboard.WithNavigator(nav),
	)

	// Start HTTP server (this blocks)
	err = srv.Start(ctx)
	rt.Close()
	if err != nil {
		log.Error().Err(err).Msg("Server failed")
		os.Exit(1)
	}
}
