package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/secureguard/secureguard/internal/cli/commands"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the command tree on top of load
func NewRootCmd(load commands.Loader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "secureguard",
		Short: "SecureGuard - security staff booking client",
		Long: `SecureGuard CLI - sign in to the SecureGuard backend, manage your session
and serve the role-based dashboard locally.

Configuration comes from the environment (or a .env file):
  SECUREGUARD_API_BASE_URL   backend address (default http://localhost:8000)
  SECUREGUARD_STORAGE        keyring, file, sqlite or memory (default keyring)
  SECUREGUARD_DEV_MODE       show development-only data such as reset codes`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewVersionCmd(version))
	rootCmd.AddCommand(commands.NewLoginCmd(load))
	rootCmd.AddCommand(commands.NewLogoutCmd(load))
	rootCmd.AddCommand(commands.NewRegisterCmd(load))
	rootCmd.AddCommand(commands.NewWhoamiCmd(load))
	rootCmd.AddCommand(commands.NewForgotPasswordCmd(load))
	rootCmd.AddCommand(commands.NewResetPasswordCmd(load))
	rootCmd.AddCommand(commands.NewProbeCmd(load))
	rootCmd.AddCommand(commands.NewDashCmd(load, version))

	return rootCmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	if err := NewRootCmd(commands.DefaultLoader(os.Stderr)).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
