package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/secureguard/secureguard/internal/app"
)

// NewLoginCmd creates the login command
func NewLoginCmd(load Loader) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to SecureGuard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, load, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set SECUREGUARD_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set SECUREGUARD_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(cmd *cobra.Command, load Loader, email, password string) error {
	out := cmd.OutOrStdout()

	// Environment variables are useful for CI/CD
	if email == "" {
		email = os.Getenv("SECUREGUARD_EMAIL")
	}
	if password == "" {
		password = os.Getenv("SECUREGUARD_PASSWORD")
	}

	if email == "" {
		return fmt.Errorf("email is required (use --email flag or SECUREGUARD_EMAIL env var)")
	}

	if password == "" {
		p, err := readPassword(out, "Password")
		if errors.Is(err, errNonInteractive) {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or SECUREGUARD_PASSWORD env var)")
		}
		if err != nil {
			return err
		}
		password = p
	}

	return withRuntime(cmd.Context(), load, cmd.ErrOrStderr(), func(rt *app.Runtime) error {
		fmt.Fprintf(out, "Logging in to %s...\n", rt.Client.BaseURL())

		user, err := rt.Session.Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		fmt.Fprintln(out, "✓ Login successful!")
		fmt.Fprintf(out, "  User: %s (%s)\n", user.FullName(), user.Email)
		fmt.Fprintf(out, "  Role: %s\n", user.Role)
		return nil
	})
}
