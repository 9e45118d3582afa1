package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secureguard/secureguard/internal/app"
	"github.com/secureguard/secureguard/internal/models"
)

// NewRegisterCmd creates the register command
func NewRegisterCmd(load Loader) *cobra.Command {
	var req models.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new SecureGuard account",
		Long: `Create a new account. Missing fields are prompted for when running in a
terminal. Registering does not sign you in; run 'secureguard login' afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd, load, req)
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "Phone number (optional)")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (will prompt if not provided)")

	return cmd
}

func runRegister(cmd *cobra.Command, load Loader, req models.RegisterRequest) error {
	out := cmd.OutOrStdout()

	if err := fill(&req.Email, "Email", "email", true); err != nil {
		return err
	}
	if err := fill(&req.FirstName, "First name", "first-name", true); err != nil {
		return err
	}
	if err := fill(&req.LastName, "Last name", "last-name", true); err != nil {
		return err
	}
	if err := fill(&req.Phone, "Phone (optional)", "phone", false); err != nil {
		return err
	}

	if req.Password == "" {
		p, err := readPassword(out, "Password")
		if errors.Is(err, errNonInteractive) {
			return fmt.Errorf("password is required in non-interactive mode (use --password)")
		}
		if err != nil {
			return err
		}
		confirm, err := readPassword(out, "Confirm password")
		if err != nil {
			return err
		}
		if p != confirm {
			return fmt.Errorf("passwords do not match")
		}
		req.Password = p
	}

	return withRuntime(cmd.Context(), load, cmd.ErrOrStderr(), func(rt *app.Runtime) error {
		user, err := rt.Session.Register(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		fmt.Fprintln(out, "✓ Account created!")
		fmt.Fprintf(out, "  User: %s (%s)\n", user.FullName(), user.Email)
		fmt.Fprintln(out, "Run 'secureguard login' to sign in.")
		return nil
	})
}
