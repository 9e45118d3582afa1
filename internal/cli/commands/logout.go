package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secureguard/secureguard/internal/app"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), load, cmd.ErrOrStderr(), func(rt *app.Runtime) error {
				rt.Session.Logout(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
				return nil
			})
		},
	}
}
