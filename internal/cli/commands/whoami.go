package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secureguard/secureguard/internal/app"
	"github.com/secureguard/secureguard/internal/models"
)

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(load Loader) *cobra.Command {
	var remote, asJSON bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), load, cmd.ErrOrStderr(), func(rt *app.Runtime) error {
				if err := requireSession(rt); err != nil {
					return err
				}

				user := rt.Session.User()
				if remote {
					fresh, err := rt.Session.CurrentProfile(cmd.Context())
					if err != nil {
						return fmt.Errorf("failed to fetch profile: %w", err)
					}
					user = fresh
				}

				return printUser(cmd, user, asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Fetch the profile from the server instead of the saved session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func printUser(cmd *cobra.Command, user *models.UserProfile, asJSON bool) error {
	out := cmd.OutOrStdout()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(user)
	}

	fmt.Fprintf(out, "User:        %s (%s)\n", user.FullName(), user.Email)
	fmt.Fprintf(out, "Role:        %s\n", user.Role)
	if len(user.Permissions) > 0 {
		fmt.Fprintf(out, "Permissions: %s\n", strings.Join(user.Permissions, ", "))
	}
	fmt.Fprintf(out, "Verified:    %t\n", user.IsVerified)
	return nil
}
