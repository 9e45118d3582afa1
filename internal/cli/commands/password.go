package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/secureguard/secureguard/internal/api"
	"github.com/secureguard/secureguard/internal/app"
	"github.com/secureguard/secureguard/internal/models"
)

// NewForgotPasswordCmd creates the forgot-password command
func NewForgotPasswordCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password <email>",
		Short: "Email a password reset code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			return withRuntime(cmd.Context(), load, cmd.ErrOrStderr(), func(rt *app.Runtime) error {
				result, err := rt.Client.SendResetOTP(cmd.Context(), args[0])
				if err != nil {
					return errors.New(api.Message(err, "Failed to send OTP"))
				}

				fmt.Fprintf(out, "✓ %s\n", result.Message)
				if result.DevelopmentOTP != "" {
					fmt.Fprintf(out, "  Development OTP: %s\n", result.DevelopmentOTP)
				}
				fmt.Fprintf(out, "Run 'secureguard reset-password --email %s --otp <code>' to choose a new password.\n", args[0])
				return nil
			})
		},
	}
}

// NewResetPasswordCmd creates the reset-password command
func NewResetPasswordCmd(load Loader) *cobra.Command {
	var req models.ResetPasswordRequest

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Choose a new password with an emailed reset code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResetPassword(cmd, load, req)
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.OTP, "otp", "", "6-digit reset code")
	cmd.Flags().StringVar(&req.NewPassword, "password", "", "New password (will prompt if not provided)")

	return cmd
}

func runResetPassword(cmd *cobra.Command, load Loader, req models.ResetPasswordRequest) error {
	out := cmd.OutOrStdout()

	if err := fill(&req.Email, "Email", "email", true); err != nil {
		return err
	}
	if err := fill(&req.OTP, "Reset code", "otp", true); err != nil {
		return err
	}

	if req.NewPassword == "" {
		p, err := readPassword(out, "New password")
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
		req.NewPassword = p
		req.ConfirmPassword = confirm
	} else {
		req.ConfirmPassword = req.NewPassword
	}

	return withRuntime(cmd.Context(), load, cmd.ErrOrStderr(), func(rt *app.Runtime) error {
		msg, err := rt.Client.ResetPassword(cmd.Context(), req)
		if err != nil {
			return errors.New(api.Message(err, "Failed to reset password"))
		}

		fmt.Fprintf(out, "✓ %s\n", msg)
		return nil
	})
}
