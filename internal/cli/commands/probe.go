package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/secureguard/secureguard/internal/app"
	"github.com/secureguard/secureguard/internal/storage"
)

// probeAccount is one login to try
type probeAccount struct {
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	ExpectRole string `yaml:"expect_role"`
}

type probeFile struct {
	Accounts []probeAccount `yaml:"accounts"`
}

// defaultProbeAccounts are the development accounts seeded by the backend
var defaultProbeAccounts = []probeAccount{
	{Email: "admin@glufer.com", Password: "admin123", ExpectRole: "admin"},
	{Email: "bouncer@glufer.com", Password: "bouncer123", ExpectRole: "bouncer"},
	{Email: "user@glufer.com", Password: "user123", ExpectRole: "user"},
}

type probeResult struct {
	Account  probeAccount
	Role     string
	Duration time.Duration
	Err      error
}

// NewProbeCmd creates the probe command
func NewProbeCmd(load Loader) *cobra.Command {
	var file string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that a set of accounts can sign in",
		Long: `Sign in with each account concurrently, verify its role and fetch its
profile, then sign out again. Every probe uses its own in-memory session, so
the saved session is never touched.

Accounts come from a YAML file:

  accounts:
    - email: admin@glufer.com
      password: admin123
      expect_role: admin

Without --file the backend's development accounts are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts := defaultProbeAccounts
			if file != "" {
				loaded, err := loadProbeFile(file)
				if err != nil {
					return err
				}
				accounts = loaded
			}
			return runProbe(cmd, load, accounts, concurrency)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with accounts to probe")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum concurrent logins")

	return cmd
}

func loadProbeFile(path string) ([]probeAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read probe file: %w", err)
	}

	var pf probeFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse probe file: %w", err)
	}
	if len(pf.Accounts) == 0 {
		return nil, fmt.Errorf("probe file %s lists no accounts", path)
	}
	return pf.Accounts, nil
}

func runProbe(cmd *cobra.Command, load Loader, accounts []probeAccount, concurrency int) error {
	return withRuntime(cmd.Context(), load, cmd.ErrOrStderr(), func(rt *app.Runtime) error {
		results := make([]probeResult, len(accounts))

		g, ctx := errgroup.WithContext(cmd.Context())
		if concurrency > 0 {
			g.SetLimit(concurrency)
		}

		for i, acct := range accounts {
			i, acct := i, acct
			g.Go(func() error {
				results[i] = probeOne(ctx, rt, acct)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		failed := printProbeResults(cmd, results)
		if failed > 0 {
			return fmt.Errorf("%d of %d probes failed", failed, len(results))
		}
		return nil
	})
}

// probeOne runs a full login, profile and logout cycle on an isolated session
func probeOne(ctx context.Context, rt *app.Runtime, acct probeAccount) probeResult {
	start := time.Now()
	result := probeResult{Account: acct}

	isolated, err := app.New(ctx, rt.Config, storage.NewMemory(), rt.Logger, rt.Metrics, nil)
	if err != nil {
		result.Err = err
		return result
	}
	defer isolated.Close()

	user, err := isolated.Session.Login(ctx, acct.Email, acct.Password)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}
	result.Role = user.Role

	switch {
	case acct.ExpectRole != "" && !isolated.Session.HasRole(acct.ExpectRole):
		result.Err = fmt.Errorf("expected role %s, got %s", acct.ExpectRole, user.Role)
	default:
		if _, err := isolated.Session.CurrentProfile(ctx); err != nil {
			result.Err = err
		}
	}

	isolated.Session.Logout(ctx)
	result.Duration = time.Since(start)
	return result
}

func printProbeResults(cmd *cobra.Command, results []probeResult) int {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tROLE\tRESULT\tDURATION")

	failed := 0
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "FAIL: " + r.Err.Error()
			failed++
		}
		role := r.Role
		if role == "" {
			role = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Account.Email, role, status, r.Duration.Round(time.Millisecond))
	}
	w.Flush()

	return failed
}
