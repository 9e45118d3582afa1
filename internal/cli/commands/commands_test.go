package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureguard/secureguard/internal/app"
	"github.com/secureguard/secureguard/internal/config"
	"github.com/secureguard/secureguard/internal/metrics"
	"github.com/secureguard/secureguard/internal/mockapi"
	"github.com/secureguard/secureguard/internal/session"
	"github.com/secureguard/secureguard/internal/storage"
)

// testEnv shares one storage backend between command invocations, like the
// keyring does between real CLI runs.
type testEnv struct {
	backend *mockapi.Backend
	storage *storage.Memory
	loader  Loader
}

func setupTestEnvironment(t *testing.T, devMode bool) *testEnv {
	t.Helper()

	backend, srv := mockapi.Start()
	t.Cleanup(srv.Close)

	t.Setenv("SECUREGUARD_EMAIL", "")
	t.Setenv("SECUREGUARD_PASSWORD", "")

	mem := storage.NewMemory()
	m := metrics.New(prometheus.NewRegistry())
	cfg := &config.Config{
		API:     config.APIConfig{BaseURL: srv.URL, DevMode: devMode},
		Storage: config.StorageConfig{Backend: "memory"},
	}

	return &testEnv{
		backend: backend,
		storage: mem,
		loader: func(ctx context.Context, nav session.Navigator) (*app.Runtime, error) {
			return app.New(ctx, cfg, mem, zerolog.Nop(), m, nav)
		},
	}
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLogin_Success(t *testing.T) {
	env := setupTestEnvironment(t, false)

	out, err := run(t, NewLoginCmd(env.loader), "--email", "admin@glufer.com", "--password", "admin123")
	require.NoError(t, err)
	assert.Contains(t, out, "Login successful")
	assert.Contains(t, out, "Role: admin")

	// Session is persisted for the next invocation
	out, err = run(t, NewWhoamiCmd(env.loader))
	require.NoError(t, err)
	assert.Contains(t, out, "admin@glufer.com")
	assert.Contains(t, out, "admin:system")
}

func TestLogin_FromEnvironment(t *testing.T) {
	env := setupTestEnvironment(t, false)
	t.Setenv("SECUREGUARD_EMAIL", "user@glufer.com")
	t.Setenv("SECUREGUARD_PASSWORD", "user123")

	out, err := run(t, NewLoginCmd(env.loader))
	require.NoError(t, err)
	assert.Contains(t, out, "Role: user")
}

func TestLogin_Failures(t *testing.T) {
	env := setupTestEnvironment(t, false)

	_, err := run(t, NewLoginCmd(env.loader), "--password", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email is required")

	_, err = run(t, NewLoginCmd(env.loader), "--email", "user@glufer.com", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "login failed: Invalid email or password", err.Error())
	assert.Equal(t, 0, env.storage.Len())
}

func TestLogout(t *testing.T) {
	env := setupTestEnvironment(t, false)

	_, err := run(t, NewLoginCmd(env.loader), "--email", "user@glufer.com", "--password", "user123")
	require.NoError(t, err)
	require.NotZero(t, env.storage.Len())

	out, err := run(t, NewLogoutCmd(env.loader))
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")
	assert.Equal(t, 0, env.storage.Len())

	_, err = run(t, NewWhoamiCmd(env.loader))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestWhoami_RemoteRefreshesExpiredToken(t *testing.T) {
	env := setupTestEnvironment(t, false)

	_, err := run(t, NewLoginCmd(env.loader), "--email", "bouncer@glufer.com", "--password", "bouncer123")
	require.NoError(t, err)

	env.backend.ExpireAccessTokens()

	out, err := run(t, NewWhoamiCmd(env.loader), "--remote", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"email": "bouncer@glufer.com"`)
	assert.Equal(t, 1, env.backend.Calls("/api/auth/refresh"))
}

func TestWhoami_RefreshFailureEndsSession(t *testing.T) {
	env := setupTestEnvironment(t, false)

	_, err := run(t, NewLoginCmd(env.loader), "--email", "user@glufer.com", "--password", "user123")
	require.NoError(t, err)

	env.backend.ExpireAccessTokens()
	env.backend.FailRefresh(true)

	out, err := run(t, NewWhoamiCmd(env.loader), "--remote")
	require.Error(t, err)
	assert.Equal(t, 0, env.storage.Len())
	assert.Contains(t, out, "Your session has expired. Run 'secureguard login'")
}

func TestRegister(t *testing.T) {
	env := setupTestEnvironment(t, false)

	out, err := run(t, NewRegisterCmd(env.loader),
		"--email", "new@glufer.com",
		"--first-name", "New",
		"--last-name", "Person",
		"--phone", "555-0100",
		"--password", "secret1",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Account created")
	assert.Equal(t, 0, env.storage.Len(), "registering does not sign in")

	_, err = run(t, NewLoginCmd(env.loader), "--email", "new@glufer.com", "--password", "secret1")
	require.NoError(t, err)
}

func TestRegister_ValidationError(t *testing.T) {
	env := setupTestEnvironment(t, false)

	_, err := run(t, NewRegisterCmd(env.loader),
		"--email", "not-an-email",
		"--first-name", "New",
		"--last-name", "Person",
		"--password", "secret1",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Email must be a valid email address")
	assert.Equal(t, 0, env.backend.Calls("/api/auth/register"))
}

func TestPasswordReset(t *testing.T) {
	env := setupTestEnvironment(t, true)

	out, err := run(t, NewForgotPasswordCmd(env.loader), "user@glufer.com")
	require.NoError(t, err)
	otp := env.backend.OTP("user@glufer.com")
	assert.Contains(t, out, "Development OTP: "+otp)

	out, err = run(t, NewResetPasswordCmd(env.loader),
		"--email", "user@glufer.com", "--otp", otp, "--password", "changed1")
	require.NoError(t, err)
	assert.Contains(t, out, "Password reset successfully")

	_, err = run(t, NewLoginCmd(env.loader), "--email", "user@glufer.com", "--password", "changed1")
	require.NoError(t, err)
}

func TestForgotPassword_HidesOTPOutsideDevMode(t *testing.T) {
	env := setupTestEnvironment(t, false)

	out, err := run(t, NewForgotPasswordCmd(env.loader), "user@glufer.com")
	require.NoError(t, err)
	assert.NotContains(t, out, "Development OTP")

	_, err = run(t, NewForgotPasswordCmd(env.loader), "ghost@glufer.com")
	require.Error(t, err)
	assert.Equal(t, "No account found with this email address", err.Error())
}

func TestProbe_DefaultAccounts(t *testing.T) {
	env := setupTestEnvironment(t, false)

	out, err := run(t, NewProbeCmd(env.loader))
	require.NoError(t, err)
	assert.Contains(t, out, "admin@glufer.com")
	assert.Contains(t, out, "bouncer@glufer.com")
	assert.Contains(t, out, "user@glufer.com")
	assert.Equal(t, 3, env.backend.Calls("/api/auth/login"))
	assert.Equal(t, 0, env.storage.Len(), "probes never touch the saved session")
}

func TestProbe_FileWithFailures(t *testing.T) {
	env := setupTestEnvironment(t, false)

	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`accounts:
  - email: admin@glufer.com
    password: admin123
    expect_role: admin
  - email: user@glufer.com
    password: user123
    expect_role: admin
  - email: bouncer@glufer.com
    password: wrong
`), 0o600))

	out, err := run(t, NewProbeCmd(env.loader), "--file", path)
	require.Error(t, err)
	assert.Equal(t, "2 of 3 probes failed", err.Error())
	assert.Contains(t, out, "expected role admin, got user")
	assert.Contains(t, out, "Invalid email or password")
}

func TestProbe_BadFile(t *testing.T) {
	env := setupTestEnvironment(t, false)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts: []\n"), 0o600))

	_, err := run(t, NewProbeCmd(env.loader), "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lists no accounts")
}

func TestVersion(t *testing.T) {
	out, err := run(t, NewVersionCmd("1.2.3"), "--short")
	require.NoError(t, err)
	assert.Equal(t, "secureguard version 1.2.3\n", out)

	out, err = run(t, NewVersionCmd("1.2.3"))
	require.NoError(t, err)
	assert.Contains(t, out, "secureguard version 1.2.3")
	assert.Greater(t, len(out), len("secureguard version 1.2.3\n"))
}

func TestBrowserAddr(t *testing.T) {
	assert.Equal(t, "localhost:3000", browserAddr(":3000"))
	assert.Equal(t, "localhost:3000", browserAddr("0.0.0.0:3000"))
	assert.Equal(t, "127.0.0.1:3000", browserAddr("127.0.0.1:3000"))
}
