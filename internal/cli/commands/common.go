package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/secureguard/secureguard/internal/app"
	"github.com/secureguard/secureguard/internal/session"
)

// Loader builds the runtime for one command invocation. nav is told when the
// session is forcibly ended while the command runs.
type Loader func(ctx context.Context, nav session.Navigator) (*app.Runtime, error)

// DefaultLoader builds the runtime from the environment, logging to logOut
func DefaultLoader(logOut io.Writer) Loader {
	return func(ctx context.Context, nav session.Navigator) (*app.Runtime, error) {
		return app.Load(ctx, logOut, nav)
	}
}

// loginHint is the CLI's way of navigating to the login page
type loginHint struct {
	out io.Writer
}

func (h loginHint) NavigateToLogin(reason string) {
	if reason == session.ReasonExpired {
		fmt.Fprintln(h.out, "Your session has expired. Run 'secureguard login' to sign in again.")
		return
	}
	fmt.Fprintln(h.out, "Run 'secureguard login' to sign in.")
}

// withRuntime loads the runtime, runs fn and closes the runtime. Forced
// session ends are reported on errOut.
func withRuntime(ctx context.Context, load Loader, errOut io.Writer, fn func(*app.Runtime) error) error {
	rt, err := load(ctx, loginHint{out: errOut})
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(rt)
}

// requireSession fails when nobody is logged in
func requireSession(rt *app.Runtime) error {
	if !rt.Session.Snapshot().Authenticated() {
		return fmt.Errorf("not logged in. Please run 'secureguard login' first")
	}
	return nil
}
