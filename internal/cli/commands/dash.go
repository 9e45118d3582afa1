package commands

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/secureguard/secureguard/internal/dashboard"
)

// NewDashCmd creates the dash command
func NewDashCmd(load Loader, version string) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "dash",
		Short: "Serve the local dashboard and open it in the browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Forced logouts go to the browser, not the terminal
			nav := dashboard.NewNavigator()
			rt, err := load(cmd.Context(), nav)
			if err != nil {
				return err
			}
			defer rt.Close()

			srv := dashboard.New(rt.Config.Dashboard, rt.Session, rt.Logger,
				dashboard.WithVersion(version),
				dashboard.WithNavigator(nav),
			)

			dashboardURL := "http://" + browserAddr(rt.Config.Dashboard.Addr)
			fmt.Fprintf(cmd.OutOrStdout(), "Dashboard: %s\n", dashboardURL)

			if !noBrowser {
				// Give the listener a moment before the browser connects
				time.AfterFunc(300*time.Millisecond, func() {
					if err := openBrowser(dashboardURL); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Failed to open browser: %v\nPlease visit: %s\n", err, dashboardURL)
					}
				})
			}

			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Don't open the browser")

	return cmd
}

// browserAddr turns a listen address into something a browser can open
func browserAddr(addr string) string {
	switch {
	case strings.HasPrefix(addr, ":"):
		return "localhost" + addr
	case strings.HasPrefix(addr, "0.0.0.0:"):
		return "localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	default:
		return addr
	}
}

// openBrowser opens the URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
