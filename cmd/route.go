// ABOUTME: Route commands: evaluate guard decisions and serve a guarded proxy
// ABOUTME: Decisions use the local session and the current player's character

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/markalston/novorio/internal/config"
	"github.com/markalston/novorio/internal/guard"
)

var (
	routesFile    string
	serveAddr     string
	serveUpstream string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Check page access decisions",
}

var routeCheckCmd = &cobra.Command{
	Use:   "check <path>...",
	Short: "Show whether the current session may open each path",
	Long: `Show the access decision for each path given the current session.

Exit codes:
  0 - Every path is allowed
  1 - At least one path redirects
  2 - Error (configuration, connectivity)`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runRouteCheck(ctx, w, args)
		})
	},
}

var routeServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Proxy the game frontend, redirecting pages the session may not open",
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runRouteServe(ctx, w, serveAddr, serveUpstream)
		})
	},
}

func init() {
	routeCmd.PersistentFlags().StringVar(&routesFile, "routes", "", "YAML route table (overrides NOVORIO_ROUTES_FILE)")
	routeServeCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:3001", "Listen address")
	routeServeCmd.Flags().StringVar(&serveUpstream, "upstream", "http://localhost:3000", "Frontend to proxy to")
	routeCmd.AddCommand(routeCheckCmd, routeServeCmd)
	rootCmd.AddCommand(routeCmd)
}

// routeGuard returns the app's guard, or one built from --routes.
func (a *app) routeGuard() (*guard.Guard, error) {
	if routesFile == "" {
		return a.guard, nil
	}
	routes, err := config.LoadRoutes(routesFile)
	if err != nil {
		return nil, err
	}
	return guard.New(routes), nil
}

// decide resolves a decision for path with the current session.
func (a *app) decide(ctx context.Context, g *guard.Guard, path string) guard.Decision {
	authenticated := a.sessions.Snapshot().Authenticated()
	return g.Resolve(ctx, path, authenticated, a.players.Ready(), a.players.HasCharacter, a.cfg.FallbackTimeout)
}

type routeOutput struct {
	Path     string `json:"path"`
	Class    string `json:"class"`
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// runRouteCheck prints the decision for each path and returns exit code
func runRouteCheck(ctx context.Context, w io.Writer, paths []string) int {
	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	g, err := a.routeGuard()
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return exitError
	}

	results := make([]routeOutput, 0, len(paths))
	exitCode := exitOK
	for _, p := range paths {
		d := a.decide(ctx, g, p)
		out := routeOutput{Path: p, Class: g.Classify(p).String(), Allow: d.Allow}
		if d.Redirect != nil {
			out.Redirect = d.Redirect.URL()
			out.Reason = string(d.Redirect.Reason)
			exitCode = exitRejected
		}
		results = append(results, out)
	}

	if IsJSONOutput() {
		printJSON(w, results)
		return exitCode
	}
	for _, r := range results {
		if r.Allow {
			fmt.Fprintf(w, "✓ %-24s %s\n", r.Path, r.Class)
		} else {
			fmt.Fprintf(w, "✗ %-24s %s -> %s (%s)\n", r.Path, r.Class, r.Redirect, r.Reason)
		}
	}
	return exitCode
}

// guardedProxy forwards allowed requests to upstream and redirects the rest.
func (a *app) guardedProxy(g *guard.Guard, upstream *url.URL) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	decide := func(r *http.Request) guard.Decision {
		return a.decide(r.Context(), g, r.URL.Path)
	}
	return guard.Chain(proxy.ServeHTTP, guard.LogRequest, guard.Middleware(decide))
}

// runRouteServe serves the guarded proxy until ctx is cancelled
func runRouteServe(ctx context.Context, w io.Writer, addr, upstream string) int {
	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		fmt.Fprintf(w, "Error: invalid upstream URL %q\n", upstream)
		return exitError
	}

	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	g, err := a.routeGuard()
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return exitError
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.guardedProxy(g, target),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	fmt.Fprintf(w, "Serving %s on http://%s\n", upstream, addr)
	slog.Info("Guarded proxy started", "addr", addr, "upstream", upstream)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(w, "Error: %v\n", err)
			return exitError
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Proxy shutdown failed", "error", err)
		}
	}
	return exitOK
}
