// ABOUTME: Watch command running the live farm dashboard
// ABOUTME: Optionally exposes cache and API metrics for Prometheus

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/markalston/novorio/internal/config"
	"github.com/markalston/novorio/internal/logger"
	"github.com/markalston/novorio/internal/metrics"
	"github.com/markalston/novorio/internal/tui"
)

var metricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of the current player's farm",
	Long: `Live dashboard of the current player's farm. Entries refresh as they go
stale and the weather is polled at its stale window. Logs go to
<state dir>/debug.log while the dashboard runs.`,
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runWatch(ctx, w, metricsAddr)
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	rootCmd.AddCommand(watchCmd)
}

// runWatch runs the dashboard until the user quits and returns exit code
func runWatch(ctx context.Context, w io.Writer, metricsAddr string) int {
	var closeLog func()
	a, code := openAppLogging(ctx, w, func(cfg *config.Config) {
		fn, err := logger.InitFile(cfg.StateDir)
		if err != nil {
			logger.Init(io.Discard)
			return
		}
		closeLog = fn
	})
	if closeLog != nil {
		defer closeLog()
	}
	if a == nil {
		return code
	}
	defer a.Close()

	if !a.awaitPlayer(ctx, w) {
		return exitRejected
	}

	if metricsAddr != "" {
		stop := serveMetrics(a, metricsAddr)
		defer stop()
	}

	app := tui.New(a.cache, a.resources, a.players, a.cfg.Stale.Weather)
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

// serveMetrics exposes the app's registry and returns a stop function.
func serveMetrics(a *app, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler(a.registry))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
