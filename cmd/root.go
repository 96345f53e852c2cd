// ABOUTME: Root command for the novorio CLI
// ABOUTME: Handles global flags and configuration overrides

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markalston/novorio/internal/config"
)

var (
	apiURL     string
	jsonOutput bool
	stateDir   string
	ephemeral  bool
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "novorio",
	Short: "Command-line client for the Novo Rio farming game",
	Long: `novorio is a command-line client for the Novo Rio game backend.

It keeps a login session between runs, tracks the current player, reads game
resources through a local cache and performs farm actions.

Environment Variables:
  NOVORIO_API_URL          Backend API URL (default: http://localhost:8000)
  NOVORIO_STATE_DIR        Session and log directory (default: ~/.config/novorio)
  NOVORIO_SESSION_BACKEND  file, redis or memory (default: file)
  LOG_LEVEL                debug, info, warn, error (default: warn)`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend API URL (overrides NOVORIO_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-readable text")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Session directory (overrides NOVORIO_STATE_DIR)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep the session in memory for this run only")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.APIBaseURL = apiURL
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if ephemeral {
		cfg.SessionBackend = config.BackendMemory
	}
	return cfg, nil
}

// IsJSONOutput returns whether JSON output is requested
func IsJSONOutput() bool {
	return jsonOutput
}

// runWithSignals runs fn with a context cancelled by SIGINT/SIGTERM and
// exits with its code.
func runWithSignals(fn func(ctx context.Context, w io.Writer) int) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := fn(ctx, os.Stdout)
	cancel()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// printJSON writes v as indented JSON
func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}
