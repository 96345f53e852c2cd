// ABOUTME: Session commands: login, register, logout and whoami
// ABOUTME: Credentials come from flags or an interactive form

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/markalston/novorio/internal/guard"
	"github.com/markalston/novorio/internal/models"
	"github.com/markalston/novorio/internal/session"
	"github.com/markalston/novorio/internal/tui/styles"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and keep the session for later commands",
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runLogin(ctx, w, loginEmail, loginPassword)
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in",
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runRegister(ctx, w, loginEmail, loginPassword)
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the stored token",
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(runLogout)
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user after re-validating the token",
	Long: `Show the logged-in user. The stored token is re-validated against the
backend; an expired or rejected token ends the session.

Exit codes:
  0 - Logged in
  1 - Not logged in, or the session was rejected
  2 - Error (configuration, connectivity)`,
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(runWhoami)
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&loginEmail, "email", "", "Account email (prompted when omitted)")
		c.Flags().StringVar(&loginPassword, "password", "", "Account password (prompted when omitted)")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(logoutCmd, whoamiCmd)
}

// promptCredentials asks for whatever is missing. Tests replace it.
var promptCredentials = func(title string, email, password *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(email).
				Validate(requireValue("email")),
			huh.NewInput().
				Title("Senha").
				EchoMode(huh.EchoModePassword).
				Value(password).
				Validate(requireValue("senha")),
		).Title(title),
	).WithTheme(styles.FormTheme())
	return form.Run()
}

func requireValue(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s é obrigatório", name)
		}
		return nil
	}
}

func credentials(title, email, password string) (string, string, error) {
	if email != "" && password != "" {
		return email, password, nil
	}
	if err := promptCredentials(title, &email, &password); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(email), password, nil
}

type authOutput struct {
	Email    string    `json:"email"`
	UserID   models.ID `json:"user_id"`
	PlayerID models.ID `json:"player_id,omitempty"`
}

// runLogin logs in and returns exit code
func runLogin(ctx context.Context, w io.Writer, email, password string) int {
	email, password, err := credentials("Novo Rio - Login", email, password)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return exitError
	}

	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	user, err := a.sessions.Login(ctx, email, password)
	if err != nil {
		return reportAuthError(w, a.sessions.Snapshot(), err)
	}
	return a.reportLoggedIn(ctx, w, user)
}

// runRegister creates an account and returns exit code
func runRegister(ctx context.Context, w io.Writer, email, password string) int {
	email, password, err := credentials("Novo Rio - Criar conta", email, password)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return exitError
	}

	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	user, err := a.sessions.Register(ctx, email, password)
	if err != nil {
		return reportAuthError(w, a.sessions.Snapshot(), err)
	}
	return a.reportLoggedIn(ctx, w, user)
}

func reportAuthError(w io.Writer, snap session.Snapshot, err error) int {
	msg := snap.ErrorMessage()
	if msg == "" {
		msg = err.Error()
	}
	fmt.Fprintf(w, "Error: %s\n", msg)

	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		for field, problem := range authErr.Fields {
			fmt.Fprintf(w, "  %s: %s\n", field, problem)
		}
	}
	if errors.Is(err, session.ErrNetwork) {
		return exitError
	}
	return exitRejected
}

// reportLoggedIn prints the user, waiting briefly for the player lookup.
func (a *app) reportLoggedIn(ctx context.Context, w io.Writer, user *models.User) int {
	if err := guard.AwaitWithFallback(ctx, a.players.Ready(), a.cfg.FallbackTimeout); err != nil {
		slog.Debug("Player not resolved before reporting login", "error", err)
	}

	out := authOutput{Email: user.Email, UserID: user.ID, PlayerID: a.players.CurrentID()}
	if IsJSONOutput() {
		printJSON(w, out)
		return exitOK
	}
	fmt.Fprintf(w, "Logged in as %s\n", out.Email)
	if out.PlayerID != "" {
		fmt.Fprintf(w, "Player:    %s\n", out.PlayerID)
	}
	return exitOK
}

// runLogout ends the session and returns exit code
func runLogout(ctx context.Context, w io.Writer) int {
	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	wasLoggedIn := a.sessions.Snapshot().Authenticated()
	a.sessions.Logout()
	if wasLoggedIn {
		fmt.Fprintln(w, "Logged out")
	} else {
		fmt.Fprintln(w, "Not logged in")
	}
	return exitOK
}

type whoamiOutput struct {
	State     string       `json:"state"`
	User      *models.User `json:"user,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// runWhoami re-validates the stored session and returns exit code
func runWhoami(ctx context.Context, w io.Writer) int {
	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	snap := a.sessions.Snapshot()
	if snap.Authenticated() {
		snap = a.sessions.RefreshUser(ctx)
	}

	out := whoamiOutput{State: snap.State.String(), User: snap.User, Error: snap.ErrorMessage()}
	if snap.Session != nil && !snap.Session.ExpiresAt.IsZero() {
		out.ExpiresAt = &snap.Session.ExpiresAt
	}

	if IsJSONOutput() {
		printJSON(w, out)
	} else {
		fmt.Fprintln(w, formatWhoamiHuman(out))
	}

	switch {
	case snap.Authenticated():
		return exitOK
	case errors.Is(snap.Err, session.ErrNetwork):
		return exitError
	default:
		return exitRejected
	}
}

func formatWhoamiHuman(out whoamiOutput) string {
	if out.User == nil {
		msg := "Not logged in."
		if out.Error != "" {
			msg = out.Error
		}
		return msg
	}

	s := fmt.Sprintf("Email:    %s\nUser:     %s", out.User.Email, out.User.ID)
	if out.User.Username != "" {
		s += fmt.Sprintf("\nUsername: %s", out.User.Username)
	}
	if out.User.PlayerID != "" {
		s += fmt.Sprintf("\nPlayer:   %s", out.User.PlayerID)
	}
	if out.ExpiresAt != nil {
		s += fmt.Sprintf("\nExpires:  %s", out.ExpiresAt.Local().Format(time.RFC1123))
	}
	return s
}
