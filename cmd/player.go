// ABOUTME: Player commands: show the current player and select another
// ABOUTME: The selection persists for later runs of the same session

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markalston/novorio/internal/models"
)

var playerCmd = &cobra.Command{
	Use:   "player",
	Short: "Show or select the current player",
}

var playerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current player",
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(runPlayerShow)
	},
}

var playerUseCmd = &cobra.Command{
	Use:   "use <player-id>",
	Short: "Select the player used by farm commands",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runPlayerUse(ctx, w, models.ID(args[0]))
		})
	},
}

func init() {
	playerCmd.AddCommand(playerShowCmd, playerUseCmd)
	rootCmd.AddCommand(playerCmd)
}

type playerOutput struct {
	Player       *models.Player        `json:"player"`
	HasCharacter bool                  `json:"has_character"`
	Profile      *models.PlayerProfile `json:"profile,omitempty"`
}

// runPlayerShow prints the current player and returns exit code
func runPlayerShow(ctx context.Context, w io.Writer) int {
	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	if !a.awaitPlayer(ctx, w) {
		return exitRejected
	}

	snap := a.players.Snapshot()
	p := snap.Player
	if p == nil {
		var err error
		if p, err = a.players.LoadPlayer(ctx, snap.ID); err != nil {
			return reportError(w, err)
		}
	}

	out := playerOutput{Player: p}
	hasCharacter, err := a.players.HasCharacter(ctx)
	if err != nil {
		return reportError(w, err)
	}
	out.HasCharacter = hasCharacter
	if profile, err := a.players.Profile(ctx); err == nil {
		out.Profile = profile
	}

	if IsJSONOutput() {
		printJSON(w, out)
	} else {
		fmt.Fprintln(w, formatPlayerHuman(out))
	}
	return exitOK
}

func formatPlayerHuman(out playerOutput) string {
	p := out.Player
	character := "yes"
	if !out.HasCharacter {
		character = "no (create one in the game)"
	}
	s := fmt.Sprintf(`Player:     %s (%s)
Level:      %d
Experience: %d
Coins:      %d
Aura:       %d
Character:  %s`,
		p.Name, p.ID,
		p.Level,
		p.Experience,
		p.Coins,
		p.Aura,
		character)
	if out.Profile != nil {
		s += fmt.Sprintf("\nHarvests:   %d\nDays:       %d", out.Profile.Harvests, out.Profile.DaysPlayed)
	}
	return s
}

// runPlayerUse selects a player and returns exit code
func runPlayerUse(ctx context.Context, w io.Writer, id models.ID) int {
	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	if !a.requireSession(w) {
		return exitRejected
	}
	if err := a.players.SetCurrentID(ctx, id); err != nil {
		return reportError(w, err)
	}
	p, err := a.players.LoadPlayer(ctx, id)
	if err != nil {
		return reportError(w, err)
	}
	fmt.Fprintf(w, "Now playing as %s (%s)\n", p.Name, p.ID)
	return exitOK
}
