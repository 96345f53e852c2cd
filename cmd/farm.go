// ABOUTME: Farm commands: list resources and perform game actions
// ABOUTME: Reads go through the cache; writes invalidate what they change

package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/markalston/novorio/internal/models"
	"github.com/markalston/novorio/internal/resources"
)

var (
	listTerrain  string
	listQuadrant string
	listItemType string

	actionTerrain  string
	actionQuadrant string
	actionPlanting string
	actionTool     string
	actionSlot     int

	terrainName     string
	terrainPosition string

	plantQuadrant string
	plantSpecies  string
	plantSlot     int

	itemQuantity int
	itemTarget   string
)

// listers maps a resource name to its loader and human formatter.
var listers = map[string]func(ctx context.Context, s *resources.Service) (any, [][]string, error){
	"terrains": func(ctx context.Context, s *resources.Service) (any, [][]string, error) {
		items, err := s.Terrains(ctx)
		rows := [][]string{{"ID", "NAME", "POSITION", "SOIL", "WATER", "SUN"}}
		for _, t := range items {
			rows = append(rows, []string{string(t.ID), t.Name, t.Position, num(t.SoilQuality), num(t.WaterLevel), num(t.Sunlight)})
		}
		return items, rows, err
	},
	"quadrants": func(ctx context.Context, s *resources.Service) (any, [][]string, error) {
		items, err := s.Quadrants(ctx, models.ID(listTerrain))
		rows := [][]string{{"ID", "POSITION", "SOIL", "WATER", "SUN", "SLOTS"}}
		for _, q := range items {
			rows = append(rows, []string{string(q.ID), q.Position, num(q.SoilQuality), num(q.WaterLevel), num(q.Sunlight), fmt.Sprint(len(q.Slots))})
		}
		return items, rows, err
	},
	"plantings": func(ctx context.Context, s *resources.Service) (any, [][]string, error) {
		items, err := s.Plantings(ctx, models.PlantingFilter{QuadrantID: models.ID(listQuadrant)})
		rows := [][]string{{"ID", "SPECIES", "STAGE", "HEALTH", "NEEDS"}}
		for _, p := range items {
			var needs []string
			if p.NeedsWater {
				needs = append(needs, "water")
			}
			if p.NeedsFertilizer {
				needs = append(needs, "fertilizer")
			}
			rows = append(rows, []string{string(p.ID), p.SpeciesName, p.GrowthStage, num(p.HealthPercentage) + "%", strings.Join(needs, ",")})
		}
		return items, rows, err
	},
	"species": func(ctx context.Context, s *resources.Service) (any, [][]string, error) {
		items, err := s.Species(ctx)
		rows := [][]string{{"ID", "NAME", "GERMINATION", "MATURITY"}}
		for _, sp := range items {
			rows = append(rows, []string{string(sp.ID), sp.Name, fmt.Sprintf("%dd", sp.GerminationDays), fmt.Sprintf("%dd", sp.MaturityDays)})
		}
		return items, rows, err
	},
	"tools": func(ctx context.Context, s *resources.Service) (any, [][]string, error) {
		items, err := s.Tools(ctx)
		rows := [][]string{{"ID", "TYPE", "DURABILITY", "EFFICIENCY"}}
		for _, t := range items {
			typeName := string(t.ToolTypeID)
			if t.ToolType != nil {
				typeName = t.ToolType.Name
			}
			rows = append(rows, []string{string(t.ID), typeName, fmt.Sprint(t.Durability), num(t.Efficiency)})
		}
		return items, rows, err
	},
	"tool-types": func(ctx context.Context, s *resources.Service) (any, [][]string, error) {
		items, err := s.ToolTypes(ctx)
		rows := [][]string{{"ID", "NAME", "DURABILITY", "COST"}}
		for _, t := range items {
			rows = append(rows, []string{string(t.ID), t.Name, fmt.Sprint(t.BaseDurability), fmt.Sprint(t.Cost)})
		}
		return items, rows, err
	},
	"inputs": func(ctx context.Context, s *resources.Service) (any, [][]string, error) {
		items, err := s.Inputs(ctx)
		rows := [][]string{{"ID", "TYPE", "QUANTITY"}}
		for _, in := range items {
			typeName := string(in.InputTypeID)
			if in.InputType != nil {
				typeName = in.InputType.Name
			}
			rows = append(rows, []string{string(in.ID), typeName, fmt.Sprint(in.Quantity)})
		}
		return items, rows, err
	},
	"input-types": func(ctx context.Context, s *resources.Service) (any, [][]string, error) {
		items, err := s.InputTypes(ctx)
		rows := [][]string{{"ID", "NAME", "EFFECT", "COST"}}
		for _, t := range items {
			rows = append(rows, []string{string(t.ID), t.Name, t.Effect, fmt.Sprint(t.Cost)})
		}
		return items, rows, err
	},
	"inventory": func(ctx context.Context, s *resources.Service) (any, [][]string, error) {
		items, err := s.Inventory(ctx, listItemType)
		rows := [][]string{{"ID", "NAME", "TYPE", "QUANTITY"}}
		for _, it := range items {
			rows = append(rows, []string{string(it.ID), it.Name, it.ItemType, fmt.Sprint(it.Quantity)})
		}
		return items, rows, err
	},
	"weather": func(ctx context.Context, s *resources.Service) (any, [][]string, error) {
		w, err := s.Weather(ctx)
		if err != nil {
			return nil, nil, err
		}
		rows := [][]string{{"DAY", "CONDITION", "MIN", "MAX", "RAIN"}}
		rows = append(rows, []string{"now", w.Condition, num(w.Temperature), num(w.Temperature), num(w.RainChance) + "%"})
		for _, f := range w.Forecast {
			rows = append(rows, []string{f.Day, f.Condition, num(f.MinTemp), num(f.MaxTemp), num(f.RainChance) + "%"})
		}
		return w, rows, nil
	},
}

// playerlessKinds can be listed without a current player.
var playerlessKinds = map[string]bool{
	"species": true, "tool-types": true, "input-types": true, "weather": true, "quadrants": true,
}

func listKinds() []string {
	kinds := make([]string, 0, len(listers))
	for k := range listers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

var listCmd = &cobra.Command{
	Use:       "list <resource>",
	Short:     "List game resources of the current player",
	Long:      "List game resources. Resources: " + strings.Join(listKinds(), ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: listKinds(),
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runList(ctx, w, args[0])
		})
	},
}

var actionCmd = &cobra.Command{
	Use:   "action <name>",
	Short: "Perform a game action (water, fertilize, harvest, ...)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req := models.ActionRequest{
			ActionName: args[0],
			TerrainID:  models.ID(actionTerrain),
			QuadrantID: models.ID(actionQuadrant),
			PlantingID: models.ID(actionPlanting),
			ToolKey:    actionTool,
		}
		if actionSlot >= 0 {
			req.SlotIndex = resources.SlotIndex(actionSlot)
		}
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runAction(ctx, w, req)
		})
	},
}

var terrainCreateCmd = &cobra.Command{
	Use:   "create-terrain",
	Short: "Create a terrain for the current player",
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runCreateTerrain(ctx, w, models.TerrainInput{Name: terrainName, Position: terrainPosition})
		})
	},
}

var plantCmd = &cobra.Command{
	Use:   "plant",
	Short: "Plant a species into a quadrant slot",
	Run: func(cmd *cobra.Command, args []string) {
		in := models.PlantingInput{QuadrantID: models.ID(plantQuadrant), SpeciesID: models.ID(plantSpecies), SlotIndex: plantSlot}
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runPlant(ctx, w, in)
		})
	},
}

var buyCmd = &cobra.Command{
	Use:       "buy <tool|input> <type-id>",
	Short:     "Buy a tool or inputs",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"tool", "input"},
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runBuy(ctx, w, args[0], models.ID(args[1]), itemQuantity)
		})
	},
}

var useCmd = &cobra.Command{
	Use:   "use <input|item> <id>",
	Short: "Apply an input or inventory item",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		use := models.ItemUse{TargetID: models.ID(itemTarget), Quantity: itemQuantity}
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runUse(ctx, w, args[0], models.ID(args[1]), use)
		})
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell <item-id>",
	Short: "Sell inventory items",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runWithSignals(func(ctx context.Context, w io.Writer) int {
			return runSell(ctx, w, models.ID(args[0]), itemQuantity)
		})
	},
}

func init() {
	listCmd.Flags().StringVar(&listTerrain, "terrain", "", "Terrain id (quadrants)")
	listCmd.Flags().StringVar(&listQuadrant, "quadrant", "", "Quadrant id (plantings)")
	listCmd.Flags().StringVar(&listItemType, "type", "", "Item type (inventory)")

	actionCmd.Flags().StringVar(&actionTerrain, "terrain", "", "Target terrain id")
	actionCmd.Flags().StringVar(&actionQuadrant, "quadrant", "", "Target quadrant id")
	actionCmd.Flags().StringVar(&actionPlanting, "planting", "", "Target planting id")
	actionCmd.Flags().StringVar(&actionTool, "tool", "", "Tool key")
	actionCmd.Flags().IntVar(&actionSlot, "slot", -1, "Target slot index")

	terrainCreateCmd.Flags().StringVar(&terrainName, "name", "", "Terrain name")
	terrainCreateCmd.Flags().StringVar(&terrainPosition, "position", "", "Terrain position")

	plantCmd.Flags().StringVar(&plantQuadrant, "quadrant", "", "Quadrant id")
	plantCmd.Flags().StringVar(&plantSpecies, "species", "", "Species id")
	plantCmd.Flags().IntVar(&plantSlot, "slot", 0, "Slot index")
	plantCmd.MarkFlagRequired("quadrant")
	plantCmd.MarkFlagRequired("species")

	for _, c := range []*cobra.Command{buyCmd, useCmd, sellCmd} {
		c.Flags().IntVar(&itemQuantity, "quantity", 1, "Quantity")
	}
	useCmd.Flags().StringVar(&itemTarget, "target", "", "Planting or quadrant id the item is applied to")

	rootCmd.AddCommand(listCmd, actionCmd, terrainCreateCmd, plantCmd, buyCmd, useCmd, sellCmd)
}

// runList prints one resource list and returns exit code
func runList(ctx context.Context, w io.Writer, kind string) int {
	lister, ok := listers[kind]
	if !ok {
		fmt.Fprintf(w, "Error: unknown resource %q (valid: %s)\n", kind, strings.Join(listKinds(), ", "))
		return exitError
	}

	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	if playerlessKinds[kind] {
		if !a.requireSession(w) {
			return exitRejected
		}
	} else if !a.awaitPlayer(ctx, w) {
		return exitRejected
	}

	data, rows, err := lister(ctx, a.resources)
	if err != nil {
		return reportError(w, err)
	}
	if IsJSONOutput() {
		printJSON(w, data)
		return exitOK
	}
	writeTable(w, rows)
	return exitOK
}

func writeTable(w io.Writer, rows [][]string) {
	if len(rows) <= 1 {
		fmt.Fprintln(w, "Nothing to show.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func num(f float64) string {
	return fmt.Sprintf("%.0f", f)
}

// runAction posts a game action and returns exit code
func runAction(ctx context.Context, w io.Writer, req models.ActionRequest) int {
	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	if !a.awaitPlayer(ctx, w) {
		return exitRejected
	}
	res, err := a.resources.Act(ctx, req)
	if err != nil {
		return reportError(w, err)
	}
	if IsJSONOutput() {
		printJSON(w, res)
		return exitOK
	}
	msg := res.Message
	if msg == "" {
		msg = "done"
	}
	fmt.Fprintf(w, "%s: %s\n", req.ActionName, msg)
	if !res.Success {
		return exitRejected
	}
	return exitOK
}

// mutate runs fn for the current player and prints its result
func mutate(ctx context.Context, w io.Writer, fn func(ctx context.Context, a *app) (any, string, error)) int {
	a, code := openApp(ctx, w)
	if a == nil {
		return code
	}
	defer a.Close()

	if !a.awaitPlayer(ctx, w) {
		return exitRejected
	}
	res, msg, err := fn(ctx, a)
	if err != nil {
		return reportError(w, err)
	}
	if IsJSONOutput() && res != nil {
		printJSON(w, res)
		return exitOK
	}
	fmt.Fprintln(w, msg)
	return exitOK
}

func runCreateTerrain(ctx context.Context, w io.Writer, in models.TerrainInput) int {
	return mutate(ctx, w, func(ctx context.Context, a *app) (any, string, error) {
		t, err := a.resources.CreateTerrain(ctx, in)
		if err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("Created terrain %s (%s)", t.Name, t.ID), nil
	})
}

func runPlant(ctx context.Context, w io.Writer, in models.PlantingInput) int {
	return mutate(ctx, w, func(ctx context.Context, a *app) (any, string, error) {
		p, err := a.resources.Plant(ctx, in)
		if err != nil {
			return nil, "", err
		}
		return p, fmt.Sprintf("Planted %s (%s)", p.SpeciesName, p.ID), nil
	})
}

func runBuy(ctx context.Context, w io.Writer, what string, typeID models.ID, quantity int) int {
	return mutate(ctx, w, func(ctx context.Context, a *app) (any, string, error) {
		switch what {
		case "tool":
			t, err := a.resources.BuyTool(ctx, typeID)
			if err != nil {
				return nil, "", err
			}
			return t, fmt.Sprintf("Bought tool %s", t.ID), nil
		case "input":
			in, err := a.resources.BuyInput(ctx, typeID, quantity)
			if err != nil {
				return nil, "", err
			}
			return in, fmt.Sprintf("Bought %d of input type %s", quantity, typeID), nil
		default:
			return nil, "", fmt.Errorf("can only buy a tool or an input, not %q", what)
		}
	})
}

func runUse(ctx context.Context, w io.Writer, what string, id models.ID, use models.ItemUse) int {
	return mutate(ctx, w, func(ctx context.Context, a *app) (any, string, error) {
		var err error
		switch what {
		case "input":
			err = a.resources.UseInput(ctx, id, use)
		case "item":
			err = a.resources.UseItem(ctx, id, use)
		default:
			err = fmt.Errorf("can only use an input or an item, not %q", what)
		}
		return nil, fmt.Sprintf("Used %s %s", what, id), err
	})
}

func runSell(ctx context.Context, w io.Writer, id models.ID, quantity int) int {
	return mutate(ctx, w, func(ctx context.Context, a *app) (any, string, error) {
		err := a.resources.SellItem(ctx, id, quantity)
		return nil, fmt.Sprintf("Sold %d of item %s", quantity, id), err
	})
}
