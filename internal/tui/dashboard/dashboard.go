// ABOUTME: Dashboard component displaying the current player's farm
// ABOUTME: Renders player, weather, terrains and plantings with their cache states

package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/markalston/novorio/internal/cache"
	"github.com/markalston/novorio/internal/models"
	"github.com/markalston/novorio/internal/tui/styles"
)

// Section names, one per observed resource.
const (
	SectionPlayer    = "player"
	SectionWeather   = "weather"
	SectionTerrains  = "terrains"
	SectionPlantings = "plantings"
)

// maxRows bounds the terrain and planting lists.
const maxRows = 8

// Dashboard displays the farm of the current player
type Dashboard struct {
	player    *models.Player
	weather   *models.Weather
	terrains  []models.Terrain
	plantings []models.Planting
	states    map[string]cache.State
	errs      map[string]error
	width     int
	height    int
}

// New creates an empty dashboard
func New(width, height int) *Dashboard {
	return &Dashboard{
		states: make(map[string]cache.State),
		errs:   make(map[string]error),
		width:  width,
		height: height,
	}
}

// Apply records a cache entry snapshot for section.
func (d *Dashboard) Apply(section string, e cache.Entry) {
	d.states[section] = e.State
	d.errs[section] = e.Err

	switch v := e.Data.(type) {
	case *models.Player:
		d.player = v
	case *models.Weather:
		d.weather = v
	case []models.Terrain:
		d.terrains = v
	case []models.Planting:
		d.plantings = v
	}
}

// SetSize updates the dashboard dimensions
func (d *Dashboard) SetSize(width, height int) {
	d.width = width
	d.height = height
}

// View renders the dashboard
func (d *Dashboard) View() string {
	if d.player == nil && len(d.states) == 0 {
		return styles.Panel.Width(d.width).Render("Loading farm data...")
	}

	var sb strings.Builder
	sb.WriteString(d.header())
	sb.WriteString("\n")

	weather := d.weatherView()
	terrains := d.terrainsView()
	half := d.width/2 - 2
	if half < 30 {
		sb.WriteString(weather + "\n" + terrains)
	} else {
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			styles.Panel.Width(half).Render(weather),
			styles.Panel.Width(half).Render(terrains),
		))
	}
	sb.WriteString("\n")
	sb.WriteString(d.plantingsView())

	return lipgloss.NewStyle().
		Width(d.width).
		MaxHeight(d.height).
		Render(sb.String())
}

func (d *Dashboard) sectionTitle(name, section string) string {
	title := styles.Title.UnsetMarginBottom().Render(name) + " " + styles.StateBadge(d.states[section])
	if err := d.errs[section]; err != nil {
		title += "\n" + styles.StatusCritical.Render(err.Error())
	}
	return title + "\n"
}

func (d *Dashboard) header() string {
	title := d.sectionTitle("Novo Rio", SectionPlayer)
	if d.player == nil {
		return title
	}
	p := d.player
	return title + fmt.Sprintf("%s  %s %d  %s %d  %s %d  %s %d\n",
		styles.ValueStyle.Render(p.Name),
		styles.Subtitle.Render("level"), p.Level,
		styles.Subtitle.Render("xp"), p.Experience,
		styles.Subtitle.Render("coins"), p.Coins,
		styles.Subtitle.Render("aura"), p.Aura,
	)
}

func (d *Dashboard) weatherView() string {
	var sb strings.Builder
	sb.WriteString(d.sectionTitle("Weather", SectionWeather))
	w := d.weather
	if w == nil {
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("%s  %.0f°C  %.0f%% humidity  %.0f%% rain\n",
		styles.ValueStyle.Render(w.Condition), w.Temperature, w.Humidity, w.RainChance))
	if w.Description != "" {
		sb.WriteString(styles.Subtitle.Render(w.Description) + "\n")
	}
	for i, f := range w.Forecast {
		if i == 3 {
			break
		}
		sb.WriteString(fmt.Sprintf("  %-10s %-10s %.0f/%.0f°C\n", f.Day, f.Condition, f.MinTemp, f.MaxTemp))
	}
	return sb.String()
}

func (d *Dashboard) terrainsView() string {
	var sb strings.Builder
	sb.WriteString(d.sectionTitle(fmt.Sprintf("Terrains (%d)", len(d.terrains)), SectionTerrains))
	for i, t := range d.terrains {
		if i == maxRows {
			sb.WriteString(styles.Subtitle.Render(fmt.Sprintf("  ... %d more", len(d.terrains)-maxRows)) + "\n")
			break
		}
		sb.WriteString(fmt.Sprintf("  %-16s soil %.0f  water %.0f  sun %.0f\n", t.Name, t.SoilQuality, t.WaterLevel, t.Sunlight))
	}
	return sb.String()
}

func (d *Dashboard) plantingsView() string {
	var sb strings.Builder
	sb.WriteString(d.sectionTitle(fmt.Sprintf("Plantings (%d)", len(d.plantings)), SectionPlantings))
	for i, p := range d.plantings {
		if i == maxRows {
			sb.WriteString(styles.Subtitle.Render(fmt.Sprintf("  ... %d more", len(d.plantings)-maxRows)) + "\n")
			break
		}
		name := p.SpeciesName
		if name == "" {
			name = "#" + string(p.ID)
		}
		var needs []string
		if p.NeedsWater {
			needs = append(needs, "water")
		}
		if p.NeedsFertilizer {
			needs = append(needs, "fertilizer")
		}
		line := fmt.Sprintf("  %-14s %-10s %s %3.0f%%", name, p.GrowthStage, styles.HealthBar(p.HealthPercentage, 10), p.HealthPercentage)
		if len(needs) > 0 {
			line += " " + styles.StatusWarning.Render("needs "+strings.Join(needs, ", "))
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}
