// ABOUTME: Root bubbletea model for the live farm dashboard
// ABOUTME: Observes cache entries and polls the weather while the program runs

package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/markalston/novorio/internal/cache"
	"github.com/markalston/novorio/internal/models"
	"github.com/markalston/novorio/internal/resources"
	"github.com/markalston/novorio/internal/tui/dashboard"
	"github.com/markalston/novorio/internal/tui/styles"
)

// DefaultWeatherEvery matches the weather stale window.
const DefaultWeatherEvery = 15 * time.Minute

// Farm is the subset of resources.Service the dashboard reads.
type Farm interface {
	Weather(ctx context.Context) (*models.Weather, error)
	Terrains(ctx context.Context) ([]models.Terrain, error)
	Plantings(ctx context.Context, filter models.PlantingFilter) ([]models.Planting, error)
}

// Players is the subset of player.Context the dashboard reads.
type Players interface {
	CurrentID() models.ID
	LoadPlayer(ctx context.Context, id models.ID) (*models.Player, error)
}

// entriesMsg carries the latest entry per section since the last delivery.
type entriesMsg map[string]cache.Entry

// loadedMsg is sent when a read for a section returns
type loadedMsg struct {
	section string
	err     error
}

// weatherTickMsg triggers the periodic weather read
type weatherTickMsg time.Time

// App is the root model for the dashboard
type App struct {
	cache        *cache.Cache
	farm         Farm
	players      Players
	playerID     models.ID
	keys         map[string]cache.Key
	dashboard    *dashboard.Dashboard
	spinner      spinner.Model
	weatherEvery time.Duration
	width        int
	height       int
	inflight     int
	lastUpdate   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()

	mu      sync.Mutex
	pending map[string]cache.Entry
	signal  chan struct{}
}

// New creates the dashboard for the current player and starts observing
// its cache entries. Close releases the subscriptions.
func New(c *cache.Cache, farm Farm, players Players, weatherEvery time.Duration) *App {
	if weatherEvery <= 0 {
		weatherEvery = DefaultWeatherEvery
	}
	ctx, cancel := context.WithCancel(context.Background())
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.StatusInfo

	a := &App{
		cache:        c,
		farm:         farm,
		players:      players,
		playerID:     players.CurrentID(),
		dashboard:    dashboard.New(80, 24),
		spinner:      sp,
		weatherEvery: weatherEvery,
		ctx:          ctx,
		cancel:       cancel,
		pending:      make(map[string]cache.Entry),
		signal:       make(chan struct{}, 1),
	}

	a.keys = map[string]cache.Key{dashboard.SectionWeather: resources.WeatherKey()}
	if a.playerID != "" {
		a.keys[dashboard.SectionPlayer] = resources.PlayerKey(a.playerID)
		a.keys[dashboard.SectionTerrains] = resources.TerrainsKey(a.playerID)
		a.keys[dashboard.SectionPlantings] = resources.PlantingsKey(models.PlantingFilter{PlayerID: a.playerID})
	}
	for section, key := range a.keys {
		a.unsubs = append(a.unsubs, c.Subscribe(key, func(e cache.Entry) {
			a.publish(section, e)
		}))
	}
	return a
}

// Close stops observing the cache.
func (a *App) Close() {
	a.cancel()
	for _, unsub := range a.unsubs {
		unsub()
	}
}

// publish keeps only the latest entry per section so cache delivery never
// blocks on the UI.
func (a *App) publish(section string, e cache.Entry) {
	a.mu.Lock()
	a.pending[section] = e
	a.mu.Unlock()

	select {
	case a.signal <- struct{}{}:
	default:
	}
}

func (a *App) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-a.signal:
		case <-a.ctx.Done():
			return nil
		}
		a.mu.Lock()
		batch := a.pending
		a.pending = make(map[string]cache.Entry)
		a.mu.Unlock()
		return entriesMsg(batch)
	}
}

// read loads one section through the cache.
func (a *App) read(section string) tea.Cmd {
	a.inflight++
	return func() tea.Msg {
		var err error
		switch section {
		case dashboard.SectionPlayer:
			_, err = a.players.LoadPlayer(a.ctx, a.playerID)
		case dashboard.SectionWeather:
			_, err = a.farm.Weather(a.ctx)
		case dashboard.SectionTerrains:
			_, err = a.farm.Terrains(a.ctx)
		case dashboard.SectionPlantings:
			_, err = a.farm.Plantings(a.ctx, models.PlantingFilter{PlayerID: a.playerID})
		}
		return loadedMsg{section: section, err: err}
	}
}

func (a *App) weatherTick() tea.Cmd {
	return tea.Tick(a.weatherEvery, func(t time.Time) tea.Msg {
		return weatherTickMsg(t)
	})
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick, a.listen(), a.weatherTick()}
	for section := range a.keys {
		cmds = append(cmds, a.read(section))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.dashboard.SetSize(msg.Width, msg.Height-4)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "r":
			keys := make([]cache.Matcher, 0, len(a.keys))
			for _, k := range a.keys {
				keys = append(keys, k)
			}
			a.cache.Invalidate(keys...)
		}
		return a, nil

	case entriesMsg:
		for section, e := range msg {
			a.dashboard.Apply(section, e)
		}
		a.lastUpdate = time.Now()
		return a, a.listen()

	case loadedMsg:
		if a.inflight > 0 {
			a.inflight--
		}
		if e, ok := a.cache.Peek(a.keys[msg.section]); ok {
			a.dashboard.Apply(msg.section, e)
		}
		a.lastUpdate = time.Now()
		return a, nil

	case weatherTickMsg:
		return a, tea.Batch(a.read(dashboard.SectionWeather), a.weatherTick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

// View implements tea.Model
func (a *App) View() string {
	var sb strings.Builder
	if a.busy() {
		sb.WriteString(a.spinner.View() + " refreshing\n")
	} else {
		sb.WriteString("\n")
	}

	if a.playerID == "" {
		sb.WriteString(styles.StatusWarning.Render("No player selected. Run 'novorio player use <id>' first.") + "\n")
	}
	sb.WriteString(a.dashboard.View())
	sb.WriteString("\n")

	help := fmt.Sprintf("%s refresh  %s quit", styles.KeyStyle.Render("r"), styles.KeyStyle.Render("q"))
	if !a.lastUpdate.IsZero() {
		help += "  updated " + a.lastUpdate.Format("15:04:05")
	}
	sb.WriteString(styles.Help.Render(help))
	return sb.String()
}

// busy reports whether a read is outstanding or an observed entry is fetching.
func (a *App) busy() bool {
	if a.inflight > 0 {
		return true
	}
	for _, k := range a.keys {
		if e, ok := a.cache.Peek(k); ok && e.Fetching {
			return true
		}
	}
	return false
}
