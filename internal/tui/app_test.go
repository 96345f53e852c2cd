// ABOUTME: Tests for the dashboard application model
// ABOUTME: Drives Update with messages against a real cache and fake loaders

package tui

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/markalston/novorio/internal/cache"
	"github.com/markalston/novorio/internal/models"
	"github.com/markalston/novorio/internal/tui/dashboard"
)

type fakeFarm struct {
	weatherCalls atomic.Int32
	cache        *cache.Cache
}

func (f *fakeFarm) Weather(ctx context.Context) (*models.Weather, error) {
	return cache.Read(ctx, f.cache, cache.NewKey("weather"), func(context.Context) (*models.Weather, error) {
		n := f.weatherCalls.Add(1)
		if n > 1 {
			return &models.Weather{Condition: "rainy"}, nil
		}
		return &models.Weather{Condition: "sunny", Temperature: 28}, nil
	}, cache.ReadOptions{})
}

func (f *fakeFarm) Terrains(ctx context.Context) ([]models.Terrain, error) {
	return cache.Read(ctx, f.cache, cache.NewKey("terrains", "7"), func(context.Context) ([]models.Terrain, error) {
		return []models.Terrain{{ID: "1", Name: "Várzea"}}, nil
	}, cache.ReadOptions{})
}

func (f *fakeFarm) Plantings(ctx context.Context, filter models.PlantingFilter) ([]models.Planting, error) {
	return cache.Read(ctx, f.cache, cache.NewKey("plantings", filter.PlayerID, "", "", ""), func(context.Context) ([]models.Planting, error) {
		return []models.Planting{}, nil
	}, cache.ReadOptions{})
}

type fakePlayers struct {
	id    models.ID
	cache *cache.Cache
}

func (p *fakePlayers) CurrentID() models.ID { return p.id }

func (p *fakePlayers) LoadPlayer(ctx context.Context, id models.ID) (*models.Player, error) {
	return cache.Read(ctx, p.cache, cache.NewKey("players", id), func(context.Context) (*models.Player, error) {
		return &models.Player{ID: id, Name: "Fazendeira", Coins: 250}, nil
	}, cache.ReadOptions{})
}

func newTestApp(t *testing.T, playerID models.ID) (*App, *fakeFarm) {
	t.Helper()
	c := cache.New(cache.Options{})
	t.Cleanup(c.Close)
	farm := &fakeFarm{cache: c}
	app := New(c, farm, &fakePlayers{id: playerID, cache: c}, time.Minute)
	t.Cleanup(app.Close)
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return app, farm
}

func TestAppObservesCurrentPlayer(t *testing.T) {
	app, _ := newTestApp(t, "7")

	for _, section := range []string{dashboard.SectionPlayer, dashboard.SectionWeather, dashboard.SectionTerrains, dashboard.SectionPlantings} {
		if _, ok := app.keys[section]; !ok {
			t.Errorf("expected %s observed", section)
		}
	}
	if n := len(app.unsubs); n != 4 {
		t.Errorf("expected 4 subscriptions, got %d", n)
	}
}

func TestAppWithoutPlayerOnlyObservesWeather(t *testing.T) {
	app, _ := newTestApp(t, "")

	if len(app.keys) != 1 {
		t.Errorf("expected only weather observed, got %v", app.keys)
	}
	if !strings.Contains(app.View(), "No player selected") {
		t.Error("expected no player message")
	}
}

func TestAppLoadedMsgRendersEntry(t *testing.T) {
	app, _ := newTestApp(t, "7")

	for _, section := range []string{dashboard.SectionPlayer, dashboard.SectionWeather, dashboard.SectionTerrains} {
		msg := app.read(section)()
		loaded, ok := msg.(loadedMsg)
		if !ok {
			t.Fatalf("expected loadedMsg, got %T", msg)
		}
		if loaded.err != nil {
			t.Fatalf("load %s: %v", section, loaded.err)
		}
		app.Update(loaded)
	}

	if app.inflight != 0 {
		t.Errorf("expected no reads in flight, got %d", app.inflight)
	}
	view := app.View()
	for _, expected := range []string{"Fazendeira", "sunny", "Várzea", "q quit"} {
		if !strings.Contains(view, expected) {
			t.Errorf("expected view to contain %q\nView:\n%s", expected, view)
		}
	}
}

func TestAppRefreshRefetchesObservedEntries(t *testing.T) {
	app, farm := newTestApp(t, "7")
	app.Update(app.read(dashboard.SectionWeather)())

	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})

	// Observed entries refetch on invalidation; the result arrives through the subscription.
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(app.View(), "rainy") {
		if time.Now().After(deadline) {
			t.Fatalf("expected refreshed weather\nView:\n%s", app.View())
		}
		msg := app.listen()()
		app.Update(msg)
	}
	if n := farm.weatherCalls.Load(); n != 2 {
		t.Errorf("expected 2 weather fetches, got %d", n)
	}
}

func TestAppPublishCoalesces(t *testing.T) {
	app, _ := newTestApp(t, "7")

	app.publish(dashboard.SectionWeather, cache.Entry{State: cache.Loading})
	app.publish(dashboard.SectionWeather, cache.Entry{State: cache.Fresh, Data: &models.Weather{Condition: "cloudy"}})

	msg, ok := app.listen()().(entriesMsg)
	if !ok {
		t.Fatal("expected entriesMsg")
	}
	if len(msg) != 1 || msg[dashboard.SectionWeather].State != cache.Fresh {
		t.Errorf("expected only the latest weather entry, got %v", msg)
	}
}

func TestAppListenStopsOnClose(t *testing.T) {
	app, _ := newTestApp(t, "7")
	app.Close()

	if msg := app.listen()(); msg != nil {
		t.Errorf("expected nil after close, got %T", msg)
	}
}

func TestAppQuit(t *testing.T) {
	app, _ := newTestApp(t, "7")

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestAppWeatherTickReadsWeather(t *testing.T) {
	app, farm := newTestApp(t, "7")

	_, cmd := app.Update(weatherTickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("expected commands on tick")
	}
	if app.inflight != 1 {
		t.Errorf("expected one read in flight, got %d", app.inflight)
	}
	app.Update(app.read(dashboard.SectionWeather)())
	if farm.weatherCalls.Load() != 1 {
		t.Errorf("expected one weather fetch, got %d", farm.weatherCalls.Load())
	}
}
