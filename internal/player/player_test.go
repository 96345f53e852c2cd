// ABOUTME: Tests for current player tracking
// ABOUTME: Runs a real session manager and cache against an httptest backend

package player

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/markalston/novorio/internal/cache"
	"github.com/markalston/novorio/internal/client"
	"github.com/markalston/novorio/internal/models"
	"github.com/markalston/novorio/internal/session"
)

type fixture struct {
	sessions *session.Manager
	players  *Context
	cache    *cache.Cache
	store    *session.MemoryStore
	lookups  atomic.Int32
	fetches  atomic.Int32
}

// newFixture serves a user whose login response carries userJSON.
func newFixture(t *testing.T, userJSON string, extra func(mux *http.ServeMux, f *fixture)) *fixture {
	t.Helper()
	f := &fixture{store: session.NewMemoryStore()}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token": "mock-jwt-token", "user": ` + userJSON + `}`))
	})
	mux.HandleFunc("GET /players/user/1", func(w http.ResponseWriter, r *http.Request) {
		f.lookups.Add(1)
		w.Write([]byte(`[{"id": 7, "user_id": 1, "name": "Fazendeira"}]`))
	})
	mux.HandleFunc("GET /players/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		json.NewEncoder(w).Encode(models.Player{ID: models.ID(r.PathValue("id")), Name: "Jogador " + r.PathValue("id"), Coins: 100})
	})
	if extra != nil {
		extra(mux, f)
	}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := client.New(server.URL, client.Options{})
	f.sessions = session.New(c, f.store, session.Options{})
	c.SetTokenSource(f.sessions)
	t.Cleanup(f.sessions.Close)

	f.cache = cache.New(cache.Options{Gate: func() bool { return f.sessions.Snapshot().Authenticated() }})
	t.Cleanup(f.cache.Close)

	f.players = New(c, f.cache, f.store, f.sessions, Options{})
	t.Cleanup(f.players.Close)
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	if _, err := f.sessions.Login(context.Background(), "teste@exemplo.com", "senha123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	select {
	case <-f.players.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("player resolution did not finish")
	}
}

func TestResolve_LooksUpPlayerOnLogin(t *testing.T) {
	f := newFixture(t, `{"id": 1, "email": "teste@exemplo.com"}`, nil)
	f.login(t)

	snap := f.players.Snapshot()
	if snap.ID != "7" || snap.Player == nil || snap.Player.Name != "Jogador 7" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Resolving || snap.Err != nil {
		t.Errorf("expected settled resolution, got resolving=%v err=%v", snap.Resolving, snap.Err)
	}
	if n := f.lookups.Load(); n != 1 {
		t.Errorf("expected exactly one lookup, got %d", n)
	}
}

func TestResolve_SeedsFromUserPlayerID(t *testing.T) {
	f := newFixture(t, `{"id": 1, "email": "teste@exemplo.com", "player_id": 8}`, nil)
	f.login(t)

	if id := f.players.CurrentID(); id != "8" {
		t.Errorf("expected player 8, got %q", id)
	}
	if n := f.lookups.Load(); n != 0 {
		t.Errorf("expected no lookup call, got %d", n)
	}
}

func TestResolve_PrefersPersistedOverride(t *testing.T) {
	f := newFixture(t, `{"id": 1, "email": "teste@exemplo.com", "player_id": 8}`, nil)
	f.store.SetMany(context.Background(), map[string]string{session.KeyCurrentPlayerID: "9"})
	f.login(t)

	if id := f.players.CurrentID(); id != "9" {
		t.Errorf("expected override 9, got %q", id)
	}
}

func TestResolve_UserWithoutPlayer(t *testing.T) {
	f := newFixture(t, `{"id": 2, "email": "novo@exemplo.com"}`, func(mux *http.ServeMux, f *fixture) {
		mux.HandleFunc("GET /players/user/2", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`))
		})
	})
	f.login(t)

	snap := f.players.Snapshot()
	if !errors.Is(snap.Err, ErrNoPlayer) {
		t.Errorf("expected ErrNoPlayer, got %v", snap.Err)
	}
	if has, err := f.players.HasCharacter(context.Background()); err != nil || has {
		t.Errorf("expected no character without a player, got %v, %v", has, err)
	}
}

func TestLogout_ClearsCurrentPlayer(t *testing.T) {
	f := newFixture(t, `{"id": 1, "email": "teste@exemplo.com"}`, nil)
	f.login(t)

	f.sessions.Logout()

	snap := f.players.Snapshot()
	if snap.ID != "" || snap.Player != nil {
		t.Errorf("expected cleared player, got %+v", snap)
	}
	select {
	case <-f.players.Ready():
	default:
		t.Error("expected Ready closed while anonymous")
	}
}

func TestSetCurrentID_LastWriterWins(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, `{"id": 1, "email": "teste@exemplo.com"}`, func(mux *http.ServeMux, f *fixture) {
		mux.HandleFunc("GET /players/11", func(w http.ResponseWriter, r *http.Request) {
			<-release
			w.Write([]byte(`{"id": 11, "name": "Lento"}`))
		})
	})
	f.login(t)
	ctx := context.Background()

	if err := f.players.SetCurrentID(ctx, "11"); err != nil {
		t.Fatalf("set current: %v", err)
	}
	slow := make(chan error)
	go func() {
		_, err := f.players.LoadPlayer(ctx, "11")
		slow <- err
	}()

	if err := f.players.SetCurrentID(ctx, "12"); err != nil {
		t.Fatalf("set current: %v", err)
	}
	if _, err := f.players.LoadPlayer(ctx, "12"); err != nil {
		t.Fatalf("load 12: %v", err)
	}

	close(release)
	if err := <-slow; err != nil {
		t.Fatalf("load 11: %v", err)
	}

	snap := f.players.Snapshot()
	if snap.ID != "12" || snap.Player == nil || snap.Player.ID != "12" {
		t.Errorf("expected player 12 to stay current, got %+v", snap)
	}
	if v, _, _ := f.store.Get(ctx, session.KeyCurrentPlayerID); v != "12" {
		t.Errorf("expected persisted override 12, got %q", v)
	}
}

func TestSetCurrentID_RequiresSession(t *testing.T) {
	f := newFixture(t, `{"id": 1, "email": "teste@exemplo.com"}`, nil)
	if err := f.players.SetCurrentID(context.Background(), "3"); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestHasCharacter(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"with character", http.StatusOK, `[{"id": 1, "player_id": 7, "name": "Ana"}]`, true},
		{"empty list", http.StatusOK, `[]`, false},
		{"not found", http.StatusNotFound, `{"detail": "Not found"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, `{"id": 1, "email": "teste@exemplo.com"}`, func(mux *http.ServeMux, f *fixture) {
				mux.HandleFunc("GET /players/7/characters", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
				})
			})
			f.login(t)

			got, err := f.players.HasCharacter(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestUpdatePlayer_InvalidatesCachedPlayer(t *testing.T) {
	var patched atomic.Bool
	f := newFixture(t, `{"id": 1, "email": "teste@exemplo.com"}`, func(mux *http.ServeMux, f *fixture) {
		mux.HandleFunc("PATCH /players/7", func(w http.ResponseWriter, r *http.Request) {
			var patch models.PlayerUpdate
			json.NewDecoder(r.Body).Decode(&patch)
			if patch.Name == nil || *patch.Name != "Renomeada" {
				t.Errorf("unexpected patch %+v", patch)
			}
			patched.Store(true)
			w.Write([]byte(`{"id": 7, "name": "Renomeada"}`))
		})
	})
	f.login(t)
	ctx := context.Background()
	before := f.fetches.Load()

	if _, err := f.players.LoadPlayer(ctx, "7"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.fetches.Load() != before {
		t.Error("expected cached player to be served")
	}

	name := "Renomeada"
	if _, err := f.players.UpdatePlayer(ctx, models.PlayerUpdate{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !patched.Load() {
		t.Fatal("expected PATCH request")
	}

	if _, err := f.players.LoadPlayer(ctx, "7"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if f.fetches.Load() != before+1 {
		t.Errorf("expected one refetch after update, got %d", f.fetches.Load()-before)
	}
}

func TestProfile(t *testing.T) {
	f := newFixture(t, `{"id": 1, "email": "teste@exemplo.com"}`, func(mux *http.ServeMux, f *fixture) {
		mux.HandleFunc("GET /players/7/profile", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"player_id": 7, "bio": "Planto milho", "total_harvests": 12}`))
		})
	})
	f.login(t)

	profile, err := f.players.Profile(context.Background())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Harvests != 12 || profile.Bio != "Planto milho" {
		t.Errorf("unexpected profile %+v", profile)
	}
}
