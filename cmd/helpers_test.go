// ABOUTME: Shared fixtures for command tests
// ABOUTME: Points the CLI at an httptest game backend with a temp state dir

package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
)

type backend struct {
	server  *httptest.Server
	mux     *http.ServeMux
	actions atomic.Int32
	// validate overrides the /auth/validate status when non-zero
	validateStatus atomic.Int32
	// playerGate, when set, holds GET /players/7 until it is closed
	playerGate chan struct{}
}

// newBackend serves a single account teste@exemplo.com/senha123 owning
// player 7, and points the CLI flags at it. The session persists in a temp
// dir so consecutive commands share it.
func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{mux: http.NewServeMux()}

	b.mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds struct{ Email, Password string }
		json.NewDecoder(r.Body).Decode(&creds)
		if creds.Email != "teste@exemplo.com" || creds.Password != "senha123" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail": "Credenciais inválidas"}`))
			return
		}
		w.Write([]byte(`{"token": "mock-jwt-token", "user": {"id": 1, "email": "teste@exemplo.com", "player_id": 7}}`))
	})
	b.mux.HandleFunc("GET /auth/validate", func(w http.ResponseWriter, r *http.Request) {
		if status := b.validateStatus.Load(); status != 0 {
			w.WriteHeader(int(status))
			w.Write([]byte(`{"detail": "invalid token"}`))
			return
		}
		w.Write([]byte(`{"id": 1, "email": "teste@exemplo.com", "username": "teste"}`))
	})
	b.mux.HandleFunc("GET /players/7", func(w http.ResponseWriter, r *http.Request) {
		if b.playerGate != nil {
			select {
			case <-b.playerGate:
			case <-r.Context().Done():
				return
			}
		}
		w.Write([]byte(`{"id": 7, "user_id": 1, "name": "Fazendeira", "level": 3, "experience": 120, "coins": 250, "aura": 10}`))
	})
	b.mux.HandleFunc("GET /players/7/characters", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 3, "player_id": 7, "name": "Zé"}]`))
	})
	b.mux.HandleFunc("GET /players/7/profile", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"player_id": 7, "total_harvests": 4, "days_played": 2}`))
	})
	b.mux.HandleFunc("GET /terrains", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": [{"id": 1, "player_id": 7, "name": "Várzea", "soil_quality": 80}], "total": 1, "page": 1, "size": 20, "pages": 1}`))
	})
	b.mux.HandleFunc("GET /weather", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"condition": "sunny", "temperature": 28, "humidity": 60, "rainChance": 10}`))
	})
	b.mux.HandleFunc("POST /actions", func(w http.ResponseWriter, r *http.Request) {
		b.actions.Add(1)
		w.Write([]byte(`{"success": true, "message": "Planta regada"}`))
	})

	b.server = httptest.NewServer(b.mux)
	t.Cleanup(b.server.Close)

	dir := t.TempDir()
	t.Setenv("NOVORIO_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("NOVORIO_SESSION_BACKEND", "file")
	t.Setenv("NOVORIO_FALLBACK_TIMEOUT", "2")
	t.Setenv("NOVORIO_ROUTES_FILE", "")
	t.Setenv("LOG_LEVEL", "error")

	apiURL, stateDir, ephemeral, jsonOutput = b.server.URL, dir, false, false
	t.Cleanup(func() {
		apiURL, stateDir, ephemeral, jsonOutput = "", "", false, false
	})
	return b
}
