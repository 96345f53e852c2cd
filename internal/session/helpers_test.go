// ABOUTME: Shared fixtures for session tests
// ABOUTME: Wires a Manager to an httptest backend and records emitted events

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markalston/novorio/internal/client"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, got := range r.types() {
		if got == t {
			n++
		}
	}
	return n
}

type fixture struct {
	manager *Manager
	client  *client.Client
	store   Store
	events  *recorder
}

func newFixture(t *testing.T, handler http.Handler, store Store, opts Options) *fixture {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if store == nil {
		store = NewMemoryStore()
	}
	c := client.New(server.URL, client.Options{RetryBackoff: time.Millisecond})
	m := New(c, store, opts)
	c.SetTokenSource(m)
	c.OnUnauthorized(m.HandleUnauthorized)
	t.Cleanup(m.Close)

	rec := &recorder{}
	m.Subscribe(rec.record)
	return &fixture{manager: m, client: c, store: store, events: rec}
}

// backend mimics the game API's auth endpoints.
func backend(t *testing.T, token string) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds credentials
		if err := decodeJSON(r, &creds); err != nil || creds.Email != "teste@exemplo.com" || creds.Password != "senha123" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message": "Credenciais inválidas"}`))
			return
		}
		w.Write([]byte(`{"token": "` + token + `", "user": {"id": 1, "email": "teste@exemplo.com", "player_id": 7}}`))
	})
	mux.HandleFunc("GET /auth/validate", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id": 1, "email": "teste@exemplo.com", "username": "teste", "player_id": 7}`))
	})
	return mux
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func persisted(t *testing.T, s Store, key string) (string, bool) {
	t.Helper()
	v, ok, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("store get %s: %v", key, err)
	}
	return v, ok
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

// flakyStore fails Delete until failures is exhausted.
type flakyStore struct {
	*MemoryStore
	failures atomic.Int32
	deletes  atomic.Int32
}

func (s *flakyStore) Delete(ctx context.Context, keys ...string) error {
	s.deletes.Add(1)
	if s.failures.Add(-1) >= 0 {
		return errors.New("disk full")
	}
	return s.MemoryStore.Delete(ctx, keys...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
