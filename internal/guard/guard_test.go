// ABOUTME: Tests for route classification, decisions and the fallback timer
// ABOUTME: Table-driven over the default route table

package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/markalston/novorio/internal/config"
)

func TestClassify(t *testing.T) {
	g := New(config.DefaultRoutes())
	tests := []struct {
		path string
		want Class
	}{
		{"/", Public},
		{"/auth", Public},
		{"/auth/callback", Public},
		{"/auth/reset-password", Public},
		{"/character", AuthRequired},
		{"/profile/edit", AuthRequired},
		{"/game", AuthAndEntityRequired},
		{"/game/", AuthAndEntityRequired},
		{"/game/farm/3", AuthAndEntityRequired},
		{"/transition", AuthAndEntityRequired},
		{"/gamer", AuthRequired},
		{"/unknown", AuthRequired},
		{"/_next/static/chunk.js", Public},
		{"/api/players", Public},
		{"/static/logo", Public},
		{"/favicon.ico", Public},
	}
	for _, tt := range tests {
		if got := g.Classify(tt.path); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestClassify_EntityPathStaysReachable(t *testing.T) {
	routes := config.DefaultRoutes()
	routes.EntityRequired = append(routes.EntityRequired, "/character")
	g := New(routes)

	if got := g.Classify("/character"); got != AuthRequired {
		t.Errorf("expected entity path AuthRequired, got %s", got)
	}
}

func TestAuthorize(t *testing.T) {
	g := New(config.DefaultRoutes())
	tests := []struct {
		name          string
		path          string
		authenticated bool
		hasEntity     bool
		wantURL       string // "" means Allow
		wantReason    Reason
	}{
		{"anonymous to game", "/game", false, false, "/auth?redirected=true&from=%2Fgame", ReasonUnauthenticated},
		{"no entity to game", "/game", true, false, "/character?redirected=true&from=%2Fgame", ReasonEntityRequired},
		{"authenticated at auth", "/auth", true, false, "/character", ReasonAlreadyAuthenticated},
		{"entity holder to game", "/game", true, true, "", ""},
		{"anonymous to character", "/character", false, false, "/auth?redirected=true&from=%2Fcharacter", ReasonUnauthenticated},
		{"no entity to character", "/character", true, false, "", ""},
		{"anonymous to landing page", "/", false, false, "", ""},
		{"anonymous at auth", "/auth", false, false, "", ""},
		{"anonymous to asset", "/static/img/logo.png", false, false, "", ""},
		{"anonymous to unknown", "/secret", false, false, "/auth?redirected=true&from=%2Fsecret", ReasonUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Authorize(tt.path, tt.authenticated, tt.hasEntity)
			if tt.wantURL == "" {
				if !d.Allow || d.Redirect != nil {
					t.Errorf("expected Allow, got %+v", d.Redirect)
				}
				return
			}
			if d.Allow || d.Redirect == nil {
				t.Fatalf("expected redirect to %s, got Allow", tt.wantURL)
			}
			if got := d.Redirect.URL(); got != tt.wantURL {
				t.Errorf("expected %s, got %s", tt.wantURL, got)
			}
			if d.Redirect.Reason != tt.wantReason {
				t.Errorf("expected reason %s, got %s", tt.wantReason, d.Redirect.Reason)
			}
		})
	}
}

func TestAuthorize_Idempotent(t *testing.T) {
	g := New(config.DefaultRoutes())
	first := g.Authorize("/game", true, false)
	second := g.Authorize("/game", true, false)
	if first.Redirect.URL() != second.Redirect.URL() {
		t.Errorf("expected identical decisions, got %s and %s", first.Redirect.URL(), second.Redirect.URL())
	}
}

func TestAwaitWithFallback(t *testing.T) {
	ready := make(chan struct{})
	close(ready)
	if err := AwaitWithFallback(context.Background(), ready, time.Second); err != nil {
		t.Errorf("expected ready to win, got %v", err)
	}

	never := make(chan struct{})
	if err := AwaitWithFallback(context.Background(), never, 10*time.Millisecond); !errors.Is(err, ErrFallbackFired) {
		t.Errorf("expected ErrFallbackFired, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := AwaitWithFallback(ctx, never, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	g := New(config.DefaultRoutes())
	ready := make(chan struct{})
	close(ready)
	hasEntity := func(context.Context) (bool, error) { return true, nil }
	noEntity := func(context.Context) (bool, error) { return false, nil }
	failing := func(context.Context) (bool, error) { return false, errors.New("boom") }

	if d := g.Resolve(context.Background(), "/game", true, ready, hasEntity, time.Second); !d.Allow {
		t.Errorf("expected Allow, got %+v", d.Redirect)
	}
	if d := g.Resolve(context.Background(), "/game", true, ready, noEntity, time.Second); d.Redirect == nil || d.Redirect.Reason != ReasonEntityRequired {
		t.Errorf("expected entity redirect, got %+v", d)
	}
	if d := g.Resolve(context.Background(), "/game", true, ready, failing, time.Second); d.Redirect == nil || d.Redirect.Path != "/character" {
		t.Errorf("expected entity redirect on failed check, got %+v", d)
	}

	stalled := make(chan struct{})
	d := g.Resolve(context.Background(), "/game", true, stalled, hasEntity, 10*time.Millisecond)
	if d.Redirect == nil || d.Redirect.Reason != ReasonFallbackTimeout {
		t.Fatalf("expected fallback redirect, got %+v", d)
	}
	if d.Redirect.URL() != "/character?redirected=true&from=%2Fgame" {
		t.Errorf("unexpected fallback URL %s", d.Redirect.URL())
	}

	// Routes without an entity requirement never wait.
	if d := g.Resolve(context.Background(), "/profile", true, stalled, hasEntity, time.Hour); !d.Allow {
		t.Errorf("expected Allow without waiting, got %+v", d.Redirect)
	}
}

func TestMiddleware_Redirects(t *testing.T) {
	g := New(config.DefaultRoutes())
	authenticated := false
	decide := func(r *http.Request) Decision {
		return g.Authorize(r.URL.Path, authenticated, false)
	}
	handler := Chain(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page"))
	}, LogRequest, Middleware(decide))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/game", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/auth?redirected=true&from=%2Fgame" {
		t.Errorf("unexpected Location %s", loc)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	authenticated = true
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "page" {
		t.Errorf("expected page served, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestSanitizePath(t *testing.T) {
	if got := sanitizePath("/game\r\ninjected\t"); got != "/gameinjected" {
		t.Errorf("unexpected sanitized path %q", got)
	}
}
