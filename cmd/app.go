// ABOUTME: Wiring of the client, session, cache, player and resource layers
// ABOUTME: Every command opens one app and closes it on exit

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/markalston/novorio/internal/cache"
	"github.com/markalston/novorio/internal/client"
	"github.com/markalston/novorio/internal/config"
	"github.com/markalston/novorio/internal/guard"
	"github.com/markalston/novorio/internal/logger"
	"github.com/markalston/novorio/internal/metrics"
	"github.com/markalston/novorio/internal/player"
	"github.com/markalston/novorio/internal/resources"
	"github.com/markalston/novorio/internal/session"
)

// Exit codes shared by all commands.
const (
	exitOK       = 0
	exitRejected = 1 // the backend refused the request
	exitError    = 2 // configuration, connectivity or local failure
)

type app struct {
	cfg       *config.Config
	registry  *prometheus.Registry
	client    *client.Client
	store     session.Store
	sessions  *session.Manager
	cache     *cache.Cache
	players   *player.Context
	resources *resources.Service
	guard     *guard.Guard

	closers []func()
}

// openApp loads configuration, wires every layer and resumes the persisted
// session. Errors are reported on w and turned into an exit code.
func openApp(ctx context.Context, w io.Writer) (*app, int) {
	return openAppLogging(ctx, w, func(*config.Config) { logger.Init(os.Stderr) })
}

// openAppLogging is openApp with a custom logger setup.
func openAppLogging(ctx context.Context, w io.Writer, initLogger func(*config.Config)) (*app, int) {
	cfg, err := loadConfig()
	if err != nil {
		logger.Init(os.Stderr)
		fmt.Fprintf(w, "Error: %v\n", err)
		return nil, exitError
	}
	initLogger(cfg)

	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return nil, exitError
	}

	snap := a.sessions.Restore(ctx)
	slog.Debug("Session restored", "state", snap.State, "backend", cfg.SessionBackend)
	return a, exitOK
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	m := metrics.New(a.registry)

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.store = store

	a.client = client.New(cfg.APIBaseURL, client.Options{
		Timeout:  cfg.RequestTimeout,
		AllProxy: cfg.AllProxy,
		Metrics:  m,
	})
	a.sessions = session.New(a.client, a.store, session.Options{Metrics: m})
	a.client.SetTokenSource(a.sessions)
	a.client.OnUnauthorized(a.sessions.HandleUnauthorized)

	a.cache = cache.New(cache.Options{
		Policy:  resources.Policy(cfg.Stale),
		GCAfter: cfg.CacheGC,
		Gate:    func() bool { return a.sessions.Snapshot().Authenticated() },
		Metrics: m,
	})
	unsubscribe := a.sessions.Subscribe(func(ev session.Event) {
		if ev.State != session.Authenticated {
			a.cache.Reset()
		}
	})

	a.players = player.New(a.client, a.cache, a.store, a.sessions, player.Options{Retries: cfg.QueryRetries})
	a.resources = resources.New(a.client, a.cache, a.players, resources.Options{Retries: cfg.QueryRetries})
	a.guard = guard.New(cfg.Routes)

	a.closers = append(a.closers, a.sessions.Close, a.cache.Close, unsubscribe, a.players.Close)
	return a, nil
}

func (a *app) openStore() (session.Store, error) {
	switch a.cfg.SessionBackend {
	case config.BackendMemory:
		return session.NewMemoryStore(), nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { rdb.Close() })
		return session.NewRedisStore(rdb, a.cfg.RedisPrefix), nil
	default:
		return session.NewFileStore(a.cfg.StateDir), nil
	}
}

// Close releases every layer in reverse dependency order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// requireSession reports an error when nobody is logged in.
func (a *app) requireSession(w io.Writer) bool {
	if a.sessions.Snapshot().Authenticated() {
		return true
	}
	fmt.Fprintln(w, "Error: not logged in. Run 'novorio login' first.")
	return false
}

// awaitPlayer waits until the user has resolved to a player.
func (a *app) awaitPlayer(ctx context.Context, w io.Writer) bool {
	if !a.requireSession(w) {
		return false
	}
	if err := guard.AwaitWithFallback(ctx, a.players.Ready(), a.cfg.FallbackTimeout); err != nil {
		fmt.Fprintf(w, "Error: player data did not load: %v\n", err)
		return false
	}
	if a.players.CurrentID() == "" {
		fmt.Fprintln(w, "Error: no player for this account. Create a character in the game first.")
		return false
	}
	return true
}

// reportError prints err and returns the matching exit code.
func reportError(w io.Writer, err error) int {
	fmt.Fprintf(w, "Error: %v\n", err)
	if client.IsKind(err, client.KindNetwork) || client.IsKind(err, client.KindServer) {
		return exitError
	}
	return exitRejected
}
