// ABOUTME: Current player tracking for the authenticated user
// ABOUTME: Resolves user to player once per session and loads player data through the cache

package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/markalston/novorio/internal/cache"
	"github.com/markalston/novorio/internal/client"
	"github.com/markalston/novorio/internal/models"
	"github.com/markalston/novorio/internal/session"
)

var (
	// ErrNoPlayer means the user has no player, or none is selected.
	ErrNoPlayer = errors.New("player: no current player")
	// ErrNoSession is returned by operations that need a logged-in user.
	ErrNoSession = errors.New("player: not logged in")
)

// API is the subset of the HTTP client used here.
type API interface {
	Do(ctx context.Context, method, path string, body, out any, opts client.RequestOptions) error
}

// Sessions is the subset of session.Manager used here.
type Sessions interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Event)) func()
}

// Options tunes a Context.
type Options struct {
	Retries int // GET retries passed to the client
}

// Snapshot is the observable player state.
type Snapshot struct {
	ID        models.ID
	Player    *models.Player
	Err       error
	Resolving bool
}

// Context tracks the current player. It is safe for concurrent use.
type Context struct {
	api      API
	cache    *cache.Cache
	store    session.Store
	sessions Sessions
	retries  int

	mu        sync.Mutex
	epoch     uint64
	userID    models.ID
	currentID models.ID
	player    *models.Player
	err       error
	resolving bool
	ready     chan struct{}
	cancel    context.CancelFunc
	seen      bool
	closed    bool

	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates a Context bound to sessions. A session that is already
// authenticated is resolved immediately.
func New(api API, c *cache.Cache, store session.Store, sessions Sessions, opts Options) *Context {
	ready := make(chan struct{})
	close(ready)
	pc := &Context{
		api:      api,
		cache:    c,
		store:    store,
		sessions: sessions,
		retries:  opts.Retries,
		ready:    ready,
		cancel:   func() {},
	}
	pc.unsubscribe = sessions.Subscribe(pc.onSessionEvent)

	snap := sessions.Snapshot()
	pc.mu.Lock()
	seen := pc.seen
	pc.mu.Unlock()
	if !seen && snap.Authenticated() && snap.User != nil {
		pc.startResolve(snap.User)
	}
	return pc
}

func (pc *Context) onSessionEvent(ev session.Event) {
	pc.mu.Lock()
	pc.seen = true
	pc.mu.Unlock()

	switch {
	case ev.Type == session.EventLogin && ev.User != nil:
		pc.startResolve(ev.User)
	case ev.State != session.Authenticated:
		pc.clear()
	}
}

// startResolve begins the once-per-session user to player lookup.
func (pc *Context) startResolve(user *models.User) {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return
	}
	pc.resetLocked()
	pc.userID = user.ID
	pc.resolving = true
	pc.ready = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	pc.cancel = cancel
	epoch := pc.epoch
	u := *user
	pc.wg.Add(1)
	pc.mu.Unlock()

	go pc.resolve(ctx, epoch, &u)
}

func (pc *Context) resolve(ctx context.Context, epoch uint64, user *models.User) {
	defer pc.wg.Done()

	id, err := pc.lookupID(ctx, user)
	if err != nil {
		pc.finish(epoch, err)
		return
	}

	pc.mu.Lock()
	if pc.epoch != epoch {
		pc.mu.Unlock()
		return
	}
	if pc.currentID == "" {
		pc.currentID = id
	}
	target := pc.currentID
	pc.mu.Unlock()

	slog.Debug("Resolved current player", "user_id", user.ID, "player_id", target)
	_, err = pc.LoadPlayer(ctx, target)
	pc.finish(epoch, err)
}

func (pc *Context) finish(epoch uint64, err error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.epoch != epoch {
		return
	}
	if err != nil {
		slog.Warn("Player resolution failed", "user_id", pc.userID, "error", err)
		pc.err = err
	}
	pc.resolving = false
	closeOnce(pc.ready)
}

// lookupID prefers the persisted override, then the user record, then the
// backend's player list for the user.
func (pc *Context) lookupID(ctx context.Context, user *models.User) (models.ID, error) {
	if id, ok, err := pc.store.Get(ctx, session.KeyCurrentPlayerID); err != nil {
		slog.Warn("Could not read player override", "error", err)
	} else if ok && id != "" {
		return models.ID(id), nil
	}
	if user.PlayerID != "" {
		return user.PlayerID, nil
	}

	var players models.List[models.Player]
	path := fmt.Sprintf("/players/user/%s", user.ID)
	if err := pc.api.Do(ctx, http.MethodGet, path, nil, &players, client.RequestOptions{Retries: pc.retries}); err != nil {
		if client.IsKind(err, client.KindNotFound) {
			return "", ErrNoPlayer
		}
		return "", fmt.Errorf("looking up player for user %s: %w", user.ID, err)
	}
	if len(players) == 0 {
		return "", ErrNoPlayer
	}
	return players[0].ID, nil
}

func (pc *Context) clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.userID == "" && pc.currentID == "" && pc.player == nil && !pc.resolving {
		return
	}
	pc.resetLocked()
	slog.Debug("Cleared current player")
}

// resetLocked abandons any resolution and drops current state.
func (pc *Context) resetLocked() {
	pc.epoch++
	pc.cancel()
	pc.cancel = func() {}
	pc.userID = ""
	pc.currentID = ""
	pc.player = nil
	pc.err = nil
	pc.resolving = false
	closeOnce(pc.ready)
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// Ready is closed once the current session's resolution has finished,
// successfully or not. Callers should fetch it again after a login.
func (pc *Context) Ready() <-chan struct{} {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.ready
}

// Snapshot returns the current player state.
func (pc *Context) Snapshot() Snapshot {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return Snapshot{ID: pc.currentID, Player: pc.player, Err: pc.err, Resolving: pc.resolving}
}

// CurrentID returns the selected player id, or "".
func (pc *Context) CurrentID() models.ID {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.currentID
}

// SetCurrentID selects id and persists it as the override for later runs.
// Results still arriving for the previous id are ignored.
func (pc *Context) SetCurrentID(ctx context.Context, id models.ID) error {
	if !pc.sessions.Snapshot().Authenticated() {
		return ErrNoSession
	}

	pc.mu.Lock()
	if pc.currentID != id {
		pc.currentID = id
		pc.player = nil
		pc.err = nil
	}
	pc.mu.Unlock()

	if err := pc.store.SetMany(ctx, map[string]string{session.KeyCurrentPlayerID: string(id)}); err != nil {
		return fmt.Errorf("persisting current player: %w", err)
	}
	return nil
}

func (pc *Context) playerKey(id models.ID) cache.Key {
	return cache.NewKey("players", id)
}

// LoadPlayer reads a player through the cache. It becomes the current
// player only if id is still current when the result arrives.
func (pc *Context) LoadPlayer(ctx context.Context, id models.ID) (*models.Player, error) {
	if id == "" {
		return nil, ErrNoPlayer
	}
	p, err := cache.Read(ctx, pc.cache, pc.playerKey(id), func(ctx context.Context) (*models.Player, error) {
		var p models.Player
		if err := pc.api.Do(ctx, http.MethodGet, "/players/"+string(id), nil, &p, client.RequestOptions{Retries: pc.retries}); err != nil {
			return nil, err
		}
		return &p, nil
	}, cache.ReadOptions{})

	pc.mu.Lock()
	if pc.currentID == id {
		if err != nil {
			pc.err = err
		} else {
			pc.player = p
			pc.err = nil
		}
	}
	pc.mu.Unlock()
	return p, err
}

func (pc *Context) requireID() (models.ID, error) {
	id := pc.CurrentID()
	if id == "" {
		return "", ErrNoPlayer
	}
	return id, nil
}

// HasCharacter reports whether the current player has created a character.
func (pc *Context) HasCharacter(ctx context.Context) (bool, error) {
	id, err := pc.requireID()
	if errors.Is(err, ErrNoPlayer) {
		return false, nil
	}

	chars, err := cache.Read(ctx, pc.cache, cache.NewKey("players", id, "characters"), func(ctx context.Context) (models.List[models.Character], error) {
		var chars models.List[models.Character]
		err := pc.api.Do(ctx, http.MethodGet, "/players/"+string(id)+"/characters", nil, &chars, client.RequestOptions{Retries: pc.retries})
		if client.IsKind(err, client.KindNotFound) {
			return models.List[models.Character]{}, nil
		}
		return chars, err
	}, cache.ReadOptions{})
	if err != nil {
		return false, err
	}
	return len(chars) > 0, nil
}

// UpdatePlayer patches the current player and invalidates its cached data.
func (pc *Context) UpdatePlayer(ctx context.Context, patch models.PlayerUpdate) (*models.Player, error) {
	id, err := pc.requireID()
	if err != nil {
		return nil, err
	}
	return cache.Mutate(ctx, pc.cache, func(ctx context.Context) (*models.Player, error) {
		var p models.Player
		if err := pc.api.Do(ctx, http.MethodPatch, "/players/"+string(id), patch, &p, client.RequestOptions{}); err != nil {
			return nil, err
		}
		return &p, nil
	}, pc.playerKey(id))
}

// Profile returns the current player's public profile.
func (pc *Context) Profile(ctx context.Context) (*models.PlayerProfile, error) {
	id, err := pc.requireID()
	if err != nil {
		return nil, err
	}
	return cache.Read(ctx, pc.cache, cache.NewKey("players", id, "profile"), func(ctx context.Context) (*models.PlayerProfile, error) {
		var p models.PlayerProfile
		if err := pc.api.Do(ctx, http.MethodGet, "/players/"+string(id)+"/profile", nil, &p, client.RequestOptions{Retries: pc.retries}); err != nil {
			return nil, err
		}
		return &p, nil
	}, cache.ReadOptions{})
}

// Close stops reacting to session events and waits for resolution to end.
func (pc *Context) Close() {
	pc.unsubscribe()
	pc.mu.Lock()
	pc.closed = true
	pc.resetLocked()
	pc.mu.Unlock()
	pc.wg.Wait()
}
