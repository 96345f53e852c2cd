// ABOUTME: Auth session state machine shared by every consumer of the API client
// ABOUTME: Owns the token, persists it durably and broadcasts transitions to subscribers

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/markalston/novorio/internal/client"
	"github.com/markalston/novorio/internal/metrics"
	"github.com/markalston/novorio/internal/models"
)

// State of the session state machine.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	AuthFailed
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case AuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// EventType names a session transition.
type EventType string

const (
	EventAuthenticating EventType = "authenticating"
	EventLogin          EventType = "login"
	EventAuthFailed     EventType = "auth_failed"
	EventLogout         EventType = "logout"
	EventTokenExpired   EventType = "token_expired"
	EventTokenInvalid   EventType = "token_invalid"
	EventUserRefreshed  EventType = "user_refreshed"
)

// Event is delivered to subscribers after each transition.
type Event struct {
	Type  EventType
	State State
	User  *models.User
	Err   error
}

// Session is the active authenticated session.
type Session struct {
	UserID    models.ID
	Email     string
	Token     string
	ExpiresAt time.Time // zero when the token carries no expiry
}

// Snapshot is a consistent copy of the manager's state.
type Snapshot struct {
	State   State
	Session *Session
	User    *models.User
	Err     error
}

// Authenticated reports whether a usable session exists.
func (s Snapshot) Authenticated() bool {
	return s.State == Authenticated && s.Session != nil
}

// ErrorMessage returns the message to render inline, or "".
func (s Snapshot) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	var authErr *AuthError
	if errors.As(s.Err, &authErr) {
		return authErr.Message
	}
	return s.Err.Error()
}

// API is the subset of the HTTP client the manager needs.
type API interface {
	Do(ctx context.Context, method, path string, body, out any, opts client.RequestOptions) error
}

// Options tunes a Manager. Zero values select defaults.
type Options struct {
	Now            func() time.Time
	ClearRetryBase time.Duration
	ClearRetryMax  time.Duration
	Metrics        *metrics.Metrics
}

const (
	defaultClearRetryBase = 250 * time.Millisecond
	defaultClearRetryMax  = 30 * time.Second
	storeOpTimeout        = 5 * time.Second
)

// Manager is the single writer of session state. All methods are safe for
// concurrent use.
type Manager struct {
	api       API
	store     Store
	metrics   *metrics.Metrics
	now       func() time.Time
	retryBase time.Duration
	retryMax  time.Duration

	// persistMu serializes store writes against the epoch check; it is
	// always acquired before mu.
	persistMu sync.Mutex

	mu       sync.Mutex
	state    State
	session  *Session
	user     *models.User
	err      error
	epoch    uint64
	expiry   *time.Timer
	retrying bool
	closed   bool

	bus  bus
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a manager in the Anonymous state. Call Restore to resume a
// persisted session.
func New(api API, store Store, opts Options) *Manager {
	m := &Manager{
		api:       api,
		store:     store,
		metrics:   opts.Metrics,
		now:       opts.Now,
		retryBase: opts.ClearRetryBase,
		retryMax:  opts.ClearRetryMax,
		done:      make(chan struct{}),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.retryBase <= 0 {
		m.retryBase = defaultClearRetryBase
	}
	if m.retryMax < m.retryBase {
		m.retryMax = max(defaultClearRetryMax, m.retryBase)
	}
	return m
}

// Subscribe registers fn for every subsequent event and returns a function
// that stops delivery.
func (m *Manager) Subscribe(fn func(Event)) func() {
	return m.bus.subscribe(fn)
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state, Err: m.err}
	if m.session != nil {
		s := *m.session
		snap.Session = &s
	}
	if m.user != nil {
		u := *m.user
		snap.User = &u
	}
	return snap
}

// Token returns the bearer token, or "" when anonymous or expired.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Authenticated || m.session == nil {
		return ""
	}
	if exp := m.session.ExpiresAt; !exp.IsZero() && !m.now().Before(exp) {
		return ""
	}
	return m.session.Token
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token       string       `json:"token"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int          `json:"expires_in"`
	PlayerID    models.ID    `json:"player_id"`
	User        *models.User `json:"user"`
}

func (r *tokenResponse) bearer() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

func (r *tokenResponse) Validate() error {
	if r.bearer() == "" {
		return fmt.Errorf("%w: login response without token", models.ErrInvalidShape)
	}
	return nil
}

// registerResponse may or may not include a token.
type registerResponse struct {
	tokenResponse
}

func (r *registerResponse) Validate() error { return nil }

// Login authenticates with email and password.
func (m *Manager) Login(ctx context.Context, email, password string) (*models.User, error) {
	epoch := m.begin()
	return m.login(ctx, epoch, credentials{Email: email, Password: password})
}

// Register creates an account and signs in with it.
func (m *Manager) Register(ctx context.Context, email, password string) (*models.User, error) {
	epoch := m.begin()
	creds := credentials{Email: email, Password: password}

	var resp registerResponse
	err := m.api.Do(ctx, http.MethodPost, "/auth/register", creds, &resp, client.RequestOptions{Anonymous: true})
	if err != nil {
		return nil, m.fail(epoch, registerError(err))
	}
	slog.Info("Account registered", "email", email)

	if resp.bearer() != "" {
		return m.establish(ctx, epoch, &resp.tokenResponse, email)
	}
	return m.login(ctx, epoch, creds)
}

func (m *Manager) login(ctx context.Context, epoch uint64, creds credentials) (*models.User, error) {
	var resp tokenResponse
	err := m.api.Do(ctx, http.MethodPost, "/auth/login", creds, &resp, client.RequestOptions{Anonymous: true})
	if err != nil {
		return nil, m.fail(epoch, loginError(err))
	}
	return m.establish(ctx, epoch, &resp, creds.Email)
}

// begin enters Authenticating. A current session is logged out first and
// its persisted keys are cleared, so a failed attempt leaves nothing to
// restore.
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.stopExpiryLocked()
	hadSession := m.session != nil
	if hadSession {
		m.bus.enqueue(Event{Type: EventLogout, State: Anonymous})
	}
	m.state = Authenticating
	m.session = nil
	m.user = nil
	m.err = nil
	m.bus.enqueue(Event{Type: EventAuthenticating, State: Authenticating})
	m.mu.Unlock()

	if hadSession {
		m.clearPersisted()
		slog.Info("Logged out before new login")
	}
	m.bus.dispatch()
	return epoch
}

// fail records err and settles in Anonymous. Subscribers see a single
// auth_failed event carrying the AuthFailed state.
func (m *Manager) fail(epoch uint64, authErr *AuthError) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.state = Anonymous
	m.err = authErr
	m.bus.enqueue(Event{Type: EventAuthFailed, State: AuthFailed, Err: authErr})
	m.mu.Unlock()

	slog.Info("Authentication failed", "reason", authErr.Reason, "error", authErr.Err)
	m.bus.dispatch()
	return authErr
}

func (m *Manager) establish(ctx context.Context, epoch uint64, resp *tokenResponse, email string) (*models.User, error) {
	token := resp.bearer()
	claims, _ := parseClaims(token)

	expiresAt := claims.ExpiresAt
	if expiresAt.IsZero() && resp.ExpiresIn > 0 {
		expiresAt = m.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if !expiresAt.IsZero() && !expiresAt.After(m.now()) {
		return nil, m.fail(epoch, &AuthError{Reason: ReasonExpired, Message: msgExpired})
	}

	user := resp.User
	if user == nil || user.ID == "" {
		user = claims.user(email)
	}
	if user.PlayerID == "" {
		user.PlayerID = resp.PlayerID
	}

	rawUser, err := json.Marshal(user)
	if err != nil {
		return nil, m.fail(epoch, &AuthError{Reason: ReasonStorage, Message: msgStorage, Err: err})
	}

	m.persistMu.Lock()
	if !m.isCurrent(epoch) {
		m.persistMu.Unlock()
		return nil, ErrSuperseded
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeOpTimeout)
	err = m.store.SetMany(storeCtx, map[string]string{KeyToken: token, KeyUser: string(rawUser)})
	cancel()
	if err != nil {
		m.persistMu.Unlock()
		return nil, m.fail(epoch, &AuthError{Reason: ReasonStorage, Message: msgStorage, Err: err})
	}

	m.mu.Lock()
	if m.epoch != epoch {
		// The superseding change clears storage once persistMu is released.
		m.mu.Unlock()
		m.persistMu.Unlock()
		return nil, ErrSuperseded
	}
	m.state = Authenticated
	m.session = &Session{UserID: user.ID, Email: user.Email, Token: token, ExpiresAt: expiresAt}
	m.user = user
	m.err = nil
	m.armExpiryLocked(epoch, expiresAt)
	u := *user
	m.bus.enqueue(Event{Type: EventLogin, State: Authenticated, User: &u})
	m.mu.Unlock()
	m.persistMu.Unlock()

	slog.Info("Logged in", "user_id", user.ID, "email", user.Email)
	m.bus.dispatch()

	out := *user
	return &out, nil
}

func (m *Manager) isCurrent(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

// Logout ends the session. It never touches the network and is a no-op
// when already anonymous.
func (m *Manager) Logout() {
	if m.end(EventLogout, nil, nil) {
		slog.Info("Logged out")
	}
}

// HandleUnauthorized is the HTTP client's 401 hook. Only a rejection of
// the current session's token ends the session.
func (m *Manager) HandleUnauthorized(token string) {
	match := func() bool { return token != "" && m.session != nil && m.session.Token == token }
	if m.end(EventTokenInvalid, ErrTokenInvalid, match) {
		m.metrics.ForcedLogout()
		slog.Warn("Session token rejected by backend, logged out")
	}
}

// end transitions to Anonymous when match (evaluated under mu) allows it,
// then clears persisted state. It reports whether a transition happened.
func (m *Manager) end(evType EventType, cause error, match func() bool) bool {
	m.mu.Lock()
	if m.state == Anonymous || (match != nil && !match()) {
		m.mu.Unlock()
		return false
	}
	m.epoch++
	m.stopExpiryLocked()
	m.state = Anonymous
	m.session = nil
	m.user = nil
	m.err = cause
	m.bus.enqueue(Event{Type: evType, State: Anonymous, Err: cause})
	m.mu.Unlock()

	m.clearPersisted()
	m.bus.dispatch()
	return true
}

// clearPersisted removes every session key; on failure a single background
// retrier takes over.
func (m *Manager) clearPersisted() {
	m.persistMu.Lock()
	err := m.deleteKeys()
	m.persistMu.Unlock()
	if err == nil {
		return
	}

	slog.Warn("Failed to clear persisted session, retrying in background", "error", err)
	m.mu.Lock()
	if m.retrying || m.closed {
		m.mu.Unlock()
		return
	}
	m.retrying = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.retryClear()
}

func (m *Manager) deleteKeys() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	return m.store.Delete(ctx, KeyToken, KeyUser, KeyCurrentPlayerID)
}

func (m *Manager) retryClear() {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		m.retrying = false
		m.mu.Unlock()
	}()

	delay := m.retryBase
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-m.done:
			return
		case <-timer.C:
		}

		m.persistMu.Lock()
		m.mu.Lock()
		// A session persisted since the failure owns the keys now.
		superseded := m.state == Authenticated
		m.mu.Unlock()
		if superseded {
			m.persistMu.Unlock()
			return
		}
		err := m.deleteKeys()
		m.persistMu.Unlock()

		if err == nil {
			slog.Info("Cleared persisted session", "attempts", attempt)
			return
		}
		delay = min(delay*2, m.retryMax)
		slog.Debug("Persisted session clear failed", "attempt", attempt, "next_retry", delay, "error", err)
		timer.Reset(delay)
	}
}

// Restore resumes a persisted session. It only acts while Anonymous.
func (m *Manager) Restore(ctx context.Context) Snapshot {
	m.persistMu.Lock()
	snap := m.restoreLocked(ctx)
	m.persistMu.Unlock()

	m.bus.dispatch()
	return snap
}

func (m *Manager) restoreLocked(ctx context.Context) Snapshot {
	token, hasToken, tokenErr := m.store.Get(ctx, KeyToken)
	rawUser, hasUser, userErr := m.store.Get(ctx, KeyUser)
	if err := errors.Join(tokenErr, userErr); err != nil {
		if errors.Is(err, errCorruptFile) {
			slog.Warn("Discarding corrupt persisted session", "error", err)
			m.discardLocked()
			return m.Snapshot()
		}
		slog.Warn("Could not read persisted session", "error", err)
		return m.Snapshot()
	}

	if !hasToken && !hasUser {
		return m.Snapshot()
	}

	var user models.User
	if !hasToken || !hasUser || json.Unmarshal([]byte(rawUser), &user) != nil || user.Validate() != nil {
		slog.Warn("Discarding partial persisted session", "has_token", hasToken, "has_user", hasUser)
		m.discardLocked()
		return m.Snapshot()
	}

	claims, _ := parseClaims(token)
	if !claims.ExpiresAt.IsZero() && !claims.ExpiresAt.After(m.now()) {
		slog.Info("Persisted session expired", "expired_at", claims.ExpiresAt)
		m.discardLocked()

		m.mu.Lock()
		if m.state != Anonymous {
			snap := m.snapshotLocked()
			m.mu.Unlock()
			return snap
		}
		m.err = ErrTokenExpired
		m.bus.enqueue(Event{Type: EventTokenExpired, State: Anonymous, Err: ErrTokenExpired})
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}

	m.mu.Lock()
	if m.state != Anonymous {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	m.epoch++
	m.state = Authenticated
	m.session = &Session{UserID: user.ID, Email: user.Email, Token: token, ExpiresAt: claims.ExpiresAt}
	m.user = &user
	m.err = nil
	m.armExpiryLocked(m.epoch, claims.ExpiresAt)
	u := user
	m.bus.enqueue(Event{Type: EventLogin, State: Authenticated, User: &u})
	snap := m.snapshotLocked()
	m.mu.Unlock()

	slog.Debug("Restored persisted session", "user_id", user.ID)
	return snap
}

// discardLocked clears persisted keys; persistMu must be held.
func (m *Manager) discardLocked() {
	if err := m.deleteKeys(); err != nil {
		slog.Warn("Failed to discard persisted session", "error", err)
	}
}

// RefreshUser re-validates the token and refreshes the user record. Any
// failure ends the session; the reason is recorded on the snapshot.
func (m *Manager) RefreshUser(ctx context.Context) Snapshot {
	m.mu.Lock()
	if m.state != Authenticated || m.session == nil {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	epoch := m.epoch
	m.mu.Unlock()

	var user models.User
	err := m.api.Do(ctx, http.MethodGet, "/auth/validate", nil, &user, client.RequestOptions{})
	if err != nil {
		cause := error(&AuthError{Reason: ReasonInvalidToken, Message: msgInvalidToken, Err: err})
		if client.IsKind(err, client.KindNetwork) {
			cause = &AuthError{Reason: ReasonNetwork, Message: msgNetwork, Err: err}
		}
		slog.Info("Session validation failed", "error", err)
		m.end(EventTokenInvalid, cause, func() bool { return m.epoch == epoch })
		return m.Snapshot()
	}

	m.persistMu.Lock()
	m.mu.Lock()
	if m.epoch != epoch {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.persistMu.Unlock()
		return snap
	}
	if m.user != nil && user.PlayerID == "" {
		user.PlayerID = m.user.PlayerID
	}
	m.user = &user
	m.session.UserID = user.ID
	m.session.Email = user.Email
	m.mu.Unlock()

	if raw, err := json.Marshal(user); err == nil {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeOpTimeout)
		if err := m.store.SetMany(storeCtx, map[string]string{KeyUser: string(raw)}); err != nil {
			slog.Warn("Failed to persist refreshed user", "error", err)
		}
		cancel()
	}
	m.persistMu.Unlock()

	m.mu.Lock()
	if m.epoch == epoch {
		u := user
		m.bus.enqueue(Event{Type: EventUserRefreshed, State: m.state, User: &u})
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.bus.dispatch()
	return snap
}

// Close stops the expiry timer and any background clear retrier.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopExpiryLocked()
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) armExpiryLocked(epoch uint64, expiresAt time.Time) {
	m.stopExpiryLocked()
	if expiresAt.IsZero() || m.closed {
		return
	}
	m.expiry = time.AfterFunc(expiresAt.Sub(m.now()), func() {
		if m.end(EventTokenExpired, ErrTokenExpired, func() bool { return m.epoch == epoch }) {
			slog.Info("Session token expired")
		}
	})
}

func (m *Manager) stopExpiryLocked() {
	if m.expiry != nil {
		m.expiry.Stop()
		m.expiry = nil
	}
}
