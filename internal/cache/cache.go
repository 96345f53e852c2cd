// ABOUTME: Resource query cache with de-duplicated fetches and stale-while-revalidate
// ABOUTME: Generation counters keep invalidated data from being resurrected by older fetches

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/markalston/novorio/internal/metrics"
)

var (
	// ErrDisabled is returned by reads while no session exists.
	ErrDisabled = errors.New("cache: reads disabled without a session")
	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("cache: closed")
)

// State of a cache entry.
type State int

const (
	Idle State = iota
	Loading
	Fresh
	Stale
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a point-in-time view of a cached resource.
type Entry struct {
	Key        Key
	Data       any
	FetchedAt  time.Time
	StaleAfter time.Duration
	State      State
	Err        error
	Fetching   bool
}

// Fetcher loads a resource. The context is cancelled once no caller or
// observer remains interested.
type Fetcher func(ctx context.Context) (any, error)

// ReadOptions tunes a single read.
type ReadOptions struct {
	StaleAfter time.Duration // overrides the policy window when > 0
}

// Options configures a Cache.
type Options struct {
	Policy  Policy
	GCAfter time.Duration
	Gate    func() bool // reads fail with ErrDisabled while it returns false
	Now     func() time.Time
	Metrics *metrics.Metrics
}

const defaultGCAfter = 5 * time.Minute

type flight struct {
	key        string // singleflight key, unique per flight
	gen        uint64
	ctx        context.Context
	cancel     context.CancelFunc
	fn         func() (any, error)
	waiters    int
	background bool
	cancelled  bool
}

type entry struct {
	key        Key
	data       any
	hasData    bool
	fetchedAt  time.Time
	staleAfter time.Duration
	state      State
	err        error

	// gen is bumped by every invalidation; only a flight of the current
	// generation may commit Fresh data.
	gen         uint64
	invalidated bool
	fetcher     Fetcher
	flight      *flight
	observers   map[uint64]func(Entry)
	lastAccess  time.Time
}

// Cache is the single writer of resource entries. It is safe for
// concurrent use.
type Cache struct {
	policy  Policy
	gcAfter time.Duration
	gate    func() bool
	now     func() time.Time
	metrics *metrics.Metrics

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a cache and starts its janitor. Call Close to stop it.
func New(opts Options) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		policy:  opts.Policy,
		gcAfter: opts.GCAfter,
		gate:    opts.Gate,
		now:     opts.Now,
		metrics: opts.Metrics,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.gcAfter <= 0 {
		c.gcAfter = defaultGCAfter
	}

	c.wg.Add(1)
	go c.startCleanup()
	return c
}

// Read returns the cached value for key, fetching it when absent, failed or
// invalidated. Age-stale values are returned immediately while one
// background refetch runs.
func Read[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error), opts ReadOptions) (T, error) {
	var zero T
	v, err := c.read(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: entry %s holds %T", key, v)
	}
	return out, nil
}

// Mutate runs a write and, only if it succeeds, invalidates every matcher.
// Errors from fn are returned unmodified.
func Mutate[T any](ctx context.Context, c *Cache, fn func(context.Context) (T, error), invalidates ...Matcher) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	c.Invalidate(invalidates...)
	return v, nil
}

func (c *Cache) read(ctx context.Context, key Key, fetch Fetcher, opts ReadOptions) (any, error) {
	if len(key) == 0 {
		return nil, errors.New("cache: empty key")
	}
	if c.gate != nil && !c.gate() {
		return nil, ErrDisabled
	}

	kind := key.Kind()
	now := c.now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.lookupLocked(key)
	e.fetcher = fetch
	e.lastAccess = now
	e.staleAfter = c.policy.StaleAfter(kind)
	if opts.StaleAfter > 0 {
		e.staleAfter = opts.StaleAfter
	}

	if e.hasData && !e.invalidated && e.state != Error {
		data := e.data
		c.metrics.CacheHit(kind)
		if now.Sub(e.fetchedAt) <= e.staleAfter {
			c.mu.Unlock()
			return data, nil
		}

		var notify func()
		if e.flight == nil {
			slog.Debug("Cache stale, revalidating", "key", key)
			e.state = Stale
			c.startFlightLocked(e, true)
			notify = c.notifyLocked(e)
		}
		c.mu.Unlock()
		if notify != nil {
			notify()
		}
		return data, nil
	}

	c.metrics.CacheMiss(kind)
	slog.Debug("Cache miss", "key", key, "state", e.state)

	var notify func()
	f := e.flight
	if f == nil || f.gen != e.gen {
		f = c.startFlightLocked(e, false)
		notify = c.notifyLocked(e)
	}
	f.waiters++
	ch := c.group.DoChan(f.key, f.fn)
	c.mu.Unlock()
	if notify != nil {
		notify()
	}

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		c.mu.Lock()
		f.waiters--
		c.releaseLocked(e, f)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Cache) lookupLocked(key Key) *entry {
	id := key.id()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...), state: Idle}
		c.entries[id] = e
	}
	return e
}

// startFlightLocked launches a fetch for the entry's current generation.
func (c *Cache) startFlightLocked(e *entry, background bool) *flight {
	c.seq++
	ctx, cancel := context.WithCancel(c.ctx)
	f := &flight{
		key:        e.key.id() + "#" + strconv.FormatUint(e.gen, 10) + "#" + strconv.FormatUint(c.seq, 10),
		gen:        e.gen,
		ctx:        ctx,
		cancel:     cancel,
		background: background,
	}
	fetch := e.fetcher
	f.fn = func() (any, error) {
		defer cancel()
		v, err := fetch(ctx)
		c.complete(e, f, v, err)
		return v, err
	}
	e.flight = f
	if !e.hasData || e.invalidated || e.state == Error {
		e.state = Loading
	}
	if background {
		c.group.DoChan(f.key, f.fn)
	}
	return f
}

// releaseLocked cancels f once nobody is waiting on it and, for the
// entry's current flight, no observer remains.
func (c *Cache) releaseLocked(e *entry, f *flight) {
	if f.cancelled || f.waiters > 0 || f.background {
		return
	}
	current := e.flight == f
	if current && len(e.observers) > 0 {
		return
	}
	f.cancelled = true
	f.cancel()
	if current {
		e.flight = nil
		if e.hasData && !e.invalidated {
			e.state = Stale
		} else if e.state == Loading {
			e.state = Idle
		}
	}
	slog.Debug("Cache fetch cancelled, no interest left", "key", e.key)
}

func (c *Cache) complete(e *entry, f *flight, v any, err error) {
	kind := e.key.Kind()
	c.mu.Lock()
	if e.flight == f {
		e.flight = nil
	}
	if f.cancelled || c.closed || c.entries[e.key.id()] != e {
		c.mu.Unlock()
		return
	}
	c.metrics.CacheFetch(kind, err)
	if f.gen != e.gen {
		slog.Debug("Discarding result of superseded fetch", "key", e.key, "fetch_gen", f.gen)
		if e.flight != nil || e.state != Loading {
			c.mu.Unlock()
			return
		}
		// Nothing replaced the discarded fetch; settle until the next read.
		if e.hasData {
			e.state = Stale
		} else {
			e.state = Idle
		}
		notify := c.notifyLocked(e)
		c.mu.Unlock()
		notify()
		return
	}

	now := c.now()
	e.lastAccess = now
	switch {
	case err != nil && f.background && e.hasData:
		e.state = Stale
		e.err = err
		slog.Debug("Background revalidation failed", "key", e.key, "error", err)
	case err != nil:
		e.state = Error
		e.err = err
		slog.Debug("Cache fetch failed", "key", e.key, "error", err)
	default:
		e.data = v
		e.hasData = true
		e.fetchedAt = now
		e.state = Fresh
		e.err = nil
		e.invalidated = false
	}
	notify := c.notifyLocked(e)
	c.mu.Unlock()
	notify()
}

// Invalidate marks matching entries stale. Observed entries refetch
// immediately; others refetch on their next read.
func (c *Cache) Invalidate(matchers ...Matcher) {
	var notifies []func()

	c.mu.Lock()
	for _, e := range c.entries {
		if !matchesAny(e.key, matchers) {
			continue
		}
		e.gen++
		e.invalidated = true
		if e.state != Loading {
			if e.hasData {
				e.state = Stale
			} else {
				e.state = Idle
			}
		}
		c.metrics.CacheInvalidated(e.key.Kind())
		slog.Debug("Cache invalidated", "key", e.key, "gen", e.gen)

		if len(e.observers) > 0 && e.fetcher != nil && !c.closed {
			c.startFlightLocked(e, false)
			c.group.DoChan(e.flight.key, e.flight.fn)
		}
		notifies = append(notifies, c.notifyLocked(e))
	}
	c.mu.Unlock()

	for _, n := range notifies {
		n()
	}
}

func matchesAny(k Key, matchers []Matcher) bool {
	for _, m := range matchers {
		if m != nil && m.Match(k) {
			return true
		}
	}
	return false
}

// Subscribe delivers a snapshot of key's entry after every state change.
// The returned function stops delivery without cancelling shared fetches
// that callers still wait on.
func (c *Cache) Subscribe(key Key, fn func(Entry)) func() {
	c.mu.Lock()
	c.seq++
	id := c.seq
	e := c.lookupLocked(key)
	if e.observers == nil {
		e.observers = make(map[uint64]func(Entry))
	}
	e.observers[id] = fn
	e.lastAccess = c.now()
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(e.observers, id)
			e.lastAccess = c.now()
			if len(e.observers) == 0 && e.flight != nil {
				c.releaseLocked(e, e.flight)
			}
		})
	}
}

// Peek returns the entry for key without fetching.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Len returns the number of entries held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops all cached data, as on logout. Observed entries stay
// registered but return to Idle.
func (c *Cache) Reset() {
	var notifies []func()

	c.mu.Lock()
	for id, e := range c.entries {
		if e.flight != nil {
			e.flight.cancelled = true
			e.flight.cancel()
			e.flight = nil
		}
		if len(e.observers) == 0 {
			delete(c.entries, id)
			continue
		}
		e.gen++
		e.data = nil
		e.hasData = false
		e.invalidated = false
		e.fetchedAt = time.Time{}
		e.state = Idle
		e.err = nil
		notifies = append(notifies, c.notifyLocked(e))
	}
	c.mu.Unlock()

	for _, n := range notifies {
		n()
	}
	slog.Debug("Cache reset")
}

// Close stops the janitor and cancels in-flight fetches.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (e *entry) snapshot() Entry {
	return Entry{
		Key:        e.key,
		Data:       e.data,
		FetchedAt:  e.fetchedAt,
		StaleAfter: e.staleAfter,
		State:      e.state,
		Err:        e.err,
		Fetching:   e.flight != nil,
	}
}

// notifyLocked captures the observers and snapshot; the returned func
// delivers them and must be called without holding mu.
func (c *Cache) notifyLocked(e *entry) func() {
	if len(e.observers) == 0 {
		return func() {}
	}
	snap := e.snapshot()
	fns := make([]func(Entry), 0, len(e.observers))
	for _, fn := range e.observers {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(snap)
		}
	}
}

func (c *Cache) startCleanup() {
	defer c.wg.Done()

	interval := time.Minute
	if c.gcAfter < interval {
		interval = c.gcAfter
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if n := c.collect(c.now()); n > 0 {
				slog.Debug("Cache evicted idle entries", "count", n)
			}
		}
	}
}

// collect evicts unobserved, idle entries not touched for gcAfter.
func (c *Cache) collect(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id, e := range c.entries {
		if len(e.observers) > 0 || e.flight != nil {
			continue
		}
		if now.Sub(e.lastAccess) >= c.gcAfter {
			delete(c.entries, id)
			evicted++
		}
	}
	return evicted
}
