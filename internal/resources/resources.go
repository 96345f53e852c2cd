// ABOUTME: Typed game resources read and written through the query cache
// ABOUTME: Each mutation declares the cached keys it invalidates

package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/markalston/novorio/internal/cache"
	"github.com/markalston/novorio/internal/client"
	"github.com/markalston/novorio/internal/config"
	"github.com/markalston/novorio/internal/models"
)

// Cache kinds. The first element of every key this package builds.
const (
	KindPlayers    = "players"
	KindTerrains   = "terrains"
	KindQuadrants  = "quadrants"
	KindPlantings  = "plantings"
	KindSpecies    = "species"
	KindTools      = "tools"
	KindToolTypes  = "tool-types"
	KindInputs     = "inputs"
	KindInputTypes = "input-types"
	KindInventory  = "inventory"
	KindWeather    = "weather"
)

// ErrNoPlayer is returned by player-scoped calls when no player is selected.
var ErrNoPlayer = errors.New("resources: no current player")

// API is the subset of the HTTP client used here.
type API interface {
	Do(ctx context.Context, method, path string, body, out any, opts client.RequestOptions) error
}

// Players supplies the current player id.
type Players interface {
	CurrentID() models.ID
}

// Options tunes a Service.
type Options struct {
	Retries int // GET retries passed to the client
}

// Service exposes the game resources of the current player.
type Service struct {
	api     API
	cache   *cache.Cache
	players Players
	retries int
}

// New creates a Service reading through c.
func New(api API, c *cache.Cache, players Players, opts Options) *Service {
	return &Service{api: api, cache: c, players: players, retries: opts.Retries}
}

// Policy maps the configured stale windows onto resource kinds.
func Policy(w config.StaleWindows) cache.Policy {
	return cache.Policy{
		Default: w.Default,
		ByKind: map[string]time.Duration{
			KindPlantings:  w.Planting,
			KindWeather:    w.Weather,
			KindToolTypes:  w.Reference,
			KindInputTypes: w.Reference,
			KindSpecies:    w.Reference,
		},
	}
}

func (s *Service) playerID() (models.ID, error) {
	id := s.players.CurrentID()
	if id == "" {
		return "", ErrNoPlayer
	}
	return id, nil
}

// PlayerKey is the cache key under which a player is read.
func PlayerKey(id models.ID) cache.Key {
	return cache.NewKey(KindPlayers, id)
}

// list fetches path and accepts either a paginated page or a bare array.
func list[T any](ctx context.Context, s *Service, key cache.Key, path string, query url.Values) ([]T, error) {
	return cache.Read(ctx, s.cache, key, func(ctx context.Context) ([]T, error) {
		var items collection[T]
		if err := s.api.Do(ctx, http.MethodGet, path, nil, &items, client.RequestOptions{Retries: s.retries, Query: query}); err != nil {
			return nil, err
		}
		return items.items, nil
	}, cache.ReadOptions{})
}

// one fetches a single resource.
func one[T any](ctx context.Context, s *Service, key cache.Key, path string) (*T, error) {
	return cache.Read(ctx, s.cache, key, func(ctx context.Context) (*T, error) {
		var v T
		if err := s.api.Do(ctx, http.MethodGet, path, nil, &v, client.RequestOptions{Retries: s.retries}); err != nil {
			return nil, err
		}
		return &v, nil
	}, cache.ReadOptions{})
}

// write posts or patches body and invalidates keys on success.
func write[T any](ctx context.Context, s *Service, method, path string, body any, invalidates ...cache.Matcher) (*T, error) {
	return cache.Mutate(ctx, s.cache, func(ctx context.Context) (*T, error) {
		var v T
		if err := s.api.Do(ctx, method, path, body, &v, client.RequestOptions{}); err != nil {
			return nil, err
		}
		return &v, nil
	}, invalidates...)
}

// send is write for endpoints whose response body is not needed.
func (s *Service) send(ctx context.Context, path string, body any, invalidates ...cache.Matcher) error {
	_, err := cache.Mutate(ctx, s.cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.api.Do(ctx, http.MethodPost, path, body, nil, client.RequestOptions{})
	}, invalidates...)
	return err
}

// collection decodes {"items": [...]} pages and bare arrays alike.
type collection[T any] struct {
	items []T
}

func (c *collection[T]) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var l models.List[T]
		if err := json.Unmarshal(trimmed, &l); err != nil {
			return err
		}
		if err := l.Validate(); err != nil {
			return err
		}
		c.items = l
		return nil
	}

	var p models.Page[T]
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	c.items = p.Items
	return nil
}
