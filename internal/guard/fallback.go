// ABOUTME: Time-boxed waiting for the entity check
// ABOUTME: Lets navigation proceed when player resolution stalls

package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultFallbackTimeout bounds how long a decision waits on player data.
const DefaultFallbackTimeout = 5 * time.Second

// ErrFallbackFired is returned when the awaited condition missed the deadline.
var ErrFallbackFired = errors.New("guard: fallback timeout fired")

// AwaitWithFallback waits for ready to close. The timer is stopped as soon
// as ready wins.
func AwaitWithFallback(ctx context.Context, ready <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultFallbackTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case <-timer.C:
		return ErrFallbackFired
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EntityCheck reports whether the current user has created their entity.
type EntityCheck func(ctx context.Context) (bool, error)

// Resolve authorizes path, waiting up to timeout for ready before the
// entity check when the route needs one. On timeout the entity is treated
// as unknown and the user is sent to entity creation.
func (g *Guard) Resolve(ctx context.Context, path string, authenticated bool, ready <-chan struct{}, check EntityCheck, timeout time.Duration) Decision {
	if !authenticated || g.Classify(path) != AuthAndEntityRequired {
		return g.Authorize(path, authenticated, false)
	}

	if err := AwaitWithFallback(ctx, ready, timeout); err != nil {
		slog.Warn("Entity check did not resolve in time", "path", path, "error", err)
		return Decision{Redirect: &Redirect{Path: g.entityPath, From: normalize(path), Reason: ReasonFallbackTimeout}}
	}

	hasEntity, err := check(ctx)
	if err != nil {
		slog.Warn("Entity check failed", "path", path, "error", err)
	}
	return g.Authorize(path, authenticated, hasEntity)
}
