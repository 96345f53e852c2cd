// ABOUTME: Staleness windows per resource kind
// ABOUTME: Reference catalogs stay fresh longer than fast-changing farm state

package cache

import "time"

// Policy maps resource kinds to their stale windows.
type Policy struct {
	Default time.Duration
	ByKind  map[string]time.Duration
}

// DefaultPolicy mirrors the game clients' query defaults.
func DefaultPolicy() Policy {
	return Policy{
		Default: 5 * time.Minute,
		ByKind: map[string]time.Duration{
			"plantings":   time.Minute,
			"weather":     15 * time.Minute,
			"tool-types":  time.Hour,
			"input-types": time.Hour,
			"species":     time.Hour,
		},
	}
}

// StaleAfter returns the window for kind.
func (p Policy) StaleAfter(kind string) time.Duration {
	if d, ok := p.ByKind[kind]; ok && d > 0 {
		return d
	}
	if p.Default > 0 {
		return p.Default
	}
	return 5 * time.Minute
}
