// ABOUTME: Structured cache keys and invalidation matchers
// ABOUTME: Keys are tuples whose first element names the resource kind

package cache

import (
	"fmt"
	"strings"
)

// Key identifies a cached resource, e.g. ("terrains", playerID).
type Key []string

// NewKey builds a key from a kind and its parameters.
func NewKey(kind string, params ...any) Key {
	k := make(Key, 0, len(params)+1)
	k = append(k, kind)
	for _, p := range params {
		k = append(k, fmt.Sprint(p))
	}
	return k
}

// Kind returns the resource kind, or "" for an empty key.
func (k Key) Kind() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// HasPrefix reports whether every element of prefix matches k's leading elements.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Match makes a Key a prefix matcher.
func (k Key) Match(other Key) bool {
	return other.HasPrefix(k)
}

func (k Key) String() string {
	return "(" + strings.Join(k, ", ") + ")"
}

func (k Key) id() string {
	return strings.Join(k, "\x1f")
}

// Matcher selects entries for invalidation.
type Matcher interface {
	Match(Key) bool
}

// Predicate matches keys with an arbitrary function.
type Predicate func(Key) bool

func (p Predicate) Match(k Key) bool { return p(k) }
