// ABOUTME: Durable key-value storage for the authenticated session
// ABOUTME: Multi-key writes and deletes are atomic so token and user never diverge

package session

import (
	"context"
	"errors"
	"sync"
)

// Persisted keys.
const (
	KeyToken           = "auth_token"
	KeyUser            = "auth_user"
	KeyCurrentPlayerID = "current_player_id"
)

// ErrStoreUnavailable wraps backend failures of a Store.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Store persists session state across process runs. SetMany and Delete
// apply to all named keys or to none.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) SetMany(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}
