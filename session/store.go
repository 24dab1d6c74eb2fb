package session

import (
	"context"
	"fmt"
	"time"

	"github.com/goware/cachestore"
	"github.com/goware/cachestore/cachestorectl"
)

// Store is a typed TTL session store with explicit create/get/delete
// operations. It replaces ambient module-level session maps: expiry is
// managed by the backing cache, not by ad-hoc timers, and the store is
// injected into whatever drives the flow.
type Store[T any] struct {
	sessions cachestore.Store[T]
	ttl      time.Duration
}

// NewStore opens a session store on the given cache backend. Sessions
// live for ttl after creation; a zero ttl is a configuration error.
func NewStore[T any](backend cachestore.Backend, ttl time.Duration) (*Store[T], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session: ttl must be positive")
	}
	sessions, err := cachestorectl.Open[T](backend)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &Store[T]{sessions: sessions, ttl: ttl}, nil
}

// Create stores a new session under the given token. An existing session
// under the same token is overwritten; callers mint unique tokens.
func (s *Store[T]) Create(ctx context.Context, token string, session T) error {
	if token == "" {
		return fmt.Errorf("session: empty token")
	}
	if err := s.sessions.SetEx(ctx, token, session, s.ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get looks up a live session. Expired sessions are indistinguishable
// from never-created ones.
func (s *Store[T]) Get(ctx context.Context, token string) (T, bool, error) {
	session, exists, err := s.sessions.Get(ctx, token)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("get session: %w", err)
	}
	return session, exists, nil
}

// Update overwrites a live session in place, keeping the remaining TTL
// semantics simple: the clock restarts on update.
func (s *Store[T]) Update(ctx context.Context, token string, session T) error {
	_, exists, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("session: token %q not found", token)
	}
	return s.Create(ctx, token, session)
}

// Delete removes a session. Deleting a missing session is a no-op.
func (s *Store[T]) Delete(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
