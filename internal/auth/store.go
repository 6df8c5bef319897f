package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"easierfocus/internal/model"
	"easierfocus/internal/storage"
)

// Store holds the one client-side Session and mirrors it to device storage
// under a single key. Every write replaces the whole record.
type Store struct {
	backend storage.Backend
	key     string
	log     *zap.Logger

	mu      sync.Mutex
	current *model.Session
}

func NewStore(backend storage.Backend, key string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{backend: backend, key: key, log: log}
}

// Restore rehydrates from storage. A missing record leaves the store empty; a
// record that does not decode or has no access token is deleted. Restore never
// fails: storage errors are logged and the store stays anonymous.
func (s *Store) Restore(ctx context.Context) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil

	raw, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("read persisted session", zap.Error(err))
		}
		return nil
	}

	var session model.Session
	if err := json.Unmarshal(raw, &session); err != nil || !session.Valid() {
		s.log.Warn("discarding persisted session", zap.Error(ErrMalformedSession), zap.NamedError("cause", err))
		if err := s.backend.Delete(ctx, s.key); err != nil {
			s.log.Warn("delete malformed session", zap.Error(err))
		}
		return nil
	}

	s.current = &session
	return session.Clone()
}

// Set persists session and then makes it current. On a storage error the
// previous session stays current.
func (s *Store) Set(ctx context.Context, session *model.Session) error {
	if !session.Valid() {
		return fmt.Errorf("%w: session has no access token", ErrInvalidInput)
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.current = session.Clone()
	return nil
}

// Clear drops the in-memory session even when the storage delete fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete persisted session: %w", err)
	}
	return nil
}

// Replace stores next only while the current session still carries
// staleAccessToken. It reports false, leaving the store untouched, when the
// session was signed out or replaced in the meantime.
func (s *Store) Replace(ctx context.Context, staleAccessToken string, next *model.Session) (bool, error) {
	if !next.Valid() {
		return false, fmt.Errorf("%w: session has no access token", ErrInvalidInput)
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.AccessToken != staleAccessToken {
		return false, nil
	}
	if err := s.backend.Set(ctx, s.key, raw); err != nil {
		return false, fmt.Errorf("persist session: %w", err)
	}
	s.current = next.Clone()
	return true, nil
}

// ClearIf clears the store like Clear, but only while the current session
// still carries staleAccessToken.
func (s *Store) ClearIf(ctx context.Context, staleAccessToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.AccessToken != staleAccessToken {
		return false, nil
	}

	s.current = nil
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return true, fmt.Errorf("delete persisted session: %w", err)
	}
	return true, nil
}

func (s *Store) Current() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}
