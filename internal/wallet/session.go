package wallet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session token is unknown or expired.
var ErrSessionNotFound = errors.New("wallet session not found")

// Session records one connected-wallet lifetime. BearerToken carries the
// backend credential obtained by signing in with the wallet, when present.
type Session struct {
	Token       string    `json:"token"`
	Address     string    `json:"address"`
	Chain       string    `json:"chain"`
	BearerToken string    `json:"bearer_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// NewSessionToken returns a fresh opaque session identifier.
func NewSessionToken() string {
	return uuid.NewString()
}

// SessionStore persists wallet sessions keyed by token. Implementations must
// be safe for concurrent use and must treat expired sessions as absent.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Find(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	Close() error
}

// MemorySessionStore keeps sessions in process memory with a fixed TTL,
// intended for development and testing scenarios.
type MemorySessionStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*Session
}

// NewMemorySessionStore initialises the store. A non-positive ttl defaults to
// one day.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemorySessionStore{
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Save upserts the session, stamping CreatedAt and ExpiresAt when unset.
func (s *MemorySessionStore) Save(_ context.Context, session *Session) error {
	if session == nil || strings.TrimSpace(session.Token) == "" {
		return errors.New("session token cannot be empty")
	}
	now := time.Now()
	clone := *session
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	if clone.ExpiresAt.IsZero() {
		clone.ExpiresAt = clone.CreatedAt.Add(s.ttl)
	}
	s.mu.Lock()
	s.sessions[clone.Token] = &clone
	s.mu.Unlock()
	return nil
}

// Find retrieves the session for token, expiring it lazily.
func (s *MemorySessionStore) Find(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Expired(time.Now()) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

// Delete removes the session for token. Deleting an unknown token is a no-op.
func (s *MemorySessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

// PurgeExpired removes all sessions past their expiry and reports how many
// were dropped.
func (s *MemorySessionStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Close implements SessionStore.
func (s *MemorySessionStore) Close() error {
	return nil
}
