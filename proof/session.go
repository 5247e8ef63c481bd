package proof

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/google/uuid"
)

// Session records a successful possession proof. Sessions are held in memory
// only and never persisted; a restart requires every client to prove again.
type Session struct {
	Token     string         `json:"session_token"`
	Identity  common.Address `json:"address"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

type SessionStore struct {
	sessions *lru.Cache[string, Session]
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionStore(capacity int, ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: lru.NewCache[string, Session](capacity),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *SessionStore) Open(identity common.Address) Session {
	now := s.now()
	session := Session{
		Token:     uuid.NewString(),
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.sessions.Add(session.Token, session)
	return session
}

func (s *SessionStore) Lookup(token string) (Session, error) {
	session, ok := s.sessions.Get(token)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.now().After(session.ExpiresAt) {
		s.sessions.Remove(token)
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) Close(token string) {
	s.sessions.Remove(token)
}

func (s *SessionStore) Active() int {
	return s.sessions.Len()
}
