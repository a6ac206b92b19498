package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"portfolio-chat/internal/domain"
)

const defaultMemoryCapacity = 1000

// MemoryStore is a bounded in-process session store for local runs and
// tests. Entries expire lazily: a Load past the TTL evicts and reports a miss.
type MemoryStore struct {
	cache *lru.Cache[string, domain.Session]
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryStore(capacity int, ttl time.Duration) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache, err := lru.New[string, domain.Session](capacity)
	if err != nil {
		return nil, fmt.Errorf("repository: create lru: %w", err)
	}
	return &MemoryStore{cache: cache, ttl: ttl, now: time.Now}, nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (domain.Session, bool, error) {
	s, ok := m.cache.Get(sessionID)
	if !ok {
		return domain.Session{}, false, nil
	}
	if m.now().Sub(s.UpdatedAt) > m.ttl {
		m.cache.Remove(sessionID)
		return domain.Session{}, false, nil
	}
	return copySession(s), true, nil
}

func (m *MemoryStore) Save(_ context.Context, s domain.Session) error {
	if s.ID == "" {
		return fmt.Errorf("repository: Save: session id is required")
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = m.now()
	}
	m.cache.Add(s.ID, copySession(s))
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.cache.Remove(sessionID)
	return nil
}

// Len reports the number of cached sessions, expired ones included.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

func copySession(s domain.Session) domain.Session {
	s.Context.History = slices.Clone(s.Context.History)
	s.Context.UserPreferences = slices.Clone(s.Context.UserPreferences)
	s.Transcript = slices.Clone(s.Transcript)
	return s
}
