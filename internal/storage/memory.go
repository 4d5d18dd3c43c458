package storage

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps per-session slots in process memory. Sessions idle for
// longer than the TTL, or pushed out by the size bound, are dropped whole,
// which mirrors browser session storage going away with its tab.
type MemoryStore struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *memorySession]
}

type memorySession struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates a store holding at most size sessions (0 = unbounded)
// that each expire ttl after their last access.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: expirable.NewLRU[string, *memorySession](size, nil, ttl),
	}
}

// Scope returns the KV view of one browser session.
func (m *MemoryStore) Scope(sessionID string) KV {
	return &memoryScope{store: m, sessionID: sessionID}
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	return m.sessions.Len()
}

// DeleteSession drops every slot of a browser session.
func (m *MemoryStore) DeleteSession(sessionID string) {
	m.sessions.Remove(sessionID)
}

// session returns the live session entry, refreshing its TTL. When create is
// false and the session is unknown, it returns nil.
func (m *MemoryStore) session(sessionID string, create bool) *memorySession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		if !create {
			return nil
		}
		s = &memorySession{values: make(map[string]string)}
	}
	m.sessions.Add(sessionID, s)
	return s
}

type memoryScope struct {
	store     *MemoryStore
	sessionID string
}

func (k *memoryScope) Get(_ context.Context, key string) (string, bool, error) {
	s := k.store.session(k.sessionID, false)
	if s == nil {
		return "", false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (k *memoryScope) Set(_ context.Context, key, value string) error {
	s := k.store.session(k.sessionID, true)
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

func (k *memoryScope) Delete(_ context.Context, key string) error {
	s := k.store.session(k.sessionID, false)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}
