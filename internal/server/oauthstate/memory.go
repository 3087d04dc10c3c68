package oauthstate

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/crosspost/internal/common"
)

type memoryEntry struct {
	pending   Pending
	expiresAt time.Time
}

// MemoryStore is a single-instance fallback used when no Redis is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, state string, p Pending, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[state] = memoryEntry{pending: p, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, state string) (*Pending, error) {
	s.mu.Lock()
	e, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok || !s.now().Before(e.expiresAt) {
		return nil, common.ErrInvalidState
	}
	p := e.pending
	return &p, nil
}
