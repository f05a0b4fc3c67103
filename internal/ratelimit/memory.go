// internal/ratelimit/memory.go
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and deployments without Redis.
// Expired keys are dropped lazily on access.
type MemoryStore struct {
	mu            sync.Mutex
	entries       map[string]time.Time
	cooldownTTL   time.Duration
	sessionWindow time.Duration
	now           func() time.Time
}

func NewMemoryStore(cooldownTTL, sessionWindow time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:       make(map[string]time.Time),
		cooldownTTL:   cooldownTTL,
		sessionWindow: sessionWindow,
		now:           time.Now,
	}
}

// setIfAbsent reserves key for ttl unless a live entry already exists.
func (s *MemoryStore) setIfAbsent(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.entries[key]; ok && exp.After(now) {
		return false
	}
	s.entries[key] = now.Add(ttl)
	return true
}

func (s *MemoryStore) exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.entries[key]
	if !ok {
		return false
	}
	if !exp.After(s.now()) {
		delete(s.entries, key)
		return false
	}
	return true
}

func (s *MemoryStore) CheckAndReserveSendSlot(ctx context.Context, sender, recipient string) (bool, error) {
	return s.setIfAbsent(cooldownKey(sender, recipient), s.cooldownTTL), nil
}

func (s *MemoryStore) IsSessionWindowOpen(ctx context.Context, sender, recipient string) (bool, error) {
	return s.exists(sessionKey(sender, recipient)), nil
}

func (s *MemoryStore) OpenSessionWindow(ctx context.Context, sender, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionKey(sender, recipient)] = s.now().Add(s.sessionWindow)
	return nil
}

var _ Store = (*MemoryStore)(nil)
