package flowstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/KickTools/ape-server/internal/domain"
)

// MemoryPendingStore is a mutex-guarded in-memory PendingStore. Adequate for
// single-instance deployment only; a passive sweep on each Put bounds memory
// even if callbacks never arrive.
type MemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]PendingEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

func NewMemoryPendingStore(ttl time.Duration, clock clockwork.Clock) *MemoryPendingStore {
	return &MemoryPendingStore{
		entries: make(map[string]PendingEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (s *MemoryPendingStore) Put(_ context.Context, state string, entry PendingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	entry.CreatedAt = s.clock.Now()
	s.entries[state] = entry
	return nil
}

func (s *MemoryPendingStore) Consume(_ context.Context, state string) (*PendingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return nil, domain.ErrInvalidState
	}
	delete(s.entries, state)

	if s.clock.Now().Sub(entry.CreatedAt) > s.ttl {
		return nil, domain.ErrInvalidState
	}
	return &entry, nil
}

// Size returns the number of live entries, expired included.
func (s *MemoryPendingStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryPendingStore) sweepLocked() {
	cutoff := s.clock.Now().Add(-s.ttl)
	for state, entry := range s.entries {
		if entry.CreatedAt.Before(cutoff) {
			delete(s.entries, state)
		}
	}
}

// MemoryVerificationCache is a mutex-guarded in-memory VerificationCache
// with TTL-based expiry and an optional background eviction timer.
type MemoryVerificationCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]memoryVerificationEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type memoryVerificationEntry struct {
	payload   VerificationPayload
	expiresAt time.Time
}

func NewMemoryVerificationCache(ttl time.Duration, clock clockwork.Clock) *MemoryVerificationCache {
	return &MemoryVerificationCache{
		entries: make(map[uuid.UUID]memoryVerificationEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *MemoryVerificationCache) Stage(_ context.Context, id uuid.UUID, payload VerificationPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload.StagedAt = c.clock.Now()
	c.entries[id] = memoryVerificationEntry{
		payload:   payload,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryVerificationCache) Get(_ context.Context, id uuid.UUID) (*VerificationPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, domain.ErrVerificationExpired
	}
	if c.clock.Now().After(entry.expiresAt) {
		delete(c.entries, id)
		return nil, domain.ErrVerificationExpired
	}
	return &entry.payload, nil
}

func (c *MemoryVerificationCache) Clear(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// EvictExpired removes expired entries and returns the count evicted.
func (c *MemoryVerificationCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
			evicted++
		}
	}
	return evicted
}

// StartEvictionTimer starts a background goroutine that periodically evicts
// expired entries. Returns a stop function.
func (c *MemoryVerificationCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.EvictExpired(); evicted > 0 {
					slog.Debug("Evicted expired verification entries", "count", evicted)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
