package guard

import (
	"context"
	"sync"
	"time"
)

const (
	// MaxIPFailures is the per-IP failure count that triggers a block.
	MaxIPFailures = 5
	// IPBlockDuration is how long a tripped IP stays blocked.
	IPBlockDuration = 10 * time.Minute
)

// BlockStore tracks login failures per source IP, independent of which
// accounts were targeted. The store is injected so production can back
// it with Redis (shared across instances) while tests and single-node
// deployments use process memory.
type BlockStore interface {
	// Increment records one failure and returns the new count.
	Increment(ctx context.Context, ip string) (int, error)
	// IsBlocked reports whether the IP is blocked and for how much longer.
	IsBlocked(ctx context.Context, ip string) (bool, time.Duration, error)
	// Reset clears state for an IP.
	Reset(ctx context.Context, ip string) error
}

type memoryEntry struct {
	failures     int
	lastAttempt  time.Time
	blockedUntil time.Time
}

// MemoryBlockStore is the process-local implementation. State does not
// survive restarts and is not shared across instances; multi-instance
// deployments should use the Redis store.
type MemoryBlockStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryBlockStore creates an empty in-memory store.
func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryBlockStore) Increment(ctx context.Context, ip string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.entries[ip]
	if !ok || now.Sub(entry.lastAttempt) > IPBlockDuration {
		entry = &memoryEntry{}
		s.entries[ip] = entry
	}

	entry.failures++
	entry.lastAttempt = now
	if entry.failures >= MaxIPFailures {
		entry.blockedUntil = now.Add(IPBlockDuration)
	}

	return entry.failures, nil
}

func (s *MemoryBlockStore) IsBlocked(ctx context.Context, ip string) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[ip]
	if !ok {
		return false, 0, nil
	}

	remaining := time.Until(entry.blockedUntil)
	if remaining <= 0 {
		if !entry.blockedUntil.IsZero() {
			// Block expired; drop the stale counter too.
			delete(s.entries, ip)
		}
		return false, 0, nil
	}

	return true, remaining, nil
}

func (s *MemoryBlockStore) Reset(ctx context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, ip)
	return nil
}
