package lockout

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and single-node
// development setups. The clock is injectable.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	count          int
	counterExpires time.Time
	lockedUntil    time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test use only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) RecordFailure(ctx context.Context, key string, threshold int, lockTTL, counterTTL time.Duration) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := s.live(key, now)

	if now.Before(entry.lockedUntil) {
		return State{
			Locked:         true,
			FailedAttempts: entry.count,
			Remaining:      entry.lockedUntil.Sub(now),
		}, nil
	}

	entry.count++
	if entry.count == 1 {
		entry.counterExpires = now.Add(counterTTL)
	}

	if entry.count >= threshold {
		entry.lockedUntil = now.Add(lockTTL)
		// The counter dies with the lock so attempts after an expired
		// lock start a fresh count.
		entry.counterExpires = entry.lockedUntil
		s.entries[key] = entry
		return State{
			Locked:         true,
			FailedAttempts: entry.count,
			Remaining:      lockTTL,
		}, nil
	}

	s.entries[key] = entry
	return State{FailedAttempts: entry.count}, nil
}

func (s *MemoryStore) Status(ctx context.Context, key string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := s.live(key, now)

	if now.Before(entry.lockedUntil) {
		return State{
			Locked:         true,
			FailedAttempts: entry.count,
			Remaining:      entry.lockedUntil.Sub(now),
		}, nil
	}
	return State{FailedAttempts: entry.count}, nil
}

func (s *MemoryStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// live returns the entry for key with expired state dropped, mirroring
// Redis key expiry.
func (s *MemoryStore) live(key string, now time.Time) *memoryEntry {
	entry, ok := s.entries[key]
	if !ok {
		entry = &memoryEntry{}
		s.entries[key] = entry
		return entry
	}
	if !entry.counterExpires.IsZero() && !now.Before(entry.counterExpires) {
		entry.count = 0
		entry.counterExpires = time.Time{}
	}
	if !entry.lockedUntil.IsZero() && !now.Before(entry.lockedUntil) {
		entry.lockedUntil = time.Time{}
	}
	return entry
}
