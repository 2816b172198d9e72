package lockout

import (
	"context"
	"fmt"
	"time"
)

// State is a snapshot of an account's lockout status.
type State struct {
	Locked         bool
	FailedAttempts int
	Remaining      time.Duration // time until the lock expires, when locked
}

// Store performs the lockout bookkeeping. RecordFailure must be atomic:
// concurrent failures may not double-count an attempt or lock twice.
type Store interface {
	// RecordFailure increments the failure counter and locks the key when
	// the counter reaches threshold. If the key is already locked the
	// counter is left untouched and the locked state is returned.
	RecordFailure(ctx context.Context, key string, threshold int, lockTTL, counterTTL time.Duration) (State, error)

	// Status reports the current state without modifying it.
	Status(ctx context.Context, key string) (State, error)

	// Clear removes the counter and any lock for the key.
	Clear(ctx context.Context, key string) error
}

// LockedError signals that an account is locked out, carrying the time
// remaining until attempts are evaluated normally again.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %d seconds", e.RemainingSeconds())
}

// RemainingSeconds rounds up so a caller never retries too early.
func (e *LockedError) RemainingSeconds() int {
	secs := int((e.Remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Policy applies the configured lockout rules on top of a Store.
type Policy struct {
	store      Store
	threshold  int
	lockTTL    time.Duration
	counterTTL time.Duration
}

func NewPolicy(store Store, threshold int, lockTTL, counterTTL time.Duration) *Policy {
	if threshold <= 0 {
		threshold = 5
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	if counterTTL <= 0 {
		counterTTL = 24 * time.Hour
	}
	return &Policy{
		store:      store,
		threshold:  threshold,
		lockTTL:    lockTTL,
		counterTTL: counterTTL,
	}
}

// Check returns a LockedError when the key is currently locked, nil
// otherwise. It never consumes an attempt.
func (p *Policy) Check(ctx context.Context, key string) error {
	state, err := p.store.Status(ctx, key)
	if err != nil {
		return fmt.Errorf("lockout status: %w", err)
	}
	if state.Locked {
		return &LockedError{Remaining: state.Remaining}
	}
	return nil
}

// RecordFailure registers a failed attempt. When the attempt trips the
// threshold (or the key was already locked) a LockedError is returned.
func (p *Policy) RecordFailure(ctx context.Context, key string) error {
	state, err := p.store.RecordFailure(ctx, key, p.threshold, p.lockTTL, p.counterTTL)
	if err != nil {
		return fmt.Errorf("lockout record failure: %w", err)
	}
	if state.Locked {
		return &LockedError{Remaining: state.Remaining}
	}
	return nil
}

// Reset clears all lockout state for the key, used after a successful
// authentication.
func (p *Policy) Reset(ctx context.Context, key string) error {
	if err := p.store.Clear(ctx, key); err != nil {
		return fmt.Errorf("lockout reset: %w", err)
	}
	return nil
}
