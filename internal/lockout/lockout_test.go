package lockout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(t *testing.T) (*Policy, *MemoryStore, *time.Time) {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.SetClock(func() time.Time { return now })

	policy := NewPolicy(store, 5, 30*time.Second, 24*time.Hour)
	return policy, store, &now
}

func TestRecordFailureLocksAtThreshold(t *testing.T) {
	policy, _, _ := testPolicy(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, policy.RecordFailure(ctx, "a@example.com"))
	}

	err := policy.RecordFailure(ctx, "a@example.com")
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, 30, locked.RemainingSeconds())
}

func TestCheckDoesNotConsumeAttempts(t *testing.T) {
	policy, _, clock := testPolicy(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		policy.RecordFailure(ctx, "a@example.com")
	}

	// Hammering a locked account must not extend the lock
	for i := 0; i < 10; i++ {
		err := policy.Check(ctx, "a@example.com")
		var locked *LockedError
		require.ErrorAs(t, err, &locked)
	}

	*clock = clock.Add(31 * time.Second)
	assert.NoError(t, policy.Check(ctx, "a@example.com"))
}

func TestFailuresDuringLockDoNotCount(t *testing.T) {
	policy, _, clock := testPolicy(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		policy.RecordFailure(ctx, "a@example.com")
	}

	// Still locked; these attempts report the lock and change nothing
	err := policy.RecordFailure(ctx, "a@example.com")
	var locked *LockedError
	require.ErrorAs(t, err, &locked)

	// After the lock expires the count starts over
	*clock = clock.Add(31 * time.Second)
	require.NoError(t, policy.RecordFailure(ctx, "a@example.com"))
}

func TestResetClearsEverything(t *testing.T) {
	policy, store, _ := testPolicy(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		policy.RecordFailure(ctx, "a@example.com")
	}
	require.NoError(t, policy.Reset(ctx, "a@example.com"))

	state, err := store.Status(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, state.Locked)
	assert.Zero(t, state.FailedAttempts)
}

func TestCounterExpiresAfterWindow(t *testing.T) {
	policy, store, clock := testPolicy(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		policy.RecordFailure(ctx, "a@example.com")
	}

	*clock = clock.Add(24*time.Hour + time.Second)

	state, err := store.Status(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Zero(t, state.FailedAttempts)

	// A stale streak does not help towards a lock
	require.NoError(t, policy.RecordFailure(ctx, "a@example.com"))
}

func TestKeysAreIndependent(t *testing.T) {
	policy, _, _ := testPolicy(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		policy.RecordFailure(ctx, "a@example.com")
	}

	assert.NoError(t, policy.Check(ctx, "b@example.com"))
	require.NoError(t, policy.RecordFailure(ctx, "b@example.com"))
}

func TestLockedErrorRoundsUp(t *testing.T) {
	err := &LockedError{Remaining: 1200 * time.Millisecond}
	assert.Equal(t, 2, err.RemainingSeconds())

	err = &LockedError{Remaining: 50 * time.Millisecond}
	assert.Equal(t, 1, err.RemainingSeconds())
}

func TestPolicyDefaults(t *testing.T) {
	store := NewMemoryStore()
	policy := NewPolicy(store, 0, 0, 0)
	ctx := context.Background()

	var lastErr error
	for i := 0; i < 5; i++ {
		lastErr = policy.RecordFailure(ctx, "a@example.com")
	}

	var locked *LockedError
	require.True(t, errors.As(lastErr, &locked))
}
