package scylla

import (
	"errors"
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRetryStopsOnNotFound(t *testing.T) {
	calls := 0
	err := scanWithRetry(func() error {
		calls++
		return gocql.ErrNotFound
	})

	assert.Equal(t, gocql.ErrNotFound, err)
	assert.Equal(t, 1, calls, "a definitive miss must not be retried")
}

func TestScanRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := scanWithRetry(func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestScanRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	err := scanWithRetry(func() error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestScanRetryGivesUpAfterThreeTries(t *testing.T) {
	transient := errors.New("timeout")
	calls := 0
	err := scanWithRetry(func() error {
		calls++
		return transient
	})

	assert.Equal(t, transient, err)
	assert.Equal(t, 3, calls)
}
