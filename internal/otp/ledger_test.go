package otp

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfive/backend/internal/config"
	"github.com/shopfive/backend/internal/hashing"
	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/repository/scylla"
)

// fakeOTPStore keeps rows in memory, newest first per email.
type fakeOTPStore struct {
	rows []*model.OTP
}

func (f *fakeOTPStore) CreateOTP(otp *model.OTP) error {
	if otp.OTPID == "" {
		otp.OTPID = uuid.New().String()
	}
	f.rows = append([]*model.OTP{otp}, f.rows...)
	return nil
}

func (f *fakeOTPStore) GetLatestUnused(email string) (*model.OTP, error) {
	for _, row := range f.rows {
		if row.Email == email && !row.IsUsed {
			copied := *row
			return &copied, nil
		}
	}
	return nil, scylla.ErrNotFound
}

func (f *fakeOTPStore) UpdateAttempts(otp *model.OTP) error {
	for _, row := range f.rows {
		if row.OTPID == otp.OTPID {
			row.AttemptCount = otp.AttemptCount
			return nil
		}
	}
	return scylla.ErrNotFound
}

func (f *fakeOTPStore) MarkUsed(otp *model.OTP) error {
	for _, row := range f.rows {
		if row.OTPID == otp.OTPID {
			row.IsUsed = true
			return nil
		}
	}
	return scylla.ErrNotFound
}

func testHasher() *hashing.Hasher {
	return hashing.NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            "test-pepper",
		},
	})
}

func testLedger(t *testing.T) (*Ledger, *fakeOTPStore, *time.Time) {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeOTPStore{}
	ledger := NewLedger(store, testHasher(), 5*time.Minute, 5, 6)
	ledger.SetClock(func() time.Time { return now })
	return ledger, store, &now
}

func TestIssueAndVerify(t *testing.T) {
	ledger, store, _ := testLedger(t)

	code, record, err := ledger.Issue("a@example.com")
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.NotEqual(t, code, record.OTPHash, "plaintext must not be stored")
	assert.Equal(t, record.CreatedAt.Add(5*time.Minute), record.ExpiresAt)

	verified, err := ledger.Verify("a@example.com", code)
	require.NoError(t, err)
	assert.Equal(t, record.OTPID, verified.OTPID)

	// The code is single use
	_, err = ledger.Verify("a@example.com", code)
	assert.ErrorIs(t, err, ErrNoActiveCode)

	// The row survives as an audit record
	assert.Len(t, store.rows, 1)
	assert.True(t, store.rows[0].IsUsed)
}

func TestVerifyNoActiveCode(t *testing.T) {
	ledger, _, _ := testLedger(t)

	_, err := ledger.Verify("nobody@example.com", "abc123")
	assert.ErrorIs(t, err, ErrNoActiveCode)
}

func TestVerifyExpiredCode(t *testing.T) {
	ledger, _, clock := testLedger(t)

	code, _, err := ledger.Issue("a@example.com")
	require.NoError(t, err)

	*clock = clock.Add(5*time.Minute + time.Second)

	_, err = ledger.Verify("a@example.com", code)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyCodeValidAtBoundary(t *testing.T) {
	ledger, _, clock := testLedger(t)

	code, _, err := ledger.Issue("a@example.com")
	require.NoError(t, err)

	*clock = clock.Add(5 * time.Minute)

	_, err = ledger.Verify("a@example.com", code)
	assert.NoError(t, err)
}

func TestMismatchConsumesAttempts(t *testing.T) {
	ledger, _, _ := testLedger(t)

	code, _, err := ledger.Issue("a@example.com")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err := ledger.Verify("a@example.com", "wrong1")
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 5-i, mismatch.Remaining)
	}

	// Budget exhausted: even the correct code fails now
	_, err = ledger.Verify("a@example.com", code)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestNewCodeSupersedesOld(t *testing.T) {
	ledger, _, _ := testLedger(t)

	oldCode, _, err := ledger.Issue("a@example.com")
	require.NoError(t, err)

	newCode, _, err := ledger.Issue("a@example.com")
	require.NoError(t, err)

	// The old code no longer verifies; only the newest unused row counts
	if oldCode != newCode {
		_, err = ledger.Verify("a@example.com", oldCode)
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
	}

	_, err = ledger.Verify("a@example.com", newCode)
	assert.NoError(t, err)
}

func TestFreshIssueResetsAttemptBudget(t *testing.T) {
	ledger, _, _ := testLedger(t)

	_, _, err := ledger.Issue("a@example.com")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ledger.Verify("a@example.com", "wrong1")
	}

	code, _, err := ledger.Issue("a@example.com")
	require.NoError(t, err)

	_, err = ledger.Verify("a@example.com", code)
	assert.NoError(t, err)
}
