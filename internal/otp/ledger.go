package otp

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/hashing"
	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/repository/scylla"
	"github.com/shopfive/backend/internal/util"
)

var (
	// ErrNoActiveCode means no unused code exists for the email.
	ErrNoActiveCode = errors.New("no active recovery code")

	// ErrCodeExpired means the newest unused code is past its expiry.
	// The row is left untouched.
	ErrCodeExpired = errors.New("recovery code expired")

	// ErrTooManyAttempts means the attempt budget is exhausted. Even a
	// correct code fails now; only a fresh issue helps.
	ErrTooManyAttempts = errors.New("too many recovery attempts")
)

// MismatchError reports a wrong code and how many attempts remain.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("incorrect recovery code, %d attempts remaining", e.Remaining)
}

// Ledger issues and verifies password recovery codes. Codes are stored
// hashed; rows are never deleted, validity is decided at read time.
type Ledger struct {
	store       scylla.OTPStore
	hasher      *hashing.Hasher
	ttl         time.Duration
	maxAttempts int
	codeLength  int
	now         func() time.Time
}

func NewLedger(store scylla.OTPStore, hasher *hashing.Hasher, ttl time.Duration, maxAttempts, codeLength int) *Ledger {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if codeLength <= 0 {
		codeLength = 6
	}
	return &Ledger{
		store:       store,
		hasher:      hasher,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		codeLength:  codeLength,
		now:         time.Now,
	}
}

// SetClock overrides the time source. Test use only.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Issue creates a fresh code for the email and returns the plaintext for
// delivery. The new row supersedes older ones because verification always
// picks the newest unused code.
func (l *Ledger) Issue(email string) (string, *model.OTP, error) {
	code, err := l.generateCode()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate recovery code: %w", err)
	}

	hashed, err := l.hasher.HashOTP(code)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash recovery code: %w", err)
	}

	now := l.now().UTC()
	record := &model.OTP{
		Email:         email,
		OTPHash:       hashed.Hash,
		OTPSalt:       hashed.Salt,
		PepperVersion: hashed.PepperVersion,
		CreatedAt:     now,
		ExpiresAt:     now.Add(l.ttl),
	}

	if err := l.store.CreateOTP(record); err != nil {
		return "", nil, err
	}

	util.Info("Recovery code issued",
		zap.String("email", email),
		zap.String("otp_id", record.OTPID),
		zap.Time("expires_at", record.ExpiresAt))

	return code, record, nil
}

// Verify checks a submitted code against the newest unused record.
// Checks run in a fixed order: existence, expiry, attempt budget, then
// the hash comparison. Only a mismatch consumes an attempt; only a match
// consumes the code.
func (l *Ledger) Verify(email, code string) (*model.OTP, error) {
	record, err := l.store.GetLatestUnused(email)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrNoActiveCode
		}
		return nil, err
	}

	if l.now().UTC().After(record.ExpiresAt) {
		return nil, ErrCodeExpired
	}

	if record.AttemptCount >= l.maxAttempts {
		return nil, ErrTooManyAttempts
	}

	match, err := l.hasher.VerifyOTP(code, &hashing.HashResult{
		Hash:          record.OTPHash,
		Salt:          record.OTPSalt,
		PepperVersion: record.PepperVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify recovery code: %w", err)
	}

	if !match {
		record.AttemptCount++
		if err := l.store.UpdateAttempts(record); err != nil {
			return nil, err
		}
		return nil, &MismatchError{Remaining: l.maxAttempts - record.AttemptCount}
	}

	record.IsUsed = true
	if err := l.store.MarkUsed(record); err != nil {
		return nil, err
	}

	util.Info("Recovery code verified",
		zap.String("email", email),
		zap.String("otp_id", record.OTPID))

	return record, nil
}

func (l *Ledger) generateCode() (string, error) {
	buf := make([]byte, (l.codeLength+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:l.codeLength], nil
}
