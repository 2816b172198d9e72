package scylla

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/util"
)

// OTPRepository persists password recovery codes. Rows are append-only:
// attempts and the used flag are updated in place, nothing is deleted.
type OTPRepository struct {
	client *ScyllaClient
}

func NewOTPRepository(client *ScyllaClient, logger *zap.Logger) *OTPRepository {
	// Using global util logger instead of individual logger
	return &OTPRepository{
		client: client,
	}
}

func (r *OTPRepository) CreateOTP(otp *model.OTP) error {
	if otp.OTPID == "" {
		otp.OTPID = uuid.New().String()
	}
	if otp.CreatedAt.IsZero() {
		otp.CreatedAt = time.Now().UTC()
	}
	if otp.ExpiresAt.IsZero() {
		otp.ExpiresAt = otp.CreatedAt.Add(5 * time.Minute)
	}

	query := r.client.Prepared.CreateOTP.Bind(
		otp.Email, otp.CreatedAt, otp.OTPID, otp.OTPHash, otp.OTPSalt,
		otp.PepperVersion, otp.ExpiresAt, otp.AttemptCount, otp.IsUsed)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create OTP",
			zap.String("email", otp.Email),
			zap.String("otp_id", otp.OTPID),
			zap.Error(err))
		return fmt.Errorf("failed to create OTP: %w", err)
	}

	util.Info("OTP created",
		zap.String("email", otp.Email),
		zap.String("otp_id", otp.OTPID),
		zap.Time("expires_at", otp.ExpiresAt))

	return nil
}

// GetLatestUnused returns the most recently issued code for an email that
// has not been consumed yet. Rows are clustered newest-first, so the first
// unused row wins; a fresh issue naturally supersedes older ones.
func (r *OTPRepository) GetLatestUnused(email string) (*model.OTP, error) {
	iter := r.client.Prepared.GetOTPsByEmail.Bind(email).Iter()

	otp := &model.OTP{}
	found := false
	for iter.Scan(&otp.Email, &otp.CreatedAt, &otp.OTPID, &otp.OTPHash,
		&otp.OTPSalt, &otp.PepperVersion, &otp.ExpiresAt, &otp.AttemptCount,
		&otp.IsUsed) {
		if !otp.IsUsed {
			found = true
			break
		}
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to read OTPs",
			zap.String("email", email),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read OTPs: %w", err)
	}

	if !found {
		return nil, fmt.Errorf("no unused OTP for %s: %w", email, ErrNotFound)
	}

	return otp, nil
}

func (r *OTPRepository) UpdateAttempts(otp *model.OTP) error {
	query := r.client.Prepared.UpdateOTPAttempts.Bind(
		otp.AttemptCount, otp.Email, otp.CreatedAt)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update OTP attempts",
			zap.String("email", otp.Email),
			zap.String("otp_id", otp.OTPID),
			zap.Error(err))
		return fmt.Errorf("failed to update OTP attempts: %w", err)
	}

	return nil
}

func (r *OTPRepository) MarkUsed(otp *model.OTP) error {
	query := r.client.Prepared.MarkOTPUsed.Bind(otp.Email, otp.CreatedAt)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark OTP as used",
			zap.String("email", otp.Email),
			zap.String("otp_id", otp.OTPID),
			zap.Error(err))
		return fmt.Errorf("failed to mark OTP as used: %w", err)
	}

	util.Info("OTP marked as used",
		zap.String("email", otp.Email),
		zap.String("otp_id", otp.OTPID))

	return nil
}
