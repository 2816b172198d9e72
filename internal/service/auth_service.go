package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/audit"
	"github.com/shopfive/backend/internal/email"
	"github.com/shopfive/backend/internal/hashing"
	"github.com/shopfive/backend/internal/lockout"
	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/otp"
	"github.com/shopfive/backend/internal/repository/scylla"
	"github.com/shopfive/backend/internal/token"
	"github.com/shopfive/backend/internal/util"
)

// RequestMeta carries per-request client details for the audit trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// LoginRequest represents a credential login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthService handles credential login, lockout, password recovery and
// token lifecycle
type AuthService struct {
	users    scylla.UserStore
	hasher   *hashing.Hasher
	lockout  *lockout.Policy
	ledger   *otp.Ledger
	issuer   *token.Issuer
	denylist token.Denylist
	mailer   email.Sender
	recorder *audit.Recorder
	logger   *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	users scylla.UserStore,
	hasher *hashing.Hasher,
	lockoutPolicy *lockout.Policy,
	ledger *otp.Ledger,
	issuer *token.Issuer,
	denylist token.Denylist,
	mailer email.Sender,
	recorder *audit.Recorder,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		hasher:   hasher,
		lockout:  lockoutPolicy,
		ledger:   ledger,
		issuer:   issuer,
		denylist: denylist,
		mailer:   mailer,
		recorder: recorder,
		logger:   logger,
	}
}

// lockoutKey normalizes the email so lockout state survives case games.
func lockoutKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies credentials under the lockout policy and issues a token
// pair. Failed attempts are counted per email, including attempts against
// unknown emails, so the lockout path does not leak which accounts exist.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest, meta RequestMeta) (*model.User, *token.Pair, error) {
	if req == nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	key := lockoutKey(req.Email)

	// A locked account fails before any credential work and the attempt
	// is not counted.
	if err := s.lockout.Check(ctx, key); err != nil {
		var locked *lockout.LockedError
		if errors.As(err, &locked) {
			s.logger.Warn("Login attempt on locked account",
				util.String("email", key),
				util.Int("retry_in_seconds", locked.RemainingSeconds()),
			)
		}
		return nil, nil, err
	}

	user, err := s.users.GetUserByEmail(key)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, nil, s.registerFailure(ctx, key, "", meta)
		}
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !user.IsActive {
		return nil, nil, s.registerFailure(ctx, key, user.UserID, meta)
	}

	match, err := s.hasher.VerifyPassword(req.Password, &hashing.HashResult{
		Hash:          user.PasswordHash,
		Salt:          user.PasswordSalt,
		PepperVersion: user.PepperVersion,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return nil, nil, s.registerFailure(ctx, key, user.UserID, meta)
	}

	// Success wipes the failure counter so the next bad streak starts
	// from zero.
	if err := s.lockout.Reset(ctx, key); err != nil {
		s.logger.Warn("Failed to reset lockout state", util.String("email", key), util.ErrorField(err))
	}

	pair, err := s.issuer.IssuePair(user.UserID, user.IsAdmin)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(user.UserID, now); err != nil {
		s.logger.Warn("Failed to update last login", util.String("user_id", user.UserID), util.ErrorField(err))
	}
	user.LastLoginAt = &now

	s.recorder.Record(ctx, &model.SecurityEvent{
		UserID:    user.UserID,
		Email:     key,
		EventType: model.EventLoginSuccess,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	s.logger.Info("User logged in",
		util.String("user_id", user.UserID),
		util.String("email", key),
	)

	return user, pair, nil
}

// registerFailure counts a failed attempt and returns the error the
// caller should surface: LockedError when this attempt tripped the lock,
// ErrInvalidCredentials otherwise.
func (s *AuthService) registerFailure(ctx context.Context, key, userID string, meta RequestMeta) error {
	err := s.lockout.RecordFailure(ctx, key)

	event := &model.SecurityEvent{
		UserID:    userID,
		Email:     key,
		EventType: model.EventLoginFailed,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	var locked *lockout.LockedError
	if errors.As(err, &locked) {
		event.EventType = model.EventAccountLocked
		event.Details = fmt.Sprintf("locked for %d seconds", locked.RemainingSeconds())
		s.recorder.Record(ctx, event)

		s.logger.Warn("Account locked after repeated failures",
			util.String("email", key),
			util.Int("retry_in_seconds", locked.RemainingSeconds()),
		)
		return err
	}
	if err != nil {
		// The counter is best effort; a lockout store outage must not
		// turn a wrong password into a 500.
		s.logger.Error("Failed to record login failure", util.String("email", key), util.ErrorField(err))
	}

	s.recorder.Record(ctx, event)
	return ErrInvalidCredentials
}

// ForgotPassword issues a recovery code and emails it. The email is sent
// synchronously; a delivery failure surfaces to the caller so the user
// knows no code is on the way.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string, meta RequestMeta) error {
	key := lockoutKey(emailAddr)
	if key == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	user, err := s.users.GetUserByEmail(key)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	code, record, err := s.ledger.Issue(key)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Your password reset code is: %s\r\n\r\nThe code expires in %d minutes.",
		code, int(record.ExpiresAt.Sub(record.CreatedAt).Minutes()))
	if err := s.mailer.Send(key, "Password Reset Code", body); err != nil {
		s.logger.Error("Failed to send recovery email", util.String("email", key), util.ErrorField(err))
		return fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}

	s.recorder.Record(ctx, &model.SecurityEvent{
		UserID:    user.UserID,
		Email:     key,
		EventType: model.EventOTPIssued,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return nil
}

// CheckOTP verifies a recovery code and, on success, issues a token pair
// so the caller can change the password while authenticated. Ledger
// errors pass through untouched for the handler to map.
func (s *AuthService) CheckOTP(ctx context.Context, emailAddr, code string, meta RequestMeta) (*model.User, *token.Pair, error) {
	key := lockoutKey(emailAddr)
	if key == "" || code == "" {
		return nil, nil, fmt.Errorf("%w: email and otp are required", ErrInvalidInput)
	}

	user, err := s.users.GetUserByEmail(key)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if _, err := s.ledger.Verify(key, code); err != nil {
		return nil, nil, err
	}

	pair, err := s.issuer.IssuePair(user.UserID, user.IsAdmin)
	if err != nil {
		return nil, nil, err
	}

	s.recorder.Record(ctx, &model.SecurityEvent{
		UserID:    user.UserID,
		Email:     key,
		EventType: model.EventOTPVerified,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return user, pair, nil
}

// ChangePassword rehashes and stores a new password for the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID, newPassword string, meta RequestMeta) error {
	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := s.users.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	hashed, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(user.UserID, hashed.Hash, hashed.Salt, hashed.PepperVersion); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	// A fresh password clears any running failure streak.
	if err := s.lockout.Reset(ctx, lockoutKey(user.Email)); err != nil {
		s.logger.Warn("Failed to reset lockout state", util.String("email", user.Email), util.ErrorField(err))
	}

	s.recorder.Record(ctx, &model.SecurityEvent{
		UserID:    user.UserID,
		Email:     user.Email,
		EventType: model.EventPasswordChanged,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	s.logger.Info("Password changed", util.String("user_id", user.UserID))

	return nil
}

// Refresh rotates a valid, unrevoked refresh token into a fresh pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	claims, err := s.issuer.VerifyRefresh(ctx, refreshToken, s.denylist)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuer.IssuePair(claims.Subject, claims.IsAdmin)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Token pair refreshed", util.String("user_id", claims.Subject))

	return pair, nil
}

// Logout revokes the refresh token for its remaining lifetime. Garbage
// tokens are ignored; logout always succeeds from the client's view.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, meta RequestMeta) error {
	userID := ""
	if claims, err := s.issuer.Verify(refreshToken, token.TypeRefresh); err == nil {
		userID = claims.Subject
	}

	if err := s.issuer.RevokeRefresh(ctx, refreshToken, s.denylist); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	if userID != "" {
		s.recorder.Record(ctx, &model.SecurityEvent{
			UserID:    userID,
			EventType: model.EventLogout,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
	}

	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return errors.New("password too long")
	}
	return nil
}
