package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/audit"
	"github.com/shopfive/backend/internal/encryption"
	"github.com/shopfive/backend/internal/hashing"
	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/repository/scylla"
	"github.com/shopfive/backend/internal/token"
	"github.com/shopfive/backend/internal/util"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// RegisterRequest represents a new account signup. PhotoPath is filled by
// the handler after storing the uploaded file.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required"`
	Password  string `json:"password" validate:"required,min=8"`
	PhotoPath string `json:"-"`
}

// Profile is the user view returned to clients, with the phone number
// decrypted for the owner.
type Profile struct {
	User  *model.User `json:"user"`
	Phone string      `json:"phone,omitempty"`
}

// UserService handles account creation and profile business logic
type UserService struct {
	users         scylla.UserStore
	hasher        *hashing.Hasher
	encryptionMgr *encryption.EncryptionManager
	issuer        *token.Issuer
	recorder      *audit.Recorder
	logger        *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(
	users scylla.UserStore,
	hasher *hashing.Hasher,
	encryptionMgr *encryption.EncryptionManager,
	issuer *token.Issuer,
	recorder *audit.Recorder,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		users:         users,
		hasher:        hasher,
		encryptionMgr: encryptionMgr,
		issuer:        issuer,
		recorder:      recorder,
		logger:        logger,
	}
}

// GeneratePhoneHash generates a deterministic hash of the phone number
// for the uniqueness lookup table.
func (s *UserService) GeneratePhoneHash(phoneNumber string) string {
	normalized := normalizePhone(phoneNumber)
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:])
}

func normalizePhone(phoneNumber string) string {
	var b strings.Builder
	for _, r := range phoneNumber {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Register creates a new account. The phone number is stored only as a
// lookup hash plus an envelope-encrypted blob.
func (s *UserService) Register(ctx context.Context, req *RegisterRequest, meta RequestMeta) (*model.User, error) {
	if err := s.validateRegisterRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))
	phoneHash := s.GeneratePhoneHash(req.Phone)

	taken, err := s.users.IsEmailTaken(emailAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("%w: email already registered", ErrUserAlreadyExists)
	}

	taken, err = s.users.IsPhoneTaken(phoneHash)
	if err != nil {
		return nil, fmt.Errorf("failed to check phone: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("%w: phone already registered", ErrUserAlreadyExists)
	}

	hashed, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	encryptedPhone, err := s.encryptionMgr.EncryptField(ctx, normalizePhone(req.Phone), "phone")
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone: %w", err)
	}
	phoneBlob, err := json.Marshal(encryptedPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to encode encrypted phone: %w", err)
	}

	user := &model.User{
		Username:       util.SanitizeInput(req.Username),
		Email:          emailAddr,
		PhoneHash:      phoneHash,
		PhoneEncrypted: phoneBlob,
		PhoneKeyID:     encryptedPhone.KeyID,
		PasswordHash:   hashed.Hash,
		PasswordSalt:   hashed.Salt,
		PepperVersion:  hashed.PepperVersion,
		PhotoPath:      req.PhotoPath,
		IsAdmin:        false,
		IsActive:       true,
	}

	if err := s.users.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.recorder.Record(ctx, &model.SecurityEvent{
		UserID:    user.UserID,
		Email:     emailAddr,
		EventType: model.EventUserRegistered,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	s.logger.Info("User registered",
		util.String("user_id", user.UserID),
		util.String("email", emailAddr),
		util.Int("user_bucket", user.UserBucket),
	)

	return user, nil
}

// GetProfile returns the user with the phone number decrypted. Decryption
// failures degrade to a profile without the phone rather than failing.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	profile := &Profile{User: user}

	if len(user.PhoneEncrypted) > 0 {
		var blob encryption.EncryptedData
		if err := json.Unmarshal(user.PhoneEncrypted, &blob); err == nil {
			phone, err := s.encryptionMgr.DecryptField(ctx, &blob)
			if err != nil {
				s.logger.Warn("Failed to decrypt phone", util.String("user_id", userID), util.ErrorField(err))
			} else {
				profile.Phone = phone
			}
		}
	}

	return profile, nil
}

// PromoteToAdmin grants the admin role to the user and issues a fresh
// token pair carrying the new claim.
func (s *UserService) PromoteToAdmin(ctx context.Context, userID string, meta RequestMeta) (*model.User, *token.Pair, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsAdmin {
		if err := s.users.SetAdmin(user.UserID, true); err != nil {
			return nil, nil, fmt.Errorf("failed to grant admin role: %w", err)
		}
		user.IsAdmin = true

		s.recorder.Record(ctx, &model.SecurityEvent{
			UserID:    user.UserID,
			Email:     user.Email,
			EventType: model.EventAdminPromoted,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
		})
	}

	pair, err := s.issuer.IssuePair(user.UserID, true)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User promoted to admin", util.String("user_id", user.UserID))

	return user, pair, nil
}

func (s *UserService) validateRegisterRequest(req *RegisterRequest) error {
	if req == nil {
		return errors.New("request is empty")
	}

	username := strings.TrimSpace(req.Username)
	if len(username) < 3 || len(username) > 50 {
		return errors.New("username must be between 3 and 50 characters")
	}
	if util.ContainsSuspicious(username) {
		return errors.New("username contains invalid characters")
	}

	if !emailPattern.MatchString(strings.TrimSpace(req.Email)) {
		return errors.New("invalid email address")
	}

	digits := normalizePhone(req.Phone)
	if len(strings.TrimPrefix(digits, "+")) < 10 || len(digits) > 16 {
		return errors.New("invalid phone number")
	}

	return validatePassword(req.Password)
}
