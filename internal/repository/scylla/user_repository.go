package scylla

import (
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/bucketing"
	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/util"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

type UserRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
}

func NewUserRepository(client *ScyllaClient, buckets *bucketing.BucketingManager, logger *zap.Logger) *UserRepository {
	// Using global util logger instead of individual logger
	return &UserRepository{
		client:  client,
		buckets: buckets,
	}
}

func (r *UserRepository) CreateUser(user *model.User) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.UserBucket = r.buckets.GetUserBucket(user.UserID)

	now := time.Now().UTC()
	user.CreatedAt = now

	// Batch keeps the lookup tables consistent with the main row
	batch := r.client.Session.NewBatch(gocql.LoggedBatch)

	batch.Query(r.client.Prepared.CreateUser.Statement(),
		user.UserBucket, user.UserID, user.Username, user.Email,
		user.PhoneHash, user.PhoneEncrypted, user.PhoneKeyID,
		user.PasswordHash, user.PasswordSalt, user.PepperVersion,
		user.PhotoPath, user.IsAdmin, user.IsActive, user.CreatedAt)

	batch.Query(r.client.Prepared.CreateEmailToUser.Statement(),
		user.Email, user.UserBucket, user.UserID, user.CreatedAt)

	if user.PhoneHash != "" {
		batch.Query(r.client.Prepared.CreatePhoneToUser.Statement(),
			user.PhoneHash, user.UserBucket, user.UserID, user.CreatedAt)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create user",
			zap.String("email", user.Email),
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("user_id", user.UserID),
		zap.String("email", user.Email),
		zap.Int("user_bucket", user.UserBucket))

	return nil
}

func (r *UserRepository) GetUserByID(userID string) (*model.User, error) {
	bucket := r.buckets.GetUserBucket(userID)
	user := &model.User{}

	query := r.client.Prepared.GetUserByID.Bind(bucket, userID)

	err := r.client.ScanWithRetry(query,
		&user.UserBucket, &user.UserID, &user.Username, &user.Email,
		&user.PhoneHash, &user.PhoneEncrypted, &user.PhoneKeyID,
		&user.PasswordHash, &user.PasswordSalt, &user.PepperVersion,
		&user.PhotoPath, &user.IsAdmin, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		util.Error("Failed to get user by ID",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

func (r *UserRepository) GetUserByEmail(email string) (*model.User, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetUserByEmail.Bind(email)
	if err := r.client.ScanWithRetry(query, &bucket, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("email %s: %w", email, ErrNotFound)
		}
		util.Error("Failed to look up user by email",
			zap.String("email", email),
			zap.Error(err))
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	return r.GetUserByID(userID)
}

func (r *UserRepository) IsEmailTaken(email string) (bool, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetUserByEmail.Bind(email)
	err := query.Scan(&bucket, &userID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return true, nil
}

func (r *UserRepository) IsPhoneTaken(phoneHash string) (bool, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetUserByPhone.Bind(phoneHash)
	err := query.Scan(&bucket, &userID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check phone: %w", err)
	}
	return true, nil
}

func (r *UserRepository) UpdatePassword(userID, passwordHash, passwordSalt string, pepperVersion int) error {
	bucket := r.buckets.GetUserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.UpdatePassword.Bind(
		passwordHash, passwordSalt, pepperVersion, now, bucket, userID)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update password",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update password: %w", err)
	}

	util.Info("Password updated", zap.String("user_id", userID))
	return nil
}

func (r *UserRepository) UpdateLastLogin(userID string, at time.Time) error {
	bucket := r.buckets.GetUserBucket(userID)

	query := r.client.Prepared.UpdateLastLogin.Bind(at, bucket, userID)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update last login",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (r *UserRepository) SetAdmin(userID string, isAdmin bool) error {
	bucket := r.buckets.GetUserBucket(userID)
	now := time.Now().UTC()

	query := r.client.Prepared.SetAdmin.Bind(isAdmin, now, bucket, userID)
	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update admin flag",
			zap.String("user_id", userID),
			zap.Bool("is_admin", isAdmin),
			zap.Error(err))
		return fmt.Errorf("failed to update admin flag: %w", err)
	}

	util.Info("Admin flag updated",
		zap.String("user_id", userID),
		zap.Bool("is_admin", isAdmin))
	return nil
}
