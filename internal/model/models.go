package model

import "time"

// -------------------- USER MODEL --------------------
type User struct {
	UserBucket     int        `json:"-" db:"user_bucket"`
	UserID         string     `json:"user_id" db:"user_id"` // UUID
	Username       string     `json:"username" db:"username"`
	Email          string     `json:"email" db:"email"`
	PhoneHash      string     `json:"-" db:"phone_hash"`      // SHA-256, for uniqueness lookup
	PhoneEncrypted []byte     `json:"-" db:"phone_encrypted"` // envelope-encrypted at rest
	PhoneKeyID     string     `json:"-" db:"phone_key_id"`
	PasswordHash   string     `json:"-" db:"password_hash"` // argon2id, never serialized
	PasswordSalt   string     `json:"-" db:"password_salt"`
	PepperVersion  int        `json:"-" db:"pepper_version"`
	PhotoPath      string     `json:"photo_path" db:"photo_path"`
	IsAdmin        bool       `json:"is_admin" db:"is_admin"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty" db:"updated_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// -------------------- OTP MODEL --------------------
// A row per issued recovery code; rows are never deleted. Validity is
// governed by expires_at, is_used and attempt_count.
type OTP struct {
	OTPID         string    `json:"otp_id" db:"otp_id"` // UUID
	Email         string    `json:"email" db:"email"`
	OTPHash       string    `json:"-" db:"otp_hash"` // store hashed OTP only
	OTPSalt       string    `json:"-" db:"otp_salt"`
	PepperVersion int       `json:"-" db:"pepper_version"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	AttemptCount  int       `json:"attempt_count" db:"attempt_count"`
	IsUsed        bool      `json:"is_used" db:"is_used"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// -------------------- PRODUCT MODEL --------------------
type Product struct {
	ProductID   string     `json:"product_id" db:"product_id"` // UUID
	SKU         string     `json:"sku" db:"sku"`               // SKU-XXXXXXXXXX
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	PhotoPath   string     `json:"photo_path" db:"photo_path"`
	Price       float64    `json:"price" db:"price"`
	Stock       int        `json:"stock" db:"stock"`
	AdminID     string     `json:"admin_id" db:"admin_id"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	IsDeleted   bool       `json:"is_deleted" db:"is_deleted"` // soft delete
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// ProductUpdate is the allow-listed set of mutable product fields. Nil
// pointer means "leave unchanged".
type ProductUpdate struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Stock       *int     `json:"stock,omitempty"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

// -------------------- CART MODEL --------------------
type CartItem struct {
	UserID    string    `json:"user_id" db:"user_id"`
	ProductID string    `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	AddedAt   time.Time `json:"added_at" db:"added_at"`
}

// -------------------- AUDIT MODELS --------------------
type SecurityEvent struct {
	EventID   string    `json:"event_id" db:"event_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	EventType string    `json:"event_type" db:"event_type"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	Details   string    `json:"details" db:"details"`
	EventTime time.Time `json:"event_time" db:"event_time"`
}

type ActivityLog struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Event     string    `json:"event" db:"event"`
	IPAddress string    `json:"ip_address" db:"ip_address"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Security event types published to the event stream.
const (
	EventLoginSuccess    = "login_success"
	EventLoginFailed     = "login_failed"
	EventAccountLocked   = "account_locked"
	EventOTPIssued       = "otp_issued"
	EventOTPVerified     = "otp_verified"
	EventPasswordChanged = "password_changed"
	EventLogout          = "logout"
	EventUserRegistered  = "user_registered"
	EventAdminPromoted   = "admin_promoted"
)
