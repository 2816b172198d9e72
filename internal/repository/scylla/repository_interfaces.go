package scylla

import (
	"time"

	"github.com/shopfive/backend/internal/model"
)

// UserStore defines the user persistence operations consumed by the
// service layer. Implemented by UserRepository; tests supply fakes.
type UserStore interface {
	CreateUser(user *model.User) error
	GetUserByID(userID string) (*model.User, error)
	GetUserByEmail(email string) (*model.User, error)
	IsEmailTaken(email string) (bool, error)
	IsPhoneTaken(phoneHash string) (bool, error)
	UpdatePassword(userID, passwordHash, passwordSalt string, pepperVersion int) error
	UpdateLastLogin(userID string, at time.Time) error
	SetAdmin(userID string, isAdmin bool) error
}

// OTPStore defines the password recovery ledger operations.
type OTPStore interface {
	CreateOTP(otp *model.OTP) error
	GetLatestUnused(email string) (*model.OTP, error)
	UpdateAttempts(otp *model.OTP) error
	MarkUsed(otp *model.OTP) error
}

// ProductStore defines the catalog persistence operations.
type ProductStore interface {
	CreateProduct(product *model.Product) error
	GetProductByID(productID string) (*model.Product, error)
	IsSKUTaken(sku string) (bool, error)
	ListActiveProducts() ([]*model.Product, error)
	ListProductsByAdmin(adminID string) ([]*model.Product, error)
	UpdateProduct(product *model.Product, update *model.ProductUpdate) error
	SetDeleted(productID string, deleted bool) error
}

// CartStore defines the shopping cart persistence operations.
type CartStore interface {
	AddItem(item *model.CartItem) (bool, error)
	ListItems(userID string) ([]*model.CartItem, error)
	Clear(userID string) error
}
