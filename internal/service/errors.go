package service

import "errors"

// Sentinel errors shared by the service layer. Handlers map these to
// HTTP status codes with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrProductNotFound    = errors.New("product not found")
	ErrDuplicateCartItem  = errors.New("product already in cart")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrEmailDelivery      = errors.New("failed to send email")
)
