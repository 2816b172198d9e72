package service

import (
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/audit"
	"github.com/shopfive/backend/internal/client"
	"github.com/shopfive/backend/internal/email"
	"github.com/shopfive/backend/internal/encryption"
	"github.com/shopfive/backend/internal/hashing"
	"github.com/shopfive/backend/internal/lockout"
	"github.com/shopfive/backend/internal/otp"
	"github.com/shopfive/backend/internal/repository/scylla"
	"github.com/shopfive/backend/internal/token"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	users         scylla.UserStore
	products      scylla.ProductStore
	carts         scylla.CartStore
	hasher        *hashing.Hasher
	encryptionMgr *encryption.EncryptionManager
	lockoutPolicy *lockout.Policy
	ledger        *otp.Ledger
	issuer        *token.Issuer
	denylist      token.Denylist
	mailer        email.Sender
	recorder      *audit.Recorder
	es            *client.ESClient
	productIndex  string
	logger        *zap.Logger

	authService    *AuthService
	userService    *UserService
	catalogService *CatalogService
	cartService    *CartService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	users scylla.UserStore,
	products scylla.ProductStore,
	carts scylla.CartStore,
	hasher *hashing.Hasher,
	encryptionMgr *encryption.EncryptionManager,
	lockoutPolicy *lockout.Policy,
	ledger *otp.Ledger,
	issuer *token.Issuer,
	denylist token.Denylist,
	mailer email.Sender,
	recorder *audit.Recorder,
	es *client.ESClient,
	productIndex string,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		users:         users,
		products:      products,
		carts:         carts,
		hasher:        hasher,
		encryptionMgr: encryptionMgr,
		lockoutPolicy: lockoutPolicy,
		ledger:        ledger,
		issuer:        issuer,
		denylist:      denylist,
		mailer:        mailer,
		recorder:      recorder,
		es:            es,
		productIndex:  productIndex,
		logger:        logger,
	}
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.users,
			f.hasher,
			f.lockoutPolicy,
			f.ledger,
			f.issuer,
			f.denylist,
			f.mailer,
			f.recorder,
			f.logger,
		)
	}
	return f.authService
}

// UserService returns the user service instance (singleton)
func (f *ServiceFactory) UserService() *UserService {
	if f.userService == nil {
		f.userService = NewUserService(
			f.users,
			f.hasher,
			f.encryptionMgr,
			f.issuer,
			f.recorder,
			f.logger,
		)
	}
	return f.userService
}

// CatalogService returns the catalog service instance (singleton)
func (f *ServiceFactory) CatalogService() *CatalogService {
	if f.catalogService == nil {
		f.catalogService = NewCatalogService(
			f.products,
			f.es,
			f.productIndex,
			f.logger,
		)
	}
	return f.catalogService
}

// CartService returns the cart service instance (singleton)
func (f *ServiceFactory) CartService() *CartService {
	if f.cartService == nil {
		f.cartService = NewCartService(
			f.carts,
			f.products,
			f.logger,
		)
	}
	return f.cartService
}

// Cleanup cleans up all services
func (f *ServiceFactory) Cleanup() {
	if f.encryptionMgr != nil {
		f.encryptionMgr.ClearCache()
	}
}
