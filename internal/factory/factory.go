package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/shopfive/backend/internal/audit"
	"github.com/shopfive/backend/internal/bucketing"
	"github.com/shopfive/backend/internal/client"
	"github.com/shopfive/backend/internal/config"
	"github.com/shopfive/backend/internal/email"
	"github.com/shopfive/backend/internal/encryption"
	"github.com/shopfive/backend/internal/hashing"
	"github.com/shopfive/backend/internal/lockout"
	"github.com/shopfive/backend/internal/otp"
	redisrepo "github.com/shopfive/backend/internal/repository/redis"
	"github.com/shopfive/backend/internal/repository/scylla"
	"github.com/shopfive/backend/internal/service"
	"github.com/shopfive/backend/internal/tls"
	"github.com/shopfive/backend/internal/token"
	"github.com/shopfive/backend/internal/upload"
	"github.com/shopfive/backend/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	// Repositories
	userRepository    scylla.UserStore
	otpRepository     scylla.OTPStore
	productRepository scylla.ProductStore
	cartRepository    scylla.CartStore

	// Auth plumbing
	lockoutPolicy *lockout.Policy
	ledger        *otp.Ledger
	issuer        *token.Issuer
	denylist      token.Denylist
	mailer        email.Sender
	saver         *upload.Saver
	recorder      *audit.Recorder

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()
	factory.initializeAuth()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka feeds the audit trail; the app runs without it
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// Elasticsearch powers catalog search; the app runs without it
	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		util.Warn("Elasticsearch initialization failed - proceeding without search", util.ErrorField(err))
	} else {
		f.esClient = esClient
		util.Info("Elasticsearch client initialized and healthy")
	}

	// ClickHouse stores the activity log; the app runs without it
	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		util.Warn("ClickHouse initialization failed - proceeding without activity log", util.ErrorField(err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			util.Warn("ClickHouse health check failed", util.ErrorField(err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, and bucketing managers
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Fatal("Failed to load AWS configuration", util.ErrorField(err))
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}

	f.encryptionManager = encryption.NewEncryptionManager(f.config, kmsClient)
	f.bucketingManager = bucketing.NewBucketingManager(bucketing.DefaultUserBuckets)

	if f.config.IsProduction() {
		f.hasher.StartPepperRotation()
	}

	util.Info("Managers initialized successfully",
		util.Bool("hashing_initialized", f.hasher != nil),
		util.Bool("encryption_initialized", f.encryptionManager != nil),
		util.Bool("bucketing_initialized", f.bucketingManager != nil),
	)
}

// initializeAuth wires the lockout policy, recovery code ledger, token
// issuer and audit recorder on top of the clients.
func (f *Factory) initializeAuth() {
	cfg := f.config

	// Without Redis (dev only) lockout state lives in process memory.
	var lockoutStore lockout.Store
	if f.redisClient != nil {
		lockoutStore = redisrepo.NewLockoutCache(f.redisClient)
		f.denylist = redisrepo.NewTokenDenylist(f.redisClient)
	} else {
		util.Warn("Redis unavailable - using in-memory lockout state, refresh revocation disabled")
		lockoutStore = lockout.NewMemoryStore()
	}
	f.lockoutPolicy = lockout.NewPolicy(lockoutStore,
		cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutWindow, cfg.Auth.AttemptTTL)

	f.ledger = otp.NewLedger(f.OTPRepository(), f.hasher,
		cfg.Auth.OTPTTL, cfg.Auth.MaxOTPAttempts, cfg.Auth.OTPLength)

	f.issuer = token.NewIssuer(cfg.JWT.Secret,
		cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)

	f.mailer = email.NewSMTPSender(cfg)
	f.saver = upload.NewSaver(cfg.Upload.Dir)

	var producer audit.EventProducer
	if f.kafkaProducer != nil {
		producer = f.kafkaProducer
	}
	var sink audit.ActivitySink
	if f.clickhouseClient != nil {
		sink = f.clickhouseClient
	}
	f.recorder = audit.NewRecorder(producer, sink, cfg.Kafka.SecurityEventsTopic)
}

// ==============================
// Repository Initialization
// ==============================

func (f *Factory) UserRepository() scylla.UserStore {
	if f.userRepository == nil {
		f.userRepository = scylla.NewUserRepository(f.ScyllaClient(), f.BucketingManager(), util.Get())
	}
	return f.userRepository
}

func (f *Factory) OTPRepository() scylla.OTPStore {
	if f.otpRepository == nil {
		f.otpRepository = scylla.NewOTPRepository(f.ScyllaClient(), util.Get())
	}
	return f.otpRepository
}

func (f *Factory) ProductRepository() scylla.ProductStore {
	if f.productRepository == nil {
		f.productRepository = scylla.NewProductRepository(f.ScyllaClient(), util.Get())
	}
	return f.productRepository
}

func (f *Factory) CartRepository() scylla.CartStore {
	if f.cartRepository == nil {
		f.cartRepository = scylla.NewCartRepository(f.ScyllaClient(), util.Get())
	}
	return f.cartRepository
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.UserRepository(),
			f.ProductRepository(),
			f.CartRepository(),
			f.hasher,
			f.encryptionManager,
			f.lockoutPolicy,
			f.ledger,
			f.issuer,
			f.denylist,
			f.mailer,
			f.recorder,
			f.esClient,
			f.config.Elasticsearch.ProductIndex,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.hasher == nil {
		healthErrors["hasher"] = fmt.Errorf("hasher not initialized")
	}
	if f.encryptionManager == nil {
		healthErrors["encryption"] = fmt.Errorf("encryption manager not initialized")
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	delete(healthErrors, "elasticsearch")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
			util.Info("Service factory cleaned up")
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
			util.Info("Encryption manager cache cleared")
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

// ==============================
// Getters
// ==============================

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}

func (f *Factory) Hasher() *hashing.Hasher {
	return f.hasher
}

func (f *Factory) EncryptionManager() *encryption.EncryptionManager {
	return f.encryptionManager
}

func (f *Factory) BucketingManager() *bucketing.BucketingManager {
	return f.bucketingManager
}

func (f *Factory) Issuer() *token.Issuer {
	return f.issuer
}

func (f *Factory) UploadSaver() *upload.Saver {
	return f.saver
}
