package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full application configuration, loaded once from the
// environment (with .env support for development).
type Config struct {
	Environment string

	Server        ServerConfig
	Scylla        ScyllaConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	JWT           JWTConfig
	SMTP          SMTPConfig
	Upload        UploadConfig
	Auth          AuthConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	Email        string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers             []string
	SecurityEventsTopic string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	URL          string
	Username     string
	Password     string
	ProductIndex string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type HashingConfig struct {
	Argon2MemoryCost   int
	Argon2TimeCost     int
	Argon2Parallelism  int
	Pepper             string
	PepperRotationDays int
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type UploadConfig struct {
	Dir string
}

// AuthConfig carries the lockout and OTP policy knobs.
type AuthConfig struct {
	MaxLoginAttempts int
	LockoutWindow    time.Duration
	AttemptTTL       time.Duration
	MaxOTPAttempts   int
	OTPTTL           time.Duration
	OTPLength        int
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	global *Config
	once   sync.Once
)

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is honored when present.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		global = &Config{
			Environment: getEnv("APP_ENV", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTOCERT", false),
				Domain:       getEnv("SERVER_DOMAIN", ""),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/lib/autocert"),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvList("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "shopfive"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://127.0.0.1:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Kafka: KafkaConfig{
				Brokers:             getEnvList("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
				SecurityEventsTopic: getEnv("KAFKA_SECURITY_EVENTS_TOPIC", "security-events"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", "clickhouse://127.0.0.1:9000"),
				Database: getEnv("CLICKHOUSE_DATABASE", "shopfive"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:          getEnv("ELASTICSEARCH_URL", "http://127.0.0.1:9200"),
				Username:     getEnv("ELASTICSEARCH_USERNAME", ""),
				Password:     getEnv("ELASTICSEARCH_PASSWORD", ""),
				ProductIndex: getEnv("ELASTICSEARCH_PRODUCT_INDEX", "products"),
			},
			KMS: KMSConfig{
				Enabled: getEnvBool("KMS_ENABLED", false),
				KeyID:   getEnv("KMS_KEY_ID", ""),
				Region:  getEnv("KMS_REGION", "us-east-1"),
			},
			Hashing: HashingConfig{
				Argon2MemoryCost:   getEnvInt("ARGON2_MEMORY_COST", 65536),
				Argon2TimeCost:     getEnvInt("ARGON2_TIME_COST", 3),
				Argon2Parallelism:  getEnvInt("ARGON2_PARALLELISM", 2),
				Pepper:             getEnv("HASH_PEPPER", ""),
				PepperRotationDays: getEnvInt("PEPPER_ROTATION_DAYS", 90),
			},
			JWT: JWTConfig{
				Secret:          getEnv("JWT_SECRET", "default_jwt_secret_key"),
				AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TOKEN_TTL", 15*time.Minute),
				RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TOKEN_TTL", 30*24*time.Hour),
			},
			SMTP: SMTPConfig{
				Host:     getEnv("MAIL_SERVER", "smtp.gmail.com"),
				Port:     getEnvInt("MAIL_PORT", 587),
				Username: getEnv("MAIL_USERNAME", ""),
				Password: getEnv("MAIL_PASSWORD", ""),
				From:     getEnv("MAIL_DEFAULT_SENDER", os.Getenv("MAIL_USERNAME")),
			},
			Upload: UploadConfig{
				Dir: getEnv("UPLOAD_DIR", "static/uploads"),
			},
			Auth: AuthConfig{
				MaxLoginAttempts: getEnvInt("AUTH_MAX_LOGIN_ATTEMPTS", 5),
				LockoutWindow:    getEnvDuration("AUTH_LOCKOUT_WINDOW", 30*time.Second),
				AttemptTTL:       getEnvDuration("AUTH_ATTEMPT_TTL", 24*time.Hour),
				MaxOTPAttempts:   getEnvInt("AUTH_MAX_OTP_ATTEMPTS", 5),
				OTPTTL:           getEnvDuration("AUTH_OTP_TTL", 5*time.Minute),
				OTPLength:        getEnvInt("AUTH_OTP_LENGTH", 6),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "console"),
			},
		}
	})

	return global
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if global == nil {
		return LoadConfig()
	}
	return global
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
