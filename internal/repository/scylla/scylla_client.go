package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/config"
	"github.com/shopfive/backend/internal/util"
)

// PreparedStatements holds prepared statements that are actually used by the repositories
type PreparedStatements struct {
	// users
	CreateUser        *gocql.Query
	CreateEmailToUser *gocql.Query
	CreatePhoneToUser *gocql.Query
	GetUserByID       *gocql.Query
	GetUserByEmail    *gocql.Query
	GetUserByPhone    *gocql.Query
	UpdatePassword    *gocql.Query
	UpdateLastLogin   *gocql.Query
	SetAdmin          *gocql.Query

	// password recovery OTPs
	CreateOTP         *gocql.Query
	GetOTPsByEmail    *gocql.Query
	UpdateOTPAttempts *gocql.Query
	MarkOTPUsed       *gocql.Query

	// products
	CreateProduct        *gocql.Query
	CreateProductByAdmin *gocql.Query
	CreateSKUToProduct   *gocql.Query
	GetProductByID       *gocql.Query
	GetProductBySKU      *gocql.Query
	ListProducts         *gocql.Query
	ListProductsByAdmin  *gocql.Query
	SetProductDeleted    *gocql.Query

	// cart
	AddCartItem  *gocql.Query
	GetCartItems *gocql.Query
	ClearCart    *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            user_bucket, user_id, username, email, phone_hash, phone_encrypted,
            phone_key_id, password_hash, password_salt, pepper_version,
            photo_path, is_admin, is_active, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateEmailToUser = s.Session.Query(`
        INSERT INTO email_to_user (email, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?)`)

	prepared.CreatePhoneToUser = s.Session.Query(`
        INSERT INTO phone_to_user (phone_hash, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?)`)

	prepared.GetUserByID = s.Session.Query(`
        SELECT user_bucket, user_id, username, email, phone_hash, phone_encrypted,
            phone_key_id, password_hash, password_salt, pepper_version,
            photo_path, is_admin, is_active, created_at, updated_at, last_login_at
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.GetUserByEmail = s.Session.Query(`
        SELECT user_bucket, user_id FROM email_to_user WHERE email = ?`)

	prepared.GetUserByPhone = s.Session.Query(`
        SELECT user_bucket, user_id FROM phone_to_user WHERE phone_hash = ?`)

	prepared.UpdatePassword = s.Session.Query(`
        UPDATE users SET password_hash = ?, password_salt = ?, pepper_version = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateLastLogin = s.Session.Query(`
        UPDATE users SET last_login_at = ? WHERE user_bucket = ? AND user_id = ?`)

	prepared.SetAdmin = s.Session.Query(`
        UPDATE users SET is_admin = ?, updated_at = ? WHERE user_bucket = ? AND user_id = ?`)

	prepared.CreateOTP = s.Session.Query(`
        INSERT INTO password_otps (
            email, created_at, otp_id, otp_hash, otp_salt, pepper_version,
            expires_at, attempt_count, is_used
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetOTPsByEmail = s.Session.Query(`
        SELECT email, created_at, otp_id, otp_hash, otp_salt, pepper_version,
            expires_at, attempt_count, is_used
        FROM password_otps WHERE email = ?`)

	prepared.UpdateOTPAttempts = s.Session.Query(`
        UPDATE password_otps SET attempt_count = ? WHERE email = ? AND created_at = ?`)

	prepared.MarkOTPUsed = s.Session.Query(`
        UPDATE password_otps SET is_used = true WHERE email = ? AND created_at = ?`)

	prepared.CreateProduct = s.Session.Query(`
        INSERT INTO products (
            product_id, sku, name, description, photo_path, price, stock,
            admin_id, is_active, is_deleted, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateProductByAdmin = s.Session.Query(`
        INSERT INTO products_by_admin (admin_id, product_id, created_at)
        VALUES (?, ?, ?)`)

	prepared.CreateSKUToProduct = s.Session.Query(`
        INSERT INTO sku_to_product (sku, product_id) VALUES (?, ?) IF NOT EXISTS`)

	prepared.GetProductByID = s.Session.Query(`
        SELECT product_id, sku, name, description, photo_path, price, stock,
            admin_id, is_active, is_deleted, created_at, updated_at
        FROM products WHERE product_id = ?`)

	prepared.GetProductBySKU = s.Session.Query(`
        SELECT product_id FROM sku_to_product WHERE sku = ?`)

	prepared.ListProducts = s.Session.Query(`
        SELECT product_id, sku, name, description, photo_path, price, stock,
            admin_id, is_active, is_deleted, created_at, updated_at
        FROM products`)

	prepared.ListProductsByAdmin = s.Session.Query(`
        SELECT product_id FROM products_by_admin WHERE admin_id = ?`)

	prepared.SetProductDeleted = s.Session.Query(`
        UPDATE products SET is_deleted = ?, is_active = ?, updated_at = ?
        WHERE product_id = ?`)

	prepared.AddCartItem = s.Session.Query(`
        INSERT INTO cart_items (user_id, product_id, quantity, added_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetCartItems = s.Session.Query(`
        SELECT user_id, product_id, quantity, added_at
        FROM cart_items WHERE user_id = ?`)

	prepared.ClearCart = s.Session.Query(`
        DELETE FROM cart_items WHERE user_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

// ScanWithRetry retries transient scan failures with backoff. A
// definitive miss returns immediately; lookups on the login path must
// not pay the backoff for rows that do not exist.
func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	return scanWithRetry(func() error {
		return query.Scan(dest...)
	})
}

func scanWithRetry(scan func() error) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		err := scan()
		if err == nil {
			return nil
		}
		if err == gocql.ErrNotFound {
			return err
		}
		lastErr = err
		if i < 2 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return lastErr
}
