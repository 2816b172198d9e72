package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/client"
	"github.com/shopfive/backend/internal/util"
)

const revokedTokenPrefix = "revoked_token:"

// TokenDenylist tracks revoked refresh token IDs. An entry lives exactly
// as long as the token it revokes would have.
type TokenDenylist struct {
	client *client.RedisClient
}

func NewTokenDenylist(client *client.RedisClient) *TokenDenylist {
	return &TokenDenylist{client: client}
}

func (d *TokenDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired, nothing to deny
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := d.client.Set(ctx, revokedTokenPrefix+jti, "1", ttl); err != nil {
		util.Error("Failed to revoke token",
			zap.String("jti", jti),
			zap.Error(err))
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	util.Info("Refresh token revoked",
		zap.String("jti", jti),
		zap.Duration("ttl", ttl))
	return nil
}

func (d *TokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	revoked, err := d.client.Exists(ctx, revokedTokenPrefix+jti)
	if err != nil {
		util.Error("Failed to check token revocation",
			zap.String("jti", jti),
			zap.Error(err))
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return revoked, nil
}
