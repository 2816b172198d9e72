package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopfive/backend/internal/client"
	"github.com/shopfive/backend/internal/lockout"
	"github.com/shopfive/backend/internal/util"
)

const (
	loginLockPrefix = "login_lock:"
	loginFailPrefix = "login_fail:"
)

// failAndMaybeLockScript performs the whole read-modify-write in one
// round trip. A locked key is reported without touching the counter;
// otherwise the counter is incremented and, at the threshold, the lock
// is set and the counter's TTL collapsed onto the lock's so a fresh
// window starts after the lock expires.
const failAndMaybeLockScript = `
local lock = KEYS[1]
local counter = KEYS[2]
local lock_ttl = tonumber(ARGV[1])
local counter_ttl = tonumber(ARGV[2])
local threshold = tonumber(ARGV[3])

if redis.call('EXISTS', lock) == 1 then
    local remaining = redis.call('PTTL', lock)
    local count = tonumber(redis.call('GET', counter) or '0')
    return {1, remaining, count}
end

local count = redis.call('INCR', counter)
if count == 1 then
    redis.call('PEXPIRE', counter, counter_ttl)
end

if count >= threshold then
    redis.call('SET', lock, '1', 'PX', lock_ttl)
    redis.call('PEXPIRE', counter, lock_ttl)
    return {1, lock_ttl, count}
end

return {0, 0, count}
`

// LockoutCache is the Redis-backed lockout store shared across instances.
type LockoutCache struct {
	client *client.RedisClient
}

func NewLockoutCache(client *client.RedisClient) *LockoutCache {
	return &LockoutCache{client: client}
}

var _ lockout.Store = (*LockoutCache)(nil)

func (c *LockoutCache) RecordFailure(ctx context.Context, key string, threshold int, lockTTL, counterTTL time.Duration) (lockout.State, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keys := []string{loginLockPrefix + key, loginFailPrefix + key}
	result, err := c.client.Eval(ctx, failAndMaybeLockScript, keys,
		lockTTL.Milliseconds(), counterTTL.Milliseconds(), threshold)
	if err != nil {
		util.Error("Failed to record login failure",
			zap.String("key", key),
			zap.Error(err))
		return lockout.State{}, fmt.Errorf("failed to record login failure: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return lockout.State{}, fmt.Errorf("unexpected result format from lockout script")
	}

	state := lockout.State{
		Locked:         values[0].(int64) == 1,
		Remaining:      time.Duration(values[1].(int64)) * time.Millisecond,
		FailedAttempts: int(values[2].(int64)),
	}

	if state.Locked {
		util.Warn("Login lockout active",
			zap.String("key", key),
			zap.Int("failed_attempts", state.FailedAttempts),
			zap.Duration("remaining", state.Remaining))
	} else {
		util.Debug("Login failure counted",
			zap.String("key", key),
			zap.Int("failed_attempts", state.FailedAttempts))
	}

	return state, nil
}

func (c *LockoutCache) Status(ctx context.Context, key string) (lockout.State, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	lockKey := loginLockPrefix + key

	locked, err := c.client.Exists(ctx, lockKey)
	if err != nil {
		util.Error("Failed to check login lock",
			zap.String("key", key),
			zap.Error(err))
		return lockout.State{}, fmt.Errorf("failed to check login lock: %w", err)
	}

	state := lockout.State{Locked: locked}

	if locked {
		ttl, err := c.client.TTL(ctx, lockKey)
		if err != nil {
			return lockout.State{}, fmt.Errorf("failed to read lock TTL: %w", err)
		}
		state.Remaining = ttl
	}

	countStr, err := c.client.Get(ctx, loginFailPrefix+key)
	if err != nil {
		if strings.HasPrefix(err.Error(), "key not found") {
			return state, nil
		}
		return lockout.State{}, fmt.Errorf("failed to read failure counter: %w", err)
	}

	count, err := strconv.Atoi(countStr)
	if err != nil {
		return lockout.State{}, fmt.Errorf("invalid failure counter format: %w", err)
	}
	state.FailedAttempts = count

	return state, nil
}

func (c *LockoutCache) Clear(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, loginLockPrefix+key, loginFailPrefix+key); err != nil {
		util.Error("Failed to clear lockout state",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to clear lockout state: %w", err)
	}

	util.Debug("Lockout state cleared", zap.String("key", key))
	return nil
}
