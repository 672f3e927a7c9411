package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL constants
const (
	TTLFeed       = 30 * time.Second // feed pages refresh often
	TTLUser       = 5 * time.Minute
	TTLVerifyCode = 10 * time.Minute // email verification codes
	TTLResendGap  = 60 * time.Second // minimum gap between code sends
	TTLDefault    = 5 * time.Minute
)

// Cache key prefixes
const (
	PrefixFeed       = "feed:"
	PrefixUser       = "user:"
	PrefixVerifyCode = "verify_code:"
	PrefixResendGate = "verify_resend:"
)

// Service is the Redis cache service interface
type Service interface {
	// Generic operations
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Feed page cache
	GetFeedPage(ctx context.Context, page, pageSize int) ([]byte, error)
	SetFeedPage(ctx context.Context, page, pageSize int, data interface{}) error
	InvalidateFeed(ctx context.Context) error

	// User cache
	GetUser(ctx context.Context, userID uint) ([]byte, error)
	SetUser(ctx context.Context, userID uint, data interface{}) error
	InvalidateUser(ctx context.Context, userID uint) error

	// Email verification codes
	SetVerifyCode(ctx context.Context, email, code string) error
	GetVerifyCode(ctx context.Context, email string) (string, error)
	DeleteVerifyCode(ctx context.Context, email string) error
	MarkCodeSent(ctx context.Context, email string) error
	CanResendCode(ctx context.Context, email string) (bool, error)

	// Utilities
	IsAvailable() bool
	Ping(ctx context.Context) error
}

// redisCache is the Redis-backed implementation
type redisCache struct {
	client *redis.Client
}

// NewService creates a new cache service
func NewService(client *redis.Client) Service {
	return &redisCache{client: client}
}

// IsAvailable reports whether Redis is connected
func (c *redisCache) IsAvailable() bool {
	return c.client != nil
}

// Ping tests the Redis connection
func (c *redisCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return c.client.Ping(ctx).Err()
}

// Get reads a value from the cache
func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return fmt.Errorf("redis not available")
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// Set stores a value in the cache
func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil // no Redis, skip silently
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes keys from the cache
func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Exists checks whether a key is present
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

// ========================================
// Feed page cache
// ========================================

func (c *redisCache) feedKey(page, pageSize int) string {
	return fmt.Sprintf("%s%d:%d", PrefixFeed, page, pageSize)
}

func (c *redisCache) GetFeedPage(ctx context.Context, page, pageSize int) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis not available")
	}
	return c.client.Get(ctx, c.feedKey(page, pageSize)).Bytes()
}

func (c *redisCache) SetFeedPage(ctx context.Context, page, pageSize int, data interface{}) error {
	if c.client == nil {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.feedKey(page, pageSize), jsonData, TTLFeed).Err()
}

func (c *redisCache) InvalidateFeed(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.deleteByPattern(ctx, PrefixFeed+"*")
}

// ========================================
// User cache
// ========================================

func (c *redisCache) userKey(userID uint) string {
	return fmt.Sprintf("%s%d", PrefixUser, userID)
}

func (c *redisCache) GetUser(ctx context.Context, userID uint) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis not available")
	}
	return c.client.Get(ctx, c.userKey(userID)).Bytes()
}

func (c *redisCache) SetUser(ctx context.Context, userID uint, data interface{}) error {
	if c.client == nil {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.userKey(userID), jsonData, TTLUser).Err()
}

func (c *redisCache) InvalidateUser(ctx context.Context, userID uint) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.userKey(userID)).Err()
}

// ========================================
// Email verification codes
// ========================================

func (c *redisCache) codeKey(email string) string {
	return PrefixVerifyCode + email
}

func (c *redisCache) resendKey(email string) string {
	return PrefixResendGate + email
}

func (c *redisCache) SetVerifyCode(ctx context.Context, email, code string) error {
	if c.client == nil {
		return fmt.Errorf("redis not available")
	}
	return c.client.Set(ctx, c.codeKey(email), code, TTLVerifyCode).Err()
}

func (c *redisCache) GetVerifyCode(ctx context.Context, email string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("redis not available")
	}
	return c.client.Get(ctx, c.codeKey(email)).Result()
}

func (c *redisCache) DeleteVerifyCode(ctx context.Context, email string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.codeKey(email)).Err()
}

// MarkCodeSent opens the resend gate for the configured gap
func (c *redisCache) MarkCodeSent(ctx context.Context, email string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Set(ctx, c.resendKey(email), "1", TTLResendGap).Err()
}

// CanResendCode reports whether the resend throttle allows another send
func (c *redisCache) CanResendCode(ctx context.Context, email string) (bool, error) {
	if c.client == nil {
		return true, nil
	}
	n, err := c.client.Exists(ctx, c.resendKey(email)).Result()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// ========================================
// Internal utilities
// ========================================

func (c *redisCache) deleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
