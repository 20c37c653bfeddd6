package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"character-sync/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the cache surface the service depends on.
type Store interface {
	Close() error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	GetListing(ctx context.Context, sessionToken string) (*models.CharacterListing, error)
	SetListing(ctx context.Context, sessionToken string, listing *models.CharacterListing, ttl time.Duration) error
	InvalidateListing(ctx context.Context, sessionToken string) error
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Cache handles Redis operations
type Cache struct {
	client redis.UniversalClient
	logger *zap.Logger
}

var _ Store = (*Cache)(nil)

// NewCache creates a new cache instance
func NewCache(redisURL string, logger *zap.Logger) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// NewCacheWithClient wraps an existing client.
func NewCacheWithClient(client redis.UniversalClient, logger *zap.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// CheckRateLimit reports whether key has exceeded limit hits in the current
// window.
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := "rate_limit:" + key
	count, err := c.client.Incr(ctx, redisKey).Result()
	if err != nil {
		c.logger.Error("Failed to increment rate limit counter", zap.String("key", key), zap.Error(err))
		return false, err
	}

	// Set expiration on first request
	if count == 1 {
		if err := c.client.Expire(ctx, redisKey, window).Err(); err != nil {
			c.logger.Error("Failed to set rate limit expiration", zap.Error(err))
		}
	}

	return count > int64(limit), nil
}

// listingKey never embeds the session token itself.
func listingKey(sessionToken string) string {
	sum := sha256.Sum256([]byte(sessionToken))
	return "listing:" + hex.EncodeToString(sum[:])
}

// GetListing returns the cached listing for a session, or nil on a miss.
func (c *Cache) GetListing(ctx context.Context, sessionToken string) (*models.CharacterListing, error) {
	data, err := c.client.Get(ctx, listingKey(sessionToken)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to get listing from cache", zap.Error(err))
		return nil, err
	}

	var listing models.CharacterListing
	if err := json.Unmarshal(data, &listing); err != nil {
		c.logger.Error("Failed to unmarshal listing", zap.Error(err))
		return nil, err
	}
	return &listing, nil
}

// SetListing stores a listing for ttl.
func (c *Cache) SetListing(ctx context.Context, sessionToken string, listing *models.CharacterListing, ttl time.Duration) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, listingKey(sessionToken), data, ttl).Err(); err != nil {
		c.logger.Error("Failed to set listing in cache", zap.Error(err))
		return err
	}
	return nil
}

// InvalidateListing drops the cached listing for a session.
func (c *Cache) InvalidateListing(ctx context.Context, sessionToken string) error {
	if err := c.client.Del(ctx, listingKey(sessionToken)).Err(); err != nil {
		c.logger.Error("Failed to invalidate listing", zap.Error(err))
		return err
	}
	return nil
}

// AcquireLock takes key for ttl with SET NX. The returned token is required
// to release it.
func (c *Cache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		c.logger.Error("Failed to acquire lock", zap.String("key", key), zap.Error(err))
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases key if it is still held with token.
func (c *Cache) ReleaseLock(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, c.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		c.logger.Error("Failed to release lock", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
