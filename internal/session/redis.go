package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/snigate/internal/observability"
)

// RedisConfig holds configuration for the Redis external cache tier.
type RedisConfig struct {
	// Address is the host:port of the Redis server.
	Address string

	// Password is the optional Redis password.
	Password string

	// DB is the Redis database number.
	DB int

	// Connection pool settings.
	PoolSize     int
	MinIdleConns int

	// Timeouts.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// withDefaults fills unset options.
func (c RedisConfig) withDefaults() RedisConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 500 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 500 * time.Millisecond
	}
	return c
}

// RedisCache implements ExternalCache using Redis, so resumption state is
// shared across every endpoint process serving the same virtual hosts.
type RedisCache struct {
	client *redis.Client
	logger observability.Logger
}

// NewRedisCache creates and pings a Redis-backed external cache.
func NewRedisCache(cfg RedisConfig, logger observability.Logger) (*RedisCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	cfg = cfg.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("external session cache connected",
		observability.String("address", cfg.Address),
	)

	return &RedisCache{client: client, logger: logger}, nil
}

// Get returns the cached value or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value with the given lifetime.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Close releases the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ensure RedisCache implements ExternalCache.
var _ ExternalCache = (*RedisCache)(nil)
