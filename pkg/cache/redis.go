package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	hmerrors "github.com/logflow/hminer/pkg/errors"
)

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string `yaml:"address"`

	// Password for Redis authentication (optional)
	Password string `yaml:"password"`

	// Database number to use (default: 0)
	Database int `yaml:"database"`

	// Prefix is prepended to all cache keys
	Prefix string `yaml:"prefix"`

	// TTL is the time-to-live for entries (0 = no expiration)
	TTL time.Duration `yaml:"ttl"`

	// Timeout for Redis operations
	Timeout time.Duration `yaml:"timeout"`

	// PoolSize is the maximum number of connections
	PoolSize int `yaml:"pool_size"`
}

// DefaultRedisConfig returns defaults for the given address.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "hminer:results:",
		TTL:      24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// RedisCache stores entries as JSON strings in Redis.
type RedisCache struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, hmerrors.Wrap(err, hmerrors.CodeCache, "failed to connect to redis").
			WithContext("address", cfg.Address)
	}

	return &RedisCache{cfg: cfg, client: client}, nil
}

func (c *RedisCache) key(k string) string {
	return c.cfg.Prefix + k
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, hmerrors.Wrap(err, hmerrors.CodeCache, "failed to read cache entry")
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, hmerrors.Wrap(err, hmerrors.CodeCache, "failed to decode cache entry")
	}
	return &entry, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, key string, entry *Entry) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(entry)
	if err != nil {
		return hmerrors.Wrap(err, hmerrors.CodeCache, "failed to encode cache entry")
	}
	if err := c.client.Set(ctx, c.key(key), data, c.cfg.TTL).Err(); err != nil {
		return hmerrors.Wrap(err, hmerrors.CodeCache, "failed to write cache entry")
	}
	return nil
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Name implements Cache.
func (c *RedisCache) Name() string {
	return "redis"
}
