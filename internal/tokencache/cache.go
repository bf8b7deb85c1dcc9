// Package tokencache keeps positive token resolutions in Redis.
package tokencache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "passby:tok:"

// Config configures the Redis connection.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool-size"`
}

// Connect opens a client and checks it with PING.
func Connect(ctx context.Context, c Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Cache maps token digests to owner IDs.
type Cache struct {
	rdb    redis.Cmdable
	prefix string
}

// New wraps a Redis client.
func New(rdb redis.Cmdable) *Cache { return &Cache{rdb: rdb, prefix: defaultPrefix} }

func (c *Cache) key(hash []byte) string { return c.prefix + hex.EncodeToString(hash) }

// Get returns the cached owner; ok=false on a miss.
func (c *Cache) Get(ctx context.Context, hash []byte) (owner uuid.UUID, ok bool, err error) {
	val, err := c.rdb.Get(ctx, c.key(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	owner, err = uuid.FromString(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("cached owner: %w", err)
	}
	return owner, true, nil
}

// Put stores owner for ttl. A non-positive ttl stores nothing.
func (c *Cache) Put(ctx context.Context, hash []byte, owner uuid.UUID, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, c.key(hash), owner.String(), ttl).Err()
}

// Evict drops the given digests.
func (c *Cache) Evict(ctx context.Context, hashes ...[]byte) error {
	if len(hashes) == 0 {
		return nil
	}
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = c.key(h)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
