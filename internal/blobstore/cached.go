package blobstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const cacheKeyPrefix = "blobcache:"

// Cached serves Get from Redis and falls back to the primary store on a miss.
// Reads may lag the primary by at most ttl. Successful writes refresh the
// cached copy and version conflicts evict it. Cache faults are logged and
// never fail a call.
type Cached struct {
	primary Store
	client  *redis.Client
	ttl     time.Duration
}

func NewCached(primary Store, client *redis.Client, ttl time.Duration) *Cached {
	return &Cached{primary: primary, client: client, ttl: ttl}
}

func (c *Cached) Get(ctx context.Context, key string) (Blob, error) {
	b, err := readHash(ctx, c.client, cacheKeyPrefix+key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("blob cache read failed")
	} else if b.Exists() {
		return b, nil
	}

	b, err = c.primary.Get(ctx, key)
	if err != nil {
		return Blob{}, err
	}
	if b.Exists() {
		c.fill(ctx, key, b)
	}
	return b, nil
}

func (c *Cached) GetLatest(ctx context.Context, key string) (Blob, error) {
	return c.primary.Get(ctx, key)
}

func (c *Cached) Put(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	version, err := c.primary.Put(ctx, key, data, expected)
	if errors.Is(err, ErrVersionConflict) {
		c.evict(ctx, key)
		return 0, err
	}
	if err != nil {
		return 0, err
	}
	c.fill(ctx, key, Blob{Data: data, Version: version})
	return version, nil
}

func (c *Cached) fill(ctx context.Context, key string, b Blob) {
	fullKey := cacheKeyPrefix + key
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, fullKey, "v", b.Version, "d", string(b.Data))
		pipe.Expire(ctx, fullKey, c.ttl)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("blob cache fill failed")
	}
}

func (c *Cached) evict(ctx context.Context, key string) {
	if err := c.client.Del(ctx, cacheKeyPrefix+key).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("blob cache evict failed")
	}
}
