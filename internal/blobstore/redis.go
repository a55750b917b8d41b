package blobstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "blob:"

// casScript writes ARGV[2] when the stored version equals ARGV[1]. It returns
// the new version, or -1 on mismatch.
var casScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'v') or '0')
if cur ~= tonumber(ARGV[1]) then
    return -1
end
local nextVersion = cur + 1
redis.call('HSET', KEYS[1], 'v', nextVersion, 'd', ARGV[2])
return nextVersion
`)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Blob, error) {
	return readHash(ctx, s.client, redisKeyPrefix+key)
}

func (s *RedisStore) Put(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	next, err := casScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, expected, string(data)).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis put %s: %w", key, err)
	}
	if next < 0 {
		return 0, ErrVersionConflict
	}
	return next, nil
}

func readHash(ctx context.Context, client *redis.Client, fullKey string) (Blob, error) {
	vals, err := client.HMGet(ctx, fullKey, "v", "d").Result()
	if err != nil {
		return Blob{}, fmt.Errorf("redis get %s: %w", fullKey, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return Blob{}, nil
	}

	vs, _ := vals[0].(string)
	version, err := strconv.ParseInt(vs, 10, 64)
	if err != nil {
		return Blob{}, fmt.Errorf("redis get %s: bad version %q", fullKey, vs)
	}
	ds, _ := vals[1].(string)
	return Blob{Data: []byte(ds), Version: version}, nil
}
