package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the Redis access interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	// HReplaceWithExpiry replaces the whole hash with fields and sets the key's TTL.
	HReplaceWithExpiry(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	// HUpdateWithExpiry writes only the given fields and resets the key's TTL,
	// but only if the key exists. It reports whether the write happened.
	HUpdateWithExpiry(ctx context.Context, key string, fields map[string]string, ttl time.Duration) (bool, error)
	// HGetAll returns every field of the hash; an empty map means the key is absent.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCache) HReplaceWithExpiry(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// hsetIfExists merges ARGV[2:] field/value pairs into KEYS[1] and sets a
// PEXPIRE of ARGV[1] ms, only when the key is present.
var hsetIfExists = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

func (c *RedisCache) HUpdateWithExpiry(ctx context.Context, key string, fields map[string]string, ttl time.Duration) (bool, error) {
	if len(fields) == 0 {
		return false, nil
	}
	args := make([]any, 0, 1+2*len(fields))
	args = append(args, ttl.Milliseconds())
	for k, v := range fields {
		args = append(args, k, v)
	}
	n, err := hsetIfExists.Run(ctx, c.client, []string{key}, args...).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *RedisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

// Compile-time check that RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
