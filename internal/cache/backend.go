// Package cache is the single entry point higher components use to reach
// storage. It routes every operation to the shared cache (primary) or the
// in-process fallback store through a circuit breaker, so callers get one
// contract and never observe transport failures.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evercart/authguard/internal/pool"
)

// Backend is the storage contract shared by the primary and fallback
// variants. The facade selects the active variant from circuit state;
// nothing ever inspects the concrete type.
//
// Values are strings; counters written by IncrWithTTL read back through Get
// as decimal strings on both backends.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetAdd(ctx context.Context, key, member string, ttl time.Duration) error
	SetRemove(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// incrWithTTLLua increments a counter and establishes its expiry in the same
// atomic step on the first hit, so a counter can never outlive its window.
// KEYS[1] = counter key, ARGV[1] = ttl in milliseconds.
var incrWithTTLLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 and tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// primaryBackend adapts the pooled shared-cache client to the Backend
// contract. Every call acquires a handle, so an unhealthy pool surfaces as
// an ordinary backend error for the breaker to count.
type primaryBackend struct {
	pool *pool.Pool
}

func newPrimaryBackend(p *pool.Pool) *primaryBackend {
	return &primaryBackend{pool: p}
}

func (b *primaryBackend) Name() string { return "primary" }

func (b *primaryBackend) Get(ctx context.Context, key string) (string, bool, error) {
	client, err := b.pool.Acquire("cache.get")
	if err != nil {
		return "", false, err
	}

	value, err := client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (b *primaryBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	client, err := b.pool.Acquire("cache.set")
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return client.Set(ctx, key, value, ttl).Err()
}

func (b *primaryBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	client, err := b.pool.Acquire("cache.delete")
	if err != nil {
		return err
	}
	return client.Del(ctx, keys...).Err()
}

func (b *primaryBackend) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	client, err := b.pool.Acquire("cache.incr")
	if err != nil {
		return 0, err
	}
	return incrWithTTLLua.Run(ctx, client, []string{key}, ttl.Milliseconds()).Int64()
}

func (b *primaryBackend) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	client, err := b.pool.Acquire("cache.sadd")
	if err != nil {
		return err
	}
	if err := client.SAdd(ctx, key, member).Err(); err != nil {
		return err
	}
	if ttl > 0 {
		return client.Expire(ctx, key, ttl).Err()
	}
	return nil
}

func (b *primaryBackend) SetRemove(ctx context.Context, key, member string) error {
	client, err := b.pool.Acquire("cache.srem")
	if err != nil {
		return err
	}
	return client.SRem(ctx, key, member).Err()
}

func (b *primaryBackend) SetMembers(ctx context.Context, key string) ([]string, error) {
	client, err := b.pool.Acquire("cache.smembers")
	if err != nil {
		return nil, err
	}
	return client.SMembers(ctx, key).Result()
}
