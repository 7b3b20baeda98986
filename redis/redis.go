// Package redis implements dlock.KV on a single logical Redis endpoint.
// Conditional operations Redis has no native command for run as Lua
// scripts, so the check and the mutation stay atomic server-side.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/enverbisevac/dlock"
	"github.com/redis/go-redis/v9"
)

var _ dlock.KV = (*KV)(nil)

// compareAndSwapScript rewrites the value with a fresh TTL only when the
// current value matches ARGV[1].
var compareAndSwapScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0`)

// compareAndDeleteScript deletes the key only when the current value
// matches ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// KV implements dlock.KV using Redis.
type KV struct {
	client redis.UniversalClient
}

// New creates a Redis-backed KV store.
func New(client redis.UniversalClient) *KV {
	return &KV{
		client: client,
	}
}

// Get returns the value stored under key.
func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := kv.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: get %q: %w", key, err)
	}
	return value, true, nil
}

// SetIfAbsent stores value under key with the given TTL only if the key
// does not exist.
func (kv *KV) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := kv.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx %q: %w", key, err)
	}
	return ok, nil
}

// CompareAndSwap replaces the value under key and resets its TTL only if
// the current value equals expected.
func (kv *KV) CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	n, err := compareAndSwapScript.Run(ctx, kv.client, []string{key}, expected, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis: compare-and-swap %q: %w", key, err)
	}
	return n == 1, nil
}

// CompareAndDelete removes key only if the current value equals expected.
func (kv *KV) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, kv.client, []string{key}, expected).Int()
	if err != nil {
		return false, fmt.Errorf("redis: compare-and-delete %q: %w", key, err)
	}
	return n == 1, nil
}

// Delete removes key unconditionally.
func (kv *KV) Delete(ctx context.Context, key string) error {
	if err := kv.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: del %q: %w", key, err)
	}
	return nil
}
