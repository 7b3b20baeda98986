// Package inmem implements dlock.KV with an in-process map, for tests
// and single-node deployments.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/enverbisevac/dlock"
)

var _ dlock.KV = (*KV)(nil)

// KV implements dlock.KV using an in-memory map with per-key TTL.
type KV struct {
	mu    sync.Mutex
	items map[string]item
}

type item struct {
	value     string
	expiresAt time.Time
}

// New creates a new in-memory KV store.
func New() *KV {
	return &KV{
		items: make(map[string]item),
	}
}

// live returns the unexpired item for key, removing it lazily when its
// TTL has passed. Callers must hold kv.mu.
func (kv *KV) live(key string) (item, bool) {
	it, ok := kv.items[key]
	if !ok {
		return item{}, false
	}
	if !time.Now().Before(it.expiresAt) {
		delete(kv.items, key)
		return item{}, false
	}
	return it, true
}

// Get returns the value stored under key.
func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	it, ok := kv.live(key)
	if !ok {
		return "", false, nil
	}
	return it.value, true, nil
}

// SetIfAbsent stores value under key only if no live value is present.
func (kv *KV) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	if _, ok := kv.live(key); ok {
		return false, nil
	}
	kv.items[key] = item{value: value, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// CompareAndSwap replaces the value under key and resets its TTL only if
// the current value equals expected.
func (kv *KV) CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	it, ok := kv.live(key)
	if !ok || it.value != expected {
		return false, nil
	}
	kv.items[key] = item{value: value, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// CompareAndDelete removes key only if the current value equals expected.
func (kv *KV) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	it, ok := kv.live(key)
	if !ok || it.value != expected {
		return false, nil
	}
	delete(kv.items, key)
	return true, nil
}

// Delete removes key unconditionally.
func (kv *KV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	delete(kv.items, key)
	return nil
}
