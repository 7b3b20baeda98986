// Package dlock coordinates exclusive access to named resources across
// process boundaries, using a shared key-value store as the single
// source of truth. Backends live in subpackages (redis, pgx, inmem).
package dlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// KV is the minimal key-value contract a locking backend must provide.
// Every conditional operation must be atomic at the store: the manager's
// mutual-exclusion guarantee is only as strong as the backend's
// SetIfAbsent, CompareAndSwap and CompareAndDelete.
type KV interface {
	// Get returns the value stored under key, or found=false when the
	// key is absent or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// SetIfAbsent stores value under key with the given TTL only if no
	// live value is present. Returns true if the write took place.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndSwap replaces the value under key and resets its TTL
	// only if the current value equals expected. Returns true on success.
	CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete removes key only if the current value equals
	// expected. The check and the delete are one indivisible operation.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// Delete removes key unconditionally.
	Delete(ctx context.Context, key string) error
}

// Info describes the state of a single lock, for diagnostics.
type Info struct {
	// Resource is the caller-supplied resource name.
	Resource string
	// Token is the current holder's token, empty when unlocked.
	Token string
	// Locked reports whether the lock key exists in the store.
	Locked bool
	// Owned reports whether this process holds the lock.
	Owned bool
	// Owner is this manager's owner ID when Owned is true.
	Owner string
	// Age is the time since local acquisition when Owned is true.
	Age time.Duration
}

// newToken returns a random 128-bit hex token proving lock ownership.
func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("dlock: generate token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
