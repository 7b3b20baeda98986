// Package pgx implements dlock.KV on PostgreSQL. Locks live in a single
// table keyed by lock key; expired rows count as absent and are
// overwritten in place, so no background sweeper is needed.
package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/enverbisevac/dlock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ dlock.KV = (*KV)(nil)

// KV implements dlock.KV using a PostgreSQL table.
type KV struct {
	config Config
	pool   *pgxpool.Pool
}

// New creates a PostgreSQL-backed KV store using pgxpool.
func New(pool *pgxpool.Pool, options ...Option) *KV {
	config := Config{
		TableName: "distributed_locks",
	}
	for _, opt := range options {
		opt.Apply(&config)
	}
	return &KV{
		config: config,
		pool:   pool,
	}
}

// Get returns the value stored under key.
func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(
		`SELECT value FROM %s WHERE key = $1 AND expires_at > now()`,
		kv.config.TableName,
	)

	var value string
	err := kv.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pgx: get %q: %w", key, err)
	}
	return value, true, nil
}

// SetIfAbsent stores value under key only if no unexpired row exists.
// The insert and the expiry check run as one statement, so two racing
// writers cannot both succeed.
func (kv *KV) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (key, value, expires_at)
VALUES ($1, $2, now() + make_interval(secs => $3))
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
WHERE %s.expires_at <= now()`,
		kv.config.TableName, kv.config.TableName)

	tag, err := kv.pool.Exec(ctx, query, key, value, ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("pgx: set if absent %q: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompareAndSwap replaces the value under key and resets its expiry only
// if the current unexpired value equals expected.
func (kv *KV) CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s
SET value = $3, expires_at = now() + make_interval(secs => $4)
WHERE key = $1 AND value = $2 AND expires_at > now()`,
		kv.config.TableName)

	tag, err := kv.pool.Exec(ctx, query, key, expected, value, ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("pgx: compare-and-swap %q: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompareAndDelete removes key only if the current unexpired value
// equals expected.
func (kv *KV) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	query := fmt.Sprintf(
		`DELETE FROM %s WHERE key = $1 AND value = $2 AND expires_at > now()`,
		kv.config.TableName,
	)

	tag, err := kv.pool.Exec(ctx, query, key, expected)
	if err != nil {
		return false, fmt.Errorf("pgx: compare-and-delete %q: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes key unconditionally.
func (kv *KV) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, kv.config.TableName)

	if _, err := kv.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("pgx: delete %q: %w", key, err)
	}
	return nil
}
