package dlock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// releaseTimeout bounds the detached release performed after a critical
// section whose context may already be done.
const releaseTimeout = 5 * time.Second

// Manager coordinates exclusive access to named resources through a
// shared KV store. One Manager typically lives for the whole process;
// it is safe for concurrent use and does not provide reentrancy: the
// same resource acquired twice from one process is two independent,
// competing acquisitions.
//
// A held lease proves ownership with an unguessable token, not with a
// monotonic fencing value: a holder paused past its TTL can still reach
// the guarded resource until renewal notices the loss. Callers that need
// stale writers rejected must enforce fencing on the resource itself.
type Manager struct {
	kv     KV
	config Config
	owner  string

	mu     sync.Mutex
	leases map[string]*lease
	closed bool
}

// New creates a lock manager on top of the given KV backend.
func New(kv KV, options ...Option) *Manager {
	config := Config{
		Namespace:     "distributed_lock",
		TTL:           30 * time.Second,
		RetryInterval: 100 * time.Millisecond,
		RetryJitter:   50 * time.Millisecond,
		AutoRenew:     true,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}
	return &Manager{
		kv:     kv,
		config: config,
		owner:  uuid.NewString(),
		leases: make(map[string]*lease),
	}
}

// Owner returns this manager's identity, reported in Info for leases it
// holds.
func (m *Manager) Owner() string {
	return m.owner
}

func (m *Manager) key(resource string) string {
	return m.config.Namespace + ":" + resource
}

// Acquire attempts to take the lock for resource and returns the owner
// token on success. A lock held elsewhere is not an error: the call
// returns ("", false, nil) — in wait mode only after polling until the
// wait timeout elapses. Store failures are returned as errors.
func (m *Manager) Acquire(ctx context.Context, resource string, options ...AcquireOption) (string, bool, error) {
	config := AcquireConfig{
		TTL: m.config.TTL,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return "", false, ErrClosed
	}

	token, err := newToken()
	if err != nil {
		return "", false, err
	}

	log := logr.FromContextOrDiscard(ctx)
	key := m.key(resource)

	var deadline <-chan time.Time
	if config.Wait && config.WaitTimeout > 0 {
		timer := time.NewTimer(config.WaitTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		ok, err := m.kv.SetIfAbsent(ctx, key, token, config.TTL)
		if err != nil {
			return "", false, fmt.Errorf("dlock: acquire %q: %w", resource, err)
		}
		if ok {
			if !m.register(ctx, resource, key, token, config.TTL) {
				// Close ran while the write was in flight; undo it so
				// the lock does not linger until TTL with no holder.
				if _, err := m.kv.CompareAndDelete(ctx, key, token); err != nil {
					log.Error(err, "dlock: undo acquire on closed manager", "resource", resource)
				}
				return "", false, ErrClosed
			}
			log.V(1).Info("dlock: acquired", "resource", resource, "ttl", config.TTL)
			return token, true, nil
		}
		if !config.Wait {
			return "", false, nil
		}

		retry := time.NewTimer(m.retryDelay())
		select {
		case <-ctx.Done():
			retry.Stop()
			return "", false, ctx.Err()
		case <-deadline:
			retry.Stop()
			return "", false, nil
		case <-retry.C:
		}
	}
}

// retryDelay returns the base retry interval plus random jitter.
func (m *Manager) retryDelay() time.Duration {
	delay := m.config.RetryInterval
	if m.config.RetryJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(m.config.RetryJitter)))
	}
	return delay
}

// Release gives up the lock for resource if this manager holds it with
// the given token, and reports whether a lease was actually released.
// Releasing a lock that is not held, or with the wrong token, is a
// no-op returning false, not an error.
func (m *Manager) Release(ctx context.Context, resource, token string) (bool, error) {
	m.mu.Lock()
	l, ok := m.leases[resource]
	m.mu.Unlock()
	if !ok || l.token != token {
		return false, nil
	}

	// Stop renewal before touching the store so no renew tick can race
	// the delete or report a loss for a voluntarily released lease.
	if l.renew != nil {
		l.renew.stop()
	}

	deleted, err := m.kv.CompareAndDelete(ctx, l.key, token)
	if err != nil {
		// Keep the local record so the caller can retry the release.
		// Renewal does not resume; an unretried lease expires by TTL.
		return false, fmt.Errorf("dlock: release %q: %w", resource, err)
	}
	m.forget(l)
	if !deleted {
		// Expired, or taken over in the meantime: nothing left to
		// release for this holder.
		logr.FromContextOrDiscard(ctx).Info("dlock: release found no owned lease", "resource", resource)
		return false, nil
	}
	return true, nil
}

// ForceRelease unconditionally removes the lock for resource, bypassing
// ownership checks, and clears any local lease. Administrative recovery
// only: this can release a lock legitimately held by another process.
func (m *Manager) ForceRelease(ctx context.Context, resource string) error {
	m.mu.Lock()
	l, ok := m.leases[resource]
	if ok {
		delete(m.leases, resource)
	}
	m.mu.Unlock()
	if ok && l.renew != nil {
		l.renew.stop()
	}

	if err := m.kv.Delete(ctx, m.key(resource)); err != nil {
		return fmt.Errorf("dlock: force release %q: %w", resource, err)
	}
	return nil
}

// WithLock runs fn while holding the lock for resource and releases it
// on every exit path, including a panic inside fn. When the lock cannot
// be acquired the returned error wraps ErrResourceBusy and fn is never
// called.
func (m *Manager) WithLock(ctx context.Context, resource string, fn func(context.Context) error, options ...AcquireOption) error {
	token, acquired, err := m.Acquire(ctx, resource, options...)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("dlock: %q: %w", resource, ErrResourceBusy)
	}

	defer func() {
		// Release even when the caller's context is already done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if _, err := m.Release(releaseCtx, resource, token); err != nil {
			logr.FromContextOrDiscard(ctx).Error(err, "dlock: release after critical section", "resource", resource)
		}
	}()

	return fn(ctx)
}

// IsLocked reports whether the lock for resource currently exists in the
// store. The answer can be stale by the time it is used.
func (m *Manager) IsLocked(ctx context.Context, resource string) (bool, error) {
	_, found, err := m.kv.Get(ctx, m.key(resource))
	if err != nil {
		return false, fmt.Errorf("dlock: check %q: %w", resource, err)
	}
	return found, nil
}

// Info returns diagnostic information about the lock for resource.
func (m *Manager) Info(ctx context.Context, resource string) (Info, error) {
	value, found, err := m.kv.Get(ctx, m.key(resource))
	if err != nil {
		return Info{}, fmt.Errorf("dlock: info %q: %w", resource, err)
	}

	info := Info{
		Resource: resource,
		Token:    value,
		Locked:   found,
	}

	m.mu.Lock()
	if l, ok := m.leases[resource]; ok && found && l.token == value {
		info.Owned = true
		info.Owner = m.owner
		info.Age = time.Since(l.acquiredAt)
	}
	m.mu.Unlock()

	return info, nil
}

// Close releases every lease this manager still holds, best effort, and
// marks the manager unusable. Host applications must call it on
// shutdown: nothing releases held locks automatically when the process
// exits, they only expire by TTL.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	held := make([]*lease, 0, len(m.leases))
	for _, l := range m.leases {
		held = append(held, l)
	}
	m.leases = make(map[string]*lease)
	m.mu.Unlock()

	log := logr.FromContextOrDiscard(ctx)
	var group errgroup.Group
	for _, l := range held {
		l := l
		group.Go(func() error {
			if l.renew != nil {
				l.renew.stop()
			}
			deleted, err := m.kv.CompareAndDelete(ctx, l.key, l.token)
			if err != nil {
				return fmt.Errorf("dlock: release %q on close: %w", l.resource, err)
			}
			if !deleted {
				log.V(1).Info("dlock: lease already gone on close", "resource", l.resource)
			}
			return nil
		})
	}
	return group.Wait()
}
