package dlock

import (
	"context"
	"time"
)

// lease is the process-local record of a lock this manager believes it
// owns. It is a cache of belief, never authoritative: the store stays
// the arbiter of truth and every ownership-gated mutation revalidates
// the token against it.
type lease struct {
	resource   string
	key        string
	token      string
	ttl        time.Duration
	acquiredAt time.Time

	// renew is nil when auto-renew is disabled. The lease owns its
	// renewal task so Release can stop it synchronously before the
	// record goes away.
	renew *renewer
}

// register records a freshly acquired lease and starts its renewal
// task. It reports false, recording nothing, when the manager was
// closed while the acquiring write was in flight: the caller still owns
// the key in the store and must undo it.
func (m *Manager) register(ctx context.Context, resource, key, token string, ttl time.Duration) bool {
	l := &lease{
		resource:   resource,
		key:        key,
		token:      token,
		ttl:        ttl,
		acquiredAt: time.Now(),
	}

	// The closed check and the insert share one critical section so
	// Close cannot slip between them and miss this lease.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if m.config.AutoRenew {
		// Renewal outlives the acquiring call: only the context values
		// (logger, tracing) carry over, not its cancellation.
		l.renew = newRenewer(context.WithoutCancel(ctx), m, l, m.renewalInterval(ttl))
	}
	old := m.leases[resource]
	m.leases[resource] = l
	m.mu.Unlock()

	// A stale record can linger here when a non-renewed lease expired in
	// the store and was never released locally.
	if old != nil && old.renew != nil {
		old.renew.stop()
	}

	if l.renew != nil {
		l.renew.start()
	}
	return true
}

// forget drops the local record for l unless the resource has since
// been re-acquired under a newer lease.
func (m *Manager) forget(l *lease) {
	m.mu.Lock()
	if cur, ok := m.leases[l.resource]; ok && cur == l {
		delete(m.leases, l.resource)
	}
	m.mu.Unlock()
}

// lost drops the local record for a lease whose renewal found a foreign
// or missing value in the store, and notifies the host application.
func (m *Manager) lost(l *lease) {
	m.forget(l)

	if m.config.OnLockLost != nil {
		m.config.OnLockLost(l.resource, l.token)
	}
}

// renewalInterval resolves the configured interval for a lease TTL,
// falling back to TTL/3 whenever the configuration does not fit below
// the TTL.
func (m *Manager) renewalInterval(ttl time.Duration) time.Duration {
	interval := m.config.RenewalInterval
	if interval <= 0 || interval >= ttl {
		interval = ttl / 3
	}
	return interval
}
