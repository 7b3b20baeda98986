package dlock

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// renewer keeps a single lease alive by periodically rewriting its value
// with a fresh TTL while the remembered token still matches the store.
type renewer struct {
	manager  *Manager
	lease    *lease
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func newRenewer(ctx context.Context, m *Manager, l *lease, interval time.Duration) *renewer {
	r := &renewer{
		manager:  m,
		lease:    l,
		interval: interval,
		done:     make(chan struct{}),
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	return r
}

// start begins the renewal loop. Safe to call multiple times; a no-op
// once stop has run.
func (r *renewer) start() {
	r.once.Do(func() {
		go r.run(r.ctx)
	})
}

// stop cancels the loop and waits for it to finish, so no renewal tick
// can race whatever the caller does next with the lock key. A renewer
// stopped before start stays stopped: start and stop share the same
// once, so whichever runs first wins.
func (r *renewer) stop() {
	r.cancel()
	r.once.Do(func() {
		close(r.done)
	})
	<-r.done
}

func (r *renewer) run(ctx context.Context) {
	defer close(r.done)

	log := logr.FromContextOrDiscard(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.tick(ctx, log) {
				return
			}
		}
	}
}

// tick extends the lease once. Returns false when ownership is gone and
// the loop must stop.
func (r *renewer) tick(ctx context.Context, log logr.Logger) bool {
	l := r.lease

	ok, err := r.manager.kv.CompareAndSwap(ctx, l.key, l.token, l.token, l.ttl)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		// A transient store failure is not a loss signal: the lease may
		// still be live. Try again on the next tick; if the store stays
		// down the lease expires on its own.
		log.Error(err, "dlock: renew failed", "resource", l.resource)
		return true
	}
	if !ok {
		log.Info("dlock: lock lost", "resource", l.resource, "age", time.Since(l.acquiredAt))
		r.manager.lost(l)
		return false
	}
	return true
}
