package dlock

import "time"

// Config holds the configuration for a Manager.
type Config struct {
	// Namespace prefixes every lock key, separating locks of different
	// applications sharing one store.
	Namespace string

	// TTL is the default lease duration for Acquire.
	TTL time.Duration

	// RenewalInterval is the period between background renewal ticks.
	// Zero, or any value not strictly below the lease TTL, resolves to
	// TTL/3 per lease.
	RenewalInterval time.Duration

	// RetryInterval is the base delay between acquisition attempts in
	// wait mode.
	RetryInterval time.Duration

	// RetryJitter is the maximum random duration added to each retry
	// delay, so many waiters do not retry in lockstep.
	RetryJitter time.Duration

	// AutoRenew starts a background renewal task for every acquired
	// lease, keeping it alive until it is released.
	AutoRenew bool

	// OnLockLost is called when background renewal detects that a lease
	// is no longer owned. It runs on the renewal goroutine; the lease is
	// already forgotten locally when it fires. The in-flight critical
	// section is not interrupted.
	OnLockLost func(resource, token string)
}

// An Option configures a Manager instance.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a manager config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithNamespace returns an option that sets the lock key prefix.
func WithNamespace(value string) Option {
	return OptionFunc(func(c *Config) {
		c.Namespace = value
	})
}

// WithDefaultTTL sets the default lease duration used by Acquire.
func WithDefaultTTL(d time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.TTL = d
	})
}

// WithRenewalInterval sets the period between renewal ticks.
func WithRenewalInterval(d time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.RenewalInterval = d
	})
}

// WithRetryInterval sets the base delay between acquisition attempts in
// wait mode.
func WithRetryInterval(d time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.RetryInterval = d
	})
}

// WithRetryJitter sets the maximum random delay added to each retry.
func WithRetryJitter(d time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.RetryJitter = d
	})
}

// WithAutoRenew enables or disables background lease renewal.
func WithAutoRenew(enabled bool) Option {
	return OptionFunc(func(c *Config) {
		c.AutoRenew = enabled
	})
}

// WithLockLostHandler sets the callback invoked when a lease is lost.
func WithLockLostHandler(fn func(resource, token string)) Option {
	return OptionFunc(func(c *Config) {
		c.OnLockLost = fn
	})
}

// AcquireConfig holds the settings for a single acquisition attempt.
type AcquireConfig struct {
	// TTL is the lease duration for this acquisition.
	TTL time.Duration

	// Wait makes Acquire poll for the lock instead of giving up on the
	// first contended attempt.
	Wait bool

	// WaitTimeout bounds how long a waiting Acquire polls. Zero waits
	// until the context is done.
	WaitTimeout time.Duration
}

// An AcquireOption configures a single Acquire call.
type AcquireOption interface {
	Apply(*AcquireConfig)
}

// AcquireOptionFunc is a function that configures an acquire config.
type AcquireOptionFunc func(*AcquireConfig)

// Apply calls f(config).
func (f AcquireOptionFunc) Apply(config *AcquireConfig) {
	f(config)
}

// WithTTL overrides the lease duration for this acquisition.
func WithTTL(d time.Duration) AcquireOption {
	return AcquireOptionFunc(func(c *AcquireConfig) {
		c.TTL = d
	})
}

// WithWait makes Acquire poll until the lock frees up or timeout
// elapses. A zero timeout polls until the context is done.
func WithWait(timeout time.Duration) AcquireOption {
	return AcquireOptionFunc(func(c *AcquireConfig) {
		c.Wait = true
		c.WaitTimeout = timeout
	})
}
