package pgx

// Config holds the configuration for the pgx lock store.
type Config struct {
	// TableName is the table locks are stored in.
	TableName string
}

// Option configures a KV store instance.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a store config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithTableName returns an option that sets the lock table name.
func WithTableName(value string) Option {
	return OptionFunc(func(c *Config) {
		c.TableName = value
	})
}
