package extension

import "time"

// Config holds the grain extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.grain" or "grain" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// MailboxSize is the per-entity command queue depth (default: 64).
	MailboxSize int `json:"mailbox_size" mapstructure:"mailbox_size" yaml:"mailbox_size"`

	// IdleTimeout is how long an entity worker stays resident without
	// traffic before it tears down (default: 5m).
	IdleTimeout time.Duration `json:"idle_timeout" mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// CleanupInterval is how frequently expired idempotency keys are
	// swept from the store (default: 1h).
	CleanupInterval time.Duration `json:"cleanup_interval" mapstructure:"cleanup_interval" yaml:"cleanup_interval"`

	// DefaultKeyTTL is the idempotency key lifetime applied when callers
	// do not pass one explicitly (default: 24h).
	DefaultKeyTTL time.Duration `json:"default_key_ttl" mapstructure:"default_key_ttl" yaml:"default_key_ttl"`

	// PublishBuffer is the per-stream event dispatch queue depth (default: 256).
	PublishBuffer int `json:"publish_buffer" mapstructure:"publish_buffer" yaml:"publish_buffer"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and auto-constructs
	// the appropriate store based on the driver type (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MailboxSize:     64,
		IdleTimeout:     5 * time.Minute,
		CleanupInterval: time.Hour,
		DefaultKeyTTL:   24 * time.Hour,
		PublishBuffer:   256,
	}
}
