package extension

import (
	"time"

	grain "github.com/xraph/grain"
	"github.com/xraph/grain/plugin"
	"github.com/xraph/grain/store"
)

// Option configures the grain Forge extension.
type Option func(*Extension)

// WithStore sets the store for the runtime.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithRuntimeOption passes a grain.Option through to the underlying runtime.
func WithRuntimeOption(opt grain.Option) Option {
	return func(e *Extension) {
		e.runtimeOpts = append(e.runtimeOpts, opt)
	}
}

// WithPlugin registers a grain plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.runtimeOpts = append(e.runtimeOpts, grain.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithMailboxSize sets the per-entity command queue depth.
func WithMailboxSize(n int) Option {
	return func(e *Extension) { e.config.MailboxSize = n }
}

// WithIdleTimeout sets how long entity workers stay resident without traffic.
func WithIdleTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.IdleTimeout = d }
}

// WithCleanupInterval sets how frequently expired idempotency keys are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.CleanupInterval = d }
}

// WithDefaultKeyTTL sets the default idempotency key lifetime.
func WithDefaultKeyTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.DefaultKeyTTL = d }
}

// WithPublishBuffer sets the per-stream event dispatch queue depth.
func WithPublishBuffer(n int) Option {
	return func(e *Extension) { e.config.PublishBuffer = n }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension will auto-construct the appropriate store backend (postgres/sqlite/mongo)
// based on the grove driver type. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
