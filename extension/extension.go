// Package extension provides the Forge extension adapter for grain.
//
// It implements the forge.Extension interface to integrate grain
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.grain" or "grain" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	grain "github.com/xraph/grain"
	"github.com/xraph/grain/store"
	"github.com/xraph/grain/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "grain"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Multi-tenant transactional entity runtime"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts grain as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	runtime     *grain.Runtime
	store       store.Store
	runtimeOpts []grain.Option
	useGrove    bool
}

// New creates a new grain Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Runtime returns the underlying grain runtime.
// This is nil until Register is called.
func (e *Extension) Runtime() *grain.Runtime { return e.runtime }

// Register implements [forge.Extension]. It loads configuration,
// initializes the runtime, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		if e.useGrove {
			e.Logger().Warn("grain: grove database requested but no store wired; falling back to memory",
				forge.F("grove_database", e.config.GroveDatabase),
			)
		}
		e.store = memory.New()
	}

	// Build runtime options from resolved config.
	opts := e.buildRuntimeOpts()

	rt := grain.New(e.store, opts...)
	e.runtime = rt

	return vessel.Provide(fapp.Container(), func() (*grain.Runtime, error) {
		return e.runtime, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.runtime == nil {
		return errors.New("grain: extension not initialized")
	}

	if err := e.runtime.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.runtime != nil {
		if err := e.runtime.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("grain: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildRuntimeOpts constructs grain.Option values from the resolved config.
func (e *Extension) buildRuntimeOpts() []grain.Option {
	opts := make([]grain.Option, 0, len(e.runtimeOpts)+5)

	if e.config.MailboxSize > 0 {
		opts = append(opts, grain.WithMailboxSize(e.config.MailboxSize))
	}
	if e.config.IdleTimeout > 0 {
		opts = append(opts, grain.WithIdleTimeout(e.config.IdleTimeout))
	}
	if e.config.PublishBuffer > 0 {
		opts = append(opts, grain.WithPublishBuffer(e.config.PublishBuffer))
	}
	if e.config.CleanupInterval > 0 || e.config.DefaultKeyTTL > 0 {
		opts = append(opts, grain.WithCleanupConfig(e.config.CleanupInterval, e.config.DefaultKeyTTL))
	}
	if e.config.DisableMigrate {
		opts = append(opts, grain.WithDisableMigrate())
	}

	// Append any pass-through runtime options.
	opts = append(opts, e.runtimeOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("grain: configuration is required but not found in config files; " +
				"ensure 'extensions.grain' or 'grain' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("grain: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("mailbox_size", e.config.MailboxSize),
		forge.F("idle_timeout", e.config.IdleTimeout),
		forge.F("cleanup_interval", e.config.CleanupInterval),
		forge.F("default_key_ttl", e.config.DefaultKeyTTL),
		forge.F("publish_buffer", e.config.PublishBuffer),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.grain" first (namespaced pattern).
	if cm.IsSet("extensions.grain") {
		if err := cm.Bind("extensions.grain", &cfg); err == nil {
			e.Logger().Debug("grain: loaded config from file",
				forge.F("key", "extensions.grain"),
			)
			return cfg, true
		}
		e.Logger().Warn("grain: failed to bind extensions.grain config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "grain" key.
	if cm.IsSet("grain") {
		if err := cm.Bind("grain", &cfg); err == nil {
			e.Logger().Debug("grain: loaded config from file",
				forge.F("key", "grain"),
			)
			return cfg, true
		}
		e.Logger().Warn("grain: failed to bind grain config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MailboxSize == 0 {
		cfg.MailboxSize = defaults.MailboxSize
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	if cfg.DefaultKeyTTL == 0 {
		cfg.DefaultKeyTTL = defaults.DefaultKeyTTL
	}
	if cfg.PublishBuffer == 0 {
		cfg.PublishBuffer = defaults.PublishBuffer
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.GroveDatabase == "" && programmaticConfig.GroveDatabase != "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.MailboxSize == 0 && programmaticConfig.MailboxSize != 0 {
		yamlConfig.MailboxSize = programmaticConfig.MailboxSize
	}
	if yamlConfig.IdleTimeout == 0 && programmaticConfig.IdleTimeout != 0 {
		yamlConfig.IdleTimeout = programmaticConfig.IdleTimeout
	}
	if yamlConfig.CleanupInterval == 0 && programmaticConfig.CleanupInterval != 0 {
		yamlConfig.CleanupInterval = programmaticConfig.CleanupInterval
	}
	if yamlConfig.DefaultKeyTTL == 0 && programmaticConfig.DefaultKeyTTL != 0 {
		yamlConfig.DefaultKeyTTL = programmaticConfig.DefaultKeyTTL
	}
	if yamlConfig.PublishBuffer == 0 && programmaticConfig.PublishBuffer != 0 {
		yamlConfig.PublishBuffer = programmaticConfig.PublishBuffer
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
