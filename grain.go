package grain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/grain/idempotency"
	"github.com/xraph/grain/plugin"
	"github.com/xraph/grain/store"
)

// Runtime is the main entity runtime. It hosts single-writer workers keyed
// by routing key, the idempotency gateway, and the per-tenant event
// publisher on top of a single Store.
type Runtime struct {
	store     store.Store
	plugins   *plugin.Registry
	logger    *slog.Logger
	publisher *Publisher

	// Worker directory
	workersMu sync.Mutex
	workers   map[string]*worker

	// Idempotency gateway lock stripes
	keyLocks [keyLockStripes]sync.Mutex

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup
	closed   bool
	closeMu  sync.RWMutex

	// Configuration
	mailboxSize     int
	idleTimeout     time.Duration
	cleanupInterval time.Duration
	defaultKeyTTL   time.Duration
	publishBuffer   int
	disableMigrate  bool
}

// New creates a new Runtime instance.
func New(s store.Store, opts ...Option) *Runtime {
	r := &Runtime{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		workers:         make(map[string]*worker),
		stopChan:        make(chan struct{}),
		mailboxSize:     64,
		idleTimeout:     5 * time.Minute,
		cleanupInterval: time.Hour,
		defaultKeyTTL:   idempotency.DefaultTTL,
		publishBuffer:   defaultPublishBuffer,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.publisher = newPublisher(r, r.publishBuffer)

	return r
}

// Option configures a Runtime instance.
type Option func(*Runtime)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
		r.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(r *Runtime) {
		_ = r.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithMailboxSize sets the per-entity mailbox capacity.
func WithMailboxSize(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.mailboxSize = n
		}
	}
}

// WithIdleTimeout sets how long a worker may sit idle before teardown.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// WithPublishBuffer sets the per-stream event dispatch queue depth.
func WithPublishBuffer(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.publishBuffer = n
		}
	}
}

// WithCleanupConfig configures the expired-key sweeper and the default
// idempotency key TTL.
func WithCleanupConfig(interval, keyTTL time.Duration) Option {
	return func(r *Runtime) {
		if interval > 0 {
			r.cleanupInterval = interval
		}
		if keyTTL > 0 {
			r.defaultKeyTTL = keyTTL
		}
	}
}

// WithDisableMigrate skips store migration on Start. Use when migrations
// are managed out of band.
func WithDisableMigrate() Option {
	return func(r *Runtime) {
		r.disableMigrate = true
	}
}

// Plugins returns the plugin registry.
func (r *Runtime) Plugins() *plugin.Registry {
	return r.plugins
}

// Store returns the underlying store.
func (r *Runtime) Store() store.Store {
	return r.store
}

// Start begins background workers.
func (r *Runtime) Start(ctx context.Context) error {
	// Migrate database
	if !r.disableMigrate {
		if err := r.store.Migrate(ctx); err != nil {
			return err
		}
	}

	// Initialize plugins
	r.plugins.EmitInit(ctx, r)

	// Start expired-key sweeper
	r.wg.Add(1)
	go r.cleanupWorker(ctx)

	r.logger.Info("runtime started",
		"mailbox_size", r.mailboxSize,
		"idle_timeout", r.idleTimeout,
		"cleanup_interval", r.cleanupInterval,
	)

	return nil
}

// Stop shuts down the Runtime. In-flight commands run to completion; new
// submissions fail with ErrRuntimeClosed.
func (r *Runtime) Stop() error {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return ErrRuntimeClosed
	}
	r.closed = true
	r.closeMu.Unlock()

	close(r.stopChan)

	// Drain entity workers
	r.workersMu.Lock()
	workers := make([]*worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.workers = make(map[string]*worker)
	r.workersMu.Unlock()

	for _, w := range workers {
		w.drain()
	}

	r.wg.Wait()
	r.publisher.close()

	ctx := context.Background()
	r.plugins.EmitShutdown(ctx)

	return r.store.Close()
}

func (r *Runtime) isClosed() bool {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	return r.closed
}

// cleanupWorker purges expired idempotency keys on a fixed interval.
func (r *Runtime) cleanupWorker(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return

		case <-ticker.C:
			removed, err := r.store.PurgeIdempotencyKeys(ctx, time.Now())
			if err != nil {
				r.logger.Error("failed to purge expired idempotency keys",
					"error", err,
				)
				continue
			}
			if removed > 0 {
				r.plugins.EmitKeysPurged(ctx, removed)
				r.logger.Debug("purged expired idempotency keys",
					"removed", removed,
				)
			}
		}
	}
}
