package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onEntityActivated   []OnEntityActivated
	onEntityDeactivated []OnEntityDeactivated
	onCommandApplied    []OnCommandApplied
	onCommandRejected   []OnCommandRejected
	onSnapshotPersisted []OnSnapshotPersisted
	onEventsPublished   []OnEventsPublished
	onEventsDelivered   []OnEventsDelivered
	onKeyAcquired       []OnKeyAcquired
	onKeyConflict       []OnKeyConflict
	onKeysPurged        []OnKeysPurged
	onStockBelowReorder []OnStockBelowReorder
	onStockNegative     []OnStockNegative
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnEntityActivated); ok {
		r.onEntityActivated = append(r.onEntityActivated, v)
	}
	if v, ok := p.(OnEntityDeactivated); ok {
		r.onEntityDeactivated = append(r.onEntityDeactivated, v)
	}
	if v, ok := p.(OnCommandApplied); ok {
		r.onCommandApplied = append(r.onCommandApplied, v)
	}
	if v, ok := p.(OnCommandRejected); ok {
		r.onCommandRejected = append(r.onCommandRejected, v)
	}
	if v, ok := p.(OnSnapshotPersisted); ok {
		r.onSnapshotPersisted = append(r.onSnapshotPersisted, v)
	}
	if v, ok := p.(OnEventsPublished); ok {
		r.onEventsPublished = append(r.onEventsPublished, v)
	}
	if v, ok := p.(OnEventsDelivered); ok {
		r.onEventsDelivered = append(r.onEventsDelivered, v)
	}
	if v, ok := p.(OnKeyAcquired); ok {
		r.onKeyAcquired = append(r.onKeyAcquired, v)
	}
	if v, ok := p.(OnKeyConflict); ok {
		r.onKeyConflict = append(r.onKeyConflict, v)
	}
	if v, ok := p.(OnKeysPurged); ok {
		r.onKeysPurged = append(r.onKeysPurged, v)
	}
	if v, ok := p.(OnStockBelowReorder); ok {
		r.onStockBelowReorder = append(r.onStockBelowReorder, v)
	}
	if v, ok := p.(OnStockNegative); ok {
		r.onStockNegative = append(r.onStockNegative, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnEntityActivated)(nil)).Elem(), "OnEntityActivated")
	checkInterface(reflect.TypeOf((*OnCommandApplied)(nil)).Elem(), "OnCommandApplied")
	checkInterface(reflect.TypeOf((*OnEventsPublished)(nil)).Elem(), "OnEventsPublished")
	checkInterface(reflect.TypeOf((*OnKeyAcquired)(nil)).Elem(), "OnKeyAcquired")
	checkInterface(reflect.TypeOf((*OnStockBelowReorder)(nil)).Elem(), "OnStockBelowReorder")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, runtime interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, runtime)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntityActivated emits an entity activated event.
func (r *Registry) EmitEntityActivated(ctx context.Context, key string, version int64) {
	r.mu.RLock()
	plugins := r.onEntityActivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntityActivated(ctx, key, version)
		}); err != nil {
			r.logger.Warn("plugin OnEntityActivated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEntityDeactivated emits an entity deactivated event.
func (r *Registry) EmitEntityDeactivated(ctx context.Context, key string) {
	r.mu.RLock()
	plugins := r.onEntityDeactivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntityDeactivated(ctx, key)
		}); err != nil {
			r.logger.Warn("plugin OnEntityDeactivated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCommandApplied emits a command applied event.
func (r *Registry) EmitCommandApplied(ctx context.Context, key string, version int64, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onCommandApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCommandApplied(ctx, key, version, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnCommandApplied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCommandRejected emits a command rejected event.
func (r *Registry) EmitCommandRejected(ctx context.Context, key string, cmdErr error) {
	r.mu.RLock()
	plugins := r.onCommandRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCommandRejected(ctx, key, cmdErr)
		}); err != nil {
			r.logger.Warn("plugin OnCommandRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSnapshotPersisted emits a snapshot persisted event.
func (r *Registry) EmitSnapshotPersisted(ctx context.Context, key string, version int64) {
	r.mu.RLock()
	plugins := r.onSnapshotPersisted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSnapshotPersisted(ctx, key, version)
		}); err != nil {
			r.logger.Warn("plugin OnSnapshotPersisted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEventsPublished emits an events published event.
func (r *Registry) EmitEventsPublished(ctx context.Context, stream string, count int) {
	r.mu.RLock()
	plugins := r.onEventsPublished
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEventsPublished(ctx, stream, count)
		}); err != nil {
			r.logger.Warn("plugin OnEventsPublished failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEventsDelivered emits an events delivered event.
func (r *Registry) EmitEventsDelivered(ctx context.Context, stream string, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onEventsDelivered
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEventsDelivered(ctx, stream, count, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnEventsDelivered failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitKeyAcquired emits a key acquired event.
func (r *Registry) EmitKeyAcquired(ctx context.Context, organizationID, key, operation string) {
	r.mu.RLock()
	plugins := r.onKeyAcquired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnKeyAcquired(ctx, organizationID, key, operation)
		}); err != nil {
			r.logger.Warn("plugin OnKeyAcquired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitKeyConflict emits a key conflict event.
func (r *Registry) EmitKeyConflict(ctx context.Context, organizationID, key, operation string) {
	r.mu.RLock()
	plugins := r.onKeyConflict
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnKeyConflict(ctx, organizationID, key, operation)
		}); err != nil {
			r.logger.Warn("plugin OnKeyConflict failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitKeysPurged emits a keys purged event.
func (r *Registry) EmitKeysPurged(ctx context.Context, removed int64) {
	r.mu.RLock()
	plugins := r.onKeysPurged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnKeysPurged(ctx, removed)
		}); err != nil {
			r.logger.Warn("plugin OnKeysPurged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitStockBelowReorder emits a stock below reorder event.
func (r *Registry) EmitStockBelowReorder(ctx context.Context, key string, quantityOnHand, reorderPoint interface{}) {
	r.mu.RLock()
	plugins := r.onStockBelowReorder
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnStockBelowReorder(ctx, key, quantityOnHand, reorderPoint)
		}); err != nil {
			r.logger.Warn("plugin OnStockBelowReorder failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitStockNegative emits a stock negative event.
func (r *Registry) EmitStockNegative(ctx context.Context, key string, quantityOnHand interface{}) {
	r.mu.RLock()
	plugins := r.onStockNegative
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnStockNegative(ctx, key, quantityOnHand)
		}); err != nil {
			r.logger.Warn("plugin OnStockNegative failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the command pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
