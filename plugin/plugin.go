// Package plugin provides an extensible plugin system for grain.
// Plugins can hook into runtime, gateway, and ledger lifecycle events to
// extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, runtime interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Entity worker hooks
// ──────────────────────────────────────────────────

// OnEntityActivated is called when an idle entity is loaded from its last
// snapshot and its worker spins up.
type OnEntityActivated interface {
	Plugin
	OnEntityActivated(ctx context.Context, key string, version int64) error
}

// OnEntityDeactivated is called when an idle worker tears down.
type OnEntityDeactivated interface {
	Plugin
	OnEntityDeactivated(ctx context.Context, key string) error
}

// OnCommandApplied is called after a command commits against an entity.
type OnCommandApplied interface {
	Plugin
	OnCommandApplied(ctx context.Context, key string, version int64, elapsed time.Duration) error
}

// OnCommandRejected is called when a command fails validation or business
// rules and leaves the entity unchanged.
type OnCommandRejected interface {
	Plugin
	OnCommandRejected(ctx context.Context, key string, cmdErr error) error
}

// OnSnapshotPersisted is called once a new snapshot version is durable.
type OnSnapshotPersisted interface {
	Plugin
	OnSnapshotPersisted(ctx context.Context, key string, version int64) error
}

// ──────────────────────────────────────────────────
// Event stream hooks
// ──────────────────────────────────────────────────

// OnEventsPublished is called when committed events are appended to a stream.
type OnEventsPublished interface {
	Plugin
	OnEventsPublished(ctx context.Context, stream string, count int) error
}

// OnEventsDelivered is called after a stream's dispatcher hands a batch to
// its subscribers.
type OnEventsDelivered interface {
	Plugin
	OnEventsDelivered(ctx context.Context, stream string, count int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Idempotency gateway hooks
// ──────────────────────────────────────────────────

// OnKeyAcquired is called when a retry token is acquired for execution.
type OnKeyAcquired interface {
	Plugin
	OnKeyAcquired(ctx context.Context, organizationID, key, operation string) error
}

// OnKeyConflict is called when acquisition is refused because the key was
// already used successfully.
type OnKeyConflict interface {
	Plugin
	OnKeyConflict(ctx context.Context, organizationID, key, operation string) error
}

// OnKeysPurged is called when expired keys are removed by cleanup.
type OnKeysPurged interface {
	Plugin
	OnKeysPurged(ctx context.Context, removed int64) error
}

// ──────────────────────────────────────────────────
// Inventory hooks
// ──────────────────────────────────────────────────

// OnStockBelowReorder is called after a commit leaves a ledger under its
// reorder point. Quantities are decimal values passed opaquely.
type OnStockBelowReorder interface {
	Plugin
	OnStockBelowReorder(ctx context.Context, key string, quantityOnHand, reorderPoint interface{}) error
}

// OnStockNegative is called after a commit drives a ledger negative.
type OnStockNegative interface {
	Plugin
	OnStockNegative(ctx context.Context, key string, quantityOnHand interface{}) error
}
