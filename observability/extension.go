// Package observability provides a metrics extension for grain that records
// lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/grain/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnEntityActivated   = (*MetricsExtension)(nil)
	_ plugin.OnEntityDeactivated = (*MetricsExtension)(nil)
	_ plugin.OnCommandApplied    = (*MetricsExtension)(nil)
	_ plugin.OnCommandRejected   = (*MetricsExtension)(nil)
	_ plugin.OnSnapshotPersisted = (*MetricsExtension)(nil)
	_ plugin.OnEventsPublished   = (*MetricsExtension)(nil)
	_ plugin.OnEventsDelivered   = (*MetricsExtension)(nil)
	_ plugin.OnKeyAcquired       = (*MetricsExtension)(nil)
	_ plugin.OnKeyConflict       = (*MetricsExtension)(nil)
	_ plugin.OnKeysPurged        = (*MetricsExtension)(nil)
	_ plugin.OnStockBelowReorder = (*MetricsExtension)(nil)
	_ plugin.OnStockNegative     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a grain plugin to automatically track runtime metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Entity metrics
	EntityActivations   Counter
	EntityDeactivations Counter
	CommandsApplied     Counter
	CommandsRejected    Counter
	SnapshotsPersisted  Counter
	CommandLatency      Histogram

	// Event stream metrics
	EventsPublished Counter
	EventsDelivered Counter
	DeliveryLatency Histogram
	EventBatchSize  Histogram

	// Idempotency metrics
	KeysAcquired Counter
	KeyConflicts Counter
	KeysPurged   Counter

	// Inventory metrics
	StockBelowReorder Counter
	StockNegative     Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Entity metrics
		EntityActivations:   factory.Counter("grain.entity.activations"),
		EntityDeactivations: factory.Counter("grain.entity.deactivations"),
		CommandsApplied:     factory.Counter("grain.command.applied"),
		CommandsRejected:    factory.Counter("grain.command.rejected"),
		SnapshotsPersisted:  factory.Counter("grain.snapshot.persisted"),
		CommandLatency:      factory.Histogram("grain.command.latency_ms"),

		// Event stream metrics
		EventsPublished: factory.Counter("grain.events.published"),
		EventsDelivered: factory.Counter("grain.events.delivered"),
		DeliveryLatency: factory.Histogram("grain.events.delivery.latency_ms"),
		EventBatchSize:  factory.Histogram("grain.events.batch.size"),

		// Idempotency metrics
		KeysAcquired: factory.Counter("grain.keys.acquired"),
		KeyConflicts: factory.Counter("grain.keys.conflicts"),
		KeysPurged:   factory.Counter("grain.keys.purged"),

		// Inventory metrics
		StockBelowReorder: factory.Counter("grain.stock.below_reorder"),
		StockNegative:     factory.Counter("grain.stock.negative"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Entity worker hooks
// ──────────────────────────────────────────────────

// OnEntityActivated implements plugin.OnEntityActivated.
func (m *MetricsExtension) OnEntityActivated(_ context.Context, _ string, _ int64) error {
	m.EntityActivations.Inc()
	return nil
}

// OnEntityDeactivated implements plugin.OnEntityDeactivated.
func (m *MetricsExtension) OnEntityDeactivated(_ context.Context, _ string) error {
	m.EntityDeactivations.Inc()
	return nil
}

// OnCommandApplied implements plugin.OnCommandApplied.
func (m *MetricsExtension) OnCommandApplied(_ context.Context, _ string, _ int64, elapsed time.Duration) error {
	m.CommandsApplied.Inc()
	m.CommandLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnCommandRejected implements plugin.OnCommandRejected.
func (m *MetricsExtension) OnCommandRejected(_ context.Context, _ string, _ error) error {
	m.CommandsRejected.Inc()
	return nil
}

// OnSnapshotPersisted implements plugin.OnSnapshotPersisted.
func (m *MetricsExtension) OnSnapshotPersisted(_ context.Context, _ string, _ int64) error {
	m.SnapshotsPersisted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Event stream hooks
// ──────────────────────────────────────────────────

// OnEventsPublished implements plugin.OnEventsPublished.
func (m *MetricsExtension) OnEventsPublished(_ context.Context, _ string, count int) error {
	m.EventsPublished.Add(float64(count))
	m.EventBatchSize.Observe(float64(count))
	return nil
}

// OnEventsDelivered implements plugin.OnEventsDelivered.
func (m *MetricsExtension) OnEventsDelivered(_ context.Context, _ string, count int, elapsed time.Duration) error {
	m.EventsDelivered.Add(float64(count))
	m.DeliveryLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Idempotency gateway hooks
// ──────────────────────────────────────────────────

// OnKeyAcquired implements plugin.OnKeyAcquired.
func (m *MetricsExtension) OnKeyAcquired(_ context.Context, _, _, _ string) error {
	m.KeysAcquired.Inc()
	return nil
}

// OnKeyConflict implements plugin.OnKeyConflict.
func (m *MetricsExtension) OnKeyConflict(_ context.Context, _, _, _ string) error {
	m.KeyConflicts.Inc()
	return nil
}

// OnKeysPurged implements plugin.OnKeysPurged.
func (m *MetricsExtension) OnKeysPurged(_ context.Context, removed int64) error {
	m.KeysPurged.Add(float64(removed))
	return nil
}

// ──────────────────────────────────────────────────
// Inventory hooks
// ──────────────────────────────────────────────────

// OnStockBelowReorder implements plugin.OnStockBelowReorder.
func (m *MetricsExtension) OnStockBelowReorder(_ context.Context, _ string, _, _ interface{}) error {
	m.StockBelowReorder.Inc()
	return nil
}

// OnStockNegative implements plugin.OnStockNegative.
func (m *MetricsExtension) OnStockNegative(_ context.Context, _ string, _ interface{}) error {
	m.StockNegative.Inc()
	return nil
}
