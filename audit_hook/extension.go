// Package audithook bridges grain lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/grain/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnEntityActivated   = (*Extension)(nil)
	_ plugin.OnEntityDeactivated = (*Extension)(nil)
	_ plugin.OnCommandApplied    = (*Extension)(nil)
	_ plugin.OnCommandRejected   = (*Extension)(nil)
	_ plugin.OnSnapshotPersisted = (*Extension)(nil)
	_ plugin.OnEventsPublished   = (*Extension)(nil)
	_ plugin.OnKeyAcquired       = (*Extension)(nil)
	_ plugin.OnKeyConflict       = (*Extension)(nil)
	_ plugin.OnKeysPurged        = (*Extension)(nil)
	_ plugin.OnStockBelowReorder = (*Extension)(nil)
	_ plugin.OnStockNegative     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges grain lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Entity worker hooks
// ──────────────────────────────────────────────────

// OnEntityActivated implements plugin.OnEntityActivated.
func (e *Extension) OnEntityActivated(ctx context.Context, key string, version int64) error {
	return e.record(ctx, ActionEntityActivated, SeverityInfo, OutcomeSuccess,
		ResourceEntity, key, CategoryRuntime, nil,
		"version", version,
	)
}

// OnEntityDeactivated implements plugin.OnEntityDeactivated.
func (e *Extension) OnEntityDeactivated(ctx context.Context, key string) error {
	return e.record(ctx, ActionEntityDeactivated, SeverityInfo, OutcomeSuccess,
		ResourceEntity, key, CategoryRuntime, nil,
	)
}

// OnCommandApplied implements plugin.OnCommandApplied.
func (e *Extension) OnCommandApplied(ctx context.Context, key string, version int64, elapsed time.Duration) error {
	return e.record(ctx, ActionCommandApplied, SeverityInfo, OutcomeSuccess,
		ResourceEntity, key, CategoryRuntime, nil,
		"version", version,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnCommandRejected implements plugin.OnCommandRejected.
func (e *Extension) OnCommandRejected(ctx context.Context, key string, cmdErr error) error {
	return e.record(ctx, ActionCommandRejected, SeverityWarning, OutcomeFailure,
		ResourceEntity, key, CategoryRuntime, cmdErr,
	)
}

// OnSnapshotPersisted implements plugin.OnSnapshotPersisted.
func (e *Extension) OnSnapshotPersisted(ctx context.Context, key string, version int64) error {
	return e.record(ctx, ActionSnapshotPersisted, SeverityInfo, OutcomeSuccess,
		ResourceEntity, key, CategoryRuntime, nil,
		"version", version,
	)
}

// ──────────────────────────────────────────────────
// Event stream hooks
// ──────────────────────────────────────────────────

// OnEventsPublished implements plugin.OnEventsPublished.
func (e *Extension) OnEventsPublished(ctx context.Context, stream string, count int) error {
	return e.record(ctx, ActionEventsPublished, SeverityInfo, OutcomeSuccess,
		ResourceStream, stream, CategoryAudit, nil,
		"count", count,
	)
}

// ──────────────────────────────────────────────────
// Idempotency gateway hooks
// ──────────────────────────────────────────────────

// OnKeyAcquired implements plugin.OnKeyAcquired.
func (e *Extension) OnKeyAcquired(ctx context.Context, organizationID, key, operation string) error {
	return e.record(ctx, ActionKeyAcquired, SeverityInfo, OutcomeSuccess,
		ResourceIdempotencyKey, key, CategoryIdempotency, nil,
		"organization_id", organizationID,
		"operation", operation,
	)
}

// OnKeyConflict implements plugin.OnKeyConflict.
func (e *Extension) OnKeyConflict(ctx context.Context, organizationID, key, operation string) error {
	return e.record(ctx, ActionKeyConflict, SeverityWarning, OutcomeFailure,
		ResourceIdempotencyKey, key, CategoryIdempotency, nil,
		"organization_id", organizationID,
		"operation", operation,
	)
}

// OnKeysPurged implements plugin.OnKeysPurged.
func (e *Extension) OnKeysPurged(ctx context.Context, removed int64) error {
	return e.record(ctx, ActionKeysPurged, SeverityInfo, OutcomeSuccess,
		ResourceIdempotencyKey, "", CategoryIdempotency, nil,
		"removed", removed,
	)
}

// ──────────────────────────────────────────────────
// Inventory hooks
// ──────────────────────────────────────────────────

// OnStockBelowReorder implements plugin.OnStockBelowReorder.
func (e *Extension) OnStockBelowReorder(ctx context.Context, key string, quantityOnHand, reorderPoint interface{}) error {
	return e.record(ctx, ActionStockBelowReorder, SeverityWarning, OutcomeSuccess,
		ResourceLedger, key, CategoryInventory, nil,
		"quantity_on_hand", fmt.Sprintf("%v", quantityOnHand),
		"reorder_point", fmt.Sprintf("%v", reorderPoint),
	)
}

// OnStockNegative implements plugin.OnStockNegative.
func (e *Extension) OnStockNegative(ctx context.Context, key string, quantityOnHand interface{}) error {
	return e.record(ctx, ActionStockNegative, SeverityCritical, OutcomeSuccess,
		ResourceLedger, key, CategoryInventory, nil,
		"quantity_on_hand", fmt.Sprintf("%v", quantityOnHand),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
