package audithook

// Action constants for audit events.
const (
	// Entity actions
	ActionEntityActivated   = "entity.activated"
	ActionEntityDeactivated = "entity.deactivated"
	ActionCommandApplied    = "command.applied"
	ActionCommandRejected   = "command.rejected"
	ActionSnapshotPersisted = "snapshot.persisted"

	// Event stream actions
	ActionEventsPublished = "events.published"

	// Idempotency actions
	ActionKeyAcquired = "key.acquired"
	ActionKeyConflict = "key.conflict"
	ActionKeysPurged  = "keys.purged"

	// Inventory actions
	ActionStockBelowReorder = "stock.below_reorder"
	ActionStockNegative     = "stock.negative"
)

// Resource constants for audit events.
const (
	ResourceEntity         = "entity"
	ResourceStream         = "stream"
	ResourceIdempotencyKey = "idempotency_key"
	ResourceLedger         = "ledger"
)

// Category constants for audit events.
const (
	CategoryRuntime     = "runtime"
	CategoryAudit       = "audit"
	CategoryIdempotency = "idempotency"
	CategoryInventory   = "inventory"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
