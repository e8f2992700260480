package grain

import (
	"errors"
	"fmt"

	"github.com/xraph/grain/inventory"
	"github.com/xraph/grain/routing"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound       = errors.New("grain: not found")
	ErrAlreadyExists  = errors.New("grain: already exists")
	ErrInvalidInput   = errors.New("grain: invalid input")
	ErrNotInitialized = errors.New("grain: entity not initialized")
	ErrInvalidState   = errors.New("grain: invalid entity state")

	// Runtime errors
	ErrMailboxFull   = errors.New("grain: entity mailbox full")
	ErrRuntimeClosed = errors.New("grain: runtime is closed")

	// Idempotency errors
	ErrKeyConflict = errors.New("grain: idempotency key already used")
	ErrKeyExpired  = errors.New("grain: idempotency key expired")

	// Store errors
	ErrStoreNotReady   = errors.New("grain: store not ready")
	ErrStoreClosed     = errors.New("grain: store is closed")
	ErrMigrationFailed = errors.New("grain: migration failed")
)

// Re-exported sentinels owned by model packages, so callers can match every
// failure through this package.
var (
	ErrInvalidKeyFormat  = routing.ErrInvalidKeyFormat
	ErrInsufficientStock = inventory.ErrInsufficientStock
	ErrInvalidQuantity   = inventory.ErrInvalidQuantity
	ErrInvalidUnitCost   = inventory.ErrInvalidUnitCost
	ErrMovementNotFound  = inventory.ErrMovementNotFound
	ErrNotReversible     = inventory.ErrNotReversible
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("grain: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrMovementNotFound)
}

// IsConflict returns true if the error indicates the operation collided with
// prior state and must not be blindly retried.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrKeyConflict)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrMailboxFull) ||
		errors.Is(err, ErrStoreNotReady)
}
