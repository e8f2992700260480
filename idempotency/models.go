// Package idempotency defines the retry-token model used by the gateway.
//
// A key is a single-use-or-retry-eligible token preventing duplicate
// execution of a side-effecting command. Payment-style operations
// (authorize/capture/refund/void) must tolerate resend after a timeout: the
// gateway gives exactly-once execution of the side effect while still
// permitting retry of genuinely failed attempts.
package idempotency

import (
	"strings"
	"time"

	"github.com/xraph/grain/id"
)

// DefaultTTL is the lifetime of a key when the caller does not specify one.
const DefaultTTL = 24 * time.Hour

// tokenPrefix is the literal leading segment of every idempotency token.
const tokenPrefix = "idem"

// KeyRecord is the persisted state of one idempotency key. Keys are unique
// per organization.
type KeyRecord struct {
	Key             string     `json:"key"`
	OrganizationID  string     `json:"organization_id"`
	Operation       string     `json:"operation"`
	RelatedEntityID string     `json:"related_entity_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	Used            bool       `json:"used"`
	UsedAt          *time.Time `json:"used_at,omitempty"`
	Successful      bool       `json:"successful"`
	// ResultHash is an opaque fingerprint of the operation's result, letting
	// a retried caller recognize and reuse a prior result instead of
	// recomputing it.
	ResultHash string `json:"result_hash,omitempty"`
}

// Expired reports whether the record is past its expiry at the given time.
// An expired record behaves as if it never existed; cleanup merely reclaims
// the storage.
func (r *KeyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Acquirable reports whether the key may be (re-)acquired: unseen keys and
// used-but-failed keys may; used-and-successful keys may not.
func (r *KeyRecord) Acquirable() bool {
	return !r.Used || !r.Successful
}

// NewToken builds a fresh token for the named operation in the form
// "idem_{operation}_{opaque-unique-suffix}". Repeated calls with identical
// arguments yield different tokens. Callers treat the whole string as opaque.
func NewToken(operation string) string {
	return tokenPrefix + "_" + operation + "_" + id.NewUniqueSuffix()
}

// TokenOperation extracts the operation name a token was generated for.
// It returns false for strings not produced by NewToken.
func TokenOperation(token string) (string, bool) {
	rest, ok := strings.CutPrefix(token, tokenPrefix+"_")
	if !ok {
		return "", false
	}
	i := strings.LastIndex(rest, "_")
	if i <= 0 {
		return "", false
	}
	return rest[:i], true
}

// CheckResult is the non-mutating view of a key's prior use.
type CheckResult struct {
	Exists             bool   `json:"exists"`
	AlreadyUsed        bool   `json:"already_used"`
	PreviousSuccess    bool   `json:"previous_success"`
	PreviousResultHash string `json:"previous_result_hash,omitempty"`
}
