// Package routing maps (organization, entity kind, scope) tuples to canonical
// routing keys and back.
//
// A routing key addresses exactly one entity in the runtime. Resolution is
// deterministic and side-effect free, so any caller holding the same tuple
// derives the same key. The textual form is:
//
//	org:{organizationID}:{entityKind}:{scopeSegments...}
//
// Parsing fixes the three leading fields and treats the remainder of the
// string verbatim as the scope, so scope segments may themselves embed the
// delimiter without escaping.
package routing

import (
	"errors"
	"strings"
)

// Delimiter separates the segments of a routing key.
const Delimiter = ":"

// prefix is the literal leading segment of every routing key.
const prefix = "org"

// ErrInvalidKeyFormat is returned when a routing key is malformed: wrong
// leading literal, missing segments, or empty required fields.
var ErrInvalidKeyFormat = errors.New("routing: invalid key format")

// Key is the parsed form of a routing key.
type Key struct {
	OrganizationID string
	EntityKind     string
	// Scope is the remainder of the key after the fixed fields. It is
	// treated as opaque and may contain the delimiter.
	Scope string
}

// Resolve builds the canonical routing key for an entity. Scope segments are
// joined with the delimiter; an entity kind with no scope (a per-tenant
// singleton) omits the trailing segment entirely.
func Resolve(organizationID, entityKind string, scope ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(Delimiter)
	b.WriteString(organizationID)
	b.WriteString(Delimiter)
	b.WriteString(entityKind)
	for _, s := range scope {
		b.WriteString(Delimiter)
		b.WriteString(s)
	}
	return b.String()
}

// String returns the canonical textual form of the key.
func (k Key) String() string {
	if k.Scope == "" {
		return Resolve(k.OrganizationID, k.EntityKind)
	}
	return Resolve(k.OrganizationID, k.EntityKind, k.Scope)
}

// Parse inverts Resolve. The organization and kind segments are fixed; the
// rest of the string, delimiters included, becomes the scope.
func Parse(key string) (Key, error) {
	parts := strings.SplitN(key, Delimiter, 4)
	if len(parts) < 3 {
		return Key{}, ErrInvalidKeyFormat
	}
	if parts[0] != prefix || parts[1] == "" || parts[2] == "" {
		return Key{}, ErrInvalidKeyFormat
	}

	k := Key{
		OrganizationID: parts[1],
		EntityKind:     parts[2],
	}
	if len(parts) == 4 {
		k.Scope = parts[3]
	}
	return k, nil
}

// Well-known entity kinds hosted by the runtime.
const (
	KindInventory      = "inventory"
	KindIdempotencyKey = "idempotency"
)

// ForInventory returns the routing key for a site's inventory ledger of a
// single ingredient or item.
func ForInventory(organizationID, siteID, itemID string) string {
	return Resolve(organizationID, KindInventory, siteID, itemID)
}

// ForIdempotencyKey returns the routing key guarding a single idempotency
// token. Tokens embed underscores, never the delimiter.
func ForIdempotencyKey(organizationID, token string) string {
	return Resolve(organizationID, KindIdempotencyKey, token)
}
