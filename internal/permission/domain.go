package permission

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scope restricts a permission to a subset of resources.
type Scope string

const (
	// ScopeNone marks a key without a scope suffix.
	ScopeNone Scope = ""
	// ScopeOwn restricts the capability to resources the acting user owns.
	ScopeOwn Scope = "own"
	// ScopeAny grants the capability on any resource.
	ScopeAny Scope = "any"
)

// Permission is one entry of the catalog. The catalog is reference data:
// immutable at evaluation time, administered outside the hot path.
type Permission struct {
	ID          uuid.UUID
	Key         string
	Name        string
	Description string
	CreatedAt   time.Time
}

var keyPattern = regexp.MustCompile(`^[a-z0-9_]+:[a-z0-9_]+(:(own|any))?$`)

// ValidKey reports whether key matches the domain:action[:scope] grammar.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// ParseKey splits a permission key into its base key and scope suffix.
// Keys without a recognised suffix return the key unchanged and ScopeNone.
func ParseKey(key string) (base string, scope Scope) {
	switch {
	case strings.HasSuffix(key, ":own"):
		return strings.TrimSuffix(key, ":own"), ScopeOwn
	case strings.HasSuffix(key, ":any"):
		return strings.TrimSuffix(key, ":any"), ScopeAny
	default:
		return key, ScopeNone
	}
}
