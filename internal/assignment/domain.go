package assignment

import (
	"time"

	"github.com/google/uuid"
)

// GrantType is the polarity of a user permission override.
type GrantType string

const (
	// GrantAllow adds the key to the user's allowed set.
	GrantAllow GrantType = "ALLOW"
	// GrantDeny removes the key from the allowed set and records an
	// explicit denial that beats any role grant.
	GrantDeny GrantType = "DENY"
)

// Valid reports whether the grant type is one of the two known values.
func (g GrantType) Valid() bool {
	return g == GrantAllow || g == GrantDeny
}

// RoleAssignment links a user to a role. GrantedBy references the acting
// user and may reference the user itself at bootstrap.
type RoleAssignment struct {
	UserID    uuid.UUID
	RoleID    uuid.UUID
	GrantedBy uuid.UUID
	GrantedAt time.Time
}

// Override is a user-specific ALLOW/DENY on a permission key. At most one
// override exists per (user, key); a re-grant replaces it.
type Override struct {
	UserID        uuid.UUID
	PermissionKey string
	GrantType     GrantType
	GrantedBy     uuid.UUID
	GrantedAt     time.Time
	Reason        string
}

// RequestMeta carries caller metadata passed through verbatim into audit
// entries and otherwise unused by the engine.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
