package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the assignment service. The ledger vocabulary is
// closed: external reporting consumes these strings verbatim.
const (
	ActionAssignRole           = "ASSIGN_ROLE"
	ActionRevokeRole           = "REVOKE_ROLE"
	ActionGrantUserPermission  = "GRANT_USER_PERMISSION"
	ActionRevokeUserPermission = "REVOKE_USER_PERMISSION"
)

// Entities referenced by ledger entries.
const (
	EntityUserRole       = "UserRole"
	EntityUserPermission = "UserPermission"
)

// Entry is one append-only ledger record. Entries are written once inside
// the mutating transaction and never updated or deleted by the engine.
type Entry struct {
	ID         uuid.UUID
	UserID     *uuid.UUID
	Action     string
	Entity     string
	EntityID   string
	Changes    map[string]any
	IPAddress  string
	UserAgent  string
	TenantID   *uuid.UUID
	Reason     string
	RecordedAt time.Time
}

// Caller identifies who is querying the ledger. Non-global callers are
// forcibly scoped to their own tenant.
type Caller struct {
	UserID      uuid.UUID
	TenantID    *uuid.UUID
	GlobalAdmin bool
}

// Filters narrows a ledger query. Zero values mean "no restriction".
type Filters struct {
	ActorID  *uuid.UUID
	Action   string
	Entity   string
	EntityID string
	TenantID *uuid.UUID
	From     time.Time
	To       time.Time
}
