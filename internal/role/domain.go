package role

import (
	"time"

	"github.com/google/uuid"
)

// Role groups permission grants. A nil TenantID marks a global role
// visible to users of every tenant; a non-nil TenantID restricts the role
// to users belonging to that tenant.
type Role struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Description string
	TenantID    *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Global reports whether the role is visible to every tenant.
func (r Role) Global() bool {
	return r.TenantID == nil
}

// VisibleTo reports whether the role may contribute grants to a user of
// the given tenant. Roles scoped to a different tenant are silently
// invisible; that boundary must never leak.
func (r Role) VisibleTo(tenantID *uuid.UUID) bool {
	if r.TenantID == nil {
		return true
	}
	return tenantID != nil && *r.TenantID == *tenantID
}
