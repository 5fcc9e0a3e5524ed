package users

import (
	"time"

	"github.com/google/uuid"
)

// User is the engine's view of a user account: identity is established
// upstream, the engine only needs existence and tenant residency.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	TenantID  *uuid.UUID
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
