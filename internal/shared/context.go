package shared

import (
	"context"

	"github.com/google/uuid"
)

// Identity describes the authenticated actor as resolved by the upstream
// authentication collaborator. A nil TenantID means the actor does not
// belong to any tenant.
type Identity struct {
	UserID      uuid.UUID
	TenantID    *uuid.UUID
	GlobalAdmin bool
}

type identityContextKey struct{}

// ContextWithIdentity stores the request identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the request identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
