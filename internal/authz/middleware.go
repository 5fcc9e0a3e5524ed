package authz

import (
	"log/slog"
	"net/http"

	"github.com/aegis-authz/aegis/internal/resolver"
	"github.com/aegis-authz/aegis/internal/shared"
)

// IdentityResolver resolves the acting user from a request. Owned by the
// authentication collaborator; the engine only consumes its result.
type IdentityResolver func(r *http.Request) (shared.Identity, bool)

// ResourceExtractor performs a best-effort extraction of the resource
// owner from the request. A nil result on an :own-scoped check resolves
// to deny.
type ResourceExtractor func(r *http.Request) *resolver.Resource

// Middleware gates HTTP handlers on permission keys.
type Middleware struct {
	Resolver *resolver.Service
	Identity IdentityResolver
	Resource ResourceExtractor
	Logger   *slog.Logger
}

func (m Middleware) log() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Require rejects the request with a plain 403 unless the current user
// holds the permission. The response never reveals whether the denial
// came from an explicit DENY or a simple absence of grant.
func (m Middleware) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if perm == "" {
				next.ServeHTTP(w, r)
				return
			}
			if m.Identity == nil || m.Resolver == nil {
				m.log().Error("authorization gate misconfigured, failing closed", slog.String("permission", perm))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			identity, ok := m.Identity(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			var res *resolver.Resource
			if m.Resource != nil {
				res = m.Resource(r)
			}
			if !m.Resolver.HasPermission(r.Context(), identity.UserID, perm, res) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			ctx := shared.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
