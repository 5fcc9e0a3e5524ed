package authzhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/aegis-authz/aegis/internal/authz"
	"github.com/aegis-authz/aegis/internal/shared"
)

// Permission keys gating the engine's own surface.
const (
	PermAuthzView   = "authz:view"
	PermAuthzManage = "authz:manage"
	PermAuditView   = "audit:view"
)

const (
	auditRateLimit  = 10
	auditRateWindow = time.Minute
)

// MountRoutes registers the engine's JSON endpoints under the given
// router, gated by the authorization middleware.
func (h *Handler) MountRoutes(r chi.Router, gate authz.Middleware) {
	if h == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		gr.Use(gate.Require(PermAuthzView))
		gr.Get("/permissions", h.handleListPermissions)
		gr.Get("/permissions/{key}", h.handleGetPermission)
		gr.Get("/roles", h.handleListRoles)
		gr.Get("/users/{userID}/permissions", h.handleEffectivePermissions)
		gr.Get("/users/{userID}/roles", h.handleListUserRoles)
		gr.Get("/users/{userID}/grants", h.handleListUserGrants)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(gate.Require(PermAuthzManage))
		gr.Post("/users/{userID}/roles", h.handleAssignRole)
		gr.Delete("/users/{userID}/roles/{roleID}", h.handleRevokeRole)
		gr.Post("/users/{userID}/grants", h.handleGrantPermission)
		gr.Delete("/users/{userID}/grants/{key}", h.handleRevokePermission)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(gate.Require(PermAuditView))
		gr.Use(httprate.Limit(auditRateLimit, auditRateWindow,
			httprate.WithKeyFuncs(rateLimitKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			}),
		))
		gr.Get("/audit", h.handleAuditQuery)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if identity, ok := shared.IdentityFromContext(r.Context()); ok {
		return "user:" + identity.UserID.String(), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
