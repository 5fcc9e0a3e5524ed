package authzhttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aegis-authz/aegis/internal/assignment"
	"github.com/aegis-authz/aegis/internal/audit"
	"github.com/aegis-authz/aegis/internal/permission"
	"github.com/aegis-authz/aegis/internal/resolver"
	"github.com/aegis-authz/aegis/internal/role"
	"github.com/aegis-authz/aegis/internal/shared"
)

// AssignmentService is the assignment store contract consumed by the
// admin endpoints.
type AssignmentService interface {
	AssignRole(ctx context.Context, input assignment.AssignRoleInput) error
	RevokeRole(ctx context.Context, input assignment.RevokeRoleInput) error
	GrantPermission(ctx context.Context, input assignment.GrantPermissionInput) error
	RevokePermission(ctx context.Context, input assignment.RevokePermissionInput) error
	ListRoleAssignments(ctx context.Context, userID uuid.UUID) ([]assignment.RoleAssignment, error)
	ListOverrides(ctx context.Context, userID uuid.UUID) ([]assignment.Override, error)
}

// ResolverService renders the permission matrix.
type ResolverService interface {
	EffectivePermissions(ctx context.Context, userID uuid.UUID) (resolver.EffectiveSet, error)
}

// AuditService answers ledger queries.
type AuditService interface {
	Query(ctx context.Context, caller audit.Caller, filters audit.Filters, page shared.PageRequest) (audit.Result, error)
}

// CatalogService reads the permission catalog.
type CatalogService interface {
	ListPermissions(ctx context.Context) ([]permission.Permission, error)
	GetByKey(ctx context.Context, key string) (permission.Permission, error)
}

// RoleService lists roles visible to a tenant.
type RoleService interface {
	ListRoles(ctx context.Context, tenantID *uuid.UUID) ([]role.Role, error)
}

// Handler exposes the engine's JSON surface to administrative and
// reporting collaborators.
type Handler struct {
	logger      *slog.Logger
	assignments AssignmentService
	resolver    ResolverService
	auditSvc    AuditService
	catalog     CatalogService
	roles       RoleService
	validate    *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, assignments AssignmentService, resolverSvc ResolverService, auditSvc AuditService, catalog CatalogService, roles RoleService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("permkey", func(fl validator.FieldLevel) bool {
		return permission.ValidKey(fl.Field().String())
	})
	return &Handler{
		logger:      logger,
		assignments: assignments,
		resolver:    resolverSvc,
		auditSvc:    auditSvc,
		catalog:     catalog,
		roles:       roles,
		validate:    validate,
	}
}

type assignRoleRequest struct {
	RoleID string `json:"role_id" validate:"required,uuid"`
	Reason string `json:"reason"`
}

type grantPermissionRequest struct {
	PermissionKey string `json:"permission_key" validate:"required,permkey"`
	GrantType     string `json:"grant_type" validate:"required,oneof=ALLOW DENY"`
	Reason        string `json:"reason"`
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.catalog.ListPermissions(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	type item struct {
		ID          uuid.UUID `json:"id"`
		Key         string    `json:"key"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
	}
	items := make([]item, 0, len(perms))
	for _, p := range perms {
		items = append(items, item{ID: p.ID, Key: p.Key, Name: p.Name, Description: p.Description})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"permissions": items})
}

func (h *Handler) handleGetPermission(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetByKey(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":          p.ID,
		"key":         p.Key,
		"name":        p.Name,
		"description": p.Description,
	})
}

func (h *Handler) handleListUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	assignments, err := h.assignments.ListRoleAssignments(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	type item struct {
		RoleID    uuid.UUID `json:"role_id"`
		GrantedBy uuid.UUID `json:"granted_by"`
		GrantedAt time.Time `json:"granted_at"`
	}
	items := make([]item, 0, len(assignments))
	for _, a := range assignments {
		items = append(items, item{RoleID: a.RoleID, GrantedBy: a.GrantedBy, GrantedAt: a.GrantedAt})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"assignments": items})
}

func (h *Handler) handleListUserGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	overrides, err := h.assignments.ListOverrides(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	type item struct {
		PermissionKey string    `json:"permission_key"`
		GrantType     string    `json:"grant_type"`
		GrantedBy     uuid.UUID `json:"granted_by"`
		GrantedAt     time.Time `json:"granted_at"`
		Reason        string    `json:"reason,omitempty"`
	}
	items := make([]item, 0, len(overrides))
	for _, o := range overrides {
		items = append(items, item{
			PermissionKey: o.PermissionKey,
			GrantType:     string(o.GrantType),
			GrantedBy:     o.GrantedBy,
			GrantedAt:     o.GrantedAt,
			Reason:        o.Reason,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"overrides": items})
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	var tenantID *uuid.UUID
	if !identity.GlobalAdmin {
		tenantID = identity.TenantID
	} else if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, shared.ErrInvalidArgument)
			return
		}
		tenantID = &id
	}
	roles, err := h.roles.ListRoles(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	type item struct {
		ID          uuid.UUID  `json:"id"`
		Name        string     `json:"name"`
		Slug        string     `json:"slug"`
		Description string     `json:"description"`
		TenantID    *uuid.UUID `json:"tenant_id,omitempty"`
	}
	items := make([]item, 0, len(roles))
	for _, rl := range roles {
		items = append(items, item{ID: rl.ID, Name: rl.Name, Slug: rl.Slug, Description: rl.Description, TenantID: rl.TenantID})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"roles": items})
}

func (h *Handler) handleEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	set, err := h.resolver.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, set)
}

func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	roleID, _ := uuid.Parse(req.RoleID)
	identity, _ := shared.IdentityFromContext(r.Context())
	err := h.assignments.AssignRole(r.Context(), assignment.AssignRoleInput{
		UserID:       userID,
		RoleID:       roleID,
		ActingUserID: identity.UserID,
		Reason:       req.Reason,
		Meta:         requestMeta(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"status": "assigned"})
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.pathUUID(w, r, "roleID")
	if !ok {
		return
	}
	identity, _ := shared.IdentityFromContext(r.Context())
	err := h.assignments.RevokeRole(r.Context(), assignment.RevokeRoleInput{
		UserID:       userID,
		RoleID:       roleID,
		ActingUserID: identity.UserID,
		Meta:         requestMeta(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

func (h *Handler) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	var req grantPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	identity, _ := shared.IdentityFromContext(r.Context())
	err := h.assignments.GrantPermission(r.Context(), assignment.GrantPermissionInput{
		UserID:        userID,
		PermissionKey: req.PermissionKey,
		GrantType:     assignment.GrantType(req.GrantType),
		ActingUserID:  identity.UserID,
		Reason:        req.Reason,
		Meta:          requestMeta(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"status": "granted"})
}

func (h *Handler) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUUID(w, r, "userID")
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	identity, _ := shared.IdentityFromContext(r.Context())
	err := h.assignments.RevokePermission(r.Context(), assignment.RevokePermissionInput{
		UserID:        userID,
		PermissionKey: key,
		ActingUserID:  identity.UserID,
		Meta:          requestMeta(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

func (h *Handler) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	caller := audit.Caller{
		UserID:      identity.UserID,
		TenantID:    identity.TenantID,
		GlobalAdmin: identity.GlobalAdmin,
	}
	filters, page, err := parseAuditQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.auditSvc.Query(r.Context(), caller, filters, page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	type entry struct {
		ID         uuid.UUID      `json:"id"`
		UserID     *uuid.UUID     `json:"user_id,omitempty"`
		Action     string         `json:"action"`
		Entity     string         `json:"entity"`
		EntityID   string         `json:"entity_id"`
		Changes    map[string]any `json:"changes,omitempty"`
		TenantID   *uuid.UUID     `json:"tenant_id,omitempty"`
		Reason     string         `json:"reason,omitempty"`
		RecordedAt time.Time      `json:"recorded_at"`
	}
	entries := make([]entry, 0, len(result.Entries))
	for _, e := range result.Entries {
		entries = append(entries, entry{
			ID: e.ID, UserID: e.UserID, Action: e.Action, Entity: e.Entity,
			EntityID: e.EntityID, Changes: e.Changes, TenantID: e.TenantID,
			Reason: e.Reason, RecordedAt: e.RecordedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"paging": map[string]any{
			"page":      result.Paging.Page,
			"page_size": result.Paging.PageSize,
			"has_next":  result.Paging.HasNext,
		},
	})
}

func parseAuditQuery(r *http.Request) (audit.Filters, shared.PageRequest, error) {
	q := r.URL.Query()
	var filters audit.Filters
	if raw := q.Get("actor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return audit.Filters{}, shared.PageRequest{}, shared.ErrInvalidArgument
		}
		filters.ActorID = &id
	}
	filters.Action = q.Get("action")
	filters.Entity = q.Get("entity")
	filters.EntityID = q.Get("entity_id")
	if raw := q.Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filters{}, shared.PageRequest{}, shared.ErrInvalidArgument
		}
		filters.From = ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filters{}, shared.PageRequest{}, shared.ErrInvalidArgument
		}
		filters.To = ts
	}
	var page shared.PageRequest
	if raw := q.Get("page"); raw != "" {
		page.Page, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("page_size"); raw != "" {
		page.PageSize, _ = strconv.Atoi(raw)
	}
	return filters, page, nil
}

func requestMeta(r *http.Request) assignment.RequestMeta {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return assignment.RequestMeta{IPAddress: host, UserAgent: r.UserAgent()}
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.writeError(w, shared.ErrInvalidArgument)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		h.writeError(w, shared.ErrInvalidArgument)
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		h.writeError(w, shared.ErrInvalidArgument)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, shared.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrTransient):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("authz handler", slog.Any("error", err))
	}
	h.writeJSON(w, status, map[string]any{"error": http.StatusText(status)})
}
