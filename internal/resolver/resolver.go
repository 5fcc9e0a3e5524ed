package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/aegis-authz/aegis/internal/assignment"
	"github.com/aegis-authz/aegis/internal/permission"
	"github.com/aegis-authz/aegis/internal/shared"
)

// Service answers authorization queries. The query path fails closed:
// unknown users and ambiguous data resolve to the most restrictive
// outcome, never an error surfaced to the gated request.
type Service struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a resolver. cache may be nil, in which case every
// call computes directly from the store.
func NewService(store Store, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// EffectivePermissions computes the merged allowed/denied sets for a
// user. An unknown user yields empty sets and no error. Concurrent calls
// for the same user share one computation.
func (s *Service) EffectivePermissions(ctx context.Context, userID uuid.UUID) (EffectiveSet, error) {
	v, err, _ := s.group.Do(userID.String(), func() (any, error) {
		if s.cache == nil {
			return s.aggregate(ctx, userID)
		}
		return s.cache.FetchSet(ctx, userID, func(ctx context.Context) (EffectiveSet, error) {
			return s.aggregate(ctx, userID)
		})
	})
	if err != nil {
		return EffectiveSet{}, err
	}
	return v.(EffectiveSet), nil
}

// HasPermission reports whether the user may exercise the permission key
// against the optional resource. DENY takes precedence over ALLOW
// unconditionally; absence of a grant denies; an :own-scoped allow
// additionally requires the resource to be owned by the user.
func (s *Service) HasPermission(ctx context.Context, userID uuid.UUID, key string, res *Resource) bool {
	set, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		s.logger.Error("resolve permissions", slog.String("user_id", userID.String()), slog.Any("error", err))
		return false
	}
	base, scope := permission.ParseKey(key)
	if set.Denied[key] || set.Denied[base] {
		return false
	}
	if !set.Allowed[key] && !set.Allowed[base] {
		return false
	}
	if scope == permission.ScopeOwn {
		return res != nil && res.OwnerID != nil && *res.OwnerID == userID
	}
	return true
}

// aggregate is the single source of truth for merging role grants and
// overrides; both the effective-permission and point-query paths consume
// its result.
func (s *Service) aggregate(ctx context.Context, userID uuid.UUID) (EffectiveSet, error) {
	set := newEffectiveSet()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return set, nil
		}
		return EffectiveSet{}, err
	}

	roles, err := s.store.ListAssignedRoles(ctx, userID)
	if err != nil {
		return EffectiveSet{}, err
	}
	var visibleIDs []uuid.UUID
	visible := roles[:0]
	for _, rl := range roles {
		if rl.VisibleTo(user.TenantID) {
			visible = append(visible, rl)
			visibleIDs = append(visibleIDs, rl.ID)
		}
	}

	keysByRole, err := s.store.ListRolePermissionKeys(ctx, visibleIDs)
	if err != nil {
		return EffectiveSet{}, err
	}
	for _, rl := range visible {
		rl := rl
		for _, key := range keysByRole[rl.ID] {
			set.Allowed[key] = true
			if _, seen := set.Sources[key]; !seen {
				set.Sources[key] = Source{Origin: SourceRole, RoleID: &rl.ID, RoleName: rl.Name}
			}
		}
	}

	overrides, err := s.store.ListOverrides(ctx, userID)
	if err != nil {
		return EffectiveSet{}, err
	}
	// Overrides come back in granted_at order; the uniqueness constraint
	// allows at most one per key, but if that invariant is ever violated
	// the last one applied wins.
	for _, o := range overrides {
		o := o
		switch o.GrantType {
		case assignment.GrantAllow:
			set.Allowed[o.PermissionKey] = true
			delete(set.Denied, o.PermissionKey)
		case assignment.GrantDeny:
			set.Denied[o.PermissionKey] = true
			delete(set.Allowed, o.PermissionKey)
		default:
			continue
		}
		set.Sources[o.PermissionKey] = Source{
			Origin:    SourceOverride,
			GrantedBy: &o.GrantedBy,
			GrantType: string(o.GrantType),
		}
	}

	return set, nil
}
