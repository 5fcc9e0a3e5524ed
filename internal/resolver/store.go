package resolver

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-authz/aegis/internal/assignment"
	"github.com/aegis-authz/aegis/internal/role"
	"github.com/aegis-authz/aegis/internal/shared"
	"github.com/aegis-authz/aegis/internal/users"
)

// Store defines the reads the resolver performs. Each evaluation is a
// self-contained snapshot read; no locking is required against concurrent
// assignment writes.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (users.User, error)
	ListAssignedRoles(ctx context.Context, userID uuid.UUID) ([]role.Role, error)
	ListRolePermissionKeys(ctx context.Context, roleIDs []uuid.UUID) (map[uuid.UUID][]string, error)
	ListOverrides(ctx context.Context, userID uuid.UUID) ([]assignment.Override, error)
}

var _ Store = (*pgStore)(nil)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL backed store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) GetUser(ctx context.Context, id uuid.UUID) (users.User, error) {
	var user users.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, tenant_id, is_active, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.TenantID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return users.User{}, shared.ErrNotFound
		}
		return users.User{}, err
	}
	return user, nil
}

func (s *pgStore) ListAssignedRoles(ctx context.Context, userID uuid.UUID) ([]role.Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.name, r.slug, r.description, r.tenant_id, r.created_at, r.updated_at
		 FROM user_role_assignments ura
		 JOIN roles r ON r.id = ura.role_id
		 WHERE ura.user_id = $1
		 ORDER BY ura.granted_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []role.Role
	for rows.Next() {
		var rl role.Role
		if err := rows.Scan(&rl.ID, &rl.Name, &rl.Slug, &rl.Description, &rl.TenantID, &rl.CreatedAt, &rl.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, rl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *pgStore) ListRolePermissionKeys(ctx context.Context, roleIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	keys := make(map[uuid.UUID][]string, len(roleIDs))
	if len(roleIDs) == 0 {
		return keys, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT rp.role_id, p.key
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = ANY($1)
		 ORDER BY rp.role_id, p.key`,
		roleIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var roleID uuid.UUID
		var key string
		if err := rows.Scan(&roleID, &key); err != nil {
			return nil, err
		}
		keys[roleID] = append(keys[roleID], key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *pgStore) ListOverrides(ctx context.Context, userID uuid.UUID) ([]assignment.Override, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, permission_key, grant_type, granted_by, granted_at, COALESCE(reason, '')
		 FROM user_permission_overrides WHERE user_id = $1 ORDER BY granted_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []assignment.Override
	for rows.Next() {
		var o assignment.Override
		if err := rows.Scan(&o.UserID, &o.PermissionKey, &o.GrantType, &o.GrantedBy, &o.GrantedAt, &o.Reason); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overrides, nil
}
