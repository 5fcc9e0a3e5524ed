package role

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-authz/aegis/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles and the
// role-permission join table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, slug, description, tenant_id, created_at, updated_at FROM roles WHERE id = $1`,
		id,
	).Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.TenantID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns roles visible to the given tenant: every global role
// plus the roles scoped to that tenant. A nil tenant sees global roles only.
func (r *Repository) ListRoles(ctx context.Context, tenantID *uuid.UUID) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, slug, description, tenant_id, created_at, updated_at
		 FROM roles
		 WHERE tenant_id IS NULL OR tenant_id = $1
		 ORDER BY slug`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.TenantID, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// ListPermissionKeys returns the permission keys granted to each of the
// given roles via the role_permissions join table. The load is explicit
// so the aggregation that consumes it stays auditable in isolation.
func (r *Repository) ListPermissionKeys(ctx context.Context, roleIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	keys := make(map[uuid.UUID][]string, len(roleIDs))
	if len(roleIDs) == 0 {
		return keys, nil
	}
	rows, err := r.pool.Query(ctx,
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

// SetRolePermissions replaces the permission set of a role by diffing the
// join table against the requested IDs.
func (r *Repository) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	rows, err := r.pool.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return err
	}
	existing := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	keep := make(map[uuid.UUID]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if _, err := r.pool.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				roleID, id,
			); err != nil {
				return err
			}
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			if _, err := r.pool.Exec(ctx,
				`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
				roleID, id,
			); err != nil {
				return err
			}
		}
	}
	return nil
}
