package permission

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-authz/aegis/internal/shared"
)

// Repository provides PostgreSQL backed access to the permission catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListPermissions returns the whole catalog ordered by key.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, key, name, description, created_at FROM permissions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// GetByKey fetches one catalog entry by its key.
func (r *Repository) GetByKey(ctx context.Context, key string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`SELECT id, key, name, description, created_at FROM permissions WHERE key = $1`,
		key,
	).Scan(&p.ID, &p.Key, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// EnsurePermission upserts a catalog entry, keeping name and description current.
func (r *Repository) EnsurePermission(ctx context.Context, key, name, description string) (Permission, error) {
	key = strings.TrimSpace(key)
	if !ValidKey(key) {
		return Permission{}, shared.ErrInvalidArgument
	}
	var p Permission
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (id, key, name, description)
		 VALUES (gen_random_uuid(), $1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description
		 RETURNING id, key, name, description, created_at`,
		key, strings.TrimSpace(name), strings.TrimSpace(description),
	).Scan(&p.ID, &p.Key, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}
