package assignment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-authz/aegis/internal/audit"
	"github.com/aegis-authz/aegis/internal/role"
	"github.com/aegis-authz/aegis/internal/shared"
	"github.com/aegis-authz/aegis/internal/users"
)

// Repository defines assignment store data access. Reads run against the
// pool; every mutation goes through WithTx so the service can compose the
// state change and the audit append into one unit of atomicity.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListRoleAssignments(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error)
	ListOverrides(ctx context.Context, userID uuid.UUID) ([]Override, error)
}

// TxRepository defines the operations available inside a transaction.
type TxRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (users.User, error)
	GetRole(ctx context.Context, id uuid.UUID) (role.Role, error)

	GetAssignment(ctx context.Context, userID, roleID uuid.UUID) (RoleAssignment, error)
	InsertAssignment(ctx context.Context, a RoleAssignment) error
	DeleteAssignment(ctx context.Context, userID, roleID uuid.UUID) (bool, error)

	GetOverride(ctx context.Context, userID uuid.UUID, permissionKey string) (Override, error)
	UpsertOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, userID uuid.UUID, permissionKey string) (bool, error)

	RecordAudit(ctx context.Context, entry audit.Entry) error
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool, recorder *audit.Recorder) Repository {
	return &pgRepository{pool: pool, recorder: recorder}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	txRepo := &pgTxRepository{tx: tx, recorder: r.recorder}
	if err := fn(ctx, txRepo); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *pgRepository) ListRoleAssignments(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, role_id, granted_by, granted_at FROM user_role_assignments WHERE user_id = $1 ORDER BY granted_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.GrantedBy, &a.GrantedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *pgRepository) ListOverrides(ctx context.Context, userID uuid.UUID) ([]Override, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, permission_key, grant_type, granted_by, granted_at, COALESCE(reason, '')
		 FROM user_permission_overrides WHERE user_id = $1 ORDER BY granted_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []Override
	for rows.Next() {
		var o Override
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

type pgTxRepository struct {
	tx       pgx.Tx
	recorder *audit.Recorder
}

func (r *pgTxRepository) GetUser(ctx context.Context, id uuid.UUID) (users.User, error) {
	var user users.User
	err := r.tx.QueryRow(ctx,
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

func (r *pgTxRepository) GetRole(ctx context.Context, id uuid.UUID) (role.Role, error) {
	var rl role.Role
	err := r.tx.QueryRow(ctx,
		`SELECT id, name, slug, description, tenant_id, created_at, updated_at FROM roles WHERE id = $1`,
		id,
	).Scan(&rl.ID, &rl.Name, &rl.Slug, &rl.Description, &rl.TenantID, &rl.CreatedAt, &rl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return role.Role{}, shared.ErrNotFound
		}
		return role.Role{}, err
	}
	return rl, nil
}

func (r *pgTxRepository) GetAssignment(ctx context.Context, userID, roleID uuid.UUID) (RoleAssignment, error) {
	var a RoleAssignment
	err := r.tx.QueryRow(ctx,
		`SELECT user_id, role_id, granted_by, granted_at FROM user_role_assignments WHERE user_id = $1 AND role_id = $2`,
		userID, roleID,
	).Scan(&a.UserID, &a.RoleID, &a.GrantedBy, &a.GrantedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleAssignment{}, shared.ErrNotFound
		}
		return RoleAssignment{}, err
	}
	return a, nil
}

func (r *pgTxRepository) InsertAssignment(ctx context.Context, a RoleAssignment) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO user_role_assignments (user_id, role_id, granted_by, granted_at) VALUES ($1, $2, $3, COALESCE(NULLIF($4, '0001-01-01 00:00:00+00'::timestamptz), NOW()))`,
		a.UserID, a.RoleID, a.GrantedBy, a.GrantedAt,
	)
	return shared.TranslateStorageError(err)
}

func (r *pgTxRepository) DeleteAssignment(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`DELETE FROM user_role_assignments WHERE user_id = $1 AND role_id = $2`,
		userID, roleID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgTxRepository) GetOverride(ctx context.Context, userID uuid.UUID, permissionKey string) (Override, error) {
	var o Override
	err := r.tx.QueryRow(ctx,
		`SELECT user_id, permission_key, grant_type, granted_by, granted_at, COALESCE(reason, '')
		 FROM user_permission_overrides WHERE user_id = $1 AND permission_key = $2`,
		userID, permissionKey,
	).Scan(&o.UserID, &o.PermissionKey, &o.GrantType, &o.GrantedBy, &o.GrantedAt, &o.Reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Override{}, shared.ErrNotFound
		}
		return Override{}, err
	}
	return o, nil
}

func (r *pgTxRepository) UpsertOverride(ctx context.Context, o Override) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO user_permission_overrides (user_id, permission_key, grant_type, granted_by, granted_at, reason)
		 VALUES ($1, $2, $3, $4, NOW(), NULLIF($5, ''))
		 ON CONFLICT (user_id, permission_key)
		 DO UPDATE SET grant_type = EXCLUDED.grant_type, granted_by = EXCLUDED.granted_by, granted_at = NOW(), reason = EXCLUDED.reason`,
		o.UserID, o.PermissionKey, o.GrantType, o.GrantedBy, o.Reason,
	)
	return shared.TranslateStorageError(err)
}

func (r *pgTxRepository) DeleteOverride(ctx context.Context, userID uuid.UUID, permissionKey string) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`DELETE FROM user_permission_overrides WHERE user_id = $1 AND permission_key = $2`,
		userID, permissionKey,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgTxRepository) RecordAudit(ctx context.Context, entry audit.Entry) error {
	return r.recorder.Record(ctx, r.tx, entry)
}
