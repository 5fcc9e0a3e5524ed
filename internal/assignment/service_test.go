package assignment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/aegis-authz/aegis/internal/audit"
	"github.com/aegis-authz/aegis/internal/role"
	"github.com/aegis-authz/aegis/internal/shared"
	"github.com/aegis-authz/aegis/internal/users"
)

type assignmentKey struct {
	userID uuid.UUID
	roleID uuid.UUID
}

type overrideKey struct {
	userID uuid.UUID
	key    string
}

// memoryRepo implements Repository with copy-on-write transactions so a
// failed callback leaves the visible state untouched, mirroring database
// rollback semantics.
type memoryRepo struct {
	users       map[uuid.UUID]users.User
	roles       map[uuid.UUID]role.Role
	assignments map[assignmentKey]RoleAssignment
	overrides   map[overrideKey]Override
	auditLog    []audit.Entry
	failAudit   error
	failInsert  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:       make(map[uuid.UUID]users.User),
		roles:       make(map[uuid.UUID]role.Role),
		assignments: make(map[assignmentKey]RoleAssignment),
		overrides:   make(map[overrideKey]Override),
	}
}

type memoryTx struct {
	repo        *memoryRepo
	assignments map[assignmentKey]RoleAssignment
	overrides   map[overrideKey]Override
	auditLog    []audit.Entry
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{
		repo:        r,
		assignments: make(map[assignmentKey]RoleAssignment, len(r.assignments)),
		overrides:   make(map[overrideKey]Override, len(r.overrides)),
		auditLog:    append([]audit.Entry(nil), r.auditLog...),
	}
	for k, v := range r.assignments {
		tx.assignments[k] = v
	}
	for k, v := range r.overrides {
		tx.overrides[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.assignments = tx.assignments
	r.overrides = tx.overrides
	r.auditLog = tx.auditLog
	return nil
}

func (r *memoryRepo) ListRoleAssignments(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error) {
	var out []RoleAssignment
	for _, a := range r.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListOverrides(ctx context.Context, userID uuid.UUID) ([]Override, error) {
	var out []Override
	for _, o := range r.overrides {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (t *memoryTx) GetUser(ctx context.Context, id uuid.UUID) (users.User, error) {
	u, ok := t.repo.users[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (t *memoryTx) GetRole(ctx context.Context, id uuid.UUID) (role.Role, error) {
	rl, ok := t.repo.roles[id]
	if !ok {
		return role.Role{}, shared.ErrNotFound
	}
	return rl, nil
}

func (t *memoryTx) GetAssignment(ctx context.Context, userID, roleID uuid.UUID) (RoleAssignment, error) {
	a, ok := t.assignments[assignmentKey{userID, roleID}]
	if !ok {
		return RoleAssignment{}, shared.ErrNotFound
	}
	return a, nil
}

func (t *memoryTx) InsertAssignment(ctx context.Context, a RoleAssignment) error {
	if t.repo.failInsert != nil {
		return t.repo.failInsert
	}
	key := assignmentKey{a.UserID, a.RoleID}
	if _, exists := t.assignments[key]; exists {
		return shared.ErrConflict
	}
	t.assignments[key] = a
	return nil
}

func (t *memoryTx) DeleteAssignment(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	key := assignmentKey{userID, roleID}
	if _, exists := t.assignments[key]; !exists {
		return false, nil
	}
	delete(t.assignments, key)
	return true, nil
}

func (t *memoryTx) GetOverride(ctx context.Context, userID uuid.UUID, permissionKey string) (Override, error) {
	o, ok := t.overrides[overrideKey{userID, permissionKey}]
	if !ok {
		return Override{}, shared.ErrNotFound
	}
	return o, nil
}

func (t *memoryTx) UpsertOverride(ctx context.Context, o Override) error {
	t.overrides[overrideKey{o.UserID, o.PermissionKey}] = o
	return nil
}

func (t *memoryTx) DeleteOverride(ctx context.Context, userID uuid.UUID, permissionKey string) (bool, error) {
	key := overrideKey{userID, permissionKey}
	if _, exists := t.overrides[key]; !exists {
		return false, nil
	}
	delete(t.overrides, key)
	return true, nil
}

func (t *memoryTx) RecordAudit(ctx context.Context, entry audit.Entry) error {
	if t.repo.failAudit != nil {
		return t.repo.failAudit
	}
	t.auditLog = append(t.auditLog, entry)
	return nil
}

type countingCache struct {
	bumps int
}

func (c *countingCache) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func seedUserAndRole(repo *memoryRepo) (uuid.UUID, uuid.UUID) {
	tenant := uuid.New()
	userID := uuid.New()
	roleID := uuid.New()
	repo.users[userID] = users.User{ID: userID, Email: "u@example.com", TenantID: &tenant, IsActive: true}
	repo.roles[roleID] = role.Role{ID: roleID, Name: "Chamber Admin", Slug: "admin-chamber"}
	return userID, roleID
}

func TestAssignRoleWritesAssignmentAndAudit(t *testing.T) {
	repo := newMemoryRepo()
	cache := &countingCache{}
	userID, roleID := seedUserAndRole(repo)
	actor := uuid.New()
	svc := NewService(repo, cache, nil, 0)

	err := svc.AssignRole(context.Background(), AssignRoleInput{
		UserID:       userID,
		RoleID:       roleID,
		ActingUserID: actor,
		Meta:         RequestMeta{IPAddress: "10.0.0.9", UserAgent: "cli/1.0"},
	})
	require.NoError(t, err)

	require.Len(t, repo.assignments, 1)
	got := repo.assignments[assignmentKey{userID, roleID}]
	require.Equal(t, actor, got.GrantedBy)

	require.Len(t, repo.auditLog, 1)
	entry := repo.auditLog[0]
	require.Equal(t, audit.ActionAssignRole, entry.Action)
	require.Equal(t, audit.EntityUserRole, entry.Entity)
	require.Equal(t, userID.String(), entry.EntityID)
	require.Equal(t, actor, *entry.UserID)
	require.Equal(t, *repo.users[userID].TenantID, *entry.TenantID)
	require.Equal(t, "Chamber Admin", entry.Changes["role_name"])
	require.Equal(t, "10.0.0.9", entry.IPAddress)
	require.Equal(t, `Role "Chamber Admin" assigned to user`, entry.Reason)
	require.Equal(t, 1, cache.bumps)
}

func TestAssignRoleUnknownUserOrRole(t *testing.T) {
	repo := newMemoryRepo()
	userID, roleID := seedUserAndRole(repo)
	svc := NewService(repo, nil, nil, 0)

	err := svc.AssignRole(context.Background(), AssignRoleInput{UserID: uuid.New(), RoleID: roleID, ActingUserID: userID})
	require.ErrorIs(t, err, shared.ErrNotFound)

	err = svc.AssignRole(context.Background(), AssignRoleInput{UserID: userID, RoleID: uuid.New(), ActingUserID: userID})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.auditLog)
}

func TestAssignRoleDuplicateConflicts(t *testing.T) {
	repo := newMemoryRepo()
	userID, roleID := seedUserAndRole(repo)
	svc := NewService(repo, nil, nil, 0)

	input := AssignRoleInput{UserID: userID, RoleID: roleID, ActingUserID: uuid.New()}
	require.NoError(t, svc.AssignRole(context.Background(), input))
	require.ErrorIs(t, svc.AssignRole(context.Background(), input), shared.ErrConflict)
	require.Len(t, repo.auditLog, 1)
}

func TestAssignRoleTranslatesUniqueViolation(t *testing.T) {
	// Two concurrent assigns can both pass the existence pre-check; the
	// loser's insert hits the unique constraint and must surface as a
	// conflict, not a raw driver error.
	repo := newMemoryRepo()
	userID, roleID := seedUserAndRole(repo)
	repo.failInsert = &pgconn.PgError{Code: "23505", ConstraintName: "user_role_assignments_pkey"}
	svc := NewService(repo, nil, nil, 0)

	err := svc.AssignRole(context.Background(), AssignRoleInput{UserID: userID, RoleID: roleID, ActingUserID: uuid.New()})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Empty(t, repo.assignments)
	require.Empty(t, repo.auditLog)
}

func TestAssignRoleDeadlineSurfacesAsTransient(t *testing.T) {
	repo := newMemoryRepo()
	userID, roleID := seedUserAndRole(repo)
	repo.failInsert = fmt.Errorf("exec: %w", context.DeadlineExceeded)
	svc := NewService(repo, nil, nil, 0)

	err := svc.AssignRole(context.Background(), AssignRoleInput{UserID: userID, RoleID: roleID, ActingUserID: uuid.New()})
	require.ErrorIs(t, err, shared.ErrTransient)
	require.Empty(t, repo.assignments)
}

func TestAssignRoleAuditFailureRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	userID, roleID := seedUserAndRole(repo)
	repo.failAudit = errors.New("ledger unavailable")
	cache := &countingCache{}
	svc := NewService(repo, cache, nil, 0)

	err := svc.AssignRole(context.Background(), AssignRoleInput{UserID: userID, RoleID: roleID, ActingUserID: uuid.New()})
	require.Error(t, err)

	// The assignment must not persist when the paired audit write failed.
	assignments, listErr := repo.ListRoleAssignments(context.Background(), userID)
	require.NoError(t, listErr)
	require.Empty(t, assignments)
	require.Empty(t, repo.auditLog)
	require.Zero(t, cache.bumps)
}

func TestRevokeRole(t *testing.T) {
	repo := newMemoryRepo()
	userID, roleID := seedUserAndRole(repo)
	svc := NewService(repo, nil, nil, 0)
	actor := uuid.New()

	require.ErrorIs(t, svc.RevokeRole(context.Background(), RevokeRoleInput{UserID: userID, RoleID: roleID, ActingUserID: actor}), shared.ErrNotFound)

	require.NoError(t, svc.AssignRole(context.Background(), AssignRoleInput{UserID: userID, RoleID: roleID, ActingUserID: actor}))
	require.NoError(t, svc.RevokeRole(context.Background(), RevokeRoleInput{UserID: userID, RoleID: roleID, ActingUserID: actor}))

	require.Empty(t, repo.assignments)
	require.Len(t, repo.auditLog, 2)
	require.Equal(t, audit.ActionRevokeRole, repo.auditLog[1].Action)
}

func TestGrantPermissionValidatesKey(t *testing.T) {
	repo := newMemoryRepo()
	userID, _ := seedUserAndRole(repo)
	svc := NewService(repo, nil, nil, 0)

	for _, key := range []string{"", "   ", "not a key", "agenda:edit:everything"} {
		err := svc.GrantPermission(context.Background(), GrantPermissionInput{
			UserID:        userID,
			PermissionKey: key,
			GrantType:     GrantAllow,
			ActingUserID:  uuid.New(),
		})
		require.ErrorIs(t, err, shared.ErrInvalidArgument, "key %q", key)
	}

	err := svc.GrantPermission(context.Background(), GrantPermissionInput{
		UserID:        userID,
		PermissionKey: "agenda:edit",
		GrantType:     GrantType("MAYBE"),
		ActingUserID:  uuid.New(),
	})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
	require.Empty(t, repo.overrides)
}

func TestGrantPermissionUpserts(t *testing.T) {
	repo := newMemoryRepo()
	userID, _ := seedUserAndRole(repo)
	svc := NewService(repo, nil, nil, 0)
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, svc.GrantPermission(context.Background(), GrantPermissionInput{
		UserID:        userID,
		PermissionKey: "agenda:edit",
		GrantType:     GrantAllow,
		ActingUserID:  first,
	}))
	require.NoError(t, svc.GrantPermission(context.Background(), GrantPermissionInput{
		UserID:        userID,
		PermissionKey: "agenda:edit",
		GrantType:     GrantDeny,
		ActingUserID:  second,
		Reason:        "incident 4711",
	}))

	require.Len(t, repo.overrides, 1)
	o := repo.overrides[overrideKey{userID, "agenda:edit"}]
	require.Equal(t, GrantDeny, o.GrantType)
	require.Equal(t, second, o.GrantedBy)
	require.Equal(t, "incident 4711", o.Reason)

	require.Len(t, repo.auditLog, 2)
	require.Equal(t, audit.ActionGrantUserPermission, repo.auditLog[1].Action)
	require.Equal(t, "incident 4711", repo.auditLog[1].Reason)
}

func TestListReadsReflectCommittedState(t *testing.T) {
	repo := newMemoryRepo()
	userID, roleID := seedUserAndRole(repo)
	svc := NewService(repo, nil, nil, 0)
	actor := uuid.New()

	require.NoError(t, svc.AssignRole(context.Background(), AssignRoleInput{UserID: userID, RoleID: roleID, ActingUserID: actor}))
	require.NoError(t, svc.GrantPermission(context.Background(), GrantPermissionInput{
		UserID:        userID,
		PermissionKey: "agenda:edit",
		GrantType:     GrantDeny,
		ActingUserID:  actor,
	}))

	assignments, err := svc.ListRoleAssignments(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, roleID, assignments[0].RoleID)

	overrides, err := svc.ListOverrides(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	require.Equal(t, GrantDeny, overrides[0].GrantType)
}

func TestRevokePermission(t *testing.T) {
	repo := newMemoryRepo()
	userID, _ := seedUserAndRole(repo)
	svc := NewService(repo, nil, nil, 0)
	actor := uuid.New()

	require.ErrorIs(t, svc.RevokePermission(context.Background(), RevokePermissionInput{
		UserID:        userID,
		PermissionKey: "agenda:edit",
		ActingUserID:  actor,
	}), shared.ErrNotFound)

	require.NoError(t, svc.GrantPermission(context.Background(), GrantPermissionInput{
		UserID:        userID,
		PermissionKey: "agenda:edit",
		GrantType:     GrantDeny,
		ActingUserID:  actor,
	}))
	require.NoError(t, svc.RevokePermission(context.Background(), RevokePermissionInput{
		UserID:        userID,
		PermissionKey: "agenda:edit",
		ActingUserID:  actor,
	}))

	require.Empty(t, repo.overrides)
	last := repo.auditLog[len(repo.auditLog)-1]
	require.Equal(t, audit.ActionRevokeUserPermission, last.Action)
	require.Equal(t, string(GrantDeny), last.Changes["grant_type"])
}
