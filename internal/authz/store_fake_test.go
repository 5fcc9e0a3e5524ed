package authz

import (
	"context"

	"github.com/google/uuid"

	"github.com/aegis-authz/aegis/internal/assignment"
	"github.com/aegis-authz/aegis/internal/role"
	"github.com/aegis-authz/aegis/internal/shared"
	"github.com/aegis-authz/aegis/internal/users"
)

// fakeStore backs a resolver with a single user holding one global role.
type fakeStore struct {
	userID uuid.UUID
	roleID uuid.UUID
	keys   []string
}

func newFakeStore(userID uuid.UUID, keys ...string) *fakeStore {
	return &fakeStore{userID: userID, roleID: uuid.New(), keys: keys}
}

func (s *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (users.User, error) {
	if id != s.userID {
		return users.User{}, shared.ErrNotFound
	}
	return users.User{ID: id, IsActive: true}, nil
}

func (s *fakeStore) ListAssignedRoles(ctx context.Context, userID uuid.UUID) ([]role.Role, error) {
	if userID != s.userID || len(s.keys) == 0 {
		return nil, nil
	}
	return []role.Role{{ID: s.roleID, Name: "fake", Slug: "fake"}}, nil
}

func (s *fakeStore) ListRolePermissionKeys(ctx context.Context, roleIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	keys := make(map[uuid.UUID][]string)
	for _, id := range roleIDs {
		if id == s.roleID {
			keys[id] = s.keys
		}
	}
	return keys, nil
}

func (s *fakeStore) ListOverrides(ctx context.Context, userID uuid.UUID) ([]assignment.Override, error) {
	return nil, nil
}
