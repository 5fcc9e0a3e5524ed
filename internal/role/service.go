package role

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	ListRoles(ctx context.Context, tenantID *uuid.UUID) ([]Role, error)
	ListPermissionKeys(ctx context.Context, roleIDs []uuid.UUID) (map[uuid.UUID][]string, error)
	SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
}

// Service handles role business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns roles visible to the given tenant.
func (s *Service) ListRoles(ctx context.Context, tenantID *uuid.UUID) ([]Role, error) {
	return s.repo.ListRoles(ctx, tenantID)
}

// SetRolePermissions replaces the permission set of a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	return s.repo.SetRolePermissions(ctx, roleID, permissionIDs)
}
