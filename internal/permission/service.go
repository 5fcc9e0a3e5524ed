package permission

import (
	"context"
)

// RepositoryPort defines catalog data access.
type RepositoryPort interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetByKey(ctx context.Context, key string) (Permission, error)
	EnsurePermission(ctx context.Context, key, name, description string) (Permission, error)
}

// Service exposes the permission catalog.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListPermissions returns the catalog ordered by key.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetByKey fetches one catalog entry.
func (s *Service) GetByKey(ctx context.Context, key string) (Permission, error) {
	return s.repo.GetByKey(ctx, key)
}

// EnsurePermission upserts a catalog entry. Used by seeding and
// administrative tooling, never by the evaluation path.
func (s *Service) EnsurePermission(ctx context.Context, key, name, description string) (Permission, error) {
	return s.repo.EnsurePermission(ctx, key, name, description)
}
