package users

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	ListActiveUserIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// Service handles user lookups for the authorization engine.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ListActiveUserIDs returns recently active user IDs for cache warmup.
func (s *Service) ListActiveUserIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.repo.ListActiveUserIDs(ctx, limit)
}
