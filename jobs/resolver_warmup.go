package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/aegis-authz/aegis/internal/resolver"
)

const defaultWarmupUserLimit = 200

// WarmupResolver is the slice of the resolver the warmup job needs.
type WarmupResolver interface {
	EffectivePermissions(ctx context.Context, userID uuid.UUID) (resolver.EffectiveSet, error)
}

// UserDirectory lists the users worth priming.
type UserDirectory interface {
	ListActiveUserIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// ResolverWarmupJob re-primes the decision cache for recently active
// users after a cache-version bump. Auxiliary only: the evaluation path
// never depends on it.
type ResolverWarmupJob struct {
	Resolver WarmupResolver
	Users    UserDirectory
	Logger   *slog.Logger
}

// NewResolverWarmupJob wires dependencies for the warmup handler.
func NewResolverWarmupJob(resolver WarmupResolver, users UserDirectory, logger *slog.Logger) *ResolverWarmupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolverWarmupJob{Resolver: resolver, Users: users, Logger: logger}
}

// Handle processes resolver warmup tasks.
func (j *ResolverWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Resolver == nil || j.Users == nil {
		return errors.New("resolver warmup: handler not configured")
	}
	var payload ResolverWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.UserLimit <= 0 {
		payload.UserLimit = defaultWarmupUserLimit
	}

	ids, err := j.Users.ListActiveUserIDs(ctx, payload.UserLimit)
	if err != nil {
		j.Logger.Error("list warmup users", slog.Any("error", err))
		return err
	}
	warmed := 0
	for _, id := range ids {
		if _, err := j.Resolver.EffectivePermissions(ctx, id); err != nil {
			j.Logger.Warn("warm user", slog.String("user_id", id.String()), slog.Any("error", err))
			continue
		}
		warmed++
	}
	j.Logger.Info("resolver warmup complete", slog.Int("warmed", warmed), slog.Int("candidates", len(ids)))
	return nil
}
