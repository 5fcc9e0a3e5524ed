package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aegis-authz/aegis/internal/audit"
	"github.com/aegis-authz/aegis/internal/permission"
	"github.com/aegis-authz/aegis/internal/shared"
)

const defaultTxTimeout = 5 * time.Second

// CacheInvalidator discards cached authorization decisions after a
// successful mutation. Invalidation is best effort: evaluation tolerates
// a slightly stale snapshot.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service is the sole writer of assignment store state. Every mutation
// runs inside one transaction together with its audit append; partial
// application is a correctness violation.
type Service struct {
	repo      Repository
	cache     CacheInvalidator
	logger    *slog.Logger
	txTimeout time.Duration
	now       func() time.Time
}

// NewService constructs the assignment service. cache may be nil.
func NewService(repo Repository, cache CacheInvalidator, logger *slog.Logger, txTimeout time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		logger:    logger,
		txTimeout: txTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AssignRoleInput carries the parameters of a role assignment.
type AssignRoleInput struct {
	UserID       uuid.UUID
	RoleID       uuid.UUID
	ActingUserID uuid.UUID
	Reason       string
	Meta         RequestMeta
}

// RevokeRoleInput carries the parameters of a role revocation.
type RevokeRoleInput struct {
	UserID       uuid.UUID
	RoleID       uuid.UUID
	ActingUserID uuid.UUID
	Reason       string
	Meta         RequestMeta
}

// GrantPermissionInput carries the parameters of an override grant.
type GrantPermissionInput struct {
	UserID        uuid.UUID
	PermissionKey string
	GrantType     GrantType
	ActingUserID  uuid.UUID
	Reason        string
	Meta          RequestMeta
}

// RevokePermissionInput carries the parameters of an override revocation.
type RevokePermissionInput struct {
	UserID        uuid.UUID
	PermissionKey string
	ActingUserID  uuid.UUID
	Reason        string
	Meta          RequestMeta
}

// AssignRole inserts a user-role assignment and its audit record.
// Fails ErrNotFound when the user or role does not exist, ErrConflict
// when the assignment already exists.
func (s *Service) AssignRole(ctx context.Context, input AssignRoleInput) error {
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		user, err := tx.GetUser(ctx, input.UserID)
		if err != nil {
			return err
		}
		rl, err := tx.GetRole(ctx, input.RoleID)
		if err != nil {
			return err
		}
		if _, err := tx.GetAssignment(ctx, input.UserID, input.RoleID); err == nil {
			return shared.ErrConflict
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if err := tx.InsertAssignment(ctx, RoleAssignment{
			UserID:    input.UserID,
			RoleID:    input.RoleID,
			GrantedBy: input.ActingUserID,
			GrantedAt: s.now(),
		}); err != nil {
			return err
		}
		reason := input.Reason
		if reason == "" {
			reason = fmt.Sprintf("Role %q assigned to user", rl.Name)
		}
		return tx.RecordAudit(ctx, audit.Entry{
			UserID:   &input.ActingUserID,
			Action:   audit.ActionAssignRole,
			Entity:   audit.EntityUserRole,
			EntityID: input.UserID.String(),
			Changes: map[string]any{
				"role_id":   input.RoleID.String(),
				"role_name": rl.Name,
			},
			IPAddress:  input.Meta.IPAddress,
			UserAgent:  input.Meta.UserAgent,
			TenantID:   user.TenantID,
			Reason:     reason,
			RecordedAt: s.now(),
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RevokeRole deletes a user-role assignment and writes its audit record.
// Fails ErrNotFound when the user, role, or assignment does not exist.
func (s *Service) RevokeRole(ctx context.Context, input RevokeRoleInput) error {
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		user, err := tx.GetUser(ctx, input.UserID)
		if err != nil {
			return err
		}
		rl, err := tx.GetRole(ctx, input.RoleID)
		if err != nil {
			return err
		}
		deleted, err := tx.DeleteAssignment(ctx, input.UserID, input.RoleID)
		if err != nil {
			return err
		}
		if !deleted {
			return shared.ErrNotFound
		}
		reason := input.Reason
		if reason == "" {
			reason = fmt.Sprintf("Role %q revoked from user", rl.Name)
		}
		return tx.RecordAudit(ctx, audit.Entry{
			UserID:   &input.ActingUserID,
			Action:   audit.ActionRevokeRole,
			Entity:   audit.EntityUserRole,
			EntityID: input.UserID.String(),
			Changes: map[string]any{
				"role_id":   input.RoleID.String(),
				"role_name": rl.Name,
			},
			IPAddress:  input.Meta.IPAddress,
			UserAgent:  input.Meta.UserAgent,
			TenantID:   user.TenantID,
			Reason:     reason,
			RecordedAt: s.now(),
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// GrantPermission upserts a user permission override and writes its audit
// record. Fails ErrNotFound when the user does not exist and
// ErrInvalidArgument when the key is empty or malformed.
func (s *Service) GrantPermission(ctx context.Context, input GrantPermissionInput) error {
	key := strings.TrimSpace(input.PermissionKey)
	if key == "" || !permission.ValidKey(key) {
		return shared.ErrInvalidArgument
	}
	if !input.GrantType.Valid() {
		return shared.ErrInvalidArgument
	}
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		user, err := tx.GetUser(ctx, input.UserID)
		if err != nil {
			return err
		}
		if err := tx.UpsertOverride(ctx, Override{
			UserID:        input.UserID,
			PermissionKey: key,
			GrantType:     input.GrantType,
			GrantedBy:     input.ActingUserID,
			GrantedAt:     s.now(),
			Reason:        input.Reason,
		}); err != nil {
			return err
		}
		reason := input.Reason
		if reason == "" {
			reason = fmt.Sprintf("Permission %q set to %s for user", key, input.GrantType)
		}
		return tx.RecordAudit(ctx, audit.Entry{
			UserID:   &input.ActingUserID,
			Action:   audit.ActionGrantUserPermission,
			Entity:   audit.EntityUserPermission,
			EntityID: input.UserID.String(),
			Changes: map[string]any{
				"permission_key": key,
				"grant_type":     string(input.GrantType),
			},
			IPAddress:  input.Meta.IPAddress,
			UserAgent:  input.Meta.UserAgent,
			TenantID:   user.TenantID,
			Reason:     reason,
			RecordedAt: s.now(),
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// RevokePermission deletes a user permission override and writes its
// audit record. Fails ErrNotFound when the user or override does not exist.
func (s *Service) RevokePermission(ctx context.Context, input RevokePermissionInput) error {
	key := strings.TrimSpace(input.PermissionKey)
	if key == "" {
		return shared.ErrInvalidArgument
	}
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		user, err := tx.GetUser(ctx, input.UserID)
		if err != nil {
			return err
		}
		previous, err := tx.GetOverride(ctx, input.UserID, key)
		if err != nil {
			return err
		}
		deleted, err := tx.DeleteOverride(ctx, input.UserID, key)
		if err != nil {
			return err
		}
		if !deleted {
			return shared.ErrNotFound
		}
		reason := input.Reason
		if reason == "" {
			reason = fmt.Sprintf("Permission override %q removed from user", key)
		}
		return tx.RecordAudit(ctx, audit.Entry{
			UserID:   &input.ActingUserID,
			Action:   audit.ActionRevokeUserPermission,
			Entity:   audit.EntityUserPermission,
			EntityID: input.UserID.String(),
			Changes: map[string]any{
				"permission_key": key,
				"grant_type":     string(previous.GrantType),
			},
			IPAddress:  input.Meta.IPAddress,
			UserAgent:  input.Meta.UserAgent,
			TenantID:   user.TenantID,
			Reason:     reason,
			RecordedAt: s.now(),
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ListRoleAssignments returns the user's role assignments in grant order.
func (s *Service) ListRoleAssignments(ctx context.Context, userID uuid.UUID) ([]RoleAssignment, error) {
	return s.repo.ListRoleAssignments(ctx, userID)
}

// ListOverrides returns the user's permission overrides in grant order.
func (s *Service) ListOverrides(ctx context.Context, userID uuid.UUID) ([]Override, error) {
	return s.repo.ListOverrides(ctx, userID)
}

// withTx bounds the transaction with the configured timeout and maps
// deadline expiry onto the transient failure the caller may retry.
func (s *Service) withTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	return shared.TranslateStorageError(s.repo.WithTx(ctx, fn))
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump decision cache", slog.Any("error", err))
	}
}
