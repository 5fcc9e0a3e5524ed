package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates a referenced user, role, assignment or override does not exist.
	ErrNotFound = errors.New("authz: not found")
	// ErrConflict indicates a duplicate assignment or override creation attempt.
	ErrConflict = errors.New("authz: conflict")
	// ErrInvalidArgument indicates malformed input such as an empty permission key.
	ErrInvalidArgument = errors.New("authz: invalid argument")
	// ErrTransient indicates a transaction timeout or store unavailability; safe to retry.
	ErrTransient = errors.New("authz: transient storage failure")
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// TranslateStorageError maps low-level storage failures onto the authz taxonomy.
// Errors it does not recognise pass through unchanged.
func TranslateStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err):
		return ErrConflict
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTransient
	default:
		return err
	}
}
