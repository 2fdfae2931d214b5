package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/fault"
)

// mapError classifies a raw PostgreSQL error into the fault taxonomy. This
// is the only place the portal inspects backend error shapes.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fault.NotFound(op, docstore.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fault.Transient(op, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fault.Unknown(op, err)
	}

	switch pgErr.Code {
	case pgerrcode.InsufficientPrivilege:
		return fault.PermissionDenied(op, fmt.Errorf("%w: %s", docstore.ErrPermissionDenied, pgErr.Message))

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fault.Transient(op, fmt.Errorf("transaction conflict: %w", err))

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fault.Transient(op, fmt.Errorf("database connection error: %w", err))

	case pgerrcode.AdminShutdown, pgerrcode.CrashShutdown:
		return fault.Transient(op, fmt.Errorf("database server unavailable: %w", err))

	case pgerrcode.QueryCanceled:
		return fault.Transient(op, fmt.Errorf("query canceled: %w", err))

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fault.Transient(op, fmt.Errorf("database resource limit: %w", err))

	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.StringDataRightTruncationDataException:
		return fault.Validation(op, fmt.Errorf("constraint violation %s: %w", pgErr.ConstraintName, err))

	default:
		return fault.Unknown(op, fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err))
	}
}
