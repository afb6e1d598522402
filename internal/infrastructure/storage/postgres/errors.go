package postgres

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"replenix/internal/core/apperror"
)

// SQLSTATE codes that abort a transaction.
const (
	codeUniqueViolation   = "23505"
	codeSerialization     = "40001"
	codeDeadlock          = "40P01"
	codeLockNotAvailable  = "55P03"
	codeQueryCanceled     = "57014"
	codeForeignKeyViolate = "23503"
)

// ClassifyError maps driver errors to the application taxonomy. Lock
// timeouts, deadlocks, serialization failures, cancelled statements and
// constraint violations become TransactionFailure. AppErrors and
// unrecognized errors pass through unchanged.
func ClassifyError(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeDeadlock, codeSerialization, codeQueryCanceled:
			return apperror.NewTransactionFailure(err).
				WithDetail("sqlstate", pgErr.Code)
		case codeUniqueViolation, codeForeignKeyViolate:
			appErr := apperror.NewTransactionFailure(err).
				WithDetail("sqlstate", pgErr.Code).
				WithDetail("constraint", pgErr.ConstraintName)
			appErr.HTTPStatus = http.StatusConflict
			return appErr
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewTransactionFailure(err)
	}
	return err
}
