// Package pgutils classifies PostgreSQL driver errors by SQLSTATE code so
// the relational engine can map them onto apperror.Kind without ever
// string-matching SQL text.
package pgutils

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// Class 23 — Integrity Constraint Violation
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeNotNullViolation    = "23502"
	CodeCheckViolation      = "23514"
)

// Code extracts the SQLSTATE from err, preferring the structured
// *pgconn.PgError the driver returns and falling back to scanning the error
// text (useful for errors that already passed through fmt.Errorf wrapping
// or came from a mock pool in tests).
func Code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	for _, code := range []string{CodeUniqueViolation, CodeForeignKeyViolation, CodeNotNullViolation, CodeCheckViolation} {
		if containsErrorCode(err, code) {
			return code
		}
	}
	return ""
}

// IsCancelled reports whether err is a context cancellation surfaced by the
// pool (spec.md §5, §7 Cancelled).
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a deadline exceeded surfaced by the pool
// (spec.md §5, §7 Timeout).
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// ConstraintName returns the name of the violated constraint, if the driver
// supplied one.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	return containsErrorCode(err, CodeUniqueViolation)
}

// IsForeignKeyViolation checks if the error is a PostgreSQL foreign key violation (23503).
func IsForeignKeyViolation(err error) bool {
	return containsErrorCode(err, CodeForeignKeyViolation)
}

// IsNotNullViolation checks if the error is a PostgreSQL not-null constraint violation (23502).
func IsNotNullViolation(err error) bool {
	return containsErrorCode(err, CodeNotNullViolation)
}

// IsCheckViolation checks if the error is a PostgreSQL check constraint violation (23514).
func IsCheckViolation(err error) bool {
	return containsErrorCode(err, CodeCheckViolation)
}

// containsErrorCode checks if the error message contains a PostgreSQL error code.
func containsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return len(errStr) > 0 && (strings.Contains(errStr, code) || strings.Contains(errStr, "SQLSTATE "+code))
}
