package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound: a product, warehouse, location, batch or snapshot row does not
	// exist for the organization.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned before any write takes place.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientStock is returned when an issue would drive on-hand negative
	// and negative stock is not allowed.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrContention wraps lock timeouts, deadlocks and serialization failures.
	// The whole operation may be retried.
	ErrContention = errors.New("concurrent update contention")

	// ErrIdempotencyConflict: the idempotency key was already used for a
	// different movement.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Postgres SQLSTATE codes treated as retryable contention.
const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
)

// classifyPgError tags retryable Postgres failures with ErrContention.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
			return fmt.Errorf("%w: %w", ErrContention, err)
		}
	}
	return err
}
