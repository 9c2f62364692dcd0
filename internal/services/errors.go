package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrNoAvailableItem is returned when no eligible item could be locked for a
	// claim. Callers may retry later or place a hold instead.
	ErrNoAvailableItem = errors.New("no available item")

	// ErrIneligible is returned when the borrower is blocked or at the loan limit.
	// The wrapped message carries the reason.
	ErrIneligible = errors.New("borrower is not eligible to borrow")

	// ErrInvalidStateTransition is returned when an operation is not allowed
	// from the record's current status. Nothing is written.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNotFound is returned when an identifier, loan, hold, request or transit
	// record cannot be resolved.
	ErrNotFound = errors.New("not found")

	// ErrBorrowerNotFound is returned when no borrower matches a card number,
	// username or id.
	ErrBorrowerNotFound = errors.New("borrower not found")

	// ErrDuplicateClaim is returned when the borrower already has an active hold
	// or checkout request for the publication.
	ErrDuplicateClaim = errors.New("duplicate claim")

	// ErrDuplicateHold and ErrDuplicateRequest narrow ErrDuplicateClaim.
	ErrDuplicateHold    = fmt.Errorf("%w: borrower already has an active hold for this publication", ErrDuplicateClaim)
	ErrDuplicateRequest = fmt.Errorf("%w: borrower already has an active checkout request for this publication", ErrDuplicateClaim)

	// ErrAlreadyReturned is returned when checking in a loan that is closed.
	ErrAlreadyReturned = errors.New("loan already returned")
)

func invalidTransition(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidStateTransition, fmt.Sprintf(format, args...))
}

func ineligible(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIneligible, fmt.Sprintf(format, args...))
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

// isUniqueViolation checks whether a PostgreSQL unique-constraint error occurred.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isRetryable reports serialization failures (40001) and deadlocks (40P01).
// Both leave the database untouched, so the whole transaction may run again.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
