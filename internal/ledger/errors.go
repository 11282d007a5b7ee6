package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("ledger: not found")
	// ErrForbidden indicates the actor is neither owner nor party of the record.
	ErrForbidden = errors.New("ledger: actor may not modify this record")
	// ErrWrongRole indicates the actor's role cannot perform the operation.
	ErrWrongRole = errors.New("ledger: operation not allowed for actor role")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("ledger: status transition not allowed")
	// ErrReservationExists indicates the association already reserved the announcement.
	ErrReservationExists = errors.New("ledger: reservation already exists")
	// ErrAnnouncementUnavailable indicates the announcement expired or is no longer offered.
	ErrAnnouncementUnavailable = errors.New("ledger: announcement unavailable")
	// ErrVersionConflict indicates a concurrent write changed the document first.
	ErrVersionConflict = errors.New("ledger: document changed concurrently")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ValidationError reports a missing or malformed input field. No write happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a document absent at read time.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ledger: %s %q not found", e.Collection, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StoreError wraps a failed store call with a stable operation.reason code.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// domainError reports whether err is a ledger outcome that must reach the caller unwrapped.
func domainError(err error) bool {
	var validation *ValidationError
	var store *StoreError
	return errors.As(err, &validation) ||
		errors.As(err, &store) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrWrongRole) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrReservationExists) ||
		errors.Is(err, ErrAnnouncementUnavailable) ||
		errors.Is(err, ErrVersionConflict)
}
