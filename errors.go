package filedock

import "errors"

var (
	// ErrInvalidRequest is returned when the caller supplied malformed or empty input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrPermissionDenied is returned when a record is missing or not owned by the caller.
	// The two cases are never distinguished.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStorageUnavailable is returned when the record store or the object store
	// could not complete the operation. Retrying the whole operation is safe.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrReconciliationSkipped marks a benign no-op: a stale, duplicate or
	// out-of-order event for the record's current status.
	ErrReconciliationSkipped = errors.New("reconciliation skipped")
	// ErrNotFound is returned by stores when a record or object does not exist.
	ErrNotFound = errors.New("not found")
)
