package filedock

import (
	"context"

	"github.com/google/uuid"
)

// RecordStore defines the authoritative metadata store for file records.
// Implementations must be safe for concurrent use and must never hold an
// in-process lock across a database call.
//
// All methods accept a context for cancellation and timeout control.
type RecordStore interface {
	// Transact runs fn inside one database transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise; the error from
	// fn is returned unchanged so callers can classify it with errors.Is.
	Transact(ctx context.Context, fn func(tx Tx) error) error

	// ConditionalUpdate applies patch to the record with the given id and
	// owner only if its current status is one of from. It returns the
	// number of rows affected; zero means the guard rejected the update
	// (stale event, duplicate delivery or unknown record) and is not an error.
	ConditionalUpdate(ctx context.Context, id uuid.UUID, ownerID string, from []Status, patch Patch) (int64, error)

	// GetOwned returns the record with the given id if it belongs to ownerID
	// and has one of the given statuses.
	//
	// Returns:
	//   - ErrNotFound when no such record exists
	GetOwned(ctx context.Context, ownerID string, id uuid.UUID, statuses []Status) (FileRecord, error)

	// ListAvailable returns the owner's AVAILABLE records, newest first,
	// paginated with an opaque cursor.
	ListAvailable(ctx context.Context, ownerID string, q ListQuery) (ListResult, error)

	// ListStale returns records that have been in q.Status since before
	// q.Before, oldest first, paginated with an opaque cursor.
	// It is used by the sweep.
	ListStale(ctx context.Context, q StaleQuery) (ListResult, error)
}

// Tx is the set of operations available inside RecordStore.Transact.
type Tx interface {
	// Insert creates a new record. The record's id must be unique.
	Insert(ctx context.Context, rec FileRecord) error

	// LockOwned acquires exclusive row locks on the records among ids that
	// belong to ownerID and have one of the given statuses, and returns them.
	// Locks are held until the transaction ends.
	LockOwned(ctx context.Context, ownerID string, ids []uuid.UUID, statuses []Status) ([]FileRecord, error)

	// Update is ConditionalUpdate within the transaction.
	Update(ctx context.Context, id uuid.UUID, ownerID string, from []Status, patch Patch) (int64, error)
}
