// Package sqlite implements filedock.RecordStore on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/filedock"
	"github.com/sagarc03/filedock/database/internal"
)

// timeFormat is fixed width so that text comparison orders chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const columns = `id, owner_id, filename, content_type, size_bytes, status, created_at, updated_at, completed_at, deleted_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repo struct {
	db    *sql.DB
	table string // quoted
}

// Ping verifies database connectivity
func (r *repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *repo) Transact(ctx context.Context, fn func(tx filedock.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&txRepo{q: tx, table: r.table}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repo) ConditionalUpdate(ctx context.Context, id uuid.UUID, ownerID string, from []filedock.Status, patch filedock.Patch) (int64, error) {
	n, err := conditionalUpdate(ctx, r.db, r.table, id, ownerID, from, patch)
	if err != nil {
		return 0, fmt.Errorf("conditional update: %w", err)
	}
	return n, nil
}

func (r *repo) GetOwned(ctx context.Context, ownerID string, id uuid.UUID, statuses []filedock.Status) (filedock.FileRecord, error) {
	placeholders, statusArgs := inClause(internal.StatusStrings(statuses))
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s WHERE id = ? AND owner_id = ? AND status IN (%s)`,
		columns, r.table, placeholders)

	args := append([]any{id.String(), ownerID}, statusArgs...)
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return filedock.FileRecord{}, filedock.ErrNotFound
		}
		return filedock.FileRecord{}, fmt.Errorf("get owned: %w", err)
	}
	return rec, nil
}

func (r *repo) ListAvailable(ctx context.Context, ownerID string, q filedock.ListQuery) (filedock.ListResult, error) {
	cursor, err := internal.DecodeCursor(q.Cursor)
	if err != nil {
		return filedock.ListResult{}, fmt.Errorf("list available: %w", err)
	}

	var query string
	var args []any

	if q.Cursor == "" {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`SELECT %s FROM %s
			WHERE owner_id = ? AND status = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?`, columns, r.table)
		args = []any{ownerID, string(filedock.StatusAvailable), q.Limit + 1}
	} else {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`SELECT %s FROM %s
			WHERE owner_id = ? AND status = ?
				AND (created_at < ? OR (created_at = ? AND id < ?))
			ORDER BY created_at DESC, id DESC
			LIMIT ?`, columns, r.table)
		at := formatTime(cursor.At)
		args = []any{ownerID, string(filedock.StatusAvailable), at, at, cursor.ID.String(), q.Limit + 1}
	}

	items, err := queryRecords(ctx, r.db, query, args...)
	if err != nil {
		return filedock.ListResult{}, fmt.Errorf("list available: %w", err)
	}

	return page(items, q.Limit, func(last filedock.FileRecord) string {
		return internal.EncodeCursor(last.CreatedAt, last.ID)
	}), nil
}

func (r *repo) ListStale(ctx context.Context, q filedock.StaleQuery) (filedock.ListResult, error) {
	cursor, err := internal.DecodeCursor(q.Cursor)
	if err != nil {
		return filedock.ListResult{}, fmt.Errorf("list stale: %w", err)
	}

	var query string
	var args []any

	if q.Cursor == "" {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`SELECT %s FROM %s
			WHERE status = ? AND updated_at < ?
			ORDER BY updated_at, id
			LIMIT ?`, columns, r.table)
		args = []any{string(q.Status), formatTime(q.Before), q.Limit + 1}
	} else {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`SELECT %s FROM %s
			WHERE status = ? AND updated_at < ?
				AND (updated_at > ? OR (updated_at = ? AND id > ?))
			ORDER BY updated_at, id
			LIMIT ?`, columns, r.table)
		at := formatTime(cursor.At)
		args = []any{string(q.Status), formatTime(q.Before), at, at, cursor.ID.String(), q.Limit + 1}
	}

	items, err := queryRecords(ctx, r.db, query, args...)
	if err != nil {
		return filedock.ListResult{}, fmt.Errorf("list stale: %w", err)
	}

	return page(items, q.Limit, func(last filedock.FileRecord) string {
		return internal.EncodeCursor(last.UpdatedAt, last.ID)
	}), nil
}

type txRepo struct {
	q     *sql.Tx
	table string
}

func (t *txRepo) Insert(ctx context.Context, rec filedock.FileRecord) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, t.table, columns)

	_, err := t.q.ExecContext(ctx, query,
		rec.ID.String(), rec.OwnerID, rec.Filename, rec.ContentType, rec.Size, string(rec.Status),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		formatNullTime(rec.CompletedAt), formatNullTime(rec.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// LockOwned relies on the single connection of the pool: once the
// transaction holds it, no other transaction can read or write until commit.
func (t *txRepo) LockOwned(ctx context.Context, ownerID string, ids []uuid.UUID, statuses []filedock.Status) ([]filedock.FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	idPlaceholders, idArgs := inClause(internal.IDStrings(ids))
	statusPlaceholders, statusArgs := inClause(internal.StatusStrings(statuses))
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s
		WHERE id IN (%s) AND owner_id = ? AND status IN (%s)
		ORDER BY id`, columns, t.table, idPlaceholders, statusPlaceholders)

	args := append(idArgs, ownerID)
	args = append(args, statusArgs...)

	items, err := queryRecords(ctx, t.q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lock owned: %w", err)
	}
	return items, nil
}

func (t *txRepo) Update(ctx context.Context, id uuid.UUID, ownerID string, from []filedock.Status, patch filedock.Patch) (int64, error) {
	n, err := conditionalUpdate(ctx, t.q, t.table, id, ownerID, from, patch)
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	return n, nil
}

func conditionalUpdate(ctx context.Context, q querier, table string, id uuid.UUID, ownerID string, from []filedock.Status, patch filedock.Patch) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}

	placeholders, statusArgs := inClause(internal.StatusStrings(from))
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s
		SET status = ?,
			updated_at = ?,
			size_bytes = COALESCE(?, size_bytes),
			completed_at = COALESCE(?, completed_at),
			deleted_at = COALESCE(?, deleted_at)
		WHERE id = ? AND owner_id = ? AND status IN (%s)`, table, placeholders)

	var size sql.NullInt64
	if patch.Size != nil {
		size = sql.NullInt64{Int64: *patch.Size, Valid: true}
	}

	args := []any{
		string(patch.Status), formatTime(patch.UpdatedAt), size,
		formatNullTime(patch.CompletedAt), formatNullTime(patch.DeletedAt),
		id.String(), ownerID,
	}
	args = append(args, statusArgs...)

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func queryRecords(ctx context.Context, q querier, query string, args ...any) ([]filedock.FileRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []filedock.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (filedock.FileRecord, error) {
	var (
		rec                    filedock.FileRecord
		idStr, status          string
		createdAt, updatedAt   string
		completedAt, deletedAt sql.NullString
	)

	err := row.Scan(
		&idStr, &rec.OwnerID, &rec.Filename, &rec.ContentType, &rec.Size, &status,
		&createdAt, &updatedAt, &completedAt, &deletedAt,
	)
	if err != nil {
		return filedock.FileRecord{}, err
	}

	if rec.ID, err = uuid.Parse(idStr); err != nil {
		return filedock.FileRecord{}, fmt.Errorf("parse uuid: %w", err)
	}
	rec.Status = filedock.Status(status)

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return filedock.FileRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return filedock.FileRecord{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if rec.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return filedock.FileRecord{}, fmt.Errorf("parse completed_at: %w", err)
	}
	if rec.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return filedock.FileRecord{}, fmt.Errorf("parse deleted_at: %w", err)
	}

	return rec, nil
}

func page(items []filedock.FileRecord, limit int, cursorOf func(filedock.FileRecord) string) filedock.ListResult {
	if items == nil {
		items = []filedock.FileRecord{}
	}

	var nextCursor string
	if len(items) > limit {
		nextCursor = cursorOf(items[limit-1])
		items = items[:limit]
	}
	return filedock.ListResult{Items: items, NextCursor: nextCursor}
}

func inClause(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", "), args
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
