// Package postgres implements filedock.RecordStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/filedock"
	"github.com/sagarc03/filedock/database/internal"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const columns = `id, owner_id, filename, content_type, size_bytes, status, created_at, updated_at, completed_at, deleted_at`

type repo struct {
	pool  *pgxpool.Pool
	table string // sanitized
}

// Ping verifies database connectivity
func (r *repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *repo) Transact(ctx context.Context, fn func(tx filedock.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&txRepo{q: tx, table: r.table})
	})
}

func (r *repo) ConditionalUpdate(ctx context.Context, id uuid.UUID, ownerID string, from []filedock.Status, patch filedock.Patch) (int64, error) {
	n, err := conditionalUpdate(ctx, r.pool, r.table, id, ownerID, from, patch)
	if err != nil {
		return 0, fmt.Errorf("conditional update: %w", err)
	}
	return n, nil
}

func (r *repo) GetOwned(ctx context.Context, ownerID string, id uuid.UUID, statuses []filedock.Status) (filedock.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND owner_id = $2 AND status = ANY($3)
	`, columns, r.table)

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id, ownerID, internal.StatusStrings(statuses)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
		query = fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE owner_id = $1 AND status = $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		`, columns, r.table)
		args = []any{ownerID, string(filedock.StatusAvailable), q.Limit + 1}
	} else {
		query = fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE owner_id = $1 AND status = $2 AND (created_at, id) < ($3, $4)
			ORDER BY created_at DESC, id DESC
			LIMIT $5
		`, columns, r.table)
		args = []any{ownerID, string(filedock.StatusAvailable), cursor.At, cursor.ID, q.Limit + 1}
	}

	items, err := queryRecords(ctx, r.pool, query, args...)
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
		query = fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE status = $1 AND updated_at < $2
			ORDER BY updated_at, id
			LIMIT $3
		`, columns, r.table)
		args = []any{string(q.Status), q.Before, q.Limit + 1}
	} else {
		query = fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE status = $1 AND updated_at < $2 AND (updated_at, id) > ($3, $4)
			ORDER BY updated_at, id
			LIMIT $5
		`, columns, r.table)
		args = []any{string(q.Status), q.Before, cursor.At, cursor.ID, q.Limit + 1}
	}

	items, err := queryRecords(ctx, r.pool, query, args...)
	if err != nil {
		return filedock.ListResult{}, fmt.Errorf("list stale: %w", err)
	}

	return page(items, q.Limit, func(last filedock.FileRecord) string {
		return internal.EncodeCursor(last.UpdatedAt, last.ID)
	}), nil
}

type txRepo struct {
	q     pgx.Tx
	table string
}

func (t *txRepo) Insert(ctx context.Context, rec filedock.FileRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.table, columns)

	_, err := t.q.Exec(ctx, query,
		rec.ID, rec.OwnerID, rec.Filename, rec.ContentType, rec.Size, string(rec.Status),
		rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt, rec.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func (t *txRepo) LockOwned(ctx context.Context, ownerID string, ids []uuid.UUID, statuses []filedock.Status) ([]filedock.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = ANY($1::uuid[]) AND owner_id = $2 AND status = ANY($3)
		ORDER BY id
		FOR UPDATE
	`, columns, t.table)

	items, err := queryRecords(ctx, t.q, query, internal.IDStrings(ids), ownerID, internal.StatusStrings(statuses))
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

func conditionalUpdate(ctx context.Context, q dbtx, table string, id uuid.UUID, ownerID string, from []filedock.Status, patch filedock.Patch) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1,
			updated_at = $2,
			size_bytes = COALESCE($3, size_bytes),
			completed_at = COALESCE($4, completed_at),
			deleted_at = COALESCE($5, deleted_at)
		WHERE id = $6 AND owner_id = $7 AND status = ANY($8)
	`, table)

	tag, err := q.Exec(ctx, query,
		string(patch.Status), patch.UpdatedAt, patch.Size, patch.CompletedAt, patch.DeletedAt,
		id, ownerID, internal.StatusStrings(from),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func queryRecords(ctx context.Context, q dbtx, query string, args ...any) ([]filedock.FileRecord, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func scanRecord(row pgx.Row) (filedock.FileRecord, error) {
	var rec filedock.FileRecord
	var status string
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Filename, &rec.ContentType, &rec.Size, &status,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt, &rec.DeletedAt,
	)
	if err != nil {
		return filedock.FileRecord{}, err
	}
	rec.Status = filedock.Status(status)
	return rec, nil
}

// page trims the extra row fetched to detect a next page.
func page(items []filedock.FileRecord, limit int, cursorOf func(filedock.FileRecord) string) filedock.ListResult {
	if items == nil {
		items = []filedock.FileRecord{}
	}

	var nextCursor string
	if len(items) > limit {
		// Cursor points to the last item of the current page
		nextCursor = cursorOf(items[limit-1])
		items = items[:limit]
	}
	return filedock.ListResult{Items: items, NextCursor: nextCursor}
}
