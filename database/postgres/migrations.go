package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/filedock"
)

// Migrate creates the files table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables filedock.Tables) error {
	if err := createFilesTable(ctx, pool, tables.Files); err != nil {
		return fmt.Errorf("migrate up %s: %w", tables.Files, err)
	}
	return nil
}

// DropTables removes every table Migrate creates.
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables filedock.Tables) error {
	quoted := pgx.Identifier{tables.Files}.Sanitize()
	if _, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoted)); err != nil {
		return fmt.Errorf("migrate down %s: %w", tables.Files, err)
	}
	return nil
}

func createFilesTable(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	indexOwnerList := pgx.Identifier{fmt.Sprintf("idx_%s_owner_list", tableName)}.Sanitize()
	indexStale := pgx.Identifier{fmt.Sprintf("idx_%s_status_updated", tableName)}.Sanitize()

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			owner_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size_bytes BIGINT NOT NULL CHECK (size_bytes >= 0),
			status TEXT NOT NULL CHECK (status IN ('PENDING', 'AVAILABLE', 'DELETING', 'DELETED', 'FAILED')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			deleted_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS %s
		ON %s (owner_id, status, created_at, id);

		CREATE INDEX IF NOT EXISTS %s
		ON %s (status, updated_at, id);
	`,
		quotedTable,
		indexOwnerList, quotedTable,
		indexStale, quotedTable,
	)

	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create files table: %w", err)
	}
	return nil
}
