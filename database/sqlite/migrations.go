package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/filedock"
)

// quoteIdentifier quotes a SQLite identifier. Names are validated with
// filedock.IsValidTableName before they reach here.
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

// Migrate creates the files table and its indexes if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, tables filedock.Tables) error {
	if err := createFilesTable(ctx, db, tables.Files); err != nil {
		return fmt.Errorf("migrate up %s: %w", tables.Files, err)
	}
	return nil
}

// DropTables removes every table Migrate creates.
func DropTables(ctx context.Context, db *sql.DB, tables filedock.Tables) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdentifier(tables.Files))); err != nil {
		return fmt.Errorf("migrate down %s: %w", tables.Files, err)
	}
	return nil
}

func createFilesTable(ctx context.Context, db *sql.DB, tableName string) error {
	quotedTable := quoteIdentifier(tableName)

	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT NOT NULL PRIMARY KEY,
				owner_id TEXT NOT NULL,
				filename TEXT NOT NULL,
				content_type TEXT NOT NULL,
				size_bytes INTEGER NOT NULL CHECK (size_bytes >= 0),
				status TEXT NOT NULL CHECK (status IN ('PENDING', 'AVAILABLE', 'DELETING', 'DELETED', 'FAILED')),
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				completed_at TEXT,
				deleted_at TEXT
			)
		`, quotedTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (owner_id, status, created_at, id)`,
			quoteIdentifier(fmt.Sprintf("idx_%s_owner_list", tableName)), quotedTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (status, updated_at, id)`,
			quoteIdentifier(fmt.Sprintf("idx_%s_status_updated", tableName)), quotedTable),
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create files table: %w", err)
		}
	}
	return nil
}
