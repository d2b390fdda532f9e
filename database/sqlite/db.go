package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sagarc03/filedock"
	"github.com/sagarc03/filedock/database/internal"
)

var filesTableSchema = map[string]internal.Column{
	"id":           {DataType: "text"},
	"owner_id":     {DataType: "text"},
	"filename":     {DataType: "text"},
	"content_type": {DataType: "text"},
	"size_bytes":   {DataType: "integer"},
	"status":       {DataType: "text"},
	"created_at":   {DataType: "text"},
	"updated_at":   {DataType: "text"},
	"completed_at": {DataType: "text", Nullable: true},
	"deleted_at":   {DataType: "text", Nullable: true},
}

// ValidateSchema checks that the files table exists with the columns the
// repo reads and writes.
func ValidateSchema(ctx context.Context, db *sql.DB, tables filedock.Tables) error {
	if err := validateTable(ctx, db, tables.Files, filesTableSchema); err != nil {
		return fmt.Errorf("validate schema %s: %w", tables.Files, err)
	}
	return nil
}

func validateTable(ctx context.Context, db *sql.DB, tableName string, expected map[string]internal.Column) error {
	if !filedock.IsValidTableName(tableName) {
		return fmt.Errorf("invalid table name: %s", tableName)
	}

	exists, err := tableExists(ctx, db, tableName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("table %s does not exist", tableName)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(tableName)))
	if err != nil {
		return fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	actual := make(map[string]internal.Column)
	for rows.Next() {
		var (
			cid       int
			name      string
			dataType  string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		actual[name] = internal.Column{
			DataType: strings.ToLower(dataType),
			Nullable: notNull == 0,
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}

	return internal.CompareSchema(tableName, expected, actual)
}

func tableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tableName).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return true, nil
}
