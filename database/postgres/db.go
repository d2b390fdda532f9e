package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/filedock"
	"github.com/sagarc03/filedock/database/internal"
)

var filesTableSchema = map[string]internal.Column{
	"id":           {DataType: "uuid"},
	"owner_id":     {DataType: "text"},
	"filename":     {DataType: "text"},
	"content_type": {DataType: "text"},
	"size_bytes":   {DataType: "bigint"},
	"status":       {DataType: "text"},
	"created_at":   {DataType: "timestamp with time zone"},
	"updated_at":   {DataType: "timestamp with time zone"},
	"completed_at": {DataType: "timestamp with time zone", Nullable: true},
	"deleted_at":   {DataType: "timestamp with time zone", Nullable: true},
}

// ValidateSchema checks that the files table exists in the current schema
// with the columns the repo reads and writes.
func ValidateSchema(ctx context.Context, pool *pgxpool.Pool, tables filedock.Tables) error {
	if err := validateTable(ctx, pool, tables.Files, filesTableSchema); err != nil {
		return fmt.Errorf("validate schema %s: %w", tables.Files, err)
	}
	return nil
}

func validateTable(ctx context.Context, pool *pgxpool.Pool, tableName string, expected map[string]internal.Column) error {
	if !filedock.IsValidTableName(tableName) {
		return fmt.Errorf("invalid table name: %s", tableName)
	}

	exists, err := tableExists(ctx, pool, tableName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("table %s does not exist", tableName)
	}

	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`, tableName)
	if err != nil {
		return fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	actual := make(map[string]internal.Column)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return fmt.Errorf("scan column: %w", err)
		}
		actual[name] = internal.Column{
			DataType: strings.ToLower(dataType),
			Nullable: nullable == "YES",
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}

	return internal.CompareSchema(tableName, expected, actual)
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = current_schema()
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return exists, nil
}
