package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/filedock"

	_ "modernc.org/sqlite" // SQLite driver
)

// database provides SQLite database operations.
//
// The pool is limited to one connection. SQLite allows a single writer, and
// an in-memory database exists only on the connection that created it; with
// one connection every transaction is serialized, which is what the row
// locks of the deletion path require.
type database struct {
	db     *sql.DB
	tables filedock.Tables
}

// Connect establishes a connection to SQLite.
// Tables should be validated before calling Connect.
func Connect(ctx context.Context, dsn string, tables filedock.Tables) (*database, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	return &database{
		db:     db,
		tables: tables,
	}, nil
}

// Ping verifies the database connection is alive.
func (d *database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate runs database migrations to create required tables.
func (d *database) Migrate(ctx context.Context) error {
	if err := Migrate(ctx, d.db, d.tables); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Validate checks that the database schema matches expected structure.
func (d *database) Validate(ctx context.Context) error {
	return ValidateSchema(ctx, d.db, d.tables)
}

// GetRepo returns the RecordStore for database operations.
func (d *database) GetRepo() filedock.RecordStore {
	return &repo{db: d.db, table: quoteIdentifier(d.tables.Files)}
}

// Close closes the database connection.
func (d *database) Close() error {
	return d.db.Close()
}
