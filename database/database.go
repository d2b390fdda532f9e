package database

import (
	"context"
	"fmt"

	"github.com/sagarc03/filedock"
	"github.com/sagarc03/filedock/database/postgres"
	"github.com/sagarc03/filedock/database/sqlite"
)

// Config holds the configuration for connecting to a record store backend.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" validate:"required,oneof=sqlite postgres"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn" validate:"required"`
	// Tables holds the table names
	Tables filedock.Tables `mapstructure:"tables"`
}

// Database is a connected record store backend.
type Database interface {
	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error
	// Migrate creates the tables and indexes if they do not exist.
	Migrate(ctx context.Context) error
	// Validate checks that the schema matches what the repo expects.
	Validate(ctx context.Context) error
	// GetRepo returns the RecordStore backed by this database.
	GetRepo() filedock.RecordStore
	// Close releases the connection pool.
	Close() error
}

// Connect opens the configured backend. It does not migrate or validate;
// callers decide which of the two to run.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	switch cfg.Type {
	case "sqlite":
		db, err := sqlite.Connect(ctx, cfg.DSN, cfg.Tables)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.DSN, cfg.Tables)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("connect: unsupported database type: %s", cfg.Type)
	}
}
