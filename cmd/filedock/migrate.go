package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/filedock/config"
	"github.com/sagarc03/filedock/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the files table and indexes",
	Long: `Create the files table and its indexes if they do not exist, then
validate that the schema matches what filedock expects. Safe to run
repeatedly.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	return migrateDatabase(cmd.Context(), cfg)
}

func migrateDatabase(ctx context.Context, cfg *config.Config) error {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err = db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if err = db.Validate(ctx); err != nil {
		return fmt.Errorf("validate database schema: %w", err)
	}

	slog.Info("database migration complete",
		"type", cfg.Database.Type,
		"table", cfg.Database.Tables.Files,
	)
	return nil
}
