package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sagarc03/filedock/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reconciliation sweep",
	Long: `Run a single sweep and exit. The sweep:
  1. Re-issues the object delete for records stuck in DELETING and marks
     them DELETED
  2. Marks PENDING records older than sweep.abandon_after as FAILED
     (skipped when abandon_after is 0)

'filedock serve' runs the same sweep periodically; use this command from
cron when the background sweep is disabled.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	objects, err := openObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return err
	}

	sweeper, err := newSweeper(cfg, db.GetRepo(), objects)
	if err != nil {
		return fmt.Errorf("create sweeper: %w", err)
	}

	result := sweeper.RunOnce(ctx)
	slog.Info("sweep complete",
		"confirmed", result.Confirmed,
		"abandoned", result.Abandoned,
		"errors", result.Errors,
		"duration", result.Duration,
	)

	if result.Errors > 0 {
		return fmt.Errorf("sweep finished with %d errors", result.Errors)
	}
	return nil
}
