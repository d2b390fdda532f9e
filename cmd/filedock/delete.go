package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sagarc03/filedock/config"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [flags] <file-id> [file-id] ...",
	Short: "Delete files on behalf of an owner",
	Long: `Start deletion of one or more files owned by --owner, exactly as the
POST /api/file/delete route does. Either every file is moved to DELETING or,
when any id is missing or not owned, none is.

Examples:
  # Delete two files, asking for confirmation
  filedock delete --owner alice 6f1c7a52-8d4e-4c0b-9a57-3f2d7b1e9c10 0b9f3a8e-2a51-4a3e-8f5e-5f0f5d7c2b11

  # Skip the prompt
  filedock delete --owner alice --yes 6f1c7a52-8d4e-4c0b-9a57-3f2d7b1e9c10`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

var (
	deleteOwner string
	deleteYes   bool
)

func init() {
	deleteCmd.Flags().StringVar(&deleteOwner, "owner", "", "owner id of the files (required)")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
	_ = deleteCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, parseErr := uuid.Parse(arg)
		if parseErr != nil {
			return fmt.Errorf("invalid file id %q: %w", arg, parseErr)
		}
		ids = append(ids, id)
	}

	if !deleteYes {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Delete %d file(s) owned by '%s'", len(ids), deleteOwner),
			IsConfirm: true,
		}
		if _, promptErr := prompt.Run(); promptErr != nil {
			fmt.Println("Cancelled.")
			return nil //nolint:nilerr // User cancelled, not an error
		}
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	objects, err := openObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return err
	}

	service, err := newFileService(cfg, db.GetRepo(), objects)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	if err := service.Delete(ctx, deleteOwner, ids); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	service.Wait()

	fmt.Printf("Deletion initiated for %d file(s).\n", len(ids))
	return nil
}
