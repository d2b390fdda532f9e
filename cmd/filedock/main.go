package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/filedock/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "filedock",
	Short:   "File lifecycle service backed by S3-compatible object storage",
	Long: `filedock tracks uploaded files through their lifecycle
(PENDING, AVAILABLE, DELETING, DELETED, FAILED) while the bytes live in an
S3-compatible object store that clients reach through presigned URLs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFiles, _ := cmd.Flags().GetStringSlice("config")

		cfg, err := config.Load(configFiles, cmd.Flags())
		if err != nil {
			return err
		}

		setupLogging(cfg)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config", nil, "config file paths, merged left to right (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("db-type", "", "database type: sqlite, postgres (env: FILEDOCK_DATABASE_TYPE)")
	rootCmd.PersistentFlags().String("db-dsn", "", "database connection string (env: FILEDOCK_DATABASE_DSN)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
