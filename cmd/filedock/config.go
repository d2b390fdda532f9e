package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sagarc03/filedock/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, config files,
FILEDOCK_* environment variables and flags. Secrets are masked.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	if err := enc.Encode(effectiveConfig(cfg)); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// effectiveConfig renders durations as strings and masks secrets.
func effectiveConfig(cfg *config.Config) map[string]any {
	return map[string]any{
		"env": cfg.Env,
		"server": map[string]any{
			"port":             cfg.Server.Port,
			"shutdown_timeout": cfg.Server.ShutdownTimeout.String(),
		},
		"database": map[string]any{
			"type":   cfg.Database.Type,
			"dsn":    mask(cfg.Database.DSN),
			"tables": map[string]any{"files": cfg.Database.Tables.Files},
		},
		"objectstore": map[string]any{
			"backend":        cfg.ObjectStore.Backend,
			"endpoint":       cfg.ObjectStore.Endpoint,
			"bucket":         cfg.ObjectStore.Bucket,
			"region":         cfg.ObjectStore.Region,
			"access_key":     cfg.ObjectStore.AccessKey,
			"secret_key":     mask(cfg.ObjectStore.SecretKey),
			"use_path_style": cfg.ObjectStore.UsePathStyle,
		},
		"presign": map[string]any{
			"ttl": cfg.Presign.TTL.String(),
		},
		"service": map[string]any{
			"cleanup_timeout": cfg.Service.CleanupTimeout.String(),
			"concurrency":     cfg.Service.Concurrency,
		},
		"sweep": map[string]any{
			"enabled":        cfg.Sweep.Enabled,
			"interval":       cfg.Sweep.Interval.String(),
			"deleting_after": cfg.Sweep.DeletingAfter.String(),
			"abandon_after":  cfg.Sweep.AbandonAfter.String(),
			"batch_size":     cfg.Sweep.BatchSize,
		},
		"auth": map[string]any{
			"jwt_secret": mask(cfg.Auth.JWTSecret),
			"user_claim": cfg.Auth.UserClaim,
			"leeway":     cfg.Auth.Leeway.String(),
		},
		"webhook": map[string]any{
			"auth_token": mask(cfg.Webhook.AuthToken),
		},
		"cors": cfg.CORS,
		"log": map[string]any{
			"level": cfg.Log.Level,
		},
	}
}
