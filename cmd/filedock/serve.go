package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarc03/filedock"
	"github.com/sagarc03/filedock/config"
	filedockhttp "github.com/sagarc03/filedock/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the filedock HTTP server and, unless sweep.enabled is false,
the background sweep that finishes unconfirmed deletions.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP server port")
	serveCmd.Flags().Bool("auto-migrate", false, "create missing tables before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required to serve (env: FILEDOCK_AUTH_JWT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if autoMigrate, _ := cmd.Flags().GetBool("auto-migrate"); autoMigrate {
		if err = migrateDatabase(ctx, cfg); err != nil {
			return err
		}
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	records := db.GetRepo()

	objects, err := openObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return err
	}

	service, err := newFileService(cfg, records, objects)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	reconciler, err := filedock.NewReconciler(records, filedock.ReconcilerConfig{
		Bucket: cfg.ObjectStore.Bucket,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("create reconciler: %w", err)
	}

	if cfg.Sweep.Enabled {
		sweeper, sweepErr := newSweeper(cfg, records, objects)
		if sweepErr != nil {
			return fmt.Errorf("create sweeper: %w", sweepErr)
		}
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	handler := filedockhttp.NewHandler(&filedockhttp.HandlerConfig{
		Auth: filedockhttp.AuthConfig{
			JWTSecret: cfg.Auth.JWTSecret,
			UserClaim: cfg.Auth.UserClaim,
			Leeway:    cfg.Auth.Leeway,
		},
		WebhookToken: cfg.Webhook.AuthToken,
		CORS:         cfg.CORS,
		Health:       db,
	}, service, reconciler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "objectstore", cfg.ObjectStore.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := service.Close(shutdownCtx); err != nil {
		slog.Warn("object deletes still running at shutdown", "error", err)
	}
	return nil
}
