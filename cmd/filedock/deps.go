package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sagarc03/filedock"
	"github.com/sagarc03/filedock/config"
	"github.com/sagarc03/filedock/database"
	"github.com/sagarc03/filedock/objectstore/s3store"
	"github.com/sagarc03/filedock/objectstore/stowrystore"
)

// openDatabase connects, pings and validates the schema. Callers must
// Close the returned database.
func openDatabase(ctx context.Context, cfg *config.Config) (database.Database, error) {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err = db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err = db.Validate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("validate database schema (run 'filedock migrate'): %w", err)
	}

	slog.Info("connected to database", "type", cfg.Database.Type)
	return db, nil
}

func openObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (filedock.ObjectStore, error) {
	switch cfg.Backend {
	case "s3":
		store, err := s3store.New(ctx, s3store.Config{
			Bucket:       cfg.Bucket,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			UsePathStyle: cfg.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open object store: %w", err)
		}
		return store, nil

	case "stowry":
		store, err := stowrystore.New(stowrystore.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("open object store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("open object store: unsupported backend: %s", cfg.Backend)
	}
}

func newFileService(cfg *config.Config, records filedock.RecordStore, objects filedock.ObjectStore) (*filedock.FileService, error) {
	return filedock.NewFileService(records, objects, filedock.ServiceConfig{
		PresignTTL:     cfg.Presign.TTL,
		CleanupTimeout: cfg.Service.CleanupTimeout,
		Concurrency:    cfg.Service.Concurrency,
	}, slog.Default())
}

func newSweeper(cfg *config.Config, records filedock.RecordStore, objects filedock.ObjectStore) (*filedock.Sweeper, error) {
	return filedock.NewSweeper(records, objects, filedock.SweepConfig{
		Interval:       cfg.Sweep.Interval,
		DeletingAfter:  cfg.Sweep.DeletingAfter,
		AbandonAfter:   cfg.Sweep.AbandonAfter,
		BatchSize:      cfg.Sweep.BatchSize,
		CleanupTimeout: cfg.Service.CleanupTimeout,
	}, slog.Default())
}
