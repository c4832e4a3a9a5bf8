// Package storage opens document backends from configuration.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scheduled-publisher/internal/config"
	"github.com/JakeFAU/scheduled-publisher/internal/schedule"
	"github.com/JakeFAU/scheduled-publisher/internal/storage/badger"
	"github.com/JakeFAU/scheduled-publisher/internal/storage/gcs"
	"github.com/JakeFAU/scheduled-publisher/internal/storage/local"
	"github.com/JakeFAU/scheduled-publisher/internal/storage/memory"
	"github.com/JakeFAU/scheduled-publisher/internal/storage/postgres"
)

// Open constructs the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.BackendConfig, logger *zap.Logger) (schedule.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backend %s: %w", cfg.Name, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		backend schedule.Backend
		err     error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		backend = memory.NewDocumentStore(cfg.Name)
	case config.DriverLocal:
		backend, err = local.New(local.Config{Name: cfg.Name, Path: cfg.Path})
	case config.DriverPostgres:
		backend, err = postgres.New(ctx, postgres.Config{
			Name:            cfg.Name,
			DSN:             cfg.DSN,
			Table:           cfg.Table,
			DocumentID:      cfg.DocumentID,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
	case config.DriverGCS:
		backend, err = gcs.New(ctx, gcs.Config{
			Name:            cfg.Name,
			Bucket:          cfg.Bucket,
			Object:          cfg.Object,
			CredentialsFile: cfg.CredentialsFile,
		})
	case config.DriverBadger:
		backend, err = badger.New(badger.Config{
			Name:       cfg.Name,
			Path:       cfg.Path,
			DocumentID: cfg.DocumentID,
			Logger:     logger,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open backend %s: %w", cfg.Name, err)
	}

	logger.Info("document backend ready",
		zap.String("backend", cfg.Name),
		zap.String("driver", cfg.Driver),
	)
	return backend, nil
}

// OpenAll opens every primary in order plus the optional backup. On error the
// backends opened so far are closed.
func OpenAll(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) ([]schedule.Backend, schedule.Backend, error) {
	primaries := make([]schedule.Backend, 0, len(cfg.Primaries))
	closeAll := func() {
		for _, b := range primaries {
			_ = b.Close()
		}
	}
	for _, bc := range cfg.Primaries {
		b, err := Open(ctx, bc, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		primaries = append(primaries, b)
	}
	if cfg.Backup == nil {
		return primaries, nil, nil
	}
	backup, err := Open(ctx, *cfg.Backup, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return primaries, backup, nil
}
