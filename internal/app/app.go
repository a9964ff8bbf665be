// Package app wires configuration into the running services shared by the
// API server and the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/deepresearch/internal/config"
	"github.com/timmy/deepresearch/internal/logger"
	"github.com/timmy/deepresearch/internal/repository"
	"github.com/timmy/deepresearch/internal/service"
	"github.com/timmy/deepresearch/internal/source"
	"github.com/timmy/deepresearch/internal/storage"
	"gorm.io/gorm"
)

// App holds the wired services. History and Exporter are nil when their
// backends are disabled.
type App struct {
	Config       *config.Config
	Orchestrator *service.Orchestrator
	Loader       *source.Loader
	History      *repository.ResearchRepository
	Exporter     *service.ExportService

	db *gorm.DB
}

// New builds every service from cfg.
// Parameters:
//   - ctx: context for startup checks (bucket creation).
//   - cfg: validated application configuration.
//   - log: base logger.
//
// Returns:
//   - *App: wired services; call Close when done.
//   - error: non-nil if a required dependency can't be initialized.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	client, err := service.NewResearchClient(&service.ResearchClientConfig{
		APIKey:          cfg.Research.APIKey,
		BaseURL:         cfg.Research.BaseURL,
		APIVersion:      cfg.Research.APIVersion,
		Agent:           cfg.Research.Agent,
		RequestTimeout:  cfg.Research.RequestTimeout,
		GenerateTimeout: cfg.Refine.Timeout,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Loader: source.NewLoader(cfg.Documents.MaxBytes),
	}

	var archive service.JobArchive
	if cfg.Database.Enabled {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		a.History = repository.NewResearchRepository(db)
		archive = a.History
	} else {
		log.Info("Job archive disabled")
	}

	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if s3s, ok := store.(*storage.S3Storage); ok {
			bucketCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := s3s.EnsureBucket(bucketCtx)
			cancel()
			if err != nil {
				log.WithError(err).Warn("Storage bucket check failed, exports may fail")
			}
		}
		a.Exporter = service.NewExportService(store)
	} else {
		log.Info("Report export disabled")
	}

	a.Orchestrator = service.NewOrchestrator(client, nil, nil, archive, log, &service.OrchestratorConfig{
		PollInterval:      cfg.Research.PollInterval,
		Deadline:          cfg.Research.Deadline,
		ProgressStart:     cfg.Research.ProgressStart,
		ProgressStep:      cfg.Research.ProgressStep,
		ProgressCap:       cfg.Research.ProgressCap,
		Agent:             cfg.Research.Agent,
		ThinkingSummaries: cfg.Research.ThinkingSummaries,
		RefineModel:       cfg.Refine.Model,
		RefineTemperature: cfg.Refine.Temperature,
	})

	return a, nil
}

// Close releases the database connection.
func (a *App) Close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
