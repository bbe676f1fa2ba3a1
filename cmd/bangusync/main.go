package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sorabane/bangusync/internal/api"
	"github.com/sorabane/bangusync/internal/config"
	"github.com/sorabane/bangusync/internal/executor"
	"github.com/sorabane/bangusync/internal/mapping"
	"github.com/sorabane/bangusync/internal/models"
	"github.com/sorabane/bangusync/internal/normalizer"
	"github.com/sorabane/bangusync/internal/resolver"
	"github.com/sorabane/bangusync/internal/scheduler"
	"github.com/sorabane/bangusync/internal/services/bangumi"
	"github.com/sorabane/bangusync/internal/services/dataset"
	"github.com/sorabane/bangusync/internal/services/trakt"
	"github.com/sorabane/bangusync/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting Bangusync")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Load the title dataset. A failed download is not fatal: resolution
	// falls back to remote search until the next scheduled refresh succeeds.
	datasetStore, err := dataset.NewStore(cfg.DatasetURL, cfg.DatasetCacheFile, cfg.DatasetProxy, cfg.DatasetTTLDays, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dataset store: %w", err)
	}
	if err := datasetStore.Load(context.Background()); err != nil {
		logger.WithError(err).Warn("Failed to load title dataset, continuing without it")
	}

	// 5. Initialize services
	bangumiClient := bangumi.NewClient(cfg.BangumiBaseURL, logger)
	logger.Info("Bangumi client initialized")

	mappingStore := mapping.NewStore(db, logger)
	titleResolver := resolver.New(mappingStore, datasetStore, bangumiClient, cfg.DefaultSeasonLen, logger)
	exec := executor.New(titleResolver, bangumiClient, db, logger)
	norm := normalizer.New(cfg, logger)

	var puller *trakt.Puller
	traktClient := trakt.NewClient(cfg.TraktClientID, cfg.TraktClientSecret, cfg.TraktRedirectURL, logger)
	if traktClient.Enabled() {
		puller = trakt.NewPuller(traktClient, db, norm, exec, logger)
		logger.Info("Trakt client initialized")
	} else {
		logger.Info("Trakt credentials not configured, pull sync disabled")
	}

	// 6. Initialize scheduler
	sched := scheduler.New(cfg, puller, datasetStore, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 7. Initialize HTTP server
	server := api.NewServer(api.Deps{
		Config:     cfg,
		DB:         db,
		Normalizer: norm,
		Runner:     exec,
		Mappings:   mappingStore,
		Dataset:    datasetStore,
		Puller:     puller,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 8. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Bangusync is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Bangusync stopped")
	return nil
}
