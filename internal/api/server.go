package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/api/handlers"
	"github.com/sorabane/bangusync/internal/api/middleware"
	"github.com/sorabane/bangusync/internal/config"
	"github.com/sorabane/bangusync/internal/mapping"
	"github.com/sorabane/bangusync/internal/models"
	"github.com/sorabane/bangusync/internal/normalizer"
	"github.com/sorabane/bangusync/internal/services/dataset"
	"github.com/sorabane/bangusync/internal/services/trakt"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// Deps bundles everything the routes need.
type Deps struct {
	Config     *config.Config
	DB         *models.Database
	Normalizer *normalizer.Normalizer
	Runner     handlers.EventRunner
	Mappings   *mapping.Store
	Dataset    *dataset.Store
	Puller     *trakt.Puller // nil when Trakt is not configured
}

// NewServer creates a new HTTP server
func NewServer(deps Deps, logger *logrus.Logger) *Server {
	s := &Server{logger: logger}

	mux := http.NewServeMux()
	s.setupRoutes(mux, deps)

	s.server = &http.Server{
		Addr:         ":" + deps.Config.ServerPort,
		Handler:      middleware.Logging(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux, deps Deps) {
	healthHandler := handlers.NewHealthHandler(deps.Dataset, s.logger)
	mux.Handle("GET /health", healthHandler)

	webhookHandler := handlers.NewWebhookHandler(deps.Normalizer, deps.Runner, s.logger)
	mux.HandleFunc("POST /api/sync/custom", webhookHandler.HandleCustom)
	mux.HandleFunc("POST /api/sync/plex", webhookHandler.HandlePlex)
	mux.HandleFunc("POST /api/sync/emby", webhookHandler.HandleEmby)
	mux.HandleFunc("POST /api/sync/jellyfin", webhookHandler.HandleJellyfin)

	recordsHandler := handlers.NewRecordsHandler(deps.DB, s.logger)
	mux.HandleFunc("GET /api/records", recordsHandler.List)
	mux.HandleFunc("GET /api/records/stats", recordsHandler.Stats)

	mappingsHandler := handlers.NewMappingsHandler(deps.Mappings, s.logger)
	mux.HandleFunc("GET /api/mappings", mappingsHandler.List)
	mux.HandleFunc("POST /api/mappings", mappingsHandler.Add)
	mux.HandleFunc("DELETE /api/mappings/{title}", mappingsHandler.Delete)
	mux.HandleFunc("GET /api/mappings/export", mappingsHandler.Export)
	mux.HandleFunc("POST /api/mappings/import", mappingsHandler.Import)

	datasetHandler := handlers.NewDatasetHandler(deps.Dataset, s.logger)
	mux.HandleFunc("POST /api/dataset/refresh", datasetHandler.Refresh)

	traktHandler := handlers.NewTraktHandler(deps.Puller, deps.Config, s.logger)
	mux.HandleFunc("POST /api/trakt/sync", traktHandler.Sync)
	mux.HandleFunc("POST /api/trakt/sync/full", traktHandler.SyncFull)
	mux.HandleFunc("GET /api/trakt/status", traktHandler.Status)
	mux.HandleFunc("POST /api/trakt/token", traktHandler.Token)
	mux.HandleFunc("DELETE /api/trakt/token", traktHandler.Disconnect)
	mux.HandleFunc("GET /api/trakt/authorize", traktHandler.Authorize)
	mux.HandleFunc("GET /api/trakt/callback", traktHandler.Callback)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
