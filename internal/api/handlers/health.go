package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/services/dataset"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	dataset *dataset.Store
	logger  *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(datasetStore *dataset.Store, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{dataset: datasetStore, logger: logger}
}

// ServeHTTP handles the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.dataset.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"dataset_entries":   len(snapshot.Entries),
		"dataset_loaded_at": snapshot.LoadedAt,
	})
}
