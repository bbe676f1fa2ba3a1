package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/services/dataset"
)

// DatasetHandler exposes a manual refresh of the title dataset.
type DatasetHandler struct {
	store  *dataset.Store
	logger *logrus.Logger
}

// NewDatasetHandler creates a dataset handler.
func NewDatasetHandler(store *dataset.Store, logger *logrus.Logger) *DatasetHandler {
	return &DatasetHandler{store: store, logger: logger}
}

// Refresh forces a re-download regardless of the cache TTL.
func (h *DatasetHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Refresh(r.Context()); err != nil {
		h.logger.WithError(err).Error("Manual dataset refresh failed")
		writeError(w, http.StatusBadGateway, "dataset refresh failed")
		return
	}

	snapshot := h.store.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries":   len(snapshot.Entries),
		"loaded_at": snapshot.LoadedAt,
	})
}
